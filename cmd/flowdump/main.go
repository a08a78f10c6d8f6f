// Copyright 2024-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// flowdump demonstrates the while_loop operator across the dispatch modes: it runs a
// loop eagerly, captures it as a graph and prints the listing, infers its metadata
// signature with placeholder tensors, and shows the functionalization checks rejecting a
// mutating body.
//
// Example:
//
//	flowdump -steps=10 -dim=1000 -runs=50
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/flowops/capture"
	"github.com/gomlx/flowops/dispatch"
	"github.com/gomlx/flowops/fake"
	"github.com/gomlx/flowops/flow"
	"github.com/gomlx/flowops/functional"
	"github.com/gomlx/flowops/ops"
	"github.com/gomlx/flowops/types/shapes"
	"github.com/gomlx/flowops/types/tensors"
	"github.com/gomlx/flowops/types/xslices"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

var (
	flagSteps = flag.Int("steps", 10, "Number of loop iterations the demo loop runs.")
	flagDim   = flag.Int("dim", 1000, "Dimension of the vector carried by the demo loop.")
	flagRuns  = flag.Int("runs", 20, "How many times to execute the eager loop.")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Padding(1, 4, 0, 4)
	listingStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("99")).
			Padding(0, 1)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *flagRuns < 1 || *flagSteps < 1 || *flagDim < 1 {
		klog.Exitf("-runs, -steps and -dim must all be >= 1")
	}
	if termenv.NewOutput(os.Stdout).Profile == termenv.Ascii {
		// No colors on dumb terminals.
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	loopFn := func(stack *dispatch.Stack, args ...any) []any {
		return flow.WhileLoop(stack, loopCond, loopBody, []any{args[0], args[1]})
	}

	runEager(loopFn)
	g := runCapture(loopFn)
	runFakeInference(loopFn)
	runInterpret(g)
	runFunctionalize()
}

// loopCond and loopBody iterate x = sin(x) while i < steps, carrying (i, x).
func loopCond(stack *dispatch.Stack, args ...any) []any {
	return []any{ops.LessThan(stack, args[0], *flagSteps)}
}

func loopBody(stack *dispatch.Stack, args ...any) []any {
	return []any{
		ops.Add(stack, args[0], 1),
		ops.Sin(stack, args[1]),
	}
}

func newCarry() []any {
	return []any{0, tensors.FromFlatDataAndDimensions(xslices.Iota(float32(0), *flagDim), *flagDim)}
}

func runEager(loopFn capture.Fn) {
	fmt.Println(titleStyle.Render("Eager"))
	stack := dispatch.NewStack()
	bar := progressbar.NewOptions(*flagRuns,
		progressbar.OptionSetDescription("running"),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("loops"),
		progressbar.OptionSetTheme(progressbar.ThemeASCII))
	var outs []any
	for range *flagRuns {
		outs = loopFn(stack, newCarry()...)
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	fmt.Println()

	final := outs[1].(*tensors.Tensor)
	table := lgtable.New().Border(lipgloss.NormalBorder())
	table.Row("iterations", humanize.Comma(int64(outs[0].(int))))
	table.Row("carried", final.Shape().String())
	table.Row("memory", humanize.Bytes(uint64(final.Memory())))
	fmt.Println(table.Render())
}

func runCapture(loopFn capture.Fn) *capture.Graph {
	fmt.Println(titleStyle.Render("Captured graph"))
	stack := dispatch.NewStack()
	stack.Push(fake.NewMode(nil))
	g := capture.Trace(stack, "demo", loopFn,
		[]any{0, fake.FromShape(shapes.Make(dtypes.Float32, *flagDim))})
	fmt.Println(listingStyle.Render(g.String()))
	return g
}

func runFakeInference(loopFn capture.Fn) {
	fmt.Println(titleStyle.Render("Metadata inference"))
	stack := dispatch.NewStack()
	stack.Push(fake.NewMode(nil))
	outs := loopFn(stack, 0, fake.FromShape(shapes.Make(dtypes.Float32, *flagDim)))

	table := lgtable.New().Border(lipgloss.NormalBorder())
	table.Row("input", "int", "carried counter")
	table.Row("input", shapes.Make(dtypes.Float32, *flagDim).String(), "carried vector")
	for _, out := range outs {
		switch v := out.(type) {
		case *fake.Tensor:
			table.Row("output", v.Shape().String(),
				fmt.Sprintf("%s of storage", humanize.Bytes(uint64(v.Shape().Memory()))))
		default:
			table.Row("output", fmt.Sprintf("%v", v), fmt.Sprintf("%T", v))
		}
	}
	fmt.Println(table.Render())
}

func runInterpret(g *capture.Graph) {
	fmt.Println(titleStyle.Render("Graph re-execution"))
	stack := dispatch.NewStack()
	outs := capture.Interpret(stack, g, newCarry())
	fmt.Printf("re-executed %q: %s iterations, carried %s\n",
		g.Name(), humanize.Comma(int64(outs[0].(int))), outs[1].(*tensors.Tensor).Shape())
}

func runFunctionalize() {
	fmt.Println(titleStyle.Render("Functionalization checks"))
	stack := dispatch.NewStack()
	ctx := functional.NewContext(false)
	stack.Push(ctx)
	carried := ctx.WrapAll([]any{tensors.FromScalar(float32(0))})

	cond := func(stack *dispatch.Stack, args ...any) []any {
		return []any{ops.LessThan(stack, ops.Sum(stack, args[0]), 10)}
	}
	mutatingBody := func(stack *dispatch.Stack, args ...any) []any {
		return []any{ops.AddInPlace(stack, args[0], 1)}
	}
	err := exceptions.TryCatch[error](func() {
		flow.WhileLoop(stack, cond, mutatingBody, carried)
	})
	if err != nil {
		fmt.Println(errorStyle.Render(fmt.Sprintf("rejected as expected: %v", err)))
	}

	pureBody := func(stack *dispatch.Stack, args ...any) []any {
		return []any{ops.Add(stack, args[0], 1)}
	}
	outs := flow.WhileLoop(stack, cond, pureBody, carried)
	final := outs[0].(*functional.Tensor).Base().(*tensors.Tensor)
	fmt.Printf("pure loop accepted, final carry: %s\n", final)
}
