// Copyright 2024-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package flow_test

import (
	"testing"

	"github.com/gomlx/flowops/capture"
	"github.com/gomlx/flowops/dispatch"
	"github.com/gomlx/flowops/fake"
	"github.com/gomlx/flowops/flow"
	"github.com/gomlx/flowops/functional"
	"github.com/gomlx/flowops/ops"
	"github.com/gomlx/flowops/symbolic"
	"github.com/gomlx/flowops/types/shapes"
	"github.com/gomlx/flowops/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countUpCond and countUpBody implement the canonical loop: carry (i, x), iterate
// x = sin(x) while i < 10.
func countUpCond(stack *dispatch.Stack, args ...any) []any {
	return []any{ops.LessThan(stack, args[0], 10)}
}

func countUpBody(stack *dispatch.Stack, args ...any) []any {
	return []any{
		ops.Add(stack, args[0], 1),
		ops.Sin(stack, args[1]),
	}
}

func TestWhileLoopEager(t *testing.T) {
	stack := dispatch.NewStack()
	x := tensors.FromFlatDataAndDimensions([]float64{0.5, 1.0, 1.5}, 3)

	outs := flow.WhileLoop(stack, countUpCond, countUpBody, []any{0, x})
	require.Len(t, outs, 2)
	assert.Equal(t, 10, outs[0])

	// Must match the manual unroll exactly.
	want := x
	for range 10 {
		want = ops.Sin(stack, want).(*tensors.Tensor)
	}
	assert.True(t, outs[1].(*tensors.Tensor).Equal(want))
	assert.Equal(t, []float64{0.5, 1.0, 1.5}, tensors.CopyFlatData[float64](x),
		"carried inputs must not be modified")
}

func TestWhileLoopTensorPredicate(t *testing.T) {
	stack := dispatch.NewStack()
	cond := func(stack *dispatch.Stack, args ...any) []any {
		total := ops.Sum(stack, args[0])
		return []any{ops.LessThan(stack, total, 10)}
	}
	body := func(stack *dispatch.Stack, args ...any) []any {
		return []any{ops.Add(stack, args[0], 3)}
	}

	x := tensors.FromScalar(float32(0))
	outs := flow.WhileLoop(stack, cond, body, []any{x})
	require.Len(t, outs, 1)
	assert.Equal(t, float32(12), tensors.ToScalar[float32](outs[0].(*tensors.Tensor)))
}

func TestWhileLoopZeroIterations(t *testing.T) {
	stack := dispatch.NewStack()
	x := tensors.FromScalar(float32(1))
	outs := flow.WhileLoop(stack, countUpCond, countUpBody, []any{42, x})
	assert.Equal(t, 42, outs[0])
	assert.Same(t, x, outs[1], "a loop that never runs returns its inputs")
}

func TestWhileLoopAdditionalInputs(t *testing.T) {
	stack := dispatch.NewStack()
	cond := func(stack *dispatch.Stack, args ...any) []any {
		return []any{ops.LessThan(stack, args[0], 10)}
	}
	body := func(stack *dispatch.Stack, args ...any) []any {
		// args[1] is the additional step, passed on every iteration but not carried.
		return []any{ops.Add(stack, args[0], args[1])}
	}

	x := tensors.FromScalar(float32(0))
	step := tensors.FromScalar(float32(2.5))
	outs := flow.WhileLoop(stack, cond, body, []any{x}, step)
	require.Len(t, outs, 1)
	assert.Equal(t, float32(10), tensors.ToScalar[float32](outs[0].(*tensors.Tensor)))
}

func TestWhileLoopValidation(t *testing.T) {
	stack := dispatch.NewStack()
	x := tensors.FromScalar(float32(0))
	condRan := false
	cond := func(stack *dispatch.Stack, args ...any) []any {
		condRan = true
		return []any{false}
	}
	body := func(stack *dispatch.Stack, args ...any) []any { return args }

	// Carried inputs must be a []any; the error fires before any callable runs.
	require.Panics(t, func() { flow.WhileLoop(stack, cond, body, x) })
	assert.False(t, condRan)

	// Unsupported carried leaf type.
	require.Panics(t, func() { flow.WhileLoop(stack, cond, body, []any{"nope"}) })
	assert.False(t, condRan)

	// Additional inputs are stricter: floats and bools are not accepted.
	require.Panics(t, func() { flow.WhileLoop(stack, cond, body, []any{x}, 2.5) })
	require.Panics(t, func() { flow.WhileLoop(stack, cond, body, []any{x}, true) })
	assert.False(t, condRan)

	// Callables must be functions or captured graphs.
	require.Panics(t, func() { flow.WhileLoop(stack, 3, body, []any{x}) })
	require.Panics(t, func() { flow.WhileLoop(stack, cond, "body", []any{x}) })
}

func TestWhileLoopCondResultValidation(t *testing.T) {
	stack := dispatch.NewStack()
	x := tensors.FromScalar(float32(0))

	// Non-scalar Bool tensor predicate.
	require.Panics(t, func() {
		flow.WhileLoop(stack, func(stack *dispatch.Stack, args ...any) []any {
			return []any{tensors.FromFlatDataAndDimensions([]bool{true, false}, 2)}
		}, countUpBody, []any{x})
	})

	// Non-boolean predicate.
	require.Panics(t, func() {
		flow.WhileLoop(stack, func(stack *dispatch.Stack, args ...any) []any {
			return []any{3}
		}, countUpBody, []any{x})
	})

	// Multiple predicate values.
	require.Panics(t, func() {
		flow.WhileLoop(stack, func(stack *dispatch.Stack, args ...any) []any {
			return []any{true, false}
		}, countUpBody, []any{x})
	})
}

func TestWhileLoopBodyArityValidation(t *testing.T) {
	stack := dispatch.NewStack()
	x := tensors.FromScalar(float32(0))
	body := func(stack *dispatch.Stack, args ...any) []any {
		return []any{args[0], args[0]} // One carried input, two outputs.
	}
	cond := func(stack *dispatch.Stack, args ...any) []any { return []any{true} }
	require.Panics(t, func() { flow.WhileLoop(stack, cond, body, []any{x}) })
}

func TestWhileLoopTracing(t *testing.T) {
	stack := dispatch.NewStack()
	fakeMode := fake.NewMode(nil)
	stack.Push(fakeMode)

	loopFn := func(stack *dispatch.Stack, args ...any) []any {
		return flow.WhileLoop(stack, countUpCond, countUpBody, []any{args[0], args[1]})
	}
	xShape := shapes.Make(dtypes.Float64, 3)
	g := capture.Trace(stack, "main", loopFn, []any{0, fake.FromShape(xShape)})

	// One while_loop call node, with its outputs projected out.
	var targets []string
	for _, n := range g.Nodes() {
		if n.Kind() == capture.KindCall {
			targets = append(targets, n.Target())
		}
	}
	assert.Equal(t, []string{"while_loop", "item", "item"}, targets)

	// Condition and body are captured as subgraphs of the enclosing graph.
	require.True(t, g.HasSubgraph("while_loop_cond_graph_0"))
	require.True(t, g.HasSubgraph("while_loop_body_graph_0"))

	condGraph := g.Subgraph("while_loop_cond_graph_0")
	assert.Equal(t, 2, condGraph.NumPlaceholders())
	assert.Contains(t, condGraph.String(), "call less_than(%arg0, 10)")

	bodyGraph := g.Subgraph("while_loop_body_graph_0")
	assert.Equal(t, 2, bodyGraph.NumPlaceholders())
	assert.Contains(t, bodyGraph.String(), "call add(%arg0, 1)")
	assert.Contains(t, bodyGraph.String(), "call sin(%arg1)")

	// Probe symbols must not leak into the environment's pending set.
	assert.Empty(t, fakeMode.ShapeEnv().PendingFresh())
}

func TestWhileLoopTracingTwiceGetsFreshNames(t *testing.T) {
	stack := dispatch.NewStack()
	loopTwiceFn := func(stack *dispatch.Stack, args ...any) []any {
		outs := flow.WhileLoop(stack, countUpCond, countUpBody, []any{args[0], args[1]})
		return flow.WhileLoop(stack, countUpCond, countUpBody, outs)
	}
	g := capture.Trace(stack, "main", loopTwiceFn,
		[]any{0, fake.FromShape(shapes.Make(dtypes.Float64, 2))})

	for _, name := range []string{
		"while_loop_cond_graph_0", "while_loop_body_graph_0",
		"while_loop_cond_graph_1", "while_loop_body_graph_1",
	} {
		assert.True(t, g.HasSubgraph(name), "missing subgraph %q", name)
	}
}

func TestWhileLoopInterpretMatchesEager(t *testing.T) {
	stack := dispatch.NewStack()
	loopFn := func(stack *dispatch.Stack, args ...any) []any {
		return flow.WhileLoop(stack, countUpCond, countUpBody, []any{args[0], args[1]})
	}
	g := capture.Trace(stack, "main", loopFn,
		[]any{0, fake.FromShape(shapes.Make(dtypes.Float64, 3))})

	x := tensors.FromFlatDataAndDimensions([]float64{0.5, 1.0, 1.5}, 3)
	want := flow.WhileLoop(stack, countUpCond, countUpBody, []any{0, x})
	got := capture.Interpret(stack, g, []any{0, x})

	require.Len(t, got, 2)
	assert.Equal(t, want[0], got[0])
	assert.True(t, got[1].(*tensors.Tensor).Equal(want[1].(*tensors.Tensor)),
		"re-executing the captured graph must match the eager loop")
}

func TestWhileLoopWithCapturedGraphCallables(t *testing.T) {
	stack := dispatch.NewStack()
	probe := []any{0, tensors.FromFlatDataAndDimensions([]float64{0, 0}, 2)}
	condGraph := capture.Trace(stack, "cond", countUpCond, probe)
	bodyGraph := capture.Trace(stack, "body", countUpBody, probe)

	x := tensors.FromFlatDataAndDimensions([]float64{0.5, 1.0}, 2)
	want := flow.WhileLoop(stack, countUpCond, countUpBody, []any{0, x})
	got := flow.WhileLoop(stack, condGraph, bodyGraph, []any{0, x})

	assert.Equal(t, want[0], got[0])
	assert.True(t, got[1].(*tensors.Tensor).Equal(want[1].(*tensors.Tensor)))
}

func TestWhileLoopFake(t *testing.T) {
	stack := dispatch.NewStack()
	fakeMode := fake.NewMode(nil)
	stack.Push(fakeMode)

	xShape := shapes.Make(dtypes.Float64, 4)
	outs := flow.WhileLoop(stack, countUpCond, countUpBody,
		[]any{5, fake.FromShape(xShape)})
	require.Len(t, outs, 2)

	// The integer output is generalized: nothing may specialize on the initial carry.
	_, isSym := outs[0].(*symbolic.SymInt)
	assert.True(t, isSym, "integer loop outputs must be unbacked symbolic integers, got %T", outs[0])

	ft, isFake := outs[1].(*fake.Tensor)
	require.True(t, isFake)
	assert.True(t, ft.Shape().Equal(xShape))

	// Running inference twice yields the same signature.
	outs2 := flow.WhileLoop(stack, countUpCond, countUpBody,
		[]any{5, fake.FromShape(xShape)})
	_, isSym = outs2[0].(*symbolic.SymInt)
	assert.True(t, isSym)
	assert.True(t, outs2[1].(*fake.Tensor).Shape().Equal(xShape))

	// The probe evaluations never leak pending symbols.
	assert.Empty(t, fakeMode.ShapeEnv().PendingFresh())
	assert.Equal(t, 1, stack.Len(), "stack must be restored")
}

func TestWhileLoopFunctionalizeRejectsMutation(t *testing.T) {
	stack := dispatch.NewStack()
	ctx := functional.NewContext(false)
	stack.Push(ctx)

	x := tensors.FromScalar(float32(0))
	carried := ctx.WrapAll([]any{x})

	cond := func(stack *dispatch.Stack, args ...any) []any {
		return []any{ops.LessThan(stack, ops.Sum(stack, args[0]), 10)}
	}
	mutatingBody := func(stack *dispatch.Stack, args ...any) []any {
		return []any{ops.AddInPlace(stack, args[0], 1)}
	}

	require.PanicsWithError(t, "while_loop: bodyFn might be modifying its input", func() {
		flow.WhileLoop(stack, cond, mutatingBody, carried)
	})
	assert.Equal(t, float32(0), tensors.ToScalar[float32](x), "the input must stay intact")

	mutatingCond := func(stack *dispatch.Stack, args ...any) []any {
		ops.AddInPlace(stack, args[0], 1)
		return []any{false}
	}
	okBody := func(stack *dispatch.Stack, args ...any) []any {
		return []any{ops.Add(stack, args[0], 1)}
	}
	require.PanicsWithError(t, "while_loop: condFn might be modifying its input", func() {
		flow.WhileLoop(stack, mutatingCond, okBody, carried)
	})
}

func TestWhileLoopFunctionalizeRejectsAliasing(t *testing.T) {
	stack := dispatch.NewStack()
	ctx := functional.NewContext(false)
	stack.Push(ctx)

	x := tensors.FromScalar(float32(0))
	carried := ctx.WrapAll([]any{x})

	cond := func(stack *dispatch.Stack, args ...any) []any {
		return []any{ops.LessThan(stack, ops.Sum(stack, args[0]), 10)}
	}
	aliasingBody := func(stack *dispatch.Stack, args ...any) []any {
		return []any{ops.Identity(stack, args[0])}
	}

	require.PanicsWithError(t, "while_loop: bodyFn might be aliasing its input", func() {
		flow.WhileLoop(stack, cond, aliasingBody, carried)
	})
}

func TestWhileLoopFunctionalize(t *testing.T) {
	stack := dispatch.NewStack()
	ctx := functional.NewContext(false)
	stack.Push(ctx)

	x := tensors.FromScalar(float32(0))
	carried := ctx.WrapAll([]any{x})

	cond := func(stack *dispatch.Stack, args ...any) []any {
		return []any{ops.LessThan(stack, ops.Sum(stack, args[0]), 10)}
	}
	body := func(stack *dispatch.Stack, args ...any) []any {
		return []any{ops.Add(stack, args[0], 3)}
	}

	outs := flow.WhileLoop(stack, cond, body, carried)
	require.Len(t, outs, 1)
	w, ok := outs[0].(*functional.Tensor)
	require.True(t, ok, "outputs must come back wrapped")
	assert.Equal(t, float32(12), tensors.ToScalar[float32](w.Base().(*tensors.Tensor)))
	assert.Equal(t, float32(0), tensors.ToScalar[float32](x))
	assert.Equal(t, 1, stack.Len())
}

func TestWhileLoopAutogradDeferred(t *testing.T) {
	stack := dispatch.NewStack()
	x := tensors.FromFlatDataAndDimensions([]float64{0.5, 1.0}, 2)
	x.SetRequiresGrad(true)

	// Using the loop under autograd succeeds.
	outs := flow.WhileLoop(stack, countUpCond, countUpBody, []any{0, x})
	require.Len(t, outs, 2)
	out := outs[1].(*tensors.Tensor)
	assert.True(t, out.RequiresGrad())

	// The error only surfaces when gradients are actually requested.
	require.PanicsWithError(t,
		"while_loop: autograd is not implemented, gradients cannot flow through it",
		out.Backward)

	// Without a requires-grad input there is no gradient bookkeeping at all.
	y := tensors.FromFlatDataAndDimensions([]float64{0.5, 1.0}, 2)
	outs = flow.WhileLoop(stack, countUpCond, countUpBody, []any{0, y})
	assert.False(t, outs[1].(*tensors.Tensor).RequiresGrad())
}
