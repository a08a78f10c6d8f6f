// Copyright 2024-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package flow implements structured control-flow operators on top of the dispatch
// machinery, starting with WhileLoop.
//
// A while loop takes a condition callable, a body callable and a slice of carried
// values. It repeatedly evaluates the condition on the current carry and, while it holds,
// replaces the carry with the body's outputs. The same operator has consistent behavior
// across every dispatch mode:
//
//   - eager: the loop actually runs on dense tensors;
//   - tracing: condition and body are captured once as subgraphs of the enclosing graph
//     and a single while_loop call node is emitted;
//   - fake: one body evaluation infers the output metadata, with carried integers
//     generalized to unbacked symbolic integers so nothing specializes on the initial
//     values;
//   - functionalize: condition and body are statically checked to neither mutate nor
//     alias their inputs before the loop proceeds under copy-on-write semantics;
//   - autograd: the loop runs, but gradients are rejected lazily with
//     AutogradNotImplementedError when Backward reaches its outputs.
//
// Condition and body may be given either as functions (capture.Fn) or as previously
// captured *capture.Graph values, which are re-executed through the operator registry
// with observably equivalent behavior.
package flow

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/flowops/capture"
	"github.com/gomlx/flowops/dispatch"
	"github.com/gomlx/flowops/fake"
	"github.com/gomlx/flowops/functional"
	"github.com/gomlx/flowops/symbolic"
	"github.com/gomlx/flowops/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"k8s.io/klog/v2"
)

// WhileLoopOp is the while_loop operator. Most users should call WhileLoop instead; the
// operator is exported so captured graphs and custom layers can dispatch it directly.
var WhileLoopOp = dispatch.NewOperator("while_loop")

func init() {
	WhileLoopOp.RegisterHandler(dispatch.ModeEager, execWhileLoop)
	WhileLoopOp.RegisterHandler(dispatch.ModeAutograd, autogradWhileLoop)
	WhileLoopOp.RegisterHandler(dispatch.ModeFunctionalize, functionalizeWhileLoop)
	WhileLoopOp.RegisterHandler(dispatch.ModeTracing, traceWhileLoop)
	WhileLoopOp.RegisterHandler(dispatch.ModeFake, fakeWhileLoop)
}

// WhileLoop runs bodyFn on the carried values while condFn holds, returning the final
// carry. It has the same signature contract in every dispatch mode.
//
// condFn and bodyFn take the carried values (followed by the additional values, if any)
// and must be either functions of type capture.Fn or captured *capture.Graph values.
// condFn must return a single bool or scalar Bool tensor; bodyFn must return exactly one
// value per carried input.
//
// carried must be a []any of leaf values: tensors, ints, floats, bools or symbolic
// integers. The additional values are passed unchanged to both callables on every
// iteration but are not carried; they must be tensors, ints or symbolic integers.
//
// It panics with descriptive errors on contract violations, before evaluating either
// callable.
func WhileLoop(stack *dispatch.Stack, condFn, bodyFn any, carried any, additional ...any) []any {
	if !isCallable(condFn) {
		exceptions.Panicf("flow.WhileLoop: condFn must be a function or a captured graph, got %T", condFn)
	}
	if !isCallable(bodyFn) {
		exceptions.Panicf("flow.WhileLoop: bodyFn must be a function or a captured graph, got %T", bodyFn)
	}
	carriedSlice, ok := carried.([]any)
	if !ok {
		exceptions.Panicf("flow.WhileLoop: carried inputs must be a []any of leaf values, got %T", carried)
	}
	for ii, v := range carriedSlice {
		if !isCarriedLeaf(v) {
			exceptions.Panicf("flow.WhileLoop: only tensors, ints, floats, bools and symbolic "+
				"integers can be carried, got %T at position %d", v, ii)
		}
	}
	for ii, v := range additional {
		if !isAdditionalLeaf(v) {
			exceptions.Panicf("flow.WhileLoop: additional inputs must be tensors, ints or "+
				"symbolic integers, got %T at position %d", v, ii)
		}
	}
	if anyRequiresGrad(carriedSlice) && stack.Find(dispatch.ModeAutograd) == nil {
		var outs []any
		stack.Scoped(dispatch.ModeLayer(dispatch.ModeAutograd), func() {
			outs = WhileLoopOp.Call(stack, condFn, bodyFn, carriedSlice, additional)
		})
		return outs
	}
	return WhileLoopOp.Call(stack, condFn, bodyFn, carriedSlice, additional)
}

// execWhileLoop is the dense executor: the reference semantics every other mode's
// handler must be observably equivalent to.
func execWhileLoop(stack *dispatch.Stack, _ dispatch.Layer, args []any) []any {
	condFn, bodyFn := toFn(args[0]), toFn(args[1])
	carry := append([]any{}, args[2].([]any)...)
	additional := args[3].([]any)
	for iter := 0; ; iter++ {
		callArgs := append(append([]any{}, carry...), additional...)
		if !condPredicate(condFn(stack, callArgs...)) {
			if klog.V(2).Enabled() {
				klog.Infof("flow: while_loop finished after %d iterations", iter)
			}
			return carry
		}
		outs := bodyFn(stack, callArgs...)
		if len(outs) != len(carry) {
			exceptions.Panicf("while_loop: bodyFn must return one value per carried input, got %d values, want %d",
				len(outs), len(carry))
		}
		carry = outs
	}
}

// condPredicate decodes the condition result: a single bool or scalar Bool tensor.
func condPredicate(preds []any) bool {
	if len(preds) != 1 {
		exceptions.Panicf("while_loop: condFn must return a single value, got %d", len(preds))
	}
	switch p := preds[0].(type) {
	case bool:
		return p
	case *tensors.Tensor:
		if p.IsScalar() && p.DType() == dtypes.Bool {
			return tensors.ToScalar[bool](p)
		}
		exceptions.Panicf("while_loop: condFn must return a bool or a scalar Bool tensor, got shape %s", p.Shape())
	}
	exceptions.Panicf("while_loop: condFn must return a bool or a scalar Bool tensor, got %T", preds[0])
	return false
}

// autogradWhileLoop runs the loop and poisons its tensor outputs with a gradient hook
// that fails: the error is deferred until someone actually calls Backward through them.
func autogradWhileLoop(stack *dispatch.Stack, _ dispatch.Layer, args []any) []any {
	outs := WhileLoopOp.Call(stack, args...)
	if !anyRequiresGrad(args[2].([]any)) && !anyRequiresGrad(args[3].([]any)) {
		return outs
	}
	for ii, out := range outs {
		t, ok := out.(*tensors.Tensor)
		if !ok {
			continue
		}
		// A zero-iteration loop returns the inputs themselves; clone so the caller's
		// tensors keep their own gradient hooks.
		c := t.Clone()
		c.SetRequiresGrad(true)
		c.SetGradFunc(func() { panic(&AutogradNotImplementedError{Op: "while_loop"}) })
		outs[ii] = c
	}
	return outs
}

// traceWhileLoop captures condFn and bodyFn as subgraphs of the enclosing trace and
// emits a single while_loop call node carrying references to them.
//
// The probe evaluations run on placeholder tensors, with carried integers generalized to
// fresh unbacked symbolic integers so the captured graphs cannot specialize on the
// initial carry. Probe symbols are transient: they are discarded from the environment's
// pending set once both captures finish.
func traceWhileLoop(stack *dispatch.Stack, layer dispatch.Layer, args []any) []any {
	mode := layer.(*capture.Mode)
	tracer := mode.Tracer()
	condFn, bodyFn := toFn(args[0]), toFn(args[1])
	carried := args[2].([]any)
	additional := args[3].([]any)

	fakeMode := fake.Detect(stack)
	if fakeMode == nil {
		fakeMode = fake.NewMode(nil)
		stack.Push(fakeMode)
		defer stack.Pop()
	}
	env := fakeMode.ShapeEnv()

	carriedVals := capture.ProxyValues(carried)
	additionalVals := capture.ProxyValues(additional)

	root := tracer.Root()
	condName := nextSubgraphName(root, "while_loop_cond_graph")
	bodyName := nextSubgraphName(root, "while_loop_body_graph")

	var condGraph, bodyGraph *capture.Graph
	env.IgnoreFreshUnbacked(func() {
		probeCarried := unspecializeInts(env, fake.Fakify(carriedVals), true)
		probeArgs := append(probeCarried, fake.Fakify(additionalVals)...)
		condGraph = capture.Trace(stack, condName, condFn, probeArgs)
		bodyGraph = capture.Trace(stack, bodyName, bodyFn, probeArgs)
	})
	root.RegisterSubgraph(condName, condGraph)
	root.RegisterSubgraph(bodyName, bodyGraph)

	node := tracer.EmitCall("while_loop", []any{
		capture.SubgraphRef(condName),
		capture.SubgraphRef(bodyName),
		capture.ProxyArgs(carried),
		capture.ProxyArgs(additional),
	})

	// Redispatch below the tracing layers for the output values the proxies will carry,
	// and reconcile any unbacked symbols they contain with the node that produced them.
	var outs []any
	stack.Suspend(dispatch.ModeTracing, func() {
		outs = WhileLoopOp.Call(stack, args[0], args[1], carriedVals, additionalVals)
	})
	for ii, out := range outs {
		if s, ok := out.(*symbolic.SymInt); ok {
			env.RecordBinding(s, fmt.Sprintf("%s[%d]", node.Name(), ii))
		}
	}
	return tracer.TrackValues(outs, node)
}

// fakeWhileLoop infers the loop's output metadata from a single body evaluation.
//
// Carried integers are generalized to fresh unbacked symbolic integers before the
// evaluation, and integer-valued outputs likewise afterwards: the number of iterations
// is unknown, so no output may specialize on the initial carry. The probe's own fresh
// symbols are discarded; only the output symbols stay pending for the caller.
func fakeWhileLoop(stack *dispatch.Stack, layer dispatch.Layer, args []any) []any {
	mode := layer.(*fake.Mode)
	stack.Push(mode)
	defer stack.Pop()
	bodyFn := toFn(args[1])
	carried := args[2].([]any)
	additional := args[3].([]any)
	env := mode.ShapeEnv()

	var outs []any
	env.IgnoreFreshUnbacked(func() {
		probeCarried := unspecializeInts(env, fake.Fakify(carried), false)
		probeArgs := append(probeCarried, fake.Fakify(additional)...)
		outs = bodyFn(stack, probeArgs...)
	})
	if len(outs) != len(carried) {
		exceptions.Panicf("while_loop: bodyFn must return one value per carried input, got %d values, want %d",
			len(outs), len(carried))
	}
	return unspecializeInts(env, outs, false)
}

// functionalizeWhileLoop statically rejects condition/body callables that might mutate
// or alias their inputs, then runs the loop with both callables under copy-on-write
// semantics.
func functionalizeWhileLoop(stack *dispatch.Stack, layer dispatch.Layer, args []any) []any {
	ctx := layer.(*functional.Context)
	carried := args[2].([]any)
	additional := args[3].([]any)
	unwrappedCarried := ctx.UnwrapAll(carried)
	unwrappedAdditional := ctx.UnwrapAll(additional)
	inputs := append(append([]any{}, unwrappedCarried...), unwrappedAdditional...)

	for _, check := range []struct {
		name string
		fn   capture.Fn
	}{
		{"condFn", toFn(args[0])},
		{"bodyFn", toFn(args[1])},
	} {
		f := ctx.Functionalize(check.fn)
		if f.HasPotentialInputMutation(stack, inputs) {
			panic(&UnsupportedAliasMutationError{Op: "while_loop", Fn: check.name})
		}
		if f.HasPotentialInputAlias(stack, inputs) {
			panic(&UnsupportedAliasMutationError{Op: "while_loop", Fn: check.name, Aliasing: true})
		}
	}

	outs := WhileLoopOp.Call(stack,
		functionalized(ctx, toFn(args[0])),
		functionalized(ctx, toFn(args[1])),
		unwrappedCarried, unwrappedAdditional)
	return ctx.WrapAll(outs)
}

// functionalized converts a functionalized callable back to the plain capture.Fn form
// the loop executor expects.
func functionalized(ctx *functional.Context, fn capture.Fn) capture.Fn {
	f := ctx.Functionalize(fn)
	return func(stack *dispatch.Stack, args ...any) []any {
		return f.Call(stack, args...)
	}
}

// toFn coerces a callable argument: functions pass through, captured graphs are
// re-executed through the operator registry.
func toFn(v any) capture.Fn {
	switch f := v.(type) {
	case capture.Fn:
		return f
	case func(stack *dispatch.Stack, args ...any) []any:
		return f
	case *capture.Graph:
		return func(stack *dispatch.Stack, args ...any) []any {
			return capture.Interpret(stack, f, args)
		}
	}
	exceptions.Panicf("while_loop: expected a function or a captured graph, got %T", v)
	return nil
}

func isCallable(v any) bool {
	switch v.(type) {
	case capture.Fn, func(stack *dispatch.Stack, args ...any) []any, *capture.Graph:
		return true
	}
	return false
}

func isCarriedLeaf(v any) bool {
	switch v.(type) {
	case *tensors.Tensor, *fake.Tensor, *functional.Tensor, *capture.Proxy,
		*symbolic.SymInt, int, float64, bool:
		return true
	}
	return false
}

func isAdditionalLeaf(v any) bool {
	switch t := v.(type) {
	case *tensors.Tensor, *fake.Tensor, *functional.Tensor, *symbolic.SymInt, int:
		return true
	case *capture.Proxy:
		return isAdditionalLeaf(t.Value())
	}
	return false
}

// unspecializeInts replaces plain ints with fresh unbacked symbolic integers, optionally
// recording which carried position originated each symbol. All other values pass
// through unchanged.
func unspecializeInts(env *symbolic.ShapeEnv, values []any, bindOrigins bool) []any {
	out := make([]any, len(values))
	for ii, v := range values {
		if _, ok := v.(int); ok {
			s := env.NewUnbacked()
			if bindOrigins {
				env.RecordBinding(s, fmt.Sprintf("carried[%d]", ii))
			}
			out[ii] = s
			continue
		}
		out[ii] = v
	}
	return out
}

// nextSubgraphName probes the enclosing graph for the first collision-free name with the
// given prefix: "<prefix>_0", "<prefix>_1", ...
func nextSubgraphName(g *capture.Graph, prefix string) string {
	for ii := 0; ; ii++ {
		name := fmt.Sprintf("%s_%d", prefix, ii)
		if !g.HasSubgraph(name) {
			return name
		}
	}
}

func anyRequiresGrad(values []any) bool {
	for _, v := range values {
		if t, ok := v.(*tensors.Tensor); ok && t.RequiresGrad() {
			return true
		}
	}
	return false
}
