// Copyright 2024-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package ops implements the elementary tensor operators of the runtime, registered
// against the dispatch machinery with one handler per execution mode:
//
//   - eager: dense computation on host tensors (the reference semantics);
//   - fake: shape/dtype inference on placeholder tensors;
//   - tracing: emit a call node on the active tracer and redispatch for the value;
//   - functionalize: unwrap copy-on-write wrappers, redispatch, rewrap -- in-place
//     operators commit through the wrapper instead of writing to their input, and view
//     operators return the input wrapper itself.
//
// The set is deliberately small: enough to express loop conditions and bodies
// (accumulate, transform, reduce, compare) and to exercise mutation and aliasing.
package ops

import (
	"github.com/gomlx/flowops/capture"
	"github.com/gomlx/flowops/dispatch"
	"github.com/gomlx/flowops/fake"
	"github.com/gomlx/flowops/functional"
)

var (
	// ConstantOp materializes a literal as a tensor. Tensors pass through so captured
	// graphs can embed them directly.
	ConstantOp = dispatch.NewOperator("constant")

	// AddOp sums two values elementwise (tensor/tensor of equal shapes, tensor/scalar,
	// or scalar/scalar).
	AddOp = dispatch.NewOperator("add")

	// AddInPlaceOp accumulates the second value into the first tensor's storage and
	// returns that same tensor.
	AddInPlaceOp = dispatch.NewOperator("add_inplace")

	// SinOp takes the elementwise sine of a float tensor or scalar.
	SinOp = dispatch.NewOperator("sin")

	// SumOp reduces a tensor to a scalar tensor with the sum of all elements.
	SumOp = dispatch.NewOperator("sum")

	// LessThanOp compares elementwise, returning a Bool tensor -- or a native bool for
	// scalar operands.
	LessThanOp = dispatch.NewOperator("less_than")

	// IdentityOp returns its input unchanged: a view, so its output aliases its input.
	IdentityOp = dispatch.NewOperator("identity")

	// CloneOp returns a deep copy of its input, sharing no storage with it.
	CloneOp = dispatch.NewOperator("clone")
)

// Constant materializes the literal value as a tensor.
func Constant(stack *dispatch.Stack, value any) any { return ConstantOp.Call(stack, value)[0] }

// Add returns lhs+rhs.
func Add(stack *dispatch.Stack, lhs, rhs any) any { return AddOp.Call(stack, lhs, rhs)[0] }

// AddInPlace accumulates delta into target's storage and returns target. Under
// functionalization the write goes through the copy-on-write wrapper instead.
func AddInPlace(stack *dispatch.Stack, target, delta any) any {
	return AddInPlaceOp.Call(stack, target, delta)[0]
}

// Sin returns the elementwise sine of x.
func Sin(stack *dispatch.Stack, x any) any { return SinOp.Call(stack, x)[0] }

// Sum returns the scalar sum of all elements of x.
func Sum(stack *dispatch.Stack, x any) any { return SumOp.Call(stack, x)[0] }

// LessThan returns lhs < rhs: a Bool tensor for tensor operands, a native bool for
// scalar ones.
func LessThan(stack *dispatch.Stack, lhs, rhs any) any { return LessThanOp.Call(stack, lhs, rhs)[0] }

// Identity returns x unchanged (a view of it).
func Identity(stack *dispatch.Stack, x any) any { return IdentityOp.Call(stack, x)[0] }

// Clone returns a deep copy of x.
func Clone(stack *dispatch.Stack, x any) any { return CloneOp.Call(stack, x)[0] }

// opDef gathers the per-mode behavior of one elementary operator.
type opDef struct {
	op    *dispatch.Operator
	eager func(stack *dispatch.Stack, args []any) []any
	infer func(mode *fake.Mode, args []any) []any

	// pure is the out-of-place counterpart of an in-place operator; nil otherwise.
	pure *dispatch.Operator
	// isView marks operators whose output aliases their input.
	isView bool
}

func register(def opDef) {
	op := def.op
	op.RegisterHandler(dispatch.ModeEager, func(stack *dispatch.Stack, _ dispatch.Layer, args []any) []any {
		return def.eager(stack, args)
	})
	op.RegisterHandler(dispatch.ModeFake, func(_ *dispatch.Stack, layer dispatch.Layer, args []any) []any {
		return def.infer(layer.(*fake.Mode), args)
	})
	op.RegisterHandler(dispatch.ModeTracing, tracingHandler(op))
	op.RegisterHandler(dispatch.ModeFunctionalize, functionalizeHandler(def))
}

// tracingHandler redispatches on the unwrapped proxy values for the result, then records
// the invocation as a call node and reattaches the results to it. The redispatch runs
// with all tracing layers suspended: only the innermost active trace records an
// invocation.
func tracingHandler(op *dispatch.Operator) dispatch.Handler {
	return func(stack *dispatch.Stack, layer dispatch.Layer, args []any) []any {
		mode := layer.(*capture.Mode)
		var outs []any
		stack.Suspend(dispatch.ModeTracing, func() {
			outs = op.Call(stack, capture.ProxyValues(args)...)
		})
		node := mode.Tracer().EmitCall(op.Name(), capture.ProxyArgs(args))
		return mode.Tracer().TrackValues(outs, node)
	}
}

// functionalizeHandler implements the copy-on-write kernel shared by all elementary
// operators. Views return the input wrapper (keeping the alias observable); in-place
// operators compute out-of-place and commit through the wrapper; everything else
// unwraps, redispatches and rewraps.
func functionalizeHandler(def opDef) dispatch.Handler {
	return func(stack *dispatch.Stack, layer dispatch.Layer, args []any) []any {
		ctx := layer.(*functional.Context)
		if def.isView {
			return []any{args[0]}
		}
		unwrapped := ctx.UnwrapAll(args)
		if def.pure != nil {
			outs := def.pure.Call(stack, unwrapped...)
			if w, ok := args[0].(*functional.Tensor); ok {
				w.Replace(outs[0])
				return []any{w}
			}
			return outs
		}
		outs := def.op.Call(stack, unwrapped...)
		return ctx.WrapAll(outs)
	}
}

func init() {
	register(opDef{op: ConstantOp, eager: execConstant, infer: inferConstant})
	register(opDef{op: AddOp, eager: execAdd, infer: inferAdd})
	register(opDef{op: AddInPlaceOp, eager: execAddInPlace, infer: inferAddInPlace, pure: AddOp})
	register(opDef{op: SinOp, eager: execSin, infer: inferSin})
	register(opDef{op: SumOp, eager: execSum, infer: inferSum})
	register(opDef{op: LessThanOp, eager: execLessThan, infer: inferLessThan})
	register(opDef{op: IdentityOp, eager: execIdentity, infer: inferIdentity, isView: true})
	register(opDef{op: CloneOp, eager: execClone, infer: inferClone})
}
