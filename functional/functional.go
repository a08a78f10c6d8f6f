// Copyright 2024-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package functional implements the copy-on-write (functionalization) context.
//
// While a functional.Context is the active dispatch layer, tensor-like values are
// wrapped in functional.Tensor wrappers. Operators with in-place semantics never touch
// the wrapped base: they commit a freshly computed replacement with Tensor.Replace,
// which also marks the wrapper as mutated. View/identity operators return the input
// wrapper itself. Those two observable effects -- a mutated input wrapper, an output
// sharing a base with an input -- are what the static mutation and aliasing checks look
// for when probing a callable.
package functional

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/flowops/capture"
	"github.com/gomlx/flowops/dispatch"
	"github.com/gomlx/flowops/fake"
	"github.com/gomlx/flowops/types/shapes"
	"github.com/gomlx/flowops/types/tensors"
)

// Tensor is a copy-on-write wrapper around a tensor-like base value (a concrete
// *tensors.Tensor or a placeholder *fake.Tensor).
type Tensor struct {
	base    any
	mutated bool
}

// Base returns the currently wrapped value.
func (w *Tensor) Base() any { return w.base }

// Mutated reports whether an in-place operator committed a replacement base.
func (w *Tensor) Mutated() bool { return w.mutated }

// Replace commits newBase as the wrapper's value and marks the wrapper mutated. This is
// how in-place operators write under copy-on-write: the previous base is never modified.
func (w *Tensor) Replace(newBase any) {
	if newBase == nil {
		exceptions.Panicf("functional.Tensor.Replace: nil base")
	}
	w.base = newBase
	w.mutated = true
}

// Shape of the wrapped value.
func (w *Tensor) Shape() shapes.Shape {
	shape, ok := fake.ShapeOf(w.base)
	if !ok {
		exceptions.Panicf("functional.Tensor.Shape: base %T has no shape", w.base)
	}
	return shape
}

// String implements fmt.Stringer.
func (w *Tensor) String() string {
	if w.mutated {
		return fmt.Sprintf("functional(%v, mutated)", w.base)
	}
	return fmt.Sprintf("functional(%v)", w.base)
}

// WrapValue wraps a tensor-like value in a fresh copy-on-write wrapper; scalars,
// symbolic integers and already-wrapped values pass through unchanged.
func WrapValue(v any) any {
	switch v.(type) {
	case *tensors.Tensor, *fake.Tensor:
		return &Tensor{base: v}
	}
	return v
}

// UnwrapValue removes one level of copy-on-write wrapping; non-wrappers pass through.
func UnwrapValue(v any) any {
	if w, ok := v.(*Tensor); ok {
		return w.base
	}
	return v
}

// Context is the functionalization dispatch layer. It carries the pre-dispatch flag of
// the enclosing compilation, honored by the interpreters the functionalized callables
// run under.
type Context struct {
	preDispatch bool
}

// NewContext returns a functionalization context.
func NewContext(preDispatch bool) *Context {
	return &Context{preDispatch: preDispatch}
}

// DispatchMode implements dispatch.Layer.
func (ctx *Context) DispatchMode() dispatch.Mode { return dispatch.ModeFunctionalize }

// PreDispatch returns the enclosing pre-dispatch flag.
func (ctx *Context) PreDispatch() bool { return ctx.preDispatch }

// WrapAll wraps every tensor-like value of values in a fresh wrapper.
func (ctx *Context) WrapAll(values []any) []any {
	out := make([]any, len(values))
	for ii, v := range values {
		out[ii] = WrapValue(v)
	}
	return out
}

// UnwrapAll removes copy-on-write wrappers from every value of values.
func (ctx *Context) UnwrapAll(values []any) []any {
	out := make([]any, len(values))
	for ii, v := range values {
		out[ii] = UnwrapValue(v)
	}
	return out
}

// Functionalize returns fn rewrapped to run under copy-on-write semantics: inputs are
// wrapped, the context is pushed as the active layer for the duration of the call, and
// outputs are unwrapped at the boundary.
func (ctx *Context) Functionalize(fn capture.Fn) *Func {
	return &Func{ctx: ctx, fn: fn}
}

// Func is a functionalized callable. See Context.Functionalize.
type Func struct {
	ctx *Context
	fn  capture.Fn
}

// Context the callable is bound to.
func (f *Func) Context() *Context { return f.ctx }

// Call invokes the callable under copy-on-write semantics. Inputs are never mutated:
// in-place writes inside fn hit fresh wrapper bases only.
func (f *Func) Call(stack *dispatch.Stack, args ...any) []any {
	_, outs := f.probe(stack, args)
	return f.ctx.UnwrapAll(outs)
}

// probe runs fn once on fresh wrappers around inputs and returns both the input
// wrappers (for inspection) and the raw outputs.
func (f *Func) probe(stack *dispatch.Stack, inputs []any) (wrappers, outs []any) {
	wrappers = f.ctx.WrapAll(inputs)
	stack.Push(f.ctx)
	defer stack.Pop()
	outs = f.fn(stack, wrappers...)
	return
}

// HasPotentialInputMutation statically checks whether the callable might modify any of
// its inputs, by running it once under copy-on-write and inspecting the input wrappers.
func (f *Func) HasPotentialInputMutation(stack *dispatch.Stack, inputs []any) bool {
	wrappers, _ := f.probe(stack, inputs)
	for _, w := range wrappers {
		if wt, ok := w.(*Tensor); ok && wt.Mutated() {
			return true
		}
	}
	return false
}

// HasPotentialInputAlias statically checks whether any output of the callable might
// alias one of its inputs, by running it once under copy-on-write and comparing output
// bases against input bases.
func (f *Func) HasPotentialInputAlias(stack *dispatch.Stack, inputs []any) bool {
	wrappers, outs := f.probe(stack, inputs)
	bases := make(map[any]bool, len(wrappers))
	for _, w := range wrappers {
		if wt, ok := w.(*Tensor); ok {
			bases[wt.base] = true
		}
	}
	for _, out := range outs {
		switch v := out.(type) {
		case *Tensor:
			if bases[v.base] {
				return true
			}
		case *tensors.Tensor, *fake.Tensor:
			if bases[v] {
				return true
			}
		}
	}
	return false
}
