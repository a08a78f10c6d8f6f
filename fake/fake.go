// Copyright 2024-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fake implements placeholder tensors and the fake dispatch mode.
//
// A fake.Tensor carries only shape/dtype metadata, no storage. Running a computation on
// fake tensors under the fake mode infers the output shape/dtype contract without doing
// any real work. The fake mode owns a symbolic.ShapeEnv so integers whose value is
// unknown at inference time can be represented as unbacked symbolic integers.
package fake

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/flowops/dispatch"
	"github.com/gomlx/flowops/symbolic"
	"github.com/gomlx/flowops/types/shapes"
	"github.com/gomlx/flowops/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
)

// Tensor is a placeholder tensor: shape/dtype metadata with no real storage. It is used
// solely for metadata inference and discarded afterwards.
type Tensor struct {
	shape shapes.Shape
}

// FromShape returns a placeholder tensor of the given shape.
func FromShape(shape shapes.Shape) *Tensor {
	if !shape.Ok() {
		exceptions.Panicf("fake.FromShape: invalid shape %s", shape)
	}
	return &Tensor{shape: shape}
}

// FromConcrete returns a placeholder tensor with the concrete tensor's shape.
func FromConcrete(t *tensors.Tensor) *Tensor {
	return &Tensor{shape: t.Shape()}
}

// Shape of the placeholder.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// DType of the placeholder's elements.
func (t *Tensor) DType() dtypes.DType { return t.shape.DType }

// String implements fmt.Stringer.
func (t *Tensor) String() string { return fmt.Sprintf("fake%s", t.shape) }

// Mode is the fake dispatch layer. It owns the ShapeEnv used to allocate symbolic
// integers during metadata inference.
type Mode struct {
	env *symbolic.ShapeEnv
}

// NewMode returns a fake mode bound to the given shape environment.
func NewMode(env *symbolic.ShapeEnv) *Mode {
	if env == nil {
		env = symbolic.NewShapeEnv()
	}
	return &Mode{env: env}
}

// DispatchMode implements dispatch.Layer.
func (m *Mode) DispatchMode() dispatch.Mode { return dispatch.ModeFake }

// ShapeEnv returns the shape-tracking environment owned by the mode.
func (m *Mode) ShapeEnv() *symbolic.ShapeEnv { return m.env }

// Detect returns the outermost fake mode active on the stack, or nil if there is none.
func Detect(stack *dispatch.Stack) *Mode {
	layer := stack.Find(dispatch.ModeFake)
	if layer == nil {
		return nil
	}
	return layer.(*Mode)
}

// Fakify converts values to their placeholder form: concrete tensors become fake
// tensors, fake tensors and scalars pass through unchanged.
func Fakify(values []any) []any {
	out := make([]any, len(values))
	for ii, v := range values {
		if t, ok := v.(*tensors.Tensor); ok {
			out[ii] = FromConcrete(t)
			continue
		}
		out[ii] = v
	}
	return out
}

// ShapeOf returns the shape of a tensor-like value (concrete or fake). It returns
// ok=false for scalars and symbolic integers.
func ShapeOf(value any) (shape shapes.Shape, ok bool) {
	switch t := value.(type) {
	case *Tensor:
		return t.shape, true
	case *tensors.Tensor:
		return t.Shape(), true
	case shapes.HasShape:
		return t.Shape(), true
	}
	return shapes.Invalid(), false
}
