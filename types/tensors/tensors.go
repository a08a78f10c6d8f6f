// Copyright 2024-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tensors implements a dense host tensor: a multi-dimensional array with a Shape
// (DType + dimensions) and flat storage on the host memory.
//
// It is the concrete value type threaded through the eager executor of operators; the
// fake package provides the storage-less counterpart used for metadata inference.
//
// Tensors also carry the minimal autograd surface needed by deferred "not implemented"
// gradient errors: a requires-grad mark and an optional gradient hook invoked by Backward.
package tensors

import (
	"fmt"
	"reflect"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/flowops/types/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Tensor is a dense host tensor. Create them with FromShape, FromScalar,
// FromScalarAndDimensions or FromFlatDataAndDimensions.
type Tensor struct {
	shape shapes.Shape
	flat  any // slice of the Go type corresponding to shape.DType, len == shape.Size().

	requiresGrad bool
	gradFunc     func()
}

// FromShape returns a Tensor of the given shape, with the data zero-initialized.
func FromShape(shape shapes.Shape) *Tensor {
	if !shape.Ok() {
		exceptions.Panicf("tensors.FromShape: invalid shape %s", shape)
	}
	flatV := reflect.MakeSlice(reflect.SliceOf(shape.DType.GoType()), shape.Size(), shape.Size())
	return &Tensor{shape: shape, flat: flatV.Interface()}
}

// FromScalar returns a 0-dim (scalar) Tensor with the given value.
func FromScalar[T dtypes.Supported](value T) *Tensor {
	return FromScalarAndDimensions(value)
}

// FromScalarAndDimensions returns a Tensor of the given dimensions filled with the scalar value.
func FromScalarAndDimensions[T dtypes.Supported](value T, dimensions ...int) *Tensor {
	t := FromShape(shapes.Make(dtypes.FromGenericsType[T](), dimensions...))
	if flat, ok := t.flat.([]T); ok {
		for ii := range flat {
			flat[ii] = value
		}
		return t
	}
	// Go's int is not portable, the storage is int32 or int64 depending on the platform.
	flatV := reflect.ValueOf(t.flat)
	converted := reflect.ValueOf(value).Convert(t.shape.DType.GoType())
	for ii := 0; ii < flatV.Len(); ii++ {
		flatV.Index(ii).Set(converted)
	}
	return t
}

// FromFlatDataAndDimensions returns a Tensor with the given dimensions, initialized from
// the flat data slice, which must match the resulting size.
func FromFlatDataAndDimensions[T dtypes.Supported](data []T, dimensions ...int) *Tensor {
	shape := shapes.Make(dtypes.FromGenericsType[T](), dimensions...)
	if len(data) != shape.Size() {
		exceptions.Panicf("tensors.FromFlatDataAndDimensions: data size is %d, but dimensions size is %d", len(data), shape.Size())
	}
	t := FromShape(shape)
	if flat, ok := t.flat.([]T); ok {
		copy(flat, data)
		return t
	}
	flatV := reflect.ValueOf(t.flat)
	goType := t.shape.DType.GoType()
	for ii, v := range data {
		flatV.Index(ii).Set(reflect.ValueOf(v).Convert(goType))
	}
	return t
}

// Shape of the Tensor.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// DType of the Tensor's elements.
func (t *Tensor) DType() dtypes.DType { return t.shape.DType }

// Size is the number of elements, the product of the dimensions.
func (t *Tensor) Size() int { return t.shape.Size() }

// Memory returns the number of bytes used by the tensor storage.
func (t *Tensor) Memory() uintptr { return t.shape.Memory() }

// IsScalar returns whether the tensor is 0-dim.
func (t *Tensor) IsScalar() bool { return t.shape.IsScalar() }

// Clone returns a deep copy of the tensor data. The clone does not inherit the
// requires-grad mark nor the gradient hook.
func (t *Tensor) Clone() *Tensor {
	c := FromShape(t.shape.Clone())
	reflect.Copy(reflect.ValueOf(c.flat), reflect.ValueOf(t.flat))
	return c
}

// ConstFlatData calls accessFn with the flat data as a slice of the Go type matching
// the DType. The slice must not be modified -- see MutableFlatData.
func (t *Tensor) ConstFlatData(accessFn func(flat any)) {
	accessFn(t.flat)
}

// MutableFlatData calls accessFn with the flat data as a slice of the Go type matching
// the DType. The contents may be mutated in place.
func (t *Tensor) MutableFlatData(accessFn func(flat any)) {
	accessFn(t.flat)
}

// ConstFlatData is the generic version of Tensor.ConstFlatData. It panics if T doesn't
// match the tensor's DType.
func ConstFlatData[T dtypes.Supported](t *Tensor, accessFn func(flat []T)) {
	flat, ok := t.flat.([]T)
	if !ok {
		exceptions.Panicf("tensors.ConstFlatData[%T]: tensor has dtype %s", flat, t.DType())
	}
	accessFn(flat)
}

// MutableFlatData is the generic version of Tensor.MutableFlatData. It panics if T doesn't
// match the tensor's DType.
func MutableFlatData[T dtypes.Supported](t *Tensor, accessFn func(flat []T)) {
	flat, ok := t.flat.([]T)
	if !ok {
		exceptions.Panicf("tensors.MutableFlatData[%T]: tensor has dtype %s", flat, t.DType())
	}
	accessFn(flat)
}

// CopyFlatData returns a copy of the flat data as a slice of T, which must match the DType.
func CopyFlatData[T dtypes.Supported](t *Tensor) []T {
	var data []T
	ConstFlatData(t, func(flat []T) {
		data = make([]T, len(flat))
		copy(data, flat)
	})
	return data
}

// ToScalar returns the value of a 0-dim tensor. It panics if the tensor is not a scalar
// or if T doesn't match the DType.
func ToScalar[T dtypes.Supported](t *Tensor) T {
	if !t.IsScalar() {
		exceptions.Panicf("tensors.ToScalar: tensor is not a scalar, shape=%s", t.shape)
	}
	var value T
	ConstFlatData(t, func(flat []T) { value = flat[0] })
	return value
}

// Equal checks weak equality: same shape and same flat values.
func (t *Tensor) Equal(other *Tensor) bool {
	if t == other {
		return true
	}
	if t == nil || other == nil {
		return false
	}
	if !t.shape.Equal(other.shape) {
		return false
	}
	return reflect.DeepEqual(t.flat, other.flat)
}

// String prints the shape and a preview of the values.
func (t *Tensor) String() string {
	if t == nil {
		return "tensor(nil)"
	}
	const maxElements = 16
	if t.Size() <= maxElements {
		return fmt.Sprintf("%s: %v", t.shape, t.flat)
	}
	return fmt.Sprintf("%s: (%d elements)", t.shape, t.Size())
}

// SetRequiresGrad marks (or unmarks) the tensor as requiring gradients.
// It returns the tensor to allow chaining.
func (t *Tensor) SetRequiresGrad(requires bool) *Tensor {
	t.requiresGrad = requires
	return t
}

// RequiresGrad returns whether the tensor was marked as requiring gradients.
func (t *Tensor) RequiresGrad() bool { return t.requiresGrad }

// SetGradFunc installs the hook invoked by Backward. Operators that cannot provide
// gradients install a hook that fails with a clear error.
func (t *Tensor) SetGradFunc(fn func()) { t.gradFunc = fn }

// Backward requests the gradient computation for the tensor, invoking the installed hook.
func (t *Tensor) Backward() {
	if t.gradFunc == nil {
		panic(errors.Errorf("tensor %s has no gradient function to backward through", t.shape))
	}
	t.gradFunc()
}
