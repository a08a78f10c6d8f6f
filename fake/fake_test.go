// Copyright 2024-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fake

import (
	"testing"

	"github.com/gomlx/flowops/dispatch"
	"github.com/gomlx/flowops/symbolic"
	"github.com/gomlx/flowops/types/shapes"
	"github.com/gomlx/flowops/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTensor(t *testing.T) {
	shape := shapes.Make(dtypes.Float32, 2, 3)
	ft := FromShape(shape)
	assert.True(t, ft.Shape().Equal(shape))
	assert.Equal(t, dtypes.Float32, ft.DType())
	assert.Equal(t, "fake(Float32)[2 3]", ft.String())
	require.Panics(t, func() { FromShape(shapes.Invalid()) })

	concrete := tensors.FromFlatDataAndDimensions([]float32{1, 2, 3}, 3)
	assert.True(t, FromConcrete(concrete).Shape().Equal(concrete.Shape()))
}

func TestMode(t *testing.T) {
	mode := NewMode(nil)
	assert.Equal(t, dispatch.ModeFake, mode.DispatchMode())
	require.NotNil(t, mode.ShapeEnv())

	env := symbolic.NewShapeEnv()
	assert.Same(t, env, NewMode(env).ShapeEnv())
}

func TestDetect(t *testing.T) {
	stack := dispatch.NewStack()
	assert.Nil(t, Detect(stack))

	mode := NewMode(nil)
	stack.Push(mode)
	stack.Push(dispatch.ModeLayer(dispatch.ModeTracing))
	assert.Same(t, mode, Detect(stack))
}

func TestFakify(t *testing.T) {
	concrete := tensors.FromScalar(float32(1))
	already := FromShape(shapes.Make(dtypes.Int32, 2))
	values := Fakify([]any{concrete, already, 5, true})

	ft, ok := values[0].(*Tensor)
	require.True(t, ok)
	assert.True(t, ft.Shape().Equal(concrete.Shape()))
	assert.Same(t, already, values[1])
	assert.Equal(t, 5, values[2])
	assert.Equal(t, true, values[3])
}

func TestShapeOf(t *testing.T) {
	shape := shapes.Make(dtypes.Float64, 4)
	got, ok := ShapeOf(FromShape(shape))
	require.True(t, ok)
	assert.True(t, got.Equal(shape))

	got, ok = ShapeOf(tensors.FromShape(shape))
	require.True(t, ok)
	assert.True(t, got.Equal(shape))

	_, ok = ShapeOf(5)
	assert.False(t, ok)
	_, ok = ShapeOf(symbolic.NewShapeEnv().NewUnbacked())
	assert.False(t, ok)
}
