// Copyright 2024-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/flowops/fake"
	"github.com/gomlx/flowops/symbolic"
	"github.com/gomlx/flowops/types/shapes"
	"github.com/gomlx/flowops/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
)

// Fake (metadata-inference) kernels. They mirror the dense kernels' shape/dtype rules on
// placeholder tensors, and fall back to the dense computation when every operand is a
// concrete native scalar.
//
// Arithmetic over symbolic integers yields a fresh unbacked symbol from the mode's
// ShapeEnv: the result value is integer-valued but unknown at inference time.

func inferConstant(_ *fake.Mode, args []any) []any {
	if ft, ok := args[0].(*fake.Tensor); ok {
		return []any{ft}
	}
	outs := execConstant(nil, args)
	return []any{fake.FromConcrete(outs[0].(*tensors.Tensor))}
}

func inferAdd(mode *fake.Mode, args []any) []any {
	lShape, lok := fake.ShapeOf(args[0])
	rShape, rok := fake.ShapeOf(args[1])
	switch {
	case lok && rok:
		if !lShape.Equal(rShape) {
			exceptions.Panicf("add: shapes %s and %s don't match", lShape, rShape)
		}
		return []any{fake.FromShape(lShape)}
	case lok:
		return []any{fake.FromShape(lShape)}
	case rok:
		return []any{fake.FromShape(rShape)}
	}
	if anySymInt(args) {
		return []any{mode.ShapeEnv().NewUnbacked()}
	}
	return []any{addScalars(args[0], args[1])}
}

func inferAddInPlace(_ *fake.Mode, args []any) []any {
	shape, ok := fake.ShapeOf(args[0])
	if !ok {
		exceptions.Panicf("add_inplace: target must be a tensor, got %T", args[0])
	}
	// Without storage there is nothing to write: the target placeholder is the result.
	if ft, isFake := args[0].(*fake.Tensor); isFake {
		return []any{ft}
	}
	return []any{fake.FromShape(shape)}
}

func inferSin(_ *fake.Mode, args []any) []any {
	if shape, ok := fake.ShapeOf(args[0]); ok {
		if !shape.DType.IsFloat() {
			exceptions.Panicf("sin: unsupported dtype %s, it requires a float dtype", shape.DType)
		}
		return []any{fake.FromShape(shape)}
	}
	return execSin(nil, args)
}

func inferSum(_ *fake.Mode, args []any) []any {
	if shape, ok := fake.ShapeOf(args[0]); ok {
		return []any{fake.FromShape(shapes.Make(shape.DType))}
	}
	return []any{args[0]}
}

func inferLessThan(_ *fake.Mode, args []any) []any {
	lShape, lok := fake.ShapeOf(args[0])
	rShape, rok := fake.ShapeOf(args[1])
	switch {
	case lok && rok:
		if !lShape.Equal(rShape) {
			exceptions.Panicf("less_than: shapes %s and %s don't match", lShape, rShape)
		}
		return []any{fake.FromShape(shapes.Make(dtypes.Bool, lShape.Dimensions...))}
	case lok:
		return []any{fake.FromShape(shapes.Make(dtypes.Bool, lShape.Dimensions...))}
	case rok:
		return []any{fake.FromShape(shapes.Make(dtypes.Bool, rShape.Dimensions...))}
	}
	if anySymInt(args) {
		// The truth value of a symbolic comparison is unknown, so it stays a placeholder.
		return []any{fake.FromShape(shapes.Make(dtypes.Bool))}
	}
	return []any{lessThanScalars(args[0], args[1])}
}

func inferIdentity(_ *fake.Mode, args []any) []any {
	return []any{args[0]}
}

func inferClone(_ *fake.Mode, args []any) []any {
	if shape, ok := fake.ShapeOf(args[0]); ok {
		return []any{fake.FromShape(shape)}
	}
	return []any{args[0]}
}

func anySymInt(args []any) bool {
	for _, arg := range args {
		if _, ok := arg.(*symbolic.SymInt); ok {
			return true
		}
	}
	return false
}
