// Copyright 2024-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops

import (
	"math"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/flowops/dispatch"
	"github.com/gomlx/flowops/types/tensors"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"
)

// Dense (eager) kernels. They are the reference semantics every other mode is compared
// against: fake inference must predict their shapes, captured graphs must re-execute to
// their values.
//
// Tensor kernels support Float16, Float32, Float64, Int32 and Int64 storage; Bool only
// where it makes sense (comparison outputs). Native Go scalars (int, float64, bool) are
// accepted alongside tensors, since loops carry them as plain values.

type number interface {
	constraints.Integer | constraints.Float
}

func execConstant(_ *dispatch.Stack, args []any) []any {
	switch v := args[0].(type) {
	case *tensors.Tensor:
		return []any{v}
	case float32:
		return []any{tensors.FromScalar(v)}
	case float64:
		return []any{tensors.FromScalar(v)}
	case int:
		return []any{tensors.FromScalar(v)}
	case int32:
		return []any{tensors.FromScalar(v)}
	case int64:
		return []any{tensors.FromScalar(v)}
	case bool:
		return []any{tensors.FromScalar(v)}
	}
	exceptions.Panicf("constant: unsupported literal type %T", args[0])
	return nil
}

func execAdd(_ *dispatch.Stack, args []any) []any {
	lhs, rhs := args[0], args[1]
	lt, lok := lhs.(*tensors.Tensor)
	rt, rok := rhs.(*tensors.Tensor)
	switch {
	case lok && rok:
		return []any{addTensors(lt, rt)}
	case lok:
		return []any{addTensorScalar(lt, rhs)}
	case rok:
		return []any{addTensorScalar(rt, lhs)}
	}
	return []any{addScalars(lhs, rhs)}
}

func execAddInPlace(_ *dispatch.Stack, args []any) []any {
	target, ok := args[0].(*tensors.Tensor)
	if !ok {
		exceptions.Panicf("add_inplace: target must be a tensor, got %T", args[0])
	}
	if delta, ok := args[1].(*tensors.Tensor); ok {
		if !target.Shape().Equal(delta.Shape()) {
			exceptions.Panicf("add_inplace: shapes %s and %s don't match", target.Shape(), delta.Shape())
		}
		target.MutableFlatData(func(dst any) {
			delta.ConstFlatData(func(src any) {
				switch d := dst.(type) {
				case []float32:
					accumulateSlices(d, src.([]float32))
				case []float64:
					accumulateSlices(d, src.([]float64))
				case []int32:
					accumulateSlices(d, src.([]int32))
				case []int64:
					accumulateSlices(d, src.([]int64))
				case []float16.Float16:
					s := src.([]float16.Float16)
					for ii := range d {
						d[ii] = float16.Fromfloat32(d[ii].Float32() + s[ii].Float32())
					}
				default:
					exceptions.Panicf("add_inplace: unsupported dtype %s", target.DType())
				}
			})
		})
		return []any{target}
	}
	target.MutableFlatData(func(dst any) {
		switch d := dst.(type) {
		case []float32:
			accumulateScalar(d, float32(scalarToFloat(args[1], "add_inplace")))
		case []float64:
			accumulateScalar(d, scalarToFloat(args[1], "add_inplace"))
		case []int32:
			accumulateScalar(d, int32(scalarToInt(args[1], "add_inplace")))
		case []int64:
			accumulateScalar(d, scalarToInt(args[1], "add_inplace"))
		case []float16.Float16:
			s := float32(scalarToFloat(args[1], "add_inplace"))
			for ii := range d {
				d[ii] = float16.Fromfloat32(d[ii].Float32() + s)
			}
		default:
			exceptions.Panicf("add_inplace: unsupported dtype %s", target.DType())
		}
	})
	return []any{target}
}

func execSin(_ *dispatch.Stack, args []any) []any {
	switch x := args[0].(type) {
	case *tensors.Tensor:
		return []any{sinTensor(x)}
	case float64:
		return []any{math.Sin(x)}
	case int:
		return []any{math.Sin(float64(x))}
	}
	exceptions.Panicf("sin: unsupported operand type %T", args[0])
	return nil
}

func execSum(_ *dispatch.Stack, args []any) []any {
	x, ok := args[0].(*tensors.Tensor)
	if !ok {
		// Sum of a native scalar is the scalar itself.
		switch args[0].(type) {
		case int, float64:
			return []any{args[0]}
		}
		exceptions.Panicf("sum: unsupported operand type %T", args[0])
	}
	var out *tensors.Tensor
	x.ConstFlatData(func(flat any) {
		switch f := flat.(type) {
		case []float32:
			out = tensors.FromScalar(sumSlice(f))
		case []float64:
			out = tensors.FromScalar(sumSlice(f))
		case []int32:
			out = tensors.FromScalar(sumSlice(f))
		case []int64:
			out = tensors.FromScalar(sumSlice(f))
		case []float16.Float16:
			var total float32
			for _, v := range f {
				total += v.Float32()
			}
			out = tensors.FromScalar(float16.Fromfloat32(total))
		default:
			exceptions.Panicf("sum: unsupported dtype %s", x.DType())
		}
	})
	return []any{out}
}

func execLessThan(_ *dispatch.Stack, args []any) []any {
	lhs, rhs := args[0], args[1]
	lt, lok := lhs.(*tensors.Tensor)
	rt, rok := rhs.(*tensors.Tensor)
	switch {
	case lok && rok:
		return []any{lessThanTensors(lt, rt)}
	case lok:
		return []any{lessThanTensorScalar(lt, rhs, false)}
	case rok:
		return []any{lessThanTensorScalar(rt, lhs, true)}
	}
	return []any{lessThanScalars(lhs, rhs)}
}

func execIdentity(_ *dispatch.Stack, args []any) []any {
	return []any{args[0]}
}

func execClone(_ *dispatch.Stack, args []any) []any {
	if t, ok := args[0].(*tensors.Tensor); ok {
		return []any{t.Clone()}
	}
	return []any{args[0]}
}

func addTensors(lhs, rhs *tensors.Tensor) *tensors.Tensor {
	if !lhs.Shape().Equal(rhs.Shape()) {
		exceptions.Panicf("add: shapes %s and %s don't match", lhs.Shape(), rhs.Shape())
	}
	dims := lhs.Shape().Dimensions
	var out *tensors.Tensor
	lhs.ConstFlatData(func(aflat any) {
		rhs.ConstFlatData(func(bflat any) {
			switch a := aflat.(type) {
			case []float32:
				out = tensors.FromFlatDataAndDimensions(addSlices(a, bflat.([]float32)), dims...)
			case []float64:
				out = tensors.FromFlatDataAndDimensions(addSlices(a, bflat.([]float64)), dims...)
			case []int32:
				out = tensors.FromFlatDataAndDimensions(addSlices(a, bflat.([]int32)), dims...)
			case []int64:
				out = tensors.FromFlatDataAndDimensions(addSlices(a, bflat.([]int64)), dims...)
			case []float16.Float16:
				b := bflat.([]float16.Float16)
				sums := make([]float16.Float16, len(a))
				for ii := range a {
					sums[ii] = float16.Fromfloat32(a[ii].Float32() + b[ii].Float32())
				}
				out = tensors.FromFlatDataAndDimensions(sums, dims...)
			default:
				exceptions.Panicf("add: unsupported dtype %s", lhs.DType())
			}
		})
	})
	return out
}

func addTensorScalar(t *tensors.Tensor, scalar any) *tensors.Tensor {
	dims := t.Shape().Dimensions
	var out *tensors.Tensor
	t.ConstFlatData(func(flat any) {
		switch f := flat.(type) {
		case []float32:
			out = tensors.FromFlatDataAndDimensions(addScalarSlice(f, float32(scalarToFloat(scalar, "add"))), dims...)
		case []float64:
			out = tensors.FromFlatDataAndDimensions(addScalarSlice(f, scalarToFloat(scalar, "add")), dims...)
		case []int32:
			out = tensors.FromFlatDataAndDimensions(addScalarSlice(f, int32(scalarToInt(scalar, "add"))), dims...)
		case []int64:
			out = tensors.FromFlatDataAndDimensions(addScalarSlice(f, scalarToInt(scalar, "add")), dims...)
		case []float16.Float16:
			s := float32(scalarToFloat(scalar, "add"))
			sums := make([]float16.Float16, len(f))
			for ii := range f {
				sums[ii] = float16.Fromfloat32(f[ii].Float32() + s)
			}
			out = tensors.FromFlatDataAndDimensions(sums, dims...)
		default:
			exceptions.Panicf("add: unsupported dtype %s", t.DType())
		}
	})
	return out
}

func addScalars(lhs, rhs any) any {
	switch l := lhs.(type) {
	case int:
		switch r := rhs.(type) {
		case int:
			return l + r
		case float64:
			return float64(l) + r
		}
	case float64:
		switch r := rhs.(type) {
		case int:
			return l + float64(r)
		case float64:
			return l + r
		}
	}
	exceptions.Panicf("add: unsupported operand types %T and %T", lhs, rhs)
	return nil
}

func sinTensor(t *tensors.Tensor) *tensors.Tensor {
	dims := t.Shape().Dimensions
	var out *tensors.Tensor
	t.ConstFlatData(func(flat any) {
		switch f := flat.(type) {
		case []float32:
			out = tensors.FromFlatDataAndDimensions(sinSlice(f), dims...)
		case []float64:
			out = tensors.FromFlatDataAndDimensions(sinSlice(f), dims...)
		case []float16.Float16:
			sines := make([]float16.Float16, len(f))
			for ii := range f {
				sines[ii] = float16.Fromfloat32(float32(math.Sin(float64(f[ii].Float32()))))
			}
			out = tensors.FromFlatDataAndDimensions(sines, dims...)
		default:
			exceptions.Panicf("sin: unsupported dtype %s, it requires a float dtype", t.DType())
		}
	})
	return out
}

func lessThanTensors(lhs, rhs *tensors.Tensor) *tensors.Tensor {
	if !lhs.Shape().Equal(rhs.Shape()) {
		exceptions.Panicf("less_than: shapes %s and %s don't match", lhs.Shape(), rhs.Shape())
	}
	dims := lhs.Shape().Dimensions
	var out *tensors.Tensor
	lhs.ConstFlatData(func(aflat any) {
		rhs.ConstFlatData(func(bflat any) {
			switch a := aflat.(type) {
			case []float32:
				out = tensors.FromFlatDataAndDimensions(lessThanSlices(a, bflat.([]float32)), dims...)
			case []float64:
				out = tensors.FromFlatDataAndDimensions(lessThanSlices(a, bflat.([]float64)), dims...)
			case []int32:
				out = tensors.FromFlatDataAndDimensions(lessThanSlices(a, bflat.([]int32)), dims...)
			case []int64:
				out = tensors.FromFlatDataAndDimensions(lessThanSlices(a, bflat.([]int64)), dims...)
			case []float16.Float16:
				b := bflat.([]float16.Float16)
				results := make([]bool, len(a))
				for ii := range a {
					results[ii] = a[ii].Float32() < b[ii].Float32()
				}
				out = tensors.FromFlatDataAndDimensions(results, dims...)
			default:
				exceptions.Panicf("less_than: unsupported dtype %s", lhs.DType())
			}
		})
	})
	return out
}

// lessThanTensorScalar compares a tensor against a native scalar. With reversed set it
// computes scalar < tensor instead.
func lessThanTensorScalar(t *tensors.Tensor, scalar any, reversed bool) *tensors.Tensor {
	dims := t.Shape().Dimensions
	var out *tensors.Tensor
	t.ConstFlatData(func(flat any) {
		switch f := flat.(type) {
		case []float32:
			out = tensors.FromFlatDataAndDimensions(lessThanScalarSlice(f, float32(scalarToFloat(scalar, "less_than")), reversed), dims...)
		case []float64:
			out = tensors.FromFlatDataAndDimensions(lessThanScalarSlice(f, scalarToFloat(scalar, "less_than"), reversed), dims...)
		case []int32:
			out = tensors.FromFlatDataAndDimensions(lessThanScalarSlice(f, int32(scalarToInt(scalar, "less_than")), reversed), dims...)
		case []int64:
			out = tensors.FromFlatDataAndDimensions(lessThanScalarSlice(f, scalarToInt(scalar, "less_than"), reversed), dims...)
		case []float16.Float16:
			s := float32(scalarToFloat(scalar, "less_than"))
			results := make([]bool, len(f))
			for ii := range f {
				if reversed {
					results[ii] = s < f[ii].Float32()
				} else {
					results[ii] = f[ii].Float32() < s
				}
			}
			out = tensors.FromFlatDataAndDimensions(results, dims...)
		default:
			exceptions.Panicf("less_than: unsupported dtype %s", t.DType())
		}
	})
	return out
}

func lessThanScalars(lhs, rhs any) bool {
	lf, lok := scalarAsFloat(lhs)
	rf, rok := scalarAsFloat(rhs)
	if !lok || !rok {
		exceptions.Panicf("less_than: unsupported operand types %T and %T", lhs, rhs)
	}
	return lf < rf
}

func scalarAsFloat(v any) (float64, bool) {
	switch s := v.(type) {
	case int:
		return float64(s), true
	case float64:
		return s, true
	}
	return 0, false
}

func scalarToFloat(v any, opName string) float64 {
	f, ok := scalarAsFloat(v)
	if !ok {
		exceptions.Panicf("%s: unsupported scalar operand type %T", opName, v)
	}
	return f
}

func scalarToInt(v any, opName string) int64 {
	s, ok := v.(int)
	if !ok {
		exceptions.Panicf("%s: integer tensor requires an int scalar operand, got %T", opName, v)
	}
	return int64(s)
}

func addSlices[T number](a, b []T) []T {
	out := make([]T, len(a))
	for ii := range a {
		out[ii] = a[ii] + b[ii]
	}
	return out
}

func addScalarSlice[T number](a []T, s T) []T {
	out := make([]T, len(a))
	for ii := range a {
		out[ii] = a[ii] + s
	}
	return out
}

func accumulateSlices[T number](dst, src []T) {
	for ii := range dst {
		dst[ii] += src[ii]
	}
}

func accumulateScalar[T number](dst []T, s T) {
	for ii := range dst {
		dst[ii] += s
	}
}

func sumSlice[T number](a []T) T {
	var total T
	for _, v := range a {
		total += v
	}
	return total
}

func sinSlice[T constraints.Float](a []T) []T {
	out := make([]T, len(a))
	for ii := range a {
		out[ii] = T(math.Sin(float64(a[ii])))
	}
	return out
}

func lessThanSlices[T number](a, b []T) []bool {
	out := make([]bool, len(a))
	for ii := range a {
		out[ii] = a[ii] < b[ii]
	}
	return out
}

func lessThanScalarSlice[T number](a []T, s T, reversed bool) []bool {
	out := make([]bool, len(a))
	for ii := range a {
		if reversed {
			out[ii] = s < a[ii]
		} else {
			out[ii] = a[ii] < s
		}
	}
	return out
}
