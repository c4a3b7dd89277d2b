// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	"fmt"

	"github.com/mayinchao/plant-identification-app/internal/tensor"
)

// Add performs element-wise addition with broadcasting.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binaryOp(a, b, "add")
}

// Sub performs element-wise subtraction with broadcasting.
func (cpu *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binaryOp(a, b, "sub")
}

// Mul performs element-wise multiplication with broadcasting.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binaryOp(a, b, "mul")
}

// Div performs element-wise division with broadcasting.
func (cpu *CPUBackend) Div(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binaryOp(a, b, "div")
}

func (cpu *CPUBackend) binaryOp(a, b *tensor.RawTensor, op string) *tensor.RawTensor {
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("%s: dtype mismatch %s vs %s", op, a.DType(), b.DType()))
	}

	outShape, _, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", op, err))
	}
	out := cpu.alloc(outShape, a.DType())

	switch a.DType() {
	case tensor.Float32:
		binaryKernel(out.AsFloat32(), a.AsFloat32(), b.AsFloat32(), outShape, a.Shape(), b.Shape(), op)
	case tensor.Float64:
		binaryKernel(out.AsFloat64(), a.AsFloat64(), b.AsFloat64(), outShape, a.Shape(), b.Shape(), op)
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s", op, a.DType()))
	}
	return out
}

// binaryKernel applies op over the broadcast iteration space.
// The same-shape fast path avoids coordinate bookkeeping entirely.
func binaryKernel[T tensor.DType](dst, a, b []T, outShape, aShape, bShape tensor.Shape, op string) {
	var apply func(x, y T) T
	switch op {
	case "add":
		apply = func(x, y T) T { return x + y }
	case "sub":
		apply = func(x, y T) T { return x - y }
	case "mul":
		apply = func(x, y T) T { return x * y }
	case "div":
		apply = func(x, y T) T { return x / y }
	default:
		panic("unknown binary op " + op)
	}

	if aShape.Equal(bShape) {
		for i := range dst {
			dst[i] = apply(a[i], b[i])
		}
		return
	}

	aStrides := broadcastStrides(aShape, outShape)
	bStrides := broadcastStrides(bShape, outShape)

	ndim := len(outShape)
	coords := make([]int, ndim)
	aIdx, bIdx := 0, 0
	for i := range dst {
		dst[i] = apply(a[aIdx], b[bIdx])

		// Advance the multi-index, rightmost dimension first.
		for d := ndim - 1; d >= 0; d-- {
			coords[d]++
			aIdx += aStrides[d]
			bIdx += bStrides[d]
			if coords[d] < outShape[d] {
				break
			}
			coords[d] = 0
			aIdx -= aStrides[d] * outShape[d]
			bIdx -= bStrides[d] * outShape[d]
		}
	}
}

// broadcastStrides returns the per-output-dimension strides into a tensor of
// the given shape, with stride 0 where the input dimension is broadcast.
func broadcastStrides(shape, outShape tensor.Shape) []int {
	strides := shape.ComputeStrides()
	result := make([]int, len(outShape))
	offset := len(outShape) - len(shape)
	for i := range outShape {
		src := i - offset
		if src < 0 || shape[src] == 1 && outShape[i] != 1 {
			result[i] = 0
		} else {
			result[i] = strides[src]
		}
	}
	return result
}
