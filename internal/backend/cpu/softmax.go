// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	"fmt"
	"math"

	"github.com/mayinchao/plant-identification-app/internal/tensor"
)

// Softmax computes softmax along the specified dimension.
// Softmax(x_i) = exp(x_i - max) / sum(exp(x_j - max)); the max subtraction
// keeps large logits from overflowing.
func (cpu *CPUBackend) Softmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	shape := x.Shape()
	ndim := len(shape)

	if dim < 0 {
		dim = ndim + dim
	}
	if dim < 0 || dim >= ndim {
		panic(fmt.Sprintf("softmax: dimension %d out of range for tensor of rank %d", dim, ndim))
	}

	out := cpu.alloc(shape, x.DType())

	switch x.DType() {
	case tensor.Float32:
		softmaxKernel(out.AsFloat32(), x.AsFloat32(), shape, dim)
	case tensor.Float64:
		softmaxKernel(out.AsFloat64(), x.AsFloat64(), shape, dim)
	default:
		panic(fmt.Sprintf("softmax: unsupported dtype %s", x.DType()))
	}
	return out
}

func softmaxKernel[T tensor.DType](dst, src []T, shape tensor.Shape, dim int) {
	strides := shape.ComputeStrides()
	dimSize := shape[dim]
	dimStride := strides[dim]

	numRows := 1
	for i := range shape {
		if i != dim {
			numRows *= shape[i]
		}
	}

	for row := 0; row < numRows; row++ {
		// Base flat index of this softmax row.
		baseIdx := 0
		remaining := row
		for i := len(shape) - 1; i >= 0; i-- {
			if i == dim {
				continue
			}
			coord := remaining % shape[i]
			remaining /= shape[i]
			baseIdx += coord * strides[i]
		}

		maxVal := math.Inf(-1)
		for i := 0; i < dimSize; i++ {
			if v := float64(src[baseIdx+i*dimStride]); v > maxVal {
				maxVal = v
			}
		}

		var sum float64
		for i := 0; i < dimSize; i++ {
			idx := baseIdx + i*dimStride
			expVal := math.Exp(float64(src[idx]) - maxVal)
			dst[idx] = T(expVal)
			sum += expVal
		}

		for i := 0; i < dimSize; i++ {
			idx := baseIdx + i*dimStride
			dst[idx] = T(float64(dst[idx]) / sum)
		}
	}
}
