// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	"fmt"
	"math"

	"github.com/mayinchao/plant-identification-app/internal/tensor"
)

// SumDim sums along a dimension.
func (cpu *CPUBackend) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	return cpu.reduceOp(x, dim, keepDim, "sum")
}

// MeanDim averages along a dimension.
func (cpu *CPUBackend) MeanDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	return cpu.reduceOp(x, dim, keepDim, "mean")
}

// MaxDim takes the maximum along a dimension.
func (cpu *CPUBackend) MaxDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	return cpu.reduceOp(x, dim, keepDim, "max")
}

func (cpu *CPUBackend) reduceOp(x *tensor.RawTensor, dim int, keepDim bool, op string) *tensor.RawTensor {
	shape := x.Shape()
	ndim := len(shape)

	if dim < 0 {
		dim = ndim + dim
	}
	if dim < 0 || dim >= ndim {
		panic(fmt.Sprintf("%s: dimension %d out of range for tensor of rank %d", op, dim, ndim))
	}

	outShape := make(tensor.Shape, 0, ndim)
	for i, d := range shape {
		switch {
		case i != dim:
			outShape = append(outShape, d)
		case keepDim:
			outShape = append(outShape, 1)
		}
	}
	if len(outShape) == 0 {
		outShape = tensor.Shape{1}
	}

	out := cpu.alloc(outShape, x.DType())

	switch x.DType() {
	case tensor.Float32:
		reduceKernel(out.AsFloat32(), x.AsFloat32(), shape, dim, op)
	case tensor.Float64:
		reduceKernel(out.AsFloat64(), x.AsFloat64(), shape, dim, op)
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s", op, x.DType()))
	}
	return out
}

func reduceKernel[T tensor.DType](dst, src []T, shape tensor.Shape, dim int, op string) {
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

		// Rows are enumerated in row-major order of the remaining dims,
		// which is exactly the output layout.
		switch op {
		case "sum", "mean":
			var acc float64
			for i := 0; i < dimSize; i++ {
				acc += float64(src[baseIdx+i*dimStride])
			}
			if op == "mean" {
				acc /= float64(dimSize)
			}
			dst[row] = T(acc)
		case "max":
			maxVal := math.Inf(-1)
			for i := 0; i < dimSize; i++ {
				if v := float64(src[baseIdx+i*dimStride]); v > maxVal {
					maxVal = v
				}
			}
			dst[row] = T(maxVal)
		default:
			panic("unknown reduce op " + op)
		}
	}
}
