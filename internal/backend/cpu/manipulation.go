// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	"fmt"

	"github.com/mayinchao/plant-identification-app/internal/tensor"
)

// Reshape returns a view with a new shape. The element count must match; a
// single -1 dimension is inferred from the rest.
func (cpu *CPUBackend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	resolved := make(tensor.Shape, len(newShape))
	copy(resolved, newShape)

	inferIdx := -1
	known := 1
	for i, d := range resolved {
		switch {
		case d == -1:
			if inferIdx != -1 {
				panic(fmt.Sprintf("reshape: at most one dimension can be -1, got %v", newShape))
			}
			inferIdx = i
		case d <= 0:
			panic(fmt.Sprintf("reshape: invalid dimension %d in %v", d, newShape))
		default:
			known *= d
		}
	}
	if inferIdx != -1 {
		total := t.NumElements()
		if known == 0 || total%known != 0 {
			panic(fmt.Sprintf("reshape: cannot infer dimension for %v from %d elements", newShape, t.NumElements()))
		}
		resolved[inferIdx] = total / known
	}

	return t.WithShape(resolved)
}

// Transpose permutes dimensions and materializes the result contiguously.
// With no axes given, the last two dimensions are swapped.
func (cpu *CPUBackend) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	shape := t.Shape()
	ndim := len(shape)

	if len(axes) == 0 {
		if ndim < 2 {
			panic(fmt.Sprintf("transpose: tensor of rank %d has no trailing pair to swap", ndim))
		}
		axes = make([]int, ndim)
		for i := range axes {
			axes[i] = i
		}
		axes[ndim-2], axes[ndim-1] = axes[ndim-1], axes[ndim-2]
	}
	if len(axes) != ndim {
		panic(fmt.Sprintf("transpose: got %d axes for tensor of rank %d", len(axes), ndim))
	}

	seen := make([]bool, ndim)
	outShape := make(tensor.Shape, ndim)
	for i, ax := range axes {
		if ax < 0 {
			ax = ndim + ax
			axes[i] = ax
		}
		if ax < 0 || ax >= ndim || seen[ax] {
			panic(fmt.Sprintf("transpose: invalid axes %v for rank %d", axes, ndim))
		}
		seen[ax] = true
		outShape[i] = shape[ax]
	}

	out := cpu.alloc(outShape, t.DType())

	// Walk the output in row-major order; srcStrides[i] is the input stride
	// of the axis that output dim i came from.
	srcStrides := make([]int, ndim)
	inStrides := shape.ComputeStrides()
	for i, ax := range axes {
		srcStrides[i] = inStrides[ax]
	}

	switch t.DType() {
	case tensor.Float32:
		permuteKernel(out.AsFloat32(), t.AsFloat32(), outShape, srcStrides)
	case tensor.Float64:
		permuteKernel(out.AsFloat64(), t.AsFloat64(), outShape, srcStrides)
	default:
		panic(fmt.Sprintf("transpose: unsupported dtype %s", t.DType()))
	}
	return out
}

func permuteKernel[T tensor.DType](dst, src []T, outShape tensor.Shape, srcStrides []int) {
	ndim := len(outShape)
	coords := make([]int, ndim)
	srcIdx := 0

	for i := range dst {
		dst[i] = src[srcIdx]

		for d := ndim - 1; d >= 0; d-- {
			coords[d]++
			srcIdx += srcStrides[d]
			if coords[d] < outShape[d] {
				break
			}
			coords[d] = 0
			srcIdx -= outShape[d] * srcStrides[d]
		}
	}
}

// Cat concatenates tensors along a dimension. All inputs must share dtype and
// every dimension except dim.
func (cpu *CPUBackend) Cat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	if len(tensors) == 0 {
		panic("cat: no tensors to concatenate")
	}

	first := tensors[0]
	shape := first.Shape()
	ndim := len(shape)
	if dim < 0 {
		dim = ndim + dim
	}
	if dim < 0 || dim >= ndim {
		panic(fmt.Sprintf("cat: dimension %d out of range for tensor of rank %d", dim, ndim))
	}

	catSize := 0
	for _, t := range tensors {
		ts := t.Shape()
		if len(ts) != ndim || t.DType() != first.DType() {
			panic(fmt.Sprintf("cat: incompatible tensor %v (%s) with %v (%s)", ts, t.DType(), shape, first.DType()))
		}
		for i, d := range ts {
			if i != dim && d != shape[i] {
				panic(fmt.Sprintf("cat: shapes %v and %v differ outside dim %d", shape, ts, dim))
			}
		}
		catSize += ts[dim]
	}

	outShape := shape.Clone()
	outShape[dim] = catSize
	out := cpu.alloc(outShape, first.DType())

	// Everything before dim forms the outer loop; everything from dim on is
	// a contiguous block that can be copied per source.
	outer := 1
	for i := 0; i < dim; i++ {
		outer *= shape[i]
	}
	inner := 1
	for i := dim + 1; i < ndim; i++ {
		inner *= shape[i]
	}

	outData := out.Data()
	elemSize := first.DType().Size()
	outBlock := catSize * inner * elemSize

	offset := 0
	for _, t := range tensors {
		srcData := t.Data()
		srcBlock := t.Shape()[dim] * inner * elemSize
		for o := 0; o < outer; o++ {
			copy(outData[o*outBlock+offset:], srcData[o*srcBlock:(o+1)*srcBlock])
		}
		offset += srcBlock
	}
	return out
}

// Chunk splits a tensor into n equal parts along dim. The dimension must be
// divisible by n.
func (cpu *CPUBackend) Chunk(x *tensor.RawTensor, n, dim int) []*tensor.RawTensor {
	shape := x.Shape()
	ndim := len(shape)
	if dim < 0 {
		dim = ndim + dim
	}
	if dim < 0 || dim >= ndim {
		panic(fmt.Sprintf("chunk: dimension %d out of range for tensor of rank %d", dim, ndim))
	}
	if n <= 0 || shape[dim]%n != 0 {
		panic(fmt.Sprintf("chunk: cannot split dimension of size %d into %d equal parts", shape[dim], n))
	}

	partShape := shape.Clone()
	partShape[dim] = shape[dim] / n

	outer := 1
	for i := 0; i < dim; i++ {
		outer *= shape[i]
	}
	inner := 1
	for i := dim + 1; i < ndim; i++ {
		inner *= shape[i]
	}

	elemSize := x.DType().Size()
	srcData := x.Data()
	srcBlock := shape[dim] * inner * elemSize
	partBlock := partShape[dim] * inner * elemSize

	parts := make([]*tensor.RawTensor, n)
	for p := 0; p < n; p++ {
		part := cpu.alloc(partShape, x.DType())
		dstData := part.Data()
		for o := 0; o < outer; o++ {
			copy(dstData[o*partBlock:(o+1)*partBlock], srcData[o*srcBlock+p*partBlock:])
		}
		parts[p] = part
	}
	return parts
}

// Unsqueeze inserts a size-1 dimension at dim. Zero-copy view.
func (cpu *CPUBackend) Unsqueeze(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	shape := x.Shape()
	ndim := len(shape)
	if dim < 0 {
		dim = ndim + 1 + dim
	}
	if dim < 0 || dim > ndim {
		panic(fmt.Sprintf("unsqueeze: dimension %d out of range for tensor of rank %d", dim, ndim))
	}

	newShape := make(tensor.Shape, 0, ndim+1)
	newShape = append(newShape, shape[:dim]...)
	newShape = append(newShape, 1)
	newShape = append(newShape, shape[dim:]...)
	return x.WithShape(newShape)
}
