// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	"fmt"

	"github.com/mayinchao/plant-identification-app/internal/parallel"
	"github.com/mayinchao/plant-identification-app/internal/tensor"
)

// MatMul performs 2D matrix multiplication: (M, K) @ (K, N) -> (M, N).
func (cpu *CPUBackend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	aShape, bShape := a.Shape(), b.Shape()
	if len(aShape) != 2 || len(bShape) != 2 {
		panic(fmt.Sprintf("matmul: expected 2D tensors, got %v and %v", aShape, bShape))
	}
	if aShape[1] != bShape[0] {
		panic(fmt.Sprintf("matmul: inner dimensions do not match: %v @ %v", aShape, bShape))
	}
	if a.DType() != tensor.Float32 || b.DType() != tensor.Float32 {
		panic(fmt.Sprintf("matmul: unsupported dtypes %s, %s", a.DType(), b.DType()))
	}

	m, k, n := aShape[0], aShape[1], bShape[1]
	out := cpu.alloc(tensor.Shape{m, n}, tensor.Float32)

	aData, bData, outData := a.AsFloat32(), b.AsFloat32(), out.AsFloat32()
	parallel.ForRange(m, 16, func(start, end int) {
		matmulFloat32(outData[start*n:end*n], aData[start*k:end*k], bData, end-start, k, n)
	})
	return out
}

// BatchMatMul performs batched matrix multiplication for 3D/4D tensors.
// For 3D: [B, M, K] @ [B, K, N] -> [B, M, N]
// For 4D: [B, H, M, K] @ [B, H, K, N] -> [B, H, M, N]
func (cpu *CPUBackend) BatchMatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	aShape, bShape := a.Shape(), b.Shape()
	if len(aShape) != len(bShape) || (len(aShape) != 3 && len(aShape) != 4) {
		panic(fmt.Sprintf("batchmatmul: expected matching 3D or 4D tensors, got %v and %v", aShape, bShape))
	}
	if a.DType() != tensor.Float32 || b.DType() != tensor.Float32 {
		panic(fmt.Sprintf("batchmatmul: unsupported dtypes %s, %s", a.DType(), b.DType()))
	}

	ndim := len(aShape)
	batch := 1
	for i := 0; i < ndim-2; i++ {
		if aShape[i] != bShape[i] {
			panic(fmt.Sprintf("batchmatmul: batch dimensions do not match: %v vs %v", aShape, bShape))
		}
		batch *= aShape[i]
	}

	m, k, n := aShape[ndim-2], aShape[ndim-1], bShape[ndim-1]
	if bShape[ndim-2] != k {
		panic(fmt.Sprintf("batchmatmul: inner dimensions do not match: %v @ %v", aShape, bShape))
	}

	outShape := aShape.Clone()
	outShape[ndim-1] = n
	out := cpu.alloc(outShape, tensor.Float32)

	aData, bData, outData := a.AsFloat32(), b.AsFloat32(), out.AsFloat32()
	parallel.For(batch, 1, func(i int) {
		matmulFloat32(outData[i*m*n:(i+1)*m*n], aData[i*m*k:(i+1)*m*k], bData[i*k*n:(i+1)*k*n], m, k, n)
	})
	return out
}

// matmulFloat32 is the shared inner kernel: dst = a @ b with row-major
// operands. The k-inner loop order keeps b accesses sequential.
func matmulFloat32(dst, a, b []float32, m, k, n int) {
	for i := range dst {
		dst[i] = 0
	}
	for row := 0; row < m; row++ {
		for inner := 0; inner < k; inner++ {
			av := a[row*k+inner]
			bRow := b[inner*n : (inner+1)*n]
			dRow := dst[row*n : (row+1)*n]
			for col := range bRow {
				dRow[col] += av * bRow[col]
			}
		}
	}
}
