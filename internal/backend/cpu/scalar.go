// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	"fmt"

	"github.com/mayinchao/plant-identification-app/internal/tensor"
)

// MulScalar multiplies every element by a scalar.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	return cpu.scalarOp(x, scalar, "mul")
}

// AddScalar adds a scalar to every element.
func (cpu *CPUBackend) AddScalar(x *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	return cpu.scalarOp(x, scalar, "add")
}

func (cpu *CPUBackend) scalarOp(x *tensor.RawTensor, scalar float64, op string) *tensor.RawTensor {
	out := cpu.alloc(x.Shape(), x.DType())

	switch x.DType() {
	case tensor.Float32:
		scalarKernel(out.AsFloat32(), x.AsFloat32(), float32(scalar), op)
	case tensor.Float64:
		scalarKernel(out.AsFloat64(), x.AsFloat64(), scalar, op)
	default:
		panic(fmt.Sprintf("%s scalar: unsupported dtype %s", op, x.DType()))
	}
	return out
}

func scalarKernel[T tensor.DType](dst, src []T, s T, op string) {
	switch op {
	case "mul":
		for i, v := range src {
			dst[i] = v * s
		}
	case "add":
		for i, v := range src {
			dst[i] = v + s
		}
	default:
		panic("unknown scalar op " + op)
	}
}
