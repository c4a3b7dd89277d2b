// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	"fmt"
	"math"

	"github.com/mayinchao/plant-identification-app/internal/tensor"
)

// Sqrt computes the element-wise square root.
func (cpu *CPUBackend) Sqrt(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unaryOp(x, "sqrt", math.Sqrt)
}

// Rsqrt computes the element-wise reciprocal square root.
func (cpu *CPUBackend) Rsqrt(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unaryOp(x, "rsqrt", func(v float64) float64 { return 1.0 / math.Sqrt(v) })
}

// ReLU zeroes negative elements.
func (cpu *CPUBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unaryOp(x, "relu", func(v float64) float64 { return math.Max(v, 0) })
}

// GELU applies the exact (erf-based) Gaussian error linear unit:
// gelu(x) = 0.5 * x * (1 + erf(x / sqrt(2))).
func (cpu *CPUBackend) GELU(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unaryOp(x, "gelu", func(v float64) float64 {
		return 0.5 * v * (1 + math.Erf(v/math.Sqrt2))
	})
}

// Sigmoid applies the logistic function.
func (cpu *CPUBackend) Sigmoid(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unaryOp(x, "sigmoid", func(v float64) float64 { return 1.0 / (1.0 + math.Exp(-v)) })
}

// Tanh applies the hyperbolic tangent.
func (cpu *CPUBackend) Tanh(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unaryOp(x, "tanh", math.Tanh)
}

// unaryOp applies f element-wise. Math is evaluated in float64 and rounded
// back to the tensor dtype, so float32 tensors see the same values on every
// platform.
func (cpu *CPUBackend) unaryOp(x *tensor.RawTensor, name string, f func(float64) float64) *tensor.RawTensor {
	out := cpu.alloc(x.Shape(), x.DType())

	switch x.DType() {
	case tensor.Float32:
		src, dst := x.AsFloat32(), out.AsFloat32()
		for i, v := range src {
			dst[i] = float32(f(float64(v)))
		}
	case tensor.Float64:
		src, dst := x.AsFloat64(), out.AsFloat64()
		for i, v := range src {
			dst[i] = f(v)
		}
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s", name, x.DType()))
	}
	return out
}
