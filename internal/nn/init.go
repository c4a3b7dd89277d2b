// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"math"
	"math/rand"

	"github.com/mayinchao/plant-identification-app/internal/tensor"
)

// TruncNormal initializes a tensor from N(0, std^2) truncated to
// [-2*std, 2*std], resampling values that fall outside the band.
//
// This is the standard vision-transformer weight init for linear layers,
// position embeddings and spectral gate weights.
func TruncNormal[B tensor.Backend](shape tensor.Shape, std float64, backend B) *tensor.Tensor[float32, B] {
	t := tensor.Zeros[float32](shape, backend)
	data := t.Data()
	bound := 2 * std
	for i := range data {
		for {
			v := rand.NormFloat64() * std
			if v >= -bound && v <= bound {
				data[i] = float32(v)
				break
			}
		}
	}
	return t
}

// Xavier (Glorot) uniform initialization:
// U(-sqrt(6/(fan_in+fan_out)), sqrt(6/(fan_in+fan_out))).
//
// Used for convolution kernels, where it keeps activation variance stable
// across layers.
func Xavier[B tensor.Backend](fanIn, fanOut int, shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	t := tensor.Zeros[float32](shape, backend)
	data := t.Data()
	for i := range data {
		//nolint:gosec // math/rand is fine for weight initialization
		data[i] = float32((rand.Float64()*2.0 - 1.0) * bound)
	}
	return t
}

// Zeros creates a zero-filled float32 tensor. Common for bias init.
func Zeros[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.Zeros[float32](shape, backend)
}

// Ones creates a one-filled float32 tensor. Common for norm scale init.
func Ones[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.Ones[float32](shape, backend)
}

// Randn creates a float32 tensor drawn from N(0, 1).
func Randn[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.Randn[float32](shape, backend)
}
