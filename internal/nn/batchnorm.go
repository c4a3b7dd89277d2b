// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"fmt"

	"github.com/mayinchao/plant-identification-app/internal/tensor"
)

// BatchNorm2D normalizes each channel of a [N, C, H, W] map using running
// statistics:
//
//	y = weight * (x - running_mean) / sqrt(running_var + eps) + bias
//
// This is inference-mode batch norm: the running statistics are loaded from
// a checkpoint (or remain the identity defaults of mean 0, var 1) and are
// never updated by Forward.
type BatchNorm2D[B tensor.Backend] struct {
	channels    int
	eps         float64
	weight      *Parameter[B]
	bias        *Parameter[B]
	runningMean *Parameter[B]
	runningVar  *Parameter[B]
	backend     B
}

// NewBatchNorm2D creates a batch norm layer over C channels with the
// standard eps of 1e-5.
func NewBatchNorm2D[B tensor.Backend](channels int, backend B) *BatchNorm2D[B] {
	return &BatchNorm2D[B]{
		channels:    channels,
		eps:         1e-5,
		weight:      NewParameter("weight", Ones[B](tensor.Shape{channels}, backend)),
		bias:        NewParameter("bias", Zeros[B](tensor.Shape{channels}, backend)),
		runningMean: NewParameter("running_mean", Zeros[B](tensor.Shape{channels}, backend)),
		runningVar:  NewParameter("running_var", Ones[B](tensor.Shape{channels}, backend)),
		backend:     backend,
	}
}

// Forward normalizes per channel. Shape is preserved.
func (b *BatchNorm2D[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := x.Shape()
	if len(shape) != 4 || shape[1] != b.channels {
		panic(fmt.Sprintf("batchnorm2d: input %v does not match %d channels", shape, b.channels))
	}

	mean := b.runningMean.Tensor().Reshape(1, b.channels, 1, 1)
	inv := b.runningVar.Tensor().AddScalar(b.eps).Rsqrt().Reshape(1, b.channels, 1, 1)
	weight := b.weight.Tensor().Reshape(1, b.channels, 1, 1)
	bias := b.bias.Tensor().Reshape(1, b.channels, 1, 1)

	return x.Sub(mean).Mul(inv).Mul(weight).Add(bias)
}

// StateDict registers the layer's parameters and running statistics under
// the given prefix.
func (b *BatchNorm2D[B]) StateDict(prefix string, dst map[string]*tensor.RawTensor) {
	dst[prefix+".weight"] = b.weight.Raw()
	dst[prefix+".bias"] = b.bias.Raw()
	dst[prefix+".running_mean"] = b.runningMean.Raw()
	dst[prefix+".running_var"] = b.runningVar.Raw()
}
