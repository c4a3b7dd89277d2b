// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"fmt"

	"github.com/mayinchao/plant-identification-app/internal/tensor"
)

// LayerNorm normalizes the last dimension of its input:
//
//	y = weight * (x - mean) / sqrt(var + eps) + bias
//
// mean and variance are computed per position over the feature dim, with
// biased (population) variance. The scale starts at one, the shift at zero.
type LayerNorm[B tensor.Backend] struct {
	features int
	eps      float64
	weight   *Parameter[B]
	bias     *Parameter[B]
	backend  B
}

// NewLayerNorm creates a LayerNorm over the trailing features dimension.
// eps is typically 1e-5 or 1e-6 depending on where the norm sits.
func NewLayerNorm[B tensor.Backend](features int, eps float64, backend B) *LayerNorm[B] {
	return &LayerNorm[B]{
		features: features,
		eps:      eps,
		weight:   NewParameter("weight", Ones[B](tensor.Shape{features}, backend)),
		bias:     NewParameter("bias", Zeros[B](tensor.Shape{features}, backend)),
		backend:  backend,
	}
}

// Forward normalizes the last dimension. Shape is preserved.
func (l *LayerNorm[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := x.Shape()
	if shape[len(shape)-1] != l.features {
		panic(fmt.Sprintf("layernorm: input %v does not end in %d features", shape, l.features))
	}

	mean := x.MeanDim(-1, true)
	centered := x.Sub(mean)
	variance := centered.Mul(centered).MeanDim(-1, true)
	inv := variance.AddScalar(l.eps).Rsqrt()

	return centered.Mul(inv).Mul(l.weight.Tensor()).Add(l.bias.Tensor())
}

// StateDict registers the layer's parameters under the given prefix.
func (l *LayerNorm[B]) StateDict(prefix string, dst map[string]*tensor.RawTensor) {
	dst[prefix+".weight"] = l.weight.Raw()
	dst[prefix+".bias"] = l.bias.Raw()
}
