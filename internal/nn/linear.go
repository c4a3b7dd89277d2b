// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"fmt"

	"github.com/mayinchao/plant-identification-app/internal/tensor"
)

// Linear implements a fully connected layer: y = x @ W.T + b.
//
// The weight matrix is stored [out_features, in_features] and the bias
// [out_features]. Inputs may have any number of leading dims; the transform
// applies to the last dim:
//
//	[..., in_features] -> [..., out_features]
//
// Weights are initialized with truncated normal (std 0.02), biases to zero.
type Linear[B tensor.Backend] struct {
	inFeatures  int
	outFeatures int
	weight      *Parameter[B]
	bias        *Parameter[B]
	backend     B
}

// NewLinear creates a Linear layer mapping inFeatures to outFeatures.
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, backend B) *Linear[B] {
	weight := NewParameter("weight", TruncNormal[B](tensor.Shape{outFeatures, inFeatures}, 0.02, backend))
	bias := NewParameter("bias", Zeros[B](tensor.Shape{outFeatures}, backend))
	return &Linear[B]{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      weight,
		bias:        bias,
		backend:     backend,
	}
}

// Forward applies the affine transform to the last dimension.
func (l *Linear[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := x.Shape()
	ndim := len(shape)
	if ndim < 1 || shape[ndim-1] != l.inFeatures {
		panic(fmt.Sprintf("linear: input %v does not end in %d features", shape, l.inFeatures))
	}

	flat := x
	if ndim != 2 {
		flat = x.Reshape(-1, l.inFeatures)
	}

	out := flat.MatMul(l.weight.Tensor().Transpose()).Add(l.bias.Tensor())

	if ndim != 2 {
		outShape := make([]int, ndim)
		copy(outShape, shape[:ndim-1])
		outShape[ndim-1] = l.outFeatures
		out = out.Reshape(outShape...)
	}
	return out
}

// InFeatures returns the input feature count.
func (l *Linear[B]) InFeatures() int { return l.inFeatures }

// OutFeatures returns the output feature count.
func (l *Linear[B]) OutFeatures() int { return l.outFeatures }

// StateDict registers the layer's parameters under the given prefix.
func (l *Linear[B]) StateDict(prefix string, dst map[string]*tensor.RawTensor) {
	dst[prefix+".weight"] = l.weight.Raw()
	dst[prefix+".bias"] = l.bias.Raw()
}
