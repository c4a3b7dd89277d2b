// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package model

import (
	"fmt"
	"math"

	"github.com/mayinchao/plant-identification-app/internal/nn"
	"github.com/mayinchao/plant-identification-app/internal/tensor"
)

// OSRAttention is multi-head attention over a [B, C, H, W] map with a
// spatially reduced key/value path: keys and values are computed from the
// input downsampled by srRatio (average pool followed by a small depthwise
// conv stack), which shrinks the attention matrix from N×N to N×(N/sr²).
//
// Queries come from a 1x1 conv on the full-resolution input. A depthwise
// "local" conv is added residually to the reduced map before the kv
// projection, restoring some locality lost to the pooling.
type OSRAttention[B tensor.Backend] struct {
	dim      int
	numHeads int
	scale    float64
	srRatio  int

	q  *nn.Conv2D[B]
	kv *nn.Conv2D[B]

	// Reduction stack, applied only when srRatio > 1. The field names carry
	// the stack positions used by the checkpoint layout (pooling holds
	// index 0 and the activation index 3; neither has parameters).
	sr1 *nn.Conv2D[B]      // depthwise 3x3, no bias
	sr2 *nn.BatchNorm2D[B] //
	sr4 *nn.Conv2D[B]      // depthwise 1x1, no bias
	sr5 *nn.BatchNorm2D[B] //

	localConv *nn.Conv2D[B]
	attnDrop  *nn.Dropout[B]

	backend B
}

// NewOSRAttention creates the attention layer. dim must be divisible by
// numHeads.
func NewOSRAttention[B tensor.Backend](dim, numHeads, srRatio int, attnDrop float64, backend B) *OSRAttention[B] {
	if dim%numHeads != 0 {
		panic(fmt.Sprintf("osr attention: dim %d not divisible by %d heads", dim, numHeads))
	}
	headDim := dim / numHeads

	a := &OSRAttention[B]{
		dim:       dim,
		numHeads:  numHeads,
		scale:     1.0 / math.Sqrt(float64(headDim)),
		srRatio:   srRatio,
		q:         nn.NewConv2D(dim, dim, 1, nn.Conv2DOptions{}, backend),
		kv:        nn.NewConv2D(dim, 2*dim, 1, nn.Conv2DOptions{}, backend),
		localConv: nn.NewConv2D(dim, dim, 3, nn.Conv2DOptions{Padding: 1, Groups: dim}, backend),
		attnDrop:  nn.NewDropout[B](attnDrop),
		backend:   backend,
	}
	if srRatio > 1 {
		a.sr1 = nn.NewConv2D(dim, dim, 3, nn.Conv2DOptions{Padding: 1, Groups: dim, NoBias: true}, backend)
		a.sr2 = nn.NewBatchNorm2D(dim, backend)
		a.sr4 = nn.NewConv2D(dim, dim, 1, nn.Conv2DOptions{Groups: dim, NoBias: true}, backend)
		a.sr5 = nn.NewBatchNorm2D(dim, backend)
	}
	return a
}

// reduce downsamples the input for the key/value path.
func (a *OSRAttention[B]) reduce(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if a.srRatio <= 1 {
		return x
	}
	raw := a.backend.AvgPool2D(x.Raw(), a.srRatio, a.srRatio)
	y := tensor.New[float32, B](raw, a.backend)
	y = a.sr2.Forward(a.sr1.Forward(y)).ReLU()
	return a.sr5.Forward(a.sr4.Forward(y))
}

// Forward computes attention over the map. Shape [B, C, H, W] is preserved.
// relativePos, when non-nil, is added to the attention logits, resized
// bicubically if its trailing dims disagree with the logit shape.
func (a *OSRAttention[B]) Forward(x, relativePos *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := x.Shape()
	if len(shape) != 4 || shape[1] != a.dim {
		panic(fmt.Sprintf("osr attention: input %v does not match dim %d", shape, a.dim))
	}
	batch, h, w := shape[0], shape[2], shape[3]
	n := h * w
	headDim := a.dim / a.numHeads

	// Queries: [B, heads, N, headDim].
	q := a.q.Forward(x).
		Reshape(batch, a.numHeads, headDim, n).
		Transpose(0, 1, 3, 2)

	// Reduced keys/values with the residual local conv.
	kvIn := a.reduce(x)
	kvIn = a.localConv.Forward(kvIn).Add(kvIn)
	parts := a.kv.Forward(kvIn).Chunk(2, 1)
	nr := kvIn.Shape()[2] * kvIn.Shape()[3]

	k := parts[0].Reshape(batch, a.numHeads, headDim, nr) // [B, heads, headDim, Nr]
	v := parts[1].Reshape(batch, a.numHeads, headDim, nr).
		Transpose(0, 1, 3, 2) // [B, heads, Nr, headDim]

	attn := q.BatchMatMul(k).MulScalar(a.scale) // [B, heads, N, Nr]
	if relativePos != nil {
		rp := relativePos
		rpShape := rp.Shape()
		if rpShape[len(rpShape)-2] != n || rpShape[len(rpShape)-1] != nr {
			rp = rp.ResizeBicubic(n, nr)
		}
		attn = attn.Add(rp)
	}
	attn = a.attnDrop.Forward(attn.Softmax(-1))

	// [B, heads, N, headDim] -> [B, heads, headDim, N] -> [B, C, H, W]
	out := attn.BatchMatMul(v)
	return out.Transpose(0, 1, 3, 2).Reshape(batch, a.dim, h, w)
}

// StateDict registers the layer's parameters under the given prefix.
func (a *OSRAttention[B]) StateDict(prefix string, dst map[string]*tensor.RawTensor) {
	a.q.StateDict(prefix+".q", dst)
	a.kv.StateDict(prefix+".kv", dst)
	if a.srRatio > 1 {
		a.sr1.StateDict(prefix+".sr.1", dst)
		a.sr2.StateDict(prefix+".sr.2", dst)
		a.sr4.StateDict(prefix+".sr.4", dst)
		a.sr5.StateDict(prefix+".sr.5", dst)
	}
	a.localConv.StateDict(prefix+".local_conv", dst)
}
