// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package model

import (
	"fmt"

	"github.com/mayinchao/plant-identification-app/internal/nn"
	"github.com/mayinchao/plant-identification-app/internal/tensor"
)

// FreqTimeBridge hands the token stream from the frequency phase to the
// spatial phase: it filters the normalized tokens spectrally, refines the
// result with the parallel channel/spatial attention module, projects it
// back to the token dim, and adds it to the input scaled by a learned gate:
//
//	x + proj(attn(spectral(norm(x)))) * sigmoid(alpha)
//
// alpha starts at 0.5 so the bridge initially contributes about 62% of its
// branch.
type FreqTimeBridge[B tensor.Backend] struct {
	grid int

	norm       *nn.LayerNorm[B]
	spectral   *SpectralGatingFilter[B]
	attnModule *AttentionModule[B]
	proj       *nn.Linear[B]
	alpha      *nn.Parameter[B]
}

// NewFreqTimeBridge creates a bridge over a square token grid.
func NewFreqTimeBridge[B tensor.Backend](dim, grid int, backend B) *FreqTimeBridge[B] {
	alpha := nn.Zeros[B](tensor.Shape{1}, backend)
	alpha.Data()[0] = 0.5
	return &FreqTimeBridge[B]{
		grid:       grid,
		norm:       nn.NewLayerNorm(dim, 1e-5, backend),
		spectral:   NewSpectralGatingFilter(dim, grid, backend),
		attnModule: NewAttentionModule(dim, backend),
		proj:       nn.NewLinear(dim, dim, backend),
		alpha:      nn.NewParameter("alpha", alpha),
	}
}

// Forward applies the bridge. Shape [B, N, C] is preserved.
func (br *FreqTimeBridge[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := x.Shape()
	batch, n, c := shape[0], shape[1], shape[2]
	if n != br.grid*br.grid {
		panic(fmt.Sprintf("bridge: sequence length %d is not %d x %d", n, br.grid, br.grid))
	}

	filtered := br.spectral.Forward(br.norm.Forward(x))

	x2d := filtered.Transpose(0, 2, 1).Reshape(batch, c, br.grid, br.grid)
	refined := br.attnModule.Forward(x2d).
		Reshape(batch, c, n).
		Transpose(0, 2, 1)

	gate := br.alpha.Tensor().Sigmoid()
	return x.Add(br.proj.Forward(refined).Mul(gate))
}

// StateDict registers the bridge parameters under the given prefix.
func (br *FreqTimeBridge[B]) StateDict(prefix string, dst map[string]*tensor.RawTensor) {
	dst[prefix+".alpha"] = br.alpha.Raw()
	br.norm.StateDict(prefix+".norm", dst)
	br.spectral.StateDict(prefix+".spectral", dst)
	br.attnModule.StateDict(prefix+".attn_module", dst)
	br.proj.StateDict(prefix+".proj", dst)
}
