// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package model

import (
	"fmt"

	"github.com/mayinchao/plant-identification-app/internal/nn"
	"github.com/mayinchao/plant-identification-app/internal/tensor"
)

// Mlp is the two-layer feed-forward used inside every trunk block:
// Linear -> GELU -> dropout -> Linear -> dropout.
type Mlp[B tensor.Backend] struct {
	fc1  *nn.Linear[B]
	fc2  *nn.Linear[B]
	drop *nn.Dropout[B]
}

// NewMlp creates the feed-forward with the given hidden width.
func NewMlp[B tensor.Backend](dim, hidden int, drop float64, backend B) *Mlp[B] {
	return &Mlp[B]{
		fc1:  nn.NewLinear(dim, hidden, backend),
		fc2:  nn.NewLinear(hidden, dim, backend),
		drop: nn.NewDropout[B](drop),
	}
}

// Forward applies the feed-forward to the last dimension.
func (m *Mlp[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	x = m.drop.Forward(m.fc1.Forward(x).GELU())
	return m.drop.Forward(m.fc2.Forward(x))
}

// StateDict registers the feed-forward parameters under the given prefix.
func (m *Mlp[B]) StateDict(prefix string, dst map[string]*tensor.RawTensor) {
	m.fc1.StateDict(prefix+".fc1", dst)
	m.fc2.StateDict(prefix+".fc2", dst)
}

// SpectralBlock is the frequency-domain trunk block:
//
//	x + drop_path(mlp(norm2(filter(norm1(x)))))
//
// A single residual wraps the whole normalize-filter-normalize-mlp chain.
type SpectralBlock[B tensor.Backend] struct {
	norm1    *nn.LayerNorm[B]
	filter   *SpectralGatingFilter[B]
	norm2    *nn.LayerNorm[B]
	mlp      *Mlp[B]
	dropPath *nn.DropPath[B]
}

// NewSpectralBlock creates a spectral block over a square token grid.
func NewSpectralBlock[B tensor.Backend](dim, grid int, mlpRatio, drop, dropPath float64, backend B) *SpectralBlock[B] {
	return &SpectralBlock[B]{
		norm1:    nn.NewLayerNorm(dim, 1e-6, backend),
		filter:   NewSpectralGatingFilter(dim, grid, backend),
		norm2:    nn.NewLayerNorm(dim, 1e-6, backend),
		mlp:      NewMlp(dim, int(float64(dim)*mlpRatio), drop, backend),
		dropPath: nn.NewDropPath[B](dropPath),
	}
}

// Forward applies the block. Shape [B, N, C] is preserved.
func (b *SpectralBlock[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	y := b.mlp.Forward(b.norm2.Forward(b.filter.Forward(b.norm1.Forward(x))))
	return x.Add(b.dropPath.Forward(y))
}

// StateDict registers the block parameters under the given prefix.
func (b *SpectralBlock[B]) StateDict(prefix string, dst map[string]*tensor.RawTensor) {
	b.norm1.StateDict(prefix+".norm1", dst)
	b.filter.StateDict(prefix+".filter", dst)
	b.norm2.StateDict(prefix+".norm2", dst)
	b.mlp.StateDict(prefix+".mlp", dst)
}

// AttentionBlock is the spatial trunk block: reduced-resolution attention on
// the unnormalized tokens, then a pre-norm feed-forward, each with its own
// residual.
//
// norm1 takes no part in the forward pass; it exists so the block's
// parameter set lines up with trained checkpoints.
type AttentionBlock[B tensor.Backend] struct {
	grid     int
	norm1    *nn.LayerNorm[B]
	norm2    *nn.LayerNorm[B]
	mlp      *Mlp[B]
	attn     *OSRAttention[B]
	dropPath *nn.DropPath[B]
}

// NewAttentionBlock creates an attention block over a square token grid
// with 6 heads and spatial reduction 2.
func NewAttentionBlock[B tensor.Backend](dim, grid int, mlpRatio, drop, dropPath float64, backend B) *AttentionBlock[B] {
	return &AttentionBlock[B]{
		grid:     grid,
		norm1:    nn.NewLayerNorm(dim, 1e-6, backend),
		norm2:    nn.NewLayerNorm(dim, 1e-6, backend),
		mlp:      NewMlp(dim, int(float64(dim)*mlpRatio), drop, backend),
		attn:     NewOSRAttention(dim, 6, 2, drop, backend),
		dropPath: nn.NewDropPath[B](dropPath),
	}
}

// Forward applies the block. Shape [B, N, C] is preserved.
func (b *AttentionBlock[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := x.Shape()
	batch, n, c := shape[0], shape[1], shape[2]
	if n != b.grid*b.grid {
		panic(fmt.Sprintf("attention block: sequence length %d is not %d x %d", n, b.grid, b.grid))
	}

	x2d := x.Transpose(0, 2, 1).Reshape(batch, c, b.grid, b.grid)
	attnOut := b.attn.Forward(x2d, nil).
		Reshape(batch, c, n).
		Transpose(0, 2, 1)

	x = x.Add(b.dropPath.Forward(attnOut))
	return x.Add(b.dropPath.Forward(b.mlp.Forward(b.norm2.Forward(x))))
}

// StateDict registers the block parameters under the given prefix.
func (b *AttentionBlock[B]) StateDict(prefix string, dst map[string]*tensor.RawTensor) {
	b.norm1.StateDict(prefix+".norm1", dst)
	b.norm2.StateDict(prefix+".norm2", dst)
	b.mlp.StateDict(prefix+".mlp", dst)
	b.attn.StateDict(prefix+".attn", dst)
}
