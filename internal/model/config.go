// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package model

import (
	"fmt"
)

// Variant selects one of the enumerated block compositions. Each variant
// fixes how many spectral blocks, bridges and attention blocks make up the
// trunk; the phase order (spectral, then bridges, then attention) never
// changes.
type Variant int

const (
	// VariantBase is the production composition: depth 8 as 4 spectral
	// blocks, 1 bridge, 3 attention blocks.
	VariantBase Variant = iota
	// VariantV2 shifts one block from the spectral phase to the attention
	// phase: 3 spectral, 1 bridge, 4 attention.
	VariantV2
	// VariantV3 is the deep composition: depth 12 as 2 spectral, 2 bridges,
	// 8 attention.
	VariantV3
	// VariantV4 drops the bridge phase entirely: 3 spectral, 9 attention.
	VariantV4
)

// String returns the variant name.
func (v Variant) String() string {
	switch v {
	case VariantBase:
		return "base"
	case VariantV2:
		return "v2"
	case VariantV3:
		return "v3"
	case VariantV4:
		return "v4"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

// ParseVariant maps a variant name to its value.
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "base", "":
		return VariantBase, nil
	case "v2":
		return VariantV2, nil
	case "v3":
		return VariantV3, nil
	case "v4":
		return VariantV4, nil
	default:
		return 0, fmt.Errorf("unknown model variant %q", s)
	}
}

// Layout is a variant's block composition.
type Layout struct {
	Spectral  int
	Bridges   int
	Attention int
}

// Depth returns the total number of trunk blocks.
func (l Layout) Depth() int {
	return l.Spectral + l.Bridges + l.Attention
}

// Layout returns the block composition for the variant.
func (v Variant) Layout() Layout {
	switch v {
	case VariantBase:
		return Layout{Spectral: 4, Bridges: 1, Attention: 3}
	case VariantV2:
		return Layout{Spectral: 3, Bridges: 1, Attention: 4}
	case VariantV3:
		return Layout{Spectral: 2, Bridges: 2, Attention: 8}
	case VariantV4:
		return Layout{Spectral: 3, Bridges: 0, Attention: 9}
	default:
		panic(fmt.Sprintf("unknown variant %d", int(v)))
	}
}

// ModelConfig holds every architectural hyperparameter. Configs are plain
// values; builders copy them, so a config can be shared and tweaked freely
// before construction.
type ModelConfig struct {
	Variant   Variant
	ImageSize int
	PatchSize int
	InChans   int

	NumClasses int
	EmbedDim   int
	MlpRatio   float64

	// RepresentationSize, when non-zero, inserts a Linear+Tanh pre-logits
	// projection before the classification head.
	RepresentationSize int

	// Regularization rates. Inference treats all of them as identity, but
	// they shape the block schedule and are part of the architecture.
	DropRate     float64
	DropPathRate float64
	DropCls      float64
	UniformDrop  bool
}

// DefaultConfig returns the production configuration: 224x224 RGB input,
// 16px patches, embed dim 384, 44 classes, base variant.
func DefaultConfig() ModelConfig {
	return ModelConfig{
		Variant:    VariantBase,
		ImageSize:  224,
		PatchSize:  16,
		InChans:    3,
		NumClasses: 44,
		EmbedDim:   384,
		MlpRatio:   2.0,
	}
}

// GridSize returns the per-side patch count. The token grid is always
// square.
func (c ModelConfig) GridSize() int {
	return c.ImageSize / c.PatchSize
}

// NumPatches returns the sequence length N = GridSize².
func (c ModelConfig) NumPatches() int {
	g := c.GridSize()
	return g * g
}

// FreqBins returns the number of retained frequency bins along the second
// spatial axis after the real FFT: GridSize/2 + 1.
func (c ModelConfig) FreqBins() int {
	return c.GridSize()/2 + 1
}

// Depth returns the trunk depth implied by the variant.
func (c ModelConfig) Depth() int {
	return c.Variant.Layout().Depth()
}

// validate panics on configs that cannot form a model. Bad hyperparameters
// are programmer errors, not runtime conditions.
func (c ModelConfig) validate() {
	if c.ImageSize <= 0 || c.PatchSize <= 0 {
		panic(fmt.Sprintf("model: invalid image %d / patch %d size", c.ImageSize, c.PatchSize))
	}
	if c.ImageSize%c.PatchSize != 0 {
		panic(fmt.Sprintf("model: image size %d not divisible by patch size %d", c.ImageSize, c.PatchSize))
	}
	if c.EmbedDim%8 != 0 {
		panic(fmt.Sprintf("model: embed dim %d must be divisible by 8 for the patch embedding stem", c.EmbedDim))
	}
	if c.NumClasses <= 0 {
		panic(fmt.Sprintf("model: invalid class count %d", c.NumClasses))
	}
	if c.InChans <= 0 {
		panic(fmt.Sprintf("model: invalid input channel count %d", c.InChans))
	}
}

// dropPathSchedule returns the per-block stochastic-depth rates: a linear
// ramp from 0 to DropPathRate across the depth, or a constant rate when
// UniformDrop is set.
func (c ModelConfig) dropPathSchedule() []float64 {
	depth := c.Depth()
	rates := make([]float64, depth)
	if c.UniformDrop || depth == 1 {
		for i := range rates {
			rates[i] = c.DropPathRate
		}
		return rates
	}
	for i := range rates {
		rates[i] = c.DropPathRate * float64(i) / float64(depth-1)
	}
	return rates
}
