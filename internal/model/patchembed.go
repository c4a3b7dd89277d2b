// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package model

import (
	"fmt"

	"github.com/mayinchao/plant-identification-app/internal/nn"
	"github.com/mayinchao/plant-identification-app/internal/tensor"
)

// PatchEmbed turns a [B, C, S, S] image into a [B, N, embedDim] token
// sequence through a two-stage convolutional stem:
//
//	stage1: conv inChans -> embedDim/8, k3 s2 p1, then GELU (halves the map)
//	stage2: depthwise conv k8 s8, then pointwise conv embedDim/8 -> embedDim
//
// The two stages together stride by 16, so the token grid is S/16 per side.
type PatchEmbed[B tensor.Backend] struct {
	imgSize    int
	numPatches int

	stage1 *nn.Conv2D[B]
	stage2 *nn.Conv2D[B] // depthwise
	proj   *nn.Conv2D[B] // pointwise
}

// NewPatchEmbed creates the embedding stem. embedDim must be divisible by 8.
func NewPatchEmbed[B tensor.Backend](imgSize, patchSize, inChans, embedDim int, backend B) *PatchEmbed[B] {
	grid := imgSize / patchSize
	stem := embedDim / 8
	return &PatchEmbed[B]{
		imgSize:    imgSize,
		numPatches: grid * grid,
		stage1:     nn.NewConv2D(inChans, stem, 3, nn.Conv2DOptions{Stride: 2, Padding: 1}, backend),
		stage2:     nn.NewConv2D(stem, stem, 8, nn.Conv2DOptions{Stride: 8, Groups: stem}, backend),
		proj:       nn.NewConv2D(stem, embedDim, 1, nn.Conv2DOptions{}, backend),
	}
}

// NumPatches returns the token count N produced per image.
func (p *PatchEmbed[B]) NumPatches() int {
	return p.numPatches
}

// Forward embeds the image batch.
//
// Input shape: [B, C, S, S] with S the configured image size.
// Output shape: [B, N, embedDim].
func (p *PatchEmbed[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := x.Shape()
	if len(shape) != 4 || shape[2] != p.imgSize || shape[3] != p.imgSize {
		panic(fmt.Sprintf("patch embed: input %v does not match image size %d", shape, p.imgSize))
	}

	y := p.stage1.Forward(x).GELU()
	y = p.proj.Forward(p.stage2.Forward(y))

	// [B, embedDim, g, g] -> [B, N, embedDim]
	out := y.Shape()
	return y.Reshape(out[0], out[1], out[2]*out[3]).Transpose(0, 2, 1)
}

// StateDict registers the stem parameters under the given prefix. The
// numeric suffixes mirror the stage stacks' positions in the checkpoint
// layout (stage1 holds its activation at index 1, which has no parameters).
func (p *PatchEmbed[B]) StateDict(prefix string, dst map[string]*tensor.RawTensor) {
	p.stage1.StateDict(prefix+".stage1.0", dst)
	p.stage2.StateDict(prefix+".stage2.0", dst)
	p.proj.StateDict(prefix+".stage2.1", dst)
}
