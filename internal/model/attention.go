// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package model

import (
	"github.com/mayinchao/plant-identification-app/internal/nn"
	"github.com/mayinchao/plant-identification-app/internal/tensor"
)

// ChannelAttention rescales each channel by a gate derived from its global
// average: GAP -> grouped 1x1 reduce conv -> ReLU -> 1x1 expand conv ->
// sigmoid. The reduction ratio is 4.
type ChannelAttention[B tensor.Backend] struct {
	channels   int
	convReduce *nn.Conv2D[B]
	convExpand *nn.Conv2D[B]
}

// NewChannelAttention creates a channel gate over the given channel count.
// channels must be divisible by reduction.
func NewChannelAttention[B tensor.Backend](channels, reduction int, backend B) *ChannelAttention[B] {
	reduced := channels / reduction
	return &ChannelAttention[B]{
		channels:   channels,
		convReduce: nn.NewConv2D(channels, reduced, 1, nn.Conv2DOptions{Groups: reduced}, backend),
		convExpand: nn.NewConv2D(reduced, channels, 1, nn.Conv2DOptions{}, backend),
	}
}

// Forward gates the input channels. Shape [B, C, H, W] is preserved.
func (a *ChannelAttention[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	// Global average pool to [B, C, 1, 1].
	y := x.MeanDim(-1, true).MeanDim(-2, true)
	y = a.convReduce.Forward(y).ReLU()
	y = a.convExpand.Forward(y)
	return x.Mul(y.Sigmoid())
}

// StateDict registers the module's parameters under the given prefix.
func (a *ChannelAttention[B]) StateDict(prefix string, dst map[string]*tensor.RawTensor) {
	a.convReduce.StateDict(prefix+".conv_reduce", dst)
	a.convExpand.StateDict(prefix+".conv_expand", dst)
}

// SpatialAttention extracts local spatial features with a normalized
// depthwise convolution, then gates each pixel by a mask computed from the
// channel-wise mean and max.
//
// The gate multiplies the normalized features, not the raw input: the
// depthwise conv + BatchNorm output is both the mask source and the gated
// signal.
type SpatialAttention[B tensor.Backend] struct {
	dwConv  *nn.Conv2D[B]
	bn      *nn.BatchNorm2D[B]
	convAtt *nn.Conv2D[B]
}

// NewSpatialAttention creates a spatial gate with the given depthwise kernel
// size.
func NewSpatialAttention[B tensor.Backend](channels, kernelSize int, backend B) *SpatialAttention[B] {
	return &SpatialAttention[B]{
		dwConv:  nn.NewConv2D(channels, channels, kernelSize, nn.Conv2DOptions{Padding: kernelSize / 2, Groups: channels}, backend),
		bn:      nn.NewBatchNorm2D(channels, backend),
		convAtt: nn.NewConv2D(2, 1, 3, nn.Conv2DOptions{Padding: 1, NoBias: true}, backend),
	}
}

// Forward gates the normalized features. Shape [B, C, H, W] is preserved.
func (a *SpatialAttention[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	x = a.bn.Forward(a.dwConv.Forward(x))

	avg := x.MeanDim(1, true) // [B, 1, H, W]
	max := x.MaxDim(1, true)  // [B, 1, H, W]
	att := a.convAtt.Forward(tensor.Cat([]*tensor.Tensor[float32, B]{avg, max}, 1))

	return x.Mul(att.Sigmoid())
}

// StateDict registers the module's parameters under the given prefix.
func (a *SpatialAttention[B]) StateDict(prefix string, dst map[string]*tensor.RawTensor) {
	a.dwConv.StateDict(prefix+".dw_conv", dst)
	a.bn.StateDict(prefix+".bn", dst)
	a.convAtt.StateDict(prefix+".conv_att", dst)
}

// FeatureFusion merges the channel and spatial branches: their concatenation
// is projected back to C channels by a 1x1 conv + BatchNorm + ReLU.
type FeatureFusion[B tensor.Backend] struct {
	conv *nn.Conv2D[B]
	bn   *nn.BatchNorm2D[B]
}

// NewFeatureFusion creates a fusion head for the given channel count.
func NewFeatureFusion[B tensor.Backend](channels int, backend B) *FeatureFusion[B] {
	return &FeatureFusion[B]{
		conv: nn.NewConv2D(2*channels, channels, 1, nn.Conv2DOptions{}, backend),
		bn:   nn.NewBatchNorm2D(channels, backend),
	}
}

// Forward fuses the two branch outputs into [B, C, H, W].
func (f *FeatureFusion[B]) Forward(channelOut, spatialOut *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	fused := tensor.Cat([]*tensor.Tensor[float32, B]{channelOut, spatialOut}, 1)
	return f.bn.Forward(f.conv.Forward(fused)).ReLU()
}

// StateDict registers the module's parameters under the given prefix. The
// indices mirror the fused conv+norm stack's position in the checkpoint
// layout.
func (f *FeatureFusion[B]) StateDict(prefix string, dst map[string]*tensor.RawTensor) {
	f.conv.StateDict(prefix+".conv_fusion.0", dst)
	f.bn.StateDict(prefix+".conv_fusion.1", dst)
}

// AttentionModule runs the channel and spatial gates in parallel on the same
// input and fuses the results.
type AttentionModule[B tensor.Backend] struct {
	channelAtt *ChannelAttention[B]
	spatialAtt *SpatialAttention[B]
	fusion     *FeatureFusion[B]
}

// NewAttentionModule creates the parallel gate pair with the default
// channel reduction (4) and spatial kernel (3).
func NewAttentionModule[B tensor.Backend](channels int, backend B) *AttentionModule[B] {
	return &AttentionModule[B]{
		channelAtt: NewChannelAttention(channels, 4, backend),
		spatialAtt: NewSpatialAttention(channels, 3, backend),
		fusion:     NewFeatureFusion(channels, backend),
	}
}

// Forward applies both gates and fuses them. Shape [B, C, H, W] is
// preserved.
func (m *AttentionModule[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	channelOut := m.channelAtt.Forward(x)
	spatialOut := m.spatialAtt.Forward(x)
	return m.fusion.Forward(channelOut, spatialOut)
}

// StateDict registers the module's parameters under the given prefix.
func (m *AttentionModule[B]) StateDict(prefix string, dst map[string]*tensor.RawTensor) {
	m.channelAtt.StateDict(prefix+".channel_att", dst)
	m.spatialAtt.StateDict(prefix+".spatial_att", dst)
	m.fusion.StateDict(prefix+".fusion", dst)
}
