// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"fmt"

	"github.com/mayinchao/plant-identification-app/internal/tensor"
)

// Conv2D implements a grouped 2D convolution layer over [N, C, H, W] maps.
//
// The kernel is stored [out_channels, in_channels/groups, k, k]; the
// optional bias is [out_channels]. groups=in_channels gives a depthwise
// convolution. Square kernels only, which is all the patch embedding and
// attention stems need.
type Conv2D[B tensor.Backend] struct {
	inChannels  int
	outChannels int
	kernelSize  int
	stride      int
	padding     int
	groups      int
	weight      *Parameter[B]
	bias        *Parameter[B] // nil when constructed without bias
	backend     B
}

// Conv2DOptions configures optional Conv2D behavior.
type Conv2DOptions struct {
	Stride  int // default 1
	Padding int // default 0
	Groups  int // default 1
	NoBias  bool
}

// NewConv2D creates a convolution layer. The kernel is Xavier-initialized
// and the bias starts at zero.
func NewConv2D[B tensor.Backend](inChannels, outChannels, kernelSize int, opts Conv2DOptions, backend B) *Conv2D[B] {
	stride := opts.Stride
	if stride == 0 {
		stride = 1
	}
	groups := opts.Groups
	if groups == 0 {
		groups = 1
	}
	if inChannels%groups != 0 || outChannels%groups != 0 {
		panic(fmt.Sprintf("conv2d: channels in=%d out=%d not divisible by groups %d", inChannels, outChannels, groups))
	}

	kernelShape := tensor.Shape{outChannels, inChannels / groups, kernelSize, kernelSize}
	fanIn := (inChannels / groups) * kernelSize * kernelSize
	fanOut := (outChannels / groups) * kernelSize * kernelSize
	weight := NewParameter("weight", Xavier[B](fanIn, fanOut, kernelShape, backend))

	var bias *Parameter[B]
	if !opts.NoBias {
		bias = NewParameter("bias", Zeros[B](tensor.Shape{outChannels}, backend))
	}

	return &Conv2D[B]{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernelSize:  kernelSize,
		stride:      stride,
		padding:     opts.Padding,
		groups:      groups,
		weight:      weight,
		bias:        bias,
		backend:     backend,
	}
}

// Forward convolves the input.
//
// Input shape: [N, in_channels, H, W]
// Output shape: [N, out_channels, H_out, W_out]
func (c *Conv2D[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := x.Shape()
	if len(shape) != 4 || shape[1] != c.inChannels {
		panic(fmt.Sprintf("conv2d: input %v does not match %d input channels", shape, c.inChannels))
	}

	raw := c.backend.Conv2D(x.Raw(), c.weight.Raw(), c.stride, c.padding, c.groups)
	out := tensor.New[float32, B](raw, c.backend)

	if c.bias != nil {
		out = out.Add(c.bias.Tensor().Reshape(1, c.outChannels, 1, 1))
	}
	return out
}

// OutChannels returns the number of output channels.
func (c *Conv2D[B]) OutChannels() int { return c.outChannels }

// StateDict registers the layer's parameters under the given prefix.
func (c *Conv2D[B]) StateDict(prefix string, dst map[string]*tensor.RawTensor) {
	dst[prefix+".weight"] = c.weight.Raw()
	if c.bias != nil {
		dst[prefix+".bias"] = c.bias.Raw()
	}
}
