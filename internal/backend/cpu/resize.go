// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	"fmt"

	"github.com/mayinchao/plant-identification-app/internal/tensor"
)

// ResizeBicubic resamples the spatial dims of a [N, C, H, W] tensor to
// [N, C, outH, outW] with bicubic interpolation (Keys kernel, a = -0.75).
// Source coordinates follow half-pixel mapping without corner alignment:
// src = (dst + 0.5) * scale - 0.5, with edge clamping.
func (cpu *CPUBackend) ResizeBicubic(x *tensor.RawTensor, outH, outW int) *tensor.RawTensor {
	shape := x.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("resize: input must be 4D [N,C,H,W], got %dD", len(shape)))
	}
	if x.DType() != tensor.Float32 {
		panic(fmt.Sprintf("resize: unsupported dtype %s", x.DType()))
	}
	if outH <= 0 || outW <= 0 {
		panic(fmt.Sprintf("resize: invalid target size %dx%d", outH, outW))
	}

	n, c, h, w := shape[0], shape[1], shape[2], shape[3]
	if h == outH && w == outW {
		return x.Clone()
	}

	out := cpu.alloc(tensor.Shape{n, c, outH, outW}, tensor.Float32)
	inData := x.AsFloat32()
	outData := out.AsFloat32()

	scaleH := float64(h) / float64(outH)
	scaleW := float64(w) / float64(outW)

	// Precompute per-axis source anchors and kernel weights; they are the
	// same for every plane.
	yBase, yWeights := bicubicWeights(outH, scaleH)
	xBase, xWeights := bicubicWeights(outW, scaleW)

	for nc := 0; nc < n*c; nc++ {
		plane := inData[nc*h*w : (nc+1)*h*w]
		dst := outData[nc*outH*outW : (nc+1)*outH*outW]
		for oy := 0; oy < outH; oy++ {
			wy := yWeights[oy]
			y0 := yBase[oy]
			for ox := 0; ox < outW; ox++ {
				wx := xWeights[ox]
				x0 := xBase[ox]
				var acc float64
				for ky := 0; ky < 4; ky++ {
					srcY := clampInt(y0+ky, 0, h-1)
					row := plane[srcY*w : (srcY+1)*w]
					var rowAcc float64
					for kx := 0; kx < 4; kx++ {
						srcX := clampInt(x0+kx, 0, w-1)
						rowAcc += wx[kx] * float64(row[srcX])
					}
					acc += wy[ky] * rowAcc
				}
				dst[oy*outW+ox] = float32(acc)
			}
		}
	}
	return out
}

// bicubicWeights returns, for each output index, the leftmost of the four
// source taps and the four kernel weights at the fractional offset.
func bicubicWeights(outSize int, scale float64) ([]int, [][4]float64) {
	base := make([]int, outSize)
	weights := make([][4]float64, outSize)
	for o := 0; o < outSize; o++ {
		src := (float64(o)+0.5)*scale - 0.5
		floor := int(src)
		if src < 0 && src != float64(floor) {
			floor--
		}
		frac := src - float64(floor)
		base[o] = floor - 1
		for k := 0; k < 4; k++ {
			weights[o][k] = cubicKernel(float64(k-1) - frac)
		}
	}
	return base, weights
}

// cubicKernel is the Keys cubic convolution kernel with a = -0.75.
func cubicKernel(t float64) float64 {
	const a = -0.75
	if t < 0 {
		t = -t
	}
	switch {
	case t <= 1:
		return ((a+2)*t-(a+3))*t*t + 1
	case t < 2:
		return (((t-5)*t+8)*t - 4) * a
	default:
		return 0
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
