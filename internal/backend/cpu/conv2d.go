// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	"fmt"

	"github.com/mayinchao/plant-identification-app/internal/parallel"
	"github.com/mayinchao/plant-identification-app/internal/tensor"
)

// Conv2D performs grouped 2D convolution using im2col per group.
//
// Input shape:  [N, C_in, H, W]
// Kernel shape: [C_out, C_in/groups, K_h, K_w]
// Output shape: [N, C_out, H_out, W_out]
//
// groups=1 is a standard convolution; groups=C_in with C_out=C_in is a
// depthwise convolution. Both C_in and C_out must be divisible by groups.
func (cpu *CPUBackend) Conv2D(input, kernel *tensor.RawTensor, stride, padding, groups int) *tensor.RawTensor {
	inputShape := input.Shape()
	kernelShape := kernel.Shape()

	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv2d: input must be 4D [N,C,H,W], got %dD", len(inputShape)))
	}
	if len(kernelShape) != 4 {
		panic(fmt.Sprintf("conv2d: kernel must be 4D [C_out,C_in/groups,K_h,K_w], got %dD", len(kernelShape)))
	}
	if input.DType() != tensor.Float32 || kernel.DType() != tensor.Float32 {
		panic(fmt.Sprintf("conv2d: unsupported dtypes %s, %s", input.DType(), kernel.DType()))
	}
	if groups < 1 {
		panic(fmt.Sprintf("conv2d: invalid groups %d", groups))
	}

	n := inputShape[0]
	cIn := inputShape[1]
	h := inputShape[2]
	w := inputShape[3]
	cOut := kernelShape[0]
	kh := kernelShape[2]
	kw := kernelShape[3]

	if cIn%groups != 0 || cOut%groups != 0 {
		panic(fmt.Sprintf("conv2d: channels in=%d out=%d not divisible by groups %d", cIn, cOut, groups))
	}
	if kernelShape[1] != cIn/groups {
		panic(fmt.Sprintf("conv2d: kernel input channels %d != %d/%d", kernelShape[1], cIn, groups))
	}

	hOut := (h+2*padding-kh)/stride + 1
	wOut := (w+2*padding-kw)/stride + 1
	if hOut <= 0 || wOut <= 0 {
		panic(fmt.Sprintf("conv2d: invalid output dimensions %dx%d (check stride/padding)", hOut, wOut))
	}

	out := cpu.alloc(tensor.Shape{n, cOut, hOut, wOut}, tensor.Float32)

	inData := input.AsFloat32()
	kData := kernel.AsFloat32()
	outData := out.AsFloat32()

	cInG := cIn / groups
	cOutG := cOut / groups
	colWidth := cInG * kh * kw
	spatial := hOut * wOut

	// Each (batch, group) pair writes a disjoint output slab, so the pairs
	// parallelize freely; every worker keeps one im2col buffer.
	parallel.ForRange(n*groups, 1, func(start, end int) {
		colBuf := make([]float32, spatial*colWidth)
		for bg := start; bg < end; bg++ {
			batch, g := bg/groups, bg%groups

			// Im2col over this group's input channels.
			groupIn := inData[(batch*cIn+g*cInG)*h*w : (batch*cIn+(g+1)*cInG)*h*w]
			im2col(colBuf, groupIn, cInG, h, w, kh, kw, hOut, wOut, stride, padding)

			// Kernel for this group is [C_out/groups, colWidth] row-major.
			groupK := kData[g*cOutG*colWidth : (g+1)*cOutG*colWidth]

			// MatMul: [C_out/groups, colWidth] @ [colWidth, spatial].
			for oc := 0; oc < cOutG; oc++ {
				dst := outData[(batch*cOut+g*cOutG+oc)*spatial : (batch*cOut+g*cOutG+oc+1)*spatial]
				kRow := groupK[oc*colWidth : (oc+1)*colWidth]
				for p := 0; p < spatial; p++ {
					var sum float32
					col := colBuf[p*colWidth : (p+1)*colWidth]
					for i := range col {
						sum += kRow[i] * col[i]
					}
					dst[p] = sum
				}
			}
		}
	})

	return out
}

// im2col extracts convolution patches into rows of colBuf.
//
// Input: [C, H, W] (one batch element, one group)
// Output: colBuf [H_out * W_out, C * K_h * K_w]
func im2col(colBuf, inData []float32, c, h, w, kh, kw, hOut, wOut, stride, padding int) {
	colWidth := c * kh * kw
	colIdx := 0

	for outH := 0; outH < hOut; outH++ {
		for outW := 0; outW < wOut; outW++ {
			hStart := outH*stride - padding
			wStart := outW*stride - padding
			bufIdx := colIdx * colWidth

			for ch := 0; ch < c; ch++ {
				for y := 0; y < kh; y++ {
					for x := 0; x < kw; x++ {
						srcY := hStart + y
						srcX := wStart + x
						if srcY >= 0 && srcY < h && srcX >= 0 && srcX < w {
							colBuf[bufIdx] = inData[ch*h*w+srcY*w+srcX]
						} else {
							colBuf[bufIdx] = 0
						}
						bufIdx++
					}
				}
			}
			colIdx++
		}
	}
}

// AvgPool2D performs average pooling over non-overlapping or strided windows.
//
// Input shape:  [N, C, H, W]
// Output shape: [N, C, H_out, W_out] with H_out = (H-kernel)/stride + 1.
// No padding; windows always lie fully inside the input.
func (cpu *CPUBackend) AvgPool2D(input *tensor.RawTensor, kernelSize, stride int) *tensor.RawTensor {
	shape := input.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("avgpool2d: input must be 4D [N,C,H,W], got %dD", len(shape)))
	}
	if input.DType() != tensor.Float32 {
		panic(fmt.Sprintf("avgpool2d: unsupported dtype %s", input.DType()))
	}

	n, c, h, w := shape[0], shape[1], shape[2], shape[3]
	hOut := (h-kernelSize)/stride + 1
	wOut := (w-kernelSize)/stride + 1
	if hOut <= 0 || wOut <= 0 {
		panic(fmt.Sprintf("avgpool2d: invalid output dimensions %dx%d", hOut, wOut))
	}

	out := cpu.alloc(tensor.Shape{n, c, hOut, wOut}, tensor.Float32)
	inData := input.AsFloat32()
	outData := out.AsFloat32()
	norm := float32(1) / float32(kernelSize*kernelSize)

	for nc := 0; nc < n*c; nc++ {
		plane := inData[nc*h*w : (nc+1)*h*w]
		dst := outData[nc*hOut*wOut : (nc+1)*hOut*wOut]
		for oy := 0; oy < hOut; oy++ {
			for ox := 0; ox < wOut; ox++ {
				var sum float32
				for ky := 0; ky < kernelSize; ky++ {
					row := (oy*stride + ky) * w
					for kx := 0; kx < kernelSize; kx++ {
						sum += plane[row+ox*stride+kx]
					}
				}
				dst[oy*wOut+ox] = sum * norm
			}
		}
	}
	return out
}
