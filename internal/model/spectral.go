// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package model

import (
	"fmt"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/mayinchao/plant-identification-app/internal/nn"
	"github.com/mayinchao/plant-identification-app/internal/tensor"
)

// SpectralGatingFilter mixes tokens globally in the frequency domain: the
// token grid is transformed with a 2D real FFT, multiplied by a learned
// complex weight per frequency bin and channel, and transformed back.
//
// The weight is stored as float32 pairs [grid, gridW, dim, 2] (re, im) where
// gridW = grid/2 + 1 is the number of bins the real FFT keeps along the
// second axis. It is initialized from N(0, 0.02²).
//
// Shapes: [B, N, C] -> [B, N, C] with N = grid².
//
// The FFT math runs in float64 and uses orthonormal scaling on the
// round trip, so a unit gate is the identity up to rounding.
type SpectralGatingFilter[B tensor.Backend] struct {
	grid  int // token grid side (h)
	gridW int // retained frequency bins (h/2 + 1)
	dim   int

	complexWeight *nn.Parameter[B]
}

// NewSpectralGatingFilter creates a filter for a square grid of the given
// side and channel count.
func NewSpectralGatingFilter[B tensor.Backend](dim, grid int, backend B) *SpectralGatingFilter[B] {
	gridW := grid/2 + 1
	weight := nn.Randn[B](tensor.Shape{grid, gridW, dim, 2}, backend)
	data := weight.Data()
	for i := range data {
		data[i] *= 0.02
	}
	return &SpectralGatingFilter[B]{
		grid:          grid,
		gridW:         gridW,
		dim:           dim,
		complexWeight: nn.NewParameter("complex_weight", weight),
	}
}

// Forward applies the spectral gate. The sequence length must be grid².
func (s *SpectralGatingFilter[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := x.Shape()
	if len(shape) != 3 || shape[2] != s.dim {
		panic(fmt.Sprintf("spectral filter: input %v does not match dim %d", shape, s.dim))
	}
	batch, n := shape[0], shape[1]
	if n != s.grid*s.grid {
		panic(fmt.Sprintf("spectral filter: sequence length %d is not %d x %d", n, s.grid, s.grid))
	}

	a, b := s.grid, s.grid
	out := x.Clone()
	outData := out.Data()
	weight := s.complexWeight.Tensor().Data()

	// FFT plans are cheap to build and not goroutine-safe, so each call
	// gets its own.
	rowFFT := fourier.NewFFT(b)
	colFFT := fourier.NewCmplxFFT(a)

	row := make([]float64, b)
	rowCoeff := make([]complex128, s.gridW)
	col := make([]complex128, a)
	colFreq := make([]complex128, a)
	// Full half-spectrum for one (batch, channel) plane: a rows of gridW
	// bins each.
	spectrum := make([]complex128, a*s.gridW)

	// The orthonormal forward and inverse each scale by 1/sqrt(a·b);
	// since the gate is linear both factors can be applied at the end.
	norm := 1.0 / float64(a*b)

	for bi := 0; bi < batch; bi++ {
		for c := 0; c < s.dim; c++ {
			base := bi * n * s.dim

			// Real FFT along each grid row.
			for y := 0; y < a; y++ {
				for xi := 0; xi < b; xi++ {
					row[xi] = float64(outData[base+(y*b+xi)*s.dim+c])
				}
				rowFFT.Coefficients(rowCoeff, row)
				copy(spectrum[y*s.gridW:], rowCoeff)
			}

			// Complex FFT down each retained column, then the gate.
			for k := 0; k < s.gridW; k++ {
				for y := 0; y < a; y++ {
					col[y] = spectrum[y*s.gridW+k]
				}
				colFFT.Coefficients(colFreq, col)
				for u := 0; u < a; u++ {
					wIdx := ((u*s.gridW+k)*s.dim + c) * 2
					w := complex(float64(weight[wIdx]), float64(weight[wIdx+1]))
					colFreq[u] *= w
				}
				colFFT.Sequence(col, colFreq)
				for y := 0; y < a; y++ {
					spectrum[y*s.gridW+k] = col[y]
				}
			}

			// Inverse real FFT along each row, with the fused scaling.
			for y := 0; y < a; y++ {
				copy(rowCoeff, spectrum[y*s.gridW:(y+1)*s.gridW])
				rowFFT.Sequence(row, rowCoeff)
				for xi := 0; xi < b; xi++ {
					outData[base+(y*b+xi)*s.dim+c] = float32(row[xi] * norm)
				}
			}
		}
	}
	return out
}

// StateDict registers the gate weight under the given prefix.
func (s *SpectralGatingFilter[B]) StateDict(prefix string, dst map[string]*tensor.RawTensor) {
	dst[prefix+".complex_weight"] = s.complexWeight.Raw()
}
