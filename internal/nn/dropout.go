// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/mayinchao/plant-identification-app/internal/tensor"
)

// Dropout zeroes activations with probability p during training. This stack
// only runs inference, where dropout is the identity, but layers still carry
// their configured rate so model construction mirrors the trained network.
type Dropout[B tensor.Backend] struct {
	rate float64
}

// NewDropout creates a dropout layer with the given drop probability.
func NewDropout[B tensor.Backend](rate float64) *Dropout[B] {
	return &Dropout[B]{rate: rate}
}

// Forward is the identity in inference mode.
func (d *Dropout[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return x
}

// Rate returns the configured drop probability.
func (d *Dropout[B]) Rate() float64 { return d.rate }

// DropPath (stochastic depth) drops whole residual branches per sample
// during training, scaling survivors by 1/(1-p). In inference mode it is the
// identity; the rate is kept so per-block schedules stay inspectable.
type DropPath[B tensor.Backend] struct {
	rate float64
}

// NewDropPath creates a stochastic-depth layer with the given drop rate.
func NewDropPath[B tensor.Backend](rate float64) *DropPath[B] {
	return &DropPath[B]{rate: rate}
}

// Forward is the identity in inference mode.
func (d *DropPath[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return x
}

// Rate returns the configured drop rate.
func (d *DropPath[B]) Rate() float64 { return d.rate }
