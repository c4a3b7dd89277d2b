// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/mayinchao/plant-identification-app/internal/tensor"
)

// Parameter is a named tensor belonging to a layer: weights, biases, running
// statistics. Parameters are what checkpoint loading targets; everything else
// in a layer is derived configuration.
type Parameter[B tensor.Backend] struct {
	name   string
	tensor *tensor.Tensor[float32, B]
}

// NewParameter creates a parameter wrapping an initialized tensor.
//
// The name is local to the owning layer (e.g. "weight", "running_mean");
// layers qualify it with their own prefix when exporting state.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return &Parameter[B]{name: name, tensor: t}
}

// Name returns the parameter's local name.
func (p *Parameter[B]) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter[B]) Tensor() *tensor.Tensor[float32, B] {
	return p.tensor
}

// Raw returns the parameter's underlying RawTensor. Checkpoint loading
// copies into this buffer in place, so every forward pass after a load sees
// the new values.
func (p *Parameter[B]) Raw() *tensor.RawTensor {
	return p.tensor.Raw()
}
