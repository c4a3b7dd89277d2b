// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure-Go reference backend.
//
// Every operation allocates its output and leaves inputs untouched, so a
// parameter set shared by concurrent inference calls is never written to.
package cpu

import (
	"fmt"

	"github.com/mayinchao/plant-identification-app/internal/tensor"
)

// CPUBackend implements tensor.Backend with plain Go loops.
type CPUBackend struct {
	device tensor.Device
}

// Compile-time check that CPUBackend implements tensor.Backend.
var _ tensor.Backend = (*CPUBackend)(nil)

// New creates a new CPU backend.
func New() *CPUBackend {
	return &CPUBackend{device: tensor.CPU}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "cpu"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// alloc creates an output tensor or panics; allocation failures here are
// programmer errors (invalid shapes), not runtime conditions.
func (cpu *CPUBackend) alloc(shape tensor.Shape, dtype tensor.DataType) *tensor.RawTensor {
	out, err := tensor.NewRaw(shape, dtype, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("cpu: %v", err))
	}
	return out
}
