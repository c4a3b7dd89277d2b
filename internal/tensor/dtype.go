// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

// DataType identifies the runtime element type of a RawTensor.
type DataType int

// Supported data types. Inference runs in Float32; Float64 exists for
// numerically sensitive intermediates (FFT, accumulation checks).
const (
	Float32 DataType = iota
	Float64
)

// Size returns the element size in bytes.
func (dt DataType) Size() int {
	switch dt {
	case Float32:
		return 4
	case Float64:
		return 8
	default:
		return 0
	}
}

// String returns a human-readable type name.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return "unknown"
	}
}

// DType constrains the Go element types a Tensor may carry.
type DType interface {
	float32 | float64
}

// inferDataType maps a Go value to its DataType.
func inferDataType(v any) DataType {
	switch v.(type) {
	case float32:
		return Float32
	case float64:
		return Float64
	default:
		panic("tensor: unsupported element type")
	}
}
