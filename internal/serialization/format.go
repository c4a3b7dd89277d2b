// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package serialization implements the checkpoint container: a small binary
// envelope holding named raw tensors plus a JSON description of them.
//
// File layout:
//
//	[0:4]   magic "BRYO"
//	[4:8]   format version (uint32, little endian)
//	[8:16]  header length in bytes (uint64, little endian)
//	[16:..] JSON header (Header)
//	[..:..] zero padding to the next 64-byte boundary
//	[..:..] tensor data, little endian, at the offsets the header declares
//
// Tensors are written in name order, so identical state dicts produce
// identical files.
package serialization

import (
	"github.com/mayinchao/plant-identification-app/internal/tensor"
)

// Format constants.
const (
	MagicBytes    = "BRYO"
	FormatVersion = 1
	// DataAlignment keeps the tensor section 64-byte aligned so float data
	// can be mapped or read directly.
	DataAlignment = 64
	// MaxHeaderSize bounds the JSON header; anything larger is a corrupt
	// or hostile file.
	MaxHeaderSize = 100 * 1024 * 1024
)

// Data type names used in headers.
const (
	DTypeFloat32 = "float32"
	DTypeFloat64 = "float64"
)

// Header is the JSON header of a checkpoint file.
type Header struct {
	FormatVersion int               `json:"format_version"`
	ModelType     string            `json:"model_type"`
	Tensors       []TensorMeta      `json:"tensors"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// TensorMeta describes one tensor in the data section.
type TensorMeta struct {
	Name   string `json:"name"`
	DType  string `json:"dtype"`
	Shape  []int  `json:"shape"`
	Offset int64  `json:"offset"` // bytes from the start of the data section
	Size   int64  `json:"size"`   // bytes
}

func dtypeToString(dt tensor.DataType) string {
	switch dt {
	case tensor.Float32:
		return DTypeFloat32
	case tensor.Float64:
		return DTypeFloat64
	default:
		return "unknown"
	}
}

func stringToDtype(s string) (tensor.DataType, bool) {
	switch s {
	case DTypeFloat32:
		return tensor.Float32, true
	case DTypeFloat64:
		return tensor.Float64, true
	default:
		return 0, false
	}
}
