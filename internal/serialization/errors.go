// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package serialization

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrInvalidMagic       = errors.New("invalid magic bytes")
	ErrUnsupportedVersion = errors.New("unsupported format version")
	ErrHeaderTooLarge     = errors.New("header exceeds maximum size")
	ErrOutOfBounds        = errors.New("tensor extends beyond data section")
	ErrNegativeOffset     = errors.New("negative offset or size")
	ErrUnknownDType       = errors.New("unknown tensor dtype")
)

// FormatError wraps a low-level failure with the tensor it concerns.
type FormatError struct {
	Tensor  string
	Details string
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	if e.Tensor != "" {
		return fmt.Sprintf("checkpoint format: tensor %q: %s", e.Tensor, e.Details)
	}
	return fmt.Sprintf("checkpoint format: %s", e.Details)
}
