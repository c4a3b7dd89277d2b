// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package pipeline

import "errors"

// Request-scoped and load-time errors. Inference failures never poison the
// pipeline: every error here is local to one call or one load attempt.
var (
	// ErrImageDecode reports undecodable image bytes.
	ErrImageDecode = errors.New("image decode failed")
	// ErrShapeMismatch reports a preprocessed input that does not match
	// the model's expected geometry.
	ErrShapeMismatch = errors.New("input shape mismatch")
	// ErrCheckpointFormat reports an unreadable or malformed checkpoint
	// container. It is surfaced through the load state and report, never
	// from Classify.
	ErrCheckpointFormat = errors.New("checkpoint format invalid")
	// ErrCompute reports non-finite values in the model output.
	ErrCompute = errors.New("inference produced non-finite values")
)
