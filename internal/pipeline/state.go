// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package pipeline

// WeightLoadState tracks what the pipeline's parameters contain. It is set
// exactly once, inside the constructor, and only read afterwards; no
// inference call can observe a half-loaded parameter store.
type WeightLoadState int

const (
	// StateUnloaded: construction has not attempted a load yet.
	StateUnloaded WeightLoadState = iota
	// StateLoading: a load attempt is in progress (constructor-internal).
	StateLoading
	// StateLoadedStrict: every model tensor came from the checkpoint and
	// the checkpoint had nothing extra.
	StateLoadedStrict
	// StateLoadedPartial: at least one tensor loaded; the rest keep their
	// random initialization.
	StateLoadedPartial
	// StateRandomFallback: no checkpoint, an unreadable checkpoint, or
	// zero matching tensors. The model runs with random weights.
	StateRandomFallback
)

// String returns the state name.
func (s WeightLoadState) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateLoadedStrict:
		return "loaded_strict"
	case StateLoadedPartial:
		return "loaded_partial"
	case StateRandomFallback:
		return "random_fallback"
	default:
		return "unknown"
	}
}

// Trained reports whether the parameters carry any trained weights.
func (s WeightLoadState) Trained() bool {
	return s == StateLoadedStrict || s == StateLoadedPartial
}
