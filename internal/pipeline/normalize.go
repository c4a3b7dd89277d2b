// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package pipeline

import (
	"strings"

	"github.com/mayinchao/plant-identification-app/internal/tensor"
)

// wrapperPrefixes are the container prefixes training frameworks wrap state
// dicts in. A prefix is stripped only when every key shares it, so genuine
// submodule names are never mangled.
var wrapperPrefixes = []string{"model_state_dict.", "state_dict.", "model."}

// perKeyPrefixes are stripped from individual keys regardless of the rest
// of the dict (data-parallel and wrapper-module artifacts).
var perKeyPrefixes = []string{"module.", "model."}

// NormalizeKeys rewrites checkpoint keys to the model's naming scheme.
// The operation is idempotent: normalizing an already-normalized dict
// returns it unchanged.
//
// Batch-norm bookkeeping buffers (num_batches_tracked) carry no inference
// information and are dropped here so they cannot turn an otherwise exact
// checkpoint into a partial load.
func NormalizeKeys(sd map[string]*tensor.RawTensor) map[string]*tensor.RawTensor {
	out := make(map[string]*tensor.RawTensor, len(sd))
	for key, t := range sd {
		if strings.HasSuffix(key, ".num_batches_tracked") {
			continue
		}
		out[key] = t
	}

	// Shared wrapper prefix first.
	for _, prefix := range wrapperPrefixes {
		if len(out) == 0 || !allHavePrefix(out, prefix) {
			continue
		}
		stripped := make(map[string]*tensor.RawTensor, len(out))
		for key, t := range out {
			stripped[strings.TrimPrefix(key, prefix)] = t
		}
		out = stripped
		break
	}

	// Then per-key artifacts.
	normalized := make(map[string]*tensor.RawTensor, len(out))
	for key, t := range out {
		for _, prefix := range perKeyPrefixes {
			if strings.HasPrefix(key, prefix) {
				key = strings.TrimPrefix(key, prefix)
				break
			}
		}
		normalized[key] = t
	}
	return normalized
}

func allHavePrefix(sd map[string]*tensor.RawTensor, prefix string) bool {
	for key := range sd {
		if !strings.HasPrefix(key, prefix) {
			return false
		}
	}
	return true
}
