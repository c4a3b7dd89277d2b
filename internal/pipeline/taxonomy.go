// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package pipeline

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
)

// PlantInfo describes one species in the taxonomy table.
type PlantInfo struct {
	Name    string `json:"name"`
	SciName string `json:"sci_name"`
	Family  string `json:"family"`
}

// Taxonomy maps class indices to species descriptions. Class ids the table
// does not cover are omitted from classification results.
type Taxonomy map[int]PlantInfo

// LoadTaxonomy reads a JSON table of the form
//
//	{"0": {"name": ..., "sci_name": ..., "family": ...}, ...}
//
// Keys that do not parse as non-negative integers are skipped with a log
// line rather than failing the whole table.
func LoadTaxonomy(path string) (Taxonomy, error) {
	//nolint:gosec // G304: the path is caller-chosen by design
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read taxonomy: %w", err)
	}

	var byKey map[string]PlantInfo
	if err := json.Unmarshal(data, &byKey); err != nil {
		return nil, fmt.Errorf("failed to parse taxonomy: %w", err)
	}

	tax := make(Taxonomy, len(byKey))
	for key, info := range byKey {
		id, err := strconv.Atoi(key)
		if err != nil || id < 0 {
			log.Printf("taxonomy: skipping invalid class id %q", key)
			continue
		}
		tax[id] = info
	}
	return tax, nil
}

// DefaultTaxonomy returns the built-in fallback table used when no taxonomy
// file is available.
func DefaultTaxonomy() Taxonomy {
	return Taxonomy{
		0: {Name: "Swiss cheese plant", SciName: "Monstera deliciosa", Family: "Araceae"},
		1: {Name: "Cape jasmine", SciName: "Gardenia jasminoides", Family: "Rubiaceae"},
		2: {Name: "Succulent", SciName: "Succulent plants", Family: "various"},
		3: {Name: "Rose", SciName: "Rosa rugosa", Family: "Rosaceae"},
		4: {Name: "Sunflower", SciName: "Helianthus annuus", Family: "Asteraceae"},
	}
}
