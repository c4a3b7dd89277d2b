// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package main provides the plant identification CLI.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/mayinchao/plant-identification-app/internal/backend/cpu"
	"github.com/mayinchao/plant-identification-app/internal/model"
	"github.com/mayinchao/plant-identification-app/internal/pipeline"
)

const version = "v0.1.0-dev"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("plantid %s\n", version)
		return
	}

	var (
		modelPath    = flag.String("model", "", "checkpoint file (omit for random weights)")
		taxonomyPath = flag.String("taxonomy", "", "taxonomy JSON file (omit for built-in table)")
		imagePath    = flag.String("image", "", "image to classify (JPEG or PNG)")
		topK         = flag.Int("topk", 5, "number of predictions to report")
		variant      = flag.String("variant", "base", "model variant: base, v2, v3 or v4")
	)
	flag.Parse()

	if *imagePath == "" {
		fmt.Fprintln(os.Stderr, "usage: plantid -image photo.jpg [-model model.bin] [-taxonomy taxonomy.json] [-topk 5] [-variant base]")
		os.Exit(2)
	}

	v, err := model.ParseVariant(*variant)
	if err != nil {
		log.Fatalf("plantid: %v", err)
	}
	cfg := model.DefaultConfig()
	cfg.Variant = v

	p := pipeline.New(pipeline.Options{
		Config:         cfg,
		CheckpointPath: *modelPath,
		TaxonomyPath:   *taxonomyPath,
	}, cpu.New())

	f, err := os.Open(*imagePath)
	if err != nil {
		log.Fatalf("plantid: %v", err)
	}
	defer f.Close()

	img, err := pipeline.DecodeImage(f)
	if err != nil {
		log.Fatalf("plantid: %v", err)
	}

	result, err := p.Classify(img, *topK)
	if err != nil {
		log.Fatalf("plantid: %v", err)
	}
	if !result.Trained {
		log.Printf("plantid: running on random weights, confidences are not meaningful")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Fatalf("plantid: %v", err)
	}
}
