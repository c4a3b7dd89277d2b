// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package pipeline

import (
	"fmt"
	"image"
	"log"
	"math"
	"os"
	"sort"

	"github.com/mayinchao/plant-identification-app/internal/model"
	"github.com/mayinchao/plant-identification-app/internal/serialization"
	"github.com/mayinchao/plant-identification-app/internal/tensor"
)

// Prediction is one ranked classification result.
type Prediction struct {
	ClassID    int     `json:"class_id"`
	Confidence float64 `json:"confidence"`
	Name       string  `json:"name"`
	SciName    string  `json:"sci_name"`
	Family     string  `json:"family"`
}

// Result is the outcome of one classification request.
type Result struct {
	// Predictions are ranked by descending confidence. Class ids missing
	// from the taxonomy are omitted, so the list can be shorter than the
	// requested k.
	Predictions []Prediction `json:"predictions"`
	// Top is the highest-confidence prediction, nil when Predictions is
	// empty.
	Top *Prediction `json:"top_prediction,omitempty"`
	// Trained is false when the model runs on random fallback weights;
	// confidences are then meaningless noise.
	Trained bool `json:"trained"`
}

// Options configures pipeline construction.
type Options struct {
	// Config is the model architecture. Zero value is replaced by
	// model.DefaultConfig().
	Config model.ModelConfig
	// CheckpointPath is the trained-weights file. Empty or missing paths
	// put the pipeline into random fallback rather than failing.
	CheckpointPath string
	// TaxonomyPath is the species table. Empty or unreadable paths fall
	// back to the built-in table.
	TaxonomyPath string
}

// Pipeline runs the full classification flow: preprocessing, the model
// forward pass, softmax, top-k ranking and taxonomy mapping.
//
// Construction performs the one and only weight-load attempt; afterwards
// the pipeline is immutable and a single instance serves concurrent
// Classify calls.
type Pipeline[B tensor.Backend] struct {
	model    *model.BryoFormer[B]
	backend  B
	taxonomy Taxonomy
	state    WeightLoadState
	report   *model.LoadReport
}

// New builds the model, attempts the weight load, and resolves the
// taxonomy. It never fails because of weights: every load problem degrades
// the state instead.
func New[B tensor.Backend](opts Options, backend B) *Pipeline[B] {
	cfg := opts.Config
	if cfg == (model.ModelConfig{}) {
		cfg = model.DefaultConfig()
	}

	p := &Pipeline[B]{
		model:   model.New(cfg, backend),
		backend: backend,
		state:   StateUnloaded,
	}
	p.loadWeights(opts.CheckpointPath)
	p.loadTaxonomy(opts.TaxonomyPath)
	return p
}

func (p *Pipeline[B]) loadWeights(path string) {
	p.state = StateLoading

	if path == "" {
		log.Printf("pipeline: no checkpoint configured, using random weights")
		p.state = StateRandomFallback
		return
	}
	if _, err := os.Stat(path); err != nil {
		log.Printf("pipeline: checkpoint %s not found, using random weights", path)
		p.state = StateRandomFallback
		return
	}

	sd, err := readCheckpoint(path)
	if err != nil {
		log.Printf("pipeline: %v (%s), using random weights", fmt.Errorf("%w: %v", ErrCheckpointFormat, err), path)
		p.state = StateRandomFallback
		return
	}

	report := p.model.LoadStateDict(NormalizeKeys(sd))
	p.report = report
	switch {
	case report.Clean():
		log.Printf("pipeline: checkpoint %s loaded strictly (%d tensors)", path, report.Loaded)
		p.state = StateLoadedStrict
	case report.Loaded > 0:
		log.Printf("pipeline: checkpoint %s partially loaded: %s", path, report)
		p.state = StateLoadedPartial
	default:
		log.Printf("pipeline: checkpoint %s matched nothing (%s), using random weights", path, report)
		p.state = StateRandomFallback
	}
}

// readCheckpoint picks the container by extension: .safetensors files load
// through the safetensors reader, everything else through the native one.
func readCheckpoint(path string) (map[string]*tensor.RawTensor, error) {
	if serialization.IsSafetensorsPath(path) {
		sd, _, err := serialization.ReadSafetensors(path)
		return sd, err
	}
	sd, _, err := serialization.ReadFile(path)
	return sd, err
}

func (p *Pipeline[B]) loadTaxonomy(path string) {
	if path != "" {
		tax, err := LoadTaxonomy(path)
		if err == nil {
			log.Printf("pipeline: taxonomy loaded, %d species", len(tax))
			p.taxonomy = tax
			return
		}
		log.Printf("pipeline: %v, using built-in taxonomy", err)
	}
	p.taxonomy = DefaultTaxonomy()
}

// State returns the weight-load state.
func (p *Pipeline[B]) State() WeightLoadState {
	return p.state
}

// Report returns the load report, nil when no checkpoint was read.
func (p *Pipeline[B]) Report() *model.LoadReport {
	return p.report
}

// Model returns the underlying model.
func (p *Pipeline[B]) Model() *model.BryoFormer[B] {
	return p.model
}

// Classify runs one image through the model and returns the top-k
// predictions. k is clamped to the class count; ties rank by ascending
// class id.
func (p *Pipeline[B]) Classify(img image.Image, topK int) (*Result, error) {
	results, err := p.ClassifyBatch([]image.Image{img}, topK)
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// ClassifyBatch classifies several images in one forward pass, preserving
// input order in the results.
func (p *Pipeline[B]) ClassifyBatch(imgs []image.Image, topK int) ([]*Result, error) {
	if len(imgs) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrShapeMismatch)
	}
	cfg := p.model.Config()

	batch, err := tensor.NewRaw(tensor.Shape{len(imgs), cfg.InChans, cfg.ImageSize, cfg.ImageSize}, tensor.Float32, p.backend.Device())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShapeMismatch, err)
	}
	batchData := batch.AsFloat32()
	planeSize := cfg.InChans * cfg.ImageSize * cfg.ImageSize
	for i, img := range imgs {
		one, err := preprocess(img, cfg.ImageSize)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		copy(batchData[i*planeSize:(i+1)*planeSize], one.AsFloat32())
	}

	logits := p.model.Forward(tensor.New[float32, B](batch, p.backend))
	for _, v := range logits.Data() {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, ErrCompute
		}
	}

	probs := logits.Softmax(-1)
	results := make([]*Result, len(imgs))
	for i := range imgs {
		row := probs.Data()[i*cfg.NumClasses : (i+1)*cfg.NumClasses]
		results[i] = p.rank(row, topK)
	}
	return results, nil
}

// rank turns one probability row into a taxonomy-mapped Result.
func (p *Pipeline[B]) rank(probs []float32, topK int) *Result {
	if topK > len(probs) {
		topK = len(probs)
	}
	if topK < 0 {
		topK = 0
	}

	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		if probs[order[a]] != probs[order[b]] {
			return probs[order[a]] > probs[order[b]]
		}
		return order[a] < order[b]
	})

	result := &Result{Trained: p.state.Trained()}
	for _, classID := range order[:topK] {
		info, ok := p.taxonomy[classID]
		if !ok {
			continue
		}
		result.Predictions = append(result.Predictions, Prediction{
			ClassID:    classID,
			Confidence: float64(probs[classID]),
			Name:       info.Name,
			SciName:    info.SciName,
			Family:     info.Family,
		})
	}
	if len(result.Predictions) > 0 {
		result.Top = &result.Predictions[0]
	}
	return result
}
