// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package model

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/mayinchao/plant-identification-app/internal/nn"
	"github.com/mayinchao/plant-identification-app/internal/tensor"
)

// trunkBlock is what every block in the trunk satisfies: a [B, N, C]
// preserving transform plus state-dict registration.
type trunkBlock[B tensor.Backend] interface {
	Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]
	StateDict(prefix string, dst map[string]*tensor.RawTensor)
}

// BryoFormer is the hybrid frequency/spatial classifier.
//
// The trunk is a fixed sequence of three phases: spectral gating blocks,
// frequency-to-spatial bridges, and reduced-resolution attention blocks.
// The variant in the config decides how many of each. After the trunk the
// tokens are normalized, mean-pooled, optionally projected through a
// pre-logits layer, and classified by a linear head.
//
// All parameters live in tensors that checkpoint loading overwrites in
// place; after construction the model is read-only and a single instance
// serves concurrent forward passes.
type BryoFormer[B tensor.Backend] struct {
	cfg    ModelConfig
	layout Layout

	patchEmbed *PatchEmbed[B]
	posEmbed   *nn.Parameter[B]
	posDrop    *nn.Dropout[B]
	blocks     []trunkBlock[B]
	norm       *nn.LayerNorm[B]
	preLogits  *nn.Linear[B] // nil unless RepresentationSize is set
	finalDrop  *nn.Dropout[B]
	head       *nn.Linear[B]

	backend B
}

// New builds a randomly initialized model for the config. Invalid
// hyperparameters panic; weight loading is a separate, fallible step.
func New[B tensor.Backend](cfg ModelConfig, backend B) *BryoFormer[B] {
	cfg.validate()
	layout := cfg.Variant.Layout()
	grid := cfg.GridSize()
	rates := cfg.dropPathSchedule()

	m := &BryoFormer[B]{
		cfg:        cfg,
		layout:     layout,
		patchEmbed: NewPatchEmbed(cfg.ImageSize, cfg.PatchSize, cfg.InChans, cfg.EmbedDim, backend),
		posEmbed:   nn.NewParameter("pos_embed", nn.TruncNormal[B](tensor.Shape{1, cfg.NumPatches(), cfg.EmbedDim}, 0.02, backend)),
		posDrop:    nn.NewDropout[B](cfg.DropRate),
		norm:       nn.NewLayerNorm(cfg.EmbedDim, 1e-6, backend),
		finalDrop:  nn.NewDropout[B](cfg.DropCls),
		head:       nn.NewLinear(cfg.EmbedDim, cfg.NumClasses, backend),
		backend:    backend,
	}
	if cfg.RepresentationSize > 0 {
		m.preLogits = nn.NewLinear(cfg.EmbedDim, cfg.RepresentationSize, backend)
		m.head = nn.NewLinear(cfg.RepresentationSize, cfg.NumClasses, backend)
	}

	for i := 0; i < layout.Spectral; i++ {
		m.blocks = append(m.blocks, NewSpectralBlock(cfg.EmbedDim, grid, cfg.MlpRatio, cfg.DropRate, rates[i], backend))
	}
	for i := 0; i < layout.Bridges; i++ {
		m.blocks = append(m.blocks, NewFreqTimeBridge(cfg.EmbedDim, grid, backend))
	}
	// Attention blocks resume the drop-path ramp after the phases before
	// them, bridges included.
	offset := layout.Spectral + layout.Bridges
	for i := 0; i < layout.Attention; i++ {
		m.blocks = append(m.blocks, NewAttentionBlock(cfg.EmbedDim, grid, cfg.MlpRatio, cfg.DropRate, rates[offset+i], backend))
	}

	log.Printf("model: built %s variant, depth %d, %d parameters", cfg.Variant, layout.Depth(), m.NumParameters())
	return m
}

// Config returns the model's configuration.
func (m *BryoFormer[B]) Config() ModelConfig {
	return m.cfg
}

// Forward classifies an image batch.
//
// Input shape: [B, C, S, S]
// Output shape: [B, num_classes] (raw logits)
func (m *BryoFormer[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	tokens := m.patchEmbed.Forward(x).Add(m.posEmbed.Tensor())
	tokens = m.posDrop.Forward(tokens)

	for _, blk := range m.blocks {
		tokens = blk.Forward(tokens)
	}

	pooled := m.norm.Forward(tokens).MeanDim(1, false)
	if m.preLogits != nil {
		pooled = m.preLogits.Forward(pooled).Tanh()
	}
	return m.head.Forward(m.finalDrop.Forward(pooled))
}

// StateDict returns every parameter and running statistic keyed by its
// qualified name. The returned RawTensors are the live buffers; copying
// into them updates the model.
func (m *BryoFormer[B]) StateDict() map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor)
	sd["pos_embed"] = m.posEmbed.Raw()
	m.patchEmbed.StateDict("patch_embed", sd)
	for i, blk := range m.blocks {
		blk.StateDict(fmt.Sprintf("blocks.%d", i), sd)
	}
	m.norm.StateDict("norm", sd)
	if m.preLogits != nil {
		m.preLogits.StateDict("pre_logits.fc", sd)
	}
	m.head.StateDict("head", sd)
	return sd
}

// NumParameters returns the total learnable parameter count (running
// statistics excluded).
func (m *BryoFormer[B]) NumParameters() int {
	total := 0
	for name, t := range m.StateDict() {
		if strings.Contains(name, "running_") {
			continue
		}
		total += t.NumElements()
	}
	return total
}

// LoadReport describes the outcome of a state-dict load.
type LoadReport struct {
	// Loaded counts tensors copied into the model.
	Loaded int
	// Missing are model tensors the source had no entry for.
	Missing []string
	// Unexpected are source entries no model tensor matched.
	Unexpected []string
	// Mismatched are name matches whose shape or dtype disagreed; the
	// model tensor keeps its previous values.
	Mismatched []string
}

// Clean reports whether the load was exact: every model tensor was loaded
// and the source had nothing extra.
func (r *LoadReport) Clean() bool {
	return len(r.Missing) == 0 && len(r.Unexpected) == 0 && len(r.Mismatched) == 0
}

// String summarizes the report.
func (r *LoadReport) String() string {
	return fmt.Sprintf("loaded %d tensors (%d missing, %d unexpected, %d mismatched)",
		r.Loaded, len(r.Missing), len(r.Unexpected), len(r.Mismatched))
}

// LoadStateDict copies every name-and-shape match from src into the model
// and reports what happened to the rest. It never fails: mismatches leave
// the affected tensors at their previous values, and the caller decides
// what the report means.
func (m *BryoFormer[B]) LoadStateDict(src map[string]*tensor.RawTensor) *LoadReport {
	report := &LoadReport{}
	own := m.StateDict()

	for name, dst := range own {
		srcTensor, ok := src[name]
		if !ok {
			report.Missing = append(report.Missing, name)
			continue
		}
		if err := dst.CopyFrom(srcTensor); err != nil {
			report.Mismatched = append(report.Mismatched, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		report.Loaded++
	}
	for name := range src {
		if _, ok := own[name]; !ok {
			report.Unexpected = append(report.Unexpected, name)
		}
	}

	sort.Strings(report.Missing)
	sort.Strings(report.Unexpected)
	sort.Strings(report.Mismatched)
	return report
}
