// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mayinchao/plant-identification-app/internal/backend/cpu"
	"github.com/mayinchao/plant-identification-app/internal/tensor"
)

// testConfig is a scaled-down config that keeps every architectural feature
// (both block kinds, the bridge, the grid invariants) while staying fast.
func testConfig() ModelConfig {
	return ModelConfig{
		Variant:    VariantBase,
		ImageSize:  32,
		PatchSize:  16,
		InChans:    3,
		NumClasses: 5,
		EmbedDim:   48,
		MlpRatio:   2.0,
	}
}

func TestVariantLayouts(t *testing.T) {
	tests := []struct {
		variant Variant
		layout  Layout
	}{
		{VariantBase, Layout{Spectral: 4, Bridges: 1, Attention: 3}},
		{VariantV2, Layout{Spectral: 3, Bridges: 1, Attention: 4}},
		{VariantV3, Layout{Spectral: 2, Bridges: 2, Attention: 8}},
		{VariantV4, Layout{Spectral: 3, Bridges: 0, Attention: 9}},
	}
	for _, tt := range tests {
		t.Run(tt.variant.String(), func(t *testing.T) {
			assert.Equal(t, tt.layout, tt.variant.Layout())
		})
	}

	assert.Equal(t, 8, VariantBase.Layout().Depth())
	assert.Equal(t, 8, VariantV2.Layout().Depth())
	assert.Equal(t, 12, VariantV3.Layout().Depth())
	assert.Equal(t, 12, VariantV4.Layout().Depth())
}

func TestParseVariant(t *testing.T) {
	for _, name := range []string{"base", "v2", "v3", "v4"} {
		v, err := ParseVariant(name)
		require.NoError(t, err)
		assert.Equal(t, name, v.String())
	}

	v, err := ParseVariant("")
	require.NoError(t, err)
	assert.Equal(t, VariantBase, v)

	_, err = ParseVariant("v5")
	assert.Error(t, err)
}

func TestConfigGeometry(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 14, cfg.GridSize())
	assert.Equal(t, 196, cfg.NumPatches())
	assert.Equal(t, 8, cfg.FreqBins())
	assert.Equal(t, 8, cfg.Depth())
}

func TestConfigValidation_BadPatchSize(t *testing.T) {
	backend := cpu.New()
	cfg := testConfig()
	cfg.PatchSize = 15 // 32 % 15 != 0

	assert.Panics(t, func() { New(cfg, backend) })
}

func TestDropPathSchedule(t *testing.T) {
	cfg := testConfig()
	cfg.DropPathRate = 0.7

	rates := cfg.dropPathSchedule()
	require.Len(t, rates, 8)
	assert.Equal(t, 0.0, rates[0])
	assert.InDelta(t, 0.7, rates[7], 1e-12)
	// Linear ramp: constant increments.
	step := rates[1] - rates[0]
	for i := 1; i < len(rates); i++ {
		assert.InDelta(t, step, rates[i]-rates[i-1], 1e-12)
	}

	cfg.UniformDrop = true
	for _, r := range cfg.dropPathSchedule() {
		assert.Equal(t, 0.7, r)
	}
}

func TestPatchEmbed_Shape(t *testing.T) {
	backend := cpu.New()
	pe := NewPatchEmbed(32, 16, 3, 48, backend)

	x := tensor.Randn[float32](tensor.Shape{2, 3, 32, 32}, backend)
	out := pe.Forward(x)

	require.True(t, out.Shape().Equal(tensor.Shape{2, 4, 48}), "got %v", out.Shape())
	assert.Equal(t, 4, pe.NumPatches())
}

func TestPatchEmbed_WrongImageSize(t *testing.T) {
	backend := cpu.New()
	pe := NewPatchEmbed(32, 16, 3, 48, backend)

	assert.Panics(t, func() {
		pe.Forward(tensor.Zeros[float32](tensor.Shape{1, 3, 64, 64}, backend))
	})
}

func TestForward_LogitShape(t *testing.T) {
	backend := cpu.New()
	m := New(testConfig(), backend)

	x := tensor.Randn[float32](tensor.Shape{2, 3, 32, 32}, backend)
	logits := m.Forward(x)

	require.True(t, logits.Shape().Equal(tensor.Shape{2, 5}), "got %v", logits.Shape())
	for i, v := range logits.Data() {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			t.Fatalf("logit[%d] is not finite: %v", i, v)
		}
	}
}

func TestForward_Deterministic(t *testing.T) {
	backend := cpu.New()
	m := New(testConfig(), backend)

	x := tensor.Randn[float32](tensor.Shape{1, 3, 32, 32}, backend)
	a := m.Forward(x).Data()
	b := m.Forward(x).Data()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Forward is not deterministic at [%d]: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestForward_AllVariants(t *testing.T) {
	backend := cpu.New()
	x := tensor.Randn[float32](tensor.Shape{1, 3, 32, 32}, backend)

	for _, v := range []Variant{VariantBase, VariantV2, VariantV3, VariantV4} {
		t.Run(v.String(), func(t *testing.T) {
			cfg := testConfig()
			cfg.Variant = v
			m := New(cfg, backend)

			logits := m.Forward(x)
			assert.True(t, logits.Shape().Equal(tensor.Shape{1, 5}), "got %v", logits.Shape())
			assert.Len(t, m.blocks, v.Layout().Depth())
		})
	}
}

func TestForward_DefaultConfig(t *testing.T) {
	if testing.Short() {
		t.Skip("full-size forward pass")
	}

	backend := cpu.New()
	m := New(DefaultConfig(), backend)

	// All-zero input still produces a finite, well-formed logit vector.
	x := tensor.Zeros[float32](tensor.Shape{1, 3, 224, 224}, backend)
	logits := m.Forward(x)

	require.True(t, logits.Shape().Equal(tensor.Shape{1, 44}), "got %v", logits.Shape())
	for i, v := range logits.Data() {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			t.Fatalf("logit[%d] is not finite: %v", i, v)
		}
	}

	probs := logits.Softmax(-1)
	sum := 0.0
	for _, v := range probs.Data() {
		sum += float64(v)
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
}

func TestStateDict_KeyLayout(t *testing.T) {
	backend := cpu.New()
	m := New(testConfig(), backend)
	sd := m.StateDict()

	// The base variant places its bridge at index 4, after the spectral
	// phase, and attention blocks from index 5.
	for _, key := range []string{
		"pos_embed",
		"patch_embed.stage1.0.weight",
		"patch_embed.stage2.0.weight",
		"patch_embed.stage2.1.bias",
		"blocks.0.filter.complex_weight",
		"blocks.0.norm1.weight",
		"blocks.3.mlp.fc2.bias",
		"blocks.4.alpha",
		"blocks.4.spectral.complex_weight",
		"blocks.4.attn_module.channel_att.conv_reduce.weight",
		"blocks.4.attn_module.spatial_att.bn.running_mean",
		"blocks.4.attn_module.fusion.conv_fusion.0.weight",
		"blocks.4.attn_module.fusion.conv_fusion.1.running_var",
		"blocks.4.proj.weight",
		"blocks.5.attn.q.weight",
		"blocks.5.attn.sr.1.weight",
		"blocks.5.attn.sr.5.running_mean",
		"blocks.5.attn.local_conv.bias",
		"blocks.7.norm2.weight",
		"norm.weight",
		"head.weight",
		"head.bias",
	} {
		if _, ok := sd[key]; !ok {
			t.Errorf("Missing state dict key %q", key)
		}
	}

	// No-bias convs must not leak bias keys.
	for _, key := range []string{
		"blocks.5.attn.sr.1.bias",
		"blocks.5.attn.sr.4.bias",
		"blocks.4.attn_module.spatial_att.conv_att.bias",
	} {
		if _, ok := sd[key]; ok {
			t.Errorf("Unexpected state dict key %q", key)
		}
	}

	// The unused-but-present norm of attention blocks stays in the layout.
	if _, ok := sd["blocks.5.norm1.weight"]; !ok {
		t.Error("Attention block norm1 must appear in the state dict")
	}
}

func TestStateDict_PreLogits(t *testing.T) {
	backend := cpu.New()
	cfg := testConfig()
	cfg.RepresentationSize = 24
	m := New(cfg, backend)

	sd := m.StateDict()
	require.Contains(t, sd, "pre_logits.fc.weight")
	require.True(t, sd["head.weight"].Shape().Equal(tensor.Shape{5, 24}), "got %v", sd["head.weight"].Shape())

	x := tensor.Randn[float32](tensor.Shape{1, 3, 32, 32}, backend)
	assert.True(t, m.Forward(x).Shape().Equal(tensor.Shape{1, 5}))
}

func TestLoadStateDict_RoundTrip(t *testing.T) {
	backend := cpu.New()
	cfg := testConfig()
	src := New(cfg, backend)
	dst := New(cfg, backend)

	report := dst.LoadStateDict(src.StateDict())
	require.True(t, report.Clean(), "report: %s", report)
	assert.Equal(t, len(src.StateDict()), report.Loaded)

	// Both models now agree on every forward pass.
	x := tensor.Randn[float32](tensor.Shape{1, 3, 32, 32}, backend)
	a, b := src.Forward(x).Data(), dst.Forward(x).Data()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Models disagree at logit [%d]: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestLoadStateDict_Partial(t *testing.T) {
	backend := cpu.New()
	m := New(testConfig(), backend)

	src := New(testConfig(), backend).StateDict()
	delete(src, "head.weight")
	wrong, _ := tensor.NewRaw(tensor.Shape{3, 3}, tensor.Float32, tensor.CPU)
	src["pos_embed"] = wrong
	extra, _ := tensor.NewRaw(tensor.Shape{1}, tensor.Float32, tensor.CPU)
	src["optimizer.step"] = extra

	report := m.LoadStateDict(src)
	assert.False(t, report.Clean())
	assert.Contains(t, report.Missing, "head.weight")
	assert.Contains(t, report.Unexpected, "optimizer.step")
	require.Len(t, report.Mismatched, 1)
	assert.Contains(t, report.Mismatched[0], "pos_embed")
	assert.Equal(t, len(m.StateDict())-2, report.Loaded)
}

func TestOSRAttention_HeadDivisibility(t *testing.T) {
	backend := cpu.New()
	assert.Panics(t, func() { NewOSRAttention(50, 6, 2, 0, backend) })
}

func TestNumParameters_ExcludesRunningStats(t *testing.T) {
	backend := cpu.New()
	m := New(testConfig(), backend)

	stateTotal := 0
	for _, tns := range m.StateDict() {
		stateTotal += tns.NumElements()
	}
	assert.Less(t, m.NumParameters(), stateTotal)
	assert.Greater(t, m.NumParameters(), 0)
}
