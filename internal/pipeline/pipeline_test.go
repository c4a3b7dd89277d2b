// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package pipeline

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mayinchao/plant-identification-app/internal/backend/cpu"
	"github.com/mayinchao/plant-identification-app/internal/model"
	"github.com/mayinchao/plant-identification-app/internal/serialization"
	"github.com/mayinchao/plant-identification-app/internal/tensor"
)

func testConfig() model.ModelConfig {
	return model.ModelConfig{
		Variant:    model.VariantBase,
		ImageSize:  32,
		PatchSize:  16,
		InChans:    3,
		NumClasses: 5,
		EmbedDim:   48,
		MlpRatio:   2.0,
	}
}

// testImage is a small gradient so different pixels carry different values.
func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x * 255 / w),
				G: uint8(y * 255 / h),
				B: uint8((x + y) * 255 / (w + h)),
				A: 255,
			})
		}
	}
	return img
}

func writeCheckpoint(t *testing.T, sd map[string]*tensor.RawTensor) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.bin")
	err := serialization.WriteFile(path, sd, serialization.Header{ModelType: "bryoformer"})
	require.NoError(t, err)
	return path
}

func TestPipeline_RandomFallbackWithoutCheckpoint(t *testing.T) {
	p := New(Options{Config: testConfig()}, cpu.New())

	assert.Equal(t, StateRandomFallback, p.State())
	assert.False(t, p.State().Trained())
	assert.Nil(t, p.Report())

	result, err := p.Classify(testImage(64, 48), 3)
	require.NoError(t, err)
	assert.False(t, result.Trained)
	assert.Len(t, result.Predictions, 3)
	require.NotNil(t, result.Top)
	assert.Equal(t, result.Predictions[0], *result.Top)
}

func TestPipeline_ConfidencesSumToOne(t *testing.T) {
	p := New(Options{Config: testConfig()}, cpu.New())

	result, err := p.Classify(testImage(32, 32), 5)
	require.NoError(t, err)
	require.Len(t, result.Predictions, 5)

	sum := 0.0
	for i, pred := range result.Predictions {
		sum += pred.Confidence
		if i > 0 {
			assert.LessOrEqual(t, pred.Confidence, result.Predictions[i-1].Confidence)
		}
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
}

func TestPipeline_StrictLoad(t *testing.T) {
	source := New(Options{Config: testConfig()}, cpu.New())
	path := writeCheckpoint(t, source.Model().StateDict())

	p := New(Options{Config: testConfig(), CheckpointPath: path}, cpu.New())
	assert.Equal(t, StateLoadedStrict, p.State())
	assert.True(t, p.State().Trained())
	require.NotNil(t, p.Report())
	assert.True(t, p.Report().Clean())

	// Loaded weights make the two pipelines agree exactly.
	img := testImage(40, 40)
	want, err := source.Classify(img, 5)
	require.NoError(t, err)
	got, err := p.Classify(img, 5)
	require.NoError(t, err)
	require.Len(t, got.Predictions, len(want.Predictions))
	for i := range want.Predictions {
		assert.Equal(t, want.Predictions[i].ClassID, got.Predictions[i].ClassID)
		assert.Equal(t, want.Predictions[i].Confidence, got.Predictions[i].Confidence)
	}
	assert.True(t, got.Trained)
}

func TestPipeline_PartialLoad(t *testing.T) {
	source := New(Options{Config: testConfig()}, cpu.New())
	sd := source.Model().StateDict()
	delete(sd, "head.weight")
	path := writeCheckpoint(t, sd)

	p := New(Options{Config: testConfig(), CheckpointPath: path}, cpu.New())
	assert.Equal(t, StateLoadedPartial, p.State())
	assert.True(t, p.State().Trained())
	require.NotNil(t, p.Report())
	assert.Contains(t, p.Report().Missing, "head.weight")

	result, err := p.Classify(testImage(32, 32), 1)
	require.NoError(t, err)
	assert.True(t, result.Trained)
}

func TestPipeline_MissingCheckpointFallsBack(t *testing.T) {
	p := New(Options{
		Config:         testConfig(),
		CheckpointPath: filepath.Join(t.TempDir(), "nope.bin"),
	}, cpu.New())
	assert.Equal(t, StateRandomFallback, p.State())
}

func TestPipeline_CorruptCheckpointFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.bin")
	require.NoError(t, os.WriteFile(path, []byte("not a checkpoint"), 0o644))

	p := New(Options{Config: testConfig(), CheckpointPath: path}, cpu.New())
	assert.Equal(t, StateRandomFallback, p.State())

	// Inference still works on random weights.
	_, err := p.Classify(testImage(32, 32), 1)
	assert.NoError(t, err)
}

func TestPipeline_WrapperPrefixedCheckpoint(t *testing.T) {
	source := New(Options{Config: testConfig()}, cpu.New())
	wrapped := make(map[string]*tensor.RawTensor)
	for key, raw := range source.Model().StateDict() {
		wrapped["state_dict."+key] = raw
	}
	path := writeCheckpoint(t, wrapped)

	p := New(Options{Config: testConfig(), CheckpointPath: path}, cpu.New())
	assert.Equal(t, StateLoadedStrict, p.State())
}

func TestPipeline_SafetensorsCheckpoint(t *testing.T) {
	source := New(Options{Config: testConfig()}, cpu.New())
	path := filepath.Join(t.TempDir(), "model.safetensors")
	require.NoError(t, serialization.WriteSafetensors(path, source.Model().StateDict(), nil))

	p := New(Options{Config: testConfig(), CheckpointPath: path}, cpu.New())
	assert.Equal(t, StateLoadedStrict, p.State())
}

func TestPipeline_TopKClamped(t *testing.T) {
	p := New(Options{Config: testConfig()}, cpu.New())

	result, err := p.Classify(testImage(32, 32), 99)
	require.NoError(t, err)
	assert.Len(t, result.Predictions, 5)

	result, err = p.Classify(testImage(32, 32), 0)
	require.NoError(t, err)
	assert.Empty(t, result.Predictions)
	assert.Nil(t, result.Top)
}

func TestPipeline_UnknownClassesOmitted(t *testing.T) {
	// Taxonomy that only covers two of the five classes.
	taxPath := filepath.Join(t.TempDir(), "taxonomy.json")
	taxJSON := `{
		"0": {"name": "Rose", "sci_name": "Rosa rugosa", "family": "Rosaceae"},
		"3": {"name": "Sunflower", "sci_name": "Helianthus annuus", "family": "Asteraceae"}
	}`
	require.NoError(t, os.WriteFile(taxPath, []byte(taxJSON), 0o644))

	p := New(Options{Config: testConfig(), TaxonomyPath: taxPath}, cpu.New())
	result, err := p.Classify(testImage(32, 32), 5)
	require.NoError(t, err)

	assert.LessOrEqual(t, len(result.Predictions), 2)
	for _, pred := range result.Predictions {
		assert.Contains(t, []int{0, 3}, pred.ClassID)
		assert.NotEmpty(t, pred.Name)
	}
}

func TestPipeline_BadTaxonomyFallsBack(t *testing.T) {
	taxPath := filepath.Join(t.TempDir(), "taxonomy.json")
	require.NoError(t, os.WriteFile(taxPath, []byte("{broken"), 0o644))

	p := New(Options{Config: testConfig(), TaxonomyPath: taxPath}, cpu.New())
	result, err := p.Classify(testImage(32, 32), 5)
	require.NoError(t, err)
	// Built-in table covers all five test classes.
	assert.Len(t, result.Predictions, 5)
}

func TestPipeline_ClassifyBatch(t *testing.T) {
	p := New(Options{Config: testConfig()}, cpu.New())

	imgs := []image.Image{testImage(32, 32), testImage(64, 64), testImage(20, 50)}
	results, err := p.ClassifyBatch(imgs, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Batch results match the single-image path per input.
	for i, img := range imgs {
		single, err := p.Classify(img, 2)
		require.NoError(t, err)
		require.Len(t, results[i].Predictions, len(single.Predictions))
		for j := range single.Predictions {
			assert.Equal(t, single.Predictions[j].ClassID, results[i].Predictions[j].ClassID)
			assert.InDelta(t, single.Predictions[j].Confidence, results[i].Predictions[j].Confidence, 1e-6)
		}
	}

	_, err = p.ClassifyBatch(nil, 2)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestPipeline_NonFiniteLogits(t *testing.T) {
	p := New(Options{Config: testConfig()}, cpu.New())

	// Poison a head weight; state dict entries are live buffers.
	head := p.Model().StateDict()["head.weight"]
	require.NotNil(t, head)
	head.AsFloat32()[0] = float32(math.NaN())

	_, err := p.Classify(testImage(32, 32), 1)
	assert.ErrorIs(t, err, ErrCompute)
}

func TestDecodeImage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage(16, 16)))

	img, err := DecodeImageBytes(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())

	_, err = DecodeImageBytes([]byte("definitely not an image"))
	assert.ErrorIs(t, err, ErrImageDecode)
	assert.True(t, errors.Is(err, ErrImageDecode))
}

func TestNormalizeKeys(t *testing.T) {
	raw := func() *tensor.RawTensor {
		r, err := tensor.NewRaw(tensor.Shape{2}, tensor.Float32, tensor.CPU)
		require.NoError(t, err)
		return r
	}

	sd := map[string]*tensor.RawTensor{
		"state_dict.head.weight":                 raw(),
		"state_dict.module.pos_embed":            raw(),
		"state_dict.norm.num_batches_tracked":    raw(),
		"state_dict.blocks.0.norm1.weight":       raw(),
		"state_dict.patch_embed.stage1.0.weight": raw(),
	}
	got := NormalizeKeys(sd)

	assert.Contains(t, got, "head.weight")
	assert.Contains(t, got, "pos_embed")
	assert.Contains(t, got, "blocks.0.norm1.weight")
	assert.Contains(t, got, "patch_embed.stage1.0.weight")
	assert.NotContains(t, got, "norm.num_batches_tracked")
	assert.Len(t, got, 4)

	// Idempotent.
	again := NormalizeKeys(got)
	assert.Equal(t, got, again)
}

func TestNormalizeKeys_NoSharedPrefixLeftAlone(t *testing.T) {
	raw, err := tensor.NewRaw(tensor.Shape{2}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)

	// "model." is only stripped as a wrapper when every key has it;
	// here pos_embed does not, so keys pass through untouched.
	sd := map[string]*tensor.RawTensor{
		"pos_embed":   raw,
		"head.weight": raw,
	}
	got := NormalizeKeys(sd)
	assert.Contains(t, got, "pos_embed")
	assert.Contains(t, got, "head.weight")
}

func TestLoadTaxonomy_SkipsInvalidKeys(t *testing.T) {
	taxPath := filepath.Join(t.TempDir(), "taxonomy.json")
	taxJSON := `{
		"0": {"name": "Rose", "sci_name": "Rosa rugosa", "family": "Rosaceae"},
		"banana": {"name": "Bad", "sci_name": "Bad", "family": "Bad"},
		"-3": {"name": "Negative", "sci_name": "Negative", "family": "Negative"}
	}`
	require.NoError(t, os.WriteFile(taxPath, []byte(taxJSON), 0o644))

	tax, err := LoadTaxonomy(taxPath)
	require.NoError(t, err)
	assert.Len(t, tax, 1)
	assert.Equal(t, "Rose", tax[0].Name)
}

func TestDefaultConfigUsedWhenZero(t *testing.T) {
	// Constructing with the zero config builds the full default model, so
	// just verify the substitution happens without running inference.
	p := New(Options{}, cpu.New())
	assert.Equal(t, model.DefaultConfig().NumClasses, p.Model().Config().NumClasses)
}
