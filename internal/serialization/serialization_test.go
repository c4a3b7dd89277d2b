// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package serialization

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mayinchao/plant-identification-app/internal/tensor"
)

func makeStateDict(t *testing.T) map[string]*tensor.RawTensor {
	t.Helper()

	weight, err := tensor.NewRaw(tensor.Shape{2, 3}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	for i, v := range []float32{1, 2, 3, 4, 5, 6} {
		weight.AsFloat32()[i] = v
	}

	bias, err := tensor.NewRaw(tensor.Shape{2}, tensor.Float64, tensor.CPU)
	require.NoError(t, err)
	bias.AsFloat64()[0] = -1.5
	bias.AsFloat64()[1] = 2.5

	return map[string]*tensor.RawTensor{
		"layer.weight": weight,
		"layer.bias":   bias,
	}
}

func TestWriteRead_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.bryo")
	src := makeStateDict(t)

	err := WriteFile(path, src, Header{
		ModelType: "classifier",
		Metadata:  map[string]string{"variant": "base"},
	})
	require.NoError(t, err)

	got, header, err := ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, FormatVersion, header.FormatVersion)
	assert.Equal(t, "classifier", header.ModelType)
	assert.Equal(t, "base", header.Metadata["variant"])

	require.Len(t, got, 2)
	assert.True(t, got["layer.weight"].Shape().Equal(tensor.Shape{2, 3}))
	assert.Equal(t, tensor.Float32, got["layer.weight"].DType())
	assert.Equal(t, src["layer.weight"].AsFloat32(), got["layer.weight"].AsFloat32())
	assert.Equal(t, tensor.Float64, got["layer.bias"].DType())
	assert.Equal(t, src["layer.bias"].AsFloat64(), got["layer.bias"].AsFloat64())
}

func TestWrite_Deterministic(t *testing.T) {
	dir := t.TempDir()
	sd := makeStateDict(t)

	pathA := filepath.Join(dir, "a.bryo")
	pathB := filepath.Join(dir, "b.bryo")
	require.NoError(t, WriteFile(pathA, sd, Header{}))
	require.NoError(t, WriteFile(pathB, sd, Header{}))

	a, err := os.ReadFile(pathA)
	require.NoError(t, err)
	b, err := os.ReadFile(pathB)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(a, b), "identical state dicts must serialize identically")
}

func TestWrite_DataAligned(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.bryo")
	require.NoError(t, WriteFile(path, makeStateDict(t), Header{}))

	r, err := NewReader(path)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	assert.Zero(t, r.dataOffset%DataAlignment, "data section must be %d-byte aligned", DataAlignment)
}

func TestRead_InvalidMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.bryo")
	require.NoError(t, os.WriteFile(path, []byte("NOPE-not-a-checkpoint"), 0o644))

	_, err := NewReader(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

func TestRead_TruncatedData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.bryo")
	require.NoError(t, WriteFile(path, makeStateDict(t), Header{}))

	// Chop off the tail of the data section.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)-8], 0o644))

	_, err = NewReader(path)
	require.Error(t, err)
	var formatErr *FormatError
	assert.True(t, errors.As(err, &formatErr), "expected *FormatError, got %v", err)
}

func TestRead_TensorNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.bryo")
	require.NoError(t, WriteFile(path, makeStateDict(t), Header{}))

	r, err := NewReader(path)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	// Writer sorts by name.
	assert.Equal(t, []string{"layer.bias", "layer.weight"}, r.TensorNames())
}

func TestRead_MissingFile(t *testing.T) {
	_, err := NewReader(filepath.Join(t.TempDir(), "absent.bryo"))
	assert.Error(t, err)
}
