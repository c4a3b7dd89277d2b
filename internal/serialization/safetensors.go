// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/mayinchao/plant-identification-app/internal/tensor"
)

// Safetensors layout:
//
//	[0:8]  header size (uint64 LE)
//	[8:..] JSON header: {"name": {"dtype", "shape", "data_offsets"}, "__metadata__": {...}}
//	[..]   raw tensor data, offsets relative to the end of the header
//
// Training happens in PyTorch; this reader lets exported weights load
// without a conversion step through the native container.

// safetensorsInfo describes one tensor entry in the JSON header.
type safetensorsInfo struct {
	DType       string   `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// IsSafetensorsPath reports whether the path names a safetensors file.
func IsSafetensorsPath(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".safetensors")
}

func safetensorsDType(s string) (tensor.DataType, error) {
	switch s {
	case "F32":
		return tensor.Float32, nil
	case "F64":
		return tensor.Float64, nil
	default:
		return 0, fmt.Errorf("%w: safetensors dtype %q", ErrUnknownDType, s)
	}
}

// ReadSafetensors loads every tensor from a safetensors file. The metadata
// map from the "__metadata__" entry is returned alongside; it is nil when
// the file carries none.
func ReadSafetensors(path string) (map[string]*tensor.RawTensor, map[string]string, error) {
	//nolint:gosec // G304: the checkpoint path is caller-chosen by design
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open safetensors file: %w", err)
	}
	defer file.Close()

	var headerSize uint64
	if err := binary.Read(file, binary.LittleEndian, &headerSize); err != nil {
		return nil, nil, fmt.Errorf("failed to read safetensors header size: %w", err)
	}
	if headerSize > MaxHeaderSize {
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, headerSize)
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(file, headerBytes); err != nil {
		return nil, nil, fmt.Errorf("failed to read safetensors header: %w", err)
	}

	var rawHeader map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &rawHeader); err != nil {
		return nil, nil, fmt.Errorf("failed to parse safetensors header: %w", err)
	}

	var metadata map[string]string
	if metaRaw, ok := rawHeader["__metadata__"]; ok {
		if err := json.Unmarshal(metaRaw, &metadata); err != nil {
			return nil, nil, fmt.Errorf("failed to parse safetensors metadata: %w", err)
		}
		delete(rawHeader, "__metadata__")
	}

	dataOffset := int64(8 + headerSize) //nolint:gosec // G115: bounded by MaxHeaderSize
	sd := make(map[string]*tensor.RawTensor, len(rawHeader))
	for name, entry := range rawHeader {
		var info safetensorsInfo
		if err := json.Unmarshal(entry, &info); err != nil {
			return nil, nil, &FormatError{Tensor: name, Details: fmt.Sprintf("bad header entry: %v", err)}
		}
		raw, err := readSafetensorsTensor(file, dataOffset, name, info)
		if err != nil {
			return nil, nil, err
		}
		sd[name] = raw
	}
	return sd, metadata, nil
}

func readSafetensorsTensor(file *os.File, dataOffset int64, name string, info safetensorsInfo) (*tensor.RawTensor, error) {
	dtype, err := safetensorsDType(info.DType)
	if err != nil {
		return nil, &FormatError{Tensor: name, Details: err.Error()}
	}

	start, end := info.DataOffsets[0], info.DataOffsets[1]
	if start < 0 || end < start {
		return nil, &FormatError{Tensor: name, Details: fmt.Sprintf("invalid data offsets [%d, %d]", start, end)}
	}

	raw, err := tensor.NewRaw(tensor.Shape(info.Shape), dtype, tensor.CPU)
	if err != nil {
		return nil, &FormatError{Tensor: name, Details: err.Error()}
	}
	if want := int64(len(raw.Data())); end-start != want {
		return nil, &FormatError{
			Tensor:  name,
			Details: fmt.Sprintf("data span %d bytes, shape %v implies %d", end-start, info.Shape, want),
		}
	}

	if _, err := file.ReadAt(raw.Data(), dataOffset+start); err != nil {
		return nil, &FormatError{Tensor: name, Details: fmt.Sprintf("read failed: %v", err)}
	}
	return raw, nil
}

// WriteSafetensors writes a state dict as a safetensors file, mainly so
// tests can produce fixtures without PyTorch. Tensors are laid out in
// sorted name order.
func WriteSafetensors(path string, stateDict map[string]*tensor.RawTensor, metadata map[string]string) error {
	names := make([]string, 0, len(stateDict))
	for name := range stateDict {
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]any, len(names)+1)
	if metadata != nil {
		header["__metadata__"] = metadata
	}
	var offset int64
	for _, name := range names {
		raw := stateDict[name]
		var dtype string
		switch raw.DType() {
		case tensor.Float64:
			dtype = "F64"
		default:
			dtype = "F32"
		}
		size := int64(len(raw.Data()))
		header[name] = safetensorsInfo{
			DType:       dtype,
			Shape:       []int(raw.Shape()),
			DataOffsets: [2]int64{offset, offset + size},
		}
		offset += size
	}

	headerBytes, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to encode safetensors header: %w", err)
	}

	//nolint:gosec // G304: the output path is caller-chosen by design
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create safetensors file: %w", err)
	}
	defer file.Close()

	if err := binary.Write(file, binary.LittleEndian, uint64(len(headerBytes))); err != nil {
		return fmt.Errorf("failed to write safetensors header size: %w", err)
	}
	if _, err := file.Write(headerBytes); err != nil {
		return fmt.Errorf("failed to write safetensors header: %w", err)
	}
	for _, name := range names {
		if _, err := file.Write(stateDict[name].Data()); err != nil {
			return fmt.Errorf("failed to write tensor %s: %w", name, err)
		}
	}
	return file.Close()
}
