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

	"github.com/mayinchao/plant-identification-app/internal/tensor"
)

// Reader reads checkpoint files.
type Reader struct {
	file       *os.File
	header     Header
	version    uint32
	dataOffset int64
	dataSize   int64
	closed     bool
}

// NewReader opens a checkpoint file and parses and validates its header.
func NewReader(path string) (*Reader, error) {
	//nolint:gosec // G304: the path is caller-chosen by design
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	r := &Reader{file: file}
	if err := r.parseHeader(); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	r.dataSize = info.Size() - r.dataOffset

	if err := r.validate(); err != nil {
		_ = file.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) parseHeader() error {
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r.file, magic); err != nil {
		return fmt.Errorf("failed to read magic bytes: %w", err)
	}
	if string(magic) != MagicBytes {
		return ErrInvalidMagic
	}

	if err := binary.Read(r.file, binary.LittleEndian, &r.version); err != nil {
		return fmt.Errorf("failed to read version: %w", err)
	}
	if r.version != FormatVersion {
		return fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, r.version, FormatVersion)
	}

	var headerSize uint64
	if err := binary.Read(r.file, binary.LittleEndian, &headerSize); err != nil {
		return fmt.Errorf("failed to read header size: %w", err)
	}
	if headerSize > MaxHeaderSize {
		return ErrHeaderTooLarge
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(r.file, headerBytes); err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	if err := json.Unmarshal(headerBytes, &r.header); err != nil {
		return fmt.Errorf("failed to parse header JSON: %w", err)
	}

	pos := int64(4+4+8) + int64(headerSize)
	padding := (DataAlignment - pos%DataAlignment) % DataAlignment
	r.dataOffset = pos + padding
	return nil
}

// validate checks every tensor record against the data section bounds.
func (r *Reader) validate() error {
	for _, meta := range r.header.Tensors {
		if meta.Offset < 0 || meta.Size < 0 {
			return &FormatError{Tensor: meta.Name, Details: ErrNegativeOffset.Error()}
		}
		if meta.Offset+meta.Size > r.dataSize {
			return &FormatError{Tensor: meta.Name, Details: ErrOutOfBounds.Error()}
		}
		dt, ok := stringToDtype(meta.DType)
		if !ok {
			return &FormatError{Tensor: meta.Name, Details: fmt.Sprintf("%v: %q", ErrUnknownDType, meta.DType)}
		}
		expected := int64(tensor.Shape(meta.Shape).NumElements() * dt.Size())
		if expected != meta.Size {
			return &FormatError{
				Tensor:  meta.Name,
				Details: fmt.Sprintf("shape %v implies %d bytes, header says %d", meta.Shape, expected, meta.Size),
			}
		}
	}
	return nil
}

// Header returns the parsed file header.
func (r *Reader) Header() Header {
	return r.header
}

// TensorNames returns the names of all tensors in the file, in header order.
func (r *Reader) TensorNames() []string {
	names := make([]string, len(r.header.Tensors))
	for i, meta := range r.header.Tensors {
		names[i] = meta.Name
	}
	return names
}

// ReadStateDict reads every tensor into memory.
func (r *Reader) ReadStateDict() (map[string]*tensor.RawTensor, error) {
	if r.closed {
		return nil, fmt.Errorf("reader is closed")
	}

	sd := make(map[string]*tensor.RawTensor, len(r.header.Tensors))
	for _, meta := range r.header.Tensors {
		raw, err := r.readTensor(meta)
		if err != nil {
			return nil, err
		}
		sd[meta.Name] = raw
	}
	return sd, nil
}

func (r *Reader) readTensor(meta TensorMeta) (*tensor.RawTensor, error) {
	dt, _ := stringToDtype(meta.DType) // validated at open

	raw, err := tensor.NewRaw(tensor.Shape(meta.Shape), dt, tensor.CPU)
	if err != nil {
		return nil, &FormatError{Tensor: meta.Name, Details: err.Error()}
	}
	if _, err := r.file.ReadAt(raw.Data(), r.dataOffset+meta.Offset); err != nil {
		return nil, fmt.Errorf("failed to read tensor %q: %w", meta.Name, err)
	}
	return raw, nil
}

// Close closes the underlying file. Safe to call more than once.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}

// ReadFile opens a checkpoint, reads every tensor, and closes it.
func ReadFile(path string) (map[string]*tensor.RawTensor, Header, error) {
	r, err := NewReader(path)
	if err != nil {
		return nil, Header{}, err
	}
	defer func() { _ = r.Close() }()

	sd, err := r.ReadStateDict()
	if err != nil {
		return nil, Header{}, err
	}
	return sd, r.Header(), nil
}
