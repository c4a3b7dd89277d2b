// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package pipeline

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // decoder registration
	_ "image/png"  // decoder registration
	"io"

	"github.com/nfnt/resize"

	"github.com/mayinchao/plant-identification-app/internal/tensor"
)

// ImageNet channel statistics; the model was trained on inputs normalized
// with these.
var (
	imagenetMean = [3]float32{0.485, 0.456, 0.406}
	imagenetStd  = [3]float32{0.229, 0.224, 0.225}
)

// DecodeImage decodes JPEG or PNG bytes from r.
func DecodeImage(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	return img, nil
}

// DecodeImageBytes decodes JPEG or PNG bytes.
func DecodeImageBytes(data []byte) (image.Image, error) {
	return DecodeImage(bytes.NewReader(data))
}

// preprocess resizes the image to size×size with bicubic interpolation and
// converts it to a [3, size, size] float32 tensor in CHW order, normalized
// with the ImageNet statistics.
func preprocess(img image.Image, size int) (*tensor.RawTensor, error) {
	resized := resize.Resize(uint(size), uint(size), img, resize.Bicubic)

	raw, err := tensor.NewRaw(tensor.Shape{3, size, size}, tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, err
	}
	data := raw.AsFloat32()

	bounds := resized.Bounds()
	plane := size * size
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			idx := y*size + x
			data[idx] = (float32(r)/65535.0 - imagenetMean[0]) / imagenetStd[0]
			data[plane+idx] = (float32(g)/65535.0 - imagenetMean[1]) / imagenetStd[1]
			data[2*plane+idx] = (float32(b)/65535.0 - imagenetMean[2]) / imagenetStd[2]
		}
	}
	return raw, nil
}
