// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"math"
	"testing"

	"github.com/mayinchao/plant-identification-app/internal/backend/cpu"
	"github.com/mayinchao/plant-identification-app/internal/tensor"
)

func TestLinear_Forward2D(t *testing.T) {
	backend := cpu.New()
	layer := NewLinear(3, 2, backend)

	// W = [[1 0 0], [0 1 0]], b = [10, 20]
	w := layer.weight.Tensor().Data()
	for i := range w {
		w[i] = 0
	}
	w[0] = 1 // row 0 selects feature 0
	w[4] = 1 // row 1 selects feature 1
	b := layer.bias.Tensor().Data()
	b[0], b[1] = 10, 20

	input, _ := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, backend)
	out := layer.Forward(input)

	if !out.Shape().Equal(tensor.Shape{2, 2}) {
		t.Fatalf("Expected shape [2 2], got %v", out.Shape())
	}
	expected := []float32{11, 22, 14, 25}
	outData := out.Data()
	for i, exp := range expected {
		if outData[i] != exp {
			t.Errorf("Linear[%d]: expected %v, got %v", i, exp, outData[i])
		}
	}
}

func TestLinear_Forward3D(t *testing.T) {
	backend := cpu.New()
	layer := NewLinear(4, 2, backend)

	// Leading dims are flattened and restored: [2, 3, 4] -> [2, 3, 2].
	input := tensor.Randn[float32](tensor.Shape{2, 3, 4}, backend)
	out := layer.Forward(input)

	if !out.Shape().Equal(tensor.Shape{2, 3, 2}) {
		t.Errorf("Expected shape [2 3 2], got %v", out.Shape())
	}
}

func TestLinear_WrongFeatures(t *testing.T) {
	backend := cpu.New()
	layer := NewLinear(4, 2, backend)

	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for wrong input features")
		}
	}()
	layer.Forward(tensor.Zeros[float32](tensor.Shape{2, 3}, backend))
}

func TestLayerNorm_NormalizesRow(t *testing.T) {
	backend := cpu.New()
	layer := NewLayerNorm(4, 1e-6, backend)

	input, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{1, 4}, backend)
	out := layer.Forward(input)
	outData := out.Data()

	// With unit scale and zero shift, output has zero mean and unit variance.
	var mean float64
	for _, v := range outData {
		mean += float64(v)
	}
	mean /= 4
	if math.Abs(mean) > 1e-5 {
		t.Errorf("Expected zero mean, got %v", mean)
	}

	var variance float64
	for _, v := range outData {
		variance += float64(v) * float64(v)
	}
	variance /= 4
	if math.Abs(variance-1) > 1e-3 {
		t.Errorf("Expected unit variance, got %v", variance)
	}

	// Symmetric input: first and last elements mirror each other.
	if math.Abs(float64(outData[0]+outData[3])) > 1e-5 {
		t.Errorf("Expected symmetric output, got %v", outData)
	}
}

func TestLayerNorm_ScaleShift(t *testing.T) {
	backend := cpu.New()
	layer := NewLayerNorm(2, 1e-6, backend)

	// weight=2, bias=1 on a constant input: normalized value is 0, so the
	// output is exactly the bias.
	w := layer.weight.Tensor().Data()
	w[0], w[1] = 2, 2
	b := layer.bias.Tensor().Data()
	b[0], b[1] = 1, 1

	input, _ := tensor.FromSlice([]float32{5, 5}, tensor.Shape{1, 2}, backend)
	out := layer.Forward(input)
	for i, v := range out.Data() {
		if math.Abs(float64(v)-1) > 1e-5 {
			t.Errorf("LayerNorm[%d]: expected 1, got %v", i, v)
		}
	}
}

func TestBatchNorm2D_IdentityDefaults(t *testing.T) {
	backend := cpu.New()
	layer := NewBatchNorm2D(2, backend)

	// With mean 0, var 1, weight 1, bias 0 the layer is (nearly) the
	// identity; eps makes it a hair below unity scale.
	input := tensor.Randn[float32](tensor.Shape{1, 2, 3, 3}, backend)
	out := layer.Forward(input)

	inData, outData := input.Data(), out.Data()
	for i := range inData {
		if math.Abs(float64(outData[i]-inData[i])) > 1e-4 {
			t.Errorf("BatchNorm[%d]: expected ~%v, got %v", i, inData[i], outData[i])
		}
	}
}

func TestBatchNorm2D_RunningStats(t *testing.T) {
	backend := cpu.New()
	layer := NewBatchNorm2D(1, backend)

	// mean 2, var 4: input 4 normalizes to (4-2)/2 = 1.
	layer.runningMean.Tensor().Data()[0] = 2
	layer.runningVar.Tensor().Data()[0] = 4

	input, _ := tensor.FromSlice([]float32{4, 4, 4, 4}, tensor.Shape{1, 1, 2, 2}, backend)
	out := layer.Forward(input)
	for i, v := range out.Data() {
		if math.Abs(float64(v)-1) > 1e-4 {
			t.Errorf("BatchNorm[%d]: expected 1, got %v", i, v)
		}
	}
}

func TestConv2DLayer_BiasAdd(t *testing.T) {
	backend := cpu.New()
	layer := NewConv2D(1, 2, 1, Conv2DOptions{}, backend)

	// 1x1 kernels: out0 = 2*x + 1, out1 = 3*x - 1.
	w := layer.weight.Tensor().Data()
	w[0], w[1] = 2, 3
	b := layer.bias.Tensor().Data()
	b[0], b[1] = 1, -1

	input, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{1, 1, 2, 2}, backend)
	out := layer.Forward(input)

	if !out.Shape().Equal(tensor.Shape{1, 2, 2, 2}) {
		t.Fatalf("Expected shape [1 2 2 2], got %v", out.Shape())
	}
	expected := []float32{3, 5, 7, 9, 2, 5, 8, 11}
	outData := out.Data()
	for i, exp := range expected {
		if outData[i] != exp {
			t.Errorf("Conv2D[%d]: expected %v, got %v", i, exp, outData[i])
		}
	}
}

func TestConv2DLayer_NoBiasStateDict(t *testing.T) {
	backend := cpu.New()
	layer := NewConv2D(4, 4, 3, Conv2DOptions{Padding: 1, Groups: 4, NoBias: true}, backend)

	sd := map[string]*tensor.RawTensor{}
	layer.StateDict("dw", sd)

	if _, ok := sd["dw.weight"]; !ok {
		t.Error("Expected dw.weight in state dict")
	}
	if _, ok := sd["dw.bias"]; ok {
		t.Error("Bias-free layer must not export dw.bias")
	}
	if !sd["dw.weight"].Shape().Equal(tensor.Shape{4, 1, 3, 3}) {
		t.Errorf("Depthwise weight shape: got %v", sd["dw.weight"].Shape())
	}
}

func TestStateDictKeys(t *testing.T) {
	backend := cpu.New()

	sd := map[string]*tensor.RawTensor{}
	NewLinear(3, 2, backend).StateDict("fc", sd)
	NewLayerNorm(3, 1e-5, backend).StateDict("norm", sd)
	NewBatchNorm2D(3, backend).StateDict("bn", sd)

	for _, key := range []string{
		"fc.weight", "fc.bias",
		"norm.weight", "norm.bias",
		"bn.weight", "bn.bias", "bn.running_mean", "bn.running_var",
	} {
		if _, ok := sd[key]; !ok {
			t.Errorf("Missing state dict key %q", key)
		}
	}
}

func TestTruncNormal_Bounded(t *testing.T) {
	backend := cpu.New()
	const std = 0.02

	w := TruncNormal[*cpu.CPUBackend](tensor.Shape{1000}, std, backend)
	for i, v := range w.Data() {
		if math.Abs(float64(v)) > 2*std {
			t.Fatalf("TruncNormal[%d] = %v exceeds 2*std", i, v)
		}
	}
}

func TestDropoutIdentity(t *testing.T) {
	backend := cpu.New()

	x := tensor.Randn[float32](tensor.Shape{2, 3}, backend)
	if NewDropout[*cpu.CPUBackend](0.5).Forward(x) != x {
		t.Error("Dropout must be the identity in inference mode")
	}
	if NewDropPath[*cpu.CPUBackend](0.1).Forward(x) != x {
		t.Error("DropPath must be the identity in inference mode")
	}
}
