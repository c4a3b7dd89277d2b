// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

// Backend defines the interface compute backends must implement.
// Backends own the actual arithmetic; tensors only carry data and shape.
//
// Implementations:
//   - cpu: pure Go reference implementation
//
// Every operation allocates its result; inputs are never mutated, which is
// what makes concurrent inference over a shared parameter set safe.
type Backend interface {
	// Element-wise binary operations with broadcasting.
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// Matrix operations.
	MatMul(a, b *RawTensor) *RawTensor
	// BatchMatMul performs batched matrix multiplication.
	// For 3D: [B, M, K] @ [B, K, N] -> [B, M, N]
	// For 4D: [B, H, M, K] @ [B, H, K, N] -> [B, H, M, N]
	BatchMatMul(a, b *RawTensor) *RawTensor

	// Convolution and pooling over [N, C, H, W] maps.
	// Conv2D supports grouped (and therefore depthwise) convolution; the
	// kernel is [C_out, C_in/groups, K_h, K_w].
	Conv2D(input, kernel *RawTensor, stride, padding, groups int) *RawTensor
	AvgPool2D(input *RawTensor, kernelSize, stride int) *RawTensor

	// ResizeBicubic resizes the two trailing spatial dims of a 4D tensor
	// using bicubic interpolation without corner alignment.
	ResizeBicubic(x *RawTensor, outH, outW int) *RawTensor

	// Scalar operations.
	MulScalar(x *RawTensor, scalar float64) *RawTensor
	AddScalar(x *RawTensor, scalar float64) *RawTensor

	// Element-wise math and activations.
	Sqrt(x *RawTensor) *RawTensor
	Rsqrt(x *RawTensor) *RawTensor
	ReLU(x *RawTensor) *RawTensor
	GELU(x *RawTensor) *RawTensor
	Sigmoid(x *RawTensor) *RawTensor
	Tanh(x *RawTensor) *RawTensor

	// Softmax along a dimension (negative dims count from the end).
	Softmax(x *RawTensor, dim int) *RawTensor

	// Reductions.
	SumDim(x *RawTensor, dim int, keepDim bool) *RawTensor
	MeanDim(x *RawTensor, dim int, keepDim bool) *RawTensor
	MaxDim(x *RawTensor, dim int, keepDim bool) *RawTensor

	// Shape manipulation.
	Reshape(t *RawTensor, newShape Shape) *RawTensor
	Transpose(t *RawTensor, axes ...int) *RawTensor
	Cat(tensors []*RawTensor, dim int) *RawTensor
	Chunk(x *RawTensor, n, dim int) []*RawTensor
	Unsqueeze(x *RawTensor, dim int) *RawTensor

	// Metadata.
	Name() string
	Device() Device
}
