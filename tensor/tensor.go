// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public shape and tensor-handle types the dispatch
// scheduler plans against.
//
// A Tensor carries no data of its own: it pairs a Shape and DataType with a device
// buffer. Storage is always dense and row-major.
//
// Example:
//
//	dev := cpu.New()
//	x, _ := cpu.FromSlice(dev, tensor.Shape{2, 3}, tensor.Float32, []float32{1, 2, 3, 4, 5, 6})
//	fmt.Println(x.Shape()) // (2, 3)
package tensor

import (
	"github.com/born-ml/dispatch/internal/tensor"
)

// MaxRank is the highest rank a kernel can address.
const MaxRank = tensor.MaxRank

// DataType represents the element type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
	Float16 DataType = tensor.Float16
	Int32   DataType = tensor.Int32
	Int64   DataType = tensor.Int64
	Uint8   DataType = tensor.Uint8
	Bool    DataType = tensor.Bool
)

// Shape represents the dimensions of a tensor.
// Example: Shape{2, 3, 4} represents a 3D tensor with dimensions 2×3×4.
type Shape = tensor.Shape

// Buffer is device memory holding a tensor's elements.
type Buffer = tensor.Buffer

// Tensor is a shape and element type over a device buffer.
type Tensor = tensor.Tensor

// New wraps buffer as a tensor of the given shape and type.
// The buffer must hold at least shape.NumElements() elements of dtype.
func New(shape Shape, dtype DataType, buffer Buffer) (*Tensor, error) {
	return tensor.New(shape, dtype, buffer)
}

// BroadcastShapes computes the NumPy-style broadcast of a and b.
// The boolean reports whether broadcasting was needed.
func BroadcastShapes(a, b Shape) (Shape, bool, error) {
	return tensor.BroadcastShapes(a, b)
}
