package tensor

import (
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Buffer is an opaque device allocation.
// Len is the element capacity, not the byte size.
type Buffer interface {
	Len() int
	DType() DataType
}

// Tensor pairs a shape with the device buffer holding its elements.
// It does not own the buffer: whoever allocated it (caller or scratch pool) frees it.
type Tensor struct {
	shape  Shape
	dtype  DataType
	buffer Buffer
}

// New creates a tensor view over buffer.
// A nil buffer is only accepted for zero-dim shapes, which never reach a kernel.
func New(shape Shape, dtype DataType, buffer Buffer) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid shape")
	}
	if buffer == nil {
		if !shape.IsZeroDim() {
			return nil, errors.Errorf("nil buffer for non-empty shape %s", shape)
		}
	} else {
		if buffer.DType() != dtype {
			return nil, errors.Errorf("buffer dtype %s does not match tensor dtype %s", buffer.DType(), dtype)
		}
		if buffer.Len() < shape.NumElements() {
			return nil, errors.Errorf("buffer holds %d elements, shape %s needs %d",
				buffer.Len(), shape, shape.NumElements())
		}
	}
	return &Tensor{shape: shape.Clone(), dtype: dtype, buffer: buffer}, nil
}

// Shape returns the tensor's shape.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// DType returns the tensor's data type.
func (t *Tensor) DType() DataType {
	return t.dtype
}

// Buffer returns the device buffer backing the tensor.
func (t *Tensor) Buffer() Buffer {
	return t.buffer
}

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int {
	return t.shape.NumElements()
}

// Reshape returns a view of the same buffer with a different shape.
// It panics if the element counts differ.
func (t *Tensor) Reshape(shape Shape) *Tensor {
	if shape.NumElements() != t.shape.NumElements() {
		exceptions.Panicf("cannot reshape %s (%d elements) to %s (%d elements)",
			t.shape, t.shape.NumElements(), shape, shape.NumElements())
	}
	return &Tensor{shape: shape.Clone(), dtype: t.dtype, buffer: t.buffer}
}

// SameBuffer reports whether both tensors are backed by the same allocation.
func (t *Tensor) SameBuffer(other *Tensor) bool {
	return t.buffer != nil && t.buffer == other.buffer
}
