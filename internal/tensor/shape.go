package tensor

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// MaxRank is the highest rank kernels can address.
// Shape metadata is uploaded in fixed arrays of this width.
const MaxRank = 8

// Shape represents the dimensions of a tensor.
type Shape []int

// Rank returns the number of dimensions.
func (s Shape) Rank() int {
	return len(s)
}

// NumElements returns the total number of elements in the tensor.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 1 // Scalar has 1 element
	}
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// IsZeroDim reports whether any dimension is 0.
// Operations over zero-dim shapes short-circuit and never reach a kernel.
func (s Shape) IsZeroDim() bool {
	for _, dim := range s {
		if dim == 0 {
			return true
		}
	}
	return false
}

// Validate checks that the shape has rank <= MaxRank and no negative dimensions.
func (s Shape) Validate() error {
	if len(s) > MaxRank {
		return errors.Errorf("rank %d exceeds maximum supported rank %d", len(s), MaxRank)
	}
	for i, dim := range s {
		if dim < 0 {
			return errors.Errorf("invalid dimension at index %d: %d (must be >= 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// ComputeStrides calculates row-major strides for the shape.
// Strides define memory layout: stride[i] = product of all dimensions after i.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// Stride returns the row-major stride of axis.
func (s Shape) Stride(axis int) int {
	return s.Span(axis+1, len(s))
}

// Span returns the product of dims[from:to].
func (s Shape) Span(from, to int) int {
	n := 1
	for i := from; i < to; i++ {
		n *= s[i]
	}
	return n
}

// NormalizeAxis maps a possibly negative axis onto [0, rank).
// It panics if the axis is out of range.
func (s Shape) NormalizeAxis(axis int) int {
	rank := len(s)
	if axis < 0 {
		axis += rank
	}
	if axis < 0 || axis >= rank {
		exceptions.Panicf("axis %d out of range for rank %d shape %s", axis, rank, s)
	}
	return axis
}

// WithOnes returns a copy of the shape with the given (normalized) axes set to 1.
func (s Shape) WithOnes(axes ...int) Shape {
	out := s.Clone()
	for _, axis := range axes {
		out[axis] = 1
	}
	return out
}

// Reduced returns the shape left after reducing axes (already normalized).
// With keepDim the reduced axes stay with size 1, otherwise they are removed.
// An empty axes list reduces every axis.
func (s Shape) Reduced(axes []int, keepDim bool) Shape {
	reduced := make([]bool, len(s))
	if len(axes) == 0 {
		for i := range reduced {
			reduced[i] = true
		}
	}
	for _, axis := range axes {
		reduced[axis] = true
	}
	out := make(Shape, 0, len(s))
	for i, dim := range s {
		switch {
		case !reduced[i]:
			out = append(out, dim)
		case keepDim:
			out = append(out, 1)
		}
	}
	return out
}

// String implements fmt.Stringer.
func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, dim := range s {
		parts[i] = fmt.Sprint(dim)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// BroadcastShapes implements NumPy-style broadcasting rules.
//
// Rules:
// 1. Compare shapes element-wise from right to left
// 2. Dimensions are compatible if:
//   - They are equal, OR
//   - One of them is 1
//
// 3. Missing dimensions are treated as 1
//
// Returns the broadcasted shape, a flag indicating if broadcasting is needed, and an error if incompatible.
//
// Examples:
//
//	(3, 1) + (3, 5) → (3, 5), true, nil
//	(1, 5) + (3, 5) → (3, 5), true, nil
//	(3, 5) + (3, 5) → (3, 5), false, nil
//	(3, 4) + (3, 5) → nil, false, Error
func BroadcastShapes(a, b Shape) (Shape, bool, error) {
	maxLen := max(len(a), len(b))
	result := make(Shape, maxLen)
	needsBroadcast := len(a) != len(b)

	for i := 0; i < maxLen; i++ {
		aIdx := len(a) - 1 - i
		bIdx := len(b) - 1 - i

		aDim := 1
		if aIdx >= 0 {
			aDim = a[aIdx]
		}

		bDim := 1
		if bIdx >= 0 {
			bDim = b[bIdx]
		}

		switch {
		case aDim == bDim:
			result[maxLen-1-i] = aDim
		case aDim == 1:
			result[maxLen-1-i] = bDim
			needsBroadcast = true
		case bDim == 1:
			result[maxLen-1-i] = aDim
			needsBroadcast = true
		default:
			return nil, false, errors.Errorf("shapes not compatible for broadcasting: %s vs %s (dimension %d: %d vs %d)",
				a, b, maxLen-1-i, aDim, bDim)
		}
	}

	return result, needsBroadcast, nil
}
