package scheduler

import (
	"github.com/born-ml/dispatch/internal/kernels"
	"github.com/born-ml/dispatch/internal/tensor"
	"github.com/gomlx/exceptions"
)

// SelectVariant classifies a binary elementwise op by the shapes of its operands:
//
//   - ScalarBroadcast: a has the output shape and b holds a single element.
//   - SameShape: a, b and o all have the same shape.
//   - Strided: any other legal broadcast of a and b onto o.
//
// It panics if a and b do not broadcast to exactly o.
func SelectVariant(a, b, o tensor.Shape) kernels.Variant {
	checkRank(o)
	if a.Equal(o) && b.NumElements() == 1 && len(b) <= len(o) {
		return kernels.ScalarBroadcast
	}
	if a.Equal(o) && b.Equal(o) {
		return kernels.SameShape
	}
	broadcast, _, err := tensor.BroadcastShapes(a, b)
	if err != nil {
		exceptions.Panicf("illegal broadcast for output %s: %v", o, err)
	}
	if !broadcast.Equal(o) {
		exceptions.Panicf("operands %s and %s broadcast to %s, not to output shape %s", a, b, broadcast, o)
	}
	return kernels.Strided
}
