package scheduler

import (
	"fmt"
	"slices"

	"github.com/born-ml/dispatch/internal/kernels"
	"github.com/born-ml/dispatch/internal/tensor"
	"github.com/gomlx/exceptions"
)

// Segment is one reduction over the middle extent of an (Outer, Reduce, Inner) view.
type Segment struct {
	Outer, Reduce, Inner int
}

// Len returns Outer*Reduce*Inner, the number of input elements.
func (s Segment) Len() int {
	return s.Outer * s.Reduce * s.Inner
}

// Outputs returns Outer*Inner, the number of output elements.
func (s Segment) Outputs() int {
	return s.Outer * s.Inner
}

// String implements fmt.Stringer.
func (s Segment) String() string {
	return fmt.Sprintf("(outer=%d, reduce=%d, inner=%d)", s.Outer, s.Reduce, s.Inner)
}

// PlannedSegment is a segment together with the shapes it reads and writes.
type PlannedSegment struct {
	Segment
	Input, Output tensor.Shape
	// Initial is set on the first segment, which reads the raw input.
	Initial bool
	// Final is set on the last segment, which writes the caller's output.
	Final bool
}

// NormalizeAxes maps axes onto [0, rank), then sorts and deduplicates them.
// It panics on an out-of-range axis.
func NormalizeAxes(shape tensor.Shape, axes []int) []int {
	norm := make([]int, len(axes))
	for i, axis := range axes {
		norm[i] = shape.NormalizeAxis(axis)
	}
	slices.Sort(norm)
	return slices.Compact(norm)
}

// PlanReduction splits the reduction of shape over axes into segments.
// Consecutive axes fuse into one segment; a gap flushes the accumulated segment into
// an intermediate shape with the reduced axes set to 1. An empty axes list reduces
// the whole tensor in one segment.
//
// It panics if a reduced axis has length 0: such a reduction has no defined value.
func PlanReduction(shape tensor.Shape, axes []int) []PlannedSegment {
	checkRank(shape)
	axes = NormalizeAxes(shape, axes)
	checkReducedAxes(shape, axes)

	if len(axes) == 0 {
		return []PlannedSegment{{
			Segment: Segment{Outer: 1, Reduce: shape.NumElements(), Inner: 1},
			Input:   shape.Clone(),
			Output:  shape.WithOnes(allAxes(len(shape))...),
			Initial: true,
			Final:   true,
		}}
	}

	var (
		plan        []PlannedSegment
		current     = shape.Clone()
		accumulated []int
		segment     Segment
		prev        int
	)
	start := func(axis int) {
		segment = Segment{
			Outer:  current.Span(0, axis),
			Reduce: current[axis],
			Inner:  current.Stride(axis),
		}
		accumulated = []int{axis}
		prev = axis
	}
	flush := func(final bool) {
		next := current.WithOnes(accumulated...)
		plan = append(plan, PlannedSegment{
			Segment: segment,
			Input:   current,
			Output:  next,
			Initial: len(plan) == 0,
			Final:   final,
		})
		current = next
	}

	start(axes[0])
	for _, axis := range axes[1:] {
		if axis == prev+1 {
			segment.Inner /= current[axis]
			segment.Reduce *= current[axis]
			accumulated = append(accumulated, axis)
			prev = axis
			continue
		}
		flush(false)
		start(axis)
	}
	flush(true)
	return plan
}

func checkReducedAxes(shape tensor.Shape, axes []int) {
	if len(axes) == 0 {
		axes = allAxes(len(shape))
	}
	for _, axis := range axes {
		if shape[axis] == 0 {
			exceptions.Panicf("cannot reduce over axis %d of shape %s: reduction over an empty axis has no identity",
				axis, shape)
		}
	}
}

func allAxes(rank int) []int {
	axes := make([]int, rank)
	for i := range axes {
		axes[i] = i
	}
	return axes
}

// stageOp returns the kernel op a segment runs for a requested reduction.
//
// L1 and SumSquare transform raw input only in the first segment; later segments sum
// the already transformed partials. L2 runs as one segment directly; over several it
// becomes SumSquare, then Sum, closed by an elementwise Sqrt. Every other op keeps its
// kernel for all segments.
func stageOp(op kernels.ReduceOp, initial, multiSegment bool) kernels.ReduceOp {
	switch op {
	case kernels.ReduceL1, kernels.ReduceSumSquare:
		if initial {
			return op
		}
		return kernels.ReduceSum
	case kernels.ReduceL2:
		switch {
		case !multiSegment:
			return op
		case initial:
			return kernels.ReduceSumSquare
		default:
			return kernels.ReduceSum
		}
	default:
		return op
	}
}

// normalization is the factor the finishing pass of a segment multiplies by.
func normalization(op kernels.ReduceOp, seg Segment) float32 {
	if op == kernels.ReduceMean {
		return 1 / float32(seg.Reduce)
	}
	return 1
}
