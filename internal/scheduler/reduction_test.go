package scheduler

import (
	"testing"

	"github.com/born-ml/dispatch/internal/kernels"
	"github.com/born-ml/dispatch/internal/tensor"
	"github.com/gomlx/exceptions"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanReductionFuseAndFlush(t *testing.T) {
	shape := tensor.Shape{2, 3, 4, 5, 6}
	want := []PlannedSegment{
		{
			Segment: Segment{Outer: 1, Reduce: 6, Inner: 120},
			Input:   tensor.Shape{2, 3, 4, 5, 6},
			Output:  tensor.Shape{1, 1, 4, 5, 6},
			Initial: true,
		},
		{
			Segment: Segment{Outer: 20, Reduce: 6, Inner: 1},
			Input:   tensor.Shape{1, 1, 4, 5, 6},
			Output:  tensor.Shape{1, 1, 4, 5, 1},
			Final:   true,
		},
	}
	got := PlanReduction(shape, []int{0, 1, 4})
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("PlanReduction mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, tensor.Shape{4, 5}, shape.Reduced([]int{0, 1, 4}, false))

	// Axis order and duplicates do not matter.
	assert.Equal(t, got, PlanReduction(shape, []int{4, 1, 0, -1}))
}

func TestPlanReductionAxisOrder(t *testing.T) {
	shape := tensor.Shape{2, 3, 4, 5, 6}
	want := PlanReduction(shape, []int{0, 1, 4})
	for _, axes := range [][]int{{4, 0, 1}, {1, 4, 0}, {-1, 0, 1, 1}} {
		assert.Equal(t, want, PlanReduction(shape, axes), "axes %v", axes)
	}
	assert.Equal(t, []int{0, 1, 4}, NormalizeAxes(shape, []int{4, 0, 1}))
}

func TestPlanReductionAllAxes(t *testing.T) {
	plan := PlanReduction(tensor.Shape{2, 3, 4}, nil)
	require.Len(t, plan, 1)
	assert.Equal(t, Segment{Outer: 1, Reduce: 24, Inner: 1}, plan[0].Segment)
	assert.Equal(t, tensor.Shape{1, 1, 1}, plan[0].Output)
	assert.True(t, plan[0].Initial)
	assert.True(t, plan[0].Final)

	// Listing every axis fuses into the same single segment.
	plan = PlanReduction(tensor.Shape{2, 3, 4}, []int{0, 1, 2})
	require.Len(t, plan, 1)
	assert.Equal(t, Segment{Outer: 1, Reduce: 24, Inner: 1}, plan[0].Segment)

	plan = PlanReduction(tensor.Shape{}, nil)
	require.Len(t, plan, 1)
	assert.Equal(t, Segment{Outer: 1, Reduce: 1, Inner: 1}, plan[0].Segment)
}

func TestPlanReductionSegmentInvariant(t *testing.T) {
	shape := tensor.Shape{3, 1, 4, 2, 5, 2}
	for _, axes := range [][]int{
		{0}, {5}, {1, 2}, {0, 2, 4}, {1, 3, 5}, {0, 1, 2, 3, 4, 5}, {0, 5}, {2, 3, 5},
	} {
		plan := PlanReduction(shape, axes)
		require.NotEmpty(t, plan)
		for i, seg := range plan {
			assert.Equal(t, seg.Input.NumElements(), seg.Len(), "axes %v segment %d", axes, i)
			assert.Equal(t, seg.Output.NumElements(), seg.Outputs(), "axes %v segment %d", axes, i)
			assert.Equal(t, i == 0, seg.Initial)
			assert.Equal(t, i == len(plan)-1, seg.Final)
			if i > 0 {
				assert.Equal(t, plan[i-1].Output, seg.Input)
			}
		}
		assert.Equal(t, shape.WithOnes(NormalizeAxes(shape, axes)...), plan[len(plan)-1].Output)
	}
	assert.Len(t, PlanReduction(shape, []int{0, 2, 4}), 3)
}

func TestPlanReductionContractViolations(t *testing.T) {
	err := exceptions.TryCatch[error](func() { PlanReduction(tensor.Shape{3, 0, 2}, []int{1}) })
	require.ErrorContains(t, err, "empty axis")
	err = exceptions.TryCatch[error](func() { PlanReduction(tensor.Shape{3, 0}, nil) })
	require.ErrorContains(t, err, "empty axis")
	err = exceptions.TryCatch[error](func() { PlanReduction(tensor.Shape{3, 2}, []int{2}) })
	require.ErrorContains(t, err, "out of range")

	// An empty axis that is not reduced is fine.
	plan := PlanReduction(tensor.Shape{0, 3}, []int{1})
	require.Len(t, plan, 1)
	assert.Equal(t, Segment{Outer: 0, Reduce: 3, Inner: 1}, plan[0].Segment)
}

func TestStageOp(t *testing.T) {
	type stages struct{ first, later kernels.ReduceOp }
	multi := map[kernels.ReduceOp]stages{
		kernels.ReduceL1:        {kernels.ReduceL1, kernels.ReduceSum},
		kernels.ReduceSumSquare: {kernels.ReduceSumSquare, kernels.ReduceSum},
		kernels.ReduceL2:        {kernels.ReduceSumSquare, kernels.ReduceSum},
		kernels.ReduceLogSumExp: {kernels.ReduceLogSumExp, kernels.ReduceLogSumExp},
		kernels.ReduceMean:      {kernels.ReduceMean, kernels.ReduceMean},
		kernels.ReduceMax:       {kernels.ReduceMax, kernels.ReduceMax},
		kernels.ReduceProd:      {kernels.ReduceProd, kernels.ReduceProd},
	}
	for op, want := range multi {
		assert.Equal(t, want.first, stageOp(op, true, true), "%s first", op)
		assert.Equal(t, want.later, stageOp(op, false, true), "%s later", op)
	}
	assert.Equal(t, kernels.ReduceL2, stageOp(kernels.ReduceL2, true, false))
	assert.Equal(t, kernels.ReduceL1, stageOp(kernels.ReduceL1, true, false))
}

func TestNormalization(t *testing.T) {
	seg := Segment{Outer: 2, Reduce: 8, Inner: 3}
	assert.Equal(t, float32(0.125), normalization(kernels.ReduceMean, seg))
	assert.Equal(t, float32(1), normalization(kernels.ReduceSum, seg))
}
