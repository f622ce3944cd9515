package scheduler_test

import (
	"testing"

	"github.com/born-ml/dispatch/backend/cpu"
	"github.com/born-ml/dispatch/kernels"
	"github.com/born-ml/dispatch/scheduler"
	"github.com/born-ml/dispatch/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublicAPIEndToEnd(t *testing.T) {
	dev := cpu.New()
	cfg := scheduler.DefaultConfig()
	cfg.Mode = scheduler.Recorded
	s := scheduler.New(dev, cfg)
	defer func() { require.NoError(t, s.Close()) }()

	a, err := cpu.FromSlice(dev, tensor.Shape{2, 3}, tensor.Float32, []float32{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	b, err := cpu.FromSlice(dev, tensor.Shape{3}, tensor.Float32, []float32{10, 20, 30})
	require.NoError(t, err)
	sum, err := cpu.Zeros(dev, tensor.Shape{2, 3}, tensor.Float32)
	require.NoError(t, err)
	rows, err := cpu.Zeros(dev, tensor.Shape{2, 1}, tensor.Float32)
	require.NoError(t, err)

	require.NoError(t, s.ElementwiseBinary(kernels.Add, a, b, sum))
	require.NoError(t, s.Reduce(kernels.ReduceMean, sum, rows, []int{-1}, true))
	require.NoError(t, s.Submit())

	assert.Equal(t, []float32{11, 22, 33, 14, 25, 36}, cpu.ToSlice[float32](sum))
	assert.InDeltaSlice(t, []float32{22, 25}, cpu.ToSlice[float32](rows), 1e-5)
}

func TestPublicPlanReduction(t *testing.T) {
	segs := scheduler.PlanReduction(tensor.Shape{2, 3, 4, 5, 6}, []int{1, 3})
	require.Len(t, segs, 2)
	assert.Equal(t, scheduler.Segment{Outer: 2, Reduce: 3, Inner: 120}, segs[0].Segment)
	assert.Equal(t, scheduler.Segment{Outer: 8, Reduce: 5, Inner: 6}, segs[1].Segment)
}

func TestPublicMissingKernel(t *testing.T) {
	dev := cpu.New()
	s := scheduler.New(dev, scheduler.DefaultConfig())
	defer func() { require.NoError(t, s.Close()) }()

	x, err := cpu.Zeros(dev, tensor.Shape{4}, tensor.Float64)
	require.NoError(t, err)
	o, err := cpu.Zeros(dev, tensor.Shape{4}, tensor.Float64)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Unary(kernels.Sqrt, x, o), kernels.ErrNotImplemented)
}
