package scheduler

import (
	"fmt"
	"testing"

	"github.com/born-ml/dispatch/internal/backend/cpu"
	"github.com/born-ml/dispatch/internal/kernels"
	"github.com/born-ml/dispatch/internal/tensor"
	"github.com/gomlx/exceptions"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func variadicInputs(t *testing.T, d *cpu.Device, n int) []*tensor.Tensor {
	t.Helper()
	inputs := make([]*tensor.Tensor, n)
	for i := range inputs {
		inputs[i] = must.M1(cpu.FromSlice(d, tensor.Shape{2, 2}, tensor.Float32,
			[]float32{float32(i), float32(2 * i), float32(-i), 1}))
	}
	return inputs
}

func TestVariadicReduceWritesOutputLast(t *testing.T) {
	for n := 2; n <= 5; n++ {
		t.Run(fmt.Sprintf("N=%d", n), func(t *testing.T) {
			s, d := newTestScheduler(t, DefaultConfig())
			inputs := variadicInputs(t, d, n)
			o := must.M1(cpu.Zeros(d, tensor.Shape{2, 2}, tensor.Float32))
			require.NoError(t, s.VariadicReduce(VariadicSum, inputs, o))

			trace := d.Trace()
			require.Len(t, trace, n-1)
			assert.Same(t, o.Buffer(), trace[n-2].Buffer(kernels.BufferOut))
			// Destinations alternate, so no step reads and writes the same buffer.
			for i, cmd := range trace {
				assert.NotSame(t, cmd.Buffer(kernels.BufferA), cmd.Buffer(kernels.BufferOut), "step %d", i)
			}

			var sum float32
			for i := range n {
				sum += float32(i)
			}
			assert.Equal(t, []float32{sum, 2 * sum, -sum, float32(n)}, cpu.ToSlice[float32](o))

			stats := s.Pool().Stats()
			if n == 2 {
				assert.Equal(t, uint64(0), stats.Misses+stats.Hits, "two inputs need no scratch")
			} else {
				assert.Equal(t, uint64(1), stats.Misses)
				assert.Equal(t, uint64(1), stats.Released)
			}
		})
	}
}

func TestVariadicMean(t *testing.T) {
	for n := 2; n <= 5; n++ {
		t.Run(fmt.Sprintf("N=%d", n), func(t *testing.T) {
			s, d := newTestScheduler(t, DefaultConfig())
			inputs := variadicInputs(t, d, n)
			o := must.M1(cpu.Zeros(d, tensor.Shape{2, 2}, tensor.Float32))
			require.NoError(t, s.VariadicReduce(VariadicMean, inputs, o))

			mean := float64(n-1) / 2
			assert.InDeltaSlice(t, []float64{mean, 2 * mean, -mean, 1}, cpu.ToSlice[float64](o), 1e-5)

			trace := d.Trace()
			scale := 1 / float32(n)
			assert.Equal(t, scale, trace[0].Float(kernels.ParamWeightA))
			assert.Equal(t, scale, trace[0].Float(kernels.ParamWeightB))
			for _, cmd := range trace[1:] {
				assert.Equal(t, float32(1), cmd.Float(kernels.ParamWeightA))
				assert.Equal(t, scale, cmd.Float(kernels.ParamWeightB))
			}
		})
	}
}

func TestVariadicMaxMinBroadcast(t *testing.T) {
	s, d := newTestScheduler(t, DefaultConfig())
	a := must.M1(cpu.FromSlice(d, tensor.Shape{2, 3}, tensor.Float32, []float32{1, 5, 3, 7, 2, 9}))
	b := must.M1(cpu.FromSlice(d, tensor.Shape{3}, tensor.Float32, []float32{4, 4, 4}))
	c := must.M1(cpu.FromSlice(d, tensor.Shape{}, tensor.Float32, []float32{6}))
	o := must.M1(cpu.Zeros(d, tensor.Shape{2, 3}, tensor.Float32))

	require.NoError(t, s.VariadicReduce(VariadicMax, []*tensor.Tensor{a, b, c}, o))
	assert.Equal(t, []float32{6, 6, 6, 7, 6, 9}, cpu.ToSlice[float32](o))
	require.NoError(t, s.VariadicReduce(VariadicMin, []*tensor.Tensor{a, b, c}, o))
	assert.Equal(t, []float32{1, 4, 3, 4, 2, 4}, cpu.ToSlice[float32](o))
}

func TestVariadicContractViolations(t *testing.T) {
	s, d := newTestScheduler(t, DefaultConfig())
	x := must.M1(cpu.Zeros(d, tensor.Shape{2}, tensor.Float32))

	err := exceptions.TryCatch[error](func() { _ = s.VariadicReduce(VariadicSum, []*tensor.Tensor{x}, x) })
	require.ErrorContains(t, err, "at least 2 inputs")

	y := must.M1(cpu.Zeros(d, tensor.Shape{3}, tensor.Float32))
	err = exceptions.TryCatch[error](func() { _ = s.VariadicReduce(VariadicSum, []*tensor.Tensor{x, y}, x) })
	require.ErrorContains(t, err, "does not broadcast")
}
