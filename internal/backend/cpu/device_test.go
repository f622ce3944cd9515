package cpu

import (
	"testing"

	"github.com/born-ml/dispatch/internal/device"
	"github.com/born-ml/dispatch/internal/kernels"
	"github.com/born-ml/dispatch/internal/tensor"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var catalog = kernels.Standard(4)

func kernel(t *testing.T, id kernels.ID) *kernels.Kernel {
	t.Helper()
	return must.M1(catalog.Resolve(id))
}

func TestFromSliceRounding(t *testing.T) {
	d := New()
	x := must.M1(FromSlice(d, tensor.Shape{3}, tensor.Int32, []float64{1.7, -2.9, 3}))
	assert.Equal(t, []int32{1, -2, 3}, ToSlice[int32](x))

	h := must.M1(FromSlice(d, tensor.Shape{1}, tensor.Float16, []float32{0.1}))
	assert.NotEqual(t, 0.1, ToSlice[float64](h)[0])
	assert.InDelta(t, 0.1, ToSlice[float64](h)[0], 1e-3)

	_, err := FromSlice(d, tensor.Shape{2, 2}, tensor.Float32, []float32{1})
	require.Error(t, err)
	assert.Equal(t, 2, d.Allocated())
}

func TestAllocFree(t *testing.T) {
	d := New()
	buf := must.M1(d.Alloc(tensor.Float32, 8))
	assert.Equal(t, 8, buf.Len())
	assert.Equal(t, 1, d.Allocated())
	d.Free(buf)
	d.Free(buf)
	assert.Equal(t, 0, d.Allocated())

	_, err := d.Alloc(tensor.Float32, -1)
	require.Error(t, err)
}

func TestBinarySameShapeTail(t *testing.T) {
	d := New()
	a := must.M1(FromSlice(d, tensor.Shape{5}, tensor.Float32, []float32{1, 2, 3, 4, 5}))
	b := must.M1(FromSlice(d, tensor.Shape{5}, tensor.Float32, []float32{10, 20, 30, 40, 50}))
	o := must.M1(Zeros(d, tensor.Shape{5}, tensor.Float32))

	cmd := device.Command{Kernel: kernel(t, kernels.BinaryID(kernels.Add, kernels.SameShape, tensor.Float32))}
	cmd.Params[kernels.ParamLength] = device.Uint(5)
	cmd.Params[kernels.ParamMaxIndex] = device.Uint(64 * 4)
	cmd.Buffers = [kernels.NumBufferSlots]tensor.Buffer{a.Buffer(), b.Buffer(), o.Buffer()}
	cmd.Groups = [3]uint32{1, 1, 1}
	require.NoError(t, d.Execute(cmd))
	assert.Equal(t, []float32{11, 22, 33, 44, 55}, ToSlice[float32](o))
}

func TestBinaryStrided(t *testing.T) {
	d := New()
	// (2, 3) - (3,) broadcast over rows.
	a := must.M1(FromSlice(d, tensor.Shape{2, 3}, tensor.Float32, []float32{1, 2, 3, 4, 5, 6}))
	b := must.M1(FromSlice(d, tensor.Shape{3}, tensor.Float32, []float32{1, 1, 2}))
	o := must.M1(Zeros(d, tensor.Shape{2, 3}, tensor.Float32))

	cmd := device.Command{Kernel: kernel(t, kernels.BinaryID(kernels.Sub, kernels.Strided, tensor.Float32))}
	cmd.Params[kernels.ParamLength] = device.Uint(6)
	cmd.Params[kernels.ParamMaxIndex] = device.Uint(64)
	cmd.Params[kernels.ParamShapeO] = device.Vec{1, 1, 1, 1, 1, 1, 2, 3}
	cmd.Params[kernels.ParamStridesO] = device.Vec{0, 0, 0, 0, 0, 0, 3, 1}
	cmd.Params[kernels.ParamStridesA] = device.Vec{0, 0, 0, 0, 0, 0, 3, 1}
	cmd.Params[kernels.ParamStridesB] = device.Vec{0, 0, 0, 0, 0, 0, 0, 1}
	cmd.Params[kernels.ParamRankOffset] = device.Int(5)
	cmd.Buffers = [kernels.NumBufferSlots]tensor.Buffer{a.Buffer(), b.Buffer(), o.Buffer()}
	cmd.Groups = [3]uint32{1, 1, 1}
	require.NoError(t, d.Execute(cmd))
	assert.Equal(t, []float32{0, 1, 1, 3, 4, 4}, ToSlice[float32](o))
}

func TestUnaryInPlace(t *testing.T) {
	d := New()
	x := must.M1(FromSlice(d, tensor.Shape{3}, tensor.Float32, []float32{4, 9, 16}))
	cmd := device.Command{Kernel: kernel(t, kernels.UnaryID(kernels.Sqrt, tensor.Float32))}
	cmd.Params[kernels.ParamLength] = device.Uint(3)
	cmd.Params[kernels.ParamMaxIndex] = device.Uint(256)
	cmd.Buffers[kernels.BufferA] = x.Buffer()
	cmd.Buffers[kernels.BufferOut] = x.Buffer()
	cmd.Groups = [3]uint32{1, 1, 1}
	require.NoError(t, d.Execute(cmd))
	assert.Equal(t, []float32{2, 3, 4}, ToSlice[float32](x))
}

func reduceCommand(t *testing.T, op kernels.ReduceOp, stage kernels.Stage, in, out *tensor.Tensor,
	outer, reduce, inner int, first bool, norm float32, groups [3]uint32) device.Command {
	t.Helper()
	cmd := device.Command{Kernel: kernel(t, kernels.ReduceID(op, stage, in.DType()))}
	cmd.Params[kernels.ParamOuter] = device.Uint(outer)
	cmd.Params[kernels.ParamReduce] = device.Uint(reduce)
	cmd.Params[kernels.ParamInner] = device.Uint(inner)
	var f device.Uint
	if first {
		f = 1
	}
	cmd.Params[kernels.ParamFirstDispatch] = f
	cmd.Params[kernels.ParamNormalization] = device.Float(norm)
	cmd.Buffers[kernels.BufferA] = in.Buffer()
	cmd.Buffers[kernels.BufferOut] = out.Buffer()
	cmd.Groups = groups
	return cmd
}

func TestReduceLocalThenGlobal(t *testing.T) {
	d := New()
	// outer=1, reduce=10, inner=1, thread budget 4: local -> 3 partials, global -> 1.
	values := []float32{1, -2, 3, -4, 5, -6, 7, -8, 9, -10}
	x := must.M1(FromSlice(d, tensor.Shape{10}, tensor.Float32, values))
	partial := must.M1(Zeros(d, tensor.Shape{3}, tensor.Float32))
	o := must.M1(Zeros(d, tensor.Shape{}, tensor.Float32))

	local := reduceCommand(t, kernels.ReduceL1, kernels.Local, x, partial, 1, 10, 1, true, 1, [3]uint32{1, 3, 1})
	global := reduceCommand(t, kernels.ReduceL1, kernels.Global, partial, o, 1, 3, 1, false, 1, [3]uint32{1, 1, 1})
	require.NoError(t, d.Execute(local, global))
	assert.Equal(t, []float32{10, 26, 19}, ToSlice[float32](partial))
	assert.Equal(t, []float32{55}, ToSlice[float32](o))
}

func TestReduceGlobalOps(t *testing.T) {
	d := New()
	// (2, 3, 2) reduced over the middle axis.
	x := must.M1(FromSlice(d, tensor.Shape{2, 3, 2}, tensor.Float32,
		[]float32{1, 2, 3, 4, 5, 6, -1, -2, -3, -4, -5, -6}))
	cases := []struct {
		op   kernels.ReduceOp
		norm float32
		want []float32
	}{
		{kernels.ReduceSum, 1, []float32{9, 12, -9, -12}},
		{kernels.ReduceMean, 1.0 / 3, []float32{3, 4, -3, -4}},
		{kernels.ReduceMax, 1, []float32{5, 6, -1, -2}},
		{kernels.ReduceMin, 1, []float32{1, 2, -5, -6}},
		{kernels.ReduceProd, 1, []float32{15, 48, -15, -48}},
		{kernels.ReduceSumSquare, 1, []float32{35, 56, 35, 56}},
	}
	for _, tc := range cases {
		t.Run(tc.op.String(), func(t *testing.T) {
			o := must.M1(Zeros(d, tensor.Shape{2, 2}, tensor.Float32))
			cmd := reduceCommand(t, tc.op, kernels.Global, x, o, 2, 3, 2, true, tc.norm, [3]uint32{2, 1, 2})
			require.NoError(t, d.Execute(cmd))
			assert.InDeltaSlice(t, tc.want, ToSlice[float32](o), 1e-5)
		})
	}
}

func TestReduceLogSumExpAndL2(t *testing.T) {
	d := New()
	x := must.M1(FromSlice(d, tensor.Shape{3}, tensor.Float32, []float32{3, 4, 0}))
	o := must.M1(Zeros(d, tensor.Shape{}, tensor.Float32))

	cmd := reduceCommand(t, kernels.ReduceL2, kernels.Unrolled, x, o, 1, 3, 1, true, 1, [3]uint32{1, 1, 1})
	cmd.Params[kernels.ParamLength] = device.Uint(1)
	cmd.Params[kernels.ParamMaxIndex] = device.Uint(64)
	require.NoError(t, d.Execute(cmd))
	assert.InDelta(t, 5, ToSlice[float64](o)[0], 1e-6)

	cmd = reduceCommand(t, kernels.ReduceLogSumExp, kernels.Global, x, o, 1, 3, 1, true, 1, [3]uint32{1, 1, 1})
	require.NoError(t, d.Execute(cmd))
	assert.InDelta(t, 4.32663, ToSlice[float64](o)[0], 1e-4)
}

func TestExecuteErrors(t *testing.T) {
	d := New()
	err := d.Execute(device.Command{})
	require.Error(t, err)

	cmd := device.Command{Kernel: &kernels.Kernel{Name: "bogus"}, Groups: [3]uint32{1, 1, 1}}
	err = d.Execute(cmd)
	require.Error(t, err)
	assert.True(t, errors.Is(err, kernels.ErrNotImplemented))
}

func TestTracing(t *testing.T) {
	d := New()
	x := must.M1(FromSlice(d, tensor.Shape{2}, tensor.Float32, []float32{1, 2}))
	cmd := device.Command{Kernel: kernel(t, kernels.UnaryID(kernels.Neg, tensor.Float32))}
	cmd.Params[kernels.ParamLength] = device.Uint(2)
	cmd.Params[kernels.ParamMaxIndex] = device.Uint(256)
	cmd.Buffers[kernels.BufferA] = x.Buffer()
	cmd.Buffers[kernels.BufferOut] = x.Buffer()
	cmd.Groups = [3]uint32{1, 1, 1}

	require.NoError(t, d.Execute(cmd))
	assert.Empty(t, d.Trace())
	d.SetTracing(true)
	require.NoError(t, d.Execute(cmd, cmd))
	require.Len(t, d.Trace(), 2)
	assert.Equal(t, "Neg_float32", d.Trace()[0].Kernel.Name)
	assert.Equal(t, []float32{-1, -2}, ToSlice[float32](x))
}
