package cpu

import (
	"math"

	"github.com/born-ml/dispatch/internal/device"
	"github.com/born-ml/dispatch/internal/kernels"
	"github.com/born-ml/dispatch/internal/parallel"
	"github.com/born-ml/dispatch/internal/tensor"
	"github.com/pkg/errors"
)

// hostBuffer returns the buffer bound to slot as a live host buffer.
func hostBuffer(cmd *device.Command, slot kernels.BufferSlot) (*Buffer, error) {
	b, ok := cmd.Buffer(slot).(*Buffer)
	if !ok {
		return nil, errors.Errorf("cpu: %s: buffer in slot %d is %T, not a host buffer", cmd.Kernel.Name, slot, cmd.Buffers[slot])
	}
	if b.freed {
		return nil, errors.Errorf("cpu: %s: buffer in slot %d was freed", cmd.Kernel.Name, slot)
	}
	return b, nil
}

// forEachElement calls f for every flat element a 1-D (possibly split) dispatch covers.
// Invocation (gx, gy, thread t) handles elements gy*MaxIndex + (gx*threads+t)*ept + e;
// elements at or past Length are discarded like the kernel's tail guard does.
func (d *Device) forEachElement(cmd *device.Command, f func(idx int)) {
	n := int(cmd.Uint(kernels.ParamLength))
	maxIndex := int(cmd.Uint(kernels.ParamMaxIndex))
	threads := cmd.Kernel.ThreadGroup[0]
	ept := cmd.Kernel.ElementsPerThread
	parallel.ForGrid(int(cmd.Groups[0]), int(cmd.Groups[1]), int(cmd.Groups[2]), func(gx, gy, _ int) {
		for t := range threads {
			base := gy*maxIndex + (gx*threads+t)*ept
			for e := range ept {
				if idx := base + e; idx < n {
					f(idx)
				}
			}
		}
	}, d.parallel)
}

// stridedIndex decodes the operand offsets of output element idx from the right-aligned
// shape and stride registers.
func stridedIndex(cmd *device.Command) func(idx int) (ia, ib int) {
	shapeO := cmd.Vec(kernels.ParamShapeO)
	stridesO := cmd.Vec(kernels.ParamStridesO)
	stridesA := cmd.Vec(kernels.ParamStridesA)
	stridesB := cmd.Vec(kernels.ParamStridesB)
	rankOffset := int(cmd.Int(kernels.ParamRankOffset))
	return func(idx int) (ia, ib int) {
		for s := rankOffset + 1; s < tensor.MaxRank; s++ {
			coord := (idx / int(stridesO[s])) % int(shapeO[s])
			ia += coord * int(stridesA[s])
			ib += coord * int(stridesB[s])
		}
		return ia, ib
	}
}

func (d *Device) runBinary(cmd *device.Command) error {
	op := kernels.BinaryOp(cmd.Kernel.ID.Op)
	fn, err := binaryFunc(cmd, op)
	if err != nil {
		return err
	}
	a, err := hostBuffer(cmd, kernels.BufferA)
	if err != nil {
		return err
	}
	b, err := hostBuffer(cmd, kernels.BufferB)
	if err != nil {
		return err
	}
	out, err := hostBuffer(cmd, kernels.BufferOut)
	if err != nil {
		return err
	}

	var index func(idx int) (int, int)
	switch kernels.Variant(cmd.Kernel.ID.Form) {
	case kernels.ScalarBroadcast:
		index = func(idx int) (int, int) { return idx, 0 }
	case kernels.SameShape:
		index = func(idx int) (int, int) { return idx, idx }
	case kernels.Strided:
		index = stridedIndex(cmd)
	default:
		return errors.Wrapf(kernels.ErrNotImplemented, "cpu: %s", cmd.Kernel.Name)
	}

	d.forEachElement(cmd, func(idx int) {
		ia, ib := index(idx)
		out.data[idx] = roundTo(out.dtype, fn(a.data[ia], b.data[ib]))
	})
	return nil
}

func binaryFunc(cmd *device.Command, op kernels.BinaryOp) (func(a, b float64) float64, error) {
	switch op {
	case kernels.Add:
		return func(a, b float64) float64 { return a + b }, nil
	case kernels.Sub:
		return func(a, b float64) float64 { return a - b }, nil
	case kernels.Mul:
		return func(a, b float64) float64 { return a * b }, nil
	case kernels.Div:
		return func(a, b float64) float64 { return a / b }, nil
	case kernels.Max:
		return math.Max, nil
	case kernels.Min:
		return math.Min, nil
	case kernels.Pow:
		return math.Pow, nil
	case kernels.WeightedAdd:
		wa := float64(cmd.Float(kernels.ParamWeightA))
		wb := float64(cmd.Float(kernels.ParamWeightB))
		return func(a, b float64) float64 { return wa*a + wb*b }, nil
	default:
		return nil, errors.Wrapf(kernels.ErrNotImplemented, "cpu: %s", cmd.Kernel.Name)
	}
}

func (d *Device) runUnary(cmd *device.Command) error {
	var fn func(float64) float64
	switch kernels.UnaryOp(cmd.Kernel.ID.Op) {
	case kernels.Sqrt:
		fn = math.Sqrt
	case kernels.Abs:
		fn = math.Abs
	case kernels.Square:
		fn = func(x float64) float64 { return x * x }
	case kernels.Exp:
		fn = math.Exp
	case kernels.Log:
		fn = math.Log
	case kernels.Neg:
		fn = func(x float64) float64 { return -x }
	default:
		return errors.Wrapf(kernels.ErrNotImplemented, "cpu: %s", cmd.Kernel.Name)
	}
	x, err := hostBuffer(cmd, kernels.BufferA)
	if err != nil {
		return err
	}
	out, err := hostBuffer(cmd, kernels.BufferOut)
	if err != nil {
		return err
	}
	d.forEachElement(cmd, func(idx int) {
		out.data[idx] = roundTo(out.dtype, fn(x.data[idx]))
	})
	return nil
}
