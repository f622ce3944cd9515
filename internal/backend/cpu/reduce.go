package cpu

import (
	"math"

	"github.com/born-ml/dispatch/internal/device"
	"github.com/born-ml/dispatch/internal/kernels"
	"github.com/born-ml/dispatch/internal/parallel"
	"github.com/pkg/errors"
)

// runReduce executes one pass of a pyramid reduction over an (outer, reduce, inner) view.
//
// Local groups (inner, chunk, outer) each reduce one chunk of ThreadGroup[1] elements
// into an (outer, chunks, inner) partial. Global groups (inner, 1, outer) reduce the whole
// remaining extent. Unrolled is a flat dispatch over outer*inner outputs.
func (d *Device) runReduce(cmd *device.Command) error {
	op := kernels.ReduceOp(cmd.Kernel.ID.Op)
	stage := kernels.Stage(cmd.Kernel.ID.Form)
	in, err := hostBuffer(cmd, kernels.BufferA)
	if err != nil {
		return err
	}
	out, err := hostBuffer(cmd, kernels.BufferOut)
	if err != nil {
		return err
	}

	outer := int(cmd.Uint(kernels.ParamOuter))
	reduce := int(cmd.Uint(kernels.ParamReduce))
	inner := int(cmd.Uint(kernels.ParamInner))
	first := cmd.Uint(kernels.ParamFirstDispatch) != 0
	norm := float64(cmd.Float(kernels.ParamNormalization))
	if need := outer * reduce * inner; in.Len() < need {
		return errors.Errorf("cpu: %s: input holds %d elements, segment needs %d", cmd.Kernel.Name, in.Len(), need)
	}

	rangeOf := func(o, i, from, to int, finish bool) float64 {
		at := func(r int) float64 { return in.data[(o*reduce+r)*inner+i] }
		return reduceRange(op, from, to, at, first, finish, norm)
	}
	gx, gy, gz := int(cmd.Groups[0]), int(cmd.Groups[1]), int(cmd.Groups[2])

	switch stage {
	case kernels.Local:
		budget := cmd.Kernel.ThreadGroup[1]
		chunks := (reduce + budget - 1) / budget
		parallel.ForGrid(gx, gy, gz, func(i, c, o int) {
			if i >= inner || c >= chunks || o >= outer {
				return
			}
			from := c * budget
			to := min(from+budget, reduce)
			out.data[(o*chunks+c)*inner+i] = roundTo(out.dtype, rangeOf(o, i, from, to, false))
		}, d.parallel)
	case kernels.Global:
		parallel.ForGrid(gx, gy, gz, func(i, _, o int) {
			if i >= inner || o >= outer {
				return
			}
			out.data[o*inner+i] = roundTo(out.dtype, rangeOf(o, i, 0, reduce, true))
		}, d.parallel)
	case kernels.Unrolled:
		d.forEachElement(cmd, func(idx int) {
			o, i := idx/inner, idx%inner
			out.data[idx] = roundTo(out.dtype, rangeOf(o, i, 0, reduce, true))
		})
	default:
		return errors.Wrapf(kernels.ErrNotImplemented, "cpu: %s", cmd.Kernel.Name)
	}
	return nil
}

// reduceRange folds at(from)..at(to-1). Raw input is transformed first (abs for L1,
// square for SumSquare and L2) only on the first dispatch; finish applies the closing
// step (Mean normalization, L2 square root).
func reduceRange(op kernels.ReduceOp, from, to int, at func(int) float64, first, finish bool, norm float64) float64 {
	if op == kernels.ReduceLogSumExp {
		m := math.Inf(-1)
		for r := from; r < to; r++ {
			m = math.Max(m, at(r))
		}
		if math.IsInf(m, 0) {
			return m
		}
		var sum float64
		for r := from; r < to; r++ {
			sum += math.Exp(at(r) - m)
		}
		return m + math.Log(sum)
	}

	acc := identity(op)
	for r := from; r < to; r++ {
		v := at(r)
		if first {
			switch op {
			case kernels.ReduceL1:
				v = math.Abs(v)
			case kernels.ReduceSumSquare, kernels.ReduceL2:
				v *= v
			}
		}
		switch op {
		case kernels.ReduceMax:
			acc = math.Max(acc, v)
		case kernels.ReduceMin:
			acc = math.Min(acc, v)
		case kernels.ReduceProd:
			acc *= v
		default:
			acc += v
		}
	}
	if finish {
		switch op {
		case kernels.ReduceMean:
			acc *= norm
		case kernels.ReduceL2:
			acc = math.Sqrt(acc)
		}
	}
	return acc
}

func identity(op kernels.ReduceOp) float64 {
	switch op {
	case kernels.ReduceProd:
		return 1
	case kernels.ReduceMax:
		return math.Inf(-1)
	case kernels.ReduceMin:
		return math.Inf(1)
	default:
		return 0
	}
}
