package scheduler

import (
	"fmt"

	"github.com/born-ml/dispatch/internal/kernels"
	"github.com/born-ml/dispatch/internal/scratch"
	"github.com/born-ml/dispatch/internal/tensor"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// VariadicOp is an associative operation folded over a list of tensors.
type VariadicOp int

// Variadic operations.
const (
	VariadicSum VariadicOp = iota
	VariadicMean
	VariadicMax
	VariadicMin
)

// String implements fmt.Stringer.
func (op VariadicOp) String() string {
	switch op {
	case VariadicSum:
		return "Sum"
	case VariadicMean:
		return "Mean"
	case VariadicMax:
		return "Max"
	case VariadicMin:
		return "Min"
	default:
		return fmt.Sprintf("VariadicOp(%d)", int(op))
	}
}

func (op VariadicOp) binary() kernels.BinaryOp {
	switch op {
	case VariadicSum:
		return kernels.Add
	case VariadicMean:
		return kernels.WeightedAdd
	case VariadicMax:
		return kernels.Max
	case VariadicMin:
		return kernels.Min
	default:
		exceptions.Panicf("unknown variadic op %d", int(op))
		return 0
	}
}

// VariadicReduce folds op over inputs into o with N-1 pairwise dispatches.
//
// The running result alternates between o and one scratch tensor (needed only for more
// than two inputs). The first destination is o when len(inputs) is even, so the last
// step always writes o and no copy-back is needed. Mean weights the first two inputs by
// 1/N and every later input by 1/N against an already normalized accumulator.
//
// It panics with fewer than two inputs.
func (s *Scheduler) VariadicReduce(op VariadicOp, inputs []*tensor.Tensor, o *tensor.Tensor) error {
	n := len(inputs)
	if n < 2 {
		exceptions.Panicf("Variadic%s: need at least 2 inputs, got %d", op, n)
	}
	binOp := op.binary()
	checkOperands("Variadic"+op.String(), o, inputs...)
	for _, t := range inputs {
		if _, _, err := tensor.BroadcastShapes(t.Shape(), o.Shape()); err != nil {
			exceptions.Panicf("Variadic%s: input %s does not broadcast to output %s", op, t.Shape(), o.Shape())
		}
	}
	if o.Shape().IsZeroDim() {
		return nil
	}

	var (
		tmp   *tensor.Tensor
		lease *scratch.Lease
		err   error
	)
	if n > 2 {
		tmp, lease, err = s.pool.AcquireTensor(o.Shape(), o.DType())
		if err != nil {
			return errors.WithMessagef(err, "scheduler: Variadic%s", op)
		}
		defer lease.Release()
	}

	curX, curO := inputs[0], tmp
	if n%2 == 0 {
		curO = o
	}
	scale := 1 / float32(n)
	for i := 1; i < n; i++ {
		weightX := float32(1)
		if i == 1 {
			weightX = scale
		}
		if op == VariadicMean {
			err = s.WeightedAdd(curX, inputs[i], curO, weightX, scale)
		} else {
			err = s.ElementwiseBinary(binOp, curX, inputs[i], curO)
		}
		if err != nil {
			return errors.WithMessagef(err, "scheduler: Variadic%s step %d/%d", op, i, n-1)
		}
		next := tmp
		if curO != o {
			next = o
		}
		curX, curO = curO, next
	}
	if curO == o {
		exceptions.Panicf("Variadic%s: last step of %d inputs did not write the output tensor", op, n)
	}
	return nil
}
