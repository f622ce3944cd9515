// Package scheduler turns tensor operations into sequences of kernel dispatches.
//
// For every operation it selects a kernel variant from the operand shapes, encodes the
// shape metadata the kernel needs, plans a dispatch grid that respects the device's
// per-axis limit and writes the bindings to a device.Stream. Multi-pass reductions run
// through scratch buffers leased from a scratch.Pool.
//
// Entry points return once the work is submitted, not once it completed. A Scheduler
// models a single device queue and is not safe for concurrent use.
package scheduler

import (
	"github.com/born-ml/dispatch/internal/device"
	"github.com/born-ml/dispatch/internal/kernels"
	"github.com/born-ml/dispatch/internal/scratch"
	"github.com/born-ml/dispatch/internal/tensor"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Scheduler plans and submits kernel dispatches for one device.
type Scheduler struct {
	cfg     Config
	dev     device.Device
	catalog *kernels.Catalog
	planner DispatchPlanner
	stream  *device.Stream
	pool    *scratch.Pool
}

// New creates a scheduler submitting to dev.
func New(dev device.Device, cfg Config) *Scheduler {
	cfg = cfg.withDefaults()
	stream := device.NewStream(dev, cfg.Mode)
	stream.SetMaxBatch(cfg.MaxBatch)
	s := &Scheduler{
		cfg:     cfg,
		dev:     dev,
		catalog: cfg.Catalog,
		planner: DispatchPlanner{Limit: cfg.DispatchLimit},
		stream:  stream,
		pool:    scratch.New(dev),
	}
	klog.V(1).Infof("scheduler: %s, mode=%s, limit=%d, thread budget=%d, %d kernels",
		dev.Name(), cfg.Mode, cfg.DispatchLimit, cfg.ThreadBudget, cfg.Catalog.Len())
	return s
}

// Config returns the effective configuration.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// Planner returns the dispatch planner.
func (s *Scheduler) Planner() DispatchPlanner {
	return s.planner
}

// Stream returns the stream dispatches are written to.
func (s *Scheduler) Stream() *device.Stream {
	return s.stream
}

// Pool returns the scratch pool.
func (s *Scheduler) Pool() *scratch.Pool {
	return s.pool
}

// Submit hands recorded dispatches to the device. It is a no-op in immediate mode.
func (s *Scheduler) Submit() error {
	return s.stream.Submit()
}

// Close submits pending work and frees pooled scratch buffers.
func (s *Scheduler) Close() error {
	err := s.Submit()
	s.pool.Close()
	return err
}

// ElementwiseBinary computes o = op(a, b), broadcasting a and b onto o's shape.
func (s *Scheduler) ElementwiseBinary(op kernels.BinaryOp, a, b, o *tensor.Tensor) error {
	if op == kernels.WeightedAdd {
		return s.WeightedAdd(a, b, o, 1, 1)
	}
	return s.binary(op, a, b, o, 1, 1)
}

// WeightedAdd computes o = weightA*a + weightB*b, broadcasting a and b onto o's shape.
func (s *Scheduler) WeightedAdd(a, b, o *tensor.Tensor, weightA, weightB float32) error {
	return s.binary(kernels.WeightedAdd, a, b, o, weightA, weightB)
}

func (s *Scheduler) binary(op kernels.BinaryOp, a, b, o *tensor.Tensor, weightA, weightB float32) error {
	checkOperands(op.String(), o, a, b)
	variant := SelectVariant(a.Shape(), b.Shape(), o.Shape())
	if o.Shape().IsZeroDim() {
		return nil
	}
	k, err := s.catalog.Resolve(kernels.BinaryID(op, variant, o.DType()))
	if err != nil {
		return errors.WithMessagef(err, "scheduler: %s %s x %s -> %s", op, a.Shape(), b.Shape(), o.Shape())
	}

	n := o.NumElements()
	plan := s.planner.Plan(k, n)
	s.stream.SetParam(k, kernels.ParamLength, device.Uint(n))
	s.stream.SetParam(k, kernels.ParamMaxIndex, device.Uint(plan.MaxIndex))
	if variant == kernels.Strided {
		shapeO, stridesO := EncodeShape(o.Shape())
		s.stream.SetParam(k, kernels.ParamShapeO, shapeO)
		s.stream.SetParam(k, kernels.ParamStridesO, stridesO)
		s.stream.SetParam(k, kernels.ParamStridesA, EncodeBroadcastStrides(a.Shape(), o.Shape()))
		s.stream.SetParam(k, kernels.ParamStridesB, EncodeBroadcastStrides(b.Shape(), o.Shape()))
		s.stream.SetParam(k, kernels.ParamRankOffset, device.Int(RankOffset(o.Shape())))
	}
	if op == kernels.WeightedAdd {
		s.stream.SetParam(k, kernels.ParamWeightA, device.Float(weightA))
		s.stream.SetParam(k, kernels.ParamWeightB, device.Float(weightB))
	}
	s.stream.SetBuffer(k, kernels.BufferA, a.Buffer())
	s.stream.SetBuffer(k, kernels.BufferB, b.Buffer())
	s.stream.SetBuffer(k, kernels.BufferOut, o.Buffer())
	return s.dispatch(k, plan)
}

// Unary computes o = op(x). x and o must have the same shape and may be the same tensor.
func (s *Scheduler) Unary(op kernels.UnaryOp, x, o *tensor.Tensor) error {
	checkOperands(op.String(), o, x)
	if !x.Shape().Equal(o.Shape()) {
		exceptions.Panicf("%s: input shape %s differs from output shape %s", op, x.Shape(), o.Shape())
	}
	if o.Shape().IsZeroDim() {
		return nil
	}
	k, err := s.catalog.Resolve(kernels.UnaryID(op, o.DType()))
	if err != nil {
		return errors.WithMessagef(err, "scheduler: %s %s", op, x.Shape())
	}
	n := o.NumElements()
	plan := s.planner.Plan(k, n)
	s.stream.SetParam(k, kernels.ParamLength, device.Uint(n))
	s.stream.SetParam(k, kernels.ParamMaxIndex, device.Uint(plan.MaxIndex))
	s.stream.SetBuffer(k, kernels.BufferA, x.Buffer())
	s.stream.SetBuffer(k, kernels.BufferOut, o.Buffer())
	return s.dispatch(k, plan)
}

// Reduce reduces x over axes into o. An empty axes list reduces every axis.
// With keepDim o keeps the reduced axes with length 1, otherwise they are dropped.
//
// Non-adjacent axes run as separate segments through scratch tensors, each segment
// through the pyramid reducer.
func (s *Scheduler) Reduce(op kernels.ReduceOp, x, o *tensor.Tensor, axes []int, keepDim bool) error {
	checkOperands("Reduce"+op.String(), o, x)
	shape := x.Shape()
	plan := PlanReduction(shape, axes)
	want := shape.Reduced(NormalizeAxes(shape, axes), keepDim)
	if !o.Shape().Equal(want) {
		exceptions.Panicf("Reduce%s: output shape %s, want %s for input %s over axes %v (keepDim=%v)",
			op, o.Shape(), want, shape, axes, keepDim)
	}
	if shape.IsZeroDim() {
		return nil
	}

	var (
		current      = x
		currentLease *scratch.Lease
	)
	defer func() {
		if currentLease != nil {
			currentLease.Release()
		}
	}()

	multiSegment := len(plan) > 1
	for i, seg := range plan {
		segOp := stageOp(op, seg.Initial, multiSegment)
		var (
			out   *tensor.Tensor
			lease *scratch.Lease
			err   error
		)
		if seg.Final {
			out = o.Reshape(seg.Output)
		} else {
			out, lease, err = s.pool.AcquireTensor(seg.Output, x.DType())
			if err != nil {
				return errors.WithMessagef(err, "scheduler: Reduce%s", op)
			}
		}
		klog.V(1).Infof("Reduce%s: segment %d/%d %s via %s, %s -> %s",
			op, i+1, len(plan), seg.Segment, segOp, seg.Input, seg.Output)

		err = s.reduceSegment(segOp, seg.Segment, current.Reshape(seg.Input), out, normalization(op, seg.Segment))
		if currentLease != nil {
			currentLease.Release()
		}
		current, currentLease = out, lease
		if err != nil {
			return errors.WithMessagef(err, "scheduler: Reduce%s segment %d/%d", op, i+1, len(plan))
		}
	}

	if op == kernels.ReduceL2 && multiSegment {
		return s.Unary(kernels.Sqrt, o, o)
	}
	return nil
}

func (s *Scheduler) dispatch(k *kernels.Kernel, plan DispatchPlan) error {
	gx, gy, gz := plan.Groups()
	return s.stream.Dispatch(k, gx, gy, gz)
}

// checkOperands panics on nil tensors and mixed dtypes: o is the output, inputs follow.
func checkOperands(op string, o *tensor.Tensor, inputs ...*tensor.Tensor) {
	if o == nil {
		exceptions.Panicf("%s: nil output tensor", op)
	}
	checkRank(o.Shape())
	for i, t := range inputs {
		if t == nil {
			exceptions.Panicf("%s: nil input tensor #%d", op, i)
		}
		checkRank(t.Shape())
		if t.DType() != o.DType() {
			exceptions.Panicf("%s: input #%d has dtype %s, output has %s", op, i, t.DType(), o.DType())
		}
	}
}
