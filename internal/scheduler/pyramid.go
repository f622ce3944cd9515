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

// reduceSegment reduces in, viewed as seg, into out (seg.Outputs() elements).
//
// Segments whose outer or inner extent exceeds the dispatch limit run as one unrolled
// dispatch that loops over the reduce extent. Otherwise local passes shrink the reduce
// extent by the local kernel's work-group height until it fits one global group, and a
// global pass finishes the reduction and applies normalization.
func (s *Scheduler) reduceSegment(op kernels.ReduceOp, seg Segment, in, out *tensor.Tensor, norm float32) error {
	triplet := kernels.ReduceTriplet(op, in.DType())
	if seg.Outer > s.cfg.DispatchLimit || seg.Inner > s.cfg.DispatchLimit {
		return s.reduceUnrolled(triplet.Unrolled, seg, in, out, norm)
	}

	global, err := s.catalog.Resolve(triplet.Global)
	if err != nil {
		return err
	}
	var (
		current      = in
		currentLease *scratch.Lease
		reduce       = seg.Reduce
		first        = true
	)
	defer func() {
		if currentLease != nil {
			currentLease.Release()
		}
	}()

	// Pass sizes follow the compiled work groups.
	if reduce > global.ThreadGroup[1] {
		local, err := s.catalog.Resolve(triplet.Local)
		if err != nil {
			return err
		}
		budget := local.ThreadGroup[1]
		if budget < 2 {
			exceptions.Panicf("%s: work group %v cannot shrink a reduction", local.Name, local.ThreadGroup)
		}
		for reduce > global.ThreadGroup[1] {
			chunks := ceilDiv(reduce, budget)
			partial, lease, err := s.pool.AcquireTensor(tensor.Shape{seg.Outer, chunks, seg.Inner}, in.DType())
			if err != nil {
				return err
			}
			klog.V(1).Infof("%s: local pass %s reduce %d -> %d", local.Name, seg, reduce, chunks)
			plan := s.planner.Plan3D(local, seg.Inner, reduce, seg.Outer)
			s.bindReduce(local, Segment{seg.Outer, reduce, seg.Inner}, first, 1)
			s.stream.SetBuffer(local, kernels.BufferA, current.Buffer())
			s.stream.SetBuffer(local, kernels.BufferOut, partial.Buffer())
			err = s.dispatch(local, plan)

			if currentLease != nil {
				currentLease.Release()
			}
			current, currentLease = partial, lease
			reduce, first = chunks, false
			if err != nil {
				return err
			}
		}
	}

	plan := s.planner.Plan3D(global, seg.Inner, 1, seg.Outer)
	s.bindReduce(global, Segment{seg.Outer, reduce, seg.Inner}, first, norm)
	s.stream.SetBuffer(global, kernels.BufferA, current.Buffer())
	s.stream.SetBuffer(global, kernels.BufferOut, out.Buffer())
	return s.dispatch(global, plan)
}

func (s *Scheduler) reduceUnrolled(id kernels.ID, seg Segment, in, out *tensor.Tensor, norm float32) error {
	k, err := s.catalog.Resolve(id)
	if err != nil {
		return err
	}
	n := seg.Outputs()
	if klog.V(1).Enabled() {
		klog.Infof("%s: unrolled %s, %d outputs each looping over %d elements", k.Name, seg, n, seg.Reduce)
	}
	plan := s.planner.Plan(k, n)
	s.bindReduce(k, seg, true, norm)
	s.stream.SetParam(k, kernels.ParamLength, device.Uint(n))
	s.stream.SetParam(k, kernels.ParamMaxIndex, device.Uint(plan.MaxIndex))
	s.stream.SetBuffer(k, kernels.BufferA, in.Buffer())
	s.stream.SetBuffer(k, kernels.BufferOut, out.Buffer())
	return errors.WithMessage(s.dispatch(k, plan), "unrolled reduction")
}

func (s *Scheduler) bindReduce(k *kernels.Kernel, seg Segment, first bool, norm float32) {
	var firstDispatch device.Uint
	if first {
		firstDispatch = 1
	}
	s.stream.SetParam(k, kernels.ParamOuter, device.Uint(seg.Outer))
	s.stream.SetParam(k, kernels.ParamReduce, device.Uint(seg.Reduce))
	s.stream.SetParam(k, kernels.ParamInner, device.Uint(seg.Inner))
	s.stream.SetParam(k, kernels.ParamFirstDispatch, firstDispatch)
	s.stream.SetParam(k, kernels.ParamNormalization, device.Float(norm))
}
