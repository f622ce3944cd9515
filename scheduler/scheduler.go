// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package scheduler turns high-level tensor operations into legal device dispatches.
//
// For every elementwise operation it picks the fastest kernel variant for the operand
// shapes; for reductions it plans axis segments and runs each as a pyramid of local
// and global passes. Every dispatch grid respects the configured per-axis limit.
//
// Example:
//
//	dev := cpu.New()
//	s := scheduler.New(dev, scheduler.DefaultConfig())
//	defer s.Close()
//
//	if err := s.ElementwiseBinary(kernels.Add, a, b, out); err != nil {
//	    log.Fatal(err)
//	}
package scheduler

import (
	"github.com/born-ml/dispatch/internal/device"
	"github.com/born-ml/dispatch/internal/scheduler"
	"github.com/born-ml/dispatch/tensor"
)

// Scheduler issues kernel dispatches for tensor operations on one device.
type Scheduler = scheduler.Scheduler

// Config controls scheduling behavior.
type Config = scheduler.Config

// DispatchPlan is the grid computed for one dispatch.
type DispatchPlan = scheduler.DispatchPlan

// DispatchPlanner computes legal dispatch grids.
type DispatchPlanner = scheduler.DispatchPlanner

// Segment is one fused (outer, reduce, inner) view of a reduction.
type Segment = scheduler.Segment

// PlannedSegment is a segment with its input and output shapes.
type PlannedSegment = scheduler.PlannedSegment

// Device is a compute backend the scheduler can submit to.
type Device = device.Device

// Mode selects when dispatches reach the device.
type Mode = device.Mode

// Submission modes.
const (
	Immediate = device.Immediate
	Recorded  = device.Recorded
)

// DefaultDispatchLimit is the per-axis workgroup limit guaranteed by WebGPU.
const DefaultDispatchLimit = scheduler.DefaultDispatchLimit

// VariadicOp is an associative operation folded over a list of tensors.
type VariadicOp = scheduler.VariadicOp

// Variadic operations.
const (
	VariadicSum  = scheduler.VariadicSum
	VariadicMean = scheduler.VariadicMean
	VariadicMax  = scheduler.VariadicMax
	VariadicMin  = scheduler.VariadicMin
)

// New creates a scheduler submitting to dev.
func New(dev Device, cfg Config) *Scheduler {
	return scheduler.New(dev, cfg)
}

// DefaultConfig returns the limits of a conformant WebGPU device in immediate mode.
func DefaultConfig() Config {
	return scheduler.DefaultConfig()
}

// ConfigFromEnv returns DefaultConfig overridden by the BORN_* environment variables.
func ConfigFromEnv() Config {
	return scheduler.ConfigFromEnv()
}

// PlanReduction splits a reduction of shape over axes into segments.
func PlanReduction(shape tensor.Shape, axes []int) []PlannedSegment {
	return scheduler.PlanReduction(shape, axes)
}
