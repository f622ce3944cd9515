// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides a host device that executes scheduler commands in pure Go.
//
// It runs the same commands a GPU would receive, so it is both a fallback device
// and a reference for checking kernel parameters.
//
// Example:
//
//	dev := cpu.New()
//	s := scheduler.New(dev, scheduler.DefaultConfig())
//	defer s.Close()
//
//	x, _ := cpu.FromSlice(dev, tensor.Shape{2, 3}, tensor.Float32, []float32{1, 2, 3, 4, 5, 6})
//	o, _ := cpu.Zeros(dev, tensor.Shape{2}, tensor.Float32)
//	_ = s.Reduce(kernels.ReduceSum, x, o, []int{1}, false)
//	_ = s.Submit()
//	fmt.Println(cpu.ToSlice[float32](o)) // [6 15]
package cpu

import (
	"github.com/born-ml/dispatch/internal/backend/cpu"
	"github.com/born-ml/dispatch/internal/device"
	"github.com/born-ml/dispatch/tensor"
)

// Device is the host compute device.
type Device = cpu.Device

// Number is the set of Go element types FromSlice and ToSlice convert.
type Number = cpu.Number

// Compile-time check that Device can back a scheduler.
var _ device.Device = (*Device)(nil)

// New creates a host device using all CPUs.
func New() *Device {
	return cpu.New()
}

// FromSlice allocates a tensor on d holding values converted to dtype.
func FromSlice[T Number](d *Device, shape tensor.Shape, dtype tensor.DataType, values []T) (*tensor.Tensor, error) {
	return cpu.FromSlice(d, shape, dtype, values)
}

// Zeros allocates a zero-filled tensor on d.
func Zeros(d *Device, shape tensor.Shape, dtype tensor.DataType) (*tensor.Tensor, error) {
	return cpu.Zeros(d, shape, dtype)
}

// ToSlice copies the elements of a host tensor.
func ToSlice[T Number](t *tensor.Tensor) []T {
	return cpu.ToSlice[T](t)
}
