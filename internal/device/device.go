// Package device defines the boundary between the scheduler and a compute device:
// parameter values, recorded commands, and the executor/allocator a backend provides.
package device

import (
	"fmt"

	"github.com/born-ml/dispatch/internal/kernels"
	"github.com/born-ml/dispatch/internal/tensor"
	"github.com/gomlx/exceptions"
)

// Param is a value uploaded into a kernel parameter slot.
// It is one of Uint, Int, Float or Vec.
type Param interface {
	param()
}

// Uint is an unsigned 32-bit parameter.
type Uint uint32

// Int is a signed 32-bit parameter.
type Int int32

// Float is a 32-bit float parameter.
type Float float32

// Vec is a right-aligned shape or stride register array.
type Vec [tensor.MaxRank]int32

func (Uint) param()  {}
func (Int) param()   {}
func (Float) param() {}
func (Vec) param()   {}

// Command is one fully bound kernel dispatch.
// Params and buffers are copied by value when the dispatch is issued.
type Command struct {
	Kernel  *kernels.Kernel
	Params  [kernels.NumParamSlots]Param
	Buffers [kernels.NumBufferSlots]tensor.Buffer
	Groups  [3]uint32
}

// Uint returns the Uint parameter in slot; it panics if the slot holds anything else.
func (c *Command) Uint(slot kernels.Slot) uint32 {
	v, ok := c.Params[slot].(Uint)
	if !ok {
		exceptions.Panicf("%s: parameter %s is %T, want Uint", c.name(), slot, c.Params[slot])
	}
	return uint32(v)
}

// Int returns the Int parameter in slot; it panics if the slot holds anything else.
func (c *Command) Int(slot kernels.Slot) int32 {
	v, ok := c.Params[slot].(Int)
	if !ok {
		exceptions.Panicf("%s: parameter %s is %T, want Int", c.name(), slot, c.Params[slot])
	}
	return int32(v)
}

// Float returns the Float parameter in slot; it panics if the slot holds anything else.
func (c *Command) Float(slot kernels.Slot) float32 {
	v, ok := c.Params[slot].(Float)
	if !ok {
		exceptions.Panicf("%s: parameter %s is %T, want Float", c.name(), slot, c.Params[slot])
	}
	return float32(v)
}

// Vec returns the Vec parameter in slot; it panics if the slot holds anything else.
func (c *Command) Vec(slot kernels.Slot) Vec {
	v, ok := c.Params[slot].(Vec)
	if !ok {
		exceptions.Panicf("%s: parameter %s is %T, want Vec", c.name(), slot, c.Params[slot])
	}
	return v
}

// Buffer returns the buffer bound to slot; it panics if nothing is bound.
func (c *Command) Buffer(slot kernels.BufferSlot) tensor.Buffer {
	b := c.Buffers[slot]
	if b == nil {
		exceptions.Panicf("%s: no buffer bound to slot %d", c.name(), slot)
	}
	return b
}

// String implements fmt.Stringer.
func (c *Command) String() string {
	return fmt.Sprintf("%s[%d,%d,%d]", c.name(), c.Groups[0], c.Groups[1], c.Groups[2])
}

func (c *Command) name() string {
	if c.Kernel == nil {
		return "<nil kernel>"
	}
	return c.Kernel.Name
}

// Executor runs commands on the device in the order given.
// Execution may be asynchronous: returning means the work was submitted.
type Executor interface {
	Execute(cmds ...Command) error
}

// Allocator creates and frees device buffers.
type Allocator interface {
	Alloc(dtype tensor.DataType, elements int) (tensor.Buffer, error)
	Free(buffer tensor.Buffer)
}

// Device is a compute backend the scheduler can submit to.
type Device interface {
	Executor
	Allocator
	Name() string
}

// Sink receives kernel bindings and dispatches.
// Bindings accumulate per kernel until Dispatch, which consumes them.
type Sink interface {
	SetParam(k *kernels.Kernel, slot kernels.Slot, v Param)
	SetBuffer(k *kernels.Kernel, slot kernels.BufferSlot, b tensor.Buffer)
	Dispatch(k *kernels.Kernel, groupsX, groupsY, groupsZ uint32) error
}
