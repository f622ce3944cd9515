// Package cpu implements a host reference device.
//
// The device executes every kernel in the standard catalog on host memory and
// emulates the dispatch grid it is given: it walks groups and threads exactly like a
// GPU would, so a plan that under-covers its problem leaves outputs unwritten here too.
// It backs scheduler tests and the dispatchplan simulate command.
package cpu

import (
	"sync"

	"github.com/born-ml/dispatch/internal/device"
	"github.com/born-ml/dispatch/internal/kernels"
	"github.com/born-ml/dispatch/internal/parallel"
	"github.com/born-ml/dispatch/internal/tensor"
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
	"k8s.io/klog/v2"
)

// Buffer is host memory holding elements as float64, rounded to the dtype on store.
type Buffer struct {
	data  []float64
	dtype tensor.DataType
	freed bool
}

// Len implements tensor.Buffer.
func (b *Buffer) Len() int {
	return len(b.data)
}

// DType implements tensor.Buffer.
func (b *Buffer) DType() tensor.DataType {
	return b.dtype
}

// Device is the host reference device.
type Device struct {
	parallel parallel.Config

	mu      sync.Mutex
	live    int
	tracing bool
	trace   []device.Command
}

// New creates a reference device using parallel.DefaultConfig.
func New() *Device {
	return &Device{parallel: parallel.DefaultConfig()}
}

// SetParallel sets how kernel grids are spread over goroutines.
func (d *Device) SetParallel(cfg parallel.Config) {
	d.parallel = cfg
}

// Name implements device.Device.
func (d *Device) Name() string {
	return "cpu"
}

// Alloc implements device.Allocator.
func (d *Device) Alloc(dtype tensor.DataType, elements int) (tensor.Buffer, error) {
	if elements < 0 {
		return nil, errors.Errorf("cpu: invalid allocation of %d elements", elements)
	}
	d.mu.Lock()
	d.live++
	d.mu.Unlock()
	return &Buffer{data: make([]float64, elements), dtype: dtype}, nil
}

// Free implements device.Allocator.
func (d *Device) Free(buffer tensor.Buffer) {
	b := buffer.(*Buffer)
	if b.freed {
		klog.Warningf("cpu: buffer of %d x %s freed twice", len(b.data), b.dtype)
		return
	}
	b.freed = true
	b.data = nil
	d.mu.Lock()
	d.live--
	d.mu.Unlock()
}

// Allocated returns the number of buffers allocated and not freed.
func (d *Device) Allocated() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live
}

// SetTracing starts or stops recording executed commands.
func (d *Device) SetTracing(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tracing = enabled
	d.trace = nil
}

// Trace returns the commands executed since tracing was enabled.
func (d *Device) Trace() []device.Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]device.Command(nil), d.trace...)
}

// Execute implements device.Executor. Commands run synchronously in order.
func (d *Device) Execute(cmds ...device.Command) error {
	for i := range cmds {
		cmd := &cmds[i]
		if cmd.Kernel == nil {
			return errors.Errorf("cpu: command %d has no kernel", i)
		}
		d.mu.Lock()
		if d.tracing {
			d.trace = append(d.trace, *cmd)
		}
		d.mu.Unlock()

		var err error
		switch cmd.Kernel.ID.Family {
		case kernels.FamilyBinary:
			err = d.runBinary(cmd)
		case kernels.FamilyUnary:
			err = d.runUnary(cmd)
		case kernels.FamilyReduce:
			err = d.runReduce(cmd)
		default:
			err = errors.Wrapf(kernels.ErrNotImplemented, "cpu: %s", cmd.Kernel.Name)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Number is any Go numeric type a tensor can be built from.
type Number interface {
	constraints.Integer | constraints.Float
}

// FromSlice allocates a tensor of shape on d holding values.
func FromSlice[T Number](d *Device, shape tensor.Shape, dtype tensor.DataType, values []T) (*tensor.Tensor, error) {
	if len(values) != shape.NumElements() {
		return nil, errors.Errorf("cpu: %d values for shape %s with %d elements", len(values), shape, shape.NumElements())
	}
	buf, err := d.Alloc(dtype, len(values))
	if err != nil {
		return nil, err
	}
	b := buf.(*Buffer)
	for i, v := range values {
		b.data[i] = roundTo(dtype, float64(v))
	}
	t, err := tensor.New(shape, dtype, b)
	if err != nil {
		d.Free(b)
		return nil, err
	}
	return t, nil
}

// Zeros allocates a zero-filled tensor of shape on d.
func Zeros(d *Device, shape tensor.Shape, dtype tensor.DataType) (*tensor.Tensor, error) {
	buf, err := d.Alloc(dtype, shape.NumElements())
	if err != nil {
		return nil, err
	}
	return tensor.New(shape, dtype, buf)
}

// ToSlice copies the elements of t out of the device.
func ToSlice[T Number](t *tensor.Tensor) []T {
	b := t.Buffer().(*Buffer)
	out := make([]T, t.NumElements())
	for i := range out {
		out[i] = T(b.data[i])
	}
	return out
}
