//go:build windows

package webgpu

import (
	"unsafe"

	"github.com/born-ml/dispatch/internal/tensor"
	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const storageUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst

// Buffer is a storage buffer on a Device.
type Buffer struct {
	buf   *wgpu.Buffer
	dtype tensor.DataType
	n     int
	size  uint64
}

// Len implements tensor.Buffer.
func (b *Buffer) Len() int { return b.n }

// DType implements tensor.Buffer.
func (b *Buffer) DType() tensor.DataType { return b.dtype }

// Alloc implements device.Allocator. Contents are zeroed.
func (d *Device) Alloc(dtype tensor.DataType, n int) (tensor.Buffer, error) {
	if n <= 0 {
		return nil, errors.Errorf("webgpu: cannot allocate %d elements", n)
	}
	size := byteSize(dtype, n)
	buf := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: storageUsage,
		Size:  size,
	})
	if buf == nil {
		return nil, errors.Errorf("webgpu: allocating %d x %s failed", n, dtype)
	}
	d.track(int64(size), 1)
	return &Buffer{buf: buf, dtype: dtype, n: n, size: size}, nil
}

// Upload creates a buffer holding data, the raw little-endian elements of dtype.
func (d *Device) Upload(dtype tensor.DataType, data []byte) (*Buffer, error) {
	if len(data) == 0 || len(data)%dtype.Size() != 0 {
		return nil, errors.Errorf("webgpu: %d bytes is not a whole number of %s", len(data), dtype)
	}
	n := len(data) / dtype.Size()
	size := byteSize(dtype, n)
	padded := make([]byte, size)
	copy(padded, data)
	buf := d.createBuffer(padded, storageUsage)
	d.track(int64(size), 1)
	return &Buffer{buf: buf, dtype: dtype, n: n, size: size}, nil
}

// Read copies the contents of b back to host memory.
// It waits for all previously submitted work on the queue.
func (d *Device) Read(b tensor.Buffer) ([]byte, error) {
	buf, err := d.buffer(b)
	if err != nil {
		return nil, err
	}
	staging := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  buf.size,
	})
	defer staging.Release()

	encoder := d.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(buf.buf, 0, staging, 0, buf.size)
	cmdBuffer := encoder.Finish(nil)
	d.queue.Submit(cmdBuffer)
	cmdBuffer.Release()
	encoder.Release()

	if err := staging.MapAsync(d.device, wgpu.MapModeRead, 0, buf.size); err != nil {
		return nil, errors.Wrap(err, "webgpu: mapping staging buffer")
	}
	mapped := staging.GetMappedRange(0, buf.size)
	n := uint64(buf.n * buf.dtype.Size())
	result := make([]byte, n)
	//nolint:gosec // G103: mapped range is valid until Unmap.
	copy(result, unsafe.Slice((*byte)(mapped), n))
	staging.Unmap()
	return result, nil
}

// Free implements device.Allocator.
func (d *Device) Free(b tensor.Buffer) {
	buf, ok := b.(*Buffer)
	if !ok || buf.buf == nil {
		klog.Warningf("webgpu: ignoring free of %T", b)
		return
	}
	buf.buf.Release()
	buf.buf = nil
	d.track(-int64(buf.size), -1)
}

func (d *Device) track(bytes int64, buffers int) {
	d.memMu.Lock()
	defer d.memMu.Unlock()
	d.allocated = uint64(int64(d.allocated) + bytes)
	d.buffers += buffers
	d.peak = max(d.peak, d.allocated)
}
