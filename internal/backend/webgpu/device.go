//go:build windows

package webgpu

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/born-ml/dispatch/internal/device"
	"github.com/born-ml/dispatch/internal/kernels"
	"github.com/born-ml/dispatch/internal/tensor"
	"github.com/dustin/go-humanize"
	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Device runs catalog kernels on a WebGPU adapter.
// Execute encodes every command of one call into a single command buffer,
// so a recorded stream reaches the queue as one submission.
type Device struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	info     wgpu.AdapterInfoGo
	limit    int
	source   ProgramSource

	mu        sync.RWMutex
	pipelines map[kernels.ID]*wgpu.ComputePipeline

	memMu     sync.Mutex
	allocated uint64
	peak      uint64
	buffers   int
}

var _ device.Device = (*Device)(nil)

// New opens the high-performance adapter. Programs are looked up in source.
func New(source ProgramSource) (d *Device, err error) {
	// wgpu panics when the native library cannot be loaded.
	defer func() {
		if r := recover(); r != nil {
			d = nil
			err = errors.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return nil, errors.Wrap(err, "webgpu: creating instance")
	}
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, errors.Wrap(err, "webgpu: requesting adapter")
	}
	var info wgpu.AdapterInfoGo
	if got, err := adapter.GetInfo(); err == nil && got != nil {
		info = *got
	} else {
		klog.V(1).Infof("webgpu: adapter info unavailable: %v", err)
	}
	limit := defaultDispatchLimit
	if limits, err := adapter.GetLimits(); err == nil && limits != nil {
		limit = dispatchLimit(limits.Limits.MaxComputeWorkgroupsPerDimension)
	}

	dev, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, errors.Wrap(err, "webgpu: requesting device")
	}
	queue := dev.GetQueue()
	if queue == nil {
		dev.Release()
		adapter.Release()
		instance.Release()
		return nil, errors.New("webgpu: device has no queue")
	}

	klog.V(1).Infof("webgpu: using %s (%s), %d workgroups per dimension", info.Device, info.Vendor, limit)
	return &Device{
		instance:  instance,
		adapter:   adapter,
		device:    dev,
		queue:     queue,
		info:      info,
		limit:     limit,
		source:    source,
		pipelines: make(map[kernels.ID]*wgpu.ComputePipeline),
	}, nil
}

// Name implements device.Device.
func (d *Device) Name() string {
	return fmt.Sprintf("webgpu (%s %s)", d.info.Device, d.info.Vendor)
}

// DispatchLimit returns the adapter's maximum workgroup count per dispatch axis,
// for scheduler.Config.DispatchLimit.
func (d *Device) DispatchLimit() int {
	return d.limit
}

// pipeline returns the cached compute pipeline for k, compiling it on first use.
func (d *Device) pipeline(k *kernels.Kernel) (*wgpu.ComputePipeline, error) {
	d.mu.RLock()
	p, ok := d.pipelines[k.ID]
	d.mu.RUnlock()
	if ok {
		return p, nil
	}

	code, err := program(d.source, k.ID)
	if err != nil {
		return nil, err
	}
	shader := d.device.CreateShaderModuleWGSL(code)
	defer shader.Release()
	p = d.device.CreateComputePipelineSimple(nil, shader, "main")

	d.mu.Lock()
	defer d.mu.Unlock()
	if cached, ok := d.pipelines[k.ID]; ok {
		p.Release()
		return cached, nil
	}
	d.pipelines[k.ID] = p
	klog.V(2).Infof("webgpu: compiled %s", k.Name)
	return p, nil
}

// Execute implements device.Executor.
func (d *Device) Execute(cmds ...device.Command) error {
	if len(cmds) == 0 {
		return nil
	}
	var (
		uniforms   []*wgpu.Buffer
		bindGroups []*wgpu.BindGroup
	)
	defer func() {
		for _, bg := range bindGroups {
			bg.Release()
		}
		for _, u := range uniforms {
			u.Release()
		}
	}()

	encoder := d.device.CreateCommandEncoder(nil)
	for i := range cmds {
		cmd := &cmds[i]
		p, err := d.pipeline(cmd.Kernel)
		if err != nil {
			encoder.Release()
			return err
		}
		params, err := PackParams(cmd)
		if err != nil {
			encoder.Release()
			return err
		}
		uniform := d.createBuffer(params, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)
		uniforms = append(uniforms, uniform)

		entries := make([]wgpu.BindGroupEntry, 0, kernels.NumBufferSlots+1)
		for slot, b := range cmd.Buffers {
			if b == nil {
				continue
			}
			buf, err := d.buffer(b)
			if err != nil {
				encoder.Release()
				return errors.WithMessagef(err, "%s", cmd)
			}
			entries = append(entries, wgpu.BufferBindingEntry(uint32(slot), buf.buf, 0, buf.size))
		}
		entries = append(entries, wgpu.BufferBindingEntry(paramsBinding, uniform, 0, uint64(len(params))))
		layout := p.GetBindGroupLayout(0)
		bindGroup := d.device.CreateBindGroupSimple(layout, entries)
		layout.Release()
		bindGroups = append(bindGroups, bindGroup)

		pass := encoder.BeginComputePass(nil)
		pass.SetPipeline(p)
		pass.SetBindGroup(0, bindGroup, nil)
		pass.DispatchWorkgroups(cmd.Groups[0], cmd.Groups[1], cmd.Groups[2])
		pass.End()
		pass.Release()
	}
	cmdBuffer := encoder.Finish(nil)
	d.queue.Submit(cmdBuffer)
	cmdBuffer.Release()
	encoder.Release()
	klog.V(2).Infof("webgpu: submitted %d commands", len(cmds))
	return nil
}

func (d *Device) buffer(b tensor.Buffer) (*Buffer, error) {
	buf, ok := b.(*Buffer)
	if !ok {
		return nil, errors.Errorf("webgpu: buffer %T belongs to another device", b)
	}
	if buf.buf == nil {
		return nil, errors.New("webgpu: use of freed buffer")
	}
	return buf, nil
}

// createBuffer creates a buffer initialized with data.
func (d *Device) createBuffer(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := uint64(len(data))
	buffer := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	mapped := buffer.GetMappedRange(0, size)
	//nolint:gosec // G103: mapped range is valid until Unmap.
	copy(unsafe.Slice((*byte)(mapped), size), data)
	buffer.Unmap()
	return buffer
}

// Release frees cached pipelines and the device. Buffers must be freed first.
func (d *Device) Release() {
	d.mu.Lock()
	for id, p := range d.pipelines {
		p.Release()
		delete(d.pipelines, id)
	}
	d.mu.Unlock()

	if n := d.MemoryStats().Buffers; n > 0 {
		klog.Warningf("webgpu: releasing device with %d live buffers", n)
	}
	d.queue.Release()
	d.device.Release()
	d.adapter.Release()
	d.instance.Release()
}

// MemoryStats reports device buffer usage.
type MemoryStats struct {
	Allocated uint64 // bytes currently allocated
	Peak      uint64
	Buffers   int
}

// String implements fmt.Stringer.
func (s MemoryStats) String() string {
	return fmt.Sprintf("%d buffers, %s allocated (peak %s)",
		s.Buffers, humanize.IBytes(s.Allocated), humanize.IBytes(s.Peak))
}

// MemoryStats returns a snapshot of buffer usage.
func (d *Device) MemoryStats() MemoryStats {
	d.memMu.Lock()
	defer d.memMu.Unlock()
	return MemoryStats{Allocated: d.allocated, Peak: d.peak, Buffers: d.buffers}
}
