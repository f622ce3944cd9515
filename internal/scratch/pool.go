// Package scratch provides the temporary device buffers a scheduling call needs
// for intermediate results.
//
// Buffers are pooled by exact (dtype, element count). Every Acquire returns a
// Lease that must be released exactly once; releasing returns the buffer to the
// pool instead of freeing it.
package scratch

import (
	"fmt"
	"sync"

	"github.com/born-ml/dispatch/internal/device"
	"github.com/born-ml/dispatch/internal/tensor"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// maxPooledPerKey bounds how many idle buffers are kept for one (dtype, size).
const maxPooledPerKey = 16

type key struct {
	dtype tensor.DataType
	n     int
}

// Stats reports pool usage.
type Stats struct {
	Allocated uint64 // buffers created on the device
	Released  uint64 // leases returned
	Hits      uint64 // acquisitions served from the pool
	Misses    uint64 // acquisitions that allocated
	Pooled    int    // idle buffers held
	Live      int    // leases not yet released
}

// String implements fmt.Stringer.
func (s Stats) String() string {
	return fmt.Sprintf("allocated=%s released=%s hits=%s misses=%s pooled=%d live=%d",
		humanize.Comma(int64(s.Allocated)), humanize.Comma(int64(s.Released)),
		humanize.Comma(int64(s.Hits)), humanize.Comma(int64(s.Misses)), s.Pooled, s.Live)
}

// Pool hands out scratch buffers from an allocator.
// It is safe for concurrent use.
type Pool struct {
	alloc device.Allocator

	mu     sync.Mutex
	free   map[key][]tensor.Buffer
	live   int
	closed bool
	stats  Stats
}

// New creates a pool over alloc.
func New(alloc device.Allocator) *Pool {
	return &Pool{
		alloc: alloc,
		free:  make(map[key][]tensor.Buffer),
	}
}

// Acquire returns a lease on a buffer of exactly n elements of dtype.
// It panics if n is not positive.
func (p *Pool) Acquire(dtype tensor.DataType, n int) (*Lease, error) {
	if n <= 0 {
		exceptions.Panicf("scratch: cannot acquire %d elements", n)
	}
	k := key{dtype, n}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errors.New("scratch: pool is closed")
	}
	if list := p.free[k]; len(list) > 0 {
		buf := list[len(list)-1]
		p.free[k] = list[:len(list)-1]
		p.stats.Hits++
		p.live++
		p.mu.Unlock()
		return &Lease{pool: p, key: k, buffer: buf}, nil
	}
	p.stats.Misses++
	p.mu.Unlock()

	buf, err := p.alloc.Alloc(dtype, n)
	if err != nil {
		return nil, errors.Wrapf(err, "scratch: allocating %d x %s (%s)",
			n, dtype, humanize.IBytes(uint64(n*dtype.Size())))
	}

	p.mu.Lock()
	p.stats.Allocated++
	p.live++
	p.mu.Unlock()
	return &Lease{pool: p, key: k, buffer: buf}, nil
}

// AcquireTensor acquires a buffer sized for shape and wraps it in a tensor.
func (p *Pool) AcquireTensor(shape tensor.Shape, dtype tensor.DataType) (*tensor.Tensor, *Lease, error) {
	lease, err := p.Acquire(dtype, shape.NumElements())
	if err != nil {
		return nil, nil, err
	}
	t, err := lease.Tensor(shape)
	if err != nil {
		lease.Release()
		return nil, nil, err
	}
	return t, lease, nil
}

func (p *Pool) put(k key, buf tensor.Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.live--
	p.stats.Released++
	if p.closed || len(p.free[k]) >= maxPooledPerKey {
		p.alloc.Free(buf)
		return
	}
	p.free[k] = append(p.free[k], buf)
}

// Live returns the number of leases not yet released.
func (p *Pool) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.Live = p.live
	for _, list := range p.free {
		s.Pooled += len(list)
	}
	return s
}

// Close frees every idle buffer. Leases still live are freed when released.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for k, list := range p.free {
		for _, buf := range list {
			p.alloc.Free(buf)
		}
		delete(p.free, k)
	}
	if p.live > 0 {
		klog.Warningf("scratch: pool closed with %d live leases", p.live)
	}
}

// Lease is exclusive use of one scratch buffer until Release.
type Lease struct {
	pool     *Pool
	key      key
	buffer   tensor.Buffer
	released bool
}

// Buffer returns the leased buffer. It panics after Release.
func (l *Lease) Buffer() tensor.Buffer {
	if l.released {
		exceptions.Panicf("scratch: use of released lease (%d x %s)", l.key.n, l.key.dtype)
	}
	return l.buffer
}

// Tensor wraps the leased buffer with shape, which must fit in it.
func (l *Lease) Tensor(shape tensor.Shape) (*tensor.Tensor, error) {
	return tensor.New(shape, l.key.dtype, l.Buffer())
}

// Release returns the buffer to the pool. Releasing twice panics.
func (l *Lease) Release() {
	if l.released {
		exceptions.Panicf("scratch: lease (%d x %s) released twice", l.key.n, l.key.dtype)
	}
	l.released = true
	l.pool.put(l.key, l.buffer)
}
