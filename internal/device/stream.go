package device

import (
	"github.com/born-ml/dispatch/internal/kernels"
	"github.com/born-ml/dispatch/internal/tensor"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Mode selects when dispatches reach the executor.
type Mode int

const (
	// Immediate hands every dispatch to the executor as it is issued.
	Immediate Mode = iota
	// Recorded appends dispatches to the stream; Submit hands them over in one call.
	Recorded
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	if m == Recorded {
		return "recorded"
	}
	return "immediate"
}

// StreamStats counts stream activity.
type StreamStats struct {
	Dispatches uint64 // dispatches issued
	Skipped    uint64 // dispatches with an empty grid, never executed
	Submits    uint64 // calls reaching the executor
}

// Stream is the Sink the scheduler writes to.
// Both modes preserve program order; the stream never reorders commands.
//
// A Stream is not safe for concurrent use: it models a single device queue.
type Stream struct {
	exec     Executor
	mode     Mode
	bindings map[*kernels.Kernel]*Command
	pending  []Command
	maxBatch int // Maximum recorded commands before auto-submit (0 = no limit)
	stats    StreamStats
}

// NewStream creates a stream over exec.
func NewStream(exec Executor, mode Mode) *Stream {
	return &Stream{
		exec:     exec,
		mode:     mode,
		bindings: make(map[*kernels.Kernel]*Command),
		pending:  make([]Command, 0, 16),
	}
}

// Mode returns the stream's scheduling mode.
func (s *Stream) Mode() Mode {
	return s.mode
}

// SetMaxBatch sets how many recorded commands may accumulate before they are
// submitted automatically. Set to 0 (default) to only submit on Submit.
func (s *Stream) SetMaxBatch(n int) {
	s.maxBatch = n
}

func (s *Stream) binding(k *kernels.Kernel) *Command {
	cmd, ok := s.bindings[k]
	if !ok {
		cmd = &Command{Kernel: k}
		s.bindings[k] = cmd
	}
	return cmd
}

// SetParam implements Sink.
func (s *Stream) SetParam(k *kernels.Kernel, slot kernels.Slot, v Param) {
	s.binding(k).Params[slot] = v
}

// SetBuffer implements Sink.
func (s *Stream) SetBuffer(k *kernels.Kernel, slot kernels.BufferSlot, b tensor.Buffer) {
	s.binding(k).Buffers[slot] = b
}

// Dispatch implements Sink. It snapshots the kernel's bindings and clears them,
// so the next dispatch of the same kernel starts from an empty binding set.
func (s *Stream) Dispatch(k *kernels.Kernel, groupsX, groupsY, groupsZ uint32) error {
	cmd := *s.binding(k)
	delete(s.bindings, k)
	cmd.Groups = [3]uint32{groupsX, groupsY, groupsZ}
	s.stats.Dispatches++

	if groupsX == 0 || groupsY == 0 || groupsZ == 0 {
		s.stats.Skipped++
		klog.V(2).Infof("stream: skipping empty dispatch %s", &cmd)
		return nil
	}
	if klog.V(2).Enabled() {
		klog.Infof("stream(%s): dispatch %s", s.mode, &cmd)
	}

	if s.mode == Immediate {
		s.stats.Submits++
		return errors.Wrapf(s.exec.Execute(cmd), "dispatch %s", &cmd)
	}

	s.pending = append(s.pending, cmd)
	if s.maxBatch > 0 && len(s.pending) >= s.maxBatch {
		return s.Submit()
	}
	return nil
}

// Submit hands all recorded commands to the executor in one call.
// It is a no-op in Immediate mode or when nothing is pending.
func (s *Stream) Submit() error {
	if len(s.pending) == 0 {
		return nil
	}
	cmds := s.pending
	s.pending = make([]Command, 0, cap(cmds))
	s.stats.Submits++
	return errors.Wrapf(s.exec.Execute(cmds...), "submit of %d commands", len(cmds))
}

// Pending returns the number of recorded commands waiting for Submit.
func (s *Stream) Pending() int {
	return len(s.pending)
}

// Stats returns a snapshot of the stream counters.
func (s *Stream) Stats() StreamStats {
	return s.stats
}
