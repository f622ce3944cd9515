package kernels

import (
	"slices"
	"strings"
	"sync"

	"github.com/born-ml/dispatch/internal/tensor"
	"github.com/pkg/errors"
)

// DefaultThreadBudget is the number of threads a local or global reduction group
// spreads over the reduce axis.
const DefaultThreadBudget = 256

const (
	elementwiseGroupSize = 64
	// elementsPerThread for the flat and scalar elementwise variants.
	vectorWidth = 4
)

// ErrNotImplemented is returned when no kernel exists for an op/variant/dtype combination.
var ErrNotImplemented = errors.New("kernel not implemented")

// Kernel is a resolved device program.
type Kernel struct {
	ID   ID
	Name string
	// ThreadGroup is the compiled work-group size on X, Y and Z.
	ThreadGroup [3]int
	// ElementsPerThread is how many consecutive elements one invocation handles on X.
	ElementsPerThread int
}

// Catalog maps kernel ids to device programs.
// It is filled at startup and read concurrently afterwards.
type Catalog struct {
	kernels map[ID]*Kernel
	mu      sync.RWMutex
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{kernels: make(map[ID]*Kernel)}
}

// Register adds or replaces a kernel.
func (c *Catalog) Register(k Kernel) {
	if k.Name == "" {
		k.Name = k.ID.String()
	}
	if k.ElementsPerThread <= 0 {
		k.ElementsPerThread = 1
	}
	for i := range k.ThreadGroup {
		if k.ThreadGroup[i] <= 0 {
			k.ThreadGroup[i] = 1
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kernels[k.ID] = &k
}

// Resolve returns the kernel registered for id.
// The error wraps ErrNotImplemented when the catalog has no such kernel.
func (c *Catalog) Resolve(id ID) (*Kernel, error) {
	c.mu.RLock()
	k, ok := c.kernels[id]
	c.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrNotImplemented, "%s", id)
	}
	return k, nil
}

// Len returns the number of registered kernels.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.kernels)
}

// Kernels returns all registered kernels sorted by name.
func (c *Catalog) Kernels() []*Kernel {
	c.mu.RLock()
	list := make([]*Kernel, 0, len(c.kernels))
	for _, k := range c.kernels {
		list = append(list, k)
	}
	c.mu.RUnlock()
	slices.SortFunc(list, func(a, b *Kernel) int { return strings.Compare(a.Name, b.Name) })
	return list
}

var (
	floatTypes   = []tensor.DataType{tensor.Float32, tensor.Float16}
	numericTypes = []tensor.DataType{tensor.Float32, tensor.Float16, tensor.Int32}
)

// Standard returns the catalog of the stock kernel set, compiled for the given
// reduction thread budget.
//
// Float64, Uint8 and Bool have no kernels; float-only ops (Pow, WeightedAdd, Sqrt,
// Exp, Log, Mean, L2, LogSumExp) have no Int32 kernels.
func Standard(threadBudget int) *Catalog {
	if threadBudget <= 0 {
		threadBudget = DefaultThreadBudget
	}
	c := NewCatalog()

	for op := range numBinaryOps {
		dtypes := numericTypes
		if op == Pow || op == WeightedAdd {
			dtypes = floatTypes
		}
		for _, dtype := range dtypes {
			for _, v := range []Variant{ScalarBroadcast, SameShape, Strided} {
				ept := vectorWidth
				if v == Strided {
					ept = 1
				}
				c.Register(Kernel{
					ID:                BinaryID(op, v, dtype),
					ThreadGroup:       [3]int{elementwiseGroupSize, 1, 1},
					ElementsPerThread: ept,
				})
			}
		}
	}

	for op := range numUnaryOps {
		dtypes := floatTypes
		if op == Abs || op == Square || op == Neg {
			dtypes = numericTypes
		}
		for _, dtype := range dtypes {
			c.Register(Kernel{
				ID:                UnaryID(op, dtype),
				ThreadGroup:       [3]int{elementwiseGroupSize, 1, 1},
				ElementsPerThread: vectorWidth,
			})
		}
	}

	for op := range numReduceOps {
		dtypes := numericTypes
		switch op {
		case ReduceMean, ReduceL2, ReduceLogSumExp:
			dtypes = floatTypes
		}
		for _, dtype := range dtypes {
			c.Register(Kernel{ID: ReduceID(op, Local, dtype), ThreadGroup: [3]int{1, threadBudget, 1}})
			c.Register(Kernel{ID: ReduceID(op, Global, dtype), ThreadGroup: [3]int{1, threadBudget, 1}})
			c.Register(Kernel{ID: ReduceID(op, Unrolled, dtype), ThreadGroup: [3]int{elementwiseGroupSize, 1, 1}})
		}
	}
	return c
}
