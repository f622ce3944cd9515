package kernels

import (
	"testing"

	"github.com/born-ml/dispatch/internal/tensor"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDString(t *testing.T) {
	assert.Equal(t, "AddStrided_float32", BinaryID(Add, Strided, tensor.Float32).String())
	assert.Equal(t, "MulScalar_int32", BinaryID(Mul, ScalarBroadcast, tensor.Int32).String())
	assert.Equal(t, "SubFlat_float16", BinaryID(Sub, SameShape, tensor.Float16).String())
	assert.Equal(t, "Sqrt_float32", UnaryID(Sqrt, tensor.Float32).String())
	assert.Equal(t, "ReduceLogSumExpGlobal_float32", ReduceID(ReduceLogSumExp, Global, tensor.Float32).String())
	assert.Equal(t, "Invalid", ID{}.String())
}

func TestIDIsComparable(t *testing.T) {
	a := ReduceTriplet(ReduceSum, tensor.Float32)
	b := ReduceTriplet(ReduceSum, tensor.Float32)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a.Local, a.Global)

	seen := map[ID]bool{a.Local: true}
	assert.True(t, seen[b.Local])
}

func TestParseReduceOp(t *testing.T) {
	for op := range numReduceOps {
		got, ok := ParseReduceOp(op.String())
		require.True(t, ok)
		assert.Equal(t, op, got)
	}
	_, ok := ParseReduceOp("Median")
	assert.False(t, ok)
}

func TestStandardCatalog(t *testing.T) {
	c := Standard(DefaultThreadBudget)

	k, err := c.Resolve(BinaryID(Add, SameShape, tensor.Float32))
	require.NoError(t, err)
	assert.Equal(t, "AddFlat_float32", k.Name)
	assert.Equal(t, 4, k.ElementsPerThread)
	assert.Equal(t, [3]int{64, 1, 1}, k.ThreadGroup)

	k, err = c.Resolve(BinaryID(Add, Strided, tensor.Float32))
	require.NoError(t, err)
	assert.Equal(t, 1, k.ElementsPerThread)

	k, err = c.Resolve(ReduceID(ReduceSum, Local, tensor.Int32))
	require.NoError(t, err)
	assert.Equal(t, [3]int{1, DefaultThreadBudget, 1}, k.ThreadGroup)

	small := Standard(32)
	k, err = small.Resolve(ReduceID(ReduceMax, Global, tensor.Float16))
	require.NoError(t, err)
	assert.Equal(t, 32, k.ThreadGroup[1])
}

func TestCatalogCapabilityGaps(t *testing.T) {
	c := Standard(DefaultThreadBudget)
	missing := []ID{
		BinaryID(Add, SameShape, tensor.Float64),
		BinaryID(Pow, SameShape, tensor.Int32),
		UnaryID(Sqrt, tensor.Int32),
		ReduceID(ReduceMean, Local, tensor.Int32),
		ReduceID(ReduceSum, Global, tensor.Bool),
	}
	for _, id := range missing {
		_, err := c.Resolve(id)
		require.Error(t, err, "%s", id)
		assert.True(t, errors.Is(err, ErrNotImplemented), "%s", id)
		assert.Contains(t, err.Error(), id.String())
	}
}

func TestCatalogRegisterDefaults(t *testing.T) {
	c := NewCatalog()
	id := UnaryID(Exp, tensor.Float64)
	c.Register(Kernel{ID: id})
	k, err := c.Resolve(id)
	require.NoError(t, err)
	assert.Equal(t, "Exp_float64", k.Name)
	assert.Equal(t, 1, k.ElementsPerThread)
	assert.Equal(t, [3]int{1, 1, 1}, k.ThreadGroup)
	assert.Equal(t, 1, c.Len())
}

func TestCatalogKernelsSorted(t *testing.T) {
	list := Standard(DefaultThreadBudget).Kernels()
	require.NotEmpty(t, list)
	for i := 1; i < len(list); i++ {
		assert.Less(t, list[i-1].Name, list[i].Name)
	}
}
