package scheduler

import (
	"testing"

	"github.com/born-ml/dispatch/internal/kernels"
	"github.com/born-ml/dispatch/internal/tensor"
	"github.com/gomlx/exceptions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectVariant(t *testing.T) {
	cases := []struct {
		name    string
		a, b, o tensor.Shape
		want    kernels.Variant
	}{
		{"scalar", tensor.Shape{2, 3}, tensor.Shape{1}, tensor.Shape{2, 3}, kernels.ScalarBroadcast},
		{"rank0 scalar", tensor.Shape{2, 3}, tensor.Shape{}, tensor.Shape{2, 3}, kernels.ScalarBroadcast},
		{"ones scalar", tensor.Shape{2, 3}, tensor.Shape{1, 1}, tensor.Shape{2, 3}, kernels.ScalarBroadcast},
		{"all scalars", tensor.Shape{}, tensor.Shape{}, tensor.Shape{}, kernels.ScalarBroadcast},
		{"same", tensor.Shape{2, 3}, tensor.Shape{2, 3}, tensor.Shape{2, 3}, kernels.SameShape},
		{"row broadcast", tensor.Shape{2, 3}, tensor.Shape{3}, tensor.Shape{2, 3}, kernels.Strided},
		{"outer product", tensor.Shape{1, 3}, tensor.Shape{2, 1}, tensor.Shape{2, 3}, kernels.Strided},
		{"scalar on the left", tensor.Shape{1}, tensor.Shape{2, 3}, tensor.Shape{2, 3}, kernels.Strided},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SelectVariant(tc.a, tc.b, tc.o)
			assert.Equal(t, tc.want, got)
			// Pure function of shapes.
			assert.Equal(t, got, SelectVariant(tc.a.Clone(), tc.b.Clone(), tc.o.Clone()))
		})
	}
}

func TestSelectVariantIllegal(t *testing.T) {
	err := exceptions.TryCatch[error](func() {
		SelectVariant(tensor.Shape{2, 3}, tensor.Shape{4}, tensor.Shape{2, 3})
	})
	require.ErrorContains(t, err, "illegal broadcast")

	err = exceptions.TryCatch[error](func() {
		SelectVariant(tensor.Shape{1, 3}, tensor.Shape{3}, tensor.Shape{4, 3})
	})
	require.ErrorContains(t, err, "not to output shape")
}
