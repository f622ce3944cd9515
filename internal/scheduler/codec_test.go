package scheduler

import (
	"testing"

	"github.com/born-ml/dispatch/internal/device"
	"github.com/born-ml/dispatch/internal/tensor"
	"github.com/gomlx/exceptions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeShape(t *testing.T) {
	dims, strides := EncodeShape(tensor.Shape{2, 3, 4})
	assert.Equal(t, device.Vec{1, 1, 1, 1, 1, 2, 3, 4}, dims)
	assert.Equal(t, device.Vec{0, 0, 0, 0, 0, 12, 4, 1}, strides)

	dims, strides = EncodeShape(tensor.Shape{})
	assert.Equal(t, device.Vec{1, 1, 1, 1, 1, 1, 1, 1}, dims)
	assert.Equal(t, device.Vec{}, strides)

	dims, _ = EncodeShape(tensor.Shape{1, 2, 3, 4, 5, 6, 7, 8})
	assert.Equal(t, device.Vec{1, 2, 3, 4, 5, 6, 7, 8}, dims)
}

func TestEncodeShapeRejectsHighRank(t *testing.T) {
	err := exceptions.TryCatch[error](func() {
		EncodeShape(tensor.Shape{1, 1, 1, 1, 1, 1, 1, 1, 1})
	})
	require.ErrorContains(t, err, "unsupported rank 9")
}

func TestEncodeBroadcastStrides(t *testing.T) {
	out := tensor.Shape{2, 3, 4}
	assert.Equal(t, device.Vec{0, 0, 0, 0, 0, 12, 4, 1}, EncodeBroadcastStrides(out, out))
	assert.Equal(t, device.Vec{0, 0, 0, 0, 0, 0, 1, 0}, EncodeBroadcastStrides(tensor.Shape{3, 1}, out))
	assert.Equal(t, device.Vec{0, 0, 0, 0, 0, 0, 0, 1}, EncodeBroadcastStrides(tensor.Shape{4}, out))
	assert.Equal(t, device.Vec{}, EncodeBroadcastStrides(tensor.Shape{}, out))
	assert.Equal(t, device.Vec{0, 0, 0, 0, 0, 4, 0, 1}, EncodeBroadcastStrides(tensor.Shape{2, 1, 4}, out))

	err := exceptions.TryCatch[error](func() { EncodeBroadcastStrides(tensor.Shape{2}, out) })
	require.ErrorContains(t, err, "cannot broadcast")
	err = exceptions.TryCatch[error](func() { EncodeBroadcastStrides(tensor.Shape{1, 2, 3, 4}, out) })
	require.ErrorContains(t, err, "lower-rank")
}

func TestRankOffset(t *testing.T) {
	assert.Equal(t, int32(7), RankOffset(tensor.Shape{}))
	assert.Equal(t, int32(5), RankOffset(tensor.Shape{2, 3}))
	assert.Equal(t, int32(-1), RankOffset(make(tensor.Shape, tensor.MaxRank)))
}
