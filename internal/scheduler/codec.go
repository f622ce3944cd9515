package scheduler

import (
	"github.com/born-ml/dispatch/internal/device"
	"github.com/born-ml/dispatch/internal/tensor"
	"github.com/gomlx/exceptions"
)

// EncodeShape right-aligns shape and its row-major strides into register arrays:
// slot MaxRank-1 holds the innermost dimension. Unused leading slots hold
// dimension 1 and stride 0.
func EncodeShape(shape tensor.Shape) (dims, strides device.Vec) {
	checkRank(shape)
	for i := range dims {
		dims[i] = 1
	}
	rowMajor := shape.ComputeStrides()
	offset := tensor.MaxRank - len(shape)
	for i, dim := range shape {
		dims[offset+i] = int32(dim)
		strides[offset+i] = int32(rowMajor[i])
	}
	return dims, strides
}

// EncodeBroadcastStrides returns the strides of in when iterated with the indices
// of out, right-aligned: broadcast dimensions (size 1 in in, or missing) get stride 0.
func EncodeBroadcastStrides(in, out tensor.Shape) device.Vec {
	checkRank(in)
	checkRank(out)
	if len(in) > len(out) {
		exceptions.Panicf("cannot broadcast %s to lower-rank shape %s", in, out)
	}
	var strides device.Vec
	rowMajor := in.ComputeStrides()
	offset := tensor.MaxRank - len(in)
	outOffset := len(out) - len(in)
	for i, dim := range in {
		switch {
		case dim == out[outOffset+i]:
			strides[offset+i] = int32(rowMajor[i])
		case dim == 1:
			// stride 0 repeats the single element.
		default:
			exceptions.Panicf("cannot broadcast %s to %s: axis %d is %d, want 1 or %d",
				in, out, i, dim, out[outOffset+i])
		}
	}
	return strides
}

// RankOffset is the last register slot not used by a rank-`rank` shape:
// rank-aware kernels walk slots (RankOffset, MaxRank-1].
func RankOffset(shape tensor.Shape) int32 {
	return int32(tensor.MaxRank - 1 - len(shape))
}

func checkRank(shape tensor.Shape) {
	if len(shape) > tensor.MaxRank {
		exceptions.Panicf("unsupported rank %d for shape %s: kernels address at most %d dimensions",
			len(shape), shape, tensor.MaxRank)
	}
}
