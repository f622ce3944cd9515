package cpu

import (
	"math"

	"github.com/born-ml/dispatch/internal/tensor"
	"github.com/x448/float16"
)

// roundTo rounds v to what a buffer of dtype can hold.
func roundTo(dtype tensor.DataType, v float64) float64 {
	switch dtype {
	case tensor.Float32:
		return float64(float32(v))
	case tensor.Float16:
		return float64(float16.Fromfloat32(float32(v)).Float32())
	case tensor.Int32:
		return float64(int32(math.Trunc(v)))
	case tensor.Int64:
		return math.Trunc(v)
	case tensor.Uint8:
		return float64(uint8(math.Trunc(v)))
	case tensor.Bool:
		if v != 0 {
			return 1
		}
		return 0
	default:
		return v
	}
}
