// Package webgpu implements a compute device on WebGPU via go-webgpu
// (github.com/go-webgpu/webgpu), a zero-CGO binding to wgpu-native.
//
// Each command becomes one compute pass: the kernel's pipeline, its storage buffers at
// bindings 0 (A), 1 (B) and 2 (Out), and a uniform parameter block at binding 3 laid
// out by ParamLayout. The device itself is only built on windows, where the native
// library is available; parameter packing is portable.
package webgpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/born-ml/dispatch/internal/device"
	"github.com/born-ml/dispatch/internal/kernels"
	"github.com/born-ml/dispatch/internal/tensor"
	"github.com/pkg/errors"
)

// Binding of the uniform parameter block.
const paramsBinding = 3

type slotType uint8

const (
	typeU32 slotType = iota
	typeI32
	typeF32
	typeVec
)

var slotTypes = [kernels.NumParamSlots]slotType{
	kernels.ParamLength:        typeU32,
	kernels.ParamMaxIndex:      typeU32,
	kernels.ParamRankOffset:    typeI32,
	kernels.ParamShapeO:        typeVec,
	kernels.ParamStridesO:      typeVec,
	kernels.ParamStridesA:      typeVec,
	kernels.ParamStridesB:      typeVec,
	kernels.ParamWeightA:       typeF32,
	kernels.ParamWeightB:       typeF32,
	kernels.ParamOuter:         typeU32,
	kernels.ParamReduce:        typeU32,
	kernels.ParamInner:         typeU32,
	kernels.ParamFirstDispatch: typeU32,
	kernels.ParamNormalization: typeF32,
}

// Layout is the byte layout of the uniform parameter block.
type Layout struct {
	Offsets [kernels.NumParamSlots]int
	Size    int
}

// ParamLayout returns the uniform layout shared by every kernel: slots in order, scalars
// 4 bytes, register arrays 32 bytes (array<vec4<i32>, 2>) aligned to 16, total rounded up
// to 16. Every slot is always present so one WGSL struct serves all kernels.
func ParamLayout() Layout {
	var l Layout
	offset := 0
	for slot, typ := range slotTypes {
		if typ == typeVec {
			offset = align16(offset)
			l.Offsets[slot] = offset
			offset += 4 * tensor.MaxRank
			continue
		}
		l.Offsets[slot] = offset
		offset += 4
	}
	l.Size = align16(offset)
	return l
}

func align16(n int) int {
	return (n + 15) &^ 15
}

var layout = ParamLayout()

// PackParams encodes the parameters of cmd in little-endian order. Unbound slots are zero.
func PackParams(cmd *device.Command) ([]byte, error) {
	data := make([]byte, layout.Size)
	for i, p := range cmd.Params {
		if p == nil {
			continue
		}
		slot := kernels.Slot(i)
		at := data[layout.Offsets[slot]:]
		switch v := p.(type) {
		case device.Uint:
			if slotTypes[slot] != typeU32 {
				return nil, slotError(cmd, slot, p)
			}
			binary.LittleEndian.PutUint32(at, uint32(v))
		case device.Int:
			if slotTypes[slot] != typeI32 {
				return nil, slotError(cmd, slot, p)
			}
			binary.LittleEndian.PutUint32(at, uint32(int32(v)))
		case device.Float:
			if slotTypes[slot] != typeF32 {
				return nil, slotError(cmd, slot, p)
			}
			binary.LittleEndian.PutUint32(at, math.Float32bits(float32(v)))
		case device.Vec:
			if slotTypes[slot] != typeVec {
				return nil, slotError(cmd, slot, p)
			}
			for j, x := range v {
				binary.LittleEndian.PutUint32(at[4*j:], uint32(x))
			}
		default:
			return nil, slotError(cmd, slot, p)
		}
	}
	return data, nil
}

func slotError(cmd *device.Command, slot kernels.Slot, p device.Param) error {
	return errors.Errorf("webgpu: %s: parameter %s cannot hold %T", cmd.Kernel.Name, slot, p)
}

// ParamsWGSL returns the WGSL declaration of the parameter block, for kernel authors.
func ParamsWGSL() string {
	var sb strings.Builder
	sb.WriteString("struct Params {\n")
	for i, typ := range slotTypes {
		var wgslType string
		switch typ {
		case typeU32:
			wgslType = "u32"
		case typeI32:
			wgslType = "i32"
		case typeF32:
			wgslType = "f32"
		case typeVec:
			wgslType = fmt.Sprintf("array<vec4<i32>, %d>", tensor.MaxRank/4)
		}
		fmt.Fprintf(&sb, "    %s: %s,\n", snakeCase(kernels.Slot(i).String()), wgslType)
	}
	sb.WriteString("}\n")
	fmt.Fprintf(&sb, "@group(0) @binding(%d) var<uniform> params: Params;\n", paramsBinding)
	return sb.String()
}

func snakeCase(name string) string {
	var sb strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !(name[i-1] >= 'A' && name[i-1] <= 'Z') {
				sb.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// ProgramSource supplies WGSL compute programs for catalog kernels.
// Every program's entry point is "main".
type ProgramSource interface {
	WGSL(id kernels.ID) (string, bool)
}

// Sources is a ProgramSource backed by a map.
type Sources map[kernels.ID]string

// WGSL implements ProgramSource.
func (s Sources) WGSL(id kernels.ID) (string, bool) {
	code, ok := s[id]
	return code, ok
}

// program returns the WGSL for id, or an error wrapping kernels.ErrNotImplemented.
func program(src ProgramSource, id kernels.ID) (string, error) {
	if src == nil {
		return "", errors.Wrapf(kernels.ErrNotImplemented, "webgpu: no program source for %s", id)
	}
	code, ok := src.WGSL(id)
	if !ok {
		return "", errors.Wrapf(kernels.ErrNotImplemented, "webgpu: no WGSL for %s", id)
	}
	return code, nil
}

// defaultDispatchLimit is the per-axis workgroup count every WebGPU adapter supports.
const defaultDispatchLimit = 65535

// dispatchLimit converts an adapter's maxComputeWorkgroupsPerDimension, falling back to
// the guaranteed minimum when the adapter reports nothing.
func dispatchLimit(reported uint32) int {
	if reported == 0 {
		return defaultDispatchLimit
	}
	return int(reported)
}

// byteSize is the storage size of n elements of dtype, padded to the 4-byte granularity
// storage buffers require.
func byteSize(dtype tensor.DataType, n int) uint64 {
	size := n * dtype.Size()
	return uint64(max((size+3)&^3, 4))
}
