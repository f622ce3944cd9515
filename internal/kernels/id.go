// Package kernels names the precompiled device programs the scheduler can dispatch.
//
// Kernels are identified by a closed, comparable ID rather than by free-form strings:
// the scheduler builds an ID from (family, op, variant or stage, dtype) and resolves it
// through a Catalog built once at startup.
package kernels

import (
	"fmt"

	"github.com/born-ml/dispatch/internal/tensor"
)

// Family groups kernels that share a parameter layout.
type Family uint8

// Kernel families.
const (
	FamilyInvalid Family = iota
	FamilyBinary
	FamilyUnary
	FamilyReduce
)

// String implements fmt.Stringer.
func (f Family) String() string {
	switch f {
	case FamilyBinary:
		return "Binary"
	case FamilyUnary:
		return "Unary"
	case FamilyReduce:
		return "Reduce"
	default:
		return "Invalid"
	}
}

// BinaryOp is an elementwise operation with two operands.
type BinaryOp uint8

// Binary operations.
const (
	Add BinaryOp = iota
	Sub
	Mul
	Div
	Max
	Min
	Pow
	// WeightedAdd computes wA*a + wB*b, with the weights passed as parameters.
	WeightedAdd
	numBinaryOps
)

var binaryOpNames = [...]string{"Add", "Sub", "Mul", "Div", "Max", "Min", "Pow", "WeightedAdd"}

// String implements fmt.Stringer.
func (op BinaryOp) String() string {
	if op >= numBinaryOps {
		return fmt.Sprintf("BinaryOp(%d)", op)
	}
	return binaryOpNames[op]
}

// UnaryOp is an elementwise operation with one operand.
type UnaryOp uint8

// Unary operations.
const (
	Sqrt UnaryOp = iota
	Abs
	Square
	Exp
	Log
	Neg
	numUnaryOps
)

var unaryOpNames = [...]string{"Sqrt", "Abs", "Square", "Exp", "Log", "Neg"}

// String implements fmt.Stringer.
func (op UnaryOp) String() string {
	if op >= numUnaryOps {
		return fmt.Sprintf("UnaryOp(%d)", op)
	}
	return unaryOpNames[op]
}

// ReduceOp is a reduction over one (outer, reduce, inner) segment.
type ReduceOp uint8

// Reduction operations.
const (
	ReduceSum ReduceOp = iota
	ReduceMean
	ReduceMax
	ReduceMin
	ReduceProd
	// ReduceSumSquare squares raw input before summing.
	ReduceSumSquare
	// ReduceL1 takes the absolute value of raw input before summing.
	ReduceL1
	// ReduceL2 is ReduceSumSquare followed by a square root.
	ReduceL2
	// ReduceLogSumExp computes max(x) + log(sum(exp(x - max(x)))).
	ReduceLogSumExp
	numReduceOps
)

var reduceOpNames = [...]string{"Sum", "Mean", "Max", "Min", "Prod", "SumSquare", "L1", "L2", "LogSumExp"}

// String implements fmt.Stringer.
func (op ReduceOp) String() string {
	if op >= numReduceOps {
		return fmt.Sprintf("ReduceOp(%d)", op)
	}
	return reduceOpNames[op]
}

// ParseReduceOp is the inverse of ReduceOp.String.
func ParseReduceOp(name string) (ReduceOp, bool) {
	for i, n := range reduceOpNames {
		if n == name {
			return ReduceOp(i), true
		}
	}
	return 0, false
}

// Variant is the shape relationship an elementwise kernel is specialised for.
type Variant uint8

// Elementwise variants, fastest first.
const (
	// ScalarBroadcast: A has the output shape and B is a single element.
	ScalarBroadcast Variant = iota
	// SameShape: A, B and the output share one shape; the kernel walks a flat range.
	SameShape
	// Strided: general broadcast; the kernel decodes per-element indices from
	// right-aligned shape/stride registers.
	Strided
)

// String implements fmt.Stringer.
func (v Variant) String() string {
	switch v {
	case ScalarBroadcast:
		return "Scalar"
	case SameShape:
		return "Flat"
	case Strided:
		return "Strided"
	default:
		return fmt.Sprintf("Variant(%d)", v)
	}
}

// Stage is a pass of a pyramid reduction.
type Stage uint8

// Reduction stages.
const (
	// Local reduces chunks of ThreadBudget elements into partial results.
	Local Stage = iota
	// Global reduces at most ThreadBudget partials into the output and normalizes.
	Global
	// Unrolled loops over the whole reduce extent in one flat dispatch.
	Unrolled
)

// String implements fmt.Stringer.
func (s Stage) String() string {
	switch s {
	case Local:
		return "Local"
	case Global:
		return "Global"
	case Unrolled:
		return "Unrolled"
	default:
		return fmt.Sprintf("Stage(%d)", s)
	}
}

// ID identifies one precompiled kernel. It is comparable and usable as a map key.
type ID struct {
	Family Family
	// Op holds a BinaryOp, UnaryOp or ReduceOp depending on Family.
	Op uint8
	// Form holds a Variant for elementwise families and a Stage for reductions.
	Form  uint8
	DType tensor.DataType
}

// BinaryID returns the id of a binary elementwise kernel.
func BinaryID(op BinaryOp, v Variant, dtype tensor.DataType) ID {
	return ID{Family: FamilyBinary, Op: uint8(op), Form: uint8(v), DType: dtype}
}

// UnaryID returns the id of a unary elementwise kernel.
// Unary kernels only exist in the SameShape form.
func UnaryID(op UnaryOp, dtype tensor.DataType) ID {
	return ID{Family: FamilyUnary, Op: uint8(op), Form: uint8(SameShape), DType: dtype}
}

// ReduceID returns the id of one stage of a reduction kernel.
func ReduceID(op ReduceOp, stage Stage, dtype tensor.DataType) ID {
	return ID{Family: FamilyReduce, Op: uint8(op), Form: uint8(stage), DType: dtype}
}

// Triplet holds the three kernels a pyramid reduction may use.
type Triplet struct {
	Local, Global, Unrolled ID
}

// ReduceTriplet returns the kernels implementing op for dtype.
func ReduceTriplet(op ReduceOp, dtype tensor.DataType) Triplet {
	return Triplet{
		Local:    ReduceID(op, Local, dtype),
		Global:   ReduceID(op, Global, dtype),
		Unrolled: ReduceID(op, Unrolled, dtype),
	}
}

// String returns the catalog name of the kernel, e.g. "AddStrided_float32".
func (id ID) String() string {
	switch id.Family {
	case FamilyBinary:
		return fmt.Sprintf("%s%s_%s", BinaryOp(id.Op), Variant(id.Form), id.DType)
	case FamilyUnary:
		return fmt.Sprintf("%s_%s", UnaryOp(id.Op), id.DType)
	case FamilyReduce:
		return fmt.Sprintf("Reduce%s%s_%s", ReduceOp(id.Op), Stage(id.Form), id.DType)
	default:
		return "Invalid"
	}
}
