// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package kernels names the device programs the scheduler dispatches.
//
// Operations are closed enumerations; a kernel is identified by its ID, built from
// (family, op, variant or stage, dtype). A Catalog resolves IDs to kernels and
// reports missing combinations with an error wrapping ErrNotImplemented.
package kernels

import (
	"github.com/born-ml/dispatch/internal/kernels"
	"github.com/born-ml/dispatch/tensor"
)

// ErrNotImplemented is wrapped by every error reporting a missing kernel.
var ErrNotImplemented = kernels.ErrNotImplemented

// DefaultThreadBudget is the default number of threads per reduction group.
const DefaultThreadBudget = kernels.DefaultThreadBudget

// ID identifies one precompiled kernel.
type ID = kernels.ID

// Kernel is a resolved device program.
type Kernel = kernels.Kernel

// Catalog maps kernel ids to device programs.
type Catalog = kernels.Catalog

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog { return kernels.NewCatalog() }

// Standard returns the catalog of the stock kernel set.
func Standard(threadBudget int) *Catalog { return kernels.Standard(threadBudget) }

// BinaryOp is an elementwise operation with two operands.
type BinaryOp = kernels.BinaryOp

// Binary operations.
const (
	Add         = kernels.Add
	Sub         = kernels.Sub
	Mul         = kernels.Mul
	Div         = kernels.Div
	Max         = kernels.Max
	Min         = kernels.Min
	Pow         = kernels.Pow
	WeightedAdd = kernels.WeightedAdd
)

// UnaryOp is an elementwise operation with one operand.
type UnaryOp = kernels.UnaryOp

// Unary operations.
const (
	Sqrt   = kernels.Sqrt
	Abs    = kernels.Abs
	Square = kernels.Square
	Exp    = kernels.Exp
	Log    = kernels.Log
	Neg    = kernels.Neg
)

// ReduceOp is a reduction operation.
type ReduceOp = kernels.ReduceOp

// Reduction operations.
const (
	ReduceSum       = kernels.ReduceSum
	ReduceMean      = kernels.ReduceMean
	ReduceMax       = kernels.ReduceMax
	ReduceMin       = kernels.ReduceMin
	ReduceProd      = kernels.ReduceProd
	ReduceSumSquare = kernels.ReduceSumSquare
	ReduceL1        = kernels.ReduceL1
	ReduceL2        = kernels.ReduceL2
	ReduceLogSumExp = kernels.ReduceLogSumExp
)

// Variant is the shape relationship an elementwise kernel is specialised for.
type Variant = kernels.Variant

// Elementwise variants.
const (
	ScalarBroadcast = kernels.ScalarBroadcast
	SameShape       = kernels.SameShape
	Strided         = kernels.Strided
)

// Stage is a pass of a pyramid reduction.
type Stage = kernels.Stage

// Reduction stages.
const (
	Local    = kernels.Local
	Global   = kernels.Global
	Unrolled = kernels.Unrolled
)

// BinaryID returns the id of a binary elementwise kernel.
func BinaryID(op BinaryOp, v Variant, dtype tensor.DataType) ID {
	return kernels.BinaryID(op, v, dtype)
}

// UnaryID returns the id of a unary elementwise kernel.
func UnaryID(op UnaryOp, dtype tensor.DataType) ID {
	return kernels.UnaryID(op, dtype)
}

// ReduceID returns the id of one stage of a reduction kernel.
func ReduceID(op ReduceOp, stage Stage, dtype tensor.DataType) ID {
	return kernels.ReduceID(op, stage, dtype)
}
