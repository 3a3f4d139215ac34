// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package xsmm defines the calls to a small matrix multiplication
// kernel library.
//
// Kernels are called in two steps. A dispatch operation takes the
// shapes, leading dimensions, flags and data type of a kernel and returns
// a handle. An invoke operation takes the handle and the buffers on which
// the kernel is executed. Dispatch operations only depend on constants
// and can be hoisted and cached by later transformations.
package xsmm

import (
	"slices"

	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/tpp/ir"
	"github.com/pkg/errors"
)

// Kinds of the operations.
const (
	UnaryDispatchKind   ir.Kind = "xsmm.unary.dispatch"
	BinaryDispatchKind  ir.Kind = "xsmm.binary.dispatch"
	TernaryDispatchKind ir.Kind = "xsmm.ternary.dispatch"
	UnaryKind           ir.Kind = "xsmm.unary"
	BinaryKind          ir.Kind = "xsmm.binary"
	TernaryKind         ir.Kind = "xsmm.ternary"
)

// Attribute names.
const (
	KindAttr     = "kind"
	InputsAttr   = "inputs"
	FlagsAttr    = "flags"
	DataTypeAttr = "data_type"
	BatchAttr    = "batch"
)

type (
	// UnaryFunc is the function computed by a unary kernel.
	UnaryFunc string
	// BinaryFunc is the function computed by a binary kernel.
	BinaryFunc string
	// TernaryFunc is the function computed by a ternary kernel.
	TernaryFunc string
	// UnaryFlags specifies how the input of a unary kernel is broadcast.
	UnaryFlags string
	// BinaryFlags specifies how the inputs of a binary kernel are broadcast.
	BinaryFlags string
	// TernaryFlags specifies the layout of the operands of a ternary kernel.
	TernaryFlags string
	// DataType is the type of the elements processed by a kernel.
	DataType string
)

// Kernel functions.
const (
	UnaryNone UnaryFunc = "NONE"
	Identity  UnaryFunc = "IDENTITY"
	Relu      UnaryFunc = "RELU"

	BinaryNone BinaryFunc = "NONE"
	Add        BinaryFunc = "ADD"

	TernaryNone TernaryFunc = "NONE"
	Matmul      TernaryFunc = "MATMUL"
	Brgemm      TernaryFunc = "BRGEMM"
)

// Kernel flags.
const (
	UnaryFlagNone UnaryFlags = "NONE"
	BcastRow      UnaryFlags = "BCAST_ROW"
	BcastCol      UnaryFlags = "BCAST_COL"
	BcastScalar   UnaryFlags = "BCAST_SCALAR"

	BinaryFlagNone BinaryFlags = "NONE"
	BcastRowIn0    BinaryFlags = "BCAST_ROW_IN0"
	BcastColIn0    BinaryFlags = "BCAST_COL_IN0"
	BcastScalarIn0 BinaryFlags = "BCAST_SCALAR_IN0"
	BcastRowIn1    BinaryFlags = "BCAST_ROW_IN1"
	BcastColIn1    BinaryFlags = "BCAST_COL_IN1"
	BcastScalarIn1 BinaryFlags = "BCAST_SCALAR_IN1"

	TernaryFlagNone TernaryFlags = "NONE"
	VNNIB           TernaryFlags = "VNNI_B"
)

// Data types supported by the kernels.
const (
	F32  DataType = "F32"
	BF16 DataType = "BF16"
)

// UnaryInfo describes the shape of the operands of a unary kernel.
type UnaryInfo struct {
	M, N     int
	Ldi, Ldo int
}

// DataTypeOf returns the kernel data type of the elements of a type.
func DataTypeOf(tp ir.Type) (DataType, error) {
	switch tp.ElementType() {
	case dtype.Float32:
		return F32, nil
	case dtype.Bfloat16:
		return BF16, nil
	}
	return "", errors.Errorf("element type %s of %s not supported by kernels", ir.DTypeName(tp.ElementType()), tp)
}

func dispatch(kind ir.Kind, fn string, inputs []int, flags string, dt DataType) *ir.Op {
	attrs := ir.NewAttributes().
		Set(KindAttr, fn).
		Set(InputsAttr, inputs).
		Set(FlagsAttr, flags).
		Set(DataTypeAttr, string(dt))
	return ir.NewOp(kind, nil, []ir.Type{ir.Scalar(dtype.Int64)}, attrs, nil)
}

func invoke(kind ir.Kind, fn string, handle *ir.Value, buffers []*ir.Value) *ir.Op {
	attrs := ir.NewAttributes().Set(KindAttr, fn)
	return ir.NewOp(kind, append([]*ir.Value{handle}, buffers...), nil, attrs, nil)
}

// UnaryDispatch inserts the dispatch of a unary kernel and returns its handle.
func UnaryDispatch(b ir.Builder, fn UnaryFunc, info UnaryInfo, flags UnaryFlags, dt DataType) *ir.Value {
	inputs := []int{info.M, info.N, info.Ldi, info.Ldo}
	return b.Insert(dispatch(UnaryDispatchKind, string(fn), inputs, string(flags), dt)).Result(0)
}

// NewUnary returns a detached invocation of a unary kernel.
func NewUnary(fn UnaryFunc, handle, in, out *ir.Value) *ir.Op {
	return invoke(UnaryKind, string(fn), handle, []*ir.Value{in, out})
}

// BinaryDispatch inserts the dispatch of a binary kernel and returns its handle.
// The inputs are m, n, the leading dimensions of both inputs and of the output.
func BinaryDispatch(b ir.Builder, fn BinaryFunc, inputs []int, flags BinaryFlags, dt DataType) *ir.Value {
	return b.Insert(dispatch(BinaryDispatchKind, string(fn), inputs, string(flags), dt)).Result(0)
}

// NewBinary returns a detached invocation of a binary kernel.
func NewBinary(fn BinaryFunc, handle, x, y, out *ir.Value) *ir.Op {
	return invoke(BinaryKind, string(fn), handle, []*ir.Value{x, y, out})
}

// TernaryDispatch inserts the dispatch of a ternary kernel and returns its handle.
// The inputs are m, n, k, lda, ldb and ldc.
func TernaryDispatch(b ir.Builder, fn TernaryFunc, inputs []int, flags TernaryFlags, dt DataType) *ir.Value {
	return b.Insert(dispatch(TernaryDispatchKind, string(fn), inputs, string(flags), dt)).Result(0)
}

// NewTernary returns a detached invocation of a ternary kernel.
func NewTernary(fn TernaryFunc, handle, a, bb, c *ir.Value) *ir.Op {
	return invoke(TernaryKind, string(fn), handle, []*ir.Value{a, bb, c})
}

// NewBatchTernary returns a detached invocation of a ternary kernel reducing over a batch.
func NewBatchTernary(fn TernaryFunc, handle, a, bb, c *ir.Value, batch int) *ir.Op {
	op := NewTernary(fn, handle, a, bb, c)
	op.Attrs().Set(BatchAttr, batch)
	return op
}

// IsDispatch returns true if op is a kernel dispatch.
func IsDispatch(op *ir.Op) bool {
	switch op.Kind() {
	case UnaryDispatchKind, BinaryDispatchKind, TernaryDispatchKind:
		return true
	}
	return false
}

// Func returns the name of the function of a dispatch or of an invocation.
func Func(op *ir.Op) string {
	s, _ := op.Attrs().String(KindAttr)
	return s
}

// Inputs returns the shapes and leading dimensions of a dispatch.
func Inputs(op *ir.Op) []int {
	inputs, _ := op.Attrs().Ints(InputsAttr)
	return slices.Clone(inputs)
}

// Flags returns the flags of a dispatch.
func Flags(op *ir.Op) string {
	s, _ := op.Attrs().String(FlagsAttr)
	return s
}

// DataTypeAttrOf returns the data type of a dispatch.
func DataTypeAttrOf(op *ir.Op) DataType {
	s, _ := op.Attrs().String(DataTypeAttr)
	return DataType(s)
}
