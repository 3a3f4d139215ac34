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

// Package arith defines scalar arithmetic operations.
package arith

import (
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/tpp/ir"
)

// Kinds of the arithmetic operations.
const (
	ConstantKind ir.Kind = "arith.constant"
	AddFKind     ir.Kind = "arith.addf"
	AddIKind     ir.Kind = "arith.addi"
	MulFKind     ir.Kind = "arith.mulf"
	MulIKind     ir.Kind = "arith.muli"
	SubFKind     ir.Kind = "arith.subf"
	MaxFKind     ir.Kind = "arith.maxf"
	TruncFKind   ir.Kind = "arith.truncf"
	ExtFKind     ir.Kind = "arith.extf"
	SIToFPKind   ir.Kind = "arith.sitofp"
)

// ValueAttr is the name of the attribute storing the value of a constant.
const ValueAttr = "value"

// IsAdd returns true for additions.
func IsAdd(op *ir.Op) bool {
	return op.Kind() == AddFKind || op.Kind() == AddIKind
}

// IsMul returns true for multiplications.
func IsMul(op *ir.Op) bool {
	return op.Kind() == MulFKind || op.Kind() == MulIKind
}

// IsCast returns true for operations converting a scalar from one type to another.
func IsCast(op *ir.Op) bool {
	switch op.Kind() {
	case TruncFKind, ExtFKind, SIToFPKind:
		return true
	}
	return false
}

// Constant inserts a constant. If the type is shaped, all the elements are set to the value.
func Constant(b ir.Builder, value float64, tp ir.Type) *ir.Op {
	attrs := ir.NewAttributes().Set(ValueAttr, value)
	return b.Insert(ir.NewOp(ConstantKind, nil, []ir.Type{tp}, attrs, nil))
}

// ConstantValue returns the value of a constant operation.
func ConstantValue(op *ir.Op) (float64, bool) {
	if op == nil || op.Kind() != ConstantKind {
		return 0, false
	}
	return op.Attrs().Float(ValueAttr)
}

// IsZeroConstant returns true if a value is defined by a constant equal to zero.
func IsZeroConstant(v *ir.Value) bool {
	val, ok := ConstantValue(v.DefiningOp())
	return ok && val == 0
}

func isInteger(dt dtype.DataType) bool {
	switch dt {
	case dtype.Int32, dtype.Int64, dtype.Uint32, dtype.Uint64:
		return true
	}
	return false
}

func binary(b ir.Builder, kind ir.Kind, x, y *ir.Value) *ir.Op {
	return b.Insert(ir.NewOp(kind, []*ir.Value{x, y}, []ir.Type{x.Type()}, nil, nil))
}

// Add inserts x + y, picking the integer or floating-point variant from the type of x.
func Add(b ir.Builder, x, y *ir.Value) *ir.Value {
	kind := AddFKind
	if isInteger(x.Type().ElementType()) {
		kind = AddIKind
	}
	return binary(b, kind, x, y).Result(0)
}

// Mul inserts x * y, picking the integer or floating-point variant from the type of x.
func Mul(b ir.Builder, x, y *ir.Value) *ir.Value {
	kind := MulFKind
	if isInteger(x.Type().ElementType()) {
		kind = MulIKind
	}
	return binary(b, kind, x, y).Result(0)
}

// Sub inserts x - y.
func Sub(b ir.Builder, x, y *ir.Value) *ir.Value {
	return binary(b, SubFKind, x, y).Result(0)
}

// Max inserts max(x, y).
func Max(b ir.Builder, x, y *ir.Value) *ir.Value {
	return binary(b, MaxFKind, x, y).Result(0)
}

// Cast inserts a conversion of x to a given scalar type.
func Cast(b ir.Builder, kind ir.Kind, x *ir.Value, tp ir.Type) *ir.Value {
	return b.Insert(ir.NewOp(kind, []*ir.Value{x}, []ir.Type{tp}, nil, nil)).Result(0)
}
