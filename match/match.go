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

// Package match provides structural predicates on operations used by the
// rewrite rules to recognize the computations mapping to primitives.
package match

import (
	"slices"
	"strings"

	"github.com/gx-org/tpp/dialect/arith"
	"github.com/gx-org/tpp/dialect/linalg"
	"github.com/gx-org/tpp/dialect/tpp"
	"github.com/gx-org/tpp/ir"
	"github.com/gx-org/tpp/ir/affine"
)

// isUnaryChainFrom returns true if v is computed from `from` by zero or
// more operations with a single operand.
func isUnaryChainFrom(v, from *ir.Value) bool {
	visited := make(map[*ir.Value]bool)
	for !visited[v] {
		if v == from {
			return true
		}
		visited[v] = true
		op := v.DefiningOp()
		if op == nil || op.NumOperands() != 1 {
			return false
		}
		v = op.Operand(0)
	}
	return false
}

// singleOp returns the only operation of a given kind in a block, including
// nested blocks, or nil if there is none or more than one.
func singleOp(block *ir.Block, kind ir.Kind) *ir.Op {
	var found *ir.Op
	count := 0
	block.Walk(func(op *ir.Op) bool {
		if op.Kind() != kind {
			return true
		}
		count++
		found = op
		return count < 2
	})
	if count != 1 {
		return nil
	}
	return found
}

func isAddMulOf(block *ir.Block, addKind, mulKind ir.Kind) bool {
	add := singleOp(block, addKind)
	mul := singleOp(block, mulKind)
	if add == nil || mul == nil {
		return false
	}
	argA, argB, argC := block.Argument(0), block.Argument(1), block.Argument(2)
	res := block.Terminator().Operand(0)
	if !isUnaryChainFrom(res, add.Result(0)) {
		return false
	}
	c1, c2 := add.Operand(0), add.Operand(1)
	mulRes := mul.Result(0)
	if !(isUnaryChainFrom(c1, argC) && isUnaryChainFrom(c2, mulRes)) &&
		!(isUnaryChainFrom(c1, mulRes) && isUnaryChainFrom(c2, argC)) {
		return false
	}
	a, b := mul.Operand(0), mul.Operand(1)
	return (isUnaryChainFrom(a, argA) && isUnaryChainFrom(b, argB)) ||
		(isUnaryChainFrom(a, argB) && isUnaryChainFrom(b, argA))
}

// IsAddMulBody returns true if a block computes u5(u1(c) + u2(u3(a) * u4(b))),
// or any permutation of the operands of the addition and of the multiplication,
// where a, b and c are the block arguments and u1..u5 chains of unary
// operations, possibly changing the type.
func IsAddMulBody(block *ir.Block) bool {
	if block == nil || block.NumArguments() != 3 {
		return false
	}
	yield := block.Terminator()
	if yield == nil || yield.NumOperands() != 1 {
		return false
	}
	return isAddMulOf(block, arith.AddFKind, arith.MulFKind) ||
		isAddMulOf(block, arith.AddIKind, arith.MulIKind)
}

// HasMatmulBody returns true if the body of an operation multiplies and accumulates.
func HasMatmulBody(op *ir.Op) bool {
	if op.Region() == nil {
		return false
	}
	return IsAddMulBody(op.Region().Block())
}

// HasMatmulMaps returns true if a generic operation iterates and indexes
// its operands as a matrix multiplication.
func HasMatmulMaps(op *ir.Op) bool {
	return slices.EqualFunc(linalg.IndexingMaps(op), linalg.MatmulMaps(), affine.Map.Equal) &&
		slices.Equal(linalg.IteratorTypes(op), linalg.MatmulIterators())
}

// HasStaticShape returns true if all the operands of a structured operation have a static shape.
func HasStaticShape(op *ir.Op) bool {
	return !linalg.HasDynamicShape(op)
}

// HasTppMark returns true if op is a generic operation with a library
// call in the tpp namespace.
func HasTppMark(op *ir.Op) bool {
	if op.Kind() != linalg.GenericKind {
		return false
	}
	call := linalg.LibraryCall(op)
	if call == "" {
		return false
	}
	prefix, _, _ := strings.Cut(call, ".")
	return prefix == tpp.Dialect
}

// IsMarkedWith returns true if op is a generic operation marked with a given primitive.
func IsMarkedWith(op *ir.Op, kind ir.Kind) bool {
	return HasTppMark(op) && linalg.LibraryCall(op) == string(kind)
}

// IsElementwise returns true if op is a generic operation with only
// parallel loops and projected permutations as indexing maps.
func IsElementwise(op *ir.Op) bool {
	if op.Kind() != linalg.GenericKind {
		return false
	}
	if linalg.NumParallelLoops(op) != linalg.NumLoops(op) {
		return false
	}
	for _, m := range linalg.IndexingMaps(op) {
		if !m.IsProjectedPermutation() {
			return false
		}
	}
	return true
}

// HasCopySemantics returns true if op is a generic operation with only
// parallel loops copying its unique input into its unique output.
func HasCopySemantics(op *ir.Op) bool {
	if op.Kind() != linalg.GenericKind || op.Region() == nil {
		return false
	}
	if linalg.NumParallelLoops(op) != linalg.NumLoops(op) {
		return false
	}
	if op.NumOperands() != 2 || linalg.NumInputs(op) != 1 {
		return false
	}
	body := op.Region().Block()
	if len(body.Ops()) != 1 {
		return false
	}
	yield := body.Terminator()
	return yield.NumOperands() == 1 && yield.Operand(0) == body.Argument(0)
}

// HasMaxWithZero returns true if the body of a generic operation computes
// the maximum of a value and zero.
func HasMaxWithZero(op *ir.Op) bool {
	if op.Kind() != linalg.GenericKind || op.Region() == nil {
		return false
	}
	body := op.Region().Block()
	for _, inner := range body.Ops() {
		if inner.Kind() != arith.MaxFKind {
			continue
		}
		lhs, rhs := inner.Operand(0), inner.Operand(1)
		if arith.IsZeroConstant(rhs) || IsZeroProducer(lhs) || IsZeroProducer(rhs) {
			return true
		}
		for _, arg := range body.Arguments() {
			if arg != lhs && arg != rhs {
				continue
			}
			if arg.Index() >= op.NumOperands() {
				continue
			}
			if IsZeroBefore(op.Operand(arg.Index()), op) {
				return true
			}
		}
	}
	return false
}

// isZeroOperand returns true if v, a value of the body of op, is known to be zero.
func isZeroOperand(op *ir.Op, v *ir.Value) bool {
	if arith.IsZeroConstant(v) || IsZeroProducer(v) {
		return true
	}
	if !v.IsBlockArgument() || v.Owner() != op.Region().Block() || v.Index() >= op.NumOperands() {
		return false
	}
	return IsZeroBefore(op.Operand(v.Index()), op)
}

// ReluSource returns the operand of a generic operation whose maximum with
// zero is the only value yielded by the body.
func ReluSource(op *ir.Op) (*ir.Value, bool) {
	if op.Kind() != linalg.GenericKind || op.Region() == nil {
		return nil, false
	}
	body := op.Region().Block()
	yield := body.Terminator()
	if yield == nil || yield.NumOperands() != 1 {
		return nil, false
	}
	maxOp := yield.Operand(0).DefiningOp()
	if maxOp == nil || maxOp.Kind() != arith.MaxFKind || maxOp.Block() != body {
		return nil, false
	}
	for _, pair := range [][2]*ir.Value{
		{maxOp.Operand(0), maxOp.Operand(1)},
		{maxOp.Operand(1), maxOp.Operand(0)},
	} {
		x, zero := pair[0], pair[1]
		if !x.IsBlockArgument() || x.Owner() != body || x.Index() >= op.NumOperands() {
			continue
		}
		if isZeroOperand(op, zero) {
			return op.Operand(x.Index()), true
		}
	}
	return nil, false
}
