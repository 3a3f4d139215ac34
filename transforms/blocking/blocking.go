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

// Package blocking rewrites matrix multiplications and convolutions on
// flat tensors into computations on blocked tensors.
//
// Operands are packed into a blocked layout, the computation is expressed
// as a generic operation over the blocked indices and the result is
// unpacked into the original output.
package blocking

import (
	"github.com/gx-org/tpp/dialect/linalg"
	"github.com/gx-org/tpp/ir"
	"github.com/gx-org/tpp/ir/affine"
	"github.com/gx-org/tpp/ir/fmterr"
	"github.com/gx-org/tpp/layout"
	"github.com/gx-org/tpp/rewrite"
)

// checkTiles declines if the number of tiles is not n or if a tile is not positive.
func checkTiles(rw *rewrite.Rewriter, op *ir.Op, tiles []int, n int) error {
	if len(tiles) != n {
		return rw.Declinef(op, "require %d tile factors but got %d", n, len(tiles))
	}
	for _, tile := range tiles {
		if tile <= 0 {
			return rw.Declinef(op, "tile factors %v must be positive", tiles)
		}
	}
	return nil
}

// checkOperands declines if a structured operation is not static or does not operate on tensors.
func checkOperands(rw *rewrite.Rewriter, op *ir.Op) error {
	if linalg.HasDynamicShape(op) {
		return rw.Declinef(op, "require static shape")
	}
	if !linalg.HasTensorSemantics(op) {
		return rw.Declinef(op, "require tensor semantics")
	}
	return nil
}

// operandLayout is a value and the layout in which to pack it.
type operandLayout struct {
	value *ir.Value
	desc  layout.Descriptor
}

// checkDivides declines if a layout does not divide the shape of its value.
func checkDivides(rw *rewrite.Rewriter, op *ir.Op, operands ...operandLayout) error {
	for _, operand := range operands {
		tp := operand.value.Type()
		if err := operand.desc.Validate(tp.Rank()); err != nil {
			return rw.Declinef(op, "%s", err.Error())
		}
		if !operand.desc.Divides(tp.Dims()) {
			return rw.Declinef(op, "tiles %v do not divide %s", operand.desc.Tiles, tp)
		}
	}
	return nil
}

// packAll packs all the operands. The layouts must have been checked first.
func packAll(rw *rewrite.Rewriter, op *ir.Op, operands ...operandLayout) ([]*ir.Value, error) {
	packed := make([]*ir.Value, len(operands))
	for i, operand := range operands {
		var err error
		packed[i], err = layout.EmitPack(rw, operand.value, operand.desc)
		if err != nil {
			return nil, fmterr.Internal(fmterr.At(op, err))
		}
	}
	return packed, nil
}

// replaceWithBlocked inserts a generic operation over blocked operands
// taking the body of op and replaces op with the result unpacked into out.
func replaceWithBlocked(rw *rewrite.Rewriter, op *ir.Op, ins []*ir.Value, packedOut *ir.Value, maps []affine.Map, iterators []ir.IteratorType, out operandLayout) error {
	generic := rw.Insert(linalg.NewGeneric(ins, []*ir.Value{packedOut}, maps, iterators, "", nil))
	rw.MoveRegion(op, generic)
	unpacked, err := layout.EmitUnpack(rw, generic.Result(0), out.value, out.desc)
	if err != nil {
		return fmterr.Internal(fmterr.At(op, err))
	}
	return rw.ReplaceOp(op, unpacked)
}

func dims(n int) []affine.Expr {
	exprs := make([]affine.Expr, n)
	for i := range exprs {
		exprs[i] = affine.Dim(i)
	}
	return exprs
}
