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

package blocking

import (
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/tpp/dialect/linalg"
	"github.com/gx-org/tpp/dialect/tpp"
	"github.com/gx-org/tpp/ir"
	"github.com/gx-org/tpp/layout"
	"github.com/gx-org/tpp/rewrite"
)

// VNNIMatmul packs the right operand of a bf16 matrix multiplication in
// the VNNI layout [K/v][N][v] and replaces the multiplication with a
// tpp.vnni_matmul primitive.
type VNNIMatmul struct {
	// Tiles holds the VNNI factor v.
	Tiles []int
}

var _ rewrite.Pattern = VNNIMatmul{}

// Name of the pattern.
func (VNNIMatmul) Name() string { return "vnni-matmul-packing" }

// Root returns the kind of the operations rewritten by the pattern.
func (VNNIMatmul) Root() ir.Kind { return linalg.MatmulKind }

// MatchAndRewrite packs a bf16 matrix multiplication.
func (p VNNIMatmul) MatchAndRewrite(rw *rewrite.Rewriter, op *ir.Op) error {
	if err := checkTiles(rw, op, p.Tiles, 1); err != nil {
		return err
	}
	if err := checkOperands(rw, op); err != nil {
		return err
	}
	ins, outs := linalg.Inputs(op), linalg.Outputs(op)
	for _, v := range op.Operands() {
		if v.Type().ElementType() != dtype.Bfloat16 {
			return rw.Declinef(op, "require bf16 operands but got %s", v.Type())
		}
	}
	b := operandLayout{value: ins[1], desc: layout.VNNI(p.Tiles[0])}
	if err := checkDivides(rw, op, b); err != nil {
		return err
	}
	packed, err := packAll(rw, op, b)
	if err != nil {
		return err
	}
	_, err = rw.ReplaceOpWithNew(op, tpp.NewOp(tpp.VNNIMatmulKind, []*ir.Value{ins[0], packed[0]}, outs[0]))
	return err
}
