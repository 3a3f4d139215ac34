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
	"github.com/gx-org/tpp/dialect/linalg"
	"github.com/gx-org/tpp/dialect/tpp"
	"github.com/gx-org/tpp/ir"
	"github.com/gx-org/tpp/match"
	"github.com/gx-org/tpp/rewrite"
)

// DeGeneralizeMatmul replaces a generic operation on tensors marked as a
// tpp.matmul and multiplying and accumulating with a linalg.matmul.
type DeGeneralizeMatmul struct{}

var _ rewrite.Pattern = DeGeneralizeMatmul{}

// Name of the pattern.
func (DeGeneralizeMatmul) Name() string { return "degeneralize-matmul" }

// Root returns the kind of the operations rewritten by the pattern.
func (DeGeneralizeMatmul) Root() ir.Kind { return linalg.GenericKind }

// MatchAndRewrite replaces a marked generic operation with a matrix multiplication.
func (DeGeneralizeMatmul) MatchAndRewrite(rw *rewrite.Rewriter, op *ir.Op) error {
	if !linalg.HasTensorSemantics(op) {
		return rw.Declinef(op, "require tensor semantics")
	}
	if !match.IsMarkedWith(op, tpp.MatmulKind) {
		return rw.Declinef(op, "not marked with %s", tpp.MatmulKind)
	}
	if !match.HasMatmulBody(op) {
		return rw.Declinef(op, "body does not multiply and accumulate")
	}
	if !match.HasMatmulMaps(op) {
		return rw.Declinef(op, "indexing maps are not the maps of a matrix multiplication")
	}
	ins, outs := linalg.Inputs(op), linalg.Outputs(op)
	if len(ins) != 2 || len(outs) != 1 {
		return rw.Declinef(op, "require 2 inputs and 1 output")
	}
	for _, v := range op.Operands() {
		if v.Type().Rank() != 2 {
			return rw.Declinef(op, "require 2D operands but got %s", v.Type())
		}
	}
	matmul := linalg.Matmul(rw, ins[0], ins[1], outs[0])
	return rw.ReplaceOp(op, matmul.Results()...)
}
