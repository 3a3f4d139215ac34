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

// Package totpp maps structured operations on buffers to TPP primitives.
package totpp

import (
	"github.com/gx-org/tpp/dialect/arith"
	"github.com/gx-org/tpp/dialect/linalg"
	"github.com/gx-org/tpp/dialect/tpp"
	"github.com/gx-org/tpp/ir"
	"github.com/gx-org/tpp/match"
	"github.com/gx-org/tpp/rewrite"
)

// Patterns returns all the patterns of the package.
func Patterns() []rewrite.Pattern {
	return []rewrite.Pattern{
		Matmul{},
		GenericMatmul{},
		Brgemm{},
		Copy{},
		Identity{},
		Relu{},
		Add{},
	}
}

// checkBuffers declines if op does not operate on buffers with a static shape.
func checkBuffers(rw *rewrite.Rewriter, op *ir.Op) error {
	if !linalg.HasBufferSemantics(op) {
		return rw.Declinef(op, "require buffer semantics")
	}
	if linalg.HasDynamicShape(op) {
		return rw.Declinef(op, "require static shape")
	}
	return nil
}

// checkElementwiseMaps declines if op has a non parallel loop, if an input
// is not indexed by the innermost loops or if the output is not indexed by all loops.
func checkElementwiseMaps(rw *rewrite.Rewriter, op *ir.Op) error {
	if linalg.NumParallelLoops(op) != linalg.NumLoops(op) {
		return rw.Declinef(op, "require parallel loops only")
	}
	maps := linalg.IndexingMaps(op)
	numInputs := linalg.NumInputs(op)
	for i, m := range maps {
		if i < numInputs && !m.IsMinorIdentity() {
			return rw.Declinef(op, "map of input %d %s is not a minor identity", i, m)
		}
		if i >= numInputs && !m.IsIdentity() {
			return rw.Declinef(op, "map of output %d %s is not an identity", i-numInputs, m)
		}
	}
	return nil
}

// replace replaces op with a primitive if the primitive verifies.
func replace(rw *rewrite.Rewriter, op *ir.Op, kind ir.Kind, ins []*ir.Value, out *ir.Value) error {
	prim := tpp.NewOp(kind, ins, out)
	if err := tpp.Verify(prim); err != nil {
		return rw.Declinef(op, "cannot map to %s: %v", kind, err)
	}
	_, err := rw.ReplaceOpWithNew(op, prim)
	return err
}

// Matmul maps a matrix multiplication to tpp.matmul.
type Matmul struct{}

var _ rewrite.Pattern = Matmul{}

// Name of the pattern.
func (Matmul) Name() string { return "matmul-to-tpp" }

// Root returns the kind of the operations rewritten by the pattern.
func (Matmul) Root() ir.Kind { return linalg.MatmulKind }

// MatchAndRewrite maps a matrix multiplication.
func (Matmul) MatchAndRewrite(rw *rewrite.Rewriter, op *ir.Op) error {
	if err := checkBuffers(rw, op); err != nil {
		return err
	}
	return replace(rw, op, tpp.MatmulKind, linalg.Inputs(op), linalg.Outputs(op)[0])
}

// GenericMatmul maps a generic operation marked as a matrix multiplication to tpp.matmul.
type GenericMatmul struct{}

var _ rewrite.Pattern = GenericMatmul{}

// Name of the pattern.
func (GenericMatmul) Name() string { return "generic-matmul-to-tpp" }

// Root returns the kind of the operations rewritten by the pattern.
func (GenericMatmul) Root() ir.Kind { return linalg.GenericKind }

// MatchAndRewrite maps a marked generic operation.
func (GenericMatmul) MatchAndRewrite(rw *rewrite.Rewriter, op *ir.Op) error {
	if !match.IsMarkedWith(op, tpp.MatmulKind) {
		return rw.Declinef(op, "not marked with %s", tpp.MatmulKind)
	}
	if err := checkBuffers(rw, op); err != nil {
		return err
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
	return replace(rw, op, tpp.MatmulKind, ins, outs[0])
}

// Brgemm maps a batch-reduce matrix multiplication to tpp.brgemm.
type Brgemm struct{}

var _ rewrite.Pattern = Brgemm{}

// Name of the pattern.
func (Brgemm) Name() string { return "brgemm-to-tpp" }

// Root returns the kind of the operations rewritten by the pattern.
func (Brgemm) Root() ir.Kind { return linalg.BatchReduceMatmulKind }

// MatchAndRewrite maps a batch-reduce matrix multiplication.
func (Brgemm) MatchAndRewrite(rw *rewrite.Rewriter, op *ir.Op) error {
	if err := checkBuffers(rw, op); err != nil {
		return err
	}
	return replace(rw, op, tpp.BrgemmKind, linalg.Inputs(op), linalg.Outputs(op)[0])
}

// Copy maps linalg.copy to tpp.identity.
type Copy struct{}

var _ rewrite.Pattern = Copy{}

// Name of the pattern.
func (Copy) Name() string { return "copy-to-tpp" }

// Root returns the kind of the operations rewritten by the pattern.
func (Copy) Root() ir.Kind { return linalg.CopyKind }

// MatchAndRewrite maps a copy.
func (Copy) MatchAndRewrite(rw *rewrite.Rewriter, op *ir.Op) error {
	if err := checkBuffers(rw, op); err != nil {
		return err
	}
	return replace(rw, op, tpp.IdentityKind, linalg.Inputs(op), linalg.Outputs(op)[0])
}

// Identity maps a generic operation copying its input, possibly broadcasting it, to tpp.identity.
type Identity struct{}

var _ rewrite.Pattern = Identity{}

// Name of the pattern.
func (Identity) Name() string { return "identity-to-tpp" }

// Root returns the kind of the operations rewritten by the pattern.
func (Identity) Root() ir.Kind { return linalg.GenericKind }

// MatchAndRewrite maps a copy.
func (Identity) MatchAndRewrite(rw *rewrite.Rewriter, op *ir.Op) error {
	if !match.HasCopySemantics(op) {
		return rw.Declinef(op, "not a copy")
	}
	if err := checkBuffers(rw, op); err != nil {
		return err
	}
	if err := checkElementwiseMaps(rw, op); err != nil {
		return err
	}
	return replace(rw, op, tpp.IdentityKind, linalg.Inputs(op), linalg.Outputs(op)[0])
}

// Relu maps a generic operation computing the maximum of a value and zero to tpp.relu.
// Without input, the relu is computed in place.
type Relu struct{}

var _ rewrite.Pattern = Relu{}

// Name of the pattern.
func (Relu) Name() string { return "relu-to-tpp" }

// Root returns the kind of the operations rewritten by the pattern.
func (Relu) Root() ir.Kind { return linalg.GenericKind }

// MatchAndRewrite maps a relu.
func (Relu) MatchAndRewrite(rw *rewrite.Rewriter, op *ir.Op) error {
	src, ok := match.ReluSource(op)
	if !ok {
		return rw.Declinef(op, "not a maximum with zero")
	}
	outs := linalg.Outputs(op)
	if len(outs) != 1 || len(linalg.Inputs(op)) > 2 {
		return rw.Declinef(op, "require at most 2 inputs and 1 output")
	}
	if err := checkBuffers(rw, op); err != nil {
		return err
	}
	if err := checkElementwiseMaps(rw, op); err != nil {
		return err
	}
	return replace(rw, op, tpp.ReluKind, []*ir.Value{src}, outs[0])
}

// Add maps a generic operation adding its two inputs to tpp.add.
type Add struct{}

var _ rewrite.Pattern = Add{}

// Name of the pattern.
func (Add) Name() string { return "add-to-tpp" }

// Root returns the kind of the operations rewritten by the pattern.
func (Add) Root() ir.Kind { return linalg.GenericKind }

// isAddBody returns true if a body only yields the sum of its first two arguments.
func isAddBody(body *ir.Block) bool {
	if len(body.Ops()) != 2 || body.NumArguments() != 3 {
		return false
	}
	yield := body.Terminator()
	if yield.NumOperands() != 1 {
		return false
	}
	add := yield.Operand(0).DefiningOp()
	if add == nil || add.Kind() != arith.AddFKind {
		return false
	}
	x, y := add.Operand(0), add.Operand(1)
	arg0, arg1 := body.Argument(0), body.Argument(1)
	return (x == arg0 && y == arg1) || (x == arg1 && y == arg0)
}

// MatchAndRewrite maps an addition.
func (Add) MatchAndRewrite(rw *rewrite.Rewriter, op *ir.Op) error {
	if op.Region() == nil || !isAddBody(op.Region().Block()) {
		return rw.Declinef(op, "not an addition of two inputs")
	}
	if err := checkBuffers(rw, op); err != nil {
		return err
	}
	if err := checkElementwiseMaps(rw, op); err != nil {
		return err
	}
	return replace(rw, op, tpp.AddKind, linalg.Inputs(op), linalg.Outputs(op)[0])
}
