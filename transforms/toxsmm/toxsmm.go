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

// Package toxsmm lowers TPP primitives on buffers to kernel dispatches
// followed by kernel invocations.
package toxsmm

import (
	"github.com/gx-org/tpp/broadcast"
	"github.com/gx-org/tpp/dialect/tpp"
	"github.com/gx-org/tpp/dialect/xsmm"
	"github.com/gx-org/tpp/ir"
	"github.com/gx-org/tpp/rewrite"
)

// Patterns returns all the patterns of the package.
func Patterns() []rewrite.Pattern {
	return []rewrite.Pattern{
		Matmul{},
		Brgemm{},
		VNNIMatmul{},
		Identity{},
		Relu{},
		Add{},
	}
}

// check declines if a primitive does not verify or does not write into a buffer.
// It returns the kernel data type of the output.
func check(rw *rewrite.Rewriter, op *ir.Op) (xsmm.DataType, error) {
	if err := tpp.Verify(op); err != nil {
		return "", rw.Declinef(op, "%v", err)
	}
	out := tpp.Output(op).Type()
	if !out.IsShaped() {
		return "", rw.Declinef(op, "scalar output")
	}
	if !out.IsMemRef() {
		return "", rw.Declinef(op, "require buffer semantics")
	}
	if !out.HasStaticShape() {
		return "", rw.Declinef(op, "require static shape")
	}
	dt, err := xsmm.DataTypeOf(out)
	if err != nil {
		return "", rw.Declinef(op, "%v", err)
	}
	return dt, nil
}

// check2D declines if the output of a primitive is not a matrix.
func check2D(rw *rewrite.Rewriter, op *ir.Op) (m, n int, err error) {
	out := tpp.Output(op).Type()
	if out.Rank() != 2 {
		return 0, 0, rw.Declinef(op, "require a 2D output but got %s", out)
	}
	return out.Dim(0), out.Dim(1), nil
}

// Matmul lowers tpp.matmul.
type Matmul struct{}

var _ rewrite.Pattern = Matmul{}

// Name of the pattern.
func (Matmul) Name() string { return "matmul-to-xsmm" }

// Root returns the kind of the operations rewritten by the pattern.
func (Matmul) Root() ir.Kind { return tpp.MatmulKind }

// MatchAndRewrite lowers a matrix multiplication.
func (Matmul) MatchAndRewrite(rw *rewrite.Rewriter, op *ir.Op) error {
	dt, err := check(rw, op)
	if err != nil {
		return err
	}
	a, b, c := op.Operand(0), op.Operand(1), op.Operand(2)
	m, n, k := c.Type().Dim(0), c.Type().Dim(1), a.Type().Dim(1)
	lda, ldb, ldc := m, k, m
	handle := xsmm.TernaryDispatch(rw, xsmm.Matmul, []int{m, n, k, lda, ldb, ldc}, xsmm.TernaryFlagNone, dt)
	_, err = rw.ReplaceOpWithNew(op, xsmm.NewTernary(xsmm.Matmul, handle, a, b, c))
	return err
}

// Brgemm lowers tpp.brgemm.
type Brgemm struct{}

var _ rewrite.Pattern = Brgemm{}

// Name of the pattern.
func (Brgemm) Name() string { return "brgemm-to-xsmm" }

// Root returns the kind of the operations rewritten by the pattern.
func (Brgemm) Root() ir.Kind { return tpp.BrgemmKind }

// MatchAndRewrite lowers a batch-reduce matrix multiplication.
func (Brgemm) MatchAndRewrite(rw *rewrite.Rewriter, op *ir.Op) error {
	dt, err := check(rw, op)
	if err != nil {
		return err
	}
	a, b, c := op.Operand(0), op.Operand(1), op.Operand(2)
	batch := a.Type().Dim(0)
	m, n, k := c.Type().Dim(0), c.Type().Dim(1), a.Type().Dim(2)
	lda, ldb, ldc := m, k, m
	handle := xsmm.TernaryDispatch(rw, xsmm.Brgemm, []int{m, n, k, lda, ldb, ldc}, xsmm.TernaryFlagNone, dt)
	_, err = rw.ReplaceOpWithNew(op, xsmm.NewBatchTernary(xsmm.Brgemm, handle, a, b, c, batch))
	return err
}

// VNNIMatmul lowers tpp.vnni_matmul.
type VNNIMatmul struct{}

var _ rewrite.Pattern = VNNIMatmul{}

// Name of the pattern.
func (VNNIMatmul) Name() string { return "vnni-matmul-to-xsmm" }

// Root returns the kind of the operations rewritten by the pattern.
func (VNNIMatmul) Root() ir.Kind { return tpp.VNNIMatmulKind }

// MatchAndRewrite lowers a matrix multiplication with a VNNI operand.
func (VNNIMatmul) MatchAndRewrite(rw *rewrite.Rewriter, op *ir.Op) error {
	dt, err := check(rw, op)
	if err != nil {
		return err
	}
	a, b, c := op.Operand(0), op.Operand(1), op.Operand(2)
	m, n, k := c.Type().Dim(0), c.Type().Dim(1), a.Type().Dim(1)
	lda, ldb, ldc := m, k, m
	handle := xsmm.TernaryDispatch(rw, xsmm.Matmul, []int{m, n, k, lda, ldb, ldc}, xsmm.VNNIB, dt)
	_, err = rw.ReplaceOpWithNew(op, xsmm.NewTernary(xsmm.Matmul, handle, a, b, c))
	return err
}

// unaryFlags maps the broadcast of an input to the flags of a unary kernel.
var unaryFlags = map[broadcast.Kind]xsmm.UnaryFlags{
	broadcast.None:   xsmm.UnaryFlagNone,
	broadcast.Row:    xsmm.BcastCol,
	broadcast.Column: xsmm.BcastRow,
	broadcast.Scalar: xsmm.BcastScalar,
}

// Identity lowers tpp.identity.
type Identity struct{}

var _ rewrite.Pattern = Identity{}

// Name of the pattern.
func (Identity) Name() string { return "identity-to-xsmm" }

// Root returns the kind of the operations rewritten by the pattern.
func (Identity) Root() ir.Kind { return tpp.IdentityKind }

// MatchAndRewrite lowers a copy, possibly broadcasting its input.
func (Identity) MatchAndRewrite(rw *rewrite.Rewriter, op *ir.Op) error {
	dt, err := check(rw, op)
	if err != nil {
		return err
	}
	m, n, err := check2D(rw, op)
	if err != nil {
		return err
	}
	in, out := op.Operand(0), op.Operand(1)
	ldi, kind, err := broadcast.ClassifyUnary(in.Type(), out.Type().Dims())
	if err != nil {
		return err
	}
	info := xsmm.UnaryInfo{M: m, N: n, Ldi: ldi, Ldo: n}
	handle := xsmm.UnaryDispatch(rw, xsmm.Identity, info, unaryFlags[kind], dt)
	_, err = rw.ReplaceOpWithNew(op, xsmm.NewUnary(xsmm.Identity, handle, in, out))
	return err
}

// Relu lowers tpp.relu. The kernel does not broadcast: primitives with an
// input shaped differently from the output do not verify and are declined.
type Relu struct{}

var _ rewrite.Pattern = Relu{}

// Name of the pattern.
func (Relu) Name() string { return "relu-to-xsmm" }

// Root returns the kind of the operations rewritten by the pattern.
func (Relu) Root() ir.Kind { return tpp.ReluKind }

// MatchAndRewrite lowers a relu.
func (Relu) MatchAndRewrite(rw *rewrite.Rewriter, op *ir.Op) error {
	dt, err := check(rw, op)
	if err != nil {
		return err
	}
	m, n, err := check2D(rw, op)
	if err != nil {
		return err
	}
	info := xsmm.UnaryInfo{M: m, N: n, Ldi: m, Ldo: m}
	handle := xsmm.UnaryDispatch(rw, xsmm.Relu, info, xsmm.UnaryFlagNone, dt)
	_, err = rw.ReplaceOpWithNew(op, xsmm.NewUnary(xsmm.Relu, handle, op.Operand(0), op.Operand(1)))
	return err
}

// binaryFlags maps the broadcast of each input to the flags of a binary kernel.
var binaryFlags = [2]map[broadcast.Kind]xsmm.BinaryFlags{
	{
		broadcast.Row:    xsmm.BcastColIn0,
		broadcast.Column: xsmm.BcastRowIn0,
		broadcast.Scalar: xsmm.BcastScalarIn0,
	},
	{
		broadcast.Row:    xsmm.BcastColIn1,
		broadcast.Column: xsmm.BcastRowIn1,
		broadcast.Scalar: xsmm.BcastScalarIn1,
	},
}

// Add lowers tpp.add.
// At most one of the inputs can be broadcast.
type Add struct{}

var _ rewrite.Pattern = Add{}

// Name of the pattern.
func (Add) Name() string { return "add-to-xsmm" }

// Root returns the kind of the operations rewritten by the pattern.
func (Add) Root() ir.Kind { return tpp.AddKind }

// MatchAndRewrite lowers an addition.
func (Add) MatchAndRewrite(rw *rewrite.Rewriter, op *ir.Op) error {
	dt, err := check(rw, op)
	if err != nil {
		return err
	}
	m, n, err := check2D(rw, op)
	if err != nil {
		return err
	}
	out := tpp.Output(op)
	flags := xsmm.BinaryFlagNone
	var lds [2]int
	for i, in := range tpp.Inputs(op) {
		ld, kind, err := broadcast.ClassifyUnary(in.Type(), out.Type().Dims())
		if err != nil {
			return err
		}
		lds[i] = ld
		if kind == broadcast.None {
			continue
		}
		if flags != xsmm.BinaryFlagNone {
			return rw.Declinef(op, "cannot broadcast both inputs")
		}
		flags = binaryFlags[i][kind]
	}
	handle := xsmm.BinaryDispatch(rw, xsmm.Add, []int{m, n, lds[0], lds[1], n}, flags, dt)
	_, err = rw.ReplaceOpWithNew(op, xsmm.NewBinary(xsmm.Add, handle, op.Operand(0), op.Operand(1), out))
	return err
}
