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

// Package tpp defines tensor processing primitives: small 2D kernels
// operating on blocks of a larger computation.
//
// Operands are the inputs followed by the output. Primitives on buffers
// write the output in place. Primitives on tensors return a new tensor.
package tpp

import (
	"slices"

	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/tpp/ir"
	"github.com/gx-org/tpp/ir/fmterr"
	"github.com/pkg/errors"
)

// Kinds of the primitives.
const (
	IdentityKind   ir.Kind = "tpp.identity"
	ReluKind       ir.Kind = "tpp.relu"
	AddKind        ir.Kind = "tpp.add"
	MatmulKind     ir.Kind = "tpp.matmul"
	BrgemmKind     ir.Kind = "tpp.brgemm"
	VNNIMatmulKind ir.Kind = "tpp.vnni_matmul"
)

// Dialect is the name of the dialect.
const Dialect = "tpp"

var numInputs = map[ir.Kind]int{
	IdentityKind:   1,
	ReluKind:       1,
	AddKind:        2,
	MatmulKind:     2,
	BrgemmKind:     2,
	VNNIMatmulKind: 2,
}

// NewOp returns a detached primitive.
func NewOp(kind ir.Kind, ins []*ir.Value, out *ir.Value) *ir.Op {
	var results []ir.Type
	if out.Type().IsTensor() {
		results = []ir.Type{out.Type()}
	}
	return ir.NewOp(kind, append(slices.Clone(ins), out), results, nil, nil)
}

// Identity inserts a copy, possibly broadcasting, of in into out.
func Identity(b ir.Builder, in, out *ir.Value) *ir.Op {
	return b.Insert(NewOp(IdentityKind, []*ir.Value{in}, out))
}

// Relu inserts out = max(in, 0). in and out can be the same buffer.
func Relu(b ir.Builder, in, out *ir.Value) *ir.Op {
	return b.Insert(NewOp(ReluKind, []*ir.Value{in}, out))
}

// Add inserts out = x + y.
func Add(b ir.Builder, x, y, out *ir.Value) *ir.Op {
	return b.Insert(NewOp(AddKind, []*ir.Value{x, y}, out))
}

// Matmul inserts C += A * B.
func Matmul(b ir.Builder, a, bb, c *ir.Value) *ir.Op {
	return b.Insert(NewOp(MatmulKind, []*ir.Value{a, bb}, c))
}

// Brgemm inserts C += sum_i A[i] * B[i].
func Brgemm(b ir.Builder, a, bb, c *ir.Value) *ir.Op {
	return b.Insert(NewOp(BrgemmKind, []*ir.Value{a, bb}, c))
}

// VNNIMatmul inserts C += A * B with B packed in the VNNI layout [K/v][N][v].
func VNNIMatmul(b ir.Builder, a, bb, c *ir.Value) *ir.Op {
	return b.Insert(NewOp(VNNIMatmulKind, []*ir.Value{a, bb}, c))
}

// IsPrimitive returns true if op belongs to this dialect.
func IsPrimitive(op *ir.Op) bool {
	return op.Kind().Dialect() == Dialect
}

// Inputs returns the inputs of a primitive.
func Inputs(op *ir.Op) []*ir.Value {
	ops := op.Operands()
	return ops[:len(ops)-1]
}

// Output returns the output of a primitive.
func Output(op *ir.Op) *ir.Value {
	return op.Operand(op.NumOperands() - 1)
}

func dims(v *ir.Value) []int {
	return v.Type().Dims()
}

func verifyMatmulDims(a, b, c []int) error {
	m, n, k := c[0], c[1], a[1]
	if b[0] != k || b[1] != n || a[0] != m {
		return errors.Errorf("operand dimensions mismatch: A%v * B%v -> C%v", a, b, c)
	}
	return nil
}

func verifyRanks(vals []*ir.Value, ranks ...int) error {
	for i, v := range vals {
		if !v.Type().IsShaped() || v.Type().Rank() != ranks[i] {
			return errors.Errorf("operand %d: expected a rank %d array but got %s", i, ranks[i], v.Type())
		}
	}
	return nil
}

func verifyBroadcast(in, out *ir.Value) error {
	if !in.Type().IsShaped() {
		return nil
	}
	inDims, outDims := dims(in), dims(out)
	if len(inDims) > len(outDims) {
		return errors.Errorf("cannot broadcast %s into %s: input rank is larger than output rank", in.Type(), out.Type())
	}
	for i, j := len(inDims)-1, len(outDims)-1; i >= 0; i, j = i-1, j-1 {
		if inDims[i] != 1 && inDims[i] != outDims[j] {
			return errors.Errorf("cannot broadcast %s into %s", in.Type(), out.Type())
		}
	}
	return nil
}

// Verify checks the operands of a primitive.
func Verify(op *ir.Op) error {
	want, ok := numInputs[op.Kind()]
	if !ok {
		return errors.Errorf("%s is not a primitive", op.Kind())
	}
	if op.NumOperands() != want+1 {
		return errors.Errorf("expected %d operands but got %d", want+1, op.NumOperands())
	}
	vals := op.Operands()
	switch op.Kind() {
	case MatmulKind:
		if err := verifyRanks(vals, 2, 2, 2); err != nil {
			return errors.Wrap(err, "fails to verify operands shapes")
		}
		return verifyMatmulDims(dims(vals[0]), dims(vals[1]), dims(vals[2]))
	case BrgemmKind:
		if err := verifyRanks(vals, 3, 3, 2); err != nil {
			return errors.Wrap(err, "fails to verify operands shapes")
		}
		a, b := dims(vals[0]), dims(vals[1])
		if a[0] != b[0] {
			return errors.Errorf("batch dimensions mismatch: %d != %d", a[0], b[0])
		}
		return verifyMatmulDims(a[1:], b[1:], dims(vals[2]))
	case VNNIMatmulKind:
		if err := verifyRanks(vals, 2, 3, 2); err != nil {
			return errors.Wrap(err, "fails to verify operands shapes")
		}
		if vals[1].Type().ElementType() != dtype.Bfloat16 {
			return errors.Errorf("expected a bf16 VNNI operand but got %s", vals[1].Type())
		}
		a, b, c := dims(vals[0]), dims(vals[1]), dims(vals[2])
		if b[0]*b[2] != a[1] || b[1] != c[1] || a[0] != c[0] {
			return errors.Errorf("operand dimensions mismatch: A%v * B%v -> C%v", a, b, c)
		}
		return nil
	case ReluKind:
		in, out := vals[0], vals[1]
		if !in.Type().IsShaped() || !slices.Equal(dims(in), dims(out)) {
			return errors.Errorf("relu does not broadcast: cannot apply to %s into %s", in.Type(), out.Type())
		}
	}
	out := Output(op)
	if out.Type().IsShaped() && out.Type().Rank() > 2 {
		return errors.Errorf("expected an output of rank at most 2 but got %s", out.Type())
	}
	for _, in := range Inputs(op) {
		if err := verifyBroadcast(in, out); err != nil {
			return err
		}
	}
	return nil
}

// VerifyFunc verifies all the primitives of a function.
func VerifyFunc(fn *ir.Func) error {
	app := &fmterr.Appender{}
	fn.Walk(func(op *ir.Op) bool {
		if !IsPrimitive(op) {
			return true
		}
		if err := Verify(op); err != nil {
			app.AppendAt(op, err)
		}
		return true
	})
	return app.Err()
}
