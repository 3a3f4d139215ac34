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

package totpp_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/tpp/dialect/arith"
	"github.com/gx-org/tpp/dialect/fn"
	"github.com/gx-org/tpp/dialect/linalg"
	"github.com/gx-org/tpp/dialect/tpp"
	"github.com/gx-org/tpp/ir"
	"github.com/gx-org/tpp/ir/affine"
	"github.com/gx-org/tpp/refexec"
	"github.com/gx-org/tpp/rewrite"
	"github.com/gx-org/tpp/transforms/totpp"
)

var f32 = ir.Scalar(dtype.Float32)

func memF32(dims ...int) ir.Type {
	return ir.MemRef(dtype.Float32, dims...)
}

type program func(b ir.Builder, args []*ir.Value)

func build(t *testing.T, body program, argTypes ...ir.Type) *ir.Func {
	t.Helper()
	f := ir.NewFunc("main", argTypes...)
	b := ir.AtEnd(f.Body())
	args := make([]*ir.Value, len(argTypes))
	for i := range args {
		args[i] = f.Arg(i)
	}
	body(b, args)
	fn.Return(b)
	if err := f.Verify(); err != nil {
		t.Fatalf("%+v", err)
	}
	return f
}

// run evaluates a function on buffers and returns the content of the buffers.
func run(t *testing.T, f *ir.Func, argTypes ...ir.Type) [][]float64 {
	t.Helper()
	args := make([]*refexec.Array, len(argTypes))
	for i, tp := range argTypes {
		args[i] = refexec.Iota(tp, float64(-4*i-3), 0.5)
	}
	if _, err := refexec.Run(f, args...); err != nil {
		t.Fatalf("%+v\n%s", err, f)
	}
	data := make([][]float64, len(args))
	for i, arg := range args {
		data[i] = arg.Data
	}
	return data
}

func matmulMaps() []affine.Map {
	return []affine.Map{
		affine.NewMap(3, affine.Dim(0), affine.Dim(2)),
		affine.NewMap(3, affine.Dim(2), affine.Dim(1)),
		affine.NewMap(3, affine.Dim(0), affine.Dim(1)),
	}
}

func zeroConstant(b ir.Builder) *ir.Value {
	return arith.Constant(b, 0, f32).Result(0)
}

func TestLinalgToTpp(t *testing.T) {
	tests := []struct {
		body program
		args []ir.Type
		want ir.Kind
	}{
		{
			body: func(b ir.Builder, args []*ir.Value) {
				linalg.Matmul(b, args[0], args[1], args[2])
			},
			args: []ir.Type{memF32(4, 3), memF32(3, 5), memF32(4, 5)},
			want: tpp.MatmulKind,
		},
		{
			body: func(b ir.Builder, args []*ir.Value) {
				iterators := []ir.IteratorType{ir.Parallel, ir.Parallel, ir.Reduction}
				linalg.Generic(b, args[:2], args[2:], matmulMaps(), iterators, string(tpp.MatmulKind), linalg.MulAddBody)
			},
			args: []ir.Type{memF32(4, 3), memF32(3, 5), memF32(4, 5)},
			want: tpp.MatmulKind,
		},
		{
			body: func(b ir.Builder, args []*ir.Value) {
				linalg.BatchReduceMatmul(b, args[0], args[1], args[2])
			},
			args: []ir.Type{memF32(2, 4, 3), memF32(2, 3, 5), memF32(4, 5)},
			want: tpp.BrgemmKind,
		},
		{
			body: func(b ir.Builder, args []*ir.Value) {
				linalg.Copy(b, args[0], args[1])
			},
			args: []ir.Type{memF32(4, 5), memF32(4, 5)},
			want: tpp.IdentityKind,
		},
		{
			// Broadcast a row.
			body: func(b ir.Builder, args []*ir.Value) {
				linalg.Elementwise(b, args[:1], args[1], "", func(b ir.Builder, args []*ir.Value) []*ir.Value {
					return args[:1]
				})
			},
			args: []ir.Type{memF32(5), memF32(4, 5)},
			want: tpp.IdentityKind,
		},
		{
			body: func(b ir.Builder, args []*ir.Value) {
				linalg.Elementwise(b, args[:1], args[1], "", func(b ir.Builder, args []*ir.Value) []*ir.Value {
					return []*ir.Value{arith.Max(b, args[0], zeroConstant(b))}
				})
			},
			args: []ir.Type{memF32(4, 5), memF32(4, 5)},
			want: tpp.ReluKind,
		},
		{
			// In place.
			body: func(b ir.Builder, args []*ir.Value) {
				linalg.Elementwise(b, nil, args[0], "", func(b ir.Builder, args []*ir.Value) []*ir.Value {
					return []*ir.Value{arith.Max(b, zeroConstant(b), args[0])}
				})
			},
			args: []ir.Type{memF32(4, 5)},
			want: tpp.ReluKind,
		},
		{
			// Maximum with a buffer filled with zeros.
			body: func(b ir.Builder, args []*ir.Value) {
				linalg.Fill(b, zeroConstant(b), args[1])
				linalg.Elementwise(b, args[:1], args[1], "", func(b ir.Builder, args []*ir.Value) []*ir.Value {
					return []*ir.Value{arith.Max(b, args[0], args[1])}
				})
			},
			args: []ir.Type{memF32(4, 5), memF32(4, 5)},
			want: tpp.ReluKind,
		},
		{
			body: func(b ir.Builder, args []*ir.Value) {
				linalg.Elementwise(b, args[:2], args[2], "", func(b ir.Builder, args []*ir.Value) []*ir.Value {
					return []*ir.Value{arith.Add(b, args[1], args[0])}
				})
			},
			args: []ir.Type{memF32(4, 5), memF32(5), memF32(4, 5)},
			want: tpp.AddKind,
		},
	}
	for i, test := range tests {
		f := build(t, test.body, test.args...)
		res, err := rewrite.ApplyGreedily(f, totpp.Patterns())
		if err != nil {
			t.Errorf("test %d: %+v", i, err)
			continue
		}
		if res.Rewrites != 1 {
			t.Errorf("test %d: got %d rewrites but want 1: %v\n%s", i, res.Rewrites, res.Declines, f)
			continue
		}
		ops := f.Body().Ops()
		if got := ops[len(ops)-2].Kind(); got != test.want {
			t.Errorf("test %d: got %s but want %s:\n%s", i, got, test.want, f)
		}
		if err := tpp.VerifyFunc(f); err != nil {
			t.Errorf("test %d: %+v", i, err)
		}
		got := run(t, f, test.args...)
		want := run(t, build(t, test.body, test.args...), test.args...)
		if !cmp.Equal(got, want) {
			t.Errorf("test %d: mapping changed the result:\n%s", i, cmp.Diff(want, got))
		}
	}
}

func TestLinalgToTppDeclines(t *testing.T) {
	tests := []struct {
		body    program
		args    []ir.Type
		pattern string
		reason  string
	}{
		{
			body: func(b ir.Builder, args []*ir.Value) {
				linalg.Matmul(b, args[0], args[1], args[2])
			},
			args:    []ir.Type{memF32(4, 3), memF32(3, 5), memF32(4, ir.DynamicSize)},
			pattern: "matmul-to-tpp",
			reason:  "require static shape",
		},
		{
			body: func(b ir.Builder, args []*ir.Value) {
				iterators := []ir.IteratorType{ir.Parallel, ir.Parallel, ir.Reduction}
				linalg.Generic(b, args[:2], args[2:], matmulMaps(), iterators, "", linalg.MulAddBody)
			},
			args:    []ir.Type{memF32(4, 3), memF32(3, 5), memF32(4, 5)},
			pattern: "generic-matmul-to-tpp",
			reason:  "not marked with tpp.matmul",
		},
		{
			body: func(b ir.Builder, args []*ir.Value) {
				// B is transposed.
				maps := linalg.MatmulMaps()
				maps[1] = affine.NewMap(3, affine.Dim(1), affine.Dim(2))
				linalg.Generic(b, args[:2], args[2:], maps, linalg.MatmulIterators(), string(tpp.MatmulKind), linalg.MulAddBody)
			},
			args:    []ir.Type{memF32(4, 3), memF32(5, 3), memF32(4, 5)},
			pattern: "generic-matmul-to-tpp",
			reason:  "indexing maps are not the maps of a matrix multiplication",
		},
		{
			body: func(b ir.Builder, args []*ir.Value) {
				linalg.Elementwise(b, args[:1], args[1], "", func(b ir.Builder, args []*ir.Value) []*ir.Value {
					return []*ir.Value{arith.Max(b, args[0], zeroConstant(b))}
				})
			},
			args:    []ir.Type{memF32(2, 4, 5), memF32(2, 4, 5)},
			pattern: "relu-to-tpp",
			reason:  "cannot map to tpp.relu",
		},
		{
			body: func(b ir.Builder, args []*ir.Value) {
				linalg.Elementwise(b, args[:2], args[2], "", func(b ir.Builder, args []*ir.Value) []*ir.Value {
					return []*ir.Value{arith.Max(b, args[0], args[1])}
				})
			},
			args:    []ir.Type{memF32(4, 5), memF32(4, 5), memF32(4, 5)},
			pattern: "relu-to-tpp",
			reason:  "not a maximum with zero",
		},
		{
			// Broadcast a row.
			body: func(b ir.Builder, args []*ir.Value) {
				linalg.Elementwise(b, args[:1], args[1], "", func(b ir.Builder, args []*ir.Value) []*ir.Value {
					return []*ir.Value{arith.Max(b, args[0], zeroConstant(b))}
				})
			},
			args:    []ir.Type{memF32(8), memF32(4, 8)},
			pattern: "relu-to-tpp",
			reason:  "relu does not broadcast",
		},
	}
	for i, test := range tests {
		f := build(t, test.body, test.args...)
		before := f.String()
		res, err := rewrite.ApplyGreedily(f, totpp.Patterns())
		if err != nil {
			t.Errorf("test %d: %+v", i, err)
			continue
		}
		if after := f.String(); after != before {
			t.Errorf("test %d: function changed:\nbefore:\n%s\nafter:\n%s", i, before, after)
		}
		found := false
		for _, decline := range res.DeclineList() {
			if decline.Pattern == test.pattern && strings.Contains(decline.Reason, test.reason) {
				found = true
			}
		}
		if !found {
			t.Errorf("test %d: no decline of %s containing %q in %v", i, test.pattern, test.reason, res.Declines)
		}
	}
}

func TestTensorsAreNotMapped(t *testing.T) {
	tp := ir.Tensor(dtype.Float32, 4, 4)
	f := ir.NewFunc("main", tp, tp, tp)
	b := ir.AtEnd(f.Body())
	fn.Return(b, linalg.Matmul(b, f.Arg(0), f.Arg(1), f.Arg(2)).Result(0))
	res, err := rewrite.ApplyGreedily(f, totpp.Patterns())
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if res.Rewrites != 0 {
		t.Errorf("matmul on tensors mapped to a primitive:\n%s", f)
	}
}
