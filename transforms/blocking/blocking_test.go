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

package blocking_test

import (
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/tpp/dialect/fn"
	"github.com/gx-org/tpp/dialect/linalg"
	"github.com/gx-org/tpp/dialect/linalgx"
	"github.com/gx-org/tpp/dialect/tpp"
	"github.com/gx-org/tpp/ir"
	"github.com/gx-org/tpp/ir/affine"
	"github.com/gx-org/tpp/layout"
	"github.com/gx-org/tpp/refexec"
	"github.com/gx-org/tpp/rewrite"
	"github.com/gx-org/tpp/transforms/blocking"
)

func tensorF32(dims ...int) ir.Type {
	return ir.Tensor(dtype.Float32, dims...)
}

type program func(b ir.Builder, args []*ir.Value) *ir.Op

func build(t *testing.T, body program, argTypes ...ir.Type) *ir.Func {
	t.Helper()
	f := ir.NewFunc("main", argTypes...)
	b := ir.AtEnd(f.Body())
	args := make([]*ir.Value, len(argTypes))
	for i := range args {
		args[i] = f.Arg(i)
	}
	fn.Return(b, body(b, args).Results()...)
	if err := f.Verify(); err != nil {
		t.Fatalf("%+v", err)
	}
	return f
}

func apply(t *testing.T, f *ir.Func, p rewrite.Pattern) *rewrite.Result {
	t.Helper()
	res, err := rewrite.ApplyGreedily(f, []rewrite.Pattern{p}, rewrite.WithDeadCodeElimination())
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err := f.Verify(); err != nil {
		t.Fatalf("invalid function after rewrite: %+v\n%s", err, f)
	}
	return res
}

func checkSameOutput(t *testing.T, got, want *ir.Func, argTypes ...ir.Type) {
	t.Helper()
	args := make([]*refexec.Array, len(argTypes))
	for i, tp := range argTypes {
		args[i] = refexec.Iota(tp, float64(i), 0.25)
	}
	gotOut, err := refexec.Run(got, args...)
	if err != nil {
		t.Fatalf("%+v\n%s", err, got)
	}
	wantOut, err := refexec.Run(want, args...)
	if err != nil {
		t.Fatalf("%+v\n%s", err, want)
	}
	if diff := cmp.Diff(wantOut[0].Data, gotOut[0].Data); diff != "" {
		t.Errorf("rewrite changed the result:\n%s\nfunction:\n%s", diff, got)
	}
}

func findOp(f *ir.Func, kind ir.Kind) *ir.Op {
	for _, op := range f.Body().Ops() {
		if op.Kind() == kind {
			return op
		}
	}
	return nil
}

func matmul(b ir.Builder, args []*ir.Value) *ir.Op {
	return linalg.Matmul(b, args[0], args[1], args[2])
}

func TestMatmulBlockedShape(t *testing.T) {
	args := []ir.Type{tensorF32(128, 256), tensorF32(256, 256), tensorF32(128, 256)}
	f := build(t, matmul, args...)
	res := apply(t, f, blocking.Matmul{Tiles: []int{32, 16, 8}})
	if res.Rewrites != 1 {
		t.Fatalf("got %d rewrites but want 1:\n%s", res.Rewrites, f)
	}
	generic := findOp(f, linalg.GenericKind)
	if generic == nil {
		t.Fatalf("no generic operation:\n%s", f)
	}
	wantIterators := []ir.IteratorType{ir.Parallel, ir.Parallel, ir.Reduction, ir.Parallel, ir.Parallel, ir.Reduction}
	if got := linalg.IteratorTypes(generic); !slices.Equal(got, wantIterators) {
		t.Errorf("got iterators %v but want %v", got, wantIterators)
	}
	if got, want := generic.Result(0).Type(), tensorF32(4, 16, 32, 16); !got.Equal(want) {
		t.Errorf("blocked result has type %s but want %s", got, want)
	}
	ret := f.Body().Terminator().Operand(0)
	if unpack := ret.DefiningOp(); !linalgx.IsUnpack(unpack) || !layout.Of(unpack).Equal(layout.NCnc(32, 16)) {
		t.Errorf("result is not unpacked with NCnc(32, 16):\n%s", f)
	}
	if got, want := ret.Type(), args[2]; !got.Equal(want) {
		t.Errorf("result has type %s but want %s", got, want)
	}
	var maps []string
	for _, m := range linalg.IndexingMaps(generic) {
		maps = append(maps, m.String())
	}
	wantMaps := []string{
		"(d0, d1, d2, d3, d4, d5) -> (d0, d2, d3, d5)",
		"(d0, d1, d2, d3, d4, d5) -> (d1, d2, d5, d4)",
		"(d0, d1, d2, d3, d4, d5) -> (d0, d1, d3, d4)",
	}
	if !cmp.Equal(maps, wantMaps) {
		t.Errorf("unexpected indexing maps:\n%s", cmp.Diff(wantMaps, maps))
	}
}

func TestBlockingNumerics(t *testing.T) {
	conv := func(nhwc bool, strides []int) program {
		return func(b ir.Builder, args []*ir.Value) *ir.Op {
			if nhwc {
				return linalg.Conv2DNhwcHwcf(b, args[0], args[1], args[2], strides, nil)
			}
			return linalg.Conv2DNchwFchw(b, args[0], args[1], args[2], strides, nil)
		}
	}
	tests := []struct {
		pattern rewrite.Pattern
		body    program
		args    []ir.Type
	}{
		{
			pattern: blocking.Matmul{Tiles: []int{2, 4, 3}},
			body:    matmul,
			args:    []ir.Type{tensorF32(4, 6), tensorF32(6, 8), tensorF32(4, 8)},
		},
		{
			pattern: blocking.Matmul{Tiles: []int{4, 4, 4}},
			body:    matmul,
			args:    []ir.Type{tensorF32(8, 4), tensorF32(4, 4), tensorF32(8, 4)},
		},
		{
			pattern: blocking.ConvNchwFchw{Tiles: []int{2, 2}},
			body:    conv(false, nil),
			args:    []ir.Type{tensorF32(1, 4, 5, 5), tensorF32(4, 4, 2, 2), tensorF32(1, 4, 4, 4)},
		},
		{
			pattern: blocking.ConvNchwFchw{Tiles: []int{2, 3}},
			body:    conv(false, []int{2, 2}),
			args:    []ir.Type{tensorF32(2, 4, 5, 5), tensorF32(6, 4, 3, 3), tensorF32(2, 6, 2, 2)},
		},
		{
			pattern: blocking.ConvNhwcHwcf{Tiles: []int{2, 2}},
			body:    conv(true, nil),
			args:    []ir.Type{tensorF32(1, 5, 5, 4), tensorF32(2, 2, 4, 4), tensorF32(1, 4, 4, 4)},
		},
		{
			pattern: blocking.ConvNhwcHwcf{Tiles: []int{4, 2}},
			body:    conv(true, []int{2, 1}),
			args:    []ir.Type{tensorF32(1, 5, 4, 4), tensorF32(3, 2, 4, 6), tensorF32(1, 2, 3, 6)},
		},
	}
	for i, test := range tests {
		f := build(t, test.body, test.args...)
		res := apply(t, f, test.pattern)
		if res.Rewrites != 1 {
			t.Errorf("test %d: got %d rewrites but want 1: %v", i, res.Rewrites, res.Declines)
			continue
		}
		if findOp(f, linalg.GenericKind) == nil {
			t.Errorf("test %d: no generic operation:\n%s", i, f)
		}
		checkSameOutput(t, f, build(t, test.body, test.args...), test.args...)
	}
}

func TestBlockingDeclines(t *testing.T) {
	memF32 := func(dims ...int) ir.Type { return ir.MemRef(dtype.Float32, dims...) }
	bf16 := func(dims ...int) ir.Type { return ir.Tensor(dtype.Bfloat16, dims...) }
	flat := []ir.Type{tensorF32(8, 8), tensorF32(8, 8), tensorF32(8, 8)}
	tests := []struct {
		pattern rewrite.Pattern
		body    program
		args    []ir.Type
		reason  string
	}{
		{
			pattern: blocking.Matmul{Tiles: []int{4, 4}},
			body:    matmul,
			args:    flat,
			reason:  "require 3 tile factors but got 2",
		},
		{
			pattern: blocking.Matmul{Tiles: []int{4, 0, 4}},
			body:    matmul,
			args:    flat,
			reason:  "must be positive",
		},
		{
			pattern: blocking.Matmul{Tiles: []int{4, 4, 4}},
			body:    matmul,
			args:    []ir.Type{tensorF32(ir.DynamicSize, 8), tensorF32(8, 8), tensorF32(ir.DynamicSize, 8)},
			reason:  "require static shape",
		},
		{
			pattern: blocking.Matmul{Tiles: []int{4, 4, 4}},
			body:    matmul,
			args:    []ir.Type{memF32(8, 8), memF32(8, 8), memF32(8, 8)},
			reason:  "require tensor semantics",
		},
		{
			pattern: blocking.Matmul{Tiles: []int{3, 4, 4}},
			body:    matmul,
			args:    flat,
			reason:  "do not divide",
		},
		{
			pattern: blocking.ConvNchwFchw{Tiles: []int{2, 2}},
			body: func(b ir.Builder, args []*ir.Value) *ir.Op {
				return linalg.Conv2DNchwFchw(b, args[0], args[1], args[2], nil, []int{2, 2})
			},
			args:   []ir.Type{tensorF32(1, 4, 5, 5), tensorF32(4, 4, 2, 2), tensorF32(1, 4, 3, 3)},
			reason: "require unit dilations",
		},
		{
			pattern: blocking.ConvNhwcHwcf{Tiles: []int{2}},
			body: func(b ir.Builder, args []*ir.Value) *ir.Op {
				return linalg.Conv2DNhwcHwcf(b, args[0], args[1], args[2], nil, nil)
			},
			args:   []ir.Type{tensorF32(1, 5, 5, 4), tensorF32(2, 2, 4, 4), tensorF32(1, 4, 4, 4)},
			reason: "require 2 tile factors but got 1",
		},
		{
			pattern: blocking.VNNIMatmul{Tiles: []int{2}},
			body:    matmul,
			args:    flat,
			reason:  "require bf16 operands",
		},
		{
			pattern: blocking.VNNIMatmul{Tiles: []int{3}},
			body:    matmul,
			args:    []ir.Type{bf16(4, 8), bf16(8, 6), bf16(4, 6)},
			reason:  "do not divide",
		},
		{
			pattern: blocking.DeGeneralizeMatmul{},
			body: func(b ir.Builder, args []*ir.Value) *ir.Op {
				return markedMatmul(b, args, "")
			},
			args:   flat,
			reason: "not marked with tpp.matmul",
		},
		{
			// B is transposed.
			pattern: blocking.DeGeneralizeMatmul{},
			body: func(b ir.Builder, args []*ir.Value) *ir.Op {
				maps := linalg.MatmulMaps()
				maps[1] = affine.NewMap(3, affine.Dim(1), affine.Dim(2))
				return linalg.Generic(b, args[:2], args[2:], maps, linalg.MatmulIterators(), string(tpp.MatmulKind), linalg.MulAddBody)
			},
			args:   flat,
			reason: "indexing maps are not the maps of a matrix multiplication",
		},
	}
	for i, test := range tests {
		f := ir.NewFunc("main", test.args...)
		b := ir.AtEnd(f.Body())
		op := test.body(b, []*ir.Value{f.Arg(0), f.Arg(1), f.Arg(2)})
		fn.Return(b, op.Results()...)
		before := f.String()
		res, err := rewrite.ApplyGreedily(f, []rewrite.Pattern{test.pattern})
		if err != nil {
			t.Errorf("test %d: %+v", i, err)
			continue
		}
		if after := f.String(); after != before {
			t.Errorf("test %d: function changed:\nbefore:\n%s\nafter:\n%s", i, before, after)
		}
		declines := res.DeclineList()
		if len(declines) != 1 {
			t.Errorf("test %d: got %d declines but want 1: %v", i, len(declines), res.Declines)
			continue
		}
		if got := declines[0]; got.Pattern != test.pattern.Name() || !strings.Contains(got.Reason, test.reason) {
			t.Errorf("test %d: got decline %v but want a decline of %s containing %q", i, got, test.pattern.Name(), test.reason)
		}
	}
}

func TestVNNIMatmul(t *testing.T) {
	bf16 := func(dims ...int) ir.Type { return ir.Tensor(dtype.Bfloat16, dims...) }
	args := []ir.Type{bf16(4, 8), bf16(8, 6), bf16(4, 6)}
	f := build(t, matmul, args...)
	res := apply(t, f, blocking.VNNIMatmul{Tiles: []int{2}})
	if res.Rewrites != 1 {
		t.Fatalf("got %d rewrites but want 1: %v", res.Rewrites, res.Declines)
	}
	op := f.Body().Terminator().Operand(0).DefiningOp()
	if op.Kind() != tpp.VNNIMatmulKind {
		t.Fatalf("result is not computed by %s:\n%s", tpp.VNNIMatmulKind, f)
	}
	if err := tpp.Verify(op); err != nil {
		t.Errorf("%+v", err)
	}
	if got, want := op.Operand(1).Type(), bf16(4, 6, 2); !got.Equal(want) {
		t.Errorf("packed B has type %s but want %s", got, want)
	}
	checkSameOutput(t, f, build(t, matmul, args...), args...)
}

func markedMatmul(b ir.Builder, args []*ir.Value, libraryCall string) *ir.Op {
	maps := []affine.Map{
		affine.NewMap(3, affine.Dim(0), affine.Dim(2)),
		affine.NewMap(3, affine.Dim(2), affine.Dim(1)),
		affine.NewMap(3, affine.Dim(0), affine.Dim(1)),
	}
	iterators := []ir.IteratorType{ir.Parallel, ir.Parallel, ir.Reduction}
	return linalg.Generic(b, args[:2], args[2:], maps, iterators, libraryCall, linalg.MulAddBody)
}

func TestDeGeneralizeMatmul(t *testing.T) {
	args := []ir.Type{tensorF32(3, 4), tensorF32(4, 5), tensorF32(3, 5)}
	body := func(b ir.Builder, args []*ir.Value) *ir.Op {
		return markedMatmul(b, args, string(tpp.MatmulKind))
	}
	f := build(t, body, args...)
	res := apply(t, f, blocking.DeGeneralizeMatmul{})
	if res.Rewrites != 1 {
		t.Fatalf("got %d rewrites but want 1: %v", res.Rewrites, res.Declines)
	}
	if op := f.Body().Terminator().Operand(0).DefiningOp(); op.Kind() != linalg.MatmulKind {
		t.Errorf("result is not computed by %s:\n%s", linalg.MatmulKind, f)
	}
	checkSameOutput(t, f, build(t, body, args...), args...)
}
