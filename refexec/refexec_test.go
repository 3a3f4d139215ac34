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

package refexec_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/tpp/dialect/arith"
	"github.com/gx-org/tpp/dialect/fn"
	"github.com/gx-org/tpp/dialect/linalg"
	"github.com/gx-org/tpp/dialect/tensor"
	"github.com/gx-org/tpp/dialect/tpp"
	"github.com/gx-org/tpp/ir"
	"github.com/gx-org/tpp/layout"
	"github.com/gx-org/tpp/refexec"
)

func tensorF32(dims ...int) ir.Type {
	return ir.Tensor(dtype.Float32, dims...)
}

func runOne(t *testing.T, f *ir.Func, args ...*refexec.Array) *refexec.Array {
	t.Helper()
	if err := f.Verify(); err != nil {
		t.Fatalf("%+v", err)
	}
	outs, err := refexec.Run(f, args...)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if len(outs) != 1 {
		t.Fatalf("got %d outputs but want 1", len(outs))
	}
	return outs[0]
}

func TestPackUnpackInverse(t *testing.T) {
	tests := []struct {
		tp   ir.Type
		desc layout.Descriptor
	}{
		{tp: tensorF32(8, 12), desc: layout.NCnc(4, 3)},
		{tp: tensorF32(8, 12), desc: layout.KCck(2, 6)},
		{tp: tensorF32(6, 4), desc: layout.VNNI(2)},
		{tp: tensorF32(2, 8, 3, 3), desc: layout.NCHWc(4)},
		{tp: tensorF32(2, 3, 3, 8), desc: layout.NKPQk(2)},
		{tp: tensorF32(4, 6, 3, 3), desc: layout.KCRSck(3, 2)},
		{tp: tensorF32(3, 3, 6, 4), desc: layout.RSCKToKCRSck(3, 2)},
	}
	for i, test := range tests {
		f := ir.NewFunc("roundtrip", test.tp)
		b := ir.AtEnd(f.Body())
		packed, err := layout.EmitPack(b, f.Arg(0), test.desc)
		if err != nil {
			t.Errorf("test %d: %+v", i, err)
			continue
		}
		unpacked, err := layout.EmitUnpack(b, packed, tensor.Empty(b, test.tp), test.desc)
		if err != nil {
			t.Errorf("test %d: %+v", i, err)
			continue
		}
		fn.Return(b, unpacked)
		in := refexec.Iota(test.tp, 1, 1)
		got := runOne(t, f, in)
		if !got.Equal(in) {
			t.Errorf("test %d: unpack(pack(x)) != x for layout %s:\ngot:\n%s\nwant:\n%s", i, test.desc, got, in)
		}
	}
}

func TestPackValues(t *testing.T) {
	tp := tensorF32(4, 4)
	f := ir.NewFunc("pack", tp)
	b := ir.AtEnd(f.Body())
	packed, err := layout.EmitPack(b, f.Arg(0), layout.KCck(2, 2))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	fn.Return(b, packed)
	got := runOne(t, f, refexec.Iota(tp, 0, 1))
	tests := []struct {
		idx  []int
		want float64
	}{
		{idx: []int{0, 0, 0, 0}, want: 0},
		{idx: []int{0, 1, 1, 0}, want: 12},
		{idx: []int{1, 0, 0, 1}, want: 3},
		{idx: []int{1, 1, 1, 1}, want: 15},
	}
	for i, test := range tests {
		val, err := got.At(test.idx...)
		if err != nil {
			t.Errorf("test %d: %+v", i, err)
			continue
		}
		if val != test.want {
			t.Errorf("test %d: packed%v = %v but want %v", i, test.idx, val, test.want)
		}
	}
}

func TestMatmul(t *testing.T) {
	f := ir.NewFunc("matmul", tensorF32(2, 3), tensorF32(3, 2), tensorF32(2, 2))
	b := ir.AtEnd(f.Body())
	fn.Return(b, linalg.Matmul(b, f.Arg(0), f.Arg(1), f.Arg(2)).Result(0))
	got := runOne(t, f,
		refexec.Iota(tensorF32(2, 3), 1, 1),
		refexec.Iota(tensorF32(3, 2), 1, 1),
		refexec.New(tensorF32(2, 2)),
	)
	if want := []float64{22, 28, 49, 64}; !cmp.Equal(got.Data, want) {
		t.Errorf("incorrect result:\n%s", cmp.Diff(want, got.Data))
	}
}

func TestConv(t *testing.T) {
	want := []float64{12, 16, 24, 28}
	nchw := ir.NewFunc("nchw", tensorF32(1, 1, 3, 3), tensorF32(1, 1, 2, 2), tensorF32(1, 1, 2, 2))
	b := ir.AtEnd(nchw.Body())
	fn.Return(b, linalg.Conv2DNchwFchw(b, nchw.Arg(0), nchw.Arg(1), nchw.Arg(2), nil, nil).Result(0))
	ones := refexec.New(tensorF32(1, 1, 2, 2))
	ones.Fill(1)
	got := runOne(t, nchw, refexec.Iota(tensorF32(1, 1, 3, 3), 1, 1), ones, refexec.New(tensorF32(1, 1, 2, 2)))
	if !cmp.Equal(got.Data, want) {
		t.Errorf("nchw: incorrect result:\n%s", cmp.Diff(want, got.Data))
	}

	nhwc := ir.NewFunc("nhwc", tensorF32(1, 3, 3, 1), tensorF32(2, 2, 1, 1), tensorF32(1, 2, 2, 1))
	b = ir.AtEnd(nhwc.Body())
	fn.Return(b, linalg.Conv2DNhwcHwcf(b, nhwc.Arg(0), nhwc.Arg(1), nhwc.Arg(2), nil, nil).Result(0))
	ones = refexec.New(tensorF32(2, 2, 1, 1))
	ones.Fill(1)
	got = runOne(t, nhwc, refexec.Iota(tensorF32(1, 3, 3, 1), 1, 1), ones, refexec.New(tensorF32(1, 2, 2, 1)))
	if !cmp.Equal(got.Data, want) {
		t.Errorf("nhwc: incorrect result:\n%s", cmp.Diff(want, got.Data))
	}
}

func TestPad(t *testing.T) {
	tp := tensorF32(2, 2)
	f := ir.NewFunc("pad", tp)
	b := ir.AtEnd(f.Body())
	zero := arith.Constant(b, 0, ir.Scalar(dtype.Float32)).Result(0)
	padded, err := tensor.Pad(b, f.Arg(0), zero, []int{1, 0}, []int{0, 1})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	fn.Return(b, padded)
	got := runOne(t, f, refexec.Iota(tp, 1, 1))
	want := []float64{
		0, 0, 0,
		1, 2, 0,
		3, 4, 0,
	}
	if !cmp.Equal(got.Data, want) {
		t.Errorf("incorrect result:\n%s", cmp.Diff(want, got.Data))
	}
}

func TestPrimitivesInPlace(t *testing.T) {
	out := ir.MemRef(dtype.Float32, 2, 3)
	row := ir.MemRef(dtype.Float32, 1, 3)
	f := ir.NewFunc("prims", row, out, out)
	b := ir.AtEnd(f.Body())
	tpp.Identity(b, f.Arg(0), f.Arg(1))
	tpp.Add(b, f.Arg(1), f.Arg(2), f.Arg(2))
	tpp.Relu(b, f.Arg(2), f.Arg(2))
	fn.Return(b)

	rowArg := refexec.Iota(row, -1, 1)
	dst := refexec.New(out)
	acc := refexec.Iota(out, -2, 1)
	if _, err := refexec.Run(f, rowArg, dst, acc); err != nil {
		t.Fatalf("%+v", err)
	}
	if want := []float64{-1, 0, 1, -1, 0, 1}; !cmp.Equal(dst.Data, want) {
		t.Errorf("identity: incorrect result:\n%s", cmp.Diff(want, dst.Data))
	}
	// acc = relu(row + [-2, -1, 0, 1, 2, 3])
	if want := []float64{0, 0, 1, 0, 2, 4}; !cmp.Equal(acc.Data, want) {
		t.Errorf("add and relu: incorrect result:\n%s", cmp.Diff(want, acc.Data))
	}
}

func TestRunErrors(t *testing.T) {
	tp := tensorF32(2, 2)
	f := ir.NewFunc("id", tp)
	fn.Return(ir.AtEnd(f.Body()), f.Arg(0))
	if _, err := refexec.Run(f); err == nil {
		t.Errorf("expected an error when arguments are missing")
	}
	if _, err := refexec.Run(f, refexec.New(tensorF32(2, 3))); err == nil {
		t.Errorf("expected an error when the argument type does not match")
	}
	if _, err := refexec.FromData(tp, []float64{1, 2}); err == nil {
		t.Errorf("expected an error when the number of values does not match")
	}
}

func TestString(t *testing.T) {
	a, err := refexec.FromData(tensorF32(2, 2), []float64{1, 2.5, 3, 4})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	want := "[2][2]f32{\n\t{1, 2.5},\n\t{3, 4},\n}"
	if got := a.String(); got != want {
		t.Errorf("got %q but want %q", got, want)
	}
}
