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

package passes_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/tpp/api/options"
	"github.com/gx-org/tpp/dialect/arith"
	"github.com/gx-org/tpp/dialect/fn"
	"github.com/gx-org/tpp/dialect/linalg"
	"github.com/gx-org/tpp/dialect/linalgx"
	"github.com/gx-org/tpp/dialect/tensor"
	"github.com/gx-org/tpp/ir"
	"github.com/gx-org/tpp/passes"
	"github.com/gx-org/tpp/refexec"
	"github.com/gx-org/tpp/target"
	"github.com/gx-org/tpp/transforms/blocking"
)

func addBody(b ir.Builder, args []*ir.Value) []*ir.Value {
	return []*ir.Value{arith.Add(b, args[0], args[1])}
}

func kinds(f *ir.Func) string {
	var ks []string
	for _, op := range f.Body().Ops() {
		ks = append(ks, string(op.Kind()))
	}
	return strings.Join(ks, ",")
}

// mlp builds a matrix multiplication followed by the addition of a bias.
func mlp(typeOf func(dtype.DataType, ...int) ir.Type, m, n, k int) *ir.Func {
	f := ir.NewFunc("mlp",
		typeOf(dtype.Float32, m, k),
		typeOf(dtype.Float32, k, n),
		typeOf(dtype.Float32, m, n),
		typeOf(dtype.Float32, n),
	)
	b := ir.AtEnd(f.Body())
	x, w, c, bias := f.Arg(0), f.Arg(1), f.Arg(2), f.Arg(3)
	if typeOf(dtype.Float32).IsMemRef() {
		linalg.Matmul(b, x, w, c)
		linalg.Elementwise(b, []*ir.Value{c, bias}, c, "", addBody)
		fn.Return(b)
		return f
	}
	mm := linalg.Matmul(b, x, w, c).Result(0)
	out := tensor.Empty(b, c.Type())
	res := linalg.Elementwise(b, []*ir.Value{mm, bias}, out, "", addBody).Result(0)
	fn.Return(b, res)
	return f
}

func TestOptionsTiles(t *testing.T) {
	avx512, err := target.ParseArch("avx512")
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		opts    []options.PassOption
		pattern string
		want    []int
	}{
		{
			pattern: blocking.Matmul{}.Name(),
			want:    []int{32, 32, 32},
		},
		{
			pattern: blocking.ConvNchwFchw{}.Name(),
			want:    []int{16, 16},
		},
		{
			pattern: blocking.VNNIMatmul{}.Name(),
			want:    []int{2},
		},
		{
			opts: []options.PassOption{
				options.PatternTiles{Name: blocking.Matmul{}.Name(), Tiles: []int{8, 8, 8}},
				options.PatternTiles{Name: blocking.Matmul{}.Name(), Tiles: []int{4, 4, 4}},
			},
			pattern: blocking.Matmul{}.Name(),
			want:    []int{4, 4, 4},
		},
		{
			pattern: "fold-pack-of-unpack",
		},
	}
	for i, test := range tests {
		opts := &passes.Options{Target: avx512, PassOptions: test.opts}
		if diff := cmp.Diff(test.want, opts.Tiles(test.pattern)); diff != "" {
			t.Errorf("test %d: unexpected tiles (-want +got):\n%s", i, diff)
		}
	}
}

func TestLookup(t *testing.T) {
	want := []string{"to-block-layout-and-back", "propagate-pack-unpack", "linalg-to-tpp", "tpp-to-xsmm"}
	if diff := cmp.Diff(want, passes.Names()); diff != "" {
		t.Errorf("unexpected pass names (-want +got):\n%s", diff)
	}
	for _, name := range want {
		p, err := passes.Lookup(name)
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if p.Name() != name {
			t.Errorf("got pass %q but want %q", p.Name(), name)
		}
	}
	if _, err := passes.Lookup("loop-unroll"); err == nil {
		t.Errorf("expected an error for an unknown pass")
	}
	if _, err := passes.NewPipeline(nil, "linalg-to-tpp", "loop-unroll"); err == nil {
		t.Errorf("expected an error for an unknown pass in a pipeline")
	}
}

func TestPatternNames(t *testing.T) {
	names := passes.PatternNames()
	for _, want := range []string{"matmul-blocking", "vnni-matmul-packing", "propagate-through-elementwise", "add-to-tpp", "brgemm-to-xsmm"} {
		found := false
		for _, name := range names {
			found = found || name == want
		}
		if !found {
			t.Errorf("pattern %q missing from %v", want, names)
		}
	}
}

func TestDisablePattern(t *testing.T) {
	opts := &passes.Options{
		Target:      target.Generic,
		PassOptions: []options.PassOption{options.DisablePattern{Name: "add-to-tpp"}},
	}
	for _, pat := range passes.LinalgToTpp.Patterns(opts) {
		if pat.Name() == "add-to-tpp" {
			t.Errorf("pattern add-to-tpp has not been disabled")
		}
	}
}

func TestBlockAndPropagate(t *testing.T) {
	const m, n, k = 8, 8, 8
	got, want := mlp(ir.Tensor, m, n, k), mlp(ir.Tensor, m, n, k)
	opts := &passes.Options{
		Target: target.Generic,
		PassOptions: []options.PassOption{
			options.PatternTiles{Name: blocking.Matmul{}.Name(), Tiles: []int{4, 4, 4}},
		},
	}
	pipeline, err := passes.NewPipeline(opts, "to-block-layout-and-back", "propagate-pack-unpack")
	if err != nil {
		t.Fatal(err)
	}
	reports, err := pipeline.Run(got)
	if err != nil {
		t.Fatalf("%+v\n%s", err, got)
	}
	if len(reports) != 2 {
		t.Fatalf("got %d reports but want 2", len(reports))
	}
	if reports[0].Result.Rewrites == 0 || reports[1].Result.Rewrites == 0 {
		t.Errorf("expected rewrites in all passes: %s=%d %s=%d",
			reports[0].Pass, reports[0].Result.Rewrites,
			reports[1].Pass, reports[1].Result.Rewrites)
	}
	// The only unpack left is the one producing the returned value.
	unpacks := 0
	for _, op := range got.Body().Ops() {
		if linalgx.IsUnpack(op) {
			unpacks++
		}
	}
	ret := got.Body().Terminator()
	if unpacks != 1 || !linalgx.IsUnpack(ret.Operand(0).DefiningOp()) {
		t.Errorf("the blocked layout has not been propagated to the end of the function:\n%s", got)
	}
	args := make([]*refexec.Array, 4)
	for i := range args {
		args[i] = refexec.Iota(want.Arg(i).Type(), float64(i+1), 0.5)
	}
	gotOut, err := refexec.Run(got, args...)
	if err != nil {
		t.Fatalf("%+v\n%s", err, got)
	}
	wantOut, err := refexec.Run(want, args...)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if diff := cmp.Diff(wantOut[0].Data, gotOut[0].Data); diff != "" {
		t.Errorf("pipeline changed the result:\n%s\nfunction:\n%s", diff, got)
	}
}

func TestLowerBuffers(t *testing.T) {
	f := mlp(ir.MemRef, 4, 4, 8)
	pipeline, err := passes.NewPipeline(&passes.Options{Target: target.Generic}, "linalg-to-tpp", "tpp-to-xsmm")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pipeline.Run(f); err != nil {
		t.Fatalf("%+v\n%s", err, f)
	}
	want := "xsmm.ternary.dispatch,xsmm.ternary,xsmm.binary.dispatch,xsmm.binary,func.return"
	if got := kinds(f); got != want {
		t.Errorf("got operations %s but want %s:\n%s", got, want, f)
	}
}

func TestDefaultPipelineOnBuffers(t *testing.T) {
	f := mlp(ir.MemRef, 4, 4, 8)
	pipeline, err := passes.NewPipeline(&passes.Options{Target: target.Generic})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(passes.Names(), pipeline.Passes()); diff != "" {
		t.Errorf("unexpected default passes (-want +got):\n%s", diff)
	}
	reports, err := pipeline.Run(f)
	if err != nil {
		t.Fatalf("%+v\n%s", err, f)
	}
	// Blocking requires tensors: nothing happens before the mapping to TPP.
	if reports[0].Result.Rewrites != 0 {
		t.Errorf("got %d rewrites in %s but want 0", reports[0].Result.Rewrites, reports[0].Pass)
	}
	if !strings.HasPrefix(kinds(f), "xsmm.ternary.dispatch") {
		t.Errorf("function has not been lowered:\n%s", f)
	}
}
