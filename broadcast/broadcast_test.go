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

package broadcast_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/tpp/broadcast"
	"github.com/gx-org/tpp/ir"
	"github.com/gx-org/tpp/ir/fmterr"
)

func TestReshape(t *testing.T) {
	tests := []struct {
		higher, lower []int
		want          []int
		err           bool
	}{
		{higher: []int{4, 5, 6}, lower: []int{6}, want: []int{1, 1, 6}},
		{higher: []int{4, 5, 6}, lower: []int{5, 6}, want: []int{1, 5, 6}},
		{higher: []int{8, 8}, lower: []int{8}, want: []int{1, 8}},
		{higher: []int{4, 5, 6}, lower: []int{}, want: []int{1, 1, 1}},
		{higher: []int{4, 5}, lower: []int{1, 5}, want: []int{1, 5}},
		{higher: []int{4, 1}, lower: []int{4, 3}, want: []int{4, 3}},
		{higher: []int{4, 5}, lower: []int{4, 3}, err: true},
		{higher: []int{5}, lower: []int{1, 5}, err: true},
	}
	for i, test := range tests {
		got, err := broadcast.Reshape(test.higher, test.lower)
		if test.err {
			if !fmterr.IsInternal(err) {
				t.Errorf("test %d: expected an internal error but got %v", i, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("test %d: unexpected error: %v", i, err)
			continue
		}
		if diff := cmp.Diff(test.want, got); diff != "" {
			t.Errorf("test %d: unexpected reshape:\n%s", i, diff)
		}
	}
}

func TestClassifyUnary(t *testing.T) {
	tests := []struct {
		input  ir.Type
		output []int
		ld     int
		kind   broadcast.Kind
	}{
		{
			input:  ir.Scalar(dtype.Float32),
			output: []int{64, 64},
			ld:     1,
			kind:   broadcast.Scalar,
		},
		{
			input:  ir.MemRef(dtype.Float32, 1, 1),
			output: []int{64, 64},
			ld:     1,
			kind:   broadcast.Scalar,
		},
		{
			input:  ir.MemRef(dtype.Float32),
			output: []int{64, 64},
			ld:     1,
			kind:   broadcast.Scalar,
		},
		{
			input:  ir.MemRef(dtype.Float32, 1),
			output: []int{32, 64},
			ld:     1,
			kind:   broadcast.Scalar,
		},
		{
			input:  ir.MemRef(dtype.Float32, 1, 1),
			output: []int{1, 1},
			ld:     1,
			kind:   broadcast.Scalar,
		},
		{
			input:  ir.MemRef(dtype.Float32, 1, 64),
			output: []int{64, 64},
			ld:     64,
			kind:   broadcast.Row,
		},
		{
			input:  ir.MemRef(dtype.Float32, 64),
			output: []int{32, 64},
			ld:     64,
			kind:   broadcast.Row,
		},
		{
			input:  ir.MemRef(dtype.Float32, 32, 1),
			output: []int{32, 64},
			ld:     1,
			kind:   broadcast.Column,
		},
		{
			input:  ir.MemRef(dtype.Float32, 32, 64),
			output: []int{32, 64},
			ld:     64,
			kind:   broadcast.None,
		},
		{
			input:  ir.MemRef(dtype.Float32, 1, 64),
			output: []int{1, 64},
			ld:     64,
			kind:   broadcast.None,
		},
	}
	for i, test := range tests {
		ld, kind, err := broadcast.ClassifyUnary(test.input, test.output)
		if err != nil {
			t.Errorf("test %d: unexpected error: %v", i, err)
			continue
		}
		if ld != test.ld || kind != test.kind {
			t.Errorf("test %d: broadcast %s to %v: got (%d, %s) but want (%d, %s)", i, test.input, test.output, ld, kind, test.ld, test.kind)
		}
	}
}

func TestClassifyUnaryFatal(t *testing.T) {
	tests := []struct {
		input  ir.Type
		output []int
	}{
		{input: ir.MemRef(dtype.Float32, 16, 64), output: []int{32, 64}},
		{input: ir.MemRef(dtype.Float32, 32, 3), output: []int{32, 64}},
		{input: ir.MemRef(dtype.Float32, 8), output: []int{2, 4, 8}},
	}
	for i, test := range tests {
		if _, _, err := broadcast.ClassifyUnary(test.input, test.output); !fmterr.IsInternal(err) {
			t.Errorf("test %d: expected an internal error but got %v", i, err)
		}
	}
}

// Every input verified against a 2D output gets exactly one classification.
func TestClassifyUnaryTotality(t *testing.T) {
	outputs := [][]int{{1, 1}, {1, 8}, {8, 1}, {8, 8}, {4, 16}}
	for _, out := range outputs {
		var inputs [][]int
		for _, m := range []int{1, out[0]} {
			for _, n := range []int{1, out[1]} {
				inputs = append(inputs, []int{m, n})
			}
		}
		inputs = append(inputs, []int{1}, []int{out[1]})
		for _, in := range inputs {
			_, kind, err := broadcast.ClassifyUnary(ir.MemRef(dtype.Float32, in...), out)
			if err != nil {
				t.Errorf("broadcast %v to %v: unexpected error: %v", in, out, err)
				continue
			}
			switch kind {
			case broadcast.None, broadcast.Row, broadcast.Column, broadcast.Scalar:
			default:
				t.Errorf("broadcast %v to %v: unexpected kind %v", in, out, kind)
			}
		}
	}
}
