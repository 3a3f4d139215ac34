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

package affine_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/tpp/ir/affine"
)

func TestString(t *testing.T) {
	tests := []struct {
		m    affine.Map
		want string
	}{
		{
			m:    affine.IdentityMap(2),
			want: "(d0, d1) -> (d0, d1)",
		},
		{
			m:    affine.MinorIdentity(3, 1),
			want: "(d0, d1, d2) -> (d2)",
		},
		{
			m:    affine.NewMap(4, affine.Add(affine.Mul(affine.Dim(0), 32), affine.Dim(2)), affine.Dim(1)),
			want: "(d0, d1, d2, d3) -> (d0 * 32 + d2, d1)",
		},
		{
			m:    affine.NewMap(2, affine.Add(affine.Const(0), affine.Dim(1)), affine.Mul(affine.Dim(0), 1)),
			want: "(d0, d1) -> (d1, d0)",
		},
	}
	for i, test := range tests {
		if got := test.m.String(); got != test.want {
			t.Errorf("test %d: got %q but want %q", i, got, test.want)
		}
	}
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		m                                        affine.Map
		perm, projected, minorIdentity, identity bool
	}{
		{
			m:    affine.IdentityMap(3),
			perm: true, projected: true, minorIdentity: true, identity: true,
		},
		{
			m:    affine.PermutationMap([]int{1, 0}),
			perm: true, projected: true,
		},
		{
			m:         affine.NewMap(3, affine.Dim(0), affine.Dim(2)),
			projected: true,
		},
		{
			m:         affine.MinorIdentity(3, 2),
			projected: true, minorIdentity: true,
		},
		{
			m: affine.NewMap(2, affine.Dim(0), affine.Dim(0)),
		},
		{
			m: affine.NewMap(2, affine.Add(affine.Dim(0), affine.Dim(1))),
		},
	}
	for i, test := range tests {
		if got := test.m.IsPermutation(); got != test.perm {
			t.Errorf("test %d: %s: IsPermutation()=%v", i, test.m, got)
		}
		if got := test.m.IsProjectedPermutation(); got != test.projected {
			t.Errorf("test %d: %s: IsProjectedPermutation()=%v", i, test.m, got)
		}
		if got := test.m.IsMinorIdentity(); got != test.minorIdentity {
			t.Errorf("test %d: %s: IsMinorIdentity()=%v", i, test.m, got)
		}
		if got := test.m.IsIdentity(); got != test.identity {
			t.Errorf("test %d: %s: IsIdentity()=%v", i, test.m, got)
		}
	}
}

func TestComposeAndEval(t *testing.T) {
	// (i, j) -> (i floor-tiled to blocks of 4, j)
	blocked := affine.NewMap(3, affine.Add(affine.Mul(affine.Dim(0), 4), affine.Dim(2)), affine.Dim(1))
	perm := affine.PermutationMap([]int{1, 0, 2})
	got, err := blocked.Compose(perm)
	if err != nil {
		t.Fatal(err)
	}
	if want := "(d0, d1, d2) -> (d1 * 4 + d2, d0)"; got.String() != want {
		t.Errorf("got %s but want %s", got, want)
	}
	if diff := cmp.Diff([]int{13, 7}, got.Eval([]int{7, 3, 1})); diff != "" {
		t.Errorf("unexpected evaluation:\n%s", diff)
	}
	if _, err := blocked.Compose(affine.IdentityMap(2)); err == nil {
		t.Errorf("expected an error when composing maps with mismatching arity")
	}
}

func TestInversePermutation(t *testing.T) {
	m := affine.PermutationMap([]int{2, 0, 1})
	inv, err := affine.InversePermutation(m)
	if err != nil {
		t.Fatal(err)
	}
	id, err := m.Compose(inv)
	if err != nil {
		t.Fatal(err)
	}
	if !id.IsIdentity() {
		t.Errorf("%s composed with its inverse %s gives %s", m, inv, id)
	}
	if _, err := affine.InversePermutation(affine.MinorIdentity(3, 2)); err == nil {
		t.Errorf("expected an error for a non-permutation map")
	}
	if diff := cmp.Diff([]int{1, 2, 0}, affine.InversePermutationVector([]int{2, 0, 1})); diff != "" {
		t.Errorf("unexpected inverse vector:\n%s", diff)
	}
	for _, test := range []struct {
		perm []int
		want bool
	}{
		{perm: nil, want: true},
		{perm: []int{1, 0}, want: true},
		{perm: []int{1, 1}},
		{perm: []int{0, 2}},
	} {
		if got := affine.IsPermutationVector(test.perm); got != test.want {
			t.Errorf("IsPermutationVector(%v) = %v but want %v", test.perm, got, test.want)
		}
	}
}
