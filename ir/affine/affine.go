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

// Package affine implements affine expressions and maps used to index
// the iteration domain of structured operations.
package affine

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gx-org/tpp/base/stringseq"
	"github.com/pkg/errors"
)

// Expr is an affine expression over the dimensions of a map.
type Expr interface {
	fmt.Stringer
	eval(dims []int) int
	substitute(repl []Expr) Expr
}

// DimExpr refers to a dimension of the domain.
type DimExpr struct {
	Pos int
}

// ConstExpr is an integer constant.
type ConstExpr struct {
	Value int
}

// AddExpr is the sum of two expressions.
type AddExpr struct {
	X, Y Expr
}

// MulExpr multiplies an expression by a constant.
type MulExpr struct {
	X Expr
	C int
}

// Dim returns the expression of a domain dimension.
func Dim(pos int) Expr { return DimExpr{Pos: pos} }

// Const returns a constant expression.
func Const(v int) Expr { return ConstExpr{Value: v} }

// Add returns x + y. Constant operands are folded.
func Add(x, y Expr) Expr {
	cx, xok := x.(ConstExpr)
	cy, yok := y.(ConstExpr)
	switch {
	case xok && yok:
		return ConstExpr{Value: cx.Value + cy.Value}
	case xok && cx.Value == 0:
		return y
	case yok && cy.Value == 0:
		return x
	}
	return AddExpr{X: x, Y: y}
}

// Mul returns x * c.
func Mul(x Expr, c int) Expr {
	switch {
	case c == 1:
		return x
	case c == 0:
		return ConstExpr{}
	}
	if cx, ok := x.(ConstExpr); ok {
		return ConstExpr{Value: cx.Value * c}
	}
	return MulExpr{X: x, C: c}
}

func (e DimExpr) eval(dims []int) int { return dims[e.Pos] }

func (e DimExpr) substitute(repl []Expr) Expr { return repl[e.Pos] }

func (e DimExpr) String() string { return fmt.Sprintf("d%d", e.Pos) }

func (e ConstExpr) eval([]int) int { return e.Value }

func (e ConstExpr) substitute([]Expr) Expr { return e }

func (e ConstExpr) String() string { return fmt.Sprint(e.Value) }

func (e AddExpr) eval(dims []int) int { return e.X.eval(dims) + e.Y.eval(dims) }

func (e AddExpr) substitute(repl []Expr) Expr {
	return Add(e.X.substitute(repl), e.Y.substitute(repl))
}

func (e AddExpr) String() string { return e.X.String() + " + " + e.Y.String() }

func (e MulExpr) eval(dims []int) int { return e.X.eval(dims) * e.C }

func (e MulExpr) substitute(repl []Expr) Expr { return Mul(e.X.substitute(repl), e.C) }

func (e MulExpr) String() string {
	if _, isAdd := e.X.(AddExpr); isAdd {
		return fmt.Sprintf("(%s) * %d", e.X, e.C)
	}
	return fmt.Sprintf("%s * %d", e.X, e.C)
}

// Map maps the NumDims dimensions of a domain to a list of results.
type Map struct {
	NumDims int
	Results []Expr
}

// NewMap returns a new map.
func NewMap(numDims int, results ...Expr) Map {
	return Map{NumDims: numDims, Results: results}
}

// IdentityMap returns (d0, ..., dn-1) -> (d0, ..., dn-1).
func IdentityMap(n int) Map {
	return MinorIdentity(n, n)
}

// MinorIdentity returns the map selecting the numResults innermost dimensions.
func MinorIdentity(numDims, numResults int) Map {
	results := make([]Expr, numResults)
	for i := range results {
		results[i] = Dim(numDims - numResults + i)
	}
	return Map{NumDims: numDims, Results: results}
}

// PermutationMap returns the map (d0, ..., dn-1) -> (d_perm[0], ..., d_perm[n-1]).
func PermutationMap(perm []int) Map {
	results := make([]Expr, len(perm))
	for i, p := range perm {
		results[i] = Dim(p)
	}
	return Map{NumDims: len(perm), Results: results}
}

// NumResults returns the number of results of the map.
func (m Map) NumResults() int {
	return len(m.Results)
}

// DimPosition returns the position of a result if it is a pure dimension.
func (m Map) DimPosition(i int) (int, bool) {
	d, ok := m.Results[i].(DimExpr)
	return d.Pos, ok
}

// IsProjectedPermutation returns true if all results are distinct dimensions.
func (m Map) IsProjectedPermutation() bool {
	seen := make([]bool, m.NumDims)
	for i := range m.Results {
		pos, ok := m.DimPosition(i)
		if !ok || pos >= m.NumDims || seen[pos] {
			return false
		}
		seen[pos] = true
	}
	return true
}

// IsPermutation returns true if the map is a projected permutation of all its dimensions.
func (m Map) IsPermutation() bool {
	return m.NumResults() == m.NumDims && m.IsProjectedPermutation()
}

// IsMinorIdentity returns true if the map selects the innermost dimensions in order.
func (m Map) IsMinorIdentity() bool {
	if m.NumResults() > m.NumDims {
		return false
	}
	return m.Equal(MinorIdentity(m.NumDims, m.NumResults()))
}

// IsIdentity returns true if the map is the identity.
func (m Map) IsIdentity() bool {
	return m.NumResults() == m.NumDims && m.IsMinorIdentity()
}

// Compose returns the map m(other(x)).
func (m Map) Compose(other Map) (Map, error) {
	if other.NumResults() != m.NumDims {
		return Map{}, errors.Errorf("cannot compose %s with %s: %d results for %d dimensions", m, other, other.NumResults(), m.NumDims)
	}
	results := make([]Expr, len(m.Results))
	for i, r := range m.Results {
		results[i] = r.substitute(other.Results)
	}
	return Map{NumDims: other.NumDims, Results: results}, nil
}

// InversePermutation returns the inverse of a permutation map.
func InversePermutation(m Map) (Map, error) {
	if !m.IsPermutation() {
		return Map{}, errors.Errorf("%s is not a permutation", m)
	}
	results := make([]Expr, m.NumDims)
	for i := range m.Results {
		pos, _ := m.DimPosition(i)
		results[pos] = Dim(i)
	}
	return Map{NumDims: m.NumDims, Results: results}, nil
}

// Eval computes the results of the map given the values of the dimensions.
func (m Map) Eval(indices []int) []int {
	out := make([]int, len(m.Results))
	for i, r := range m.Results {
		out[i] = r.eval(indices)
	}
	return out
}

// Equal returns true if two maps are structurally equal.
func (m Map) Equal(o Map) bool {
	return m.String() == o.String()
}

// String representation of the map.
func (m Map) String() string {
	dims := make([]string, m.NumDims)
	for i := range dims {
		dims[i] = fmt.Sprintf("d%d", i)
	}
	results := stringseq.JoinStringer(slices.Values(m.Results), ", ")
	return fmt.Sprintf("(%s) -> (%s)", strings.Join(dims, ", "), results)
}

// IsPermutationVector returns true if perm is a permutation of [0, len(perm)).
func IsPermutationVector(perm []int) bool {
	seen := make([]bool, len(perm))
	for _, p := range perm {
		if p < 0 || p >= len(perm) || seen[p] {
			return false
		}
		seen[p] = true
	}
	return true
}

// InversePermutationVector returns inv such that inv[perm[i]] = i.
func InversePermutationVector(perm []int) []int {
	inv := make([]int, len(perm))
	for i, p := range perm {
		inv[p] = i
	}
	return inv
}

// Clone returns a copy of the map.
func (m Map) Clone() Map {
	return Map{NumDims: m.NumDims, Results: slices.Clone(m.Results)}
}
