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

// Package rewrite applies rewrite patterns to a function until a fixed point is reached.
package rewrite

import (
	"github.com/gx-org/tpp/ir"
	"github.com/gx-org/tpp/ir/fmterr"
)

// Pattern rewrites operations of a given kind.
type Pattern interface {
	// Name of the pattern, used in declines and logs.
	Name() string
	// Root is the kind of the operations to which the pattern applies.
	// An empty kind matches all operations.
	Root() ir.Kind
	// MatchAndRewrite stages a rewrite of op in the rewriter.
	// It returns a decline created by Rewriter.Declinef if the pattern does not apply.
	// Any other error aborts the rewrite of the function.
	MatchAndRewrite(rw *Rewriter, op *ir.Op) error
}

type (
	replacement struct {
		op   *ir.Op
		vals []*ir.Value
	}

	regionMove struct {
		from, to *ir.Op
	}
)

// Rewriter stages the changes made by a pattern to a function.
// Nothing is visible in the function until the driver commits the changes.
// Declining a match discards all the staged changes.
type Rewriter struct {
	fn      *ir.Func
	pattern string
	anchor  *ir.Op

	created      []*ir.Op
	replacements []replacement
	moves        []regionMove
	erased       []*ir.Op
}

var _ ir.Builder = (*Rewriter)(nil)

func newRewriter(fn *ir.Func, pattern string, anchor *ir.Op) *Rewriter {
	return &Rewriter{fn: fn, pattern: pattern, anchor: anchor}
}

// Func returns the function being rewritten.
func (rw *Rewriter) Func() *ir.Func {
	return rw.fn
}

// Insert stages an operation to be inserted before the matched operation.
func (rw *Rewriter) Insert(op *ir.Op) *ir.Op {
	rw.created = append(rw.created, op)
	return op
}

// ReplaceOp stages the replacement of all the results of op by values.
// op is erased when the changes are committed.
func (rw *Rewriter) ReplaceOp(op *ir.Op, vals ...*ir.Value) error {
	if len(vals) != op.NumResults() {
		return fmterr.Internalf(op, "cannot replace %d results with %d values", op.NumResults(), len(vals))
	}
	for i, v := range vals {
		if v == nil {
			return fmterr.Internalf(op, "cannot replace result %d with a nil value", i)
		}
		if want := op.Result(i).Type(); !v.Type().Equal(want) {
			return fmterr.Internalf(op, "cannot replace result %d of type %s with a value of type %s", i, want, v.Type())
		}
	}
	rw.replacements = append(rw.replacements, replacement{op: op, vals: vals})
	return nil
}

// ReplaceOpWithNew stages a new operation and the replacement of op by its results.
func (rw *Rewriter) ReplaceOpWithNew(op *ir.Op, newOp *ir.Op) (*ir.Op, error) {
	rw.Insert(newOp)
	if err := rw.ReplaceOp(op, newOp.Results()...); err != nil {
		return nil, err
	}
	return newOp, nil
}

// EraseOp stages the removal of an operation without results or with unused results.
func (rw *Rewriter) EraseOp(op *ir.Op) {
	rw.erased = append(rw.erased, op)
}

// MoveRegion stages moving the region of an operation to another.
// The body is moved as is without checking the values it refers to.
func (rw *Rewriter) MoveRegion(from, to *ir.Op) {
	rw.moves = append(rw.moves, regionMove{from: from, to: to})
}

// Declinef returns a decline for the current pattern.
func (rw *Rewriter) Declinef(op *ir.Op, format string, a ...any) error {
	return fmterr.Declinef(rw.pattern, op, format, a...)
}

func (rw *Rewriter) hasChanges() bool {
	return len(rw.created)+len(rw.replacements)+len(rw.moves)+len(rw.erased) > 0
}

func (rw *Rewriter) commit() error {
	block := rw.anchor.Block()
	if block == nil {
		return fmterr.Internalf(rw.anchor, "cannot commit a rewrite anchored on a detached operation")
	}
	block.InsertBefore(rw.anchor, rw.created...)
	for _, mv := range rw.moves {
		if mv.from.Region() == nil {
			return fmterr.Internalf(mv.from, "no region to move")
		}
		mv.to.TakeRegion(mv.from)
	}
	for _, repl := range rw.replacements {
		for i, v := range repl.vals {
			rw.fn.ReplaceAllUses(repl.op.Result(i), v)
		}
		if parent := repl.op.Block(); parent != nil {
			parent.Erase(repl.op)
		}
	}
	for _, op := range rw.erased {
		for _, res := range op.Results() {
			if rw.fn.HasUses(res) {
				return fmterr.Internalf(op, "cannot erase an operation with uses")
			}
		}
		if parent := op.Block(); parent != nil {
			parent.Erase(op)
		}
	}
	return nil
}
