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

package match

import (
	"slices"

	"github.com/gx-org/tpp/dialect/arith"
	"github.com/gx-org/tpp/dialect/linalg"
	"github.com/gx-org/tpp/dialect/memref"
	"github.com/gx-org/tpp/dialect/tensor"
	"github.com/gx-org/tpp/ir"
)

// zeroWalk walks the producers of a value looking for zeros.
// Buffers are written in place: the producer of a buffer is the
// last operation writing into it before the operation reading it.
type zeroWalk struct {
	visited map[*ir.Op]bool
	stack   []*ir.Op
}

func newZeroWalk() *zeroWalk {
	return &zeroWalk{visited: make(map[*ir.Op]bool)}
}

func (w *zeroWalk) push(op *ir.Op) {
	if op == nil || w.visited[op] {
		return
	}
	w.visited[op] = true
	w.stack = append(w.stack, op)
}

// readsOnly returns true if op is known not to write into v.
func readsOnly(op *ir.Op, v *ir.Value) bool {
	switch {
	case linalg.IsStructured(op):
		return !slices.Contains(linalg.Outputs(op), v)
	case op.Kind() == memref.CopyKind:
		return op.Operand(1) != v
	case op.Kind() == memref.SubviewKind, op.Kind() == tensor.CastKind, op.Kind() == tensor.ExtractSliceKind:
		return true
	}
	return false
}

// viewSource returns the buffer a subview is taken from, nil if v is not a subview.
func viewSource(v *ir.Value) *ir.Value {
	def := v.DefiningOp()
	if def == nil || def.Kind() != memref.SubviewKind {
		return nil
	}
	return def.Operand(0)
}

// lastWriter returns the last operation before user writing into the buffer v.
// A write into v or into a buffer of which v is a view covers v. A write into
// any other view of these buffers may cover v only in part: partial is then
// true and the content of v is unknown.
func lastWriter(v *ir.Value, user *ir.Op) (writer *ir.Op, partial bool) {
	fn := user.Func()
	if fn == nil {
		return nil, false
	}
	covering := make(map[*ir.Value]bool)
	for cur := v; cur != nil; cur = viewSource(cur) {
		covering[cur] = true
	}
	overlapping := make(map[*ir.Value]bool)
	fn.Walk(func(op *ir.Op) bool {
		if op == user {
			return false
		}
		if op.Kind() == memref.SubviewKind {
			src, view := op.Operand(0), op.Result(0)
			if (covering[src] || overlapping[src]) && !covering[view] {
				overlapping[view] = true
			}
			return true
		}
		for _, operand := range op.Operands() {
			if readsOnly(op, operand) {
				continue
			}
			switch {
			case covering[operand]:
				writer, partial = op, false
			case overlapping[operand]:
				writer, partial = op, true
			}
		}
		return true
	})
	return writer, partial
}

// pushBefore pushes the producer of v as read by user.
// Tensors are produced by their defining operation. The content of a buffer is
// set by the last operation writing into it or, when there is none, by its
// defining operation. Only the latest write is considered: a buffer filled with
// zeros and overwritten later is not a zero producer.
func (w *zeroWalk) pushBefore(v *ir.Value, user *ir.Op) {
	if !v.Type().IsMemRef() {
		w.push(v.DefiningOp())
		return
	}
	writer, partial := lastWriter(v, user)
	switch {
	case partial:
	case writer != nil:
		w.push(writer)
	default:
		w.push(v.DefiningOp())
	}
}

func (w *zeroWalk) run() bool {
	for len(w.stack) > 0 {
		op := w.stack[len(w.stack)-1]
		w.stack = w.stack[:len(w.stack)-1]
		switch op.Kind() {
		case arith.ConstantKind:
			if val, ok := arith.ConstantValue(op); ok && val == 0 {
				return true
			}
		case linalg.FillKind:
			ins := linalg.Inputs(op)
			if len(ins) == 1 && arith.IsZeroConstant(ins[0]) {
				return true
			}
		case linalg.CopyKind:
			ins := linalg.Inputs(op)
			if len(ins) == 1 {
				w.pushBefore(ins[0], op)
			}
		case memref.CopyKind, memref.SubviewKind, tensor.CastKind, tensor.ExtractSliceKind:
			w.pushBefore(op.Operand(0), op)
		}
	}
	return false
}

// IsZeroProducer returns true if v is produced by an operation known to
// fill it with zeros.
func IsZeroProducer(v *ir.Value) bool {
	w := newZeroWalk()
	w.push(v.DefiningOp())
	return w.run()
}

// IsZeroBefore returns true if v is known to hold zeros when read by user.
func IsZeroBefore(v *ir.Value, user *ir.Op) bool {
	w := newZeroWalk()
	w.pushBefore(v, user)
	return w.run()
}
