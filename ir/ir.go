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

// Package ir is an in-memory representation of programs made of
// operations in static single assignment form.
//
// A function owns a body block. A block owns an ordered list of operations.
// An operation takes values as operands, defines values as results and can
// own a region made of a single block. Operations are created detached
// and inserted in a block with a Builder.
package ir

import (
	"slices"
	"strings"
)

// Kind is the dialect-qualified name of an operation, for example linalg.matmul.
type Kind string

// Dialect returns the name of the dialect of the kind.
func (k Kind) Dialect() string {
	dialect, _, _ := strings.Cut(string(k), ".")
	return dialect
}

// Value is an SSA value. It is either the result of an operation or the argument of a block.
type Value struct {
	typ   Type
	def   *Op
	block *Block
	index int
	name  string
}

// Type of the value.
func (v *Value) Type() Type {
	return v.typ
}

// DefiningOp returns the operation defining the value or nil if the value is a block argument.
func (v *Value) DefiningOp() *Op {
	return v.def
}

// Owner returns the block of which the value is an argument, nil if the value is an op result.
func (v *Value) Owner() *Block {
	return v.block
}

// Index returns the index of the value in the results of its defining op
// or in the arguments of its block.
func (v *Value) Index() int {
	return v.index
}

// IsBlockArgument returns true if the value is defined by a block.
func (v *Value) IsBlockArgument() bool {
	return v.block != nil
}

// Name returns the name hint of the value.
func (v *Value) Name() string {
	return v.name
}

// SetName sets a name hint used when printing the value.
func (v *Value) SetName(name string) *Value {
	v.name = name
	return v
}

// Op is an operation.
type Op struct {
	kind     Kind
	operands []*Value
	results  []*Value
	attrs    *Attributes
	region   *Region
	block    *Block
}

// NewOp returns a new detached operation.
// The operation takes ownership of the attributes and of the region.
func NewOp(kind Kind, operands []*Value, resultTypes []Type, attrs *Attributes, region *Region) *Op {
	if attrs == nil {
		attrs = NewAttributes()
	}
	op := &Op{
		kind:     kind,
		operands: slices.Clone(operands),
		attrs:    attrs,
	}
	op.results = make([]*Value, len(resultTypes))
	for i, tp := range resultTypes {
		op.results[i] = &Value{typ: tp, def: op, index: i}
	}
	if region != nil {
		op.setRegion(region)
	}
	return op
}

// Kind returns the kind of the operation.
func (op *Op) Kind() Kind {
	return op.kind
}

// Operands returns a copy of the operands of the operation.
func (op *Op) Operands() []*Value {
	return slices.Clone(op.operands)
}

// Operand returns the ith operand.
func (op *Op) Operand(i int) *Value {
	return op.operands[i]
}

// NumOperands returns the number of operands.
func (op *Op) NumOperands() int {
	return len(op.operands)
}

// Results returns a copy of the results of the operation.
func (op *Op) Results() []*Value {
	return slices.Clone(op.results)
}

// Result returns the ith result.
func (op *Op) Result(i int) *Value {
	return op.results[i]
}

// NumResults returns the number of results.
func (op *Op) NumResults() int {
	return len(op.results)
}

// Attrs returns the attributes of the operation.
// The attributes must not be modified once the operation has been inserted.
func (op *Op) Attrs() *Attributes {
	return op.attrs
}

// Region returns the region of the operation or nil.
func (op *Op) Region() *Region {
	return op.region
}

// Block returns the block in which the operation has been inserted.
func (op *Op) Block() *Block {
	return op.block
}

// IsAlive returns true if the operation is in a block.
func (op *Op) IsAlive() bool {
	return op.block != nil
}

// ParentOp returns the operation owning the region of the block of the operation.
func (op *Op) ParentOp() *Op {
	if op.block == nil || op.block.region == nil {
		return nil
	}
	return op.block.region.owner
}

// Func returns the function in which the operation has been inserted.
func (op *Op) Func() *Func {
	for cur := op; cur != nil; cur = cur.ParentOp() {
		if cur.block != nil && cur.block.fn != nil {
			return cur.block.fn
		}
	}
	return nil
}

// Uses returns true if the value is an operand of the operation.
func (op *Op) Uses(v *Value) bool {
	return slices.Contains(op.operands, v)
}

func (op *Op) setRegion(r *Region) {
	op.region = r
	if r != nil {
		r.owner = op
	}
}

// TakeRegion moves the region of another operation to this operation.
// The source operation is left without a region.
func (op *Op) TakeRegion(src *Op) {
	r := src.region
	src.region = nil
	op.setRegion(r)
}

// Region is a list of blocks owned by an operation.
// Only single block regions are supported.
type Region struct {
	block *Block
	owner *Op
}

// NewRegion returns a new region with a single block.
func NewRegion(argTypes ...Type) *Region {
	r := &Region{}
	r.block = NewBlock(argTypes...)
	r.block.region = r
	return r
}

// Block returns the block of the region.
func (r *Region) Block() *Block {
	return r.block
}

// Owner returns the operation owning the region.
func (r *Region) Owner() *Op {
	return r.owner
}

// Block is a list of operations.
type Block struct {
	args   []*Value
	ops    []*Op
	region *Region
	fn     *Func
}

// NewBlock returns a new block given the types of its arguments.
func NewBlock(argTypes ...Type) *Block {
	b := &Block{}
	b.args = make([]*Value, len(argTypes))
	for i, tp := range argTypes {
		b.args[i] = &Value{typ: tp, block: b, index: i}
	}
	return b
}

// Arguments returns the arguments of the block.
func (b *Block) Arguments() []*Value {
	return slices.Clone(b.args)
}

// Argument returns the ith argument of the block.
func (b *Block) Argument(i int) *Value {
	return b.args[i]
}

// NumArguments returns the number of arguments.
func (b *Block) NumArguments() int {
	return len(b.args)
}

// Ops returns the operations of the block.
func (b *Block) Ops() []*Op {
	return slices.Clone(b.ops)
}

// Terminator returns the last operation of the block or nil if the block is empty.
func (b *Block) Terminator() *Op {
	if len(b.ops) == 0 {
		return nil
	}
	return b.ops[len(b.ops)-1]
}

// ParentOp returns the operation owning the block.
func (b *Block) ParentOp() *Op {
	if b.region == nil {
		return nil
	}
	return b.region.owner
}

func (b *Block) indexOf(op *Op) int {
	return slices.Index(b.ops, op)
}

// Append operations at the end of the block.
func (b *Block) Append(ops ...*Op) {
	for _, op := range ops {
		op.block = b
	}
	b.ops = append(b.ops, ops...)
}

// InsertBefore inserts operations before an anchor.
// The operations are appended if the anchor is nil or not in the block.
func (b *Block) InsertBefore(anchor *Op, ops ...*Op) {
	pos := len(b.ops)
	if anchor != nil {
		if i := b.indexOf(anchor); i >= 0 {
			pos = i
		}
	}
	for _, op := range ops {
		op.block = b
	}
	b.ops = slices.Insert(b.ops, pos, ops...)
}

// Erase removes an operation from the block.
func (b *Block) Erase(op *Op) {
	i := b.indexOf(op)
	if i < 0 {
		return
	}
	b.ops = slices.Delete(b.ops, i, i+1)
	op.block = nil
}

// Walk the operations of the block in program order, including nested operations.
// The walk stops when f returns false.
func (b *Block) Walk(f func(*Op) bool) bool {
	for _, op := range slices.Clone(b.ops) {
		if !f(op) {
			return false
		}
		if op.region == nil {
			continue
		}
		if !op.region.block.Walk(f) {
			return false
		}
	}
	return true
}
