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

// Package memref defines operations on buffers.
package memref

import "github.com/gx-org/tpp/ir"

// Kinds of the buffer operations.
const (
	AllocKind   ir.Kind = "memref.alloc"
	CopyKind    ir.Kind = "memref.copy"
	SubviewKind ir.Kind = "memref.subview"
)

// Attribute names.
const (
	OffsetsAttr = "offsets"
	SizesAttr   = "sizes"
	StridesAttr = "strides"
)

// Alloc inserts the allocation of a buffer.
func Alloc(b ir.Builder, tp ir.Type) *ir.Value {
	return b.Insert(ir.NewOp(AllocKind, nil, []ir.Type{tp.WithKind(ir.MemRefType)}, nil, nil)).Result(0)
}

// Copy inserts a copy of a buffer into another.
func Copy(b ir.Builder, src, dst *ir.Value) *ir.Op {
	return b.Insert(ir.NewOp(CopyKind, []*ir.Value{src, dst}, nil, nil, nil))
}

// Subview inserts a view on a subset of a buffer.
func Subview(b ir.Builder, src *ir.Value, offsets, sizes, strides []int) *ir.Value {
	attrs := ir.NewAttributes().
		Set(OffsetsAttr, offsets).
		Set(SizesAttr, sizes).
		Set(StridesAttr, strides)
	tp := src.Type().WithDims(sizes)
	return b.Insert(ir.NewOp(SubviewKind, []*ir.Value{src}, []ir.Type{tp}, attrs, nil)).Result(0)
}
