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

// Package linalgx defines the operations converting tensors and buffers
// between flat and blocked layouts.
package linalgx

import "github.com/gx-org/tpp/ir"

// Kinds of the layout operations.
const (
	PackKind   ir.Kind = "linalgx.pack"
	UnpackKind ir.Kind = "linalgx.unpack"
)

// Attribute names.
const (
	InnerDimsPosAttr  = "inner_dims_pos"
	OuterDimsPermAttr = "outer_dims_perm"
	InnerTilesAttr    = "inner_tiles"
)

func newOp(kind ir.Kind, source, dest *ir.Value, innerDimsPos, outerDimsPerm, tiles []int) *ir.Op {
	attrs := ir.NewAttributes().Set(InnerDimsPosAttr, innerDimsPos)
	if len(outerDimsPerm) > 0 {
		attrs.Set(OuterDimsPermAttr, outerDimsPerm)
	}
	attrs.Set(InnerTilesAttr, tiles)
	var results []ir.Type
	if dest.Type().IsTensor() {
		results = []ir.Type{dest.Type()}
	}
	return ir.NewOp(kind, []*ir.Value{source, dest}, results, attrs, nil)
}

// NewPack returns a detached operation packing source into the blocked dest.
func NewPack(source, dest *ir.Value, innerDimsPos, outerDimsPerm, tiles []int) *ir.Op {
	return newOp(PackKind, source, dest, innerDimsPos, outerDimsPerm, tiles)
}

// NewUnpack returns a detached operation unpacking the blocked source into dest.
func NewUnpack(source, dest *ir.Value, innerDimsPos, outerDimsPerm, tiles []int) *ir.Op {
	return newOp(UnpackKind, source, dest, innerDimsPos, outerDimsPerm, tiles)
}

// IsPack returns true if op is a pack operation.
func IsPack(op *ir.Op) bool {
	return op != nil && op.Kind() == PackKind
}

// IsUnpack returns true if op is an unpack operation.
func IsUnpack(op *ir.Op) bool {
	return op != nil && op.Kind() == UnpackKind
}

// Source returns the value being converted.
func Source(op *ir.Op) *ir.Value {
	return op.Operand(0)
}

// Dest returns the destination of the conversion.
func Dest(op *ir.Op) *ir.Value {
	return op.Operand(1)
}

// InnerDimsPos returns the axes of the flat layout being tiled.
func InnerDimsPos(op *ir.Op) []int {
	pos, _ := op.Attrs().Ints(InnerDimsPosAttr)
	return pos
}

// OuterDimsPerm returns the permutation of the outer axes or nil.
func OuterDimsPerm(op *ir.Op) []int {
	perm, _ := op.Attrs().Ints(OuterDimsPermAttr)
	return perm
}

// InnerTiles returns the size of the tiles.
func InnerTiles(op *ir.Op) []int {
	tiles, _ := op.Attrs().Ints(InnerTilesAttr)
	return tiles
}
