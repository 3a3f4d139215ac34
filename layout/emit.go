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

package layout

import (
	"slices"

	"github.com/gx-org/tpp/dialect/linalgx"
	"github.com/gx-org/tpp/dialect/memref"
	"github.com/gx-org/tpp/dialect/tensor"
	"github.com/gx-org/tpp/ir"
	"github.com/pkg/errors"
)

// Of returns the descriptor of a pack or unpack operation.
func Of(op *ir.Op) Descriptor {
	return Descriptor{
		InnerDimsPos:  linalgx.InnerDimsPos(op),
		OuterDimsPerm: linalgx.OuterDimsPerm(op),
		Tiles:         linalgx.InnerTiles(op),
	}
}

func alloc(b ir.Builder, tp ir.Type) *ir.Value {
	if tp.IsTensor() {
		return tensor.Empty(b, tp)
	}
	return memref.Alloc(b, tp)
}

// converted returns the value holding the result of a layout conversion.
// Buffers are converted in place.
func converted(op *ir.Op) *ir.Value {
	if op.NumResults() > 0 {
		return op.Result(0)
	}
	return linalgx.Dest(op)
}

// EmitPack inserts the allocation of a blocked value and the packing of v into it.
// All tiles must divide the axes they tile.
func EmitPack(b ir.Builder, v *ir.Value, d Descriptor) (*ir.Value, error) {
	tp := v.Type()
	if !tp.IsShaped() {
		return nil, errors.Errorf("cannot pack a value of type %s", tp)
	}
	if !d.Divides(tp.Dims()) {
		return nil, errors.Errorf("layout %s does not divide %s", d, tp)
	}
	packed, err := d.PackedType(tp)
	if err != nil {
		return nil, err
	}
	dest := alloc(b, packed)
	op := b.Insert(linalgx.NewPack(v, dest, d.InnerDimsPos, d.OuterDimsPerm, d.Tiles))
	return converted(op), nil
}

// EmitUnpack inserts the unpacking of blocked into dest.
func EmitUnpack(b ir.Builder, blocked, dest *ir.Value, d Descriptor) (*ir.Value, error) {
	destType := dest.Type()
	if !d.Divides(destType.Dims()) {
		return nil, errors.Errorf("layout %s does not divide %s", d, destType)
	}
	want, err := d.PackedShape(destType.Dims())
	if err != nil {
		return nil, err
	}
	if got := blocked.Type().Dims(); !slices.Equal(got, want) {
		return nil, errors.Errorf("cannot unpack %s into %s: want blocked shape %v", blocked.Type(), destType, want)
	}
	op := b.Insert(linalgx.NewUnpack(blocked, dest, d.InnerDimsPos, d.OuterDimsPerm, d.Tiles))
	return converted(op), nil
}
