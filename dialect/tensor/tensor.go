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

// Package tensor defines operations creating and reshaping tensors.
package tensor

import (
	"github.com/gx-org/tpp/ir"
	"github.com/pkg/errors"
)

// Kinds of the tensor operations.
const (
	EmptyKind        ir.Kind = "tensor.empty"
	PadKind          ir.Kind = "tensor.pad"
	CastKind         ir.Kind = "tensor.cast"
	ExtractSliceKind ir.Kind = "tensor.extract_slice"
)

// Attribute names.
const (
	LowAttr     = "low"
	HighAttr    = "high"
	OffsetsAttr = "offsets"
	SizesAttr   = "sizes"
	StridesAttr = "strides"
)

// Empty inserts a tensor with undefined content.
func Empty(b ir.Builder, tp ir.Type) *ir.Value {
	return b.Insert(ir.NewOp(EmptyKind, nil, []ir.Type{tp.WithKind(ir.TensorType)}, nil, nil)).Result(0)
}

// PaddedType returns the type of a tensor padded with low and high elements on each axis.
func PaddedType(tp ir.Type, low, high []int) (ir.Type, error) {
	if len(low) != tp.Rank() || len(high) != tp.Rank() {
		return ir.Type{}, errors.Errorf("cannot pad %s: got %d low and %d high paddings for a rank of %d", tp, len(low), len(high), tp.Rank())
	}
	dims := tp.Dims()
	for i := range dims {
		if dims[i] == ir.DynamicSize {
			continue
		}
		dims[i] += low[i] + high[i]
	}
	return tp.WithDims(dims), nil
}

// NewPad returns a detached pad operation.
func NewPad(source, padValue *ir.Value, low, high []int) (*ir.Op, error) {
	tp, err := PaddedType(source.Type(), low, high)
	if err != nil {
		return nil, err
	}
	attrs := ir.NewAttributes().Set(LowAttr, low).Set(HighAttr, high)
	return ir.NewOp(PadKind, []*ir.Value{source, padValue}, []ir.Type{tp}, attrs, nil), nil
}

// Pad inserts a pad operation.
func Pad(b ir.Builder, source, padValue *ir.Value, low, high []int) (*ir.Value, error) {
	op, err := NewPad(source, padValue, low, high)
	if err != nil {
		return nil, err
	}
	return b.Insert(op).Result(0), nil
}

// PadSource returns the tensor being padded.
func PadSource(op *ir.Op) *ir.Value {
	return op.Operand(0)
}

// PadValue returns the scalar used for padding.
func PadValue(op *ir.Op) *ir.Value {
	return op.Operand(1)
}

// PadLow returns the number of elements added before each axis.
func PadLow(op *ir.Op) []int {
	low, _ := op.Attrs().Ints(LowAttr)
	return low
}

// PadHigh returns the number of elements added after each axis.
func PadHigh(op *ir.Op) []int {
	high, _ := op.Attrs().Ints(HighAttr)
	return high
}

// PaddedDims returns the axes with a non-zero padding.
func PaddedDims(op *ir.Op) []int {
	low, high := PadLow(op), PadHigh(op)
	var dims []int
	for i := range low {
		if low[i] != 0 || high[i] != 0 {
			dims = append(dims, i)
		}
	}
	return dims
}

// Cast inserts a cast of a tensor to a compatible type.
func Cast(b ir.Builder, v *ir.Value, tp ir.Type) *ir.Value {
	return b.Insert(ir.NewOp(CastKind, []*ir.Value{v}, []ir.Type{tp}, nil, nil)).Result(0)
}

// ExtractSlice inserts an operation extracting a slice of a tensor.
func ExtractSlice(b ir.Builder, v *ir.Value, offsets, sizes, strides []int) *ir.Value {
	attrs := ir.NewAttributes().
		Set(OffsetsAttr, offsets).
		Set(SizesAttr, sizes).
		Set(StridesAttr, strides)
	tp := v.Type().WithDims(sizes)
	return b.Insert(ir.NewOp(ExtractSliceKind, []*ir.Value{v}, []ir.Type{tp}, attrs, nil)).Result(0)
}
