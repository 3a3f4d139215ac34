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

package ir

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/backend/shape"
)

// DynamicSize marks an axis for which the length is not known statically.
const DynamicSize = -1

// TypeKind is the kind of a type.
type TypeKind int

const (
	// InvalidType is the zero value of a type kind.
	InvalidType TypeKind = iota
	// ScalarType is a single element (f32, i64, ...).
	ScalarType
	// IndexType is an integer used to index arrays.
	IndexType
	// TensorType is an immutable array (value semantics).
	TensorType
	// MemRefType is a mutable memory buffer (buffer semantics).
	MemRefType
)

// Type of a value.
type Type struct {
	Kind  TypeKind
	Shape shape.Shape
}

// Scalar returns a scalar type given its element data type.
func Scalar(dt dtype.DataType) Type {
	return Type{Kind: ScalarType, Shape: shape.Shape{DType: dt}}
}

// Index returns the index type.
func Index() Type {
	return Type{Kind: IndexType, Shape: shape.Shape{DType: dtype.Int64}}
}

// Tensor returns a ranked tensor type.
func Tensor(dt dtype.DataType, dims ...int) Type {
	return Type{Kind: TensorType, Shape: shape.Shape{DType: dt, AxisLengths: slices.Clone(dims)}}
}

// MemRef returns a ranked buffer type.
func MemRef(dt dtype.DataType, dims ...int) Type {
	return Type{Kind: MemRefType, Shape: shape.Shape{DType: dt, AxisLengths: slices.Clone(dims)}}
}

// IsShaped returns true if the type is a tensor or a buffer.
func (t Type) IsShaped() bool {
	return t.Kind == TensorType || t.Kind == MemRefType
}

// IsTensor returns true for value semantics arrays.
func (t Type) IsTensor() bool {
	return t.Kind == TensorType
}

// IsMemRef returns true for buffer semantics arrays.
func (t Type) IsMemRef() bool {
	return t.Kind == MemRefType
}

// ElementType returns the data type of the elements.
func (t Type) ElementType() dtype.DataType {
	return t.Shape.DType
}

// Rank returns the number of axes of the type.
// Scalars have a rank of 0.
func (t Type) Rank() int {
	return len(t.Shape.AxisLengths)
}

// Dims returns a copy of the axis lengths.
func (t Type) Dims() []int {
	return slices.Clone(t.Shape.AxisLengths)
}

// Dim returns the length of an axis.
func (t Type) Dim(i int) int {
	return t.Shape.AxisLengths[i]
}

// HasStaticShape returns true if all axis lengths are known.
func (t Type) HasStaticShape() bool {
	return !slices.Contains(t.Shape.AxisLengths, DynamicSize)
}

// NumElements returns the number of elements of a static type.
func (t Type) NumElements() int {
	n := 1
	for _, d := range t.Shape.AxisLengths {
		n *= d
	}
	return n
}

// WithDims returns the same kind of type with the same element type but different axis lengths.
func (t Type) WithDims(dims []int) Type {
	return Type{Kind: t.Kind, Shape: shape.Shape{DType: t.Shape.DType, AxisLengths: slices.Clone(dims)}}
}

// WithKind returns a type with the same shape but a different kind.
func (t Type) WithKind(kind TypeKind) Type {
	return Type{Kind: kind, Shape: shape.Shape{DType: t.Shape.DType, AxisLengths: slices.Clone(t.Shape.AxisLengths)}}
}

// Equal returns true if two types are the same.
func (t Type) Equal(o Type) bool {
	return t.Kind == o.Kind && t.Shape.DType == o.Shape.DType && slices.Equal(t.Shape.AxisLengths, o.Shape.AxisLengths)
}

// DTypeName returns the short name of a data type as printed in the IR.
func DTypeName(dt dtype.DataType) string {
	switch dt {
	case dtype.Bool:
		return "i1"
	case dtype.Int32:
		return "i32"
	case dtype.Int64:
		return "i64"
	case dtype.Uint32:
		return "ui32"
	case dtype.Uint64:
		return "ui64"
	case dtype.Bfloat16:
		return "bf16"
	case dtype.Float32:
		return "f32"
	case dtype.Float64:
		return "f64"
	}
	return dt.String()
}

func (t Type) dimsString() string {
	var s strings.Builder
	for _, d := range t.Shape.AxisLengths {
		if d == DynamicSize {
			s.WriteString("?x")
			continue
		}
		fmt.Fprintf(&s, "%dx", d)
	}
	s.WriteString(DTypeName(t.Shape.DType))
	return s.String()
}

// String representation of the type.
func (t Type) String() string {
	switch t.Kind {
	case ScalarType:
		return DTypeName(t.Shape.DType)
	case IndexType:
		return "index"
	case TensorType:
		return "tensor<" + t.dimsString() + ">"
	case MemRefType:
		return "memref<" + t.dimsString() + ">"
	}
	return "invalid"
}
