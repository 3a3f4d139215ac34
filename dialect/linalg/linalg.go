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

// Package linalg defines structured operations on tensors and buffers.
//
// The operands of a structured operation are its inputs followed by its
// outputs (also called inits). The number of inputs is stored in the
// num_inputs attribute. With tensor semantics, the operation returns one
// result per output. With buffer semantics, outputs are written in place
// and the operation has no result.
package linalg

import (
	"slices"

	"github.com/gx-org/tpp/dialect/arith"
	"github.com/gx-org/tpp/ir"
	"github.com/gx-org/tpp/ir/affine"
)

// Kinds of the structured operations.
const (
	MatmulKind            ir.Kind = "linalg.matmul"
	BatchReduceMatmulKind ir.Kind = "linalg.batch_reduce_matmul"
	GenericKind           ir.Kind = "linalg.generic"
	FillKind              ir.Kind = "linalg.fill"
	CopyKind              ir.Kind = "linalg.copy"
	Conv2DNchwFchwKind    ir.Kind = "linalg.conv_2d_nchw_fchw"
	Conv2DNhwcHwcfKind    ir.Kind = "linalg.conv_2d_nhwc_hwcf"
	YieldKind             ir.Kind = "linalg.yield"
)

// Attribute names.
const (
	NumInputsAttr     = "num_inputs"
	IndexingMapsAttr  = "indexing_maps"
	IteratorTypesAttr = "iterator_types"
	LibraryCallAttr   = "library_call"
	StridesAttr       = "strides"
	DilationsAttr     = "dilations"
)

var structured = map[ir.Kind]bool{
	MatmulKind:            true,
	BatchReduceMatmulKind: true,
	GenericKind:           true,
	FillKind:              true,
	CopyKind:              true,
	Conv2DNchwFchwKind:    true,
	Conv2DNhwcHwcfKind:    true,
}

// IsStructured returns true if the operation is a structured operation.
func IsStructured(op *ir.Op) bool {
	return structured[op.Kind()]
}

// NumInputs returns the number of inputs of a structured operation.
func NumInputs(op *ir.Op) int {
	n, _ := op.Attrs().Int(NumInputsAttr)
	return n
}

// Inputs returns the inputs of a structured operation.
func Inputs(op *ir.Op) []*ir.Value {
	return op.Operands()[:NumInputs(op)]
}

// Outputs returns the outputs of a structured operation.
func Outputs(op *ir.Op) []*ir.Value {
	return op.Operands()[NumInputs(op):]
}

// HasTensorSemantics returns true if all shaped operands are tensors.
func HasTensorSemantics(op *ir.Op) bool {
	for _, v := range op.Operands() {
		if v.Type().IsMemRef() {
			return false
		}
	}
	return true
}

// HasBufferSemantics returns true if all shaped operands are buffers.
func HasBufferSemantics(op *ir.Op) bool {
	for _, v := range op.Operands() {
		if v.Type().IsTensor() {
			return false
		}
	}
	return true
}

// HasDynamicShape returns true if one of the shaped operands has an unknown axis length.
func HasDynamicShape(op *ir.Op) bool {
	for _, v := range op.Operands() {
		if v.Type().IsShaped() && !v.Type().HasStaticShape() {
			return true
		}
	}
	return false
}

// resultTypes returns the types of the tensor outputs.
func resultTypes(outs []*ir.Value) []ir.Type {
	var types []ir.Type
	for _, out := range outs {
		if out.Type().IsTensor() {
			types = append(types, out.Type())
		}
	}
	return types
}

// ElementTypes returns the types of the scalars seen by the body
// of a structured operation for each of its operands.
func ElementTypes(vals []*ir.Value) []ir.Type {
	types := make([]ir.Type, len(vals))
	for i, v := range vals {
		if v.Type().IsShaped() {
			types[i] = ir.Scalar(v.Type().ElementType())
			continue
		}
		types[i] = v.Type()
	}
	return types
}

// NewStructuredOp returns a detached structured operation.
func NewStructuredOp(kind ir.Kind, ins, outs []*ir.Value, attrs *ir.Attributes, region *ir.Region) *ir.Op {
	if attrs == nil {
		attrs = ir.NewAttributes()
	}
	attrs.Set(NumInputsAttr, len(ins))
	return ir.NewOp(kind, slices.Concat(ins, outs), resultTypes(outs), attrs, region)
}

// BodyFunc builds the body of a structured operation given the block arguments.
// It returns the values to yield.
type BodyFunc func(b ir.Builder, args []*ir.Value) []*ir.Value

// NewBody builds a region given the operands of a structured operation.
func NewBody(ins, outs []*ir.Value, body BodyFunc) *ir.Region {
	region := ir.NewRegion(ElementTypes(slices.Concat(ins, outs))...)
	b := ir.AtEnd(region.Block())
	yielded := body(b, region.Block().Arguments())
	Yield(b, yielded...)
	return region
}

// MulAddBody is the body of a matrix multiplication: out + in0 * in1.
func MulAddBody(b ir.Builder, args []*ir.Value) []*ir.Value {
	mul := arith.Mul(b, args[0], args[1])
	return []*ir.Value{arith.Add(b, args[2], mul)}
}

// Yield inserts the terminator of the body of a structured operation.
func Yield(b ir.Builder, vals ...*ir.Value) *ir.Op {
	return b.Insert(ir.NewOp(YieldKind, vals, nil, nil, nil))
}

// Matmul inserts C += A * B.
func Matmul(b ir.Builder, a, bb, c *ir.Value) *ir.Op {
	ins, outs := []*ir.Value{a, bb}, []*ir.Value{c}
	return b.Insert(NewStructuredOp(MatmulKind, ins, outs, nil, NewBody(ins, outs, MulAddBody)))
}

// BatchReduceMatmul inserts C += sum_b A[b] * B[b].
func BatchReduceMatmul(b ir.Builder, a, bb, c *ir.Value) *ir.Op {
	ins, outs := []*ir.Value{a, bb}, []*ir.Value{c}
	return b.Insert(NewStructuredOp(BatchReduceMatmulKind, ins, outs, nil, NewBody(ins, outs, MulAddBody)))
}

// Fill inserts an operation filling out with a scalar value.
func Fill(b ir.Builder, value, out *ir.Value) *ir.Op {
	ins, outs := []*ir.Value{value}, []*ir.Value{out}
	return b.Insert(NewStructuredOp(FillKind, ins, outs, nil, nil))
}

// Copy inserts an operation copying in into out.
func Copy(b ir.Builder, in, out *ir.Value) *ir.Op {
	ins, outs := []*ir.Value{in}, []*ir.Value{out}
	return b.Insert(NewStructuredOp(CopyKind, ins, outs, nil, nil))
}

func convAttrs(strides, dilations []int) *ir.Attributes {
	if strides == nil {
		strides = []int{1, 1}
	}
	if dilations == nil {
		dilations = []int{1, 1}
	}
	return ir.NewAttributes().Set(StridesAttr, strides).Set(DilationsAttr, dilations)
}

// Conv2DNchwFchw inserts a 2D convolution of an image [N][C][H][W] with
// a filter [K][C][R][S] accumulated into [N][K][P][Q].
// Nil strides or dilations default to 1.
func Conv2DNchwFchw(b ir.Builder, image, filter, out *ir.Value, strides, dilations []int) *ir.Op {
	ins, outs := []*ir.Value{image, filter}, []*ir.Value{out}
	return b.Insert(NewStructuredOp(Conv2DNchwFchwKind, ins, outs, convAttrs(strides, dilations), NewBody(ins, outs, MulAddBody)))
}

// Conv2DNhwcHwcf inserts a 2D convolution of an image [N][H][W][C] with
// a filter [R][S][C][K] accumulated into [N][P][Q][K].
// Nil strides or dilations default to 1.
func Conv2DNhwcHwcf(b ir.Builder, image, filter, out *ir.Value, strides, dilations []int) *ir.Op {
	ins, outs := []*ir.Value{image, filter}, []*ir.Value{out}
	return b.Insert(NewStructuredOp(Conv2DNhwcHwcfKind, ins, outs, convAttrs(strides, dilations), NewBody(ins, outs, MulAddBody)))
}

// Strides returns the strides of a convolution.
func Strides(op *ir.Op) []int {
	if s, ok := op.Attrs().Ints(StridesAttr); ok {
		return s
	}
	return []int{1, 1}
}

// Dilations returns the dilations of a convolution.
func Dilations(op *ir.Op) []int {
	if d, ok := op.Attrs().Ints(DilationsAttr); ok {
		return d
	}
	return []int{1, 1}
}

// MatmulMaps returns the indexing maps of C(i, j) += A(i, k) * B(k, j)
// over the loops (i, j, k).
func MatmulMaps() []affine.Map {
	return []affine.Map{
		affine.NewMap(3, affine.Dim(0), affine.Dim(2)),
		affine.NewMap(3, affine.Dim(2), affine.Dim(1)),
		affine.NewMap(3, affine.Dim(0), affine.Dim(1)),
	}
}

// MatmulIterators returns the iterator types of the loops (i, j, k) of a matrix multiplication.
func MatmulIterators() []ir.IteratorType {
	return []ir.IteratorType{ir.Parallel, ir.Parallel, ir.Reduction}
}

// GenericAttrs returns the attributes of a generic operation.
func GenericAttrs(maps []affine.Map, iterators []ir.IteratorType, libraryCall string) *ir.Attributes {
	attrs := ir.NewAttributes().
		Set(IndexingMapsAttr, maps).
		Set(IteratorTypesAttr, iterators)
	if libraryCall != "" {
		attrs.Set(LibraryCallAttr, libraryCall)
	}
	return attrs
}

// NewGeneric returns a detached generic operation.
// The region can be nil and moved in later from another operation.
func NewGeneric(ins, outs []*ir.Value, maps []affine.Map, iterators []ir.IteratorType, libraryCall string, region *ir.Region) *ir.Op {
	return NewStructuredOp(GenericKind, ins, outs, GenericAttrs(maps, iterators, libraryCall), region)
}

// Generic inserts a generic operation with a body built by a function.
func Generic(b ir.Builder, ins, outs []*ir.Value, maps []affine.Map, iterators []ir.IteratorType, libraryCall string, body BodyFunc) *ir.Op {
	return b.Insert(NewGeneric(ins, outs, maps, iterators, libraryCall, NewBody(ins, outs, body)))
}

// Elementwise inserts a generic operation with identity indexing maps
// (minor identity maps for operands of lower rank) and parallel iterators.
func Elementwise(b ir.Builder, ins []*ir.Value, out *ir.Value, libraryCall string, body BodyFunc) *ir.Op {
	rank := out.Type().Rank()
	operands := append(slices.Clone(ins), out)
	maps := make([]affine.Map, len(operands))
	for i, v := range operands {
		maps[i] = affine.MinorIdentity(rank, v.Type().Rank())
	}
	iterators := make([]ir.IteratorType, rank)
	for i := range iterators {
		iterators[i] = ir.Parallel
	}
	return Generic(b, ins, []*ir.Value{out}, maps, iterators, libraryCall, body)
}

// IndexingMaps returns the indexing maps of a generic operation.
func IndexingMaps(op *ir.Op) []affine.Map {
	maps, _ := op.Attrs().Maps(IndexingMapsAttr)
	return maps
}

// IteratorTypes returns the iterator types of a generic operation.
func IteratorTypes(op *ir.Op) []ir.IteratorType {
	its, _ := op.Attrs().Iterators(IteratorTypesAttr)
	return its
}

// NumLoops returns the number of loops of a generic operation.
func NumLoops(op *ir.Op) int {
	return len(IteratorTypes(op))
}

// NumParallelLoops returns the number of parallel loops of a generic operation.
func NumParallelLoops(op *ir.Op) int {
	n := 0
	for _, it := range IteratorTypes(op) {
		if it == ir.Parallel {
			n++
		}
	}
	return n
}

// LibraryCall returns the name of the library call marking a generic operation.
func LibraryCall(op *ir.Op) string {
	s, _ := op.Attrs().String(LibraryCallAttr)
	return s
}
