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

package propagate

import (
	"slices"

	"github.com/gx-org/tpp/dialect/linalg"
	"github.com/gx-org/tpp/dialect/linalgx"
	"github.com/gx-org/tpp/ir"
	"github.com/gx-org/tpp/ir/affine"
	"github.com/gx-org/tpp/ir/fmterr"
	"github.com/gx-org/tpp/layout"
	"github.com/gx-org/tpp/rewrite"
)

// ThroughElementwise moves an unpack after an elementwise generic
// consuming it. Other operands are packed with the layout induced on the
// loops of the generic by the unpacked operand:
//
//	generic(unpack(x), y)
//
// becomes
//
//	unpack(generic(x, pack(y)))
//
// The generic gets one parallel loop for each tile.
type ThroughElementwise struct{}

var _ rewrite.Pattern = ThroughElementwise{}

// Name of the pattern.
func (ThroughElementwise) Name() string { return "propagate-through-elementwise" }

// Root returns the kind of the operations rewritten by the pattern.
func (ThroughElementwise) Root() ir.Kind { return linalg.GenericKind }

// loopLayout is a layout expressed over the loops of a generic.
type loopLayout struct {
	numLoops int
	// tiled lists the loops being tiled, in the order of the tiles.
	tiled []int
	tiles []int
	// order of the outer loops.
	order []int
}

// operandLayout returns the layout of an operand of a given rank
// indexed by the innermost loops of the generic.
func (l *loopLayout) operandLayout(rank int) layout.Descriptor {
	first := l.numLoops - rank
	var d layout.Descriptor
	for j, loop := range l.tiled {
		if loop < first {
			continue
		}
		d.InnerDimsPos = append(d.InnerDimsPos, loop-first)
		d.Tiles = append(d.Tiles, l.tiles[j])
	}
	for _, loop := range l.order {
		if loop >= first {
			d.OuterDimsPerm = append(d.OuterDimsPerm, loop-first)
		}
	}
	if isIdentityPermutation(d.OuterDimsPerm) {
		d.OuterDimsPerm = nil
	}
	return d
}

// indexingMap returns the map of an operand of a given rank in the blocked generic.
func (l *loopLayout) indexingMap(rank int) affine.Map {
	first := l.numLoops - rank
	m := affine.Map{NumDims: l.numLoops + len(l.tiles)}
	if rank == 0 {
		return m
	}
	for _, loop := range l.order {
		if loop >= first {
			m.Results = append(m.Results, affine.Dim(loop))
		}
	}
	for j, loop := range l.tiled {
		if loop >= first {
			m.Results = append(m.Results, affine.Dim(l.numLoops+j))
		}
	}
	return m
}

func isIdentityPermutation(perm []int) bool {
	for i, p := range perm {
		if i != p {
			return false
		}
	}
	return true
}

// newLoopLayout returns the layout induced on the loops of a generic
// by the layout of an operand of rank rank.
func newLoopLayout(numLoops, rank int, d layout.Descriptor) *loopLayout {
	first := numLoops - rank
	l := &loopLayout{numLoops: numLoops, tiles: slices.Clone(d.Tiles)}
	for _, pos := range d.InnerDimsPos {
		l.tiled = append(l.tiled, first+pos)
	}
	for loop := range first {
		l.order = append(l.order, loop)
	}
	if len(d.OuterDimsPerm) == 0 {
		for axis := range rank {
			l.order = append(l.order, first+axis)
		}
		return l
	}
	for _, axis := range d.OuterDimsPerm {
		l.order = append(l.order, first+axis)
	}
	return l
}

// checkElementwise checks that all loops are parallel and that each operand
// is indexed by the innermost loops.
func checkElementwise(rw *rewrite.Rewriter, op *ir.Op) error {
	for _, it := range linalg.IteratorTypes(op) {
		if it != ir.Parallel {
			return rw.Declinef(op, "not elementwise: found a %s loop", it)
		}
	}
	for i, m := range linalg.IndexingMaps(op) {
		for r := range m.Results {
			if _, ok := m.DimPosition(r); !ok {
				return rw.Declinef(op, "non-dim map result %s in map %d", m.Results[r], i)
			}
		}
		if !m.IsMinorIdentity() {
			return rw.Declinef(op, "map %d %s is not a minor identity", i, m)
		}
	}
	return nil
}

// unpackedOperand returns the index of the only operand produced by an unpack.
func unpackedOperand(rw *rewrite.Rewriter, op *ir.Op) (int, *ir.Op, error) {
	index := -1
	var unpack *ir.Op
	for i, v := range op.Operands() {
		producer := unpackOf(v)
		if producer == nil {
			continue
		}
		if unpack != nil {
			return 0, nil, rw.Declinef(op, "several operands are produced by an unpack")
		}
		index, unpack = i, producer
	}
	if unpack == nil {
		return 0, nil, rw.Declinef(op, "no operand is produced by an unpack")
	}
	return index, unpack, nil
}

// MatchAndRewrite moves an unpack after an elementwise generic.
func (ThroughElementwise) MatchAndRewrite(rw *rewrite.Rewriter, op *ir.Op) error {
	if err := checkElementwise(rw, op); err != nil {
		return err
	}
	index, unpack, err := unpackedOperand(rw, op)
	if err != nil {
		return err
	}
	if !linalg.HasTensorSemantics(op) {
		return rw.Declinef(op, "require tensor semantics")
	}
	operands := op.Operands()
	unpackDesc := layout.Of(unpack)
	if err := unpackDesc.Validate(operands[index].Type().Rank()); err != nil {
		return rw.Declinef(op, "invalid permutation: %v", err)
	}
	numLoops := linalg.NumLoops(op)
	loops := newLoopLayout(numLoops, operands[index].Type().Rank(), unpackDesc)

	descs := make([]layout.Descriptor, len(operands))
	for i, v := range operands {
		rank := v.Type().Rank()
		descs[i] = loops.operandLayout(rank)
		if err := descs[i].Validate(rank); err != nil {
			return rw.Declinef(op, "invalid permutation for operand %d: %v", i, err)
		}
		if !descs[i].Divides(v.Type().Dims()) {
			return rw.Declinef(op, "layout %s does not divide operand %d of type %s", descs[i], i, v.Type())
		}
	}

	blocked := make([]*ir.Value, len(operands))
	maps := make([]affine.Map, len(operands))
	for i, v := range operands {
		maps[i] = loops.indexingMap(v.Type().Rank())
		switch {
		case i == index:
			blocked[i] = linalgx.Source(unpack)
		case descs[i].IsIdentity():
			blocked[i] = v
		default:
			if blocked[i], err = layout.EmitPack(rw, v, descs[i]); err != nil {
				return fmterr.Internal(fmterr.At(op, err))
			}
		}
	}
	iterators := make([]ir.IteratorType, numLoops+len(loops.tiles))
	for i := range iterators {
		iterators[i] = ir.Parallel
	}
	numInputs := linalg.NumInputs(op)
	newOp := rw.Insert(linalg.NewGeneric(
		blocked[:numInputs], blocked[numInputs:],
		maps, iterators,
		linalg.LibraryCall(op),
		nil))
	rw.MoveRegion(op, newOp)

	results := make([]*ir.Value, op.NumResults())
	for r := range results {
		i := numInputs + r
		if descs[i].IsIdentity() {
			results[r] = newOp.Result(r)
			continue
		}
		dest := operands[i]
		if i == index {
			dest = linalgx.Dest(unpack)
		}
		if results[r], err = layout.EmitUnpack(rw, newOp.Result(r), dest, descs[i]); err != nil {
			return fmterr.Internal(fmterr.At(op, err))
		}
	}
	return rw.ReplaceOp(op, results...)
}
