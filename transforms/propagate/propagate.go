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

// Package propagate moves unpack operations after their consumers so that
// consecutive blocked computations exchange blocked tensors directly.
package propagate

import (
	"slices"

	"github.com/gx-org/tpp/dialect/linalgx"
	"github.com/gx-org/tpp/dialect/tensor"
	"github.com/gx-org/tpp/ir"
	"github.com/gx-org/tpp/ir/fmterr"
	"github.com/gx-org/tpp/layout"
	"github.com/gx-org/tpp/rewrite"
)

// unpackOf returns the unpack operation producing v or nil.
func unpackOf(v *ir.Value) *ir.Op {
	if op := v.DefiningOp(); linalgx.IsUnpack(op) {
		return op
	}
	return nil
}

// ThroughPad pads a blocked tensor instead of padding its unpacked version:
//
//	pad(unpack(x))
//
// becomes
//
//	unpack(pad(x))
//
// Only axes that are not tiled can be padded.
type ThroughPad struct{}

var _ rewrite.Pattern = ThroughPad{}

// Name of the pattern.
func (ThroughPad) Name() string { return "propagate-through-pad" }

// Root returns the kind of the operations rewritten by the pattern.
func (ThroughPad) Root() ir.Kind { return tensor.PadKind }

// MatchAndRewrite moves an unpack after a pad.
func (ThroughPad) MatchAndRewrite(rw *rewrite.Rewriter, op *ir.Op) error {
	unpack := unpackOf(tensor.PadSource(op))
	if unpack == nil {
		return rw.Declinef(op, "source is not produced by an unpack")
	}
	desc := layout.Of(unpack)
	for _, dim := range tensor.PaddedDims(op) {
		if slices.Contains(desc.InnerDimsPos, dim) {
			return rw.Declinef(op, "cannot pad axis %d: axis is tiled by %s", dim, desc)
		}
	}
	zeros := make([]int, len(desc.Tiles))
	low := append(layout.Interchange(tensor.PadLow(op), desc.OuterDimsPerm), zeros...)
	high := append(layout.Interchange(tensor.PadHigh(op), desc.OuterDimsPerm), zeros...)
	padded, err := tensor.Pad(rw, linalgx.Source(unpack), tensor.PadValue(op), low, high)
	if err != nil {
		return fmterr.Internal(fmterr.At(op, err))
	}
	dest := tensor.Empty(rw, op.Result(0).Type())
	unpacked, err := layout.EmitUnpack(rw, padded, dest, desc)
	if err != nil {
		return fmterr.Internal(fmterr.At(op, err))
	}
	return rw.ReplaceOp(op, unpacked)
}

// FoldPackOfUnpack replaces pack(unpack(x)) with x when both operations use the same layout.
type FoldPackOfUnpack struct{}

var _ rewrite.Pattern = FoldPackOfUnpack{}

// Name of the pattern.
func (FoldPackOfUnpack) Name() string { return "fold-pack-of-unpack" }

// Root returns the kind of the operations rewritten by the pattern.
func (FoldPackOfUnpack) Root() ir.Kind { return linalgx.PackKind }

// MatchAndRewrite folds a pack of an unpack.
func (FoldPackOfUnpack) MatchAndRewrite(rw *rewrite.Rewriter, op *ir.Op) error {
	if op.NumResults() == 0 {
		return rw.Declinef(op, "require tensor semantics")
	}
	unpack := unpackOf(linalgx.Source(op))
	if unpack == nil {
		return rw.Declinef(op, "source is not produced by an unpack")
	}
	if !layout.Of(op).Equal(layout.Of(unpack)) {
		return rw.Declinef(op, "layouts %s and %s differ", layout.Of(op), layout.Of(unpack))
	}
	blocked := linalgx.Source(unpack)
	if !blocked.Type().Equal(op.Result(0).Type()) {
		return rw.Declinef(op, "type %s differs from %s", blocked.Type(), op.Result(0).Type())
	}
	return rw.ReplaceOp(op, blocked)
}

// FoldUnpackOfPack replaces unpack(pack(x)) with x when both operations use the same layout.
type FoldUnpackOfPack struct{}

var _ rewrite.Pattern = FoldUnpackOfPack{}

// Name of the pattern.
func (FoldUnpackOfPack) Name() string { return "fold-unpack-of-pack" }

// Root returns the kind of the operations rewritten by the pattern.
func (FoldUnpackOfPack) Root() ir.Kind { return linalgx.UnpackKind }

// MatchAndRewrite folds an unpack of a pack.
func (FoldUnpackOfPack) MatchAndRewrite(rw *rewrite.Rewriter, op *ir.Op) error {
	if op.NumResults() == 0 {
		return rw.Declinef(op, "require tensor semantics")
	}
	pack := linalgx.Source(op).DefiningOp()
	if !linalgx.IsPack(pack) {
		return rw.Declinef(op, "source is not produced by a pack")
	}
	if !layout.Of(op).Equal(layout.Of(pack)) {
		return rw.Declinef(op, "layouts %s and %s differ", layout.Of(op), layout.Of(pack))
	}
	flat := linalgx.Source(pack)
	if !flat.Type().Equal(op.Result(0).Type()) {
		return rw.Declinef(op, "type %s differs from %s", flat.Type(), op.Result(0).Type())
	}
	return rw.ReplaceOp(op, flat)
}
