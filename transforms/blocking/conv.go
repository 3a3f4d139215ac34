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

package blocking

import (
	"github.com/gx-org/tpp/dialect/linalg"
	"github.com/gx-org/tpp/ir"
	"github.com/gx-org/tpp/ir/affine"
	"github.com/gx-org/tpp/layout"
	"github.com/gx-org/tpp/rewrite"
)

var convIterators = []ir.IteratorType{
	ir.Parallel, ir.Parallel, ir.Parallel, ir.Parallel, ir.Parallel,
	ir.Reduction, ir.Reduction, ir.Reduction, ir.Reduction,
}

// convMaps returns the indexing maps of a blocked convolution over
// the domain (N, K', P, Q, k, C', R, S, c).
func convMaps(strides []int) []affine.Map {
	d := dims(9)
	p1, p2, p3, p4, p5 := d[0], d[1], d[2], d[3], d[4]
	r1, r2, r3, r4 := d[5], d[6], d[7], d[8]
	return []affine.Map{
		affine.NewMap(9, p1, r1, affine.Add(affine.Mul(p3, strides[0]), r2), affine.Add(affine.Mul(p4, strides[1]), r3), r4),
		affine.NewMap(9, p2, r1, r2, r3, r4, p5),
		affine.NewMap(9, p1, p2, p3, p4, p5),
	}
}

type convLayouts struct {
	image  func(c int) layout.Descriptor
	filter func(c, k int) layout.Descriptor
	output func(k int) layout.Descriptor
}

func blockConv(rw *rewrite.Rewriter, op *ir.Op, tiles []int, layouts convLayouts) error {
	if err := checkTiles(rw, op, tiles, 2); err != nil {
		return err
	}
	if err := checkOperands(rw, op); err != nil {
		return err
	}
	for _, d := range linalg.Dilations(op) {
		if d != 1 {
			return rw.Declinef(op, "require unit dilations but got %v", linalg.Dilations(op))
		}
	}
	strides := linalg.Strides(op)
	if len(strides) != 2 {
		return rw.Declinef(op, "require 2 strides but got %v", strides)
	}
	tc, tk := tiles[0], tiles[1]
	ins, outs := linalg.Inputs(op), linalg.Outputs(op)
	image := operandLayout{value: ins[0], desc: layouts.image(tc)}
	filter := operandLayout{value: ins[1], desc: layouts.filter(tc, tk)}
	out := operandLayout{value: outs[0], desc: layouts.output(tk)}
	if err := checkDivides(rw, op, image, filter, out); err != nil {
		return err
	}
	packed, err := packAll(rw, op, image, filter, out)
	if err != nil {
		return err
	}
	return replaceWithBlocked(rw, op, packed[:2], packed[2], convMaps(strides), convIterators, out)
}

// ConvNchwFchw blocks the channels of a convolution:
//
//	[N][K][P][Q] += [N][C][H][W] * [K][C][R][S]
//
// becomes
//
//	[N][K/k][P][Q][k] += [N][C/c][H][W][c] * [K/k][C/c][R][S][c][k]
type ConvNchwFchw struct {
	// Tiles on the input channels C and the output channels K.
	Tiles []int
}

var _ rewrite.Pattern = ConvNchwFchw{}

// Name of the pattern.
func (ConvNchwFchw) Name() string { return "conv-nchw-fchw-blocking" }

// Root returns the kind of the operations rewritten by the pattern.
func (ConvNchwFchw) Root() ir.Kind { return linalg.Conv2DNchwFchwKind }

// MatchAndRewrite blocks a convolution.
func (p ConvNchwFchw) MatchAndRewrite(rw *rewrite.Rewriter, op *ir.Op) error {
	return blockConv(rw, op, p.Tiles, convLayouts{
		image:  layout.NCHWc,
		filter: layout.KCRSck,
		output: layout.NCHWc,
	})
}

// ConvNhwcHwcf blocks the channels of a convolution with channels last:
//
//	[N][P][Q][K] += [N][H][W][C] * [R][S][C][K]
//
// becomes
//
//	[N][K/k][P][Q][k] += [N][C/c][H][W][c] * [K/k][C/c][R][S][c][k]
type ConvNhwcHwcf struct {
	// Tiles on the input channels C and the output channels K.
	Tiles []int
}

var _ rewrite.Pattern = ConvNhwcHwcf{}

// Name of the pattern.
func (ConvNhwcHwcf) Name() string { return "conv-nhwc-hwcf-blocking" }

// Root returns the kind of the operations rewritten by the pattern.
func (ConvNhwcHwcf) Root() ir.Kind { return linalg.Conv2DNhwcHwcfKind }

// MatchAndRewrite blocks a convolution.
func (p ConvNhwcHwcf) MatchAndRewrite(rw *rewrite.Rewriter, op *ir.Op) error {
	return blockConv(rw, op, p.Tiles, convLayouts{
		image:  layout.NKPQk,
		filter: layout.RSCKToKCRSck,
		output: layout.NKPQk,
	})
}
