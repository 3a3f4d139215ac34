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

// Matmul blocks a matrix multiplication on tensors:
//
//	[I][J] += [I][K] * [K][J]
//
// becomes
//
//	[I/i][J/j][i][j] += [I/i][K/k][i][k] * [J/j][K/k][k][j]
//
// where (i, j, k) are the tiles. K/k is the batch reduce dimension.
type Matmul struct {
	// Tiles on I, J and K.
	Tiles []int
}

var _ rewrite.Pattern = Matmul{}

// Name of the pattern.
func (Matmul) Name() string { return "matmul-blocking" }

// Root returns the kind of the operations rewritten by the pattern.
func (Matmul) Root() ir.Kind { return linalg.MatmulKind }

var matmulIterators = []ir.IteratorType{
	ir.Parallel, ir.Parallel, ir.Reduction,
	ir.Parallel, ir.Parallel, ir.Reduction,
}

// matmulMaps returns the indexing maps of a blocked matrix multiplication.
func matmulMaps() []affine.Map {
	d := dims(6)
	p1, p2, r1, p3, p4, r2 := d[0], d[1], d[2], d[3], d[4], d[5]
	return []affine.Map{
		affine.NewMap(6, p1, r1, p3, r2),
		affine.NewMap(6, p2, r1, r2, p4),
		affine.NewMap(6, p1, p2, p3, p4),
	}
}

// MatchAndRewrite blocks a matrix multiplication.
func (p Matmul) MatchAndRewrite(rw *rewrite.Rewriter, op *ir.Op) error {
	if err := checkTiles(rw, op, p.Tiles, 3); err != nil {
		return err
	}
	if err := checkOperands(rw, op); err != nil {
		return err
	}
	ti, tj, tk := p.Tiles[0], p.Tiles[1], p.Tiles[2]
	ins, outs := linalg.Inputs(op), linalg.Outputs(op)
	a := operandLayout{value: ins[0], desc: layout.NCnc(ti, tk)}
	b := operandLayout{value: ins[1], desc: layout.KCck(tk, tj)}
	c := operandLayout{value: outs[0], desc: layout.NCnc(ti, tj)}
	if err := checkDivides(rw, op, a, b, c); err != nil {
		return err
	}
	packed, err := packAll(rw, op, a, b, c)
	if err != nil {
		return err
	}
	return replaceWithBlocked(rw, op, packed[:2], packed[2], matmulMaps(), matmulIterators, c)
}
