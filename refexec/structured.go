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

package refexec

import (
	"math"

	"github.com/gx-org/tpp/dialect/arith"
	"github.com/gx-org/tpp/dialect/linalg"
	"github.com/gx-org/tpp/ir"
	"github.com/gx-org/tpp/ir/affine"
	"github.com/pkg/errors"
)

func convIndex(out, filter affine.Expr, stride, dilation int) affine.Expr {
	return affine.Add(affine.Mul(out, stride), affine.Mul(filter, dilation))
}

// indexingMaps returns the maps of a structured operation from its loops
// to the coordinates of its operands.
func indexingMaps(op *ir.Op) ([]affine.Map, error) {
	d := affine.Dim
	switch op.Kind() {
	case linalg.GenericKind:
		return linalg.IndexingMaps(op), nil
	case linalg.MatmulKind:
		// (i, j, k)
		return []affine.Map{
			affine.NewMap(3, d(0), d(2)),
			affine.NewMap(3, d(2), d(1)),
			affine.NewMap(3, d(0), d(1)),
		}, nil
	case linalg.BatchReduceMatmulKind:
		// (b, i, j, k)
		return []affine.Map{
			affine.NewMap(4, d(0), d(1), d(3)),
			affine.NewMap(4, d(0), d(3), d(2)),
			affine.NewMap(4, d(1), d(2)),
		}, nil
	case linalg.Conv2DNchwFchwKind:
		// (n, k, p, q, c, r, s)
		st, dl := linalg.Strides(op), linalg.Dilations(op)
		return []affine.Map{
			affine.NewMap(7, d(0), d(4), convIndex(d(2), d(5), st[0], dl[0]), convIndex(d(3), d(6), st[1], dl[1])),
			affine.NewMap(7, d(1), d(4), d(5), d(6)),
			affine.NewMap(7, d(0), d(1), d(2), d(3)),
		}, nil
	case linalg.Conv2DNhwcHwcfKind:
		// (n, p, q, k, r, s, c)
		st, dl := linalg.Strides(op), linalg.Dilations(op)
		return []affine.Map{
			affine.NewMap(7, d(0), convIndex(d(1), d(4), st[0], dl[0]), convIndex(d(2), d(5), st[1], dl[1]), d(6)),
			affine.NewMap(7, d(4), d(5), d(6), d(3)),
			affine.NewMap(7, d(0), d(1), d(2), d(3)),
		}, nil
	}
	return nil, errors.Errorf("no indexing maps for %s", op.Kind())
}

// loopExtents infers the number of iterations of each loop from the
// operands indexed by a loop alone.
func loopExtents(maps []affine.Map, operands []*ir.Value) ([]int, error) {
	if len(maps) != len(operands) {
		return nil, errors.Errorf("%d indexing maps for %d operands", len(maps), len(operands))
	}
	if len(maps) == 0 {
		return nil, nil
	}
	extents := make([]int, maps[0].NumDims)
	for i := range extents {
		extents[i] = -1
	}
	for i, m := range maps {
		tp := operands[i].Type()
		if m.NumResults() != tp.Rank() {
			return nil, errors.Errorf("operand %d: map %s does not match type %s", i, m, tp)
		}
		for r := range m.Results {
			pos, ok := m.DimPosition(r)
			if !ok || extents[pos] >= 0 {
				continue
			}
			extents[pos] = tp.Dim(r)
		}
	}
	for i, ext := range extents {
		if ext < 0 {
			return nil, errors.Errorf("cannot infer the number of iterations of loop %d", i)
		}
	}
	return extents, nil
}

func (e *executor) structured(op *ir.Op) error {
	maps, err := indexingMaps(op)
	if err != nil {
		return err
	}
	if op.Region() == nil {
		return errors.Errorf("structured operation without a body")
	}
	operands := op.Operands()
	extents, err := loopExtents(maps, operands)
	if err != nil {
		return err
	}
	numIn := linalg.NumInputs(op)
	arrays := make([]*Array, len(operands))
	for i, v := range operands {
		if i < numIn {
			arrays[i], err = e.value(v)
		} else {
			arrays[i], err = e.output(op, v, i-numIn)
		}
		if err != nil {
			return err
		}
	}
	body := op.Region().Block()
	args := make([]float64, len(operands))
	return forEach(extents, func(idx []int) error {
		for i, a := range arrays {
			var err error
			if args[i], err = a.At(maps[i].Eval(idx)...); err != nil {
				return err
			}
		}
		yielded, err := evalBody(body, args)
		if err != nil {
			return err
		}
		outs := arrays[numIn:]
		if len(yielded) != len(outs) {
			return errors.Errorf("body yields %d values for %d outputs", len(yielded), len(outs))
		}
		for j, out := range outs {
			if err := out.Set(yielded[j], maps[numIn+j].Eval(idx)...); err != nil {
				return err
			}
		}
		return nil
	})
}

// evalBody evaluates the scalar body of a structured operation.
func evalBody(body *ir.Block, args []float64) ([]float64, error) {
	vals := make(map[*ir.Value]float64, len(args))
	for i, arg := range body.Arguments() {
		vals[arg] = args[i]
	}
	operand := func(op *ir.Op, i int) float64 {
		return vals[op.Operand(i)]
	}
	for _, op := range body.Ops() {
		var res float64
		switch op.Kind() {
		case linalg.YieldKind:
			out := make([]float64, op.NumOperands())
			for i := range out {
				out[i] = operand(op, i)
			}
			return out, nil
		case arith.ConstantKind:
			res, _ = arith.ConstantValue(op)
		case arith.AddFKind, arith.AddIKind:
			res = operand(op, 0) + operand(op, 1)
		case arith.MulFKind, arith.MulIKind:
			res = operand(op, 0) * operand(op, 1)
		case arith.SubFKind:
			res = operand(op, 0) - operand(op, 1)
		case arith.MaxFKind:
			res = math.Max(operand(op, 0), operand(op, 1))
		case arith.TruncFKind, arith.ExtFKind, arith.SIToFPKind:
			res = operand(op, 0)
		default:
			return nil, errors.Errorf("operation %s not supported in a body", op.Kind())
		}
		vals[op.Result(0)] = res
	}
	return nil, errors.Errorf("body without terminator")
}
