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

	"github.com/gx-org/tpp/dialect/tpp"
	"github.com/gx-org/tpp/ir"
	"github.com/pkg/errors"
)

// broadcastAt returns the element of in broadcast at an index of the output.
// Axes are aligned on the right. Axes of length 1 are broadcast.
func broadcastAt(in *Array, outIdx []int) (float64, error) {
	rank := in.Type.Rank()
	idx := make([]int, rank)
	for i := range idx {
		j := len(outIdx) - rank + i
		if j < 0 {
			return 0, errors.Errorf("cannot broadcast %s to an index of rank %d", in.Type, len(outIdx))
		}
		if in.Type.Dim(i) != 1 {
			idx[i] = outIdx[j]
		}
	}
	return in.At(idx...)
}

func (e *executor) elementwise(op *ir.Op, f func(...float64) float64) error {
	ins, err := e.values(tpp.Inputs(op))
	if err != nil {
		return err
	}
	out, err := e.output(op, tpp.Output(op), 0)
	if err != nil {
		return err
	}
	args := make([]float64, len(ins))
	return forEach(out.Type.Dims(), func(idx []int) error {
		for i, in := range ins {
			var err error
			if args[i], err = broadcastAt(in, idx); err != nil {
				return err
			}
		}
		return out.Set(f(args...), idx...)
	})
}

// matmul computes C += sum_b A[b] * B[b] given functions reading A and B.
func matmul(c *Array, batch, k int, a, b func(batch, i, j int) (float64, error)) error {
	return forEach(c.Type.Dims(), func(idx []int) error {
		acc, err := c.At(idx...)
		if err != nil {
			return err
		}
		for bt := range batch {
			for kk := range k {
				x, err := a(bt, idx[0], kk)
				if err != nil {
					return err
				}
				y, err := b(bt, kk, idx[1])
				if err != nil {
					return err
				}
				acc += x * y
			}
		}
		return c.Set(acc, idx...)
	})
}

func (e *executor) primitive(op *ir.Op) error {
	if err := tpp.Verify(op); err != nil {
		return err
	}
	switch op.Kind() {
	case tpp.IdentityKind:
		return e.elementwise(op, func(x ...float64) float64 { return x[0] })
	case tpp.ReluKind:
		return e.elementwise(op, func(x ...float64) float64 { return math.Max(x[0], 0) })
	case tpp.AddKind:
		return e.elementwise(op, func(x ...float64) float64 { return x[0] + x[1] })
	}
	ins, err := e.values(tpp.Inputs(op))
	if err != nil {
		return err
	}
	c, err := e.output(op, tpp.Output(op), 0)
	if err != nil {
		return err
	}
	a, b := ins[0], ins[1]
	switch op.Kind() {
	case tpp.MatmulKind:
		return matmul(c, 1, a.Type.Dim(1),
			func(_, i, k int) (float64, error) { return a.At(i, k) },
			func(_, k, j int) (float64, error) { return b.At(k, j) })
	case tpp.BrgemmKind:
		return matmul(c, a.Type.Dim(0), a.Type.Dim(2),
			func(bt, i, k int) (float64, error) { return a.At(bt, i, k) },
			func(bt, k, j int) (float64, error) { return b.At(bt, k, j) })
	case tpp.VNNIMatmulKind:
		v := b.Type.Dim(2)
		return matmul(c, 1, a.Type.Dim(1),
			func(_, i, k int) (float64, error) { return a.At(i, k) },
			func(_, k, j int) (float64, error) { return b.At(k/v, j, k%v) })
	}
	return errors.Errorf("primitive %s not supported", op.Kind())
}
