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

package config

import (
	"github.com/gx-org/tpp/dialect/arith"
	"github.com/gx-org/tpp/dialect/fn"
	"github.com/gx-org/tpp/dialect/linalg"
	"github.com/gx-org/tpp/dialect/memref"
	"github.com/gx-org/tpp/dialect/tensor"
	"github.com/gx-org/tpp/ir"
	"github.com/pkg/errors"
)

type (
	builder struct {
		b    ir.Builder
		vals map[string]*ir.Value
	}

	opBuilder struct {
		numIns []int
		out    bool
		build  func(*builder, *Op, []*ir.Value, *ir.Value) (*ir.Value, error)
	}
)

var opBuilders = map[string]opBuilder{
	"matmul": {
		numIns: []int{2},
		out:    true,
		build: func(bld *builder, op *Op, ins []*ir.Value, out *ir.Value) (*ir.Value, error) {
			if err := checkRanks(append(ins, out), 2, 2, 2); err != nil {
				return nil, err
			}
			return result(linalg.Matmul(bld.b, ins[0], ins[1], out)), nil
		},
	},
	"batch_reduce_matmul": {
		numIns: []int{2},
		out:    true,
		build: func(bld *builder, op *Op, ins []*ir.Value, out *ir.Value) (*ir.Value, error) {
			if err := checkRanks(append(ins, out), 3, 3, 2); err != nil {
				return nil, err
			}
			return result(linalg.BatchReduceMatmul(bld.b, ins[0], ins[1], out)), nil
		},
	},
	"conv_2d_nchw_fchw": {
		numIns: []int{2},
		out:    true,
		build: func(bld *builder, op *Op, ins []*ir.Value, out *ir.Value) (*ir.Value, error) {
			if err := checkConv(op, append(ins, out)); err != nil {
				return nil, err
			}
			return result(linalg.Conv2DNchwFchw(bld.b, ins[0], ins[1], out, op.Strides, op.Dilations)), nil
		},
	},
	"conv_2d_nhwc_hwcf": {
		numIns: []int{2},
		out:    true,
		build: func(bld *builder, op *Op, ins []*ir.Value, out *ir.Value) (*ir.Value, error) {
			if err := checkConv(op, append(ins, out)); err != nil {
				return nil, err
			}
			return result(linalg.Conv2DNhwcHwcf(bld.b, ins[0], ins[1], out, op.Strides, op.Dilations)), nil
		},
	},
	"add": {
		numIns: []int{2},
		out:    true,
		build: func(bld *builder, op *Op, ins []*ir.Value, out *ir.Value) (*ir.Value, error) {
			if err := checkElementwise(ins, out); err != nil {
				return nil, err
			}
			return result(linalg.Elementwise(bld.b, ins, out, "", func(b ir.Builder, args []*ir.Value) []*ir.Value {
				return []*ir.Value{arith.Add(b, args[0], args[1])}
			})), nil
		},
	},
	"relu": {
		numIns: []int{0, 1},
		out:    true,
		build: func(bld *builder, op *Op, ins []*ir.Value, out *ir.Value) (*ir.Value, error) {
			if err := checkElementwise(ins, out); err != nil {
				return nil, err
			}
			elt := ir.Scalar(out.Type().ElementType())
			return result(linalg.Elementwise(bld.b, ins, out, "", func(b ir.Builder, args []*ir.Value) []*ir.Value {
				zero := arith.Constant(b, 0, elt).Result(0)
				return []*ir.Value{arith.Max(b, args[0], zero)}
			})), nil
		},
	},
	"identity": {
		numIns: []int{1},
		out:    true,
		build: func(bld *builder, op *Op, ins []*ir.Value, out *ir.Value) (*ir.Value, error) {
			if !ins[0].Type().Equal(out.Type()) {
				return nil, errors.Errorf("cannot copy %s into %s", ins[0].Type(), out.Type())
			}
			return result(linalg.Copy(bld.b, ins[0], out)), nil
		},
	},
	"fill": {
		out: true,
		build: func(bld *builder, op *Op, ins []*ir.Value, out *ir.Value) (*ir.Value, error) {
			value := arith.Constant(bld.b, op.Value, ir.Scalar(out.Type().ElementType())).Result(0)
			return result(linalg.Fill(bld.b, value, out)), nil
		},
	},
	"pad": {
		numIns: []int{1},
		build: func(bld *builder, op *Op, ins []*ir.Value, out *ir.Value) (*ir.Value, error) {
			if !ins[0].Type().IsTensor() {
				return nil, errors.Errorf("cannot pad %s", ins[0].Type())
			}
			value := arith.Constant(bld.b, op.Value, ir.Scalar(ins[0].Type().ElementType())).Result(0)
			return tensor.Pad(bld.b, ins[0], value, op.Low, op.High)
		},
	},
	"empty": {
		build: func(bld *builder, op *Op, ins []*ir.Value, out *ir.Value) (*ir.Value, error) {
			tp, err := ParseType(op.Type)
			if err != nil {
				return nil, err
			}
			return tensor.Empty(bld.b, tp), nil
		},
	},
	"alloc": {
		build: func(bld *builder, op *Op, ins []*ir.Value, out *ir.Value) (*ir.Value, error) {
			tp, err := ParseType(op.Type)
			if err != nil {
				return nil, err
			}
			if !tp.IsShaped() || !tp.HasStaticShape() {
				return nil, errors.Errorf("cannot allocate %s", tp)
			}
			return memref.Alloc(bld.b, tp), nil
		},
	},
}

func result(op *ir.Op) *ir.Value {
	if op.NumResults() == 0 {
		return nil
	}
	return op.Result(0)
}

func checkRanks(vals []*ir.Value, ranks ...int) error {
	for i, v := range vals {
		if v.Type().Rank() != ranks[i] {
			return errors.Errorf("operand %d: got %s but want a rank of %d", i, v.Type(), ranks[i])
		}
	}
	kind := vals[len(vals)-1].Type().Kind
	for _, v := range vals {
		if v.Type().Kind != kind {
			return errors.Errorf("cannot mix %s and %s", v.Type(), vals[len(vals)-1].Type())
		}
	}
	return nil
}

func checkConv(op *Op, vals []*ir.Value) error {
	if err := checkRanks(vals, 4, 4, 4); err != nil {
		return err
	}
	if op.Strides != nil && len(op.Strides) != 2 {
		return errors.Errorf("got %d strides but want 2", len(op.Strides))
	}
	if op.Dilations != nil && len(op.Dilations) != 2 {
		return errors.Errorf("got %d dilations but want 2", len(op.Dilations))
	}
	return nil
}

// checkElementwise checks that inputs can be indexed by the trailing loops of the output.
func checkElementwise(ins []*ir.Value, out *ir.Value) error {
	outDims := out.Type().Dims()
	for i, in := range ins {
		dims := in.Type().Dims()
		if len(dims) > len(outDims) {
			return errors.Errorf("input %d: cannot broadcast %s to %s", i, in.Type(), out.Type())
		}
		trailing := outDims[len(outDims)-len(dims):]
		for j := range dims {
			if dims[j] != trailing[j] {
				return errors.Errorf("input %d: cannot broadcast %s to %s", i, in.Type(), out.Type())
			}
		}
		if in.Type().Kind != out.Type().Kind {
			return errors.Errorf("cannot mix %s and %s", in.Type(), out.Type())
		}
	}
	return nil
}

func (bld *builder) value(name string) (*ir.Value, error) {
	v, ok := bld.vals[name]
	if !ok {
		return nil, errors.Errorf("undefined value %q", name)
	}
	return v, nil
}

func (bld *builder) define(name string, v *ir.Value) error {
	if _, ok := bld.vals[name]; ok {
		return errors.Errorf("value %q already defined", name)
	}
	bld.vals[name] = v.SetName(name)
	return nil
}

func (bld *builder) op(op *Op) error {
	ob, ok := opBuilders[op.Op]
	if !ok {
		return errors.Errorf("unknown operation %q", op.Op)
	}
	numIns := ob.numIns
	if numIns == nil {
		numIns = []int{0}
	}
	validNum := false
	for _, n := range numIns {
		validNum = validNum || n == len(op.Ins)
	}
	if !validNum {
		return errors.Errorf("got %d inputs but want %v", len(op.Ins), numIns)
	}
	ins := make([]*ir.Value, len(op.Ins))
	for i, name := range op.Ins {
		var err error
		if ins[i], err = bld.value(name); err != nil {
			return err
		}
	}
	var out *ir.Value
	if ob.out {
		if op.Out == "" {
			return errors.Errorf("missing output")
		}
		var err error
		if out, err = bld.value(op.Out); err != nil {
			return err
		}
	}
	res, err := ob.build(bld, op, ins, out)
	if err != nil {
		return err
	}
	if op.Name == "" {
		return nil
	}
	if res == nil {
		return errors.Errorf("cannot name %q: operation has no result", op.Name)
	}
	return bld.define(op.Name, res)
}

// Build returns the function described by the program.
func (p *Program) Build() (*ir.Func, error) {
	types := make([]ir.Type, len(p.Args))
	for i, arg := range p.Args {
		var err error
		if types[i], err = ParseType(arg.Type); err != nil {
			return nil, errors.Wrapf(err, "argument %s", arg.Name)
		}
	}
	name := p.Name
	if name == "" {
		name = "main"
	}
	f := ir.NewFunc(name, types...)
	bld := &builder{b: ir.AtEnd(f.Body()), vals: make(map[string]*ir.Value)}
	for i, arg := range p.Args {
		if err := bld.define(arg.Name, f.Arg(i)); err != nil {
			return nil, errors.Wrapf(err, "argument %d", i)
		}
	}
	for i := range p.Ops {
		if err := bld.op(&p.Ops[i]); err != nil {
			return nil, errors.Wrapf(err, "operation %d (%s)", i, p.Ops[i].Op)
		}
	}
	rets := make([]*ir.Value, len(p.Return))
	for i, name := range p.Return {
		var err error
		if rets[i], err = bld.value(name); err != nil {
			return nil, errors.Wrap(err, "return")
		}
	}
	fn.Return(bld.b, rets...)
	if err := f.Verify(); err != nil {
		return nil, err
	}
	return f, nil
}
