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

// Package refexec evaluates functions element by element.
//
// It is a reference executor used to check that rewrites preserve the
// values computed by a function. Tensors are immutable: operations on
// tensors return new arrays. Buffers are mutated in place. Subviews of
// buffers are copies: writing into a subview does not change its source.
package refexec

import (
	"github.com/gx-org/tpp/dialect/arith"
	"github.com/gx-org/tpp/dialect/linalg"
	"github.com/gx-org/tpp/dialect/linalgx"
	"github.com/gx-org/tpp/dialect/memref"
	"github.com/gx-org/tpp/dialect/tensor"
	"github.com/gx-org/tpp/dialect/tpp"
	"github.com/gx-org/tpp/ir"
	"github.com/gx-org/tpp/ir/fmterr"
	"github.com/gx-org/tpp/layout"
	"github.com/pkg/errors"
)

type executor struct {
	env map[*ir.Value]*Array
}

// Run evaluates a function with some arguments and returns the values it returns.
// Buffer arguments are modified in place.
func Run(fn *ir.Func, args ...*Array) ([]*Array, error) {
	body := fn.Body()
	if len(args) != body.NumArguments() {
		return nil, errors.Errorf("function %s: got %d arguments but want %d", fn.Name(), len(args), body.NumArguments())
	}
	e := &executor{env: make(map[*ir.Value]*Array)}
	for i, arg := range args {
		param := body.Argument(i)
		if !arg.Type.Equal(param.Type()) {
			return nil, errors.Errorf("function %s: argument %d of type %s cannot be assigned to %s", fn.Name(), i, arg.Type, param.Type())
		}
		if param.Type().IsTensor() {
			arg = arg.Clone()
		}
		e.env[param] = arg
	}
	for _, op := range body.Ops() {
		if op.Kind() == ir.ReturnKind {
			return e.values(op.Operands())
		}
		if err := e.exec(op); err != nil {
			return nil, fmterr.At(op, err)
		}
	}
	return nil, nil
}

func (e *executor) value(v *ir.Value) (*Array, error) {
	a, ok := e.env[v]
	if !ok {
		return nil, errors.Errorf("value %s has not been computed", v)
	}
	return a, nil
}

func (e *executor) values(vals []*ir.Value) ([]*Array, error) {
	arrays := make([]*Array, len(vals))
	for i, v := range vals {
		var err error
		if arrays[i], err = e.value(v); err != nil {
			return nil, err
		}
	}
	return arrays, nil
}

// output returns the array into which an operation writes its output.
// Tensors are copied and bound to the result of the operation.
func (e *executor) output(op *ir.Op, init *ir.Value, result int) (*Array, error) {
	a, err := e.value(init)
	if err != nil {
		return nil, err
	}
	if !init.Type().IsTensor() {
		return a, nil
	}
	a = a.Clone()
	if result < op.NumResults() {
		e.env[op.Result(result)] = a
	}
	return a, nil
}

func (e *executor) exec(op *ir.Op) error {
	switch op.Kind() {
	case arith.ConstantKind:
		val, ok := arith.ConstantValue(op)
		if !ok {
			return errors.Errorf("constant without a value")
		}
		a := New(op.Result(0).Type())
		a.Fill(val)
		e.env[op.Result(0)] = a
	case tensor.EmptyKind, memref.AllocKind:
		e.env[op.Result(0)] = New(op.Result(0).Type())
	case tensor.CastKind:
		src, err := e.value(op.Operand(0))
		if err != nil {
			return err
		}
		e.env[op.Result(0)] = src.Clone().WithType(op.Result(0).Type())
	case tensor.ExtractSliceKind, memref.SubviewKind:
		return e.slice(op)
	case tensor.PadKind:
		return e.pad(op)
	case memref.CopyKind:
		src, err := e.value(op.Operand(0))
		if err != nil {
			return err
		}
		dst, err := e.value(op.Operand(1))
		if err != nil {
			return err
		}
		if len(src.Data) != len(dst.Data) {
			return errors.Errorf("cannot copy %s into %s", src.Type, dst.Type)
		}
		copy(dst.Data, src.Data)
	case linalgx.PackKind:
		return e.pack(op)
	case linalgx.UnpackKind:
		return e.unpack(op)
	case linalg.FillKind:
		return e.fill(op)
	case linalg.CopyKind:
		return e.copy(op)
	case linalg.GenericKind, linalg.MatmulKind, linalg.BatchReduceMatmulKind,
		linalg.Conv2DNchwFchwKind, linalg.Conv2DNhwcHwcfKind:
		return e.structured(op)
	default:
		if tpp.IsPrimitive(op) {
			return e.primitive(op)
		}
		return errors.Errorf("operation %s not supported", op.Kind())
	}
	return nil
}

func (e *executor) slice(op *ir.Op) error {
	src, err := e.value(op.Operand(0))
	if err != nil {
		return err
	}
	offsets, _ := op.Attrs().Ints(tensor.OffsetsAttr)
	strides, _ := op.Attrs().Ints(tensor.StridesAttr)
	out := New(op.Result(0).Type())
	srcIdx := make([]int, len(offsets))
	if err := forEach(out.Type.Dims(), func(idx []int) error {
		for i, x := range idx {
			srcIdx[i] = offsets[i] + x*strides[i]
		}
		val, err := src.At(srcIdx...)
		if err != nil {
			return err
		}
		return out.Set(val, idx...)
	}); err != nil {
		return err
	}
	e.env[op.Result(0)] = out
	return nil
}

func (e *executor) pad(op *ir.Op) error {
	src, err := e.value(tensor.PadSource(op))
	if err != nil {
		return err
	}
	padValue, err := e.value(tensor.PadValue(op))
	if err != nil {
		return err
	}
	low := tensor.PadLow(op)
	out := New(op.Result(0).Type())
	out.Fill(padValue.Data[0])
	dstIdx := make([]int, len(low))
	if err := forEach(src.Type.Dims(), func(idx []int) error {
		for i, x := range idx {
			dstIdx[i] = x + low[i]
		}
		val, err := src.At(idx...)
		if err != nil {
			return err
		}
		return out.Set(val, dstIdx...)
	}); err != nil {
		return err
	}
	e.env[op.Result(0)] = out
	return nil
}

// pack copies every element of the flat source into the blocked destination.
// Elements of the destination outside of the source are set to zero.
func (e *executor) pack(op *ir.Op) error {
	src, err := e.value(linalgx.Source(op))
	if err != nil {
		return err
	}
	dst, err := e.output(op, linalgx.Dest(op), 0)
	if err != nil {
		return err
	}
	m, err := layout.Of(op).BlockedIndexMap(src.Type.Rank())
	if err != nil {
		return err
	}
	return forEach(dst.Type.Dims(), func(idx []int) error {
		flat := m.Eval(idx)
		val := 0.0
		if src.InBounds(flat) {
			val, _ = src.At(flat...)
		}
		return dst.Set(val, idx...)
	})
}

// unpack copies every element of the blocked source into the flat destination.
func (e *executor) unpack(op *ir.Op) error {
	src, err := e.value(linalgx.Source(op))
	if err != nil {
		return err
	}
	dst, err := e.output(op, linalgx.Dest(op), 0)
	if err != nil {
		return err
	}
	m, err := layout.Of(op).BlockedIndexMap(dst.Type.Rank())
	if err != nil {
		return err
	}
	return forEach(src.Type.Dims(), func(idx []int) error {
		flat := m.Eval(idx)
		if !dst.InBounds(flat) {
			return nil
		}
		val, err := src.At(idx...)
		if err != nil {
			return err
		}
		return dst.Set(val, flat...)
	})
}

func (e *executor) fill(op *ir.Op) error {
	val, err := e.value(linalg.Inputs(op)[0])
	if err != nil {
		return err
	}
	out, err := e.output(op, linalg.Outputs(op)[0], 0)
	if err != nil {
		return err
	}
	out.Fill(val.Data[0])
	return nil
}

func (e *executor) copy(op *ir.Op) error {
	in, err := e.value(linalg.Inputs(op)[0])
	if err != nil {
		return err
	}
	out, err := e.output(op, linalg.Outputs(op)[0], 0)
	if err != nil {
		return err
	}
	if len(in.Data) != len(out.Data) {
		return errors.Errorf("cannot copy %s into %s", in.Type, out.Type)
	}
	copy(out.Data, in.Data)
	return nil
}
