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

// Package irjson dumps functions as JSON documents.
//
// Values are named as in the textual representation of the function,
// so that a dump can be read next to the output of ir.Func.String.
package irjson

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/gx-org/tpp/base/uname"
	"github.com/gx-org/tpp/ir"
	"github.com/gx-org/tpp/ir/affine"
	"github.com/pkg/errors"
)

type (
	// Func is the JSON representation of a function.
	Func struct {
		Name string  `json:"name"`
		Args []Value `json:"args"`
		Ops  []Op    `json:"ops"`
	}

	// Value is a named and typed value.
	Value struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}

	// Op is the JSON representation of an operation.
	Op struct {
		Kind     string   `json:"kind"`
		Operands []string `json:"operands,omitempty"`
		Results  []Value  `json:"results,omitempty"`
		Attrs    []Attr   `json:"attrs,omitempty"`
		Region   *Block   `json:"region,omitempty"`
	}

	// Attr is an attribute of an operation.
	Attr struct {
		Name  string `json:"name"`
		Value any    `json:"value"`
	}

	// Block is the body of a region.
	Block struct {
		Args []Value `json:"args,omitempty"`
		Ops  []Op    `json:"ops"`
	}
)

type dumper struct {
	names  map[*ir.Value]string
	unique *uname.Unique
}

func (d *dumper) define(v *ir.Value) Value {
	name := "%" + d.unique.Name(v.Name())
	d.names[v] = name
	return Value{Name: name, Type: v.Type().String()}
}

func (d *dumper) name(v *ir.Value) string {
	if name, ok := d.names[v]; ok {
		return name
	}
	return d.define(v).Name
}

func (d *dumper) defineAll(vals []*ir.Value) []Value {
	if len(vals) == 0 {
		return nil
	}
	res := make([]Value, len(vals))
	for i, v := range vals {
		res[i] = d.define(v)
	}
	return res
}

func attrValue(v any) any {
	switch v := v.(type) {
	case []affine.Map:
		s := make([]string, len(v))
		for i, m := range v {
			s[i] = m.String()
		}
		return s
	case []ir.IteratorType:
		s := make([]string, len(v))
		for i, it := range v {
			s[i] = it.String()
		}
		return s
	case int, []int, float64, bool, string:
		return v
	}
	return fmt.Sprint(v)
}

func (d *dumper) op(op *ir.Op) Op {
	res := Op{Kind: string(op.Kind())}
	for _, v := range op.Operands() {
		res.Operands = append(res.Operands, d.name(v))
	}
	res.Results = d.defineAll(op.Results())
	for _, name := range op.Attrs().Names() {
		v, _ := op.Attrs().Get(name)
		res.Attrs = append(res.Attrs, Attr{Name: name, Value: attrValue(v)})
	}
	if op.Region() != nil {
		res.Region = d.block(op.Region().Block())
	}
	return res
}

func (d *dumper) ops(b *ir.Block) []Op {
	var res []Op
	for _, op := range b.Ops() {
		res = append(res, d.op(op))
	}
	return res
}

func (d *dumper) block(b *ir.Block) *Block {
	args := d.defineAll(b.Arguments())
	return &Block{Args: args, Ops: d.ops(b)}
}

// Dump returns the JSON representation of a function.
func Dump(fn *ir.Func) *Func {
	d := &dumper{
		names:  make(map[*ir.Value]string),
		unique: uname.New(),
	}
	res := &Func{Name: fn.Name(), Args: d.defineAll(fn.Body().Arguments())}
	if res.Args == nil {
		res.Args = []Value{}
	}
	// Arguments of the body are the arguments of the function.
	res.Ops = d.ops(fn.Body())
	return res
}

// Marshal returns an indented JSON document describing a function.
func Marshal(fn *ir.Func) ([]byte, error) {
	data, err := json.MarshalIndent(Dump(fn), "", "  ")
	if err != nil {
		return nil, errors.Wrapf(err, "cannot marshal function %s", fn.Name())
	}
	return data, nil
}

// Unmarshal decodes a document produced by Marshal.
func Unmarshal(data []byte) (*Func, error) {
	f := &Func{}
	if err := json.Unmarshal(data, f); err != nil {
		return nil, errors.Wrap(err, "cannot unmarshal function")
	}
	return f, nil
}
