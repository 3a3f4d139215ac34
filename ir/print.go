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

package ir

import (
	"fmt"
	"strings"

	"github.com/gx-org/tpp/base/uname"
)

type printer struct {
	names  map[*Value]string
	unique *uname.Unique
	sb     strings.Builder
}

func newPrinter() *printer {
	return &printer{
		names:  make(map[*Value]string),
		unique: uname.New(),
	}
}

func (p *printer) define(v *Value) string {
	name := "%" + p.unique.Name(v.name)
	p.names[v] = name
	return name
}

func (p *printer) name(v *Value) string {
	if v == nil {
		return "%<nil>"
	}
	if name, ok := p.names[v]; ok {
		return name
	}
	return p.define(v)
}

func (p *printer) indent(depth int) {
	p.sb.WriteString(strings.Repeat("  ", depth))
}

func (p *printer) printValues(vals []*Value) {
	for i, v := range vals {
		if i > 0 {
			p.sb.WriteString(", ")
		}
		p.sb.WriteString(p.name(v))
	}
}

func (p *printer) printArgs(args []*Value) {
	for i, arg := range args {
		if i > 0 {
			p.sb.WriteString(", ")
		}
		fmt.Fprintf(&p.sb, "%s: %s", p.define(arg), arg.typ)
	}
}

func (p *printer) printOp(op *Op, depth int) {
	p.indent(depth)
	// Operands are named before results so that unnamed operands
	// get lower numbers when printing a detached operation.
	operands := make([]string, len(op.operands))
	for i, operand := range op.operands {
		operands[i] = p.name(operand)
	}
	if len(op.results) > 0 {
		for i, res := range op.results {
			if i > 0 {
				p.sb.WriteString(", ")
			}
			p.sb.WriteString(p.define(res))
		}
		p.sb.WriteString(" = ")
	}
	fmt.Fprintf(&p.sb, "%s(%s)", op.kind, strings.Join(operands, ", "))
	if attrs := op.attrs.Format(); attrs != "" {
		p.sb.WriteString(" " + attrs)
	}
	if len(op.results) > 0 {
		types := make([]string, len(op.results))
		for i, res := range op.results {
			types[i] = res.typ.String()
		}
		p.sb.WriteString(" : " + strings.Join(types, ", "))
	}
	if op.region == nil {
		p.sb.WriteString("\n")
		return
	}
	p.sb.WriteString(" {\n")
	p.printBlock(op.region.block, depth)
	p.indent(depth)
	p.sb.WriteString("}\n")
}

func (p *printer) printBlock(b *Block, depth int) {
	if len(b.args) > 0 {
		p.indent(depth)
		p.sb.WriteString("^bb(")
		p.printArgs(b.args)
		p.sb.WriteString("):\n")
	}
	for _, op := range b.ops {
		p.printOp(op, depth+1)
	}
}

// String returns the textual representation of the function.
func (f *Func) String() string {
	p := newPrinter()
	fmt.Fprintf(&p.sb, "func @%s(", f.name)
	p.printArgs(f.body.args)
	p.sb.WriteString(") {\n")
	for _, op := range f.body.ops {
		p.printOp(op, 1)
	}
	p.sb.WriteString("}\n")
	return p.sb.String()
}

// String returns the textual representation of the operation.
// Values defined outside of the operation are numbered in order of appearance.
func (op *Op) String() string {
	p := newPrinter()
	p.printOp(op, 0)
	return strings.TrimSuffix(p.sb.String(), "\n")
}

// String returns the name hint and the type of the value.
func (v *Value) String() string {
	if v.name != "" {
		return "%" + v.name + ": " + v.typ.String()
	}
	return v.typ.String()
}
