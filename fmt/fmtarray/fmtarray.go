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

// Package fmtarray formats the content of arrays stored in row-major order.
package fmtarray

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pkg/errors"
)

const tab = "\t"

// Element is the type of the values that can be printed.
type Element interface {
	~float32 | ~float64 | ~int32 | ~int64
}

type printer[T Element] struct {
	w       strings.Builder
	data    []T
	axes    []int
	strides []int
}

func strides(axes []int) []int {
	st := make([]int, len(axes))
	acc := 1
	for i := len(axes) - 1; i >= 0; i-- {
		st[i] = acc
		acc *= axes[i]
	}
	return st
}

func newPrinter[T Element](data []T, axes []int) (*printer[T], error) {
	total := 1
	for _, size := range axes {
		total *= size
	}
	if total != len(data) {
		return nil, errors.Errorf("len(data)=%d does not match axes %v=%d", len(data), axes, total)
	}
	return &printer[T]{data: data, axes: axes, strides: strides(axes)}, nil
}

func (p *printer[T]) value(x T) string {
	var s string
	switch v := any(x).(type) {
	case float32:
		s = fmt.Sprintf("%.6f", v)
	case float64:
		s = fmt.Sprintf("%.10f", v)
	default:
		return fmt.Sprint(x)
	}
	if strings.ContainsRune(s, '.') {
		s = strings.TrimSuffix(strings.TrimRight(s, "0"), ".")
	}
	return s
}

func (p *printer[T]) offset(pos []int) int {
	off := 0
	for i, v := range pos {
		off += p.strides[i] * v
	}
	return off
}

func (p *printer[T]) vector(pos []int) {
	n := p.axes[len(p.axes)-1]
	base := p.offset(pos)
	vals := make([]string, n)
	for i := range vals {
		vals[i] = p.value(p.data[base+i])
	}
	fmt.Fprintf(&p.w, "{%s}", strings.Join(vals, ", "))
}

func (p *printer[T]) rec(indent string, pos []int) {
	if len(pos) == len(p.axes)-1 {
		p.vector(pos)
		return
	}
	p.w.WriteString("{\n")
	child := append(slices.Clone(pos), 0)
	for i := range p.axes[len(pos)] {
		child[len(child)-1] = i
		p.w.WriteString(indent + tab)
		p.rec(indent+tab, child)
		p.w.WriteString(",\n")
	}
	p.w.WriteString(indent + "}")
}

func (p *printer[T]) print() {
	if len(p.axes) == 0 {
		fmt.Fprintf(&p.w, "(%s)", p.value(p.data[0]))
		return
	}
	p.rec("", nil)
}

// SDataPrint returns a string representation of the content of an array without its type.
func SDataPrint[T Element](data []T, axes []int) string {
	p, err := newPrinter(data, axes)
	if err != nil {
		return err.Error()
	}
	p.print()
	return p.w.String()
}

// Sprint returns a string representation of an array prefixed by its
// axes and the name of its element type.
func Sprint[T Element](data []T, axes []int, elementName string) string {
	p, err := newPrinter(data, axes)
	if err != nil {
		return err.Error()
	}
	for _, size := range axes {
		fmt.Fprintf(&p.w, "[%d]", size)
	}
	p.w.WriteString(elementName)
	p.print()
	return p.w.String()
}
