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
	"slices"

	"github.com/gx-org/tpp/base/ordered"
	"github.com/gx-org/tpp/ir/affine"
)

// IteratorType is the type of a loop of a structured operation.
type IteratorType int

const (
	// Parallel loops can be executed in any order.
	Parallel IteratorType = iota
	// Reduction loops accumulate into the output.
	Reduction
)

func (it IteratorType) String() string {
	if it == Reduction {
		return "reduction"
	}
	return "parallel"
}

// Attributes is an ordered set of named constant attributes attached to an operation.
type Attributes struct {
	m *ordered.Map[string, any]
}

// NewAttributes returns an empty attribute set.
func NewAttributes() *Attributes {
	return &Attributes{m: ordered.NewMap[string, any]()}
}

func cloneValue(v any) any {
	switch vT := v.(type) {
	case []int:
		return slices.Clone(vT)
	case []affine.Map:
		return slices.Clone(vT)
	case []IteratorType:
		return slices.Clone(vT)
	}
	return v
}

// Set an attribute and returns the attribute set.
func (a *Attributes) Set(name string, v any) *Attributes {
	a.m.Store(name, cloneValue(v))
	return a
}

// Get returns the value of an attribute.
func (a *Attributes) Get(name string) (any, bool) {
	if a == nil {
		return nil, false
	}
	v, ok := a.m.Load(name)
	return cloneValue(v), ok
}

// Has returns true if an attribute is defined.
func (a *Attributes) Has(name string) bool {
	if a == nil {
		return false
	}
	return a.m.Has(name)
}

// Names returns the names of the attributes in insertion order.
func (a *Attributes) Names() []string {
	if a == nil {
		return nil
	}
	return slices.Collect(a.m.Keys())
}

// Len returns the number of attributes.
func (a *Attributes) Len() int {
	if a == nil {
		return 0
	}
	return a.m.Size()
}

// Clone returns a copy of the attribute set.
func (a *Attributes) Clone() *Attributes {
	c := NewAttributes()
	if a == nil {
		return c
	}
	for name, v := range a.m.Iter() {
		c.Set(name, v)
	}
	return c
}

func get[T any](a *Attributes, name string) (T, bool) {
	var zero T
	v, ok := a.Get(name)
	if !ok {
		return zero, false
	}
	vT, ok := v.(T)
	return vT, ok
}

// Int returns an integer attribute.
func (a *Attributes) Int(name string) (int, bool) {
	return get[int](a, name)
}

// Ints returns an integer array attribute.
func (a *Attributes) Ints(name string) ([]int, bool) {
	return get[[]int](a, name)
}

// String returns a string attribute.
func (a *Attributes) String(name string) (string, bool) {
	return get[string](a, name)
}

// Float returns a floating-point attribute.
func (a *Attributes) Float(name string) (float64, bool) {
	return get[float64](a, name)
}

// Bool returns a boolean attribute.
func (a *Attributes) Bool(name string) (bool, bool) {
	return get[bool](a, name)
}

// Maps returns an affine map array attribute.
func (a *Attributes) Maps(name string) ([]affine.Map, bool) {
	return get[[]affine.Map](a, name)
}

// Iterators returns an iterator type array attribute.
func (a *Attributes) Iterators(name string) ([]IteratorType, bool) {
	return get[[]IteratorType](a, name)
}

// Format the attribute set as printed in the IR.
func (a *Attributes) Format() string {
	if a.Len() == 0 {
		return ""
	}
	s := "{"
	first := true
	for name, v := range a.m.Iter() {
		if !first {
			s += ", "
		}
		first = false
		if str, ok := v.(string); ok {
			s += fmt.Sprintf("%s = %q", name, str)
			continue
		}
		s += fmt.Sprintf("%s = %v", name, v)
	}
	return s + "}"
}
