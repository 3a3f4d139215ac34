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
	"slices"

	"github.com/gx-org/tpp/fmt/fmtarray"
	"github.com/gx-org/tpp/ir"
	"github.com/pkg/errors"
)

// Array is a multi-dimensional array stored in row-major order.
// Values are stored as float64 whatever the element type.
type Array struct {
	Type ir.Type
	Data []float64
}

// New returns an array of a given type filled with zeros.
func New(tp ir.Type) *Array {
	return &Array{Type: tp, Data: make([]float64, tp.NumElements())}
}

// FromData returns an array of a given type with its content.
func FromData(tp ir.Type, data []float64) (*Array, error) {
	if !tp.HasStaticShape() {
		return nil, errors.Errorf("cannot create an array of type %s: shape is not static", tp)
	}
	if n := tp.NumElements(); n != len(data) {
		return nil, errors.Errorf("cannot create an array of type %s from %d values: want %d values", tp, len(data), n)
	}
	return &Array{Type: tp, Data: slices.Clone(data)}, nil
}

// Iota returns an array filled with start, start+step, start+2*step, ...
func Iota(tp ir.Type, start, step float64) *Array {
	a := New(tp)
	for i := range a.Data {
		a.Data[i] = start + float64(i)*step
	}
	return a
}

// Clone returns a copy of the array.
func (a *Array) Clone() *Array {
	return &Array{Type: a.Type, Data: slices.Clone(a.Data)}
}

// WithType returns an array sharing the content of a with a different type.
func (a *Array) WithType(tp ir.Type) *Array {
	return &Array{Type: tp, Data: a.Data}
}

// Fill sets all the elements of the array to a value.
func (a *Array) Fill(v float64) {
	for i := range a.Data {
		a.Data[i] = v
	}
}

func (a *Array) offset(idx []int) (int, error) {
	if len(idx) != a.Type.Rank() {
		return 0, errors.Errorf("index %v has %d coordinates for an array of type %s", idx, len(idx), a.Type)
	}
	off := 0
	for i, x := range idx {
		dim := a.Type.Dim(i)
		if x < 0 || x >= dim {
			return 0, errors.Errorf("index %v out of bounds for an array of type %s", idx, a.Type)
		}
		off = off*dim + x
	}
	return off, nil
}

// At returns the element at a given index.
func (a *Array) At(idx ...int) (float64, error) {
	off, err := a.offset(idx)
	if err != nil {
		return 0, err
	}
	return a.Data[off], nil
}

// Set the element at a given index.
func (a *Array) Set(v float64, idx ...int) error {
	off, err := a.offset(idx)
	if err != nil {
		return err
	}
	a.Data[off] = v
	return nil
}

// InBounds returns true if an index is within the bounds of the array.
func (a *Array) InBounds(idx []int) bool {
	_, err := a.offset(idx)
	return err == nil
}

// Equal returns true if two arrays have the same shape and the same content.
func (a *Array) Equal(o *Array) bool {
	return slices.Equal(a.Type.Dims(), o.Type.Dims()) && slices.Equal(a.Data, o.Data)
}

// String representation of the array.
func (a *Array) String() string {
	return fmtarray.Sprint(a.Data, a.Type.Dims(), ir.DTypeName(a.Type.ElementType()))
}

// forEach calls f for every index of a domain in row-major order.
// f is called once with an empty index if the domain has no dimension.
func forEach(dims []int, f func(idx []int) error) error {
	for _, d := range dims {
		if d <= 0 {
			return nil
		}
	}
	idx := make([]int, len(dims))
	for {
		if err := f(idx); err != nil {
			return err
		}
		i := len(dims) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < dims[i] {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return nil
		}
	}
}
