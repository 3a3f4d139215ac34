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

// Package broadcast computes how the operand of a kernel is replicated
// to match the shape of its output.
package broadcast

import (
	"slices"

	"github.com/gx-org/tpp/ir"
	"github.com/gx-org/tpp/ir/fmterr"
	"github.com/pkg/errors"
)

// Kind is the way an operand is replicated.
type Kind int

const (
	// None means that the operand has the same shape as the output.
	None Kind = iota
	// Row means that a single row is replicated down all the rows of the output.
	Row
	// Column means that a single column is replicated across all the columns of the output.
	Column
	// Scalar means that a single value is replicated to all the elements of the output.
	Scalar
)

func (k Kind) String() string {
	switch k {
	case None:
		return "NONE"
	case Row:
		return "ROW"
	case Column:
		return "COLUMN"
	case Scalar:
		return "SCALAR"
	}
	return "UNKNOWN"
}

// Reshape returns the shape of lower once aligned on the trailing axes of higher.
// Leading axes are set to 1. An axis of lower is kept if it is equal to the axis
// of higher or if the axis of higher is 1. An axis of length 1 broadcast to a
// larger axis stays 1. Any other combination is an internal error since it
// should have been rejected when the program was verified.
func Reshape(higher, lower []int) ([]int, error) {
	if len(lower) > len(higher) {
		return nil, fmterr.Internal(errors.Errorf("cannot reshape %v to the rank of %v", lower, higher))
	}
	reshape := make([]int, len(higher))
	for i := range reshape {
		reshape[i] = 1
	}
	for i, j := len(higher)-1, len(lower)-1; i >= 0 && j >= 0; i, j = i-1, j-1 {
		hi, lo := higher[i], lower[j]
		switch {
		case lo == 1 && hi > 1:
			reshape[i] = 1
		case (lo > 1 && hi == 1) || lo == hi:
			reshape[i] = lo
		default:
			return nil, fmterr.Internal(errors.Errorf("broadcast semantics broken: cannot broadcast %v to %v", lower, higher))
		}
	}
	return reshape, nil
}

// ClassifyUnary returns the leading dimension of the input of a unary kernel
// and how the input is broadcast to an output of a given shape.
//
// Broadcasting rules that have not been verified beforehand are internal errors.
func ClassifyUnary(input ir.Type, output []int) (int, Kind, error) {
	if !input.IsShaped() {
		return 1, Scalar, nil
	}
	in := input.Dims()
	// Rank 0 and all-ones shapes hold a single element.
	if !slices.ContainsFunc(in, func(d int) bool { return d != 1 }) {
		return 1, Scalar, nil
	}
	if len(output) != 2 {
		return 0, None, fmterr.Internal(errors.Errorf("cannot classify the broadcast of %s to %v: expected a 2D output", input, output))
	}
	reshape, err := Reshape(output, in)
	if err != nil {
		return 0, None, err
	}
	switch {
	case reshape[1] == 1 && output[1] > 1:
		return reshape[1], Column, nil
	case reshape[0] == 1 && output[0] > 1:
		return reshape[1], Row, nil
	case reshape[0] == output[0] && reshape[1] == output[1]:
		return reshape[1], None, nil
	}
	return 0, None, fmterr.Internal(errors.Errorf("cannot classify the broadcast of %s to %v", input, output))
}
