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
	"strconv"
	"strings"

	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/tpp/ir"
	"github.com/pkg/errors"
)

var dtypes = map[string]dtype.DataType{
	"i1":   dtype.Bool,
	"i32":  dtype.Int32,
	"i64":  dtype.Int64,
	"ui32": dtype.Uint32,
	"ui64": dtype.Uint64,
	"bf16": dtype.Bfloat16,
	"f32":  dtype.Float32,
	"f64":  dtype.Float64,
}

// ParseType parses a type as printed in the IR, for example
// f32, tensor<4x?xf32> or memref<16x16xbf16>.
func ParseType(s string) (ir.Type, error) {
	s = strings.TrimSpace(s)
	if s == "index" {
		return ir.Index(), nil
	}
	if dt, ok := dtypes[s]; ok {
		return ir.Scalar(dt), nil
	}
	var kind ir.TypeKind
	var rest string
	switch {
	case strings.HasPrefix(s, "tensor<"):
		kind, rest = ir.TensorType, strings.TrimPrefix(s, "tensor<")
	case strings.HasPrefix(s, "memref<"):
		kind, rest = ir.MemRefType, strings.TrimPrefix(s, "memref<")
	default:
		return ir.Type{}, errors.Errorf("invalid type %q", s)
	}
	body, ok := strings.CutSuffix(rest, ">")
	if !ok {
		return ir.Type{}, errors.Errorf("invalid type %q: missing >", s)
	}
	fields := strings.Split(body, "x")
	dt, ok := dtypes[fields[len(fields)-1]]
	if !ok {
		return ir.Type{}, errors.Errorf("invalid type %q: unknown element type %q", s, fields[len(fields)-1])
	}
	dims := make([]int, len(fields)-1)
	for i, field := range fields[:len(fields)-1] {
		if field == "?" {
			dims[i] = ir.DynamicSize
			continue
		}
		d, err := strconv.Atoi(field)
		if err != nil || d < 0 {
			return ir.Type{}, errors.Errorf("invalid type %q: invalid axis length %q", s, field)
		}
		dims[i] = d
	}
	if kind == ir.TensorType {
		return ir.Tensor(dt, dims...), nil
	}
	return ir.MemRef(dt, dims...), nil
}
