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

// Package fn defines the operations of functions.
package fn

import "github.com/gx-org/tpp/ir"

// Return inserts the terminator of a function.
func Return(b ir.Builder, vals ...*ir.Value) *ir.Op {
	return b.Insert(ir.NewOp(ir.ReturnKind, vals, nil, nil, nil))
}
