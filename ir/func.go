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
	"slices"

	"github.com/pkg/errors"
)

// ReturnKind is the kind of the terminator of a function.
const ReturnKind Kind = "func.return"

// Func is a function.
type Func struct {
	name string
	body *Block
}

// NewFunc returns a new function given the types of its arguments.
func NewFunc(name string, argTypes ...Type) *Func {
	f := &Func{name: name, body: NewBlock(argTypes...)}
	f.body.fn = f
	return f
}

// Name of the function.
func (f *Func) Name() string {
	return f.name
}

// Body returns the block of the function.
func (f *Func) Body() *Block {
	return f.body
}

// Arg returns the ith argument of the function.
func (f *Func) Arg(i int) *Value {
	return f.body.args[i]
}

// Walk all the operations of the function in program order.
func (f *Func) Walk(fn func(*Op) bool) bool {
	return f.body.Walk(fn)
}

// Ops returns all the operations of the function, including nested operations, in program order.
func (f *Func) Ops() []*Op {
	var ops []*Op
	f.Walk(func(op *Op) bool {
		ops = append(ops, op)
		return true
	})
	return ops
}

// Users returns the operations using a value in program order.
// An operation using the same value several times is listed once.
func (f *Func) Users(v *Value) []*Op {
	var users []*Op
	f.Walk(func(op *Op) bool {
		if op.Uses(v) {
			users = append(users, op)
		}
		return true
	})
	return users
}

// HasUses returns true if at least one operation uses the value.
func (f *Func) HasUses(v *Value) bool {
	found := false
	f.Walk(func(op *Op) bool {
		found = op.Uses(v)
		return !found
	})
	return found
}

// PrevUser returns the user of a value preceding a given user in program order.
// It returns nil if op is the first user or does not use the value.
func (f *Func) PrevUser(v *Value, op *Op) *Op {
	users := f.Users(v)
	i := slices.Index(users, op)
	if i <= 0 {
		return nil
	}
	return users[i-1]
}

// ReplaceAllUses replaces all the uses of old by repl.
func (f *Func) ReplaceAllUses(old, repl *Value) {
	f.ReplaceAllUsesExcept(old, repl, nil)
}

// ReplaceAllUsesExcept replaces all the uses of old by repl except in a given operation.
func (f *Func) ReplaceAllUsesExcept(old, repl *Value, except *Op) {
	f.Walk(func(op *Op) bool {
		if op == except {
			return true
		}
		for i, operand := range op.operands {
			if operand == old {
				op.operands[i] = repl
			}
		}
		return true
	})
}

// Verify checks that all operands are defined before being used,
// either in the same block or in an enclosing one.
func (f *Func) Verify() error {
	return verifyBlock(f.body, map[*Value]bool{})
}

func verifyBlock(b *Block, visible map[*Value]bool) error {
	scope := make(map[*Value]bool, len(visible)+len(b.args))
	for v := range visible {
		scope[v] = true
	}
	for _, arg := range b.args {
		scope[arg] = true
	}
	for i, op := range b.ops {
		if op.block != b {
			return errors.Errorf("operation %d (%s) has an inconsistent parent block", i, op.kind)
		}
		for j, operand := range op.operands {
			if operand == nil {
				return errors.Errorf("operand %d of operation %d (%s) is nil", j, i, op.kind)
			}
			if !scope[operand] {
				return errors.Errorf("operand %d of operation %d (%s) is not defined before use", j, i, op.kind)
			}
		}
		if op.region != nil {
			if op.region.owner != op {
				return errors.Errorf("operation %d (%s) has an inconsistent region", i, op.kind)
			}
			if err := verifyBlock(op.region.block, scope); err != nil {
				return errors.Wrapf(err, "in region of operation %d (%s)", i, op.kind)
			}
		}
		for _, res := range op.results {
			scope[res] = true
		}
	}
	return nil
}
