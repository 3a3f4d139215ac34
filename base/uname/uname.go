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

// Package uname provides unique names.
package uname

import "fmt"

// Unique generates unique names.
type Unique struct {
	names map[string]int
	next  int
}

// New name generator.
func New() *Unique {
	return &Unique{names: make(map[string]int)}
}

// Name returns a unique name given a desired base name.
// If the base name is available, it is returned directly. Else, a unique suffix is appended.
// An empty base name returns the next free number.
func (n *Unique) Name(root string) string {
	if root == "" {
		return n.number()
	}
	nextIndex, ok := n.names[root]
	if !ok {
		n.names[root] = 1
		return root
	}
	name := fmt.Sprintf("%s_%d", root, nextIndex)
	n.names[root] = nextIndex + 1
	n.names[name] = 1
	return name
}

func (n *Unique) number() string {
	for {
		name := fmt.Sprint(n.next)
		n.next++
		if _, taken := n.names[name]; taken {
			continue
		}
		n.names[name] = 1
		return name
	}
}
