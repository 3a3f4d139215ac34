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

// Package sync provides synchronized containers.
package sync

import (
	"iter"
	"sync"
)

// Map is a generic map safe for concurrent use.
// It is a wrapper around Go's standard sync.Map, with all the same caveats.
type Map[K comparable, V any] struct {
	m sync.Map
}

// Store a key,value pair.
func (sm *Map[K, V]) Store(k K, v V) {
	sm.m.Store(k, v)
}

// Load returns the value of a key and whether the key was present.
func (sm *Map[K, V]) Load(k K) (v V, ok bool) {
	vAny, ok := sm.m.Load(k)
	if !ok {
		return v, false
	}
	return vAny.(V), true
}

// LoadAndDelete deletes the value of a key and returns the previous value.
func (sm *Map[K, V]) LoadAndDelete(k K) (v V, ok bool) {
	vAny, ok := sm.m.LoadAndDelete(k)
	if !ok {
		return v, false
	}
	return vAny.(V), true
}

// Size returns the number of elements in the map. This takes O(n) time.
func (sm *Map[K, V]) Size() (i int) {
	for range sm.All() {
		i++
	}
	return
}

// All returns an iterator over the pairs of the map.
// Pairs stored or deleted while iterating may or may not be visited.
func (sm *Map[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		sm.m.Range(func(k, v any) bool {
			return yield(k.(K), v.(V))
		})
	}
}
