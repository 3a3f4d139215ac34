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

package server

import (
	"time"

	"github.com/gx-org/tpp/base/sync"
)

// Store keeps the results of compilations in memory.
type Store struct {
	results sync.Map[string, *CompileResponse]
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Save a result. The result is indexed by its ID.
func (s *Store) Save(res *CompileResponse) {
	s.results.Store(res.ID, res)
}

// Get returns a result given its ID.
func (s *Store) Get(id string) (*CompileResponse, bool) {
	return s.results.Load(id)
}

// Delete a result. Returns false if no result has the ID.
func (s *Store) Delete(id string) bool {
	_, ok := s.results.LoadAndDelete(id)
	return ok
}

// Len returns the number of results in the store.
func (s *Store) Len() int {
	return s.results.Size()
}

// Expire deletes the results created before a deadline and returns the number of deleted results.
func (s *Store) Expire(before time.Time) int {
	n := 0
	for id, res := range s.results.All() {
		if res.CreatedAt >= before.Unix() {
			continue
		}
		if _, ok := s.results.LoadAndDelete(id); ok {
			n++
		}
	}
	return n
}
