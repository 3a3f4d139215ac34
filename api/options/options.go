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

// Package options specifies options for passes.
package options

import "github.com/gx-org/tpp/target"

type (
	// PassOptionFactory creates options given a target.
	PassOptionFactory func(target.Target) PassOption

	// PassOption is an option specific to a pattern.
	PassOption interface {
		Pattern() string
	}

	// PatternTiles sets the tiles of a blocking pattern.
	PatternTiles struct {
		// Name of the pattern.
		Name string
		// Tiles used by the pattern.
		Tiles []int
	}

	// DisablePattern removes a pattern from the pass owning it.
	DisablePattern struct {
		// Name of the pattern.
		Name string
	}
)

// Pattern for which the option has been built.
func (p PatternTiles) Pattern() string {
	return p.Name
}

// Pattern for which the option has been built.
func (p DisablePattern) Pattern() string {
	return p.Name
}

// Tiles returns a factory setting the tiles of a pattern from a target.
func Tiles(name string, f func(target.Target) []int) PassOptionFactory {
	return func(t target.Target) PassOption {
		return PatternTiles{Name: name, Tiles: f(t)}
	}
}
