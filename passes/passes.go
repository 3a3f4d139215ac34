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

// Package passes groups rewrite patterns into passes and runs pipelines of passes.
package passes

import (
	"log/slog"
	"slices"
	"sort"

	"github.com/gx-org/tpp/api/options"
	"github.com/gx-org/tpp/dialect/tpp"
	"github.com/gx-org/tpp/ir"
	"github.com/gx-org/tpp/rewrite"
	"github.com/gx-org/tpp/target"
	"github.com/gx-org/tpp/transforms/blocking"
	"github.com/gx-org/tpp/transforms/propagate"
	"github.com/gx-org/tpp/transforms/totpp"
	"github.com/gx-org/tpp/transforms/toxsmm"
	"github.com/pkg/errors"
)

// Options configures passes.
type Options struct {
	// Target provides the default tiles.
	Target target.Target
	// PassOptions overwrites the defaults of patterns.
	PassOptions []options.PassOption
	// MaxIterations is the maximum number of sweeps of a pass over a function.
	// Zero means rewrite.DefaultMaxIterations.
	MaxIterations int
	// Logger receives the rewrites and declines. Nil discards everything.
	Logger *slog.Logger
}

var defaultTiles = []options.PassOptionFactory{
	options.Tiles(blocking.Matmul{}.Name(), target.Target.MatmulTiles),
	options.Tiles(blocking.ConvNchwFchw{}.Name(), target.Target.ConvTiles),
	options.Tiles(blocking.ConvNhwcHwcf{}.Name(), target.Target.ConvTiles),
	options.Tiles(blocking.VNNIMatmul{}.Name(), func(t target.Target) []int {
		return []int{t.VNNIFactor()}
	}),
}

func (o *Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

// Tiles returns the tiles used by a pattern.
// The last option setting the tiles of the pattern wins over the target defaults.
func (o *Options) Tiles(pattern string) []int {
	var tiles []int
	for _, factory := range defaultTiles {
		if opt, ok := factory(o.Target).(options.PatternTiles); ok && opt.Name == pattern {
			tiles = opt.Tiles
		}
	}
	for _, opt := range o.PassOptions {
		if opt, ok := opt.(options.PatternTiles); ok && opt.Name == pattern {
			tiles = opt.Tiles
		}
	}
	return slices.Clone(tiles)
}

func (o *Options) disabled(pattern string) bool {
	for _, opt := range o.PassOptions {
		if opt, ok := opt.(options.DisablePattern); ok && opt.Name == pattern {
			return true
		}
	}
	return false
}

func (o *Options) rewriteOptions(dce bool) []rewrite.Option {
	opts := []rewrite.Option{rewrite.WithLogger(o.logger())}
	if o.MaxIterations > 0 {
		opts = append(opts, rewrite.WithMaxIterations(o.MaxIterations))
	}
	if dce {
		opts = append(opts, rewrite.WithDeadCodeElimination())
	}
	return opts
}

// Pass is a set of patterns applied greedily to a function.
type Pass struct {
	name     string
	patterns func(*Options) []rewrite.Pattern
	dce      bool
	verify   func(*ir.Func) error
}

// Name of the pass.
func (p *Pass) Name() string {
	return p.name
}

// Patterns returns the enabled patterns of the pass.
func (p *Pass) Patterns(opts *Options) []rewrite.Pattern {
	var enabled []rewrite.Pattern
	for _, pat := range p.patterns(opts) {
		if opts.disabled(pat.Name()) {
			continue
		}
		enabled = append(enabled, pat)
	}
	return enabled
}

// Run applies the pass to a function.
func (p *Pass) Run(fn *ir.Func, opts *Options) (*rewrite.Result, error) {
	if opts == nil {
		opts = &Options{Target: target.Detect()}
	}
	if p.verify != nil {
		if err := p.verify(fn); err != nil {
			return nil, errors.Wrapf(err, "%s: invalid input", p.name)
		}
	}
	res, err := rewrite.ApplyGreedily(fn, p.Patterns(opts), opts.rewriteOptions(p.dce)...)
	if err != nil {
		return res, errors.Wrapf(err, "%s", p.name)
	}
	return res, nil
}

var (
	// ToBlockLayoutAndBack blocks matrix multiplications and convolutions.
	// Operands are packed before and results unpacked after each blocked operation.
	ToBlockLayoutAndBack = &Pass{
		name: "to-block-layout-and-back",
		patterns: func(o *Options) []rewrite.Pattern {
			var pats []rewrite.Pattern
			pats = append(pats, blocking.DeGeneralizeMatmul{})
			if o.Target.BF16 {
				pats = append(pats, blocking.VNNIMatmul{Tiles: o.Tiles(blocking.VNNIMatmul{}.Name())})
			}
			return append(pats,
				blocking.Matmul{Tiles: o.Tiles(blocking.Matmul{}.Name())},
				blocking.ConvNchwFchw{Tiles: o.Tiles(blocking.ConvNchwFchw{}.Name())},
				blocking.ConvNhwcHwcf{Tiles: o.Tiles(blocking.ConvNhwcHwcf{}.Name())},
			)
		},
	}

	// PropagatePackUnpack moves unpack operations after pads and elementwise
	// operations and folds pack/unpack pairs.
	PropagatePackUnpack = &Pass{
		name: "propagate-pack-unpack",
		patterns: func(*Options) []rewrite.Pattern {
			return []rewrite.Pattern{
				propagate.FoldPackOfUnpack{},
				propagate.FoldUnpackOfPack{},
				propagate.ThroughPad{},
				propagate.ThroughElementwise{},
			}
		},
		dce: true,
	}

	// LinalgToTpp maps structured operations on buffers to TPP operations.
	LinalgToTpp = &Pass{
		name: "linalg-to-tpp",
		patterns: func(*Options) []rewrite.Pattern {
			return totpp.Patterns()
		},
	}

	// TppToXsmm lowers TPP operations to kernel dispatches and invocations.
	TppToXsmm = &Pass{
		name: "tpp-to-xsmm",
		patterns: func(*Options) []rewrite.Pattern {
			return toxsmm.Patterns()
		},
		verify: tpp.VerifyFunc,
	}
)

// All returns all the passes in their default pipeline order.
func All() []*Pass {
	return []*Pass{ToBlockLayoutAndBack, PropagatePackUnpack, LinalgToTpp, TppToXsmm}
}

// Lookup returns a pass given its name.
func Lookup(name string) (*Pass, error) {
	for _, p := range All() {
		if p.name == name {
			return p, nil
		}
	}
	return nil, errors.Errorf("unknown pass %q", name)
}

// Names returns the names of all the passes.
func Names() []string {
	var names []string
	for _, p := range All() {
		names = append(names, p.name)
	}
	return names
}

// PatternNames returns the sorted names of all the patterns of all the passes.
func PatternNames() []string {
	opts := &Options{Target: target.Target{BF16: true}}
	var names []string
	for _, p := range All() {
		for _, pat := range p.patterns(opts) {
			names = append(names, pat.Name())
		}
	}
	sort.Strings(names)
	return slices.Compact(names)
}
