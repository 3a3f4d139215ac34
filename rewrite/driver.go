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

package rewrite

import (
	"log/slog"

	"github.com/gx-org/tpp/base/ordered"
	"github.com/gx-org/tpp/ir"
	"github.com/gx-org/tpp/ir/fmterr"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// DefaultMaxIterations is the default maximum number of sweeps over a function.
const DefaultMaxIterations = 10

type config struct {
	maxIterations int
	logger        *slog.Logger
	dce           bool
}

// Option configures the driver.
type Option func(*config)

// WithMaxIterations sets the maximum number of sweeps over the function.
func WithMaxIterations(n int) Option {
	return func(c *config) {
		c.maxIterations = n
	}
}

// WithLogger sets the logger used to report rewrites and declines.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithDeadCodeElimination removes operations with unused results after each sweep.
func WithDeadCodeElimination() Option {
	return func(c *config) {
		c.dce = true
	}
}

// Result summarizes the application of patterns to a function.
type Result struct {
	// Rewrites is the total number of committed rewrites.
	Rewrites int
	// Iterations is the number of sweeps over the function.
	Iterations int
	// Converged is true if the last sweep did not change the function.
	Converged bool
	// Applied counts the committed rewrites of each pattern.
	Applied *ordered.Map[string, int]
	// Erased is the number of operations removed by dead code elimination.
	Erased int
	// Declines accumulates the declines of the last sweep.
	Declines error
}

// DeclineList returns the declines of the last sweep.
func (r *Result) DeclineList() []*fmterr.Decline {
	var declines []*fmterr.Decline
	for _, err := range multierr.Errors(r.Declines) {
		var d *fmterr.Decline
		if errors.As(err, &d) {
			declines = append(declines, d)
		}
	}
	return declines
}

type driver struct {
	cfg      config
	fn       *ir.Func
	patterns []Pattern
	res      *Result
}

// ApplyGreedily applies patterns to the operations of a function until no pattern applies
// or the maximum number of iterations is reached.
//
// Each sweep visits the operations present at the beginning of the sweep in program order.
// For each operation still in the function, patterns are tried in order and the first
// rewrite succeeding is committed before moving to the next operation.
// A fatal error stops the driver and the function keeps all the rewrites committed so far.
func ApplyGreedily(fn *ir.Func, patterns []Pattern, opts ...Option) (*Result, error) {
	d := &driver{
		cfg: config{
			maxIterations: DefaultMaxIterations,
			logger:        slog.New(slog.DiscardHandler),
		},
		fn:       fn,
		patterns: patterns,
		res:      &Result{Applied: ordered.NewMap[string, int]()},
	}
	for _, opt := range opts {
		opt(&d.cfg)
	}
	for d.res.Iterations < d.cfg.maxIterations {
		d.res.Iterations++
		changed, err := d.sweep()
		if err != nil {
			return d.res, err
		}
		if d.cfg.dce {
			erased := EliminateDeadCode(fn)
			d.res.Erased += erased
			changed = changed || erased > 0
		}
		if !changed {
			d.res.Converged = true
			break
		}
	}
	d.cfg.logger.Debug("rewrite done",
		"func", fn.Name(),
		"rewrites", d.res.Rewrites,
		"iterations", d.res.Iterations,
		"converged", d.res.Converged)
	return d.res, nil
}

func (d *driver) sweep() (bool, error) {
	d.res.Declines = nil
	changed := false
	for _, op := range d.fn.Ops() {
		if !op.IsAlive() {
			continue
		}
		applied, err := d.apply(op)
		if err != nil {
			return changed, err
		}
		changed = changed || applied
	}
	return changed, nil
}

func (d *driver) apply(op *ir.Op) (bool, error) {
	for _, pattern := range d.patterns {
		if root := pattern.Root(); root != "" && root != op.Kind() {
			continue
		}
		rw := newRewriter(d.fn, pattern.Name(), op)
		err := pattern.MatchAndRewrite(rw, op)
		if fmterr.IsDecline(err) {
			d.res.Declines = multierr.Append(d.res.Declines, err)
			d.cfg.logger.Debug("decline", "pattern", pattern.Name(), "op", fmterr.Location(op), "reason", err)
			continue
		}
		if err != nil {
			return false, errors.Wrapf(err, "pattern %s failed on %s", pattern.Name(), fmterr.Location(op))
		}
		if !rw.hasChanges() {
			continue
		}
		loc := fmterr.Location(op)
		if err := rw.commit(); err != nil {
			return false, errors.Wrapf(err, "pattern %s failed to commit on %s", pattern.Name(), loc)
		}
		d.res.Rewrites++
		n, _ := d.res.Applied.Load(pattern.Name())
		d.res.Applied.Store(pattern.Name(), n+1)
		d.cfg.logger.Debug("rewrite", "pattern", pattern.Name(), "op", loc)
		return true, nil
	}
	return false, nil
}

// EliminateDeadCode removes operations with results that are all unused.
// Operations without results are kept since they write into buffers.
// It returns the number of operations removed.
func EliminateDeadCode(fn *ir.Func) int {
	erased := 0
	for {
		ops := fn.Ops()
		removed := false
		for i := len(ops) - 1; i >= 0; i-- {
			op := ops[i]
			if op.NumResults() == 0 || !op.IsAlive() {
				continue
			}
			used := false
			for _, res := range op.Results() {
				if fn.HasUses(res) {
					used = true
					break
				}
			}
			if used {
				continue
			}
			op.Block().Erase(op)
			erased++
			removed = true
		}
		if !removed {
			return erased
		}
	}
}
