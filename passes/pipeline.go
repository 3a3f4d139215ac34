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

package passes

import (
	"github.com/gx-org/tpp/ir"
	"github.com/gx-org/tpp/ir/fmterr"
	"github.com/gx-org/tpp/rewrite"
	"github.com/pkg/errors"
)

// Report is the result of a pass of a pipeline.
type Report struct {
	// Pass is the name of the pass.
	Pass string
	// Result of the rewrite driver.
	Result *rewrite.Result
}

// Pipeline is a sequence of passes sharing the same options.
type Pipeline struct {
	passes []*Pass
	opts   *Options
}

// NewPipeline returns a pipeline given the names of its passes.
// All the passes are run if no name is given.
func NewPipeline(opts *Options, names ...string) (*Pipeline, error) {
	if opts == nil {
		opts = &Options{}
	}
	p := &Pipeline{opts: opts}
	if len(names) == 0 {
		p.passes = All()
		return p, nil
	}
	for _, name := range names {
		pass, err := Lookup(name)
		if err != nil {
			return nil, err
		}
		p.passes = append(p.passes, pass)
	}
	return p, nil
}

// Passes returns the names of the passes of the pipeline.
func (p *Pipeline) Passes() []string {
	names := make([]string, len(p.passes))
	for i, pass := range p.passes {
		names[i] = pass.name
	}
	return names
}

// Run applies all the passes of the pipeline to a function.
// The pipeline stops at the first pass returning an error.
func (p *Pipeline) Run(fn *ir.Func) ([]Report, error) {
	logger := p.opts.logger()
	var reports []Report
	for _, pass := range p.passes {
		res, err := pass.Run(fn, p.opts)
		if res != nil {
			reports = append(reports, Report{Pass: pass.name, Result: res})
		}
		if err != nil {
			return reports, err
		}
		if err := fn.Verify(); err != nil {
			return reports, fmterr.Internal(errors.Wrapf(err, "%s produced an invalid function", pass.name))
		}
		logger.Info("pass done",
			"pass", pass.name,
			"rewrites", res.Rewrites,
			"iterations", res.Iterations,
			"erased", res.Erased,
			"declines", len(res.DeclineList()))
		if !res.Converged {
			logger.Warn("pass did not converge", "pass", pass.name, "iterations", res.Iterations)
		}
	}
	return reports, nil
}
