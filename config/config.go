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

// Package config loads a pipeline and a program from a YAML document.
//
// A document looks like:
//
//	target: avx512
//	log:
//	  level: debug
//	pipeline:
//	  passes: [to-block-layout-and-back, propagate-pack-unpack]
//	  tiles:
//	    matmul-blocking: [32, 32, 32]
//	program:
//	  name: mlp
//	  args:
//	    - {name: x, type: "tensor<128x256xf32>"}
//	    - {name: w, type: "tensor<256x512xf32>"}
//	    - {name: c, type: "tensor<128x512xf32>"}
//	  ops:
//	    - {op: matmul, ins: [x, w], out: c, name: y}
//	  return: [y]
package config

import (
	"bytes"
	"log/slog"
	"os"
	"sort"

	"github.com/gx-org/tpp/api/options"
	"github.com/gx-org/tpp/passes"
	"github.com/gx-org/tpp/target"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/exp/maps"
	"gopkg.in/yaml.v3"
)

type (
	// File is the content of a configuration document.
	File struct {
		// Target is the name of the CPU for which tiles are picked.
		// Empty or "host" detects the CPU of the host.
		Target   string   `yaml:"target"`
		Log      Log      `yaml:"log"`
		Pipeline Pipeline `yaml:"pipeline"`
		Program  Program  `yaml:"program"`
	}

	// Log configures the logger of the tools.
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	}

	// Pipeline lists the passes to run and their options.
	Pipeline struct {
		// Passes to run in order. All the passes are run if empty.
		Passes []string `yaml:"passes"`
		// Tiles overwrites the tiles of blocking patterns.
		Tiles map[string][]int `yaml:"tiles"`
		// Disable lists patterns to remove from their pass.
		Disable []string `yaml:"disable"`
		// MaxIterations of the rewrite driver for each pass.
		MaxIterations int `yaml:"max_iterations"`
	}

	// Program is a straight-line function.
	Program struct {
		Name   string   `yaml:"name"`
		Args   []Arg    `yaml:"args"`
		Ops    []Op     `yaml:"ops"`
		Return []string `yaml:"return"`
	}

	// Arg is an argument of the program.
	Arg struct {
		Name string `yaml:"name"`
		Type string `yaml:"type"`
	}

	// Op is an operation of the program.
	// Fields are used or ignored depending on the kind of the operation.
	Op struct {
		Op        string   `yaml:"op"`
		Ins       []string `yaml:"ins"`
		Out       string   `yaml:"out"`
		Name      string   `yaml:"name"`
		Type      string   `yaml:"type"`
		Value     float64  `yaml:"value"`
		Strides   []int    `yaml:"strides"`
		Dilations []int    `yaml:"dilations"`
		Low       []int    `yaml:"low"`
		High      []int    `yaml:"high"`
	}
)

// Parse a configuration document.
// Unknown fields are errors.
func Parse(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	f := &File{}
	if err := dec.Decode(f); err != nil {
		return nil, errors.Wrap(err, "cannot parse configuration")
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Load reads and parses a configuration file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read configuration")
	}
	f, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return f, nil
}

// tileNames returns the patterns for which tiles are set, in a deterministic order.
func (p *Pipeline) tileNames() []string {
	names := maps.Keys(p.Tiles)
	sort.Strings(names)
	return names
}

// Validate checks the pipeline against the known passes and patterns.
func (f *File) Validate() error {
	var errs error
	for _, name := range f.Pipeline.Passes {
		if _, err := passes.Lookup(name); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	known := passes.PatternNames()
	isKnown := func(name string) bool {
		i := sort.SearchStrings(known, name)
		return i < len(known) && known[i] == name
	}
	for _, name := range f.Pipeline.tileNames() {
		if !isKnown(name) {
			errs = multierr.Append(errs, errors.Errorf("tiles set for unknown pattern %q", name))
			continue
		}
		for _, tile := range f.Pipeline.Tiles[name] {
			if tile <= 0 {
				errs = multierr.Append(errs, errors.Errorf("non-positive tile in %s: %v", name, f.Pipeline.Tiles[name]))
				break
			}
		}
	}
	for _, name := range f.Pipeline.Disable {
		if !isKnown(name) {
			errs = multierr.Append(errs, errors.Errorf("cannot disable unknown pattern %q", name))
		}
	}
	if f.Pipeline.MaxIterations < 0 {
		errs = multierr.Append(errs, errors.Errorf("negative maximum number of iterations: %d", f.Pipeline.MaxIterations))
	}
	if _, err := ParseLevel(f.Log.Level); err != nil {
		errs = multierr.Append(errs, err)
	}
	if _, err := target.ParseArch(f.Target); err != nil {
		errs = multierr.Append(errs, err)
	}
	return errs
}

// Options returns the options of the passes.
func (f *File) Options(logger *slog.Logger) (*passes.Options, error) {
	tgt, err := target.ParseArch(f.Target)
	if err != nil {
		return nil, err
	}
	opts := &passes.Options{
		Target:        tgt,
		MaxIterations: f.Pipeline.MaxIterations,
		Logger:        logger,
	}
	for _, name := range f.Pipeline.tileNames() {
		opts.PassOptions = append(opts.PassOptions, options.PatternTiles{
			Name:  name,
			Tiles: f.Pipeline.Tiles[name],
		})
	}
	for _, name := range f.Pipeline.Disable {
		opts.PassOptions = append(opts.PassOptions, options.DisablePattern{Name: name})
	}
	return opts, nil
}

// NewPipeline returns the pipeline described by the configuration.
func (f *File) NewPipeline(logger *slog.Logger) (*passes.Pipeline, error) {
	opts, err := f.Options(logger)
	if err != nil {
		return nil, err
	}
	return passes.NewPipeline(opts, f.Pipeline.Passes...)
}

// ParseLevel returns the slog level given its name.
// An empty name is the info level.
func ParseLevel(name string) (slog.Level, error) {
	if name == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return level, errors.Errorf("invalid log level %q", name)
	}
	return level, nil
}
