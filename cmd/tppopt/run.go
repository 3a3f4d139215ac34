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

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/gx-org/tpp/config"
	"github.com/gx-org/tpp/irjson"
	"github.com/gx-org/tpp/transforms/blocking"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
)

func runCmd() *cli.Command {
	var (
		configPath string
		emit       string
		tiles      string
		passNames  []string
		target     string
		output     string
		logs       logFlags
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Run the pipeline of a configuration file on its program",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to the YAML configuration",
				Required:    true,
				Destination: &configPath,
			},
			&cli.StringFlag{
				Name:        "emit",
				Usage:       "output representation (text, json)",
				Value:       "text",
				Destination: &emit,
			},
			&cli.StringFlag{
				Name:        "tiles",
				Usage:       "comma separated tiles of the matmul blocking",
				Destination: &tiles,
			},
			&cli.StringSliceFlag{
				Name:        "pass",
				Usage:       "pass to run (repeat for a pipeline)",
				Destination: &passNames,
			},
			&cli.StringFlag{
				Name:        "target",
				Usage:       "target CPU (host, generic, avx2, avx512, avx512bf16, neon)",
				Destination: &target,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "output file (default: standard output)",
				Destination: &output,
			},
		}, logs.flags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if emit != "text" && emit != "json" {
				return errors.Errorf("invalid --emit %q: want text or json", emit)
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.IsSet("tiles") {
				ts, err := parseTiles(tiles)
				if err != nil {
					return err
				}
				if cfg.Pipeline.Tiles == nil {
					cfg.Pipeline.Tiles = make(map[string][]int)
				}
				cfg.Pipeline.Tiles[blocking.Matmul{}.Name()] = ts
			}
			if cmd.IsSet("pass") {
				cfg.Pipeline.Passes = passNames
			}
			if cmd.IsSet("target") {
				cfg.Target = target
			}
			logs.apply(cmd, &cfg.Log)
			if err := cfg.Validate(); err != nil {
				return err
			}
			log, err := newLogger(cmd.Root().ErrWriter, cfg.Log)
			if err != nil {
				return err
			}

			fn, err := cfg.Program.Build()
			if err != nil {
				return errors.Wrapf(err, "%s", configPath)
			}
			pipeline, err := cfg.NewPipeline(log)
			if err != nil {
				return err
			}
			log.Debug("running pipeline", "func", fn.Name(), "passes", pipeline.Passes())
			if _, err := pipeline.Run(fn); err != nil {
				return err
			}

			var w io.Writer = cmd.Root().Writer
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return errors.Wrapf(err, "cannot create output")
				}
				defer f.Close()
				w = f
			}
			if emit == "json" {
				data, err := irjson.Marshal(fn)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(w, string(data))
				return err
			}
			_, err = fmt.Fprint(w, fn.String())
			return err
		},
	}
}
