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
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gx-org/tpp/config"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
)

type logFlags struct {
	level  string
	format string
}

func (lf *logFlags) flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Destination: &lf.level,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (text, json)",
			Destination: &lf.format,
		},
	}
}

// apply overwrites the logging configuration with the flags set on the command line.
func (lf *logFlags) apply(cmd *cli.Command, cfg *config.Log) {
	if cmd.IsSet("log-level") {
		cfg.Level = lf.level
	}
	if cmd.IsSet("log-format") {
		cfg.Format = lf.format
	}
}

func newLogger(w io.Writer, cfg config.Log) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	switch cfg.Format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, errors.Errorf("invalid log format %q", cfg.Format)
}

// parseTiles parses a comma separated list of tiles.
func parseTiles(s string) ([]int, error) {
	var tiles []int
	for _, field := range strings.Split(s, ",") {
		tile, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return nil, errors.Errorf("invalid tiles %q", s)
		}
		tiles = append(tiles, tile)
	}
	return tiles, nil
}
