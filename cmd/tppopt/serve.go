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
	"log/slog"
	"net/http"
	"time"

	"github.com/gx-org/tpp/config"
	"github.com/gx-org/tpp/passes"
	"github.com/gx-org/tpp/server"
	"github.com/gx-org/tpp/target"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		ttl         time.Duration
		logs        logFlags
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the compilation REST API",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.DurationFlag{
				Name:        "ttl",
				Usage:       "time during which compilation results are kept",
				Value:       time.Hour,
				Destination: &ttl,
			},
		}, logs.flags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var logCfg config.Log
			logs.apply(cmd, &logCfg)
			log, err := newLogger(cmd.Root().ErrWriter, logCfg)
			if err != nil {
				return err
			}

			store := server.NewStore()
			if ttl > 0 {
				go expire(ctx, store, ttl, log)
			}

			srv := server.New(store, log)
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			srv.Register(e)
			log.Info("starting server", "address", addr)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(s *http.Server) error {
					s.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}

func expire(ctx context.Context, store *server.Store, ttl time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(max(ttl/2, time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := store.Expire(now.Add(-ttl)); n > 0 {
				log.Debug("expired compilations", "count", n)
			}
		}
	}
}

func passesCmd() *cli.Command {
	return &cli.Command{
		Name:  "passes",
		Usage: "List the passes and their patterns",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			w := cmd.Root().Writer
			opts := &passes.Options{Target: target.Detect()}
			for _, p := range passes.All() {
				if _, err := fmt.Fprintln(w, p.Name()); err != nil {
					return err
				}
				for _, pat := range p.Patterns(opts) {
					if _, err := fmt.Fprintln(w, "  "+pat.Name()); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}
