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

// Package server compiles programs through a REST API.
package server

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gx-org/tpp/config"
	"github.com/gx-org/tpp/irjson"
	"github.com/gx-org/tpp/passes"
	"github.com/labstack/echo/v5"
)

type (
	// CompileRequest is the body of a compilation request.
	CompileRequest struct {
		// Config is a YAML configuration document with a pipeline and a program.
		Config string `json:"config"`
		// Emit selects the representation of the result: "text" (default) or "json".
		Emit string `json:"emit,omitempty"`
	}

	// PassReport summarizes the application of a pass.
	PassReport struct {
		Pass       string         `json:"pass"`
		Rewrites   int            `json:"rewrites"`
		Iterations int            `json:"iterations"`
		Converged  bool           `json:"converged"`
		Applied    map[string]int `json:"applied,omitempty"`
		Declines   []string       `json:"declines,omitempty"`
	}

	// CompileResponse is the result of a compilation.
	CompileResponse struct {
		ID        string       `json:"id"`
		CreatedAt int64        `json:"created_at"`
		Status    string       `json:"status"`
		Passes    []PassReport `json:"passes,omitempty"`
		Text      string       `json:"text,omitempty"`
		IR        *irjson.Func `json:"ir,omitempty"`
		Error     string       `json:"error,omitempty"`
	}

	// ErrorResponse is returned when a request is invalid.
	ErrorResponse struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	}
)

// Compilation status.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Server compiles programs.
type Server struct {
	store  *Store
	logger *slog.Logger
	clock  func() time.Time
}

// New returns a server saving its results in a store.
func New(store *Store, logger *slog.Logger) *Server {
	if store == nil {
		store = NewStore()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		store:  store,
		logger: logger,
		clock:  time.Now,
	}
}

// Register the routes of the server.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/passes", s.handleListPasses)
	e.POST("/v1/compile", s.handleCompile)
	e.GET("/v1/compile/:id", s.handleGetCompile)
	e.DELETE("/v1/compile/:id", s.handleDeleteCompile)
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, map[string]any{
		"error": ErrorResponse{Message: msg, Type: errType},
	})
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

func (s *Server) handleListPasses(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]string{
		"passes":   passes.Names(),
		"patterns": passes.PatternNames(),
	})
}

func reports(rs []passes.Report) []PassReport {
	var res []PassReport
	for _, r := range rs {
		rep := PassReport{
			Pass:       r.Pass,
			Rewrites:   r.Result.Rewrites,
			Iterations: r.Result.Iterations,
			Converged:  r.Result.Converged,
		}
		for name, n := range r.Result.Applied.Iter() {
			if rep.Applied == nil {
				rep.Applied = make(map[string]int)
			}
			rep.Applied[name] = n
		}
		for _, d := range r.Result.DeclineList() {
			rep.Declines = append(rep.Declines, d.Error())
		}
		res = append(res, rep)
	}
	return res
}

// compile runs the pipeline of a configuration on its program.
// Errors in the request are returned. Errors of the pipeline are recorded in the response.
func (s *Server) compile(req CompileRequest, resp *CompileResponse) error {
	cfg, err := config.Parse([]byte(req.Config))
	if err != nil {
		return err
	}
	fn, err := cfg.Program.Build()
	if err != nil {
		return err
	}
	pipeline, err := cfg.NewPipeline(s.logger.With("compile", resp.ID))
	if err != nil {
		return err
	}
	rs, err := pipeline.Run(fn)
	resp.Passes = reports(rs)
	resp.Status = StatusCompleted
	if err != nil {
		resp.Status = StatusFailed
		resp.Error = err.Error()
	}
	if req.Emit == "json" {
		resp.IR = irjson.Dump(fn)
	} else {
		resp.Text = fn.String()
	}
	return nil
}

func (s *Server) handleCompile(c *echo.Context) error {
	req, err := decodeJSON[CompileRequest](c.Request().Body)
	if err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error())
	}
	if req.Emit != "" && req.Emit != "text" && req.Emit != "json" {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "emit must be text or json")
	}
	resp := &CompileResponse{
		ID:        "cmp_" + uuid.NewString(),
		CreatedAt: s.clock().Unix(),
	}
	if err := s.compile(req, resp); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error())
	}
	s.store.Save(resp)
	s.logger.Info("compiled", "id", resp.ID, "status", resp.Status)
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetCompile(c *echo.Context) error {
	id := c.Param("id")
	resp, ok := s.store.Get(id)
	if !ok {
		return writeError(c, http.StatusNotFound, "not_found_error", "compilation not found")
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDeleteCompile(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeError(c, http.StatusNotFound, "not_found_error", "compilation not found")
	}
	return c.JSON(http.StatusOK, map[string]any{"id": id, "deleted": true})
}
