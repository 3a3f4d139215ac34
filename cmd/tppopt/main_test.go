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
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gx-org/tpp/irjson"
)

const buffers = `
pipeline:
  passes: [linalg-to-tpp, tpp-to-xsmm]
program:
  name: mlp
  args:
    - {name: x, type: "memref<4x8xf32>"}
    - {name: w, type: "memref<8x4xf32>"}
    - {name: c, type: "memref<4x4xf32>"}
  ops:
    - {op: matmul, ins: [x, w], out: c}
    - {op: relu, out: c}
`

const tensors = `
target: generic
program:
  args:
    - {name: x, type: "tensor<8x8xf32>"}
    - {name: w, type: "tensor<8x8xf32>"}
    - {name: c, type: "tensor<8x8xf32>"}
  ops:
    - {op: matmul, ins: [x, w], out: c, name: y}
  return: [y]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = io.Discard
	err := app.Run(context.Background(), append([]string{"tppopt"}, args...))
	return out.String(), err
}

func TestRun(t *testing.T) {
	tests := []struct {
		config string
		args   []string
		want   []string
	}{
		{
			config: buffers,
			want:   []string{"xsmm.ternary.dispatch", "xsmm.unary.dispatch", `kind = "RELU"`},
		},
		{
			config: tensors,
			args:   []string{"--tiles", "4,4,4", "--pass", "to-block-layout-and-back"},
			want:   []string{"linalgx.pack", "tensor<2x2x4x4xf32>", "linalgx.unpack"},
		},
		{
			config: buffers,
			args:   []string{"--pass", "linalg-to-tpp", "--log-level", "debug"},
			want:   []string{"tpp.matmul", "tpp.relu"},
		},
	}
	for i, test := range tests {
		args := append([]string{"run", "--config", writeConfig(t, test.config)}, test.args...)
		out, err := runApp(t, args...)
		if err != nil {
			t.Errorf("test %d: %+v", i, err)
			continue
		}
		for _, want := range test.want {
			if !strings.Contains(out, want) {
				t.Errorf("test %d: output does not contain %q:\n%s", i, want, out)
			}
		}
	}
}

func TestRunEmitJSON(t *testing.T) {
	path := writeConfig(t, buffers)
	output := filepath.Join(t.TempDir(), "out.json")
	if _, err := runApp(t, "run", "--config", path, "--emit", "json", "-o", output); err != nil {
		t.Fatalf("%+v", err)
	}
	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}
	fn, err := irjson.Unmarshal(data)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if fn.Name != "mlp" || len(fn.Ops) != 5 {
		t.Errorf("unexpected function: %s", data)
	}
}

func TestRunErrors(t *testing.T) {
	path := writeConfig(t, buffers)
	tests := []struct {
		args []string
		err  string
	}{
		{args: []string{"run"}, err: "config"},
		{args: []string{"run", "--config", path, "--emit", "svg"}, err: "invalid --emit"},
		{args: []string{"run", "--config", path, "--tiles", "4,x"}, err: "invalid tiles"},
		{args: []string{"run", "--config", path, "--pass", "unroll"}, err: `unknown pass "unroll"`},
		{args: []string{"run", "--config", path, "--log-format", "xml"}, err: `invalid log format "xml"`},
		{args: []string{"run", "--config", filepath.Join(t.TempDir(), "missing.yaml")}, err: "cannot read configuration"},
	}
	for i, test := range tests {
		_, err := runApp(t, test.args...)
		if err == nil {
			t.Errorf("test %d: expected an error", i)
			continue
		}
		if !strings.Contains(err.Error(), test.err) {
			t.Errorf("test %d: error %q does not contain %q", i, err.Error(), test.err)
		}
	}
}

func TestPasses(t *testing.T) {
	out, err := runApp(t, "passes")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"to-block-layout-and-back\n", "  matmul-blocking\n", "tpp-to-xsmm\n", "  relu-to-xsmm\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("output does not contain %q:\n%s", want, out)
		}
	}
}
