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

package fmterr

import (
	"github.com/gx-org/tpp/ir"
	"go.uber.org/multierr"
)

type contextError struct {
	f   func(error) error
	err error
}

// Appender accumulates errors.
// Errors appended between Push and Pop are wrapped by the function given to Push.
type Appender struct {
	stack []contextError
	err   error
}

// Push a function wrapping all the errors appended until the next Pop.
func (app *Appender) Push(f func(error) error) {
	app.stack = append(app.stack, contextError{f: f})
}

// Pop the last context.
func (app *Appender) Pop() {
	last := app.stack[len(app.stack)-1]
	app.stack = app.stack[:len(app.stack)-1]
	if last.err == nil {
		return
	}
	app.Append(last.f(last.err))
}

// Append an error. Always returns false so that it can be used in return statements of checkers.
func (app *Appender) Append(err error) bool {
	if len(app.stack) == 0 {
		app.err = multierr.Append(app.err, err)
	} else {
		top := &app.stack[len(app.stack)-1]
		top.err = multierr.Append(top.err, err)
	}
	return false
}

// AppendAt appends an error attached to an operation.
func (app *Appender) AppendAt(op *ir.Op, err error) bool {
	return app.Append(At(op, err))
}

// Appendf appends a formatted error attached to an operation.
func (app *Appender) Appendf(op *ir.Op, format string, a ...any) bool {
	return app.Append(Errorf(op, format, a...))
}

// AppendInternalf appends a formatted internal error attached to an operation.
func (app *Appender) AppendInternalf(op *ir.Op, format string, a ...any) bool {
	return app.Append(Internalf(op, format, a...))
}

// Errors returns the list of errors appended so far.
func (app *Appender) Errors() []error {
	return multierr.Errors(app.Err())
}

// Err returns all the errors combined or nil if no error has been appended.
func (app *Appender) Err() error {
	if len(app.stack) > 0 {
		return Internalf(nil, "cannot fetch errors while the context stack is non-empty")
	}
	return app.err
}

// Empty returns true if no error has been appended.
func (app *Appender) Empty() bool {
	if app.err != nil {
		return false
	}
	for _, ctx := range app.stack {
		if ctx.err != nil {
			return false
		}
	}
	return true
}
