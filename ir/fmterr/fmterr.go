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

// Package fmterr formats errors attached to operations of a program.
//
// Two classes of errors are distinguished. A Decline is returned by a
// rewrite pattern when an operation does not match: the program is left
// unchanged and the driver moves on. Any other error is fatal and aborts
// the transformation. Internal marks errors that reveal a bug in the
// lowering rather than a problem with the input program.
package fmterr

import (
	"fmt"
	"io"
	"slices"

	"github.com/gx-org/tpp/ir"
	"github.com/pkg/errors"
)

// Location returns a string locating an operation in its function.
func Location(op *ir.Op) string {
	if op == nil {
		return "<nil op>"
	}
	fn := op.Func()
	if fn == nil {
		return fmt.Sprintf("detached %s", op.Kind())
	}
	return fmt.Sprintf("@%s#%d %s", fn.Name(), slices.Index(fn.Ops(), op), op.Kind())
}

type errorAtOp struct {
	loc string
	err error
}

// At attaches an error to an operation.
func At(op *ir.Op, err error) error {
	return errorAtOp{loc: Location(op), err: err}
}

// Errorf returns a formatted error attached to an operation.
func Errorf(op *ir.Op, format string, a ...any) error {
	return At(op, errors.Errorf(format, a...))
}

func (err errorAtOp) Error() string {
	return err.loc + ": " + err.err.Error()
}

func (err errorAtOp) Unwrap() error {
	return err.err
}

func (err errorAtOp) Format(s fmt.State, verb rune) {
	format(err, s, verb)
}

type internalError struct {
	err error
}

// Internal marks an error as internal.
// Internal errors are bugs in the lowering, not in the program being lowered.
func Internal(err error) error {
	return internalError{err: err}
}

// Internalf returns a formatted internal error attached to an operation.
func Internalf(op *ir.Op, format string, a ...any) error {
	return Internal(Errorf(op, format, a...))
}

func (err internalError) Error() string {
	return fmt.Sprintf("internal error. This is a bug in the lowering. Please report it. Error:\n%+v", err.err)
}

func (err internalError) Unwrap() error {
	return err.err
}

// IsInternal returns true if an internal error is in the chain of errors.
func IsInternal(err error) bool {
	var target internalError
	return errors.As(err, &target)
}

// Decline is returned by a rewrite pattern when an operation does not match.
type Decline struct {
	Pattern string
	Kind    ir.Kind
	Reason  string
}

// Declinef returns a decline of a pattern for an operation.
func Declinef(pattern string, op *ir.Op, format string, a ...any) *Decline {
	var kind ir.Kind
	if op != nil {
		kind = op.Kind()
	}
	return &Decline{Pattern: pattern, Kind: kind, Reason: fmt.Sprintf(format, a...)}
}

func (d *Decline) Error() string {
	return fmt.Sprintf("%s: %s: %s", d.Pattern, d.Kind, d.Reason)
}

// IsDecline returns true if the error is a decline.
func IsDecline(err error) bool {
	var target *Decline
	return errors.As(err, &target)
}

func formatVerbose(err error, s fmt.State) {
	io.WriteString(s, err.Error())
	var withSt interface {
		StackTrace() errors.StackTrace
	}
	if !errors.As(err, &withSt) {
		return
	}
	fmt.Fprintf(s, "\nError generated at:%+v\n", withSt.StackTrace())
}

func format(err error, s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			formatVerbose(err, s)
			return
		}
		io.WriteString(s, err.Error())
	case 's':
		io.WriteString(s, err.Error())
	case 'q':
		fmt.Fprintf(s, "%q", err.Error())
	}
}
