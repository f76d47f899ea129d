// Copyright 2019-2020 Intel Corporation. All Rights Reserved.
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

// Package swapderr defines the typed error taxonomy shared by every
// controller: config-time, environment, resource, invariant and
// shutdown failures, each wrapping an underlying cause with
// github.com/pkg/errors so callers can errors.Is/errors.As through
// the chain.
package swapderr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies which branch of the error taxonomy an error belongs to.
type Kind int

const (
	// Config marks an unresolved variable, bad coercion, or missing key.
	// Fatal at start.
	Config Kind = iota
	// Environment marks a missing kernel module, missing external
	// binary, or insufficient privilege. Fatal at start, except for
	// controllers that may be gracefully skipped.
	Environment
	// Resource marks a failed device/file allocation. Non-fatal: the
	// owning controller retries or reduces ambition.
	Resource
	// Invariant marks runtime state disagreeing with sysfs in a way
	// that cannot be reconciled.
	Invariant
	// Shutdown marks a best-effort restore failure at stop. The
	// controller logs it and returns it to the supervisor, which logs
	// it again and still completes the shutdown.
	Shutdown
)

func (k Kind) String() string {
	switch k {
	case Config:
		return "ConfigError"
	case Environment:
		return "EnvironmentError"
	case Resource:
		return "ResourceError"
	case Invariant:
		return "InvariantError"
	case Shutdown:
		return "ShutdownError"
	default:
		return "Error"
	}
}

// Error is a typed, wrapped error carrying its taxonomy Kind.
type Error struct {
	kind Kind
	op   string
	err  error
}

// New creates a Kind error for operation op, wrapping cause.
func New(kind Kind, op string, cause error) *Error {
	return &Error{kind: kind, op: op, err: cause}
}

// Newf creates a Kind error for op with a formatted message, no wrapped cause.
func Newf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{kind: kind, op: op, err: fmt.Errorf(format, args...)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.op == "" {
		return fmt.Sprintf("%s: %s", e.kind, e.err)
	}
	return fmt.Sprintf("%s: %s: %s", e.kind, e.op, e.err)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.err
}

// Kind returns the taxonomy kind of this error.
func (e *Error) Kind() Kind {
	return e.kind
}

// Is reports whether target is a *Error with the same Kind, supporting
// errors.Is(err, swapderr.New(swapderr.Config, "", nil)) style checks.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.kind == other.kind
}

// Of reports k and whether err is (or wraps) a *Error of that Kind.
func Of(err error, k Kind) bool {
	var swe *Error
	if !errors.As(err, &swe) {
		return false
	}
	return swe.kind == k
}

// ConfigError wraps cause as a Config-kind error for operation op.
func ConfigError(op string, cause error) *Error { return New(Config, op, cause) }

// EnvironmentError wraps cause as an Environment-kind error for operation op.
func EnvironmentError(op string, cause error) *Error { return New(Environment, op, cause) }

// ResourceError wraps cause as a Resource-kind error for operation op.
func ResourceError(op string, cause error) *Error { return New(Resource, op, cause) }

// InvariantError wraps cause as an Invariant-kind error for operation op.
func InvariantError(op string, cause error) *Error { return New(Invariant, op, cause) }

// ShutdownError wraps cause as a Shutdown-kind error for operation op.
func ShutdownError(op string, cause error) *Error { return New(Shutdown, op, cause) }

// Wrap adds op context to cause using the same idiom as pkg/errors,
// without assigning it a taxonomy Kind. Used for plain internal
// plumbing errors that never need a Kind() check.
func Wrap(cause error, op string) error {
	if cause == nil {
		return nil
	}
	return errors.Wrap(cause, op)
}

// Wrapf is the formatted variant of Wrap.
func Wrapf(cause error, format string, args ...interface{}) error {
	if cause == nil {
		return nil
	}
	return errors.Wrapf(cause, format, args...)
}
