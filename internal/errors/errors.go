// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package errors implements the OMG error taxonomy: LLM errors propagate
// with context, parse errors never propagate (they become diagnostics),
// and I/O absence is normalized to a single sentinel check.
package errors

import (
	"errors"
	"fmt"
	"os"
)

// Is and As are re-exported so callers only need one errors import.
var (
	Is = errors.Is
	As = errors.As
)

// New and Join are re-exported for convenience alongside LLMError/ParseError.
var (
	New  = errors.New
	Join = errors.Join
)

// LLMError wraps a failure from the external LLM client with a short
// context label (e.g. "extract", "merge-decision", "reflection-level-2").
// The underlying cause is preserved for errors.Is/As.
type LLMError struct {
	Label string
	Err   error
}

func (e *LLMError) Error() string {
	return fmt.Sprintf("llm(%s): %v", e.Label, e.Err)
}

func (e *LLMError) Unwrap() error { return e.Err }

// WrapLLM wraps err with a context label. Returns nil if err is nil.
func WrapLLM(label string, err error) error {
	if err == nil {
		return nil
	}
	return &LLMError{Label: label, Err: err}
}

// ParseError describes a diagnostic from a parser that never propagates
// to the caller. Parsers return these as data (a slice of Diagnostic),
// not as a Go error return value.
type ParseError struct {
	Reason  string
	Detail  string
	Context string
}

func (e *ParseError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("parse(%s): %s: %s", e.Context, e.Reason, e.Detail)
	}
	return fmt.Sprintf("parse: %s: %s", e.Reason, e.Detail)
}

// IsAbsent reports whether err represents "file does not exist" at a read
// site. Every read call site treats this the same way: absent, not fatal.
func IsAbsent(err error) bool {
	return err != nil && os.IsNotExist(err)
}

// InvariantViolation is thrown by state factories when a constructed value
// would violate a documented invariant (e.g. updated < created). Lifecycle
// hook boundaries recover these and log a warning instead of propagating.
type InvariantViolation struct {
	Invariant string
	Detail    string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violated: %s: %s", e.Invariant, e.Detail)
}

// NewInvariantViolation constructs an InvariantViolation.
func NewInvariantViolation(invariant, detail string) error {
	return &InvariantViolation{Invariant: invariant, Detail: detail}
}

// RecoverToWarning is deferred at a lifecycle hook boundary (agent_end,
// before_agent_start, cron handlers) so a panic anywhere below never
// escapes the hook. logFn is typically a *slog.Logger.Warn-shaped closure.
func RecoverToWarning(logFn func(msg string, args ...any)) {
	if r := recover(); r != nil {
		logFn("recovered panic at lifecycle boundary", "panic", r)
	}
}
