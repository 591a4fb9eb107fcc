// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package cerr

import (
	"context"
	"errors"
	"net/http"
)

// Code is the machine-readable error classification which is recorded
// in audit operation rows and returned in REST error envelopes.
type Code string

// Error codes of the project-wide error taxonomy.
//
// InvalidInput is a caller bug and is never retried. Transient covers
// dependency unavailability, timeouts, and network failures; it is
// retried per policy and feeds the circuit breakers. Fatal covers
// unsupported versions and denied authentication; it is not retried
// and trips its breaker immediately. CircuitOpen is the fail-fast
// rejection of an OPEN breaker and does not count against retry
// budgets. AlreadyRunning rejects a concurrent reconciliation request.
// Internal marks invariant violations which are recorded per item
// without aborting the surrounding run.
const (
	CodeInvalidInput   Code = "INVALID_INPUT"
	CodeNotFound       Code = "NOT_FOUND"
	CodeTransient      Code = "TRANSIENT_DEPENDENCY"
	CodeFatal          Code = "FATAL_DEPENDENCY"
	CodeCircuitOpen    Code = "CIRCUIT_OPEN"
	CodeAlreadyRunning Code = "ALREADY_RUNNING"
	CodeUnknown        Code = "UNKNOWN"
	CodeInternal       Code = "INTERNAL"
)

// Transient wraps err as a retriable dependency failure, mapped to
// HTTP 503 when it reaches the REST layer.
func Transient(err error) *Error {
	return &Error{
		Err:            err,
		HTTPStatusCode: http.StatusServiceUnavailable,
		Code:           CodeTransient,
	}
}

// Fatal wraps err as a non-retriable dependency failure (unsupported
// broker version, denied authentication, and alike).
func Fatal(err error) *Error {
	return &Error{
		Err:            err,
		HTTPStatusCode: http.StatusBadGateway,
		Code:           CodeFatal,
	}
}

// CircuitOpen wraps err as a fail-fast rejection of an OPEN circuit
// breaker, surfaced as dependency-down.
func CircuitOpen(err error) *Error {
	return &Error{
		Err:            err,
		HTTPStatusCode: http.StatusServiceUnavailable,
		Code:           CodeCircuitOpen,
	}
}

// AlreadyRunning wraps err as a conflict with an in-progress
// reconciliation run, mapped to HTTP 409.
func AlreadyRunning(err error) *Error {
	return &Error{
		Err:            err,
		HTTPStatusCode: http.StatusConflict,
		Code:           CodeAlreadyRunning,
	}
}

// Internal wraps err as an invariant violation.
func Internal(err error) *Error {
	return &Error{
		Err:            err,
		HTTPStatusCode: http.StatusInternalServerError,
		Code:           CodeInternal,
	}
}

// Classify maps an arbitrary error to its taxonomy Code, so it can be
// recorded as the errorCode of an audit operation row. Errors which
// are not *Error instances are classified as UNKNOWN, except context
// deadline and cancellation errors which are transient by nature.
func Classify(err error) Code {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) && ce.Code != "" {
		return ce.Code
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return CodeTransient
	}
	return CodeUnknown
}

// IsTransient reports whether err should be retried per policy.
func IsTransient(err error) bool {
	return Classify(err) == CodeTransient
}
