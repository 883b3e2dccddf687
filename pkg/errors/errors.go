// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package errors provides the closed error taxonomy for graphmcp.
// Every fallible operation in the gateway returns (or wraps) an *Error,
// which carries the machine-readable code and the HTTP status the outer
// transport should reflect.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes recognised by the gateway.
const (
	// CodeAuthRequired covers missing or invalid caller bearers, invalid
	// or expired sessions, and unknown JWKS keys.
	CodeAuthRequired = "AUTH_REQUIRED"

	// CodeValidationError covers malformed input and oversized payloads.
	CodeValidationError = "VALIDATION_ERROR"

	// CodeUpstreamError covers non-retryable upstream failures and
	// exhausted retries.
	CodeUpstreamError = "UPSTREAM_ERROR"

	// CodeNotFound is the domain-specific not-found surface used by
	// tool handlers.
	CodeNotFound = "NOT_FOUND"

	// CodeConflict is the domain-specific conflict surface used by
	// tool handlers.
	CodeConflict = "CONFLICT"

	// CodeInternal covers unexpected internal failures.
	CodeInternal = "INTERNAL_ERROR"
)

// Error is the gateway's error type. It is classified by Code rather than
// by Go type; Status is the HTTP status the transport maps it to.
type Error struct {
	Code          string
	Message       string
	Status        int
	CorrelationID string
	Cause         error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// New creates an Error with an explicit code, message, and status.
func New(code, message string, status int) *Error {
	return &Error{Code: code, Message: message, Status: status}
}

// AuthRequired creates an AUTH_REQUIRED error (401).
func AuthRequired(message string) *Error {
	return &Error{Code: CodeAuthRequired, Message: message, Status: http.StatusUnauthorized}
}

// Validation creates a VALIDATION_ERROR error (400).
func Validation(message string) *Error {
	return &Error{Code: CodeValidationError, Message: message, Status: http.StatusBadRequest}
}

// PayloadTooLarge creates a VALIDATION_ERROR error with a 413 status.
func PayloadTooLarge(message string) *Error {
	return &Error{Code: CodeValidationError, Message: message, Status: http.StatusRequestEntityTooLarge}
}

// Upstream creates an UPSTREAM_ERROR error (502).
func Upstream(message string, cause error) *Error {
	return &Error{Code: CodeUpstreamError, Message: message, Status: http.StatusBadGateway, Cause: cause}
}

// NotFound creates a NOT_FOUND error (404).
func NotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message, Status: http.StatusNotFound}
}

// Conflict creates a CONFLICT error (409).
func Conflict(message string) *Error {
	return &Error{Code: CodeConflict, Message: message, Status: http.StatusConflict}
}

// Internal creates an INTERNAL_ERROR error (500).
func Internal(message string, cause error) *Error {
	return &Error{Code: CodeInternal, Message: message, Status: http.StatusInternalServerError, Cause: cause}
}

// WithCorrelationID returns a copy of the error carrying the given
// correlation ID.
func (e *Error) WithCorrelationID(id string) *Error {
	clone := *e
	clone.CorrelationID = id
	return &clone
}

// FromErr coerces any error into an *Error. Non-taxonomy errors become
// INTERNAL_ERROR so that the caller-visible surface stays closed.
func FromErr(err error) *Error {
	var mcpErr *Error
	if errors.As(err, &mcpErr) {
		return mcpErr
	}
	return Internal("unexpected error", err)
}

// payload mirrors the caller-visible wire shape.
type payload struct {
	Error payloadBody `json:"error"`
}

type payloadBody struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// AsPayload returns the wire-shaped representation of the error:
// {"error":{"code","message","correlation_id"?}}. Causes are deliberately
// excluded; they may carry upstream detail not meant for callers.
func AsPayload(err *Error) any {
	return payload{Error: payloadBody{
		Code:          err.Code,
		Message:       err.Message,
		CorrelationID: err.CorrelationID,
	}}
}
