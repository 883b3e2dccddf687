// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "error with cause",
			err: &Error{
				Code:    CodeUpstreamError,
				Message: "token exchange failed",
				Status:  http.StatusBadGateway,
				Cause:   errors.New("connection refused"),
			},
			want: "UPSTREAM_ERROR: token exchange failed: connection refused",
		},
		{
			name: "error without cause",
			err: &Error{
				Code:    CodeAuthRequired,
				Message: "missing client token",
				Status:  http.StatusUnauthorized,
			},
			want: "AUTH_REQUIRED: missing client token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("underlying error")
	err := Upstream("request failed", cause)
	assert.Equal(t, cause, err.Unwrap())
	assert.ErrorIs(t, err, cause)

	assert.Nil(t, AuthRequired("no bearer").Unwrap())
}

func TestError_Is(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("resolving session: %w", AuthRequired("invalid session"))
	assert.ErrorIs(t, wrapped, AuthRequired(""))
	assert.NotErrorIs(t, wrapped, Validation(""))
}

func TestConstructors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        *Error
		wantCode   string
		wantStatus int
	}{
		{"auth required", AuthRequired("x"), CodeAuthRequired, http.StatusUnauthorized},
		{"validation", Validation("x"), CodeValidationError, http.StatusBadRequest},
		{"payload too large", PayloadTooLarge("x"), CodeValidationError, http.StatusRequestEntityTooLarge},
		{"upstream", Upstream("x", nil), CodeUpstreamError, http.StatusBadGateway},
		{"not found", NotFound("x"), CodeNotFound, http.StatusNotFound},
		{"conflict", Conflict("x"), CodeConflict, http.StatusConflict},
		{"internal", Internal("x", nil), CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.wantCode, tt.err.Code)
			assert.Equal(t, tt.wantStatus, tt.err.Status)
		})
	}
}

func TestFromErr(t *testing.T) {
	t.Parallel()

	original := AuthRequired("invalid session")
	assert.Same(t, original, FromErr(fmt.Errorf("wrapped: %w", original)))

	coerced := FromErr(errors.New("surprise"))
	assert.Equal(t, CodeInternal, coerced.Code)
	assert.Equal(t, http.StatusInternalServerError, coerced.Status)
}

func TestAsPayload(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(AsPayload(AuthRequired("missing client token")))
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":{"code":"AUTH_REQUIRED","message":"missing client token"}}`, string(raw))

	withID := Upstream("graph request failed", nil).WithCorrelationID("corr-1")
	raw, err = json.Marshal(AsPayload(withID))
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":{"code":"UPSTREAM_ERROR","message":"graph request failed","correlation_id":"corr-1"}}`, string(raw))
}
