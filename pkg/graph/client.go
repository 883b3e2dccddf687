// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package graph provides the HTTP mediator for every upstream call the
// gateway makes: typed error mapping, Retry-After handling, jittered
// exponential backoff, and pagination-cursor extraction.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/stacklok/graphmcp/pkg/errors"
	"github.com/stacklok/graphmcp/pkg/logger"
)

// Client mediates requests against the resource API.
type Client struct {
	httpClient  *http.Client
	timeout     time.Duration
	maxAttempts int
	retryBase   time.Duration

	// sleep and randFloat are injectable for tests.
	sleep     func(ctx context.Context, d time.Duration) error
	randFloat func() float64
}

// Options configures a Client.
type Options struct {
	// Timeout bounds each outbound request.
	Timeout time.Duration

	// MaxAttempts is the total number of attempts, first try included.
	MaxAttempts int

	// RetryBase is the base interval for exponential backoff.
	RetryBase time.Duration
}

// NewClient creates an upstream mediator.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 4
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 500 * time.Millisecond
	}
	return &Client{
		httpClient:  &http.Client{Timeout: opts.Timeout},
		timeout:     opts.Timeout,
		maxAttempts: opts.MaxAttempts,
		retryBase:   opts.RetryBase,
		sleep:       sleepContext,
		randFloat:   rand.Float64,
	}
}

// RequestOption mutates a single request.
type RequestOption func(*requestSpec)

type requestSpec struct {
	headers     map[string]string
	query       url.Values
	body        any
	rawBody     []byte
	contentType string
}

// WithHeaders adds headers to the request.
func WithHeaders(headers map[string]string) RequestOption {
	return func(spec *requestSpec) {
		for k, v := range headers {
			spec.headers[k] = v
		}
	}
}

// WithQuery sets query parameters on the request URL.
func WithQuery(query url.Values) RequestOption {
	return func(spec *requestSpec) {
		spec.query = query
	}
}

// WithJSONBody attaches a JSON body to the request.
func WithJSONBody(body any) RequestOption {
	return func(spec *requestSpec) {
		spec.body = body
	}
}

// WithRawBody attaches a raw request body with an explicit content type,
// for upload paths that are not JSON.
func WithRawBody(body []byte, contentType string) RequestOption {
	return func(spec *requestSpec) {
		spec.rawBody = body
		spec.contentType = contentType
	}
}

// RequestJSON performs a JSON request against the upstream API and decodes
// the response. A 204 yields an empty object.
func (c *Client) RequestJSON(
	ctx context.Context, method, requestURL, token string, opts ...RequestOption,
) (map[string]any, error) {
	body, err := c.do(ctx, method, requestURL, token, "application/json", opts...)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return map[string]any{}, nil
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Upstream("invalid JSON from upstream", err)
	}
	return payload, nil
}

// RequestBytes performs a request and returns the raw response body.
func (c *Client) RequestBytes(
	ctx context.Context, method, requestURL, token string, opts ...RequestOption,
) ([]byte, error) {
	return c.do(ctx, method, requestURL, token, "*/*", opts...)
}

// do runs the shared retry loop. 429/503 honour Retry-After; other 5xx
// and transport failures back off with full jitter; remaining 4xx map to
// UPSTREAM_ERROR immediately.
func (c *Client) do(
	ctx context.Context, method, requestURL, token, accept string, opts ...RequestOption,
) ([]byte, error) {
	spec := &requestSpec{headers: make(map[string]string)}
	for _, opt := range opts {
		opt(spec)
	}

	var bodyBytes []byte
	contentType := ""
	switch {
	case spec.body != nil:
		var err error
		bodyBytes, err = json.Marshal(spec.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		contentType = "application/json"
	case spec.rawBody != nil:
		bodyBytes = spec.rawBody
		contentType = spec.contentType
	}

	if len(spec.query) > 0 {
		separator := "?"
		if parsed, err := url.Parse(requestURL); err == nil && parsed.RawQuery != "" {
			separator = "&"
		}
		requestURL = requestURL + separator + spec.query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		response, body, err := c.attempt(ctx, method, requestURL, token, accept, contentType, spec.headers, bodyBytes)
		if err != nil {
			// Transport failure or timeout: retryable.
			lastErr = err
			if backoffErr := c.sleep(ctx, c.backoff(attempt)); backoffErr != nil {
				return nil, errors.Upstream("upstream request aborted", backoffErr)
			}
			continue
		}

		switch {
		case response.StatusCode == http.StatusTooManyRequests || response.StatusCode == http.StatusServiceUnavailable:
			delay := retryAfter(response)
			lastErr = fmt.Errorf("upstream returned %d", response.StatusCode)
			logger.Debugw("upstream throttled, honouring Retry-After",
				"status", response.StatusCode, "delay", delay, "attempt", attempt)
			if backoffErr := c.sleep(ctx, delay); backoffErr != nil {
				return nil, errors.Upstream("upstream request aborted", backoffErr)
			}
			continue

		case response.StatusCode >= http.StatusInternalServerError:
			lastErr = fmt.Errorf("upstream returned %d", response.StatusCode)
			if backoffErr := c.sleep(ctx, c.backoff(attempt)); backoffErr != nil {
				return nil, errors.Upstream("upstream request aborted", backoffErr)
			}
			continue

		case response.StatusCode >= http.StatusBadRequest:
			return nil, upstreamError(response.StatusCode, body)

		case response.StatusCode == http.StatusNoContent:
			return nil, nil

		default:
			return body, nil
		}
	}

	correlationID := uuid.NewString()
	logger.Warnw("upstream request failed after retries",
		"method", method, "attempts", c.maxAttempts, "correlation_id", correlationID, "error", lastErr)
	return nil, errors.Upstream("upstream request failed after retries", lastErr).
		WithCorrelationID(correlationID)
}

// attempt performs a single HTTP exchange and drains the body.
func (c *Client) attempt(
	ctx context.Context, method, requestURL, token, accept, contentType string,
	headers map[string]string, body []byte,
) (*http.Response, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", accept)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Debugf("failed to close response body: %v", err)
		}
	}()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp, payload, nil
}

// backoff computes the full-jitter exponential delay for an attempt:
// retryBase * 2^attempt * (1 + rand(0,1)).
func (c *Client) backoff(attempt int) time.Duration {
	base := float64(c.retryBase) * float64(uint(1)<<uint(attempt))
	return time.Duration(base * (1 + c.randFloat()))
}

// retryAfter parses the Retry-After header in seconds, defaulting to 1s.
func retryAfter(resp *http.Response) time.Duration {
	seconds, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || seconds < 0 {
		return time.Second
	}
	return time.Duration(seconds) * time.Second
}

// upstreamError maps a non-retryable upstream status to the closed error
// taxonomy, surfacing the structured error detail when present.
func upstreamError(status int, body []byte) *errors.Error {
	message := fmt.Sprintf("upstream returned %d", status)

	var structured struct {
		Error            any    `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &structured); err == nil {
		switch detail := structured.Error.(type) {
		case string:
			if structured.ErrorDescription != "" {
				message = fmt.Sprintf("%s: %s: %s", message, detail, structured.ErrorDescription)
			} else if detail != "" {
				message = fmt.Sprintf("%s: %s", message, detail)
			}
		case map[string]any:
			if detailMessage, ok := detail["message"].(string); ok && detailMessage != "" {
				message = fmt.Sprintf("%s: %s", message, detailMessage)
			}
		}
	} else if len(body) > 0 {
		message = fmt.Sprintf("%s: %s", message, string(body))
	}

	return errors.Upstream(message, nil)
}

// sleepContext sleeps for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
