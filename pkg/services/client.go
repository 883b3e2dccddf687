// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package services drives the delegated authorization lifecycle: the
// split PKCE flow against the authorization server, session minting, and
// access-token refresh for live sessions.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/stacklok/graphmcp/pkg/errors"
	"github.com/stacklok/graphmcp/pkg/logger"
)

// TokenResponse is the authorization server's answer to a token-endpoint
// grant. Scope is the space-joined scope string as granted.
type TokenResponse struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	Scope        string
}

// TokenClient talks to the authorization server's token endpoint.
// Token-endpoint failures are terminal; they are never retried.
type TokenClient struct {
	clientID     string
	clientSecret string
	authorizeURL string
	tokenURL     string
	httpClient   *http.Client
}

// NewTokenClient creates a token-endpoint client.
func NewTokenClient(clientID, clientSecret, authorizeURL, tokenURL string, timeout time.Duration) *TokenClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TokenClient{
		clientID:     clientID,
		clientSecret: clientSecret,
		authorizeURL: authorizeURL,
		tokenURL:     tokenURL,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// ExchangeAuthorizationCode redeems an authorization code bound to a PKCE
// verifier for the initial token set.
func (c *TokenClient) ExchangeAuthorizationCode(
	ctx context.Context, code, codeVerifier, redirectURI string, scopes []string,
) (*TokenResponse, error) {
	conf := &oauth2.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.authorizeURL,
			TokenURL:  c.tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	token, err := conf.Exchange(ctx, code,
		oauth2.SetAuthURLParam("code_verifier", codeVerifier),
		oauth2.SetAuthURLParam("scope", strings.Join(scopes, " ")),
	)
	if err != nil {
		logger.Warnw("authorization code exchange failed", "error", err)
		return nil, errors.Upstream("token exchange failed", err)
	}

	return &TokenResponse{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresIn:    tokenExpiresIn(token),
		Scope:        tokenScope(token),
	}, nil
}

// RefreshAccessToken redeems a refresh token for a fresh token set. The
// authorization server may rotate the refresh token; callers must store
// the returned one.
func (c *TokenClient) RefreshAccessToken(
	ctx context.Context, refreshToken string, scopes []string,
) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("scope", strings.Join(scopes, " "))
	if c.clientSecret != "" {
		form.Set("client_secret", c.clientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.AuthRequired("token refresh failed")
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Debugf("failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.AuthRequired("token refresh failed")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		// A rejected refresh token is terminal for the session.
		logger.Warnw("refresh token rejected", "status", resp.StatusCode)
		return nil, errors.AuthRequired("token refresh failed")
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
		Scope        string `json:"scope"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.AuthRequired("token refresh failed")
	}

	result := &TokenResponse{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		ExpiresIn:    payload.ExpiresIn,
		Scope:        payload.Scope,
	}
	// Fall back to the prior refresh token if the server did not rotate.
	if result.RefreshToken == "" {
		result.RefreshToken = refreshToken
	}
	return result, nil
}

// tokenExpiresIn recovers the expires_in value from an oauth2 token,
// preferring the wire field over the derived Expiry.
func tokenExpiresIn(token *oauth2.Token) int64 {
	switch v := token.Extra("expires_in").(type) {
	case float64:
		return int64(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
	case int64:
		return v
	}
	if !token.Expiry.IsZero() {
		return int64(time.Until(token.Expiry).Seconds())
	}
	return 0
}

// tokenScope returns the space-joined granted scope string, if present.
func tokenScope(token *oauth2.Token) string {
	if scope, ok := token.Extra("scope").(string); ok {
		return scope
	}
	return ""
}
