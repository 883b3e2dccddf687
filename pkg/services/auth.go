// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package services

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stacklok/graphmcp/pkg/auth/oauth"
	"github.com/stacklok/graphmcp/pkg/cache"
	"github.com/stacklok/graphmcp/pkg/config"
	"github.com/stacklok/graphmcp/pkg/errors"
	"github.com/stacklok/graphmcp/pkg/graph"
	"github.com/stacklok/graphmcp/pkg/logger"
)

// BeginResult is the outcome of starting a PKCE flow.
type BeginResult struct {
	AuthorizationURL    string `json:"authorization_url"`
	State               string `json:"state"`
	CodeChallengeMethod string `json:"code_challenge_method"`
}

// CompleteResult is the outcome of completing a PKCE flow: an opaque
// session handle plus what was granted.
type CompleteResult struct {
	GraphSessionID string   `json:"graph_session_id"`
	GrantedScopes  []string `json:"granted_scopes"`
	ExpiresIn      int64    `json:"expires_in"`
}

// AuthService drives the split PKCE authorization flow and mints sessions.
type AuthService struct {
	cfg    *config.Config
	cache  *cache.Cache
	graph  *graph.Client
	tokens *TokenClient
}

// NewAuthService creates an AuthService.
func NewAuthService(cfg *config.Config, kv *cache.Cache, graphClient *graph.Client, tokens *TokenClient) *AuthService {
	return &AuthService{
		cfg:    cfg,
		cache:  kv,
		graph:  graphClient,
		tokens: tokens,
	}
}

// BeginPKCE starts an authorization flow: it persists a one-shot PKCE
// transaction under a fresh state handle and returns the authorize URL
// the end user must visit.
func (s *AuthService) BeginPKCE(
	ctx context.Context, scopes []string, redirectURI, loginHint string,
) (*BeginResult, error) {
	normalized := oauth.NormalizeScopes(scopes)

	state, err := oauth.GenerateState()
	if err != nil {
		return nil, errors.Internal("failed to generate state", err)
	}
	pkce, err := oauth.GeneratePKCEParams()
	if err != nil {
		return nil, errors.Internal("failed to generate PKCE material", err)
	}

	effectiveRedirect := redirectURI
	if effectiveRedirect == "" {
		effectiveRedirect = s.cfg.GraphRedirectURI
	}

	// The caller-supplied redirect (not the resolved one) is stored so
	// completion can prefer it over its own argument.
	if err := s.cache.CachePKCE(ctx, state, cache.PKCETransaction{
		Verifier:    pkce.CodeVerifier,
		Scopes:      normalized,
		RedirectURI: redirectURI,
	}); err != nil {
		return nil, err
	}

	authorizationURL := oauth.BuildAuthorizationURL(s.cfg.AuthorizeURL(), oauth.AuthorizeRequest{
		ClientID:      s.cfg.GraphClientID,
		RedirectURI:   effectiveRedirect,
		Scopes:        normalized,
		State:         state,
		CodeChallenge: pkce.CodeChallenge,
		LoginHint:     loginHint,
	})

	logger.Debugw("started PKCE flow", "state", state, "scopes", normalized)
	return &BeginResult{
		AuthorizationURL:    authorizationURL,
		State:               state,
		CodeChallengeMethod: oauth.PKCEMethodS256,
	}, nil
}

// CompletePKCE finishes an authorization flow: it consumes the stored
// PKCE transaction, exchanges the code, resolves the end-user identity,
// and mints an opaque session.
func (s *AuthService) CompletePKCE(
	ctx context.Context, code, state, redirectURI string,
) (*CompleteResult, error) {
	txn, ok, err := s.cache.PopPKCE(ctx, state)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.AuthRequired("invalid or expired state")
	}

	// Redirect precedence: stored, then caller argument, then config.
	// A mismatch with what the authorization server saw fails at the
	// token endpoint.
	redirect := txn.RedirectURI
	if redirect == "" {
		redirect = redirectURI
	}
	if redirect == "" {
		redirect = s.cfg.GraphRedirectURI
	}

	tokenResponse, err := s.tokens.ExchangeAuthorizationCode(ctx, code, txn.Verifier, redirect, txn.Scopes)
	if err != nil {
		return nil, err
	}

	tenantID := tenantFromAccessToken(tokenResponse.AccessToken)

	me, err := s.graph.RequestJSON(ctx, http.MethodGet, s.cfg.UpstreamBaseURL+"/me", tokenResponse.AccessToken)
	if err != nil {
		return nil, err
	}
	userID, _ := me["id"].(string)
	if userID == "" {
		return nil, errors.Upstream("unable to resolve user", nil)
	}

	grantedScopes := strings.Fields(tokenResponse.Scope)
	if len(grantedScopes) == 0 {
		grantedScopes = txn.Scopes
	}

	sessionID, err := oauth.GenerateSessionID()
	if err != nil {
		return nil, errors.Internal("failed to generate session id", err)
	}
	expiresAt := s.cache.Now().Unix() + tokenResponse.ExpiresIn

	if err := s.cache.CacheRefreshToken(ctx, sessionID, cache.RefreshTokenRecord{
		RefreshToken: tokenResponse.RefreshToken,
		Scopes:       grantedScopes,
		ExpiresAt:    expiresAt,
	}); err != nil {
		return nil, err
	}
	if err := s.cache.CacheSession(ctx, sessionID, cache.SessionRecord{
		TenantID:  tenantID,
		UserID:    userID,
		ClientID:  s.cfg.GraphClientID,
		Scopes:    grantedScopes,
		ExpiresAt: expiresAt,
	}); err != nil {
		return nil, err
	}
	if err := s.cache.CacheAccessToken(ctx, sessionID, tokenResponse.AccessToken, tokenResponse.ExpiresIn); err != nil {
		return nil, err
	}

	logger.Infow("session established", "tenant_id", tenantID, "user_id", userID)
	return &CompleteResult{
		GraphSessionID: sessionID,
		GrantedScopes:  grantedScopes,
		ExpiresIn:      tokenResponse.ExpiresIn,
	}, nil
}

// Logout revokes a session: the session and refresh-token records are
// deleted; the cached access token ages out on its own TTL.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if err := s.cache.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	return s.cache.DeleteRefreshToken(ctx, sessionID)
}

// tenantFromAccessToken reads the tid claim from the freshly issued
// access token without verifying its signature. The token's audience is
// the resource API, not this gateway, and it was just obtained over TLS
// from the authorization server; verification is neither possible nor
// needed here.
func tenantFromAccessToken(accessToken string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return "unknown"
	}
	if tid, ok := claims["tid"].(string); ok && tid != "" {
		return tid
	}
	return "unknown"
}
