// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package services

import (
	"context"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/stacklok/graphmcp/pkg/cache"
	"github.com/stacklok/graphmcp/pkg/errors"
	"github.com/stacklok/graphmcp/pkg/logger"
)

// TokenService returns a live access token for a session, refreshing
// against the authorization server on cache miss.
type TokenService struct {
	cache  *cache.Cache
	tokens *TokenClient

	// refreshes collapses concurrent refreshes for the same session.
	// Collapsing is an efficiency measure, not a correctness one:
	// last-writer-wins is acceptable for rotation.
	refreshes singleflight.Group
}

// NewTokenService creates a TokenService.
func NewTokenService(kv *cache.Cache, tokens *TokenClient) *TokenService {
	return &TokenService{cache: kv, tokens: tokens}
}

// GetAccessToken returns the cached access token for the session, or
// refreshes one from the stored refresh token. A missing or rejected
// refresh token is terminal for the session.
func (s *TokenService) GetAccessToken(ctx context.Context, session cache.SessionRecord) (string, error) {
	token, ok, err := s.cache.GetAccessToken(ctx, session.SessionID)
	if err != nil {
		return "", err
	}
	if ok {
		return token, nil
	}

	result, err, _ := s.refreshes.Do(session.SessionID, func() (any, error) {
		return s.refresh(ctx, session.SessionID)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// refresh redeems the stored refresh token and rewrites the session's
// token records with the rotated material.
func (s *TokenService) refresh(ctx context.Context, sessionID string) (string, error) {
	stored, ok, err := s.cache.GetRefreshToken(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if !ok || stored.RefreshToken == "" {
		return "", errors.AuthRequired("no refresh token for session")
	}

	tokenResponse, err := s.tokens.RefreshAccessToken(ctx, stored.RefreshToken, stored.Scopes)
	if err != nil {
		return "", err
	}

	scopes := strings.Fields(tokenResponse.Scope)
	if len(scopes) == 0 {
		scopes = stored.Scopes
	}
	expiresAt := s.cache.Now().Unix() + tokenResponse.ExpiresIn

	if err := s.cache.CacheRefreshToken(ctx, sessionID, cache.RefreshTokenRecord{
		RefreshToken: tokenResponse.RefreshToken,
		Scopes:       scopes,
		ExpiresAt:    expiresAt,
	}); err != nil {
		return "", err
	}
	if err := s.cache.CacheAccessToken(ctx, sessionID, tokenResponse.AccessToken, tokenResponse.ExpiresIn); err != nil {
		return "", err
	}

	logger.Debugw("access token refreshed", "expires_in", tokenResponse.ExpiresIn)
	return tokenResponse.AccessToken, nil
}
