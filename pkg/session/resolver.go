// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package session resolves caller-supplied session handles into session
// records, gating every lookup on inbound bearer validation.
package session

import (
	"context"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stacklok/graphmcp/pkg/cache"
	"github.com/stacklok/graphmcp/pkg/errors"
	"github.com/stacklok/graphmcp/pkg/logger"
)

// BearerValidator validates an inbound caller bearer and returns its
// claim set.
type BearerValidator interface {
	ValidateToken(ctx context.Context, tokenString string) (jwt.MapClaims, error)
}

// Resolver validates callers and resolves session handles.
type Resolver struct {
	cache        *cache.Cache
	validator    BearerValidator
	oidcDisabled bool
}

// NewResolver creates a Resolver. validator may be nil only when
// oidcDisabled is true (dev mode).
func NewResolver(kv *cache.Cache, validator BearerValidator, oidcDisabled bool) *Resolver {
	return &Resolver{
		cache:        kv,
		validator:    validator,
		oidcDisabled: oidcDisabled,
	}
}

// RequireClientToken validates the caller bearer on its own, for
// operations that have no session yet. Failures map to AUTH_REQUIRED.
func (r *Resolver) RequireClientToken(ctx context.Context, bearer string) (jwt.MapClaims, error) {
	if r.oidcDisabled {
		return jwt.MapClaims{}, nil
	}
	if bearer == "" {
		return nil, errors.AuthRequired("missing client token")
	}
	claims, err := r.validator.ValidateToken(ctx, bearer)
	if err != nil {
		logger.Debugw("client token rejected", "error", err)
		return nil, errors.AuthRequired("invalid client token")
	}
	return claims, nil
}

// Resolve validates the caller and maps the session handle to its record.
// A missing session, a rejected bearer or an unknown session surfaces as
// AUTH_REQUIRED; a cache read failure surfaces as UPSTREAM_ERROR.
func (r *Resolver) Resolve(ctx context.Context, sessionID, bearer string) (cache.SessionRecord, error) {
	if sessionID == "" {
		return cache.SessionRecord{}, errors.AuthRequired("missing session")
	}

	if _, err := r.RequireClientToken(ctx, bearer); err != nil {
		return cache.SessionRecord{}, err
	}

	record, ok, err := r.cache.GetSession(ctx, sessionID)
	if err != nil {
		return cache.SessionRecord{}, err
	}
	if !ok {
		return cache.SessionRecord{}, errors.AuthRequired("invalid session")
	}
	return record, nil
}
