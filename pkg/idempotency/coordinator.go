// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package idempotency guarantees at-most-once externally-visible effect
// for retried mutating tool calls. A caller-supplied key scopes the
// result to (tenant, user, tool, key); replays return the stored result
// without running the handler again.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/stacklok/graphmcp/pkg/cache"
	"github.com/stacklok/graphmcp/pkg/logger"
)

// Handler produces a tool result. It runs at most once per idempotency key.
type Handler func() (any, error)

// Coordinator wraps tool calls with idempotency-key replay.
type Coordinator struct {
	cache *cache.Cache
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(kv *cache.Cache) *Coordinator {
	return &Coordinator{cache: kv}
}

// Wrap executes handler under the given idempotency key and returns the
// canonical JSON encoding of the result. An empty key disables caching.
// Handler errors are never cached; the next retry may attempt again.
func (c *Coordinator) Wrap(
	ctx context.Context, session cache.SessionRecord, toolName, key string, handler Handler,
) (json.RawMessage, error) {
	if key == "" {
		result, err := handler()
		if err != nil {
			return nil, err
		}
		return canonicalJSON(result)
	}

	cacheKey := fmt.Sprintf("%s:%s:%s:%s", session.TenantID, session.UserID, toolName, key)

	cached, ok, err := c.cache.GetIdempotency(ctx, cacheKey)
	if err != nil {
		return nil, err
	}
	if ok && len(cached.Result) > 0 {
		logger.Debugw("replaying idempotent result", "tool", toolName)
		return cached.Result, nil
	}

	result, err := handler()
	if err != nil {
		return nil, err
	}

	encoded, err := canonicalJSON(result)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(encoded)

	if err := c.cache.CacheIdempotency(ctx, cacheKey, cache.IdempotencyRecord{
		Result: encoded,
		Hash:   hex.EncodeToString(digest[:]),
	}); err != nil {
		return nil, err
	}
	return encoded, nil
}

// canonicalJSON encodes a value with object keys sorted ascending and no
// extra whitespace. Re-encoding through a generic value forces every
// object into map form, which encoding/json emits with sorted keys.
func canonicalJSON(value any) (json.RawMessage, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("failed to normalise result: %w", err)
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return canonical, nil
}
