// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/graphmcp/pkg/cache"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *cache.Cache) {
	t.Helper()
	kv := cache.New(cache.NewMemoryStore(nil), cache.Options{
		AccessTokenSkew: 300 * time.Second,
		SessionTTL:      900 * time.Second,
		IdempotencyTTL:  1800 * time.Second,
	})
	t.Cleanup(func() { _ = kv.Close() })
	return NewCoordinator(kv), kv
}

func testSession() cache.SessionRecord {
	return cache.SessionRecord{
		SessionID: "sid-1",
		TenantID:  "tenant-1",
		UserID:    "user-123",
	}
}

func TestWrap_HandlerRunsOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	coordinator, _ := newTestCoordinator(t)

	invocations := 0
	handler := func() (any, error) {
		invocations++
		if invocations == 1 {
			return map[string]any{"id": "d1"}, nil
		}
		return map[string]any{"id": "d2"}, nil
	}

	first, err := coordinator.Wrap(ctx, testSession(), "mail_create_draft", "k1", handler)
	require.NoError(t, err)
	second, err := coordinator.Wrap(ctx, testSession(), "mail_create_draft", "k1", handler)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second), "replays must be byte-identical")
	assert.JSONEq(t, `{"id":"d1"}`, string(second))
	assert.Equal(t, 1, invocations, "handler must run at most once per key")
}

func TestWrap_EmptyKeyBypassesCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	coordinator, _ := newTestCoordinator(t)

	invocations := 0
	handler := func() (any, error) {
		invocations++
		return map[string]any{"count": invocations}, nil
	}

	_, err := coordinator.Wrap(ctx, testSession(), "mail_create_draft", "", handler)
	require.NoError(t, err)
	result, err := coordinator.Wrap(ctx, testSession(), "mail_create_draft", "", handler)
	require.NoError(t, err)

	assert.Equal(t, 2, invocations)
	assert.JSONEq(t, `{"count":2}`, string(result))
}

func TestWrap_KeyTupleIsScoped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	coordinator, _ := newTestCoordinator(t)

	invocations := 0
	handler := func() (any, error) {
		invocations++
		return map[string]any{"n": invocations}, nil
	}

	_, err := coordinator.Wrap(ctx, testSession(), "mail_create_draft", "k1", handler)
	require.NoError(t, err)

	// Same key, different tool: distinct cache entry.
	_, err = coordinator.Wrap(ctx, testSession(), "calendar_create_event", "k1", handler)
	require.NoError(t, err)

	// Same key and tool, different user: distinct cache entry.
	other := testSession()
	other.UserID = "user-456"
	_, err = coordinator.Wrap(ctx, other, "mail_create_draft", "k1", handler)
	require.NoError(t, err)

	assert.Equal(t, 3, invocations)
}

func TestWrap_ErrorsNotCached(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	coordinator, _ := newTestCoordinator(t)

	invocations := 0
	handler := func() (any, error) {
		invocations++
		if invocations == 1 {
			return nil, errors.New("upstream hiccup")
		}
		return map[string]any{"id": "d1"}, nil
	}

	_, err := coordinator.Wrap(ctx, testSession(), "mail_send_draft", "k1", handler)
	require.Error(t, err)

	result, err := coordinator.Wrap(ctx, testSession(), "mail_send_draft", "k1", handler)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"d1"}`, string(result))
	assert.Equal(t, 2, invocations)
}

func TestWrap_StoresAdvisoryHash(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	coordinator, kv := newTestCoordinator(t)

	result, err := coordinator.Wrap(ctx, testSession(), "mail_create_draft", "k1", func() (any, error) {
		return map[string]any{"id": "d1"}, nil
	})
	require.NoError(t, err)

	record, ok, err := kv.GetIdempotency(ctx, "tenant-1:user-123:mail_create_draft:k1")
	require.NoError(t, err)
	require.True(t, ok)

	digest := sha256.Sum256(result)
	assert.Equal(t, hex.EncodeToString(digest[:]), record.Hash)
}

func TestCanonicalJSON_SortedKeys(t *testing.T) {
	t.Parallel()

	encoded, err := canonicalJSON(map[string]any{
		"zeta":  1,
		"alpha": map[string]any{"y": 2, "x": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":{"x":1,"y":2},"zeta":1}`, string(encoded))

	// Struct fields are normalised through map form, so declaration
	// order does not leak into the canonical encoding.
	type out struct {
		Zeta  int `json:"zeta"`
		Alpha int `json:"alpha"`
	}
	encoded, err = canonicalJSON(out{Zeta: 1, Alpha: 2})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"zeta":1}`, string(encoded))
}
