// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package cache provides the encrypted, TTL'd key/value store that owns
// all gateway state: PKCE transactions, session records, refresh tokens,
// access-token entries, idempotency results, and advisory rate counters.
//
// Two backends implement the Store contract: an in-memory store for
// single-instance deployments and tests, and a redis-protocol store for
// distributed deployments. The remote backend encrypts every value at
// rest with AES-256-GCM; the in-memory backend holds plaintext since it
// never leaves the process.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stacklok/graphmcp/pkg/errors"
)

// Namespace prefixes. These are part of the persisted format.
const (
	prefixPKCE        = "pkce:"
	prefixSession     = "session:"
	prefixAccess      = "access:"
	prefixRefresh     = "refresh:"
	prefixIdempotency = "idempotency:"
	prefixRate        = "rate:"
)

// Record TTLs and floors.
const (
	// pkceTTL bounds how long a begin/complete pair may be split.
	pkceTTL = 10 * time.Minute

	// minTTL is the floor applied to TTLs derived from absolute expiry
	// times, so a record written close to its horizon is still readable.
	minTTL = 30 * time.Second
)

// Store is the backend contract. Implementations own serialization-at-rest
// concerns (encryption for remote backends); values are opaque bytes.
type Store interface {
	// Put writes value under key with the given TTL.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get reads the value under key. A missing key returns ok=false and
	// no error.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// GetDel atomically reads and deletes the value under key. Backends
	// that cannot do this atomically may approximate with read-then-delete;
	// callers tolerate the race.
	GetDel(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// PKCETransaction is the server-side half of a split authorization flow,
// written by begin and consumed exactly once by complete.
type PKCETransaction struct {
	Verifier    string   `json:"verifier"`
	Scopes      []string `json:"scopes"`
	RedirectURI string   `json:"redirect_uri,omitempty"`
}

// SessionRecord maps a server-issued session handle to the end-user
// identity it was minted for. SessionID is injected on read; it is not
// part of the stored value.
type SessionRecord struct {
	SessionID string   `json:"-"`
	TenantID  string   `json:"tenant_id"`
	UserID    string   `json:"user_id"`
	ClientID  string   `json:"client_id"`
	Scopes    []string `json:"scopes"`
	ExpiresAt int64    `json:"expires_at"`
}

// RefreshTokenRecord holds the material needed to mint fresh access
// tokens for a session. The plaintext never leaves the cache layer.
type RefreshTokenRecord struct {
	RefreshToken string   `json:"refresh_token"`
	Scopes       []string `json:"scopes"`
	ExpiresAt    int64    `json:"expires_at"`
}

// IdempotencyRecord is a replayed tool result plus its advisory hash.
type IdempotencyRecord struct {
	Result json.RawMessage `json:"result"`
	Hash   string          `json:"hash"`
}

// accessEntry wraps a cached access token.
type accessEntry struct {
	Token string `json:"token"`
}

// rateEntry wraps an advisory token-bucket counter.
type rateEntry struct {
	Tokens int `json:"tokens"`
}

// Options tunes the typed-helper layer.
type Options struct {
	// AccessTokenSkew is subtracted from expiry-derived TTLs so records
	// expire in the cache before the credential expires upstream.
	AccessTokenSkew time.Duration

	// SessionTTL caps session record lifetime when no expiry is known.
	SessionTTL time.Duration

	// IdempotencyTTL bounds how long a replayed result is retained.
	IdempotencyTTL time.Duration

	// Now is the injectable clock; defaults to time.Now.
	Now func() time.Time
}

// Cache layers namespace prefixes, JSON encoding, and TTL computation on
// top of a Store.
type Cache struct {
	store Store
	opts  Options
}

// New creates a Cache over the given backend.
func New(store Store, opts Options) *Cache {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{store: store, opts: opts}
}

// Now returns the cache's current time.
func (c *Cache) Now() time.Time {
	return c.opts.Now()
}

// Close releases the backend.
func (c *Cache) Close() error {
	return c.store.Close()
}

// ttlUntil converts an absolute unix expiry into a store TTL, subtracting
// the configured skew and flooring at minTTL.
func (c *Cache) ttlUntil(expiresAt int64) time.Duration {
	ttl := time.Duration(expiresAt-c.opts.Now().Unix())*time.Second - c.opts.AccessTokenSkew
	if ttl < minTTL {
		return minTTL
	}
	return ttl
}

func (c *Cache) putJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}
	if err := c.store.Put(ctx, key, raw, ttl); err != nil {
		return errors.Upstream("cache write failed", err)
	}
	return nil
}

func (c *Cache) getJSON(ctx context.Context, key string, out any) (bool, error) {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return false, errors.Upstream("cache read failed", err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("failed to decode cache value: %w", err)
	}
	return true, nil
}

// CachePKCE persists a PKCE transaction under its state parameter.
func (c *Cache) CachePKCE(ctx context.Context, state string, txn PKCETransaction) error {
	return c.putJSON(ctx, prefixPKCE+state, txn, pkceTTL)
}

// PopPKCE consumes the PKCE transaction for state. The record is deleted
// as part of the read; a second pop for the same state reports ok=false.
func (c *Cache) PopPKCE(ctx context.Context, state string) (PKCETransaction, bool, error) {
	var txn PKCETransaction
	raw, ok, err := c.store.GetDel(ctx, prefixPKCE+state)
	if err != nil {
		return txn, false, errors.Upstream("cache read failed", err)
	}
	if !ok {
		return txn, false, nil
	}
	if err := json.Unmarshal(raw, &txn); err != nil {
		return txn, false, fmt.Errorf("failed to decode pkce transaction: %w", err)
	}
	return txn, true, nil
}

// CacheSession persists a session record. The TTL is derived from the
// record's expiry when set, otherwise the configured session TTL applies.
func (c *Cache) CacheSession(ctx context.Context, sessionID string, record SessionRecord) error {
	ttl := c.opts.SessionTTL
	if record.ExpiresAt > 0 {
		ttl = c.ttlUntil(record.ExpiresAt)
	}
	return c.putJSON(ctx, prefixSession+sessionID, record, ttl)
}

// GetSession reads the session record for sessionID, injecting the id
// into the returned record.
func (c *Cache) GetSession(ctx context.Context, sessionID string) (SessionRecord, bool, error) {
	var record SessionRecord
	ok, err := c.getJSON(ctx, prefixSession+sessionID, &record)
	if err != nil || !ok {
		return record, ok, err
	}
	record.SessionID = sessionID
	return record, true, nil
}

// DeleteSession removes the session record for sessionID.
func (c *Cache) DeleteSession(ctx context.Context, sessionID string) error {
	if err := c.store.Delete(ctx, prefixSession+sessionID); err != nil {
		return errors.Upstream("cache delete failed", err)
	}
	return nil
}

// CacheRefreshToken persists the refresh-token record for a session.
// Its lifetime matches the session record's.
func (c *Cache) CacheRefreshToken(ctx context.Context, sessionID string, record RefreshTokenRecord) error {
	return c.putJSON(ctx, prefixRefresh+sessionID, record, c.ttlUntil(record.ExpiresAt))
}

// GetRefreshToken reads the refresh-token record for a session.
func (c *Cache) GetRefreshToken(ctx context.Context, sessionID string) (RefreshTokenRecord, bool, error) {
	var record RefreshTokenRecord
	ok, err := c.getJSON(ctx, prefixRefresh+sessionID, &record)
	return record, ok, err
}

// DeleteRefreshToken removes the refresh-token record for a session.
func (c *Cache) DeleteRefreshToken(ctx context.Context, sessionID string) error {
	if err := c.store.Delete(ctx, prefixRefresh+sessionID); err != nil {
		return errors.Upstream("cache delete failed", err)
	}
	return nil
}

// CacheAccessToken stores an access token for expiresIn seconds less the
// configured skew, floored at the minimum TTL.
func (c *Cache) CacheAccessToken(ctx context.Context, sessionID, token string, expiresIn int64) error {
	ttl := time.Duration(expiresIn)*time.Second - c.opts.AccessTokenSkew
	if ttl < minTTL {
		ttl = minTTL
	}
	return c.putJSON(ctx, prefixAccess+sessionID, accessEntry{Token: token}, ttl)
}

// GetAccessToken returns the cached access token for a session, if live.
func (c *Cache) GetAccessToken(ctx context.Context, sessionID string) (string, bool, error) {
	var entry accessEntry
	ok, err := c.getJSON(ctx, prefixAccess+sessionID, &entry)
	if err != nil || !ok {
		return "", ok, err
	}
	return entry.Token, true, nil
}

// CacheIdempotency stores a replayable tool result under its canonical
// (tenant, user, tool, key) tuple.
func (c *Cache) CacheIdempotency(ctx context.Context, key string, record IdempotencyRecord) error {
	return c.putJSON(ctx, prefixIdempotency+key, record, c.opts.IdempotencyTTL)
}

// GetIdempotency reads a previously stored tool result.
func (c *Cache) GetIdempotency(ctx context.Context, key string) (IdempotencyRecord, bool, error) {
	var record IdempotencyRecord
	ok, err := c.getJSON(ctx, prefixIdempotency+key, &record)
	return record, ok, err
}

// RecordRateTokens stores an advisory token-bucket counter.
func (c *Cache) RecordRateTokens(ctx context.Context, key string, tokens int, ttl time.Duration) error {
	return c.putJSON(ctx, prefixRate+key, rateEntry{Tokens: tokens}, ttl)
}

// GetRateTokens reads an advisory token-bucket counter.
func (c *Cache) GetRateTokens(ctx context.Context, key string) (int, bool, error) {
	var entry rateEntry
	ok, err := c.getJSON(ctx, prefixRate+key, &entry)
	if err != nil || !ok {
		return 0, ok, err
	}
	return entry.Tokens, true, nil
}
