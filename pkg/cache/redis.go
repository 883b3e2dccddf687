// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"

	"github.com/stacklok/graphmcp/pkg/logger"
)

// redisStore is the remote backend. Every value is sealed with
// AES-256-GCM before it reaches the wire; keys stay plaintext so the
// namespace prefixes remain operable.
type redisStore struct {
	client *redis.Client
	cipher *aeadCipher
}

// NewRedisStore connects to a redis-protocol endpoint and verifies
// connectivity with a jittered exponential probe before returning.
// The encryption key must be exactly 32 bytes.
func NewRedisStore(ctx context.Context, endpoint string, encryptionKey []byte) (Store, error) {
	cipher, err := newAEADCipher(encryptionKey)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	// The gateway cannot serve without its state store, so fail startup
	// if the endpoint never becomes reachable.
	probe := backoff.NewExponentialBackOff()
	probe.InitialInterval = 250 * time.Millisecond
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Debugf("cache endpoint not ready: %v", err)
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(probe), backoff.WithMaxElapsedTime(15*time.Second))
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach cache endpoint %s: %w", endpoint, err)
	}

	return &redisStore{client: client, cipher: cipher}, nil
}

// NewRedisStoreWithClient wraps an existing client. Used by tests.
func NewRedisStoreWithClient(client *redis.Client, encryptionKey []byte) (Store, error) {
	cipher, err := newAEADCipher(encryptionKey)
	if err != nil {
		return nil, err
	}
	return &redisStore{client: client, cipher: cipher}, nil
}

func (s *redisStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	sealed, err := s.cipher.seal(value)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key, sealed, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	sealed, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	value, err := s.cipher.open(sealed)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *redisStore) GetDel(ctx context.Context, key string) ([]byte, bool, error) {
	sealed, err := s.client.GetDel(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis getdel %s: %w", key, err)
	}
	value, err := s.cipher.open(sealed)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
