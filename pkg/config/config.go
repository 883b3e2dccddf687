// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config assembles the typed, validated process configuration for
// the graphmcp gateway. Configuration is read from the environment once at
// startup; the resulting Config is immutable and injected into each
// component constructor.
package config

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Cache backend modes.
const (
	// CacheModeMemory selects the in-process cache backend.
	CacheModeMemory = "memory"

	// CacheModeRemote selects the remote (redis-protocol) cache backend.
	CacheModeRemote = "remote"
)

// EncryptionKeySize is the required decoded length of CACHE_ENCRYPTION_KEY.
const EncryptionKeySize = 32

// Config holds the resolved process configuration.
type Config struct {
	// Upstream OAuth client (Microsoft identity platform).
	GraphClientID     string
	GraphClientSecret string
	GraphTenantID     string
	GraphRedirectURI  string

	// LoginBaseURL is the base URL of the authorization server.
	LoginBaseURL string

	// UpstreamBaseURL is the base URL of the resource API.
	UpstreamBaseURL string

	// Cache backend selection.
	CacheMode          string
	CacheEndpoint      string
	CacheEncryptionKey []byte

	// Inbound caller validation.
	OIDCIssuer            string
	OIDCAudience          string
	OIDCJWKSURL           string
	DisableOIDCValidation bool

	// Record lifetimes.
	TokenCacheTTL   time.Duration
	IdempotencyTTL  time.Duration
	AccessTokenSkew time.Duration

	// Payload limits.
	MaxBase64Bytes int64

	// Upstream HTTP behaviour.
	HTTPTimeout      time.Duration
	MaxRetryAttempts int
	RetryBase        time.Duration
}

// envBindings maps viper keys to environment variables. Every recognised
// option is enumerated here; anything else in the environment is ignored.
var envBindings = map[string]string{
	"graph_client_id":           "GRAPH_CLIENT_ID",
	"graph_client_secret":       "GRAPH_CLIENT_SECRET",
	"graph_tenant_id":           "GRAPH_TENANT_ID",
	"graph_redirect_uri":        "GRAPH_REDIRECT_URI",
	"login_base_url":            "LOGIN_BASE_URL",
	"upstream_base_url":         "UPSTREAM_BASE_URL",
	"cache_mode":                "CACHE_MODE",
	"cache_endpoint":            "CACHE_ENDPOINT",
	"cache_encryption_key":      "CACHE_ENCRYPTION_KEY",
	"oidc_issuer":               "OIDC_ISSUER",
	"oidc_audience":             "OIDC_AUDIENCE",
	"oidc_jwks_url":             "OIDC_JWKS_URL",
	"disable_oidc_validation":   "DISABLE_OIDC_VALIDATION",
	"token_cache_ttl_seconds":   "TOKEN_CACHE_TTL_SECONDS",
	"idempotency_ttl_seconds":   "IDEMPOTENCY_TTL_SECONDS",
	"access_token_skew_seconds": "ACCESS_TOKEN_SKEW_SECONDS",
	"max_base64_bytes":          "MAX_BASE64_BYTES",
	"http_timeout_seconds":      "HTTP_TIMEOUT_SECONDS",
	"max_retry_attempts":        "MAX_RETRY_ATTEMPTS",
	"retry_base_seconds":        "RETRY_BASE_SECONDS",
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	v := viper.New()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	v.SetDefault("graph_tenant_id", "organizations")
	v.SetDefault("login_base_url", "https://login.microsoftonline.com")
	v.SetDefault("upstream_base_url", "https://graph.microsoft.com/v1.0")
	v.SetDefault("cache_mode", CacheModeRemote)
	v.SetDefault("token_cache_ttl_seconds", 900)
	v.SetDefault("idempotency_ttl_seconds", 1800)
	v.SetDefault("access_token_skew_seconds", 300)
	v.SetDefault("max_base64_bytes", 100*1024*1024)
	v.SetDefault("http_timeout_seconds", 10)
	v.SetDefault("max_retry_attempts", 4)
	v.SetDefault("retry_base_seconds", 0.5)

	cfg := &Config{
		GraphClientID:         v.GetString("graph_client_id"),
		GraphClientSecret:     v.GetString("graph_client_secret"),
		GraphTenantID:         v.GetString("graph_tenant_id"),
		GraphRedirectURI:      v.GetString("graph_redirect_uri"),
		LoginBaseURL:          strings.TrimRight(v.GetString("login_base_url"), "/"),
		UpstreamBaseURL:       strings.TrimRight(v.GetString("upstream_base_url"), "/"),
		CacheMode:             strings.ToLower(v.GetString("cache_mode")),
		CacheEndpoint:         v.GetString("cache_endpoint"),
		OIDCIssuer:            v.GetString("oidc_issuer"),
		OIDCAudience:          v.GetString("oidc_audience"),
		OIDCJWKSURL:           v.GetString("oidc_jwks_url"),
		DisableOIDCValidation: v.GetBool("disable_oidc_validation"),
		TokenCacheTTL:         time.Duration(v.GetInt("token_cache_ttl_seconds")) * time.Second,
		IdempotencyTTL:        time.Duration(v.GetInt("idempotency_ttl_seconds")) * time.Second,
		AccessTokenSkew:       time.Duration(v.GetInt("access_token_skew_seconds")) * time.Second,
		MaxBase64Bytes:        v.GetInt64("max_base64_bytes"),
		HTTPTimeout:           time.Duration(v.GetFloat64("http_timeout_seconds") * float64(time.Second)),
		MaxRetryAttempts:      v.GetInt("max_retry_attempts"),
		RetryBase:             time.Duration(v.GetFloat64("retry_base_seconds") * float64(time.Second)),
	}

	if raw := v.GetString("cache_encryption_key"); raw != "" {
		key, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("CACHE_ENCRYPTION_KEY is not valid base64: %w", err)
		}
		cfg.CacheEncryptionKey = key
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is complete and coherent.
// Required fields fail fast so a misconfigured process never serves.
func (c *Config) Validate() error {
	if c.GraphClientID == "" {
		return fmt.Errorf("GRAPH_CLIENT_ID is required")
	}
	if c.GraphRedirectURI == "" {
		return fmt.Errorf("GRAPH_REDIRECT_URI is required")
	}

	switch c.CacheMode {
	case CacheModeMemory:
	case CacheModeRemote:
		if c.CacheEndpoint == "" {
			return fmt.Errorf("CACHE_ENDPOINT is required when CACHE_MODE=%s", CacheModeRemote)
		}
		if len(c.CacheEncryptionKey) != EncryptionKeySize {
			return fmt.Errorf("CACHE_ENCRYPTION_KEY must decode to exactly %d bytes, got %d",
				EncryptionKeySize, len(c.CacheEncryptionKey))
		}
	default:
		return fmt.Errorf("CACHE_MODE must be %q or %q, got %q", CacheModeMemory, CacheModeRemote, c.CacheMode)
	}

	if !c.DisableOIDCValidation {
		if c.OIDCIssuer == "" {
			return fmt.Errorf("OIDC_ISSUER is required")
		}
		if c.OIDCAudience == "" {
			return fmt.Errorf("OIDC_AUDIENCE is required")
		}
		if c.OIDCJWKSURL == "" {
			return fmt.Errorf("OIDC_JWKS_URL is required")
		}
	}

	if c.AccessTokenSkew < 0 {
		return fmt.Errorf("ACCESS_TOKEN_SKEW_SECONDS must not be negative")
	}
	if c.MaxRetryAttempts < 1 {
		return fmt.Errorf("MAX_RETRY_ATTEMPTS must be at least 1")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT_SECONDS must be positive")
	}

	return nil
}

// AuthorizeURL returns the authorization endpoint for the configured tenant.
func (c *Config) AuthorizeURL() string {
	return fmt.Sprintf("%s/%s/oauth2/v2.0/authorize", c.LoginBaseURL, c.GraphTenantID)
}

// TokenURL returns the token endpoint for the configured tenant.
func (c *Config) TokenURL() string {
	return fmt.Sprintf("%s/%s/oauth2/v2.0/token", c.LoginBaseURL, c.GraphTenantID)
}
