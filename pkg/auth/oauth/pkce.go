// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package oauth provides the OAuth 2.0 building blocks for the delegated
// authorization flow: PKCE material, state handles, and authorize-URL
// construction against the Microsoft identity platform.
package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// PKCEParams holds a PKCE code verifier and its derived challenge.
type PKCEParams struct {
	CodeVerifier  string
	CodeChallenge string
}

// GeneratePKCEParams generates a PKCE code verifier and challenge using
// the S256 method (RFC 7636).
func GeneratePKCEParams() (*PKCEParams, error) {
	// Code verifier: 32 random bytes, base64url-encoded (43 characters).
	verifierBytes := make([]byte, 32)
	if _, err := rand.Read(verifierBytes); err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}
	codeVerifier := base64.RawURLEncoding.EncodeToString(verifierBytes)

	hash := sha256.Sum256([]byte(codeVerifier))
	codeChallenge := base64.RawURLEncoding.EncodeToString(hash[:])

	return &PKCEParams{
		CodeVerifier:  codeVerifier,
		CodeChallenge: codeChallenge,
	}, nil
}

// GenerateState generates a random state parameter for CSRF protection.
// 16 bytes gives 128 bits of entropy, 22 URL-safe characters encoded.
func GenerateState() (string, error) {
	stateBytes := make([]byte, 16)
	if _, err := rand.Read(stateBytes); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(stateBytes), nil
}

// GenerateSessionID generates an opaque session handle. 24 bytes gives
// 192 bits of entropy; the client never sees anything but this handle.
func GenerateSessionID() (string, error) {
	idBytes := make([]byte, 24)
	if _, err := rand.Read(idBytes); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(idBytes), nil
}
