// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"net/url"
	"strings"
)

// PKCEMethodS256 is the only code challenge method the gateway emits.
const PKCEMethodS256 = "S256"

// AuthorizeRequest carries the parameters for building an authorization
// URL against the provider's /oauth2/v2.0/authorize endpoint.
type AuthorizeRequest struct {
	ClientID      string
	RedirectURI   string
	Scopes        []string
	State         string
	CodeChallenge string
	LoginHint     string
}

// BuildAuthorizationURL assembles the authorize URL for the code flow.
// Every parameter is query-escaped; scopes are space-joined.
func BuildAuthorizationURL(authorizeEndpoint string, req AuthorizeRequest) string {
	params := url.Values{}
	params.Set("client_id", req.ClientID)
	params.Set("response_type", "code")
	params.Set("redirect_uri", req.RedirectURI)
	params.Set("response_mode", "query")
	params.Set("scope", strings.Join(req.Scopes, " "))
	params.Set("state", req.State)
	params.Set("code_challenge", req.CodeChallenge)
	params.Set("code_challenge_method", PKCEMethodS256)
	if req.LoginHint != "" {
		params.Set("login_hint", req.LoginHint)
	}
	// Encode spaces as %20 rather than form-style +; the space-joined
	// scope list must survive strict authorize-endpoint parsers. A
	// literal + in a value is already escaped to %2B, so this rewrite
	// only touches spaces.
	return authorizeEndpoint + "?" + strings.ReplaceAll(params.Encode(), "+", "%20")
}

// NormalizeScopes trims whitespace, drops empties, dedupes preserving
// first occurrence, and guarantees offline_access is requested so the
// authorization server issues a refresh token.
func NormalizeScopes(scopes []string) []string {
	normalized := make([]string, 0, len(scopes)+1)
	seen := make(map[string]struct{}, len(scopes)+1)
	for _, scope := range scopes {
		scope = strings.TrimSpace(scope)
		if scope == "" {
			continue
		}
		if _, dup := seen[scope]; dup {
			continue
		}
		seen[scope] = struct{}{}
		normalized = append(normalized, scope)
	}
	if _, ok := seen["offline_access"]; !ok {
		normalized = append(normalized, "offline_access")
	}
	return normalized
}
