// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package tools implements the business tool handlers exposed over the
// JSON-RPC surface. Every handler is a thin, typed mapper over the
// upstream mediator: it builds the upstream request, reshapes the
// response into the gateway's snake_case wire form, and extracts the
// pagination cursor.
package tools

import (
	"context"
	"net/http"
	"net/url"

	"github.com/stacklok/graphmcp/pkg/graph"
)

// Platform implements the profile tools.
type Platform struct {
	graph   *graph.Client
	baseURL string
}

// NewPlatform creates the platform tool set.
func NewPlatform(graphClient *graph.Client, baseURL string) *Platform {
	return &Platform{graph: graphClient, baseURL: baseURL}
}

// GetProfile returns the signed-in user's profile.
func (p *Platform) GetProfile(ctx context.Context, token string) (map[string]any, error) {
	query := url.Values{}
	query.Set("$select", "id,displayName,userPrincipalName,mail")

	payload, err := p.graph.RequestJSON(ctx, http.MethodGet, p.baseURL+"/me", token, graph.WithQuery(query))
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"profile": map[string]any{
			"id":                  payload["id"],
			"display_name":        payload["displayName"],
			"user_principal_name": payload["userPrincipalName"],
			"mail":                payload["mail"],
		},
	}, nil
}
