// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/stacklok/graphmcp/pkg/errors"
	"github.com/stacklok/graphmcp/pkg/versions"
)

// mcpHandler exposes the tool registry over standard MCP streamable HTTP.
// The same registry backs the plain JSON-RPC endpoint; MCP-native clients
// get protocol-conformant framing here instead.
func (s *Server) mcpHandler() http.Handler {
	srv := mcpserver.NewMCPServer("graphmcp", versions.Version)

	for _, tool := range s.registry.Tools() {
		handler := tool.Handler
		srv.AddTool(
			mcp.NewTool(tool.Name, mcp.WithDescription(tool.Description)),
			func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				rawArgs, err := json.Marshal(req.Params.Arguments)
				if err != nil {
					return nil, err
				}
				result, err := handler(ctx, rawArgs)
				if err != nil {
					payload, encodeErr := json.Marshal(errors.AsPayload(errors.FromErr(err)))
					if encodeErr != nil {
						return nil, encodeErr
					}
					return mcp.NewToolResultError(string(payload)), nil
				}
				encoded, err := json.Marshal(result)
				if err != nil {
					return nil, err
				}
				return mcp.NewToolResultText(string(encoded)), nil
			},
		)
	}

	return mcpserver.NewStreamableHTTPServer(srv)
}
