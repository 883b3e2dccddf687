// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/graphmcp/pkg/errors"
	"github.com/stacklok/graphmcp/pkg/logger"
)

// maxRequestBytes bounds the JSON-RPC request body.
const maxRequestBytes = 256 * 1024 * 1024

// rpcRequest is the inbound JSON-RPC 2.0 envelope.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// callParams are the params of a tools/call request.
type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Router builds the HTTP surface: the JSON-RPC endpoint at /, a health
// probe, and the MCP streamable mount at /mcp.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(BearerMiddleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Post("/", s.handleRPC)
	r.Mount("/mcp", s.mcpHandler())

	return r
}

// handleRPC dispatches a tools/call request to the registry. Successful
// results arrive as {"result": ...}; failures surface the closed error
// taxonomy with the HTTP status it prescribes.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.ID, errors.Validation("malformed JSON-RPC request"))
		return
	}

	switch req.Method {
	case "tools/call":
	case "tools/list":
		names := make([]map[string]any, 0, len(s.registry.Tools()))
		for _, tool := range s.registry.Tools() {
			names = append(names, map[string]any{
				"name":        tool.Name,
				"description": tool.Description,
			})
		}
		writeResult(w, req.ID, map[string]any{"tools": names})
		return
	default:
		writeError(w, req.ID, errors.Validation("unsupported method"))
		return
	}

	var params callParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		writeError(w, req.ID, errors.Validation("tools/call requires a tool name"))
		return
	}

	tool, ok := s.registry.Lookup(params.Name)
	if !ok {
		writeError(w, req.ID, errors.NotFound("unknown tool: "+params.Name))
		return
	}

	result, err := tool.Handler(r.Context(), params.Arguments)
	if err != nil {
		mcpErr := errors.FromErr(err)
		logger.Debugw("tool call failed", "tool", params.Name, "code", mcpErr.Code)
		writeError(w, req.ID, mcpErr)
		return
	}
	writeResult(w, req.ID, result)
}

func writeResult(w http.ResponseWriter, id, result any) {
	writeJSON(w, http.StatusOK, map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  result,
	})
}

func writeError(w http.ResponseWriter, id any, mcpErr *errors.Error) {
	payload := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
	}
	body, _ := json.Marshal(errors.AsPayload(mcpErr))
	var wire map[string]any
	_ = json.Unmarshal(body, &wire)
	payload["error"] = wire["error"]
	writeJSON(w, mcpErr.Status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Debugf("failed to write response: %v", err)
	}
}
