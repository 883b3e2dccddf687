// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stacklok/graphmcp/pkg/graph"
)

// upstreamStub records requests and replays canned JSON responses by
// method+path.
type upstreamStub struct {
	mu        sync.Mutex
	responses map[string]any
	requests  []recordedRequest
	server    *httptest.Server
}

type recordedRequest struct {
	method string
	path   string
	query  url.Values
	header http.Header
	body   []byte
}

func newUpstreamStub(t *testing.T) *upstreamStub {
	t.Helper()
	stub := &upstreamStub{responses: make(map[string]any)}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		stub.mu.Lock()
		stub.requests = append(stub.requests, recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.Query(),
			header: r.Header.Clone(),
			body:   body,
		})
		response, ok := stub.responses[r.Method+" "+r.URL.Path]
		stub.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if !ok {
			response = map[string]any{}
		}
		_ = json.NewEncoder(w).Encode(response)
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

func (s *upstreamStub) respond(method, path string, response any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[method+" "+path] = response
}

func (s *upstreamStub) lastRequest(t *testing.T) recordedRequest {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		t.Fatal("no upstream requests recorded")
	}
	return s.requests[len(s.requests)-1]
}

func newToolsClient() *graph.Client {
	return graph.NewClient(graph.Options{Timeout: 5 * time.Second, MaxAttempts: 2})
}

func jsonUnmarshal(data []byte, out any) error {
	return json.Unmarshal(data, out)
}
