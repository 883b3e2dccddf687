// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stacklok/graphmcp/pkg/cache"
	"github.com/stacklok/graphmcp/pkg/config"
	"github.com/stacklok/graphmcp/pkg/graph"
	"github.com/stacklok/graphmcp/pkg/idempotency"
	"github.com/stacklok/graphmcp/pkg/logger"
	"github.com/stacklok/graphmcp/pkg/services"
	"github.com/stacklok/graphmcp/pkg/session"
	"github.com/stacklok/graphmcp/pkg/tools"
)

// rateBurst is the advisory per-user request budget per rate window.
// Exhaustion is logged, never enforced; the upstream API is the actual
// arbiter of throttling.
const (
	rateBurst  = 120
	rateWindow = time.Minute
)

// Server wires the tool registry to the auth, token, and idempotency
// services.
type Server struct {
	cfg          *config.Config
	kv           *cache.Cache
	resolver     *session.Resolver
	authService  *services.AuthService
	tokenService *services.TokenService
	idempotency  *idempotency.Coordinator
	registry     *Registry

	platform *tools.Platform
	mail     *tools.Mail
	calendar *tools.Calendar
	drive    *tools.Drive
}

// New creates a Server and registers the full tool surface.
func New(
	cfg *config.Config,
	kv *cache.Cache,
	graphClient *graph.Client,
	resolver *session.Resolver,
	authService *services.AuthService,
	tokenService *services.TokenService,
) *Server {
	s := &Server{
		cfg:          cfg,
		kv:           kv,
		resolver:     resolver,
		authService:  authService,
		tokenService: tokenService,
		idempotency:  idempotency.NewCoordinator(kv),
		registry:     NewRegistry(),
		platform:     tools.NewPlatform(graphClient, cfg.UpstreamBaseURL),
		mail:         tools.NewMail(graphClient, cfg.UpstreamBaseURL),
		calendar:     tools.NewCalendar(graphClient, cfg.UpstreamBaseURL),
		drive:        tools.NewDrive(graphClient, cfg.UpstreamBaseURL, cfg.MaxBase64Bytes),
	}
	s.registerTools()
	return s
}

// Registry returns the server's tool registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// resolveSession authenticates the caller, resolves the session handle,
// and returns a live access token for the upstream API.
func (s *Server) resolveSession(ctx context.Context, args sessionArgs) (cache.SessionRecord, string, error) {
	record, err := s.resolver.Resolve(ctx, args.sessionID(), args.bearer(ctx))
	if err != nil {
		return cache.SessionRecord{}, "", err
	}
	s.recordUsage(ctx, record)

	token, err := s.tokenService.GetAccessToken(ctx, record)
	if err != nil {
		return cache.SessionRecord{}, "", err
	}
	return record, token, nil
}

// recordUsage maintains the advisory token bucket under rate:tenant:user.
func (s *Server) recordUsage(ctx context.Context, record cache.SessionRecord) {
	key := record.TenantID + ":" + record.UserID
	remaining, ok, err := s.kv.GetRateTokens(ctx, key)
	if err != nil {
		logger.Debugf("rate counter read failed: %v", err)
		return
	}
	if !ok {
		remaining = rateBurst
	}
	if remaining <= 0 {
		logger.Warnw("advisory rate budget exhausted", "tenant_id", record.TenantID, "user_id", record.UserID)
		return
	}
	if err := s.kv.RecordRateTokens(ctx, key, remaining-1, rateWindow); err != nil {
		logger.Debugf("rate counter write failed: %v", err)
	}
}

// register installs a session-scoped tool whose handler receives the
// resolved session and a live access token alongside its typed args.
func register[T any](
	s *Server, name, description string,
	handler func(ctx context.Context, record cache.SessionRecord, token string, args T) (any, error),
) {
	s.registry.Register(Tool{
		Name:        name,
		Description: description,
		Handler: func(ctx context.Context, rawArgs json.RawMessage) (any, error) {
			envelope, err := decodeArgs[sessionArgs](rawArgs)
			if err != nil {
				return nil, err
			}
			args, err := decodeArgs[T](rawArgs)
			if err != nil {
				return nil, err
			}
			record, token, err := s.resolveSession(ctx, envelope)
			if err != nil {
				return nil, err
			}
			return handler(ctx, record, token, args)
		},
	})
}

// registerIdempotent installs a session-scoped mutating tool whose
// execution is wrapped by the idempotency coordinator. key extracts the
// caller-supplied idempotency key from the typed args.
func registerIdempotent[T any](
	s *Server, name, description string,
	key func(args T) string,
	handler func(ctx context.Context, token string, args T) (any, error),
) {
	register(s, name, description, func(ctx context.Context, record cache.SessionRecord, token string, args T) (any, error) {
		return s.idempotency.Wrap(ctx, record, name, key(args), func() (any, error) {
			return handler(ctx, token, args)
		})
	})
}
