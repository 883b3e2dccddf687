// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the graphmcp command-line
// application.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/graphmcp/pkg/auth/token"
	"github.com/stacklok/graphmcp/pkg/cache"
	"github.com/stacklok/graphmcp/pkg/config"
	"github.com/stacklok/graphmcp/pkg/graph"
	"github.com/stacklok/graphmcp/pkg/logger"
	"github.com/stacklok/graphmcp/pkg/server"
	"github.com/stacklok/graphmcp/pkg/services"
	"github.com/stacklok/graphmcp/pkg/session"
	"github.com/stacklok/graphmcp/pkg/versions"
)

var rootCmd = &cobra.Command{
	Use:               "graphmcp",
	DisableAutoGenTag: true,
	Short:             "Authenticating tool-call gateway for Microsoft Graph",
	Long: `graphmcp is an authenticating tool-call gateway. It accepts JSON-RPC 2.0
tool invocations from untrusted clients, authenticates callers with OIDC
bearer tokens, maintains per-user delegated OAuth sessions against the
Microsoft identity platform, and forwards tool operations to Microsoft
Graph with the end user's access token.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		if viper.GetBool("debug") {
			_ = os.Setenv("DEBUG", "true")
		}
		logger.Initialize()
	},
}

// NewRootCmd creates the root command for the graphmcp CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.SilenceUsage = true
	return rootCmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway",
		Long: `Start the gateway and listen for JSON-RPC tool invocations.

Configuration is read from the environment; see the project README for
the recognised variables. Startup fails fast when required configuration
is missing.`,
		RunE: runServe,
	}

	cmd.Flags().String("host", "0.0.0.0", "Host address to bind to")
	cmd.Flags().Int("port", 8080, "Port to listen on")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			info := versions.GetVersionInfo()
			fmt.Printf("graphmcp %s (commit %s, built %s, %s, %s)\n",
				info.Version, info.Commit, info.BuildDate, info.GoVersion, info.Platform)
		},
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	kv := cache.New(store, cache.Options{
		AccessTokenSkew: cfg.AccessTokenSkew,
		SessionTTL:      cfg.TokenCacheTTL,
		IdempotencyTTL:  cfg.IdempotencyTTL,
	})
	defer func() {
		if err := kv.Close(); err != nil {
			logger.Warnf("failed to close cache: %v", err)
		}
	}()

	var validator session.BearerValidator
	if !cfg.DisableOIDCValidation {
		validator, err = token.NewValidator(ctx, token.ValidatorConfig{
			Issuer:   cfg.OIDCIssuer,
			Audience: cfg.OIDCAudience,
			JWKSURL:  cfg.OIDCJWKSURL,
		})
		if err != nil {
			return fmt.Errorf("failed to create OIDC validator: %w", err)
		}
	} else {
		logger.Warn("OIDC validation is disabled; all callers are trusted")
	}

	graphClient := graph.NewClient(graph.Options{
		Timeout:     cfg.HTTPTimeout,
		MaxAttempts: cfg.MaxRetryAttempts,
		RetryBase:   cfg.RetryBase,
	})
	tokens := services.NewTokenClient(
		cfg.GraphClientID, cfg.GraphClientSecret, cfg.AuthorizeURL(), cfg.TokenURL(), cfg.HTTPTimeout)
	resolver := session.NewResolver(kv, validator, cfg.DisableOIDCValidation)
	authService := services.NewAuthService(cfg, kv, graphClient, tokens)
	tokenService := services.NewTokenService(kv, tokens)

	srv := server.New(cfg, kv, graphClient, resolver, authService, tokenService)

	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetInt("port")
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Infow("gateway listening", "addr", httpServer.Addr, "cache_mode", cfg.CacheMode)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

// newStore creates the configured cache backend.
func newStore(ctx context.Context, cfg *config.Config) (cache.Store, error) {
	switch cfg.CacheMode {
	case config.CacheModeMemory:
		logger.Warn("using in-memory cache; sessions will not survive restarts")
		return cache.NewMemoryStore(nil), nil
	default:
		store, err := cache.NewRedisStore(ctx, cfg.CacheEndpoint, cfg.CacheEncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("failed to connect cache backend: %w", err)
		}
		return store, nil
	}
}
