// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authsync Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/authsync/authsync/internal/backend"
	"github.com/authsync/authsync/internal/backend/local"
	"github.com/authsync/authsync/internal/config"
	"github.com/authsync/authsync/internal/logging"
	"github.com/authsync/authsync/internal/observability"
	"github.com/authsync/authsync/internal/profile"
	"github.com/authsync/authsync/internal/profile/postgres"
	"github.com/authsync/authsync/internal/session"
	"github.com/authsync/authsync/internal/sessioncache"
)

// ServeDeps holds injectable dependencies for the serve command. A nil
// field selects the default implementation.
type ServeDeps struct {
	ProfileStoreFactory        func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (profile.Store, func(), error)
	BackendFactory             func(cfg *config.Config, cache sessioncache.Cache, profiles profile.Store, logger *slog.Logger) backend.Client
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) *observability.Server
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the session synchronizer daemon",
		Long: `Start the daemon: subscribe to the auth backend's event stream,
reconcile session state, and expose metrics and health endpoints.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	config.RegisterFlags(cmd.Flags())
	return cmd
}

// defaultProfileStore selects PostgreSQL when a DSN is configured and
// the in-memory store otherwise.
func defaultProfileStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (profile.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Info("no database configured, using in-memory profile store")
		return profile.NewMemoryStore(), func() {}, nil
	}
	store, pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return store, pool.Close, nil
}

// defaultBackend builds the local auth backend. The profile-creation
// trigger inserts a profile row from the signup metadata, the way a
// hosted backend's server-side trigger would.
func defaultBackend(cfg *config.Config, cache sessioncache.Cache, profiles profile.Store, logger *slog.Logger) backend.Client {
	opts := []local.Option{
		local.WithLogger(logger),
		local.WithSessionTTL(cfg.SessionTTL),
		local.WithTrigger(func(u *backend.User) {
			p := &profile.Profile{UserID: u.ID}
			if v, ok := u.Metadata["username"].(string); ok {
				p.Username = v
			}
			if v, ok := u.Metadata["full_name"].(string); ok {
				p.FullName = v
			}
			if v, ok := u.Metadata["avatar_url"].(string); ok {
				p.AvatarURL = v
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := profiles.Insert(ctx, p); err != nil {
				logger.Warn("profile trigger insert failed",
					"user_id", u.ID.String(),
					"error", err,
				)
			}
		}),
	}
	if cfg.SigningKey != "" {
		opts = append(opts, local.WithSigningKey([]byte(cfg.SigningKey)))
	}
	return local.NewClient(cache, opts...)
}

// runServeWithDeps starts the daemon with injectable dependencies. If
// deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.ProfileStoreFactory == nil {
		deps.ProfileStoreFactory = defaultProfileStore
	}
	if deps.BackendFactory == nil {
		deps.BackendFactory = defaultBackend
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = observability.NewServer
	}

	logger := logging.SetupLevel("authsyncd", version, cfg.LogFormat, logging.ParseLevel(cfg.LogLevel), os.Stderr)
	slog.SetDefault(logger)

	logger.Info("starting session synchronizer",
		"metrics_addr", cfg.MetricsAddr,
		"log_format", cfg.LogFormat,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	profiles, closeProfiles, err := deps.ProfileStoreFactory(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open profile store: %w", err)
	}
	defer closeProfiles()

	cache := sessioncache.Open(ctx, cfg.RedisAddr, cfg.CacheKey, logger)
	client := deps.BackendFactory(cfg, cache, profiles, logger)

	syncOpts := []session.Option{session.WithLogger(logger)}

	// Start observability server if configured. Readiness flips once the
	// first auth event has been applied.
	var obsServer *observability.Server
	var syncer *session.Synchronizer
	if cfg.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.MetricsAddr, func() bool {
			return syncer != nil && syncer.Store.Bootstrapped()
		})
		syncOpts = append(syncOpts, session.WithRegistry(obsServer.Registry()))
	}

	syncer = session.New(client, profiles, syncOpts...)
	defer syncer.Close()

	if obsServer != nil {
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return fmt.Errorf("failed to start observability server: %w", err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	if err := syncer.Start(); err != nil {
		// The store has already resolved to the signed out default; the
		// daemon stays up so actions and probes keep working.
		logger.Warn("auth subscription failed at startup", "error", err)
	}

	// Log state transitions while running.
	watch := syncer.Store.Watch()
	go func() {
		for st := range watch {
			logger.Debug("auth state changed",
				"authenticated", st.Authenticated,
				"loading", st.Loading,
				"has_profile", st.Profile != nil,
			)
		}
	}()

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Session synchronizer started")
	logger.Info("session synchronizer ready")

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	// Graceful shutdown
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	if closer, ok := cache.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Warn("error closing session cache", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// monitorServerErrors monitors a server's error channel and cancels the
// context on error so a server failure triggers graceful shutdown. It
// exits when an error arrives, the channel closes, or the context ends.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
