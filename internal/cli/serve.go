package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"consoleauth/internal/console"
	"consoleauth/internal/platform/config"
	"consoleauth/internal/platform/httpserver"
	"consoleauth/internal/session/inactivity"
)

const janitorInterval = time.Minute

func newServeCommand(a *app) *cobra.Command {
	var shutdownTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the console screens behind the session guards",
		Long: `Start an HTTP server whose screens are guarded by the stored session.

Endpoints:
  /                   dashboard with the navigation the user may see
  /users              requires user.read
  /system/roles       requires the ADMIN role
  /reports            async check, cached
  /settings/security  account enabled and two-factor on
  /api/session        session summary as JSON
  /healthz            liveness, plus the redis store when configured
  /metrics            Prometheus metrics

The server stops gracefully on SIGINT or SIGTERM.

Examples:
  consoleauth serve --addr :8090 --idle-timeout 15m`,
		Args: cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context(), shutdownTimeout)
		}),
	}
	cmd.Flags().StringVar(&a.cfg.Addr, "addr", a.cfg.Addr, "address to listen on")
	cmd.Flags().DurationVar(&a.cfg.IdleTimeout, "idle-timeout", a.cfg.IdleTimeout, "log out after this long without requests (0 disables)")
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "how long to drain connections on shutdown")
	return cmd
}

func (a *app) serve(ctx context.Context, shutdownTimeout time.Duration) error {
	if err := a.session.Initialize(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	console.LogAccessChanges(ctx, a.session, a.logger)

	opts := []console.Option{
		console.WithCache(a.cache),
		console.WithMetrics(a.metrics),
		console.WithLogger(a.logger),
		console.WithCacheTTL(config.PermissionCacheTTL),
	}
	if a.redis != nil {
		opts = append(opts, console.WithHealthCheck(a.redis))
	}
	if a.cfg.IdleTimeout > 0 {
		monitor, err := inactivity.New(a.session, a.cfg.IdleTimeout, inactivity.WithLogger(a.logger))
		if err != nil {
			return fmt.Errorf("inactivity monitor: %w", err)
		}
		monitor.Start(ctx)
		defer monitor.Stop()
		opts = append(opts, console.WithActivity(monitor))
	}

	handler, err := console.NewHandler(a.session, opts...)
	if err != nil {
		return err
	}
	router, err := handler.Router()
	if err != nil {
		return err
	}
	a.cache.StartJanitor(ctx, janitorInterval)

	srv := httpserver.New(a.cfg.Addr, router)
	a.logger.Info("console starting", "addr", srv.Addr, "session", a.session.Status().String())
	return httpserver.Run(ctx, srv, nil, shutdownTimeout, a.logger)
}
