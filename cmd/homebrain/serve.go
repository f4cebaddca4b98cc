package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/rhuss/homebrain/pkg/config"
	"github.com/rhuss/homebrain/pkg/observability"
	transporthttp "github.com/rhuss/homebrain/pkg/transport/http"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the homebrain HTTP API until interrupted.

Endpoints:
  POST   /api/chat                    run a turn
  POST   /api/chat/stream             run a turn as server-sent events
  POST   /api/chat/resume             answer a clarification
  DELETE /api/chat/stream/{thread_id} cancel a running stream
  GET    /api/threads[/{id}]          list or show threads
  DELETE /api/threads/{id}            delete a thread
  GET    /api/health, /metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = fmt.Sprintf(":%d", cfg.Server.Port)
			}
			return serve(cmd.Context(), cfg, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default \":<server.port>\")")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, addr string) error {
	tc := cfg.Observability.Tracing
	shutdownTracer, err := observability.InitTracer(ctx, observability.TracingConfig{
		Enabled:     tc.Enabled,
		Endpoint:    tc.Endpoint,
		Insecure:    tc.Insecure,
		ServiceName: tc.ServiceName,
		SampleRatio: tc.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(flushCtx); err != nil {
			slog.Warn("tracer shutdown failed", "error", err)
		}
	}()

	a, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}()

	serverOpts := []transporthttp.ServerOption{
		transporthttp.WithAddr(addr),
		transporthttp.WithMaxBodySize(cfg.Server.MaxBodySize),
		transporthttp.WithHeartbeatInterval(cfg.Server.HeartbeatInterval),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
	}
	if mw := authMiddleware(cfg.Auth); mw != nil {
		serverOpts = append(serverOpts, transporthttp.WithHTTPMiddleware(mw))
	}

	slog.Info("homebrain starting",
		"version", version,
		"generator", cfg.Generator.Provider,
		"model", cfg.Generator.Model,
		"storage", cfg.Storage.Type,
		"tools", a.registry.Names(),
	)
	return transporthttp.NewServer(a.engine, a.store, serverOpts...).Run(ctx)
}
