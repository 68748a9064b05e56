package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sigmaqc/sigmaqc/internal/alerts"
	"github.com/sigmaqc/sigmaqc/internal/api"
	"github.com/sigmaqc/sigmaqc/internal/auth"
	"github.com/sigmaqc/sigmaqc/internal/config"
	"github.com/sigmaqc/sigmaqc/internal/metrics"
	"github.com/sigmaqc/sigmaqc/internal/store"
	"github.com/sigmaqc/sigmaqc/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("sigmaqc-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"retention_ttl", cfg.Server.Retention.TTL,
		"stream_interval", cfg.Server.Stream.Interval,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Evaluation store with background TTL eviction.
	st := store.New(cfg.Server.Retention.TTL)
	go st.Run(ctx)

	// Alerts engine — fires webhooks when an evaluation rejects a run.
	alertEngine := alerts.New(cfg.Server.Alerts)

	// Hot-reload alert settings (cooldown, webhook targets) on config change.
	go func() {
		err := config.Watch(ctx, *configPath, func(next *config.Config) {
			alertEngine.UpdateConfig(next.Server.Alerts)
			slog.Info("alert config reloaded", "cooldown", next.Server.Alerts.Cooldown)
		})
		if err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	// WebSocket hub — broadcasts the evaluation snapshot to clients.
	hub := ws.New(st, cfg.Server.Stream.Interval)
	go hub.Run(ctx)

	// Combined HTTP server: REST API, WebSocket stream, Prometheus metrics.
	// The API and stream sit behind the optional API key middleware; the
	// metrics endpoint stays open for scrapers.
	guard := func(h http.Handler) http.Handler {
		return auth.Middleware(
			cfg.Server.Auth.Mode,
			cfg.Server.Auth.EffectiveHeader(),
			cfg.Server.Auth.Key(),
			h,
		)
	}

	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", guard(api.New(st, alertEngine, cfg.Server.Limits, cfg.Server.Defaults)))
	httpMux.Handle("/ws/stream", guard(hub))
	httpMux.Handle("/metrics", metrics.Handler())

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: httpMux,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("sigmaqc-server shutting down")
	httpSrv.Shutdown(context.Background()) //nolint:errcheck
}
