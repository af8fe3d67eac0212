package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/secmaster/internal/application"
	"github.com/JonMunkholm/secmaster/internal/config"
	"github.com/JonMunkholm/secmaster/internal/logging"
	"github.com/JonMunkholm/secmaster/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"version_store", cfg.VersionStore.Driver,
		"redis_addr", cfg.Redis.Addr,
		"workers", cfg.Pipeline.EffectiveWorkers(),
		"rate_limit", cfg.Security.RateLimit,
	)
	slog.Debug("configuration", "config", cfg.String())

	ctx := context.Background()
	app, err := application.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to open stores", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	server := web.NewServer(app.Service, cfg.Server, cfg.Security)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for a running reload to complete (with timeout)
		if status := app.Service.ReloadStatus(); status.Active > 0 {
			slog.Info("waiting for reload to complete", "active", status.Active)
			if err := app.Service.WaitForReloads(shutdownCtx); err != nil {
				slog.Warn("reload did not complete in time", "error", err)
			} else {
				slog.Info("reload completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	// Start server (uses addr from config internally)
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}
