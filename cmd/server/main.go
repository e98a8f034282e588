package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tendant/simple-catalog/internal/logger"
	"github.com/tendant/simple-catalog/internal/telemetry"
	"github.com/tendant/simple-catalog/pkg/simplecatalog/config"
)

var version = "dev"

func main() {
	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		slog.Error("Failed to load server configuration", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("Server stopped with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.ServerConfig, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, "simple-catalog", version, cfg.OTLPEndpoint)
	if err != nil {
		log.Warn("Tracing disabled", "err", err)
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("Failed to flush traces", "err", err)
		}
	}()

	svc, resources, err := cfg.BuildService(ctx, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := resources.Close(); err != nil {
			log.Warn("Failed to close resources", "err", err)
		}
	}()

	router, err := NewRouter(svc, cfg, log)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Simple Catalog Server starting",
			"port", cfg.Port,
			"env", cfg.Environment,
			"database", cfg.DatabaseURL,
			"storage", cfg.StorageURL,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("Server exited")
	return nil
}
