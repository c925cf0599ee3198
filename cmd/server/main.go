package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lokum-app/lokum/internal/api"
	"github.com/lokum-app/lokum/internal/config"
	"github.com/lokum-app/lokum/internal/scheduler"
	"github.com/lokum-app/lokum/internal/scraping/registry"
	"github.com/lokum-app/lokum/internal/storage"
)

func main() {
	slog.Info("Starting lokum server...")
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Critical error loading configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.Open(ctx, cfg.DatabaseURI)
	if err != nil {
		slog.Error("Critical error connecting to the database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	reg := registry.New(cfg)

	sched := scheduler.New(
		func(ctx context.Context) (scheduler.Tx, error) { return store.Begin(ctx) },
		reg,
		cfg.SchedulerInterval,
		cfg.StalenessWindow,
	)
	go sched.Run(ctx)

	server := api.NewServer(func(ctx context.Context) (api.Tx, error) { return store.Begin(ctx) })

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh
		slog.Info("Received signal, shutting down gracefully...", "signal", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
	}()

	slog.Info("Listening", "addr", cfg.HTTPAddr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("Failed to listen and serve", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped.")
}
