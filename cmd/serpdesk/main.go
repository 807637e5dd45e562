package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/serpdesk/serpdesk/internal/config"
	"github.com/serpdesk/serpdesk/internal/metrics"
	"github.com/serpdesk/serpdesk/internal/server"
	"github.com/serpdesk/serpdesk/internal/storage"
	"github.com/serpdesk/serpdesk/internal/storage/postgres"
	"github.com/serpdesk/serpdesk/internal/storage/sqlite"
)

func main() {
	if err := run(); err != nil {
		slog.Error("serpdesk exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.LogLevel == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("storage ready", "driver", cfg.DatabaseDriver)

	srv := server.New(cfg, store, logger)
	defer srv.Close()

	httpSrv := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     srv.Router(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	metricsSrv := metrics.Start(cfg.MetricsPort)
	logger.Info("metrics listening", "port", cfg.MetricsPort)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("api listening", "addr", cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("api shutdown", "error", err)
		}
		return metricsSrv.Stop(shutdownCtx)
	})

	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.DatabaseDriver {
	case "postgres":
		return postgres.New(ctx, cfg.DatabaseDSN)
	default:
		return sqlite.New(cfg.DatabaseDSN)
	}
}
