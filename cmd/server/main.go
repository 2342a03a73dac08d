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

	"github.com/Simplici0/shopworks/internal/config"
	"github.com/Simplici0/shopworks/internal/db"
	"github.com/Simplici0/shopworks/internal/domain/rates"
	"github.com/Simplici0/shopworks/internal/logger"
	"github.com/Simplici0/shopworks/internal/metrics"
	"github.com/Simplici0/shopworks/internal/migrations"
	"github.com/Simplici0/shopworks/internal/seed"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("prod").Error("load config failed", "err", err)
		os.Exit(1)
	}
	log := logger.New(cfg.App.Env)
	for _, w := range cfg.Warnings() {
		log.Warn("config", "warning", w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	database, err := db.Open(cfg.DB.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := migrations.Up(database); err != nil {
		return err
	}
	version, err := migrations.Version(database)
	if err != nil {
		return err
	}
	log.Info("migrations applied", "version", version)

	stats, err := seed.Run(ctx, database, seed.Config{Rates: rates.Config{
		LaborRate:          cfg.Pricing.LaborRate,
		CNCRate:            cfg.Pricing.CNCRate,
		PrinterRate:        cfg.Pricing.PrinterRate,
		MaterialMultiplier: cfg.Pricing.MaterialMultiplier,
		MarkupPercent:      cfg.Pricing.MarkupPercent,
		Currency:           cfg.Pricing.Currency,
	}})
	if err != nil {
		return err
	}
	log.Info("seed complete", "inserts", stats.Inserts, "updates", stats.Updates)

	srv := newServer(database, log, metrics.New())
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv.routes(cfg.Metrics.Enabled),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	log.Info("HTTP server started", "addr", cfg.HTTP.Addr, "env", cfg.App.Env)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("graceful shutdown complete")
	return nil
}
