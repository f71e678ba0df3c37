package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pdfpress/internal/batch"
	"pdfpress/internal/compression"
	"pdfpress/internal/config"
	"pdfpress/internal/pipeline"
	"pdfpress/internal/server"
	"pdfpress/internal/stats"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("loading configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.New(), nil
	}
	return config.Load(path)
}

func run(cfg *config.Config, logger *slog.Logger) error {
	store, err := stats.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}

	probe := compression.NewProbe(cfg.GhostscriptPath, cfg.ProbeTimeout, logger)
	primary := compression.NewGhostscript(cfg.GhostscriptPath, cfg.DocumentTimeout, logger)
	fallback := compression.NewFallback(logger)

	p := pipeline.New(cfg, probe, primary, fallback, logger)
	orchestrator := batch.NewOrchestrator(cfg, p, logger)
	srv := server.New(cfg, orchestrator, store, logger)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr, "workdir", cfg.WorkingDir)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(ctx)
}
