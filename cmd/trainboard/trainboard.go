package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/HatiCode/trainboard/cmd/trainboard/config"
	"github.com/HatiCode/trainboard/cmd/trainboard/metrics"
	"github.com/HatiCode/trainboard/cmd/trainboard/router"
	"github.com/HatiCode/trainboard/pkg/grpcx"
	"github.com/HatiCode/trainboard/pkg/httpx"
	"github.com/HatiCode/trainboard/pkg/lines"
	"github.com/HatiCode/trainboard/pkg/refresh"
	"github.com/HatiCode/trainboard/pkg/storage"
	"github.com/HatiCode/trainboard/pkg/upstream"
)

const shutdownTimeout = 10 * time.Second

// Trainboard wires the refresh scheduler, the cache and the servers.
type Trainboard struct {
	lines     []lines.Line
	store     *storage.MemoryStore
	scheduler *refresh.Scheduler
	http      *httpx.Server
	grpc      *grpcx.HealthServer
	grpcAddr  string
	logger    *slog.Logger
}

// New builds every component from cfg. Metrics are registered on reg and
// served from gatherer.
func New(cfg *config.Config, reg prometheus.Registerer, gatherer prometheus.Gatherer, logger *slog.Logger) (*Trainboard, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ls, err := loadLines(cfg.LinesFile)
	if err != nil {
		return nil, err
	}

	up, err := upstream.NewClientWithTimeout(cfg.UpstreamURL, cfg.FetchTimeout)
	if err != nil {
		return nil, err
	}
	logger.Info("upstream configured",
		"base_url", up.BaseURL(),
		"hub_station", cfg.HubStation,
		"lines", len(ls),
	)

	m := metrics.New(reg)
	store := storage.NewMemoryStore()

	scheduler := refresh.NewScheduler(up, store, refresh.Options{
		HubStation:    cfg.HubStation,
		Limit:         cfg.Limit,
		Interval:      cfg.Interval,
		MaxStartDelay: cfg.MaxStartDelay,
		Timeout:       cfg.FetchTimeout,
		Observer:      m,
		Logger:        logger,
	})

	handler := router.SetupRoutes(router.Deps{
		Store:      store,
		Forwarder:  up,
		StaleAfter: cfg.StaleAfter(),
		Metrics:    m,
		Gatherer:   gatherer,
		Logger:     logger,
	})

	t := &Trainboard{
		lines:     ls,
		store:     store,
		scheduler: scheduler,
		http:      httpx.NewServer(cfg.Listen, handler, logger),
		grpcAddr:  cfg.GRPCListen,
		logger:    logger,
	}
	if cfg.GRPCListen != "" {
		t.grpc = grpcx.NewHealthServer(logger)
	}
	return t, nil
}

func loadLines(path string) ([]lines.Line, error) {
	if path == "" {
		return lines.Default(), nil
	}
	ls, err := lines.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading lines: %w", err)
	}
	return ls, nil
}

// Run starts refreshing and serving, and blocks until ctx is cancelled or a
// server fails. It always shuts everything down before returning.
func (t *Trainboard) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := t.scheduler.Start(runCtx, t.lines); err != nil {
		return err
	}

	serverErr := make(chan error, 2)
	go func() {
		serverErr <- t.http.Start()
	}()
	if t.grpc != nil {
		go func() {
			serverErr <- t.grpc.Start(t.grpcAddr)
		}()
		t.grpc.SetServing(true)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErr:
		if runErr != nil {
			t.logger.Error("server failed", "error", runErr)
		}
	}

	t.logger.Info("shutting down")
	if t.grpc != nil {
		t.grpc.SetServing(false)
		t.grpc.Stop()
	}
	if err := t.http.Stop(shutdownTimeout); err != nil {
		t.logger.Error("http server shutdown failed", "error", err)
		if runErr == nil {
			runErr = err
		}
	}

	cancel()
	t.scheduler.Wait()
	return runErr
}
