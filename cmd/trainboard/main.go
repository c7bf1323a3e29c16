// Package main implements the trainboard service. It polls SEPTA's
// NextToArrive API for every regional rail line in both directions, caches
// the latest answer per line and direction, and serves the cache over HTTP.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/HatiCode/trainboard/cmd/trainboard/config"
	"github.com/HatiCode/trainboard/cmd/trainboard/logger"
)

func main() {
	cfg := config.ParseFlags()

	logger := logger.New(cfg)
	slog.SetDefault(logger)

	logger.Info("starting trainboard",
		"version", "v0.1.0",
		"listen", cfg.Listen,
		"grpc_listen", cfg.GRPCListen,
		"upstream_url", cfg.UpstreamURL,
		"hub_station", cfg.HubStation,
		"interval", cfg.Interval,
	)

	tb, err := New(cfg, prometheus.DefaultRegisterer, prometheus.DefaultGatherer, logger)
	if err != nil {
		logger.Error("failed to initialise", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := tb.Run(ctx); err != nil {
		logger.Error("trainboard stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
