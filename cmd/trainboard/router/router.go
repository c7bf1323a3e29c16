// Package router configures trainboard's HTTP API.
//
// Routes configured:
//   - GET /             - Liveness text
//   - GET /lines        - Cached snapshot: {"inbound":[{name,trains}..],"outbound":[..]}
//   - GET /awesome      - Payload-only view: {"inbound":[trains..],"outbound":[..]}
//   - GET /forward/...  - Passthrough to the upstream NextToArrive API
//   - GET /healthz      - Health check (always 200 OK)
//   - GET /readyz       - 503 until the first cache write
//   - GET /metrics      - Prometheus metrics
//
// Every response allows any origin; OPTIONS on any path is a 200 preflight.
// /lines carries X-Trainboard-Stale: true once its oldest entry is older than
// the stale threshold. Reads never block on refreshes.
package router

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/trainboard/pkg/client"
	"github.com/HatiCode/trainboard/pkg/httpx"
	"github.com/HatiCode/trainboard/pkg/storage"
)

// Forwarder relays an arbitrary sub-path to upstream.
// *upstream.Client satisfies it.
type Forwarder interface {
	Forward(ctx context.Context, path, rawQuery string) ([]byte, error)
}

// ForwardRecorder counts /forward outcomes.
type ForwardRecorder interface {
	RecordForward(result string)
}

// Deps are the collaborators of the HTTP API. Store and Forwarder are
// required; the rest default.
type Deps struct {
	Store      storage.Store
	Forwarder  Forwarder
	StaleAfter time.Duration
	Metrics    ForwardRecorder
	Gatherer   prometheus.Gatherer
	Clock      clockwork.Clock
	Logger     *slog.Logger
}

var errNotReady = errors.New("no arrivals cached yet")

// SetupRoutes builds the mux and wraps it with recovery, logging and CORS.
func SetupRoutes(d Deps) http.Handler {
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", handleRoot)
	mux.HandleFunc("GET /lines", handleLines(d.Store, d.StaleAfter, d.Clock))
	mux.HandleFunc("GET /awesome", handleAwesome(d.Store))
	mux.HandleFunc("GET /forward/{path...}", handleForward(d.Forwarder, d.Metrics, d.Logger))

	mux.Handle("GET /healthz", httpx.HealthHandler())
	mux.Handle("GET /readyz", httpx.HealthHandlerWithCheck(func() error {
		if d.Store.Snapshot().Len() == 0 {
			return errNotReady
		}
		return nil
	}))
	mux.Handle("GET /metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))

	return httpx.Chain(mux,
		httpx.RecoveryMiddleware(d.Logger),
		httpx.LoggingMiddleware(d.Logger),
		httpx.CORSMiddleware(),
	)
}

func handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Hello world!"))
}

func handleLines(store storage.Store, staleAfter time.Duration, clock clockwork.Clock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := store.Snapshot()

		if staleAfter > 0 && snap.Len() > 0 && clock.Since(snap.Oldest()) > staleAfter {
			w.Header().Set(client.StaleHeader, "true")
		}

		_ = httpx.WriteJSON(w, http.StatusOK, snap)
	}
}

func handleAwesome(store storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = httpx.WriteJSON(w, http.StatusOK, store.Snapshot().Payloads())
	}
}

func handleForward(fwd Forwarder, rec ForwardRecorder, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.PathValue("path")

		body, err := fwd.Forward(r.Context(), path, r.URL.RawQuery)
		if err != nil {
			logger.Warn("forward failed", "path", path, "error", err)
			if rec != nil {
				rec.RecordForward("error")
			}
			httpx.WriteErrorMessage(w, http.StatusBadGateway, "upstream request failed")
			return
		}
		if rec != nil {
			rec.RecordForward("ok")
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}
