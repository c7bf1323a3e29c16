// Package metrics provides Prometheus instrumentation for trainboard.
//
// Metrics exposed:
//   - trainboard_fetch_duration_seconds: Histogram of upstream fetch latency per line and direction
//   - trainboard_fetch_errors_total: Counter of failed refresh ticks by reason
//   - trainboard_cache_writes_total: Counter of successful cache writes per direction
//   - trainboard_cache_entries: Gauge of populated (line, direction) entries
//   - trainboard_last_success_timestamp_seconds: Gauge of the last successful refresh per line and direction
//   - trainboard_forward_requests_total: Counter of /forward requests by result
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/HatiCode/trainboard/pkg/lines"
)

// Metrics implements refresh.Observer.
type Metrics struct {
	FetchDuration   *prometheus.HistogramVec
	FetchErrors     *prometheus.CounterVec
	CacheWrites     *prometheus.CounterVec
	CacheEntries    prometheus.Gauge
	LastSuccess     *prometheus.GaugeVec
	ForwardRequests *prometheus.CounterVec

	now func() time.Time
}

// New registers every metric on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trainboard_fetch_duration_seconds",
			Help:    "Duration of upstream fetches by line and direction",
			Buckets: prometheus.DefBuckets,
		}, []string{"line", "direction"}),

		FetchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trainboard_fetch_errors_total",
			Help: "Total number of failed refresh ticks by line, direction and reason",
		}, []string{"line", "direction", "reason"}),

		CacheWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trainboard_cache_writes_total",
			Help: "Total number of successful cache writes by direction",
		}, []string{"direction"}),

		CacheEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "trainboard_cache_entries",
			Help: "Number of (line, direction) entries currently cached",
		}),

		LastSuccess: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trainboard_last_success_timestamp_seconds",
			Help: "Unix time of the last successful refresh by line and direction",
		}, []string{"line", "direction"}),

		ForwardRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trainboard_forward_requests_total",
			Help: "Total number of /forward requests by result",
		}, []string{"result"}),

		now: time.Now,
	}
}

func (m *Metrics) ObserveFetch(line string, d lines.Direction, seconds float64) {
	m.FetchDuration.WithLabelValues(line, d.String()).Observe(seconds)
}

func (m *Metrics) RecordFetchError(line string, d lines.Direction, reason string) {
	m.FetchErrors.WithLabelValues(line, d.String(), reason).Inc()
}

func (m *Metrics) RecordCacheWrite(line string, d lines.Direction, entries int) {
	m.CacheWrites.WithLabelValues(d.String()).Inc()
	m.CacheEntries.Set(float64(entries))
	m.LastSuccess.WithLabelValues(line, d.String()).Set(float64(m.now().Unix()))
}

// RecordForward counts a /forward request; result is "ok" or "error".
func (m *Metrics) RecordForward(result string) {
	m.ForwardRequests.WithLabelValues(result).Inc()
}
