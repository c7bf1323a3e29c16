package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/HatiCode/trainboard/pkg/lines"
	"github.com/HatiCode/trainboard/pkg/storage"
	"github.com/HatiCode/trainboard/pkg/upstream"
)

var epoch = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

type fixedStore struct {
	snap storage.Snapshot
}

func (s *fixedStore) Upsert(lines.Direction, string, json.RawMessage) {}
func (s *fixedStore) Snapshot() storage.Snapshot                      { return s.snap }

type fakeForwarder struct {
	body     []byte
	err      error
	path     string
	rawQuery string
}

func (f *fakeForwarder) Forward(ctx context.Context, path, rawQuery string) ([]byte, error) {
	f.path, f.rawQuery = path, rawQuery
	return f.body, f.err
}

type countingRecorder struct {
	results map[string]int
}

func (c *countingRecorder) RecordForward(result string) {
	if c.results == nil {
		c.results = make(map[string]int)
	}
	c.results[result]++
}

func populated() storage.Snapshot {
	return storage.Snapshot{
		Inbound: []storage.LineArrivals{
			{Name: "Trenton", Trains: json.RawMessage(`[{"id":2}]`), UpdatedAt: epoch},
		},
		Outbound: []storage.LineArrivals{
			{Name: "Airport", Trains: json.RawMessage(`[]`), UpdatedAt: epoch.Add(10 * time.Second)},
			{Name: "Trenton", Trains: json.RawMessage(`[{"id":1}]`), UpdatedAt: epoch.Add(20 * time.Second)},
		},
	}
}

func empty() storage.Snapshot {
	return storage.Snapshot{Inbound: []storage.LineArrivals{}, Outbound: []storage.LineArrivals{}}
}

func newHandler(snap storage.Snapshot, fwd Forwarder, now time.Time) http.Handler {
	return SetupRoutes(Deps{
		Store:      &fixedStore{snap: snap},
		Forwarder:  fwd,
		StaleAfter: time.Minute,
		Gatherer:   prometheus.NewRegistry(),
		Clock:      clockwork.NewFakeClockAt(now),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestRoot(t *testing.T) {
	w := serve(newHandler(empty(), &fakeForwarder{}, epoch), http.MethodGet, "/")

	if w.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Body.String() != "Hello world!" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestLines_Empty(t *testing.T) {
	w := serve(newHandler(empty(), &fakeForwarder{}, epoch), http.MethodGet, "/lines")

	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", w.Code, http.StatusOK)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"inbound":[],"outbound":[]}` {
		t.Errorf("body = %s", got)
	}
	if w.Header().Get("X-Trainboard-Stale") != "" {
		t.Error("empty snapshot should not be flagged stale")
	}
}

func TestLines_Populated(t *testing.T) {
	w := serve(newHandler(populated(), &fakeForwarder{}, epoch.Add(30*time.Second)), http.MethodGet, "/lines")

	want := `{"inbound":[{"name":"Trenton","trains":[{"id":2}]}],"outbound":[{"name":"Airport","trains":[]},{"name":"Trenton","trains":[{"id":1}]}]}`
	if got := strings.TrimSpace(w.Body.String()); got != want {
		t.Errorf("body = %s\nwant   %s", got, want)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if w.Header().Get("X-Trainboard-Stale") != "" {
		t.Error("fresh snapshot flagged stale")
	}
}

func TestLines_Stale(t *testing.T) {
	// Oldest entry is the inbound Trenton write at epoch.
	w := serve(newHandler(populated(), &fakeForwarder{}, epoch.Add(61*time.Second)), http.MethodGet, "/lines")

	if w.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Header().Get("X-Trainboard-Stale") != "true" {
		t.Error("expected X-Trainboard-Stale: true")
	}
}

func TestAwesome(t *testing.T) {
	w := serve(newHandler(populated(), &fakeForwarder{}, epoch), http.MethodGet, "/awesome")

	want := `{"inbound":[[{"id":2}]],"outbound":[[],[{"id":1}]]}`
	if got := strings.TrimSpace(w.Body.String()); got != want {
		t.Errorf("body = %s\nwant   %s", got, want)
	}

	w = serve(newHandler(empty(), &fakeForwarder{}, epoch), http.MethodGet, "/awesome")
	if got := strings.TrimSpace(w.Body.String()); got != `{"inbound":[],"outbound":[]}` {
		t.Errorf("empty body = %s", got)
	}
}

func TestForward(t *testing.T) {
	fwd := &fakeForwarder{body: []byte(`[{"orig_train":"9252"}]`)}
	rec := &countingRecorder{}
	h := SetupRoutes(Deps{
		Store:     &fixedStore{snap: empty()},
		Forwarder: fwd,
		Metrics:   rec,
		Gatherer:  prometheus.NewRegistry(),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	w := serve(h, http.MethodGet, "/forward/Market%20East/Trenton/3?x=1")

	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Body.String() != `[{"orig_train":"9252"}]` {
		t.Errorf("body = %s", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if fwd.path != "Market East/Trenton/3" || fwd.rawQuery != "x=1" {
		t.Errorf("forwarded path = %q, query = %q", fwd.path, fwd.rawQuery)
	}
	if rec.results["ok"] != 1 {
		t.Errorf("recorded = %v", rec.results)
	}
}

func TestForward_UpstreamFailure(t *testing.T) {
	for _, err := range []error{
		&upstream.StatusError{Code: http.StatusServiceUnavailable},
		upstream.ErrNetwork,
		errors.New("boom"),
	} {
		rec := &countingRecorder{}
		h := SetupRoutes(Deps{
			Store:     &fixedStore{snap: empty()},
			Forwarder: &fakeForwarder{err: err},
			Metrics:   rec,
			Gatherer:  prometheus.NewRegistry(),
			Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		})

		w := serve(h, http.MethodGet, "/forward/a/b/5")
		if w.Code != http.StatusBadGateway {
			t.Errorf("%v: status code = %d, want %d", err, w.Code, http.StatusBadGateway)
		}
		if !strings.Contains(w.Body.String(), `"error"`) {
			t.Errorf("%v: body = %s", err, w.Body.String())
		}
		if rec.results["error"] != 1 {
			t.Errorf("%v: recorded = %v", err, rec.results)
		}
	}
}

func TestReadyz(t *testing.T) {
	w := serve(newHandler(empty(), &fakeForwarder{}, epoch), http.MethodGet, "/readyz")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("empty cache: status code = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}

	w = serve(newHandler(populated(), &fakeForwarder{}, epoch), http.MethodGet, "/readyz")
	if w.Code != http.StatusOK {
		t.Errorf("populated cache: status code = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "trainboard_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	h := SetupRoutes(Deps{
		Store:     &fixedStore{snap: empty()},
		Forwarder: &fakeForwarder{},
		Gatherer:  reg,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	w := serve(h, http.MethodGet, "/healthz")
	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Errorf("/healthz = %d %q", w.Code, w.Body.String())
	}

	w = serve(h, http.MethodGet, "/metrics")
	if w.Code != http.StatusOK {
		t.Errorf("/metrics status code = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "trainboard_test_total 1") {
		t.Errorf("/metrics body missing counter: %s", w.Body.String())
	}
}

func TestCORS(t *testing.T) {
	h := newHandler(populated(), &fakeForwarder{}, epoch)

	w := serve(h, http.MethodGet, "/lines")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("GET Access-Control-Allow-Origin = %q", got)
	}

	w = serve(h, http.MethodOptions, "/lines")
	if w.Code != http.StatusOK {
		t.Errorf("OPTIONS status code = %d, want 200", w.Code)
	}
	if got := w.Header().Get("Allow"); got != "HEAD,GET,PUT,POST,DELETE,OPTIONS" {
		t.Errorf("Allow = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Headers"); got != "X-Requested-With, X-HTTP-Method-Override, Content-Type, Cache-Control, Accept" {
		t.Errorf("Access-Control-Allow-Headers = %q", got)
	}
}

func TestRecovery(t *testing.T) {
	h := SetupRoutes(Deps{
		Store:     &panickingStore{},
		Forwarder: &fakeForwarder{},
		Gatherer:  prometheus.NewRegistry(),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	w := serve(h, http.MethodGet, "/lines")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

type panickingStore struct{}

func (panickingStore) Upsert(lines.Direction, string, json.RawMessage) {}
func (panickingStore) Snapshot() storage.Snapshot                      { panic("store unavailable") }

func TestUnknownRoute(t *testing.T) {
	w := serve(newHandler(empty(), &fakeForwarder{}, epoch), http.MethodGet, "/nope")
	if w.Code != http.StatusNotFound {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusNotFound)
	}
}
