package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/HatiCode/trainboard/cmd/trainboard/config"
	"github.com/HatiCode/trainboard/pkg/lines"
)

func testConfig(upstreamURL string) *config.Config {
	return &config.Config{
		Listen:        "127.0.0.1:0",
		UpstreamURL:   upstreamURL,
		HubStation:    lines.DefaultHubStation,
		Limit:         5,
		Interval:      time.Hour,
		MaxStartDelay: 10 * time.Millisecond,
		FetchTimeout:  time.Second,
		LogFormat:     "text",
		LogLevel:      "info",
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_Errors(t *testing.T) {
	cfg := testConfig("ftp://example.com")
	if _, err := New(cfg, prometheus.NewRegistry(), prometheus.NewRegistry(), discard()); err == nil {
		t.Error("New() expected error for non-http upstream")
	}

	cfg = testConfig("http://example.com")
	cfg.LinesFile = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := New(cfg, prometheus.NewRegistry(), prometheus.NewRegistry(), discard()); err == nil {
		t.Error("New() expected error for missing lines file")
	}
}

func TestNew_LogsUpstream(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	if _, err := New(testConfig("http://stub:8080/NextToArrive/"), prometheus.NewRegistry(), prometheus.NewRegistry(), logger); err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for _, field := range []string{"upstream configured", "base_url=http://stub:8080/NextToArrive ", "lines=12"} {
		if !strings.Contains(buf.String(), field) {
			t.Errorf("log output missing %q: %s", field, buf.String())
		}
	}
}

func TestLoadLines(t *testing.T) {
	ls, err := loadLines("")
	if err != nil {
		t.Fatalf("loadLines() error = %v", err)
	}
	if len(ls) != 12 {
		t.Errorf("default lines = %d, want 12", len(ls))
	}

	path := filepath.Join(t.TempDir(), "lines.yaml")
	body := "lines:\n  - origin: Trenton\n    name: Trenton\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	ls, err = loadLines(path)
	if err != nil {
		t.Fatalf("loadLines() error = %v", err)
	}
	if len(ls) != 1 || ls[0].Name != "Trenton" {
		t.Errorf("lines = %+v", ls)
	}
}

func TestTrainboard_RunPopulatesAndShutsDown(t *testing.T) {
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"orig_train":"1"}]`))
	}))
	defer upstreamSrv.Close()

	tb, err := New(testConfig(upstreamSrv.URL), prometheus.NewRegistry(), prometheus.NewRegistry(), discard())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tb.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for tb.store.Snapshot().Len() < 24 {
		if time.Now().After(deadline) {
			t.Fatalf("cache has %d entries, want 24", tb.store.Snapshot().Len())
		}
		time.Sleep(10 * time.Millisecond)
	}

	trains, ok := tb.store.Snapshot().Lookup(lines.Inbound, "Airport")
	if !ok || string(trains) != `[{"orig_train":"1"}]` {
		t.Errorf("Lookup(inbound, Airport) = %s, %v", trains, ok)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
