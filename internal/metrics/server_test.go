package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-proc-relay/internal/logging"
)

func newTestServer(t *testing.T) (*Server, *Collector) {
	t.Helper()
	registry := prometheus.NewRegistry()
	c := NewCollectorWithRegistry(CollectorConfig{Version: "test", Command: "sh"}, registry)
	return NewServerWithGatherer("127.0.0.1:0", registry, logging.Discard()), c
}

func TestServer_Endpoints(t *testing.T) {
	s, c := newTestServer(t)
	c.ChunkRead("stdout", 42)

	tests := []struct {
		path     string
		ready    bool
		wantCode int
		wantBody string
	}{
		{"/health", false, http.StatusOK, "ok"},
		{"/healthz", false, http.StatusOK, "ok"},
		{"/ready", false, http.StatusServiceUnavailable, "not ready"},
		{"/readyz", true, http.StatusOK, "ok"},
		{"/metrics", false, http.StatusOK, `proc_relay_bytes_total{stream="stdout"} 42`},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			s.SetReady(tt.ready)
			rec := httptest.NewRecorder()
			s.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %q, want substring %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestServer_StartAndShutdown(t *testing.T) {
	s, _ := newTestServer(t)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if strings.HasSuffix(s.Addr(), ":0") {
		t.Fatalf("Addr = %q, want the bound port", s.Addr())
	}

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "ok" {
		t.Errorf("GET /healthz = %d %q", resp.StatusCode, body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestServer_StartBindError(t *testing.T) {
	s, _ := newTestServer(t)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Shutdown(context.Background())

	other := NewServerWithGatherer(s.Addr(), prometheus.NewRegistry(), logging.Discard())
	if err := other.Start(); err == nil {
		other.Shutdown(context.Background())
		t.Error("expected bind error on an address already in use")
	}
}
