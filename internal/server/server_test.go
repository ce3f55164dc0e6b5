package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

func TestEndpoints(t *testing.T) {
	var stopped atomic.Bool
	checks := map[string]healthz.Checker{
		"tasks": func(*http.Request) error {
			if stopped.Load() {
				return errors.New("task stopped")
			}
			return nil
		},
	}

	probe := prometheus.NewCounter(prometheus.CounterOpts{Name: "server_test_probe_total", Help: "test"})
	metrics.Registry.MustRegister(probe)
	t.Cleanup(func() { metrics.Registry.Unregister(probe) })
	probe.Inc()

	srv := httptest.NewServer(New(logr.Discard(), ":0", checks).Handler())
	defer srv.Close()

	get := func(path string) (int, string) {
		t.Helper()
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	for _, path := range []string{"/healthz", "/healthz/ping", "/readyz", "/readyz/tasks"} {
		if code, body := get(path); code != http.StatusOK {
			t.Errorf("GET %s = %d %q, want 200", path, code, body)
		}
	}

	stopped.Store(true)
	if code, _ := get("/readyz"); code != http.StatusInternalServerError {
		t.Errorf("GET /readyz with failing check = %d, want 500", code)
	}
	if code, _ := get("/healthz"); code != http.StatusOK {
		t.Errorf("liveness must not depend on readiness, got %d", code)
	}

	code, body := get("/metrics")
	if code != http.StatusOK || !strings.Contains(body, "server_test_probe_total 1") {
		t.Errorf("GET /metrics = %d, body missing probe counter", code)
	}
}

func TestServeShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := New(logr.Discard(), ln.Addr().String(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /healthz = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestStartInvalidAddress(t *testing.T) {
	if err := New(logr.Discard(), "not-an-address", nil).Start(context.Background()); err == nil {
		t.Fatal("expected listen error")
	}
}
