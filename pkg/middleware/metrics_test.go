package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsHandler(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(WithRegistry(registry))

	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("ok"))
	}))

	for _, path := range []string{"/", "/", "/missing"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "200")); got != 2 {
		t.Errorf("requests_total{200} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "404")); got != 1 {
		t.Errorf("requests_total{404} = %v, want 1", got)
	}
}

func TestMetricsCacheHooks(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(WithRegistry(registry), WithSubsystem("cachehooks"))
	hooks := m.CacheHooks()

	hooks.Hit("/a")
	hooks.Hit("/a")
	hooks.Miss("/b")
	hooks.Stale("/c")
	hooks.Bypass()
	hooks.RevalidateDone("/c", nil)
	hooks.RevalidateDone("/c", errors.New("render failed"))

	events := map[string]float64{"hit": 2, "miss": 1, "stale": 1, "bypass": 1}
	for event, want := range events {
		if got := testutil.ToFloat64(m.cacheEvents.WithLabelValues(event)); got != want {
			t.Errorf("cache_events_total{%s} = %v, want %v", event, got, want)
		}
	}
	if got := testutil.ToFloat64(m.revalidations.WithLabelValues("ok")); got != 1 {
		t.Errorf("revalidations_total{ok} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.revalidations.WithLabelValues("error")); got != 1 {
		t.Errorf("revalidations_total{error} = %v, want 1", got)
	}
}

func TestStatusWriterDefaultsTo200(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, status: http.StatusOK}
	sw.Write([]byte("implicit 200"))
	if sw.status != http.StatusOK {
		t.Errorf("status = %d, want 200", sw.status)
	}

	rec = httptest.NewRecorder()
	sw = &statusWriter{ResponseWriter: rec, status: http.StatusOK}
	sw.WriteHeader(http.StatusTeapot)
	sw.WriteHeader(http.StatusOK)
	if sw.status != http.StatusTeapot {
		t.Errorf("status = %d, want first WriteHeader to win", sw.status)
	}
}
