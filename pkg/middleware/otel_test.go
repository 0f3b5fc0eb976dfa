package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestOpenTelemetryPassesThrough(t *testing.T) {
	handler := OpenTelemetry()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("made"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/things", nil))

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", rec.Code)
	}
	if rec.Body.String() != "made" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestOpenTelemetryFilter(t *testing.T) {
	var extracted int
	handler := OpenTelemetry(
		WithRequestFilter(func(r *http.Request) bool { return r.URL.Path != "/healthz" }),
		WithAttributeExtractor(func(r *http.Request) []attribute.KeyValue {
			extracted++
			return []attribute.KeyValue{attribute.String("page", r.URL.Path)}
		}),
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if extracted != 0 {
		t.Error("filtered request was still traced")
	}

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/page", nil))
	if extracted != 1 {
		t.Errorf("extractor ran %d times, want 1", extracted)
	}
}
