// Package middleware provides production-grade HTTP middleware for the page
// server.
//
// This package includes:
//   - OpenTelemetry distributed tracing middleware
//   - Prometheus metrics middleware with response cache instrumentation
//
// # OpenTelemetry Middleware
//
// The OpenTelemetry middleware traces every request, providing distributed
// tracing across the serving pipeline. Spans carry the method, target path,
// host and response status.
//
//	handler := middleware.OpenTelemetry()(app)
//
// Configure with options:
//
//	middleware.OpenTelemetry(
//	    middleware.WithTracerName("my-site"),
//	    middleware.WithRequestFilter(func(r *http.Request) bool {
//	        return r.URL.Path != "/healthz"
//	    }),
//	)
//
// # Prometheus Metrics
//
// The metrics middleware collects request counts and latencies, and its
// CacheHooks feed the response cache's lifecycle events into counters:
//   - strata_requests_total: Requests by method and status
//   - strata_request_duration_seconds: Request duration histogram
//   - strata_cache_events_total: Cache hits, misses, stale serves, bypasses
//   - strata_revalidations_total: Background regenerations by result
//
//	metrics := middleware.NewMetrics()
//	handler := metrics.Handler(app)
//
// Then expose metrics:
//
//	http.Handle("/metrics", promhttp.Handler())
package middleware
