package router

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"
)

// DefaultProxyTimeout is the contractual ceiling on one outbound proxy
// attempt for an external rewrite target.
const DefaultProxyTimeout = 30 * time.Second

// Proxy serves rewrites whose destination lives on another host.
type Proxy struct {
	timeout   time.Duration
	transport http.RoundTripper
	logger    *slog.Logger
}

// NewProxy creates a proxy with the given per-attempt timeout; zero means
// DefaultProxyTimeout.
func NewProxy(timeout time.Duration, logger *slog.Logger) *Proxy {
	if timeout <= 0 {
		timeout = DefaultProxyTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Proxy{timeout: timeout, transport: http.DefaultTransport, logger: logger}
}

// Serve forwards the request to target and streams the upstream response
// back. Upstream failures surface as a 500 unless the upstream already
// produced a status.
func (p *Proxy) Serve(rc *RequestContext, target *url.URL) error {
	ctx, cancel := context.WithTimeout(rc.R.Context(), p.timeout)
	defer cancel()

	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL = target
			pr.Out.Host = target.Host
		},
		Transport: p.transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			p.logger.Error("proxy upstream failed", "target", target.String(), "error", err)
			w.WriteHeader(http.StatusInternalServerError)
		},
	}
	rp.ServeHTTP(rc.W, rc.R.WithContext(ctx))
	return nil
}
