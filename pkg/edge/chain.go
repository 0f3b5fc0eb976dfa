package edge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/strata-dev/strata/pkg/manifest"
	"github.com/strata-dev/strata/pkg/routepath"
)

// Descriptor is one interceptor with its compiled path matchers.
type Descriptor struct {
	Page     string
	Files    []string
	matchers []*regexp.Regexp
}

// Matches reports whether any of the descriptor's matchers accept the path.
func (d *Descriptor) Matches(path string) bool {
	for _, m := range d.matchers {
		if m.MatchString(path) {
			return true
		}
	}
	return false
}

// Chain holds the immutable, ordered interceptor set for one build.
type Chain struct {
	descriptors []Descriptor
	runner      Runner
	logger      *slog.Logger
}

// NewChain compiles the middleware manifest into an executable chain.
// Descriptors run outermost-first: shallower pages run before deeper ones so
// broad policy (auth, locale redirects) precedes narrow overrides.
func NewChain(m *manifest.Middleware, runner Runner, logger *slog.Logger) (*Chain, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var descriptors []Descriptor
	if m != nil {
		for _, info := range m.Middleware {
			d := Descriptor{Page: info.Page, Files: info.Files}
			for _, matcher := range info.Matchers {
				re, err := regexp.Compile(matcher.Regexp)
				if err != nil {
					return nil, fmt.Errorf("edge: matcher %q for %q: %w", matcher.Regexp, info.Page, err)
				}
				d.matchers = append(d.matchers, re)
			}
			descriptors = append(descriptors, d)
		}
	}
	sort.SliceStable(descriptors, func(i, j int) bool {
		di := strings.Count(descriptors[i].Page, "/")
		dj := strings.Count(descriptors[j].Page, "/")
		if di != dj {
			return di < dj
		}
		return descriptors[i].Page < descriptors[j].Page
	})
	return &Chain{descriptors: descriptors, runner: runner, logger: logger}, nil
}

// Enabled reports whether the chain has any interceptors at all.
func (c *Chain) Enabled() bool {
	return len(c.descriptors) > 0
}

// Run executes every interceptor matching path, in order, and merges their
// effects. page is the logical page the URL resolves to, passed to the
// functions as routing context. A nil Result means nothing matched.
func (c *Chain) Run(ctx context.Context, r *http.Request, path string, page PageInfo) (*Result, error) {
	result := &Result{Outcome: OutcomeNoMatch, Headers: http.Header{}}
	matched := false

	for i := range c.descriptors {
		d := &c.descriptors[i]
		if !d.Matches(path) {
			continue
		}

		resp, err := c.runner.Run(ctx, &Request{
			Name:    d.Page,
			Files:   d.Files,
			Method:  r.Method,
			URL:     requestURL(r, path),
			Headers: r.Header.Clone(),
			Page:    page,
		})
		if err != nil {
			if errors.Is(err, ErrUnavailable) {
				c.logger.Warn("edge bundle unavailable, skipping", "page", d.Page)
				continue
			}
			return nil, fmt.Errorf("edge: %s: %w", d.Page, err)
		}

		matched = true
		c.spawnWaitUntil(ctx, d.Page, resp)
		mergeHeaders(result.Headers, resp.Headers)

		if headerValue(resp.Headers, HeaderNext) != "" {
			// Continue to the next matching interceptor.
			continue
		}

		// Short-circuit: classify the terminal effect.
		return c.finish(result, resp)
	}

	if !matched {
		return nil, nil
	}
	result.Outcome = OutcomeNext
	return result, nil
}

// finish classifies a short-circuiting response into its terminal outcome.
// An explicit refresh flag streams the body even if other control headers
// are present.
func (c *Chain) finish(result *Result, resp *Response) (*Result, error) {
	if headerValue(resp.Headers, HeaderRefresh) != "" {
		return c.refresh(result, resp), nil
	}
	if target := headerValue(resp.Headers, HeaderRewrite); target != "" {
		result.Outcome = OutcomeRewrite
		result.RewriteTarget = target
		return result, nil
	}
	if location := headerValue(resp.Headers, "Location"); location != "" {
		result.Outcome = OutcomeRedirect
		result.Location = location
		result.StatusCode = resp.StatusCode
		if result.StatusCode < 300 || result.StatusCode > 399 {
			result.StatusCode = http.StatusTemporaryRedirect
		}
		// Location reaches the client through the redirect itself.
		result.Headers.Del("Location")
		return result, nil
	}
	return c.refresh(result, resp), nil
}

// refresh turns a short-circuit into a verbatim body response.
func (c *Chain) refresh(result *Result, resp *Response) *Result {
	result.Outcome = OutcomeRefresh
	result.Body = resp.Body
	result.StatusCode = resp.StatusCode
	if result.StatusCode == 0 {
		result.StatusCode = http.StatusOK
	}
	return result
}

// spawnWaitUntil detaches a background task. Its failure is logged and never
// surfaces to the request.
func (c *Chain) spawnWaitUntil(ctx context.Context, page string, resp *Response) {
	if resp.WaitUntil == nil {
		return
	}
	task := resp.WaitUntil
	bgCtx := context.WithoutCancel(ctx)
	go func() {
		if err := task(bgCtx); err != nil {
			c.logger.Error("edge waitUntil task failed", "page", page, "error", err)
		}
	}()
}

// mergeHeaders accumulates interceptor response headers; later writers
// override earlier ones for the same (case-insensitive) name, and control
// headers never reach the merged set.
func mergeHeaders(dst, src http.Header) {
	for name, values := range src {
		if isControlHeader(name) {
			continue
		}
		dst.Del(name)
		for _, v := range values {
			dst.Add(name, v)
		}
	}
}

// headerValue looks up name in h without assuming net/http canonical key
// form. Runners build response headers by hand and real edge runtimes emit
// lowercase names, so both forms must be seen.
func headerValue(h http.Header, name string) string {
	if v := h.Get(name); v != "" {
		return v
	}
	for key, values := range h {
		if len(values) > 0 && strings.EqualFold(key, name) {
			return values[0]
		}
	}
	return ""
}

// isControlHeader reports whether the header steers the pipeline rather than
// describing the response.
func isControlHeader(name string) bool {
	return strings.HasPrefix(strings.ToLower(name), "x-middleware-")
}

// requestURL rebuilds the full URL an edge function sees, using the possibly
// rewritten path.
func requestURL(r *http.Request, path string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	_, query := routepath.SplitPathAndQuery(r.URL.RequestURI())
	u := scheme + "://" + r.Host + path
	if query != "" {
		u += "?" + query
	}
	return u
}
