// Package edge runs request-interception functions before page resolution.
// Interceptors are matched by path, executed in order, and their effects
// (headers, rewrite, redirect, short-circuit body) are merged into a single
// Result the routing pipeline acts on.
package edge

import (
	"context"
	"errors"
	"net/http"

	"github.com/strata-dev/strata/pkg/routepath"
)

// Control headers exchanged with edge functions. They steer the pipeline and
// are never forwarded to the client.
const (
	// HeaderNext marks "continue the chain"; its absence short-circuits.
	HeaderNext = "x-middleware-next"

	// HeaderRewrite carries a rewrite target (path or absolute URL).
	HeaderRewrite = "x-middleware-rewrite"

	// HeaderRefresh marks a short-circuit whose body is streamed verbatim.
	HeaderRefresh = "x-middleware-refresh"
)

// ErrUnavailable is returned by a Runner when the requested edge bundle is
// not loadable. Availability is advisory: the chain logs and moves on.
var ErrUnavailable = errors.New("edge: function bundle unavailable")

// Outcome is the per-request middleware result state.
type Outcome int

const (
	// OutcomeNoMatch means no interceptor matched; callers fall through to
	// normal rendering.
	OutcomeNoMatch Outcome = iota

	// OutcomeNext means interceptors ran and signaled continue; merged
	// headers apply and rendering proceeds.
	OutcomeNext

	// OutcomeRewrite re-routes the request to a new path, possibly on an
	// external host.
	OutcomeRewrite

	// OutcomeRedirect terminates the request with a Location response.
	OutcomeRedirect

	// OutcomeRefresh terminates the request, streaming the interceptor's
	// body verbatim.
	OutcomeRefresh
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case OutcomeNoMatch:
		return "no-match"
	case OutcomeNext:
		return "next"
	case OutcomeRewrite:
		return "rewrite"
	case OutcomeRedirect:
		return "redirect"
	case OutcomeRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}

// PageInfo is the routing context passed to edge functions: the logical page
// the URL would resolve to, with any dynamic params.
type PageInfo struct {
	Name   string
	Params routepath.Params
}

// Request is the normalized view of the inbound request an edge function
// receives.
type Request struct {
	// Name is the interceptor's page identifier from the manifest.
	Name string

	// Files are the interceptor's bundle paths.
	Files []string

	Method  string
	URL     string
	Headers http.Header
	Page    PageInfo
}

// Response is what an edge function produced.
type Response struct {
	Headers    http.Header
	StatusCode int
	Body       []byte

	// WaitUntil, when non-nil, is a background task the function wants
	// completed after the response. Its failure never fails the request.
	WaitUntil func(ctx context.Context) error
}

// Runner executes edge function bundles. Implementations are external to the
// serving core.
type Runner interface {
	Run(ctx context.Context, req *Request) (*Response, error)
}

// Result is the merged effect of running the chain for one request.
type Result struct {
	Outcome Outcome

	// Headers are the accumulated response headers of every interceptor
	// that ran, control headers removed. Later interceptors override
	// earlier ones for the same name.
	Headers http.Header

	// RewriteTarget is set for OutcomeRewrite: a path, optionally with
	// query, or an absolute URL whose host differs from ours.
	RewriteTarget string

	// Location and StatusCode are set for OutcomeRedirect.
	Location   string
	StatusCode int

	// Body is set for OutcomeRefresh.
	Body []byte
}
