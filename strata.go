// Package strata is a hybrid static/dynamic page server. It serves a build
// output directory: prerendered pages come from an incrementally regenerated
// response cache, dynamic pages render on demand, and custom route rules,
// edge middleware, locale detection and data requests are resolved through a
// phased route table before any render happens.
//
// The package is transport-complete but render-agnostic: callers supply a
// ComponentLoader and Renderer for page production, and optionally an
// EdgeRunner executing middleware bundles.
package strata

import (
	"fmt"

	"github.com/strata-dev/strata/pkg/edge"
	"github.com/strata-dev/strata/pkg/render"
)

// ComponentLoader loads page bundles from the build output.
type ComponentLoader = render.ComponentLoader

// Renderer produces page output from a loaded bundle.
type Renderer = render.Renderer

// EdgeRunner executes edge middleware bundles.
type EdgeRunner = edge.Runner

// ==========================================================================
// Errors
// ==========================================================================

// HTTPError is an error carrying an HTTP status code. Renderers and loaders
// may return one to control the response status for a failed page; the
// server presents the matching error page instead of a generic 500.
type HTTPError struct {
	Status int
	Err    error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("http %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("http %d", e.Status)
}

func (e *HTTPError) Unwrap() error { return e.Err }

// Errorf builds an HTTPError with a formatted message.
func Errorf(status int, format string, args ...any) *HTTPError {
	return &HTTPError{Status: status, Err: fmt.Errorf(format, args...)}
}
