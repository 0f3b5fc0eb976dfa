// Package manifest reads the build-time lookup tables the serving core
// consumes: the prerender manifest (static paths, fallback policy, preview
// credentials), the pages manifest (known logical pages), the middleware
// manifest (edge interceptors) and the routes manifest (headers, redirects,
// rewrites). All tables are read-only after load.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Manifest file names inside the build output directory.
const (
	PrerenderFile  = "prerender-manifest.json"
	PagesFile      = "pages-manifest.json"
	MiddlewareFile = "middleware-manifest.json"
	RoutesFile     = "routes-manifest.json"
	BuildIDFile    = "BUILD_ID"
)

// FallbackMode is the per-dynamic-page policy for paths that were not
// prerendered at build time.
type FallbackMode int

const (
	// FallbackBlocking holds the response until the render completes.
	FallbackBlocking FallbackMode = iota

	// FallbackStatic serves a prebuilt skeleton immediately; the client
	// fetches the real data afterwards.
	FallbackStatic

	// FallbackNone rejects unknown paths with a 404.
	FallbackNone
)

// String implements fmt.Stringer.
func (m FallbackMode) String() string {
	switch m {
	case FallbackBlocking:
		return "blocking"
	case FallbackStatic:
		return "static"
	case FallbackNone:
		return "false"
	default:
		return fmt.Sprintf("FallbackMode(%d)", int(m))
	}
}

// Fallback carries the fallback mode and, for static fallback, the path of
// the prebuilt skeleton HTML relative to the pages output.
type Fallback struct {
	Mode FallbackMode
	Path string
}

// UnmarshalJSON decodes the manifest encoding: a string is a static skeleton
// path, false disables fallback, null means blocking.
func (f *Fallback) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case trimmed == "null":
		*f = Fallback{Mode: FallbackBlocking}
		return nil
	case trimmed == "false":
		*f = Fallback{Mode: FallbackNone}
		return nil
	default:
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("manifest: invalid fallback value %s: %w", trimmed, err)
		}
		*f = Fallback{Mode: FallbackStatic, Path: s}
		return nil
	}
}

// MarshalJSON encodes the manifest representation.
func (f Fallback) MarshalJSON() ([]byte, error) {
	switch f.Mode {
	case FallbackNone:
		return []byte("false"), nil
	case FallbackStatic:
		return json.Marshal(f.Path)
	default:
		return []byte("null"), nil
	}
}

// Revalidate is the per-route regeneration interval. Forever means the
// entry is valid until explicitly invalidated.
type Revalidate struct {
	Seconds int
	Forever bool
}

// UnmarshalJSON decodes the manifest encoding: false means cache forever,
// a number is the interval in seconds.
func (r *Revalidate) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "false" {
		*r = Revalidate{Forever: true}
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("manifest: invalid revalidate value %s: %w", trimmed, err)
	}
	*r = Revalidate{Seconds: n}
	return nil
}

// MarshalJSON encodes the manifest representation.
func (r Revalidate) MarshalJSON() ([]byte, error) {
	if r.Forever {
		return []byte("false"), nil
	}
	return json.Marshal(r.Seconds)
}

// Duration converts the interval to a time.Duration; zero means forever.
func (r Revalidate) Duration() time.Duration {
	if r.Forever {
		return 0
	}
	return time.Duration(r.Seconds) * time.Second
}

// PrerenderRoute describes one concrete path prerendered at build time.
type PrerenderRoute struct {
	InitialRevalidate Revalidate `json:"initialRevalidateSeconds"`
	SrcRoute          string     `json:"srcRoute,omitempty"`
	DataRoute         string     `json:"dataRoute,omitempty"`
}

// DynamicRoute describes the fallback policy of one dynamic page.
type DynamicRoute struct {
	DataRoute string   `json:"dataRoute,omitempty"`
	Fallback  Fallback `json:"fallback"`
}

// Preview holds the preview-mode credentials minted at build time.
type Preview struct {
	ID            string `json:"previewModeId"`
	SigningKey    string `json:"previewModeSigningKey"`
	EncryptionKey string `json:"previewModeEncryptionKey"`
}

// Prerender is the prerender manifest.
type Prerender struct {
	Version       int                       `json:"version"`
	Routes        map[string]PrerenderRoute `json:"routes"`
	DynamicRoutes map[string]DynamicRoute   `json:"dynamicRoutes"`
	Preview       Preview                   `json:"preview"`
}

// HasStaticPath reports whether the concrete path was prerendered at build
// time. Used to decide whether a fallback:false page may render at all.
func (p *Prerender) HasStaticPath(path string) bool {
	if p == nil {
		return false
	}
	_, ok := p.Routes[path]
	return ok
}

// FallbackFor returns the fallback policy of a dynamic page. Pages absent
// from the manifest are not statically generated; callers treat them as
// server-rendered.
func (p *Prerender) FallbackFor(page string) (Fallback, bool) {
	if p == nil {
		return Fallback{}, false
	}
	dr, ok := p.DynamicRoutes[page]
	return dr.Fallback, ok
}

// Pages is the pages manifest: logical page path to bundle path relative to
// the build output directory.
type Pages map[string]string

// MiddlewareMatcher is one compiled path matcher of an edge interceptor.
type MiddlewareMatcher struct {
	Regexp         string `json:"regexp"`
	OriginalSource string `json:"originalSource,omitempty"`
}

// MiddlewareInfo describes one edge interceptor bundle.
type MiddlewareInfo struct {
	Page     string              `json:"page"`
	Matchers []MiddlewareMatcher `json:"matchers"`
	Files    []string            `json:"files"`
}

// Middleware is the middleware manifest.
type Middleware struct {
	Version    int                       `json:"version"`
	Middleware map[string]MiddlewareInfo `json:"middleware"`
}

// HeaderKV is one header mutation applied by a header route.
type HeaderKV struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// HeaderRule adds outgoing headers to matching requests and always falls
// through.
type HeaderRule struct {
	Source  string     `json:"source"`
	Headers []HeaderKV `json:"headers"`
}

// RedirectRule terminates matching requests with a redirect.
type RedirectRule struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	StatusCode  int    `json:"statusCode,omitempty"`
	Permanent   bool   `json:"permanent,omitempty"`
}

// Status returns the response code for the redirect, defaulting to 307 and
// honoring the permanent flag with 308.
func (r RedirectRule) Status() int {
	if r.StatusCode != 0 {
		return r.StatusCode
	}
	if r.Permanent {
		return 308
	}
	return 307
}

// RewriteRule maps matching requests onto a different path, either an
// internal page or an external URL that must be proxied.
type RewriteRule struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

// Rewrites groups rewrite rules by phase relative to filesystem routes.
type Rewrites struct {
	BeforeFiles []RewriteRule `json:"beforeFiles"`
	AfterFiles  []RewriteRule `json:"afterFiles"`
	Fallback    []RewriteRule `json:"fallback"`
}

// Routes is the routes manifest holding the custom route tables.
type Routes struct {
	Version   int            `json:"version"`
	BasePath  string         `json:"basePath,omitempty"`
	Headers   []HeaderRule   `json:"headers"`
	Redirects []RedirectRule `json:"redirects"`
	Rewrites  Rewrites       `json:"rewrites"`
}

// readJSON loads a manifest file; a missing file yields the zero value so
// that builds without custom routes or middleware keep working.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("manifest: read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("manifest: parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
