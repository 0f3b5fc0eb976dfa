package strata

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/strata-dev/strata/pkg/pagecache"
	"github.com/strata-dev/strata/pkg/render"
	"github.com/strata-dev/strata/pkg/routepath"
)

// =============================================================================
// Configuration Types
// =============================================================================

// Config is the main server configuration. All fields are read-only inputs
// consumed at construction time.
type Config struct {
	// DistDir is the build output directory holding the manifests, page
	// bundles and prerendered output. Default: ".next".
	DistDir string

	// Dev enables development behavior: on-demand renders, no output
	// persistence, error detail in responses.
	Dev bool

	// MinimalMode disables local caching and error recovery. An external
	// routing layer resolves paths (via the x-matched-path request header)
	// and owns error handling; unexpected errors propagate through
	// OnUnhandledError instead of producing a local 500.
	MinimalMode bool

	// DeploymentID, when set, is checked against the x-deployment-id
	// request header in minimal mode; a mismatch yields 412. Defaults to
	// the build ID.
	DeploymentID string

	// BasePath mounts the whole application under a path prefix
	// (e.g. "/docs"). Requests outside the prefix are not served.
	BasePath string

	// TrailingSlash selects the canonical URL form: false redirects
	// /about/ to /about with a 308, true does the opposite.
	TrailingSlash bool

	I18n   I18nConfig
	Cache  CacheConfig
	Static StaticConfig
	Proxy  ProxyConfig

	// KeyPolicy tunes cache-key derivation for AMP variants and trailing
	// slashes.
	KeyPolicy render.KeyPolicy

	// Logger is the structured logger. If nil, slog.Default() is used.
	Logger *slog.Logger

	// OnUnhandledError receives errors that escape the routing pipeline in
	// minimal mode. When nil, such errors panic so a process supervisor
	// can react.
	OnUnhandledError func(err error)
}

// I18nConfig configures locale handling.
type I18nConfig struct {
	// Locales lists every supported locale. Empty disables i18n.
	Locales []string

	// DefaultLocale is served at unprefixed paths.
	DefaultLocale string

	// Domains maps hostnames to their own default locale.
	Domains []routepath.Domain

	// DisableDetection turns off Accept-Language and cookie based locale
	// detection at the root path.
	DisableDetection bool
}

// LocaleCookie carries a visitor's explicit locale choice across requests.
const LocaleCookie = "NEXT_LOCALE"

// CacheConfig configures the response cache.
type CacheConfig struct {
	// MaxEntries bounds the in-memory store; least recently used entries
	// are evicted. Zero or negative means unbounded.
	// Default: 1024.
	MaxEntries int

	// Durable, when set, mirrors committed entries to a persistent store
	// (filesystem, SQLite, S3) that survives process restarts.
	Durable pagecache.Store

	// Hooks receives cache lifecycle notifications, used to feed metrics.
	Hooks pagecache.Hooks
}

// StaticConfig configures static file serving for the public directory.
type StaticConfig struct {
	// Dir is the directory of user static files served at the site root.
	// Empty disables public file serving.
	Dir string

	// Headers are custom headers added to all public file responses.
	Headers map[string]string
}

// ProxyConfig configures outbound proxying for external rewrite targets.
type ProxyConfig struct {
	// Timeout bounds one proxy attempt. Default: 30s.
	Timeout time.Duration
}

// =============================================================================
// Default Configurations
// =============================================================================

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DistDir: ".next",
		Cache:   DefaultCacheConfig(),
		Proxy:   DefaultProxyConfig(),
	}
}

// DefaultCacheConfig returns a CacheConfig with sensible defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxEntries: 1024,
	}
}

// DefaultProxyConfig returns a ProxyConfig with sensible defaults.
func DefaultProxyConfig() ProxyConfig {
	return ProxyConfig{
		Timeout: 30 * time.Second,
	}
}

// normalize applies defaults to a user supplied config.
func (c *Config) normalize() {
	if c.DistDir == "" {
		c.DistDir = ".next"
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = DefaultCacheConfig().MaxEntries
	}
	if c.Proxy.Timeout <= 0 {
		c.Proxy.Timeout = DefaultProxyConfig().Timeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Validate reports configuration errors that normalize cannot repair.
func (c *Config) Validate() error {
	if c.BasePath != "" {
		if !strings.HasPrefix(c.BasePath, "/") {
			return fmt.Errorf("base path %q must start with a slash", c.BasePath)
		}
		if strings.HasSuffix(c.BasePath, "/") {
			return fmt.Errorf("base path %q must not end with a slash", c.BasePath)
		}
	}
	if len(c.I18n.Locales) > 0 {
		if c.I18n.DefaultLocale == "" {
			return fmt.Errorf("i18n default locale is required when locales are set")
		}
		if !slices.Contains(c.I18n.Locales, c.I18n.DefaultLocale) {
			return fmt.Errorf("i18n default locale %q is not in the locale list", c.I18n.DefaultLocale)
		}
		for _, d := range c.I18n.Domains {
			if d.DefaultLocale != "" && !slices.Contains(c.I18n.Locales, d.DefaultLocale) {
				return fmt.Errorf("domain %q default locale %q is not in the locale list", d.Domain, d.DefaultLocale)
			}
		}
	}
	return nil
}
