package router

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/strata-dev/strata/pkg/manifest"
)

// sourcePattern is one compiled custom-rule source. Sources use named
// segments: ":name" captures one segment, ":name*" zero or more, ":name+"
// one or more, ":name?" an optional one.
type sourcePattern struct {
	re   *regexp.Regexp
	keys []string
}

// paramRef matches a named param reference inside a destination template.
// The source grammar's modifiers are legal in destinations too (":path*"
// refers to the same param as the ":path*" source segment), so an optional
// trailing modifier is consumed along with the name.
var paramRef = regexp.MustCompile(`:([a-zA-Z_][a-zA-Z0-9_]*)[*+?]?`)

func compileSource(source string) (*sourcePattern, error) {
	if !strings.HasPrefix(source, "/") {
		return nil, fmt.Errorf("router: source %q must start with /", source)
	}

	var sb strings.Builder
	sb.WriteString("^")
	var keys []string
	for _, seg := range strings.Split(strings.TrimPrefix(source, "/"), "/") {
		if !strings.HasPrefix(seg, ":") {
			sb.WriteString("/")
			sb.WriteString(regexp.QuoteMeta(seg))
			continue
		}
		name := seg[1:]
		modifier := byte(0)
		if len(name) > 0 {
			switch name[len(name)-1] {
			case '*', '+', '?':
				modifier = name[len(name)-1]
				name = name[:len(name)-1]
			}
		}
		if name == "" {
			return nil, fmt.Errorf("router: source %q has an unnamed segment", source)
		}
		keys = append(keys, name)
		switch modifier {
		case '*':
			sb.WriteString(`(?:/(.*))?`)
		case '+':
			sb.WriteString(`/(.+)`)
		case '?':
			sb.WriteString(`(?:/([^/]+))?`)
		default:
			sb.WriteString(`/([^/]+)`)
		}
	}
	sb.WriteString("$")

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, fmt.Errorf("router: source %q: %w", source, err)
	}
	return &sourcePattern{re: re, keys: keys}, nil
}

// match tries the pattern against a path and returns captured params.
// Repeated segments are split on "/".
func (p *sourcePattern) match(path string) (map[string][]string, bool) {
	m := p.re.FindStringSubmatch(path)
	if m == nil {
		return nil, false
	}
	params := make(map[string][]string, len(p.keys))
	for i, key := range p.keys {
		raw := m[i+1]
		if raw == "" {
			params[key] = nil
			continue
		}
		params[key] = strings.Split(raw, "/")
	}
	return params, true
}

// interpolate substitutes :name references in a destination template with
// captured values. It returns the expanded string and the set of params it
// consumed.
func interpolate(template string, params map[string][]string) (string, map[string]bool) {
	used := map[string]bool{}
	out := paramRef.ReplaceAllStringFunc(template, func(ref string) string {
		name := strings.TrimRight(ref[1:], "*+?")
		values, ok := params[name]
		if !ok {
			return ref
		}
		used[name] = true
		return strings.Join(values, "/")
	})
	return out, used
}

func (t *Table) headerRoute(rule manifest.HeaderRule) (Route, error) {
	pattern, err := compileSource(rule.Source)
	if err != nil {
		return Route{}, err
	}
	return Route{
		Name:  "header " + rule.Source,
		check: func(rc *RequestContext) (map[string][]string, bool) { return pattern.match(rc.Pathname) },
		handle: func(ctx context.Context, rc *RequestContext, params map[string][]string) (Result, error) {
			for _, kv := range rule.Headers {
				value, _ := interpolate(kv.Value, params)
				rc.W.Header().Set(kv.Key, value)
			}
			// Header routes only mutate outgoing headers and fall through.
			return Result{}, nil
		},
	}, nil
}

func (t *Table) redirectRoute(rule manifest.RedirectRule) (Route, error) {
	pattern, err := compileSource(rule.Source)
	if err != nil {
		return Route{}, err
	}
	return Route{
		Name:  "redirect " + rule.Source,
		check: func(rc *RequestContext) (map[string][]string, bool) { return pattern.match(rc.Pathname) },
		handle: func(ctx context.Context, rc *RequestContext, params map[string][]string) (Result, error) {
			location, _ := interpolate(rule.Destination, params)
			if !strings.Contains(location, "?") && len(rc.Query) > 0 {
				location += "?" + rc.Query.Encode()
			}
			rc.W.Header().Set("Location", location)
			rc.W.WriteHeader(rule.Status())
			return Result{Finished: true}, nil
		},
	}, nil
}

func (t *Table) rewriteRoute(name string, rule manifest.RewriteRule, proxy func(*RequestContext, *url.URL) error) (Route, error) {
	pattern, err := compileSource(rule.Source)
	if err != nil {
		return Route{}, err
	}
	external := strings.HasPrefix(rule.Destination, "http://") || strings.HasPrefix(rule.Destination, "https://")
	return Route{
		Name:  name + " " + rule.Source,
		check: func(rc *RequestContext) (map[string][]string, bool) { return pattern.match(rc.Pathname) },
		handle: func(ctx context.Context, rc *RequestContext, params map[string][]string) (Result, error) {
			dest, used := interpolate(rule.Destination, params)

			if external {
				target, err := url.Parse(dest)
				if err != nil {
					return Result{}, fmt.Errorf("router: rewrite destination %q: %w", dest, err)
				}
				if proxy == nil {
					return Result{}, fmt.Errorf("router: external rewrite to %q without a proxy", dest)
				}
				if err := proxy(rc, target); err != nil {
					return Result{}, err
				}
				return Result{Finished: true}, nil
			}

			target, err := url.Parse(dest)
			if err != nil {
				return Result{}, fmt.Errorf("router: rewrite destination %q: %w", dest, err)
			}
			query := target.Query()
			// Captured params not consumed by the destination surface as
			// query params for the rewritten page.
			for key, values := range params {
				if used[key] || len(values) == 0 {
					continue
				}
				query[key] = values
			}
			return Result{Pathname: target.Path, Query: query}, nil
		},
	}, nil
}

// WriteRedirect writes a redirect response directly, used by normalization
// steps outside the table (trailing slash, locale roots).
func WriteRedirect(w http.ResponseWriter, location string, status int) {
	w.Header().Set("Location", location)
	w.WriteHeader(status)
}
