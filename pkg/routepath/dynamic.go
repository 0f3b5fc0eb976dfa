package routepath

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ParamKind describes how a dynamic segment consumes the path.
type ParamKind int

const (
	// ParamSingle matches exactly one segment: /post/[id].
	ParamSingle ParamKind = iota

	// ParamCatchAll matches one or more segments: /docs/[...slug].
	ParamCatchAll

	// ParamOptionalCatchAll matches zero or more segments: /blog/[[...slug]].
	ParamOptionalCatchAll
)

// Param holds the value(s) captured for one dynamic segment. Repeated is set
// for (optional) catch-alls, whose values form an ordered sequence; an
// optional catch-all may carry an empty sequence.
type Param struct {
	Values   []string
	Repeated bool
}

// Params maps dynamic segment names to captured values.
type Params map[string]Param

// Get returns the first captured value for name, or "".
func (p Params) Get(name string) string {
	if v, ok := p[name]; ok && len(v.Values) > 0 {
		return v.Values[0]
	}
	return ""
}

// Pattern matches a logical page path with dynamic segments against concrete
// request paths.
type Pattern struct {
	// Page is the logical page path this pattern was compiled from.
	Page string

	re    *regexp.Regexp
	specs []paramSpec
}

type paramSpec struct {
	name string
	kind ParamKind
}

// Dynamic pattern errors.
var (
	ErrBadPattern     = errors.New("malformed dynamic segment")
	ErrMissingParam   = errors.New("missing value for required segment")
	ErrDuplicateParam = errors.New("duplicate segment name")
)

// IsDynamic reports whether a logical page path contains dynamic segments.
func IsDynamic(page string) bool {
	for _, seg := range strings.Split(page, "/") {
		if strings.HasPrefix(seg, "[") && strings.HasSuffix(seg, "]") {
			return true
		}
	}
	return false
}

// parseSegment classifies one path segment of a page pattern. ok is false for
// literal segments.
func parseSegment(seg string) (name string, kind ParamKind, ok bool, err error) {
	if !strings.HasPrefix(seg, "[") || !strings.HasSuffix(seg, "]") {
		return "", 0, false, nil
	}
	inner := seg[1 : len(seg)-1]
	kind = ParamSingle
	if strings.HasPrefix(inner, "[") && strings.HasSuffix(inner, "]") {
		kind = ParamOptionalCatchAll
		inner = inner[1 : len(inner)-1]
	}
	if strings.HasPrefix(inner, "...") {
		if kind == ParamSingle {
			kind = ParamCatchAll
		}
		inner = inner[3:]
	} else if kind == ParamOptionalCatchAll {
		return "", 0, false, fmt.Errorf("%w: %q", ErrBadPattern, seg)
	}
	if inner == "" || strings.ContainsAny(inner, "[]") {
		return "", 0, false, fmt.Errorf("%w: %q", ErrBadPattern, seg)
	}
	return inner, kind, true, nil
}

// Compile builds a Pattern for a logical page path. Dynamic segments use the
// bracket syntax: [id], [...rest], [[...rest]]. An (optional) catch-all is
// only valid as the final segment.
func Compile(page string) (*Pattern, error) {
	if page == "" || !strings.HasPrefix(page, "/") {
		return nil, fmt.Errorf("%w: page %q", ErrBadPattern, page)
	}

	segments := strings.Split(strings.TrimPrefix(page, "/"), "/")
	var (
		expr  strings.Builder
		specs []paramSpec
		seen  = map[string]bool{}
	)
	expr.WriteString("^")

	for i, seg := range segments {
		name, kind, dynamic, err := parseSegment(seg)
		if err != nil {
			return nil, err
		}
		if !dynamic {
			expr.WriteString("/")
			expr.WriteString(regexp.QuoteMeta(seg))
			continue
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: %q in %q", ErrDuplicateParam, name, page)
		}
		seen[name] = true
		if kind != ParamSingle && i != len(segments)-1 {
			return nil, fmt.Errorf("%w: catch-all %q must be final in %q", ErrBadPattern, seg, page)
		}
		switch kind {
		case ParamSingle:
			expr.WriteString("/([^/]+)")
		case ParamCatchAll:
			expr.WriteString("/(.+)")
		case ParamOptionalCatchAll:
			expr.WriteString("(?:/(.+))?")
		}
		specs = append(specs, paramSpec{name: name, kind: kind})
	}
	expr.WriteString("$")

	re, err := regexp.Compile(expr.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPattern, err)
	}
	return &Pattern{Page: page, re: re, specs: specs}, nil
}

// Match tries the pattern against a concrete request path. Captured segments
// are percent-decoded; catch-all captures are split into their ordered
// segment sequence. A segment that fails to decode does not match.
func (p *Pattern) Match(path string) (Params, bool) {
	if path == "" {
		path = "/"
	}
	m := p.re.FindStringSubmatch(path)
	if m == nil {
		return nil, false
	}

	params := make(Params, len(p.specs))
	for i, spec := range p.specs {
		raw := m[i+1]
		switch spec.kind {
		case ParamSingle:
			val, err := DecodeSegment(raw, false)
			if err != nil {
				return nil, false
			}
			params[spec.name] = Param{Values: []string{val}}
		default:
			if raw == "" {
				// Optional catch-all with nothing captured.
				params[spec.name] = Param{Repeated: true}
				continue
			}
			parts := strings.Split(raw, "/")
			vals := make([]string, 0, len(parts))
			for _, part := range parts {
				val, err := DecodeSegment(part, true)
				if err != nil {
					return nil, false
				}
				vals = append(vals, val)
			}
			params[spec.name] = Param{Values: vals, Repeated: true}
		}
	}
	return params, true
}

// Interpolate substitutes params back into the page pattern, producing a
// concrete path. Required segments with no value fail; an empty optional
// catch-all simply disappears.
func (p *Pattern) Interpolate(params Params) (string, error) {
	segments := strings.Split(strings.TrimPrefix(p.Page, "/"), "/")
	var out []string

	for _, seg := range segments {
		name, kind, dynamic, err := parseSegment(seg)
		if err != nil {
			return "", err
		}
		if !dynamic {
			out = append(out, seg)
			continue
		}
		val, ok := params[name]
		switch kind {
		case ParamSingle:
			if !ok || len(val.Values) == 0 {
				return "", fmt.Errorf("%w: %q", ErrMissingParam, name)
			}
			out = append(out, EscapePathDelimiters(val.Values[0], true))
		case ParamCatchAll:
			if !ok || len(val.Values) == 0 {
				return "", fmt.Errorf("%w: %q", ErrMissingParam, name)
			}
			out = append(out, val.Values...)
		case ParamOptionalCatchAll:
			if ok {
				out = append(out, val.Values...)
			}
		}
	}

	if len(out) == 0 {
		return "/", nil
	}
	return "/" + strings.Join(out, "/"), nil
}

// SortPages orders logical page paths by matching priority: within each
// segment position, literal segments win over [param], which wins over
// [...catchAll], which wins over [[...optional]]. This guarantees that
// /post/create always resolves before /post/[id] regardless of declaration
// order.
func SortPages(pages []string) []string {
	sorted := append([]string(nil), pages...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return comparePages(sorted[i], sorted[j]) < 0
	})
	return sorted
}

func comparePages(a, b string) int {
	as := strings.Split(strings.TrimPrefix(a, "/"), "/")
	bs := strings.Split(strings.TrimPrefix(b, "/"), "/")

	for i := 0; i < len(as) && i < len(bs); i++ {
		ra, rb := segmentRank(as[i]), segmentRank(bs[i])
		if ra != rb {
			return ra - rb
		}
		if ra == 0 && as[i] != bs[i] {
			return strings.Compare(as[i], bs[i])
		}
	}
	return len(as) - len(bs)
}

// segmentRank assigns match priority: lower ranks are tried first.
func segmentRank(seg string) int {
	name, kind, dynamic, err := parseSegment(seg)
	if err != nil || !dynamic {
		return 0
	}
	_ = name
	switch kind {
	case ParamSingle:
		return 1
	case ParamCatchAll:
		return 2
	default:
		return 3
	}
}
