package router

import (
	"reflect"
	"testing"
)

func TestCompileSourceMatch(t *testing.T) {
	tests := []struct {
		name   string
		source string
		path   string
		want   map[string][]string
		ok     bool
	}{
		{"literal", "/about", "/about", map[string][]string{}, true},
		{"literal miss", "/about", "/about/team", nil, false},
		{"single", "/blog/:slug", "/blog/hello", map[string][]string{"slug": {"hello"}}, true},
		{"single rejects multi", "/blog/:slug", "/blog/a/b", nil, false},
		{"catch-all", "/docs/:path*", "/docs/a/b/c", map[string][]string{"path": {"a", "b", "c"}}, true},
		{"catch-all empty", "/docs/:path*", "/docs", map[string][]string{"path": nil}, true},
		{"plus", "/files/:path+", "/files/a/b", map[string][]string{"path": {"a", "b"}}, true},
		{"plus requires one", "/files/:path+", "/files", nil, false},
		{"optional present", "/shop/:section?", "/shop/sale", map[string][]string{"section": {"sale"}}, true},
		{"optional absent", "/shop/:section?", "/shop", map[string][]string{"section": nil}, true},
		{"mixed", "/:lang/docs/:page", "/fr/docs/intro", map[string][]string{"lang": {"fr"}, "page": {"intro"}}, true},
		{"regex meta quoted", "/a.b", "/axb", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pattern, err := compileSource(tt.source)
			if err != nil {
				t.Fatalf("compileSource(%q): %v", tt.source, err)
			}
			got, ok := pattern.match(tt.path)
			if ok != tt.ok {
				t.Fatalf("match(%q) ok = %v, want %v", tt.path, ok, tt.ok)
			}
			if ok && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("match(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestCompileSourceErrors(t *testing.T) {
	for _, source := range []string{"about", "/blog/:", "/blog/:*"} {
		if _, err := compileSource(source); err == nil {
			t.Errorf("compileSource(%q) succeeded, want error", source)
		}
	}
}

func TestInterpolate(t *testing.T) {
	params := map[string][]string{
		"slug": {"hello"},
		"path": {"a", "b"},
	}
	got, used := interpolate("/blog/:slug/via/:path", params)
	if got != "/blog/hello/via/a/b" {
		t.Errorf("interpolate = %q", got)
	}
	if !used["slug"] || !used["path"] {
		t.Errorf("used = %v", used)
	}

	got, used = interpolate("/static/:unknown", params)
	if got != "/static/:unknown" {
		t.Errorf("unknown ref rewritten: %q", got)
	}
	if len(used) != 0 {
		t.Errorf("used = %v, want empty", used)
	}
}

func TestInterpolateModifiers(t *testing.T) {
	params := map[string][]string{
		"path": {"v1", "users"},
		"slug": {"hello"},
	}
	tests := []struct {
		template string
		want     string
	}{
		{"/api/:path*", "/api/v1/users"},
		{"/api/:path+", "/api/v1/users"},
		{"/blog/:slug?", "/blog/hello"},
		{"https://backend.internal/:path*", "https://backend.internal/v1/users"},
		{"/x/:missing*", "/x/:missing*"},
	}
	for _, tt := range tests {
		got, _ := interpolate(tt.template, params)
		if got != tt.want {
			t.Errorf("interpolate(%q) = %q, want %q", tt.template, got, tt.want)
		}
	}
}
