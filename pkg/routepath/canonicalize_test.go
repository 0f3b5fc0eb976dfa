package routepath

import (
	"errors"
	"testing"
)

func TestCanonicalizeValid(t *testing.T) {
	tests := []struct {
		input    string
		wantPath string
	}{
		{"/", "/"},
		{"/about", "/about"},
		{"/blog/first-post", "/blog/first-post"},
		{"/caf%C3%A9", "/caf%C3%A9"},
		{"/a/b/../c", "/a/c"},
		{"/a//b", "/a/b"},
	}

	for _, tt := range tests {
		got, err := Canonicalize(tt.input)
		if err != nil {
			t.Errorf("Canonicalize(%q) error: %v", tt.input, err)
			continue
		}
		if got.Path != tt.wantPath {
			t.Errorf("Canonicalize(%q).Path = %q, want %q", tt.input, got.Path, tt.wantPath)
		}
	}
}

func TestCanonicalizeTrailingSlash(t *testing.T) {
	tests := []struct {
		input    string
		wantPath string
		wantHad  bool
	}{
		{"/about/", "/about", true},
		{"/about", "/about", false},
		{"/a/b//", "/a/b", true},
		{"/about/?x=1", "/about", true},
		{"/", "/", false},
	}

	for _, tt := range tests {
		got, err := Canonicalize(tt.input)
		if err != nil {
			t.Errorf("Canonicalize(%q) error: %v", tt.input, err)
			continue
		}
		if got.Path != tt.wantPath || got.HadTrailingSlash != tt.wantHad {
			t.Errorf("Canonicalize(%q) = (%q, had=%v), want (%q, had=%v)",
				tt.input, got.Path, got.HadTrailingSlash, tt.wantPath, tt.wantHad)
		}
	}
}

func TestCanonicalizeQuery(t *testing.T) {
	got, err := Canonicalize("/search?q=go&page=2")
	if err != nil {
		t.Fatalf("Canonicalize() error: %v", err)
	}
	if got.Path != "/search" {
		t.Errorf("Path = %q, want %q", got.Path, "/search")
	}
	if got.Query != "q=go&page=2" {
		t.Errorf("Query = %q, want %q", got.Query, "q=go&page=2")
	}
}

func TestCanonicalizeMalformedEscape(t *testing.T) {
	// Truncated multi-byte sequence must be rejected, never decoded.
	inputs := []string{"/%E0%A4%A", "/a%", "/a%2", "/a%zz"}
	for _, input := range inputs {
		_, err := Canonicalize(input)
		if !errors.Is(err, ErrInvalidPercentEscape) {
			t.Errorf("Canonicalize(%q) error = %v, want ErrInvalidPercentEscape", input, err)
		}
	}
}

func TestCanonicalizeRejects(t *testing.T) {
	tests := []struct {
		input   string
		wantErr error
	}{
		{"about", ErrInvalidPath},
		{"a/../b", ErrInvalidPath},
		{"/a\\b", ErrBackslashInPath},
		{"/a\x00b", ErrNullByteInPath},
		{"/a%00b", ErrNullByteInPath},
		{"/../etc/passwd", ErrPathEscapesRoot},
		{"/a/../../b", ErrPathEscapesRoot},
	}

	for _, tt := range tests {
		_, err := Canonicalize(tt.input)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("Canonicalize(%q) error = %v, want %v", tt.input, err, tt.wantErr)
		}
	}
}

func TestDecodeSegment(t *testing.T) {
	got, err := DecodeSegment("caf%C3%A9", false)
	if err != nil {
		t.Fatalf("DecodeSegment() error: %v", err)
	}
	if got != "café" {
		t.Errorf("DecodeSegment() = %q, want %q", got, "café")
	}

	// An encoded slash inside a plain segment would change the path shape.
	if _, err := DecodeSegment("a%2Fb", false); !errors.Is(err, ErrEncodedSlashInSegment) {
		t.Errorf("DecodeSegment(plain) error = %v, want ErrEncodedSlashInSegment", err)
	}

	// Catch-all segments may span slashes.
	got, err = DecodeSegment("a%2Fb", true)
	if err != nil {
		t.Fatalf("DecodeSegment(catch-all) error: %v", err)
	}
	if got != "a/b" {
		t.Errorf("DecodeSegment(catch-all) = %q, want %q", got, "a/b")
	}
}

func TestSplitPathAndQuery(t *testing.T) {
	path, query := SplitPathAndQuery("/a/b?x=1&y=2")
	if path != "/a/b" || query != "x=1&y=2" {
		t.Errorf("SplitPathAndQuery() = (%q, %q), want (%q, %q)", path, query, "/a/b", "x=1&y=2")
	}

	path, query = SplitPathAndQuery("/a/b")
	if path != "/a/b" || query != "" {
		t.Errorf("SplitPathAndQuery() = (%q, %q), want (%q, %q)", path, query, "/a/b", "")
	}
}
