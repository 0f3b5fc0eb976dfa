package routepath

import "testing"

func TestStripPathLocale(t *testing.T) {
	locales := []string{"en-US", "fr", "nl-NL"}

	tests := []struct {
		path       string
		wantPath   string
		wantLocale string
	}{
		{"/", "/", ""},
		{"/about", "/about", ""},
		{"/fr", "/", "fr"},
		{"/fr/about", "/about", "fr"},
		{"/FR/about", "/about", "fr"},
		{"/en-us/blog/post", "/blog/post", "en-US"},
		{"/french/about", "/french/about", ""},
	}

	for _, tt := range tests {
		got := StripPathLocale(tt.path, locales)
		if got.Path != tt.wantPath || got.Locale != tt.wantLocale {
			t.Errorf("StripPathLocale(%q) = (%q, %q), want (%q, %q)",
				tt.path, got.Path, got.Locale, tt.wantPath, tt.wantLocale)
		}
	}
}

func TestAddPathLocale(t *testing.T) {
	tests := []struct {
		path   string
		locale string
		want   string
	}{
		{"/about", "fr", "/fr/about"},
		{"/", "fr", "/fr"},
		{"/about", "en-US", "/about"},
		{"/about", "", "/about"},
	}

	for _, tt := range tests {
		if got := AddPathLocale(tt.path, tt.locale, "en-US"); got != tt.want {
			t.Errorf("AddPathLocale(%q, %q) = %q, want %q", tt.path, tt.locale, got, tt.want)
		}
	}
}

func TestDomainForHost(t *testing.T) {
	domains := []Domain{
		{Domain: "example.com", DefaultLocale: "en-US"},
		{Domain: "example.fr", DefaultLocale: "fr"},
	}

	if d := DomainForHost("example.fr", domains); d == nil || d.DefaultLocale != "fr" {
		t.Errorf("DomainForHost(example.fr) = %+v, want fr domain", d)
	}
	if d := DomainForHost("EXAMPLE.COM:8080", domains); d == nil || d.DefaultLocale != "en-US" {
		t.Errorf("DomainForHost(EXAMPLE.COM:8080) = %+v, want en-US domain", d)
	}
	if d := DomainForHost("other.org", domains); d != nil {
		t.Errorf("DomainForHost(other.org) = %+v, want nil", d)
	}
}

func TestNegotiateLocale(t *testing.T) {
	available := []string{"en-US", "fr", "nl-NL"}

	tests := []struct {
		header string
		want   string
	}{
		{"", ""},
		{"fr", "fr"},
		{"fr-CA", "fr"},
		{"en-US,en;q=0.9,fr;q=0.8", "en-US"},
		{"fr;q=0.9,en-US;q=0.8", "fr"},
		{"de", ""},
		{"nl;q=0.5,fr;q=0.9", "fr"},
	}

	for _, tt := range tests {
		if got := NegotiateLocale(tt.header, available); got != tt.want {
			t.Errorf("NegotiateLocale(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestNegotiateLocaleExactBeatsBase(t *testing.T) {
	// Both en and en-US appear at q=1; the exact tag must win.
	got := NegotiateLocale("en-us,en", []string{"en", "en-US"})
	if got != "en-US" {
		t.Errorf("NegotiateLocale() = %q, want %q", got, "en-US")
	}
}
