package strata

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestConfigNormalize(t *testing.T) {
	var cfg Config
	cfg.normalize()

	if cfg.DistDir != ".next" {
		t.Errorf("DistDir = %q, want .next", cfg.DistDir)
	}
	if cfg.Cache.MaxEntries != 1024 {
		t.Errorf("Cache.MaxEntries = %d, want 1024", cfg.Cache.MaxEntries)
	}
	if cfg.Proxy.Timeout != 30*time.Second {
		t.Errorf("Proxy.Timeout = %v, want 30s", cfg.Proxy.Timeout)
	}
	if cfg.Logger == nil {
		t.Error("Logger not defaulted")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "zero value", cfg: Config{}},
		{
			name: "base path ok",
			cfg:  Config{BasePath: "/docs"},
		},
		{
			name:    "base path missing slash",
			cfg:     Config{BasePath: "docs"},
			wantErr: "must start with a slash",
		},
		{
			name:    "base path trailing slash",
			cfg:     Config{BasePath: "/docs/"},
			wantErr: "must not end with a slash",
		},
		{
			name: "i18n ok",
			cfg:  Config{I18n: I18nConfig{Locales: []string{"en", "fr"}, DefaultLocale: "en"}},
		},
		{
			name:    "i18n missing default",
			cfg:     Config{I18n: I18nConfig{Locales: []string{"en"}}},
			wantErr: "default locale is required",
		},
		{
			name:    "i18n default not listed",
			cfg:     Config{I18n: I18nConfig{Locales: []string{"en", "fr"}, DefaultLocale: "de"}},
			wantErr: `"de" is not in the locale list`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestHTTPError(t *testing.T) {
	cause := errors.New("upstream refused")
	err := Errorf(http.StatusBadGateway, "fetch props: %w", cause)

	if got := err.Error(); !strings.Contains(got, "502") || !strings.Contains(got, "fetch props") {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, cause) {
		t.Error("HTTPError does not unwrap to its cause")
	}

	var herr *HTTPError
	if !errors.As(error(err), &herr) || herr.Status != http.StatusBadGateway {
		t.Errorf("errors.As failed, got %+v", herr)
	}
}
