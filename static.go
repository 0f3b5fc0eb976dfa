package strata

import (
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/strata-dev/strata/pkg/routepath"
)

// =============================================================================
// Static File Serving
// =============================================================================

// staticRelPath returns a sanitized relative path for a static file request.
// It rejects traversal and absolute-path tricks so static serving cannot
// escape the configured directory.
func staticRelPath(urlPath, prefix string) (string, bool) {
	if !strings.HasPrefix(urlPath, prefix) {
		return "", false
	}
	rel := strings.TrimPrefix(urlPath, prefix)
	if rel == "" {
		return "", false
	}

	// Reject NUL early (can appear via %00).
	if strings.IndexByte(rel, 0) != -1 {
		return "", false
	}

	// Reject platform-dependent separators.
	if strings.Contains(rel, "\\") {
		return "", false
	}

	// After prefix stripping, a leading "/" indicates an absolute-path
	// attempt (e.g. "/_next/static//etc/passwd" => "/etc/passwd").
	if strings.HasPrefix(rel, "/") {
		return "", false
	}

	// Reject dot-segments before cleaning to avoid "cleaning away" traversal
	// attempts and changing the meaning of the request path.
	for _, seg := range strings.Split(rel, "/") {
		if seg == "." || seg == ".." {
			return "", false
		}
	}

	clean := path.Clean(rel)
	if clean == "." || clean == "" || clean == ".." || strings.HasPrefix(clean, "../") || strings.HasPrefix(clean, "/") {
		return "", false
	}

	// Decode percent-escapes so files with non-ASCII names resolve on disk.
	// Decoded segments get the same traversal checks: an encoded ".." or "/"
	// must not slip past the pre-decode rejection above.
	segs, err := routepath.DecodePathSegments(clean)
	if err != nil {
		return "", false
	}
	for _, seg := range segs {
		if seg == "." || seg == ".." || strings.ContainsAny(seg, "/\\\x00") {
			return "", false
		}
	}
	clean = strings.Join(segs, "/")

	// Reject OS-absolute/volume paths after slash conversion.
	osPath := filepath.FromSlash(clean)
	if filepath.IsAbs(osPath) || filepath.VolumeName(osPath) != "" {
		return "", false
	}

	return clean, true
}

// hasPublicFile checks whether a request path maps to an existing file in
// the public directory.
func (a *App) hasPublicFile(urlPath string) bool {
	rel, ok := staticRelPath(urlPath, "/")
	if !ok {
		return false
	}

	f, err := a.publicFS.Open(rel)
	if err != nil {
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// servePublicFile handles public directory requests.
func (a *App) servePublicFile(w http.ResponseWriter, r *http.Request, urlPath string) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	rel, ok := staticRelPath(urlPath, "/")
	if !ok {
		http.NotFound(w, r)
		return
	}

	f, err := a.publicFS.Open(rel)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	for key, value := range a.config.Static.Headers {
		w.Header().Set(key, value)
	}
	http.ServeContent(w, r, rel, info.ModTime(), f)
}

// serveBuildAsset handles /_next/static requests from the build output.
// Build assets are content-addressed, so they are immutable.
func (a *App) serveBuildAsset(w http.ResponseWriter, r *http.Request, urlPath string) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	rel, ok := staticRelPath(urlPath, "/_next/static/")
	if !ok {
		http.NotFound(w, r)
		return
	}

	f, err := a.assetFS.Open(rel)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	if a.config.Dev {
		w.Header().Set("Cache-Control", "no-store, must-revalidate")
	} else {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	}
	http.ServeContent(w, r, rel, info.ModTime(), f)
}
