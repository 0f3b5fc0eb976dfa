package routepath

import "strings"

// RemoveTrailingSlash strips a trailing slash from every path except root.
func RemoveTrailingSlash(path string) string {
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		return strings.TrimSuffix(path, "/")
	}
	return path
}

// AddTrailingSlash appends a trailing slash unless one is already present.
// Root stays "/".
func AddTrailingSlash(path string) string {
	if path == "" {
		return "/"
	}
	if strings.HasSuffix(path, "/") {
		return path
	}
	return path + "/"
}

// HasBasePath reports whether path lives under basePath. An empty basePath
// matches everything.
func HasBasePath(path, basePath string) bool {
	if basePath == "" || basePath == "/" {
		return true
	}
	return path == basePath || strings.HasPrefix(path, basePath+"/")
}

// StripBasePath removes basePath from the front of path. The boolean reports
// whether the prefix was present; callers 404 requests outside the base path.
func StripBasePath(path, basePath string) (string, bool) {
	if basePath == "" || basePath == "/" {
		return path, true
	}
	if !HasBasePath(path, basePath) {
		return path, false
	}
	if path == basePath {
		return "/", true
	}
	return path[len(basePath):], true
}

// AddBasePath prefixes path with basePath for outgoing locations.
func AddBasePath(path, basePath string) string {
	if basePath == "" || basePath == "/" {
		return path
	}
	if path == "/" {
		return basePath
	}
	return basePath + path
}

// EscapePathDelimiters escapes characters that would be ambiguous inside a
// single segment of a derived key or route: the path separator itself and,
// when escapeEncoded is set, the percent sign so that already-encoded input
// cannot collide with encoding applied here.
func EscapePathDelimiters(segment string, escapeEncoded bool) string {
	if escapeEncoded {
		segment = strings.ReplaceAll(segment, "%", "%25")
	}
	segment = strings.ReplaceAll(segment, "/", "%2F")
	return segment
}
