package routepath

import "strings"

// dataPrefix is the URL namespace for page-data requests issued by the
// client during soft navigations.
const dataPrefix = "/_next/data/"

// DataPath builds the data-request URL for a page under the given deployment
// build ID: DataPath("abc", "/en/about") → "/_next/data/abc/en/about.json".
// The root page maps to "/index.json".
func DataPath(buildID, page string) string {
	if page == "/" {
		page = "/index"
	}
	return dataPrefix + buildID + page + ".json"
}

// StripDataPath parses a data-request URL. It validates the embedded build ID
// against the running deployment and returns the underlying page path. ok is
// false when the URL is not a data request at all or carries a foreign build
// ID; foreign build IDs must surface as a 404, never as a render.
func StripDataPath(path, buildID string) (page string, ok bool) {
	if !strings.HasPrefix(path, dataPrefix) {
		return "", false
	}
	rest := path[len(dataPrefix):]

	id, rest, found := strings.Cut(rest, "/")
	if !found || id != buildID {
		return "", false
	}
	if !strings.HasSuffix(rest, ".json") {
		return "", false
	}
	page = "/" + strings.TrimSuffix(rest, ".json")
	if page == "/index" {
		page = "/"
	}
	if page == "" {
		page = "/"
	}
	return page, true
}

// IsDataPath reports whether the path is under the data-request namespace,
// regardless of build ID validity.
func IsDataPath(path string) bool {
	return strings.HasPrefix(path, dataPrefix)
}
