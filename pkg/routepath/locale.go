package routepath

import (
	"sort"
	"strconv"
	"strings"
)

// Domain describes a locale domain mapping: requests arriving on Domain
// default to DefaultLocale and may serve any of Locales.
type Domain struct {
	Domain        string   `json:"domain"`
	DefaultLocale string   `json:"defaultLocale"`
	Locales       []string `json:"locales,omitempty"`
	HTTP          bool     `json:"http,omitempty"`
}

// PathLocale is the result of stripping a locale prefix from a path.
type PathLocale struct {
	// Path is the remaining path with the locale prefix removed.
	Path string

	// Locale is the detected locale, or "" when none was present.
	Locale string
}

// StripPathLocale detects and removes a leading locale segment
// (/en/about → locale "en", path "/about"). Matching is case-insensitive but
// the configured casing is returned.
func StripPathLocale(path string, locales []string) PathLocale {
	if path == "" || path == "/" {
		return PathLocale{Path: path}
	}
	seg := strings.TrimPrefix(path, "/")
	if i := strings.Index(seg, "/"); i >= 0 {
		seg = seg[:i]
	}
	for _, locale := range locales {
		if strings.EqualFold(seg, locale) {
			rest := path[1+len(seg):]
			if rest == "" {
				rest = "/"
			}
			return PathLocale{Path: rest, Locale: locale}
		}
	}
	return PathLocale{Path: path}
}

// AddPathLocale prefixes path with the locale segment. The default locale is
// served at the bare path, so it is never prefixed.
func AddPathLocale(path, locale, defaultLocale string) string {
	if locale == "" || strings.EqualFold(locale, defaultLocale) {
		return path
	}
	if path == "/" {
		return "/" + locale
	}
	return "/" + locale + path
}

// DomainForHost returns the locale domain matching the request host, ignoring
// any port, or nil.
func DomainForHost(host string, domains []Domain) *Domain {
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	for i := range domains {
		if strings.EqualFold(domains[i].Domain, host) {
			return &domains[i]
		}
	}
	return nil
}

// maxAcceptLanguageLength bounds header parsing against oversized input.
const maxAcceptLanguageLength = 4096

type languageTag struct {
	tag     string
	quality float64
}

// NegotiateLocale parses an Accept-Language header and returns the best
// match from the available locales, honoring quality values
// ("en-US,en;q=0.9,pl;q=0.8"). Tags are tried by quality, then header
// order; an exact tag match beats a base-language match. Returns "" when
// nothing matches.
func NegotiateLocale(header string, available []string) string {
	if header == "" || len(available) == 0 {
		return ""
	}

	tags := parseLanguageTags(header)
	sort.SliceStable(tags, func(i, j int) bool { return tags[i].quality > tags[j].quality })

	var partial string
	for _, tag := range tags {
		if tag.quality == 0 {
			continue
		}
		for _, avail := range available {
			norm := strings.ToLower(avail)
			if tag.tag == norm {
				return avail
			}
			if partial == "" {
				base, _, _ := strings.Cut(norm, "-")
				if tag.tag == base || strings.HasPrefix(tag.tag, base+"-") {
					partial = avail
				}
			}
		}
	}
	return partial
}

// parseLanguageTags splits an Accept-Language header into lowercase tags with
// quality values.
func parseLanguageTags(header string) []languageTag {
	if len(header) > maxAcceptLanguageLength {
		header = header[:maxAcceptLanguageLength]
	}

	var tags []languageTag
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		quality := 1.0
		lang, qPart, hasQ := strings.Cut(part, ";")
		lang = strings.ToLower(strings.TrimSpace(lang))
		if lang == "" {
			continue
		}
		if hasQ {
			qPart = strings.TrimSpace(qPart)
			if strings.HasPrefix(qPart, "q=") {
				if q, err := strconv.ParseFloat(qPart[2:], 64); err == nil && q >= 0 && q <= 1 {
					quality = q
				}
			}
		}
		tags = append(tags, languageTag{tag: lang, quality: quality})
	}
	return tags
}
