// Package urlutil provides URL canonicalization and classification for the
// crawl engine. Canonical URLs are the sole keys used in frontiers, graphs,
// and stored records, so the same URL expressed differently must always
// produce the same string.
package urlutil

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// resourceSuffixes lists path endings that identify non-page resources:
// documents, archives, images, media, stylesheets, scripts, fonts, feeds,
// and source maps. URLs ending in one of these are never crawled as pages.
var resourceSuffixes = []string{
	// Documents
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
	// Archives
	".zip", ".rar", ".tar", ".gz",
	// Images
	".jpg", ".jpeg", ".png", ".gif", ".svg", ".ico", ".webp", ".bmp", ".tiff",
	// Media
	".mp3", ".mp4", ".avi", ".mov", ".wmv", ".flv", ".webm", ".wav",
	// Web resources
	".css", ".js", ".xml", ".json", ".txt", ".csv",
	// Fonts
	".woff", ".woff2", ".ttf", ".eot", ".otf",
	// Feeds and embeds
	".atom", ".rss", ".oembed", ".embed",
	// Other
	".map", ".min", ".bundle",
}

// resourcePaths lists path fragments that identify served-asset locations.
// A URL whose path contains any of these is treated as a resource.
var resourcePaths = []string{
	"/cdn/", "/assets/", "/static/", "/images/", "/img/", "/css/", "/js/",
	"/fonts/", "/media/", "/uploads/", "/files/", "/downloads/", "/public/",
	"/vendor/", "/node_modules/", "/dist/", "/build/", "/compiled/",
}

var (
	errEmptyInput          = errors.New("canonicalize url: empty input")
	errMissingSchemeOrHost = errors.New("canonicalize url: missing scheme or host")
)

// Canonicalize drops the fragment and lowercases the host, preserving
// scheme, path, and query exactly as parsed. Unlike aggressive normalizers
// it never rewrites schemes, sorts queries, or strips parameters: stored
// keys must round-trip through Canonicalize unchanged.
func Canonicalize(rawURL string) (string, error) {
	if rawURL == "" {
		return "", errEmptyInput
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("canonicalize url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", errMissingSchemeOrHost
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""
	parsed.RawFragment = ""

	return parsed.String(), nil
}

// Resolve resolves ref against base and canonicalizes the result. Used for
// href attributes, which are usually relative.
func Resolve(baseURL, ref string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("resolve url: parse base: %w", err)
	}
	target, err := base.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("resolve url: parse ref: %w", err)
	}
	return Canonicalize(target.String())
}

// Host returns the canonical host (lowercased, port retained) of a URL.
func Host(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("extract host: %w", err)
	}
	if parsed.Host == "" {
		return "", errMissingSchemeOrHost
	}
	return strings.ToLower(parsed.Host), nil
}

// SameHost reports whether two URLs share a canonical host, byte for byte.
// Malformed input never matches.
func SameHost(urlA, urlB string) bool {
	hostA, errA := Host(urlA)
	hostB, errB := Host(urlB)
	if errA != nil || errB != nil {
		return false
	}
	return hostA == hostB
}

// IsResourceURL reports whether a URL points at a served asset rather than
// a page, by suffix or by path location. Malformed URLs are not resources.
func IsResourceURL(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	pathLower := strings.ToLower(parsed.Path)

	for _, suffix := range resourceSuffixes {
		if strings.HasSuffix(pathLower, suffix) {
			return true
		}
	}
	for _, fragment := range resourcePaths {
		if strings.Contains(pathLower, fragment) {
			return true
		}
	}
	return false
}

// IsCrawlablePage reports whether a URL is a page on the start URL's host:
// well-formed, same host, and not a resource. Malformed URLs are rejected
// silently.
func IsCrawlablePage(rawURL, startURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return false
	}
	if !SameHost(rawURL, startURL) {
		return false
	}
	return !IsResourceURL(rawURL)
}

// StructuralDepth computes a URL's depth relative to the start URL from the
// count of non-empty path segments, floored at zero. This is structural
// depth, not click distance: /a/b/c is two levels below a start URL of /a
// no matter how it was discovered.
func StructuralDepth(startURL, rawURL string) int {
	depth := segmentCount(rawURL) - segmentCount(startURL)
	if depth < 0 {
		return 0
	}
	return depth
}

func segmentCount(rawURL string) int {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	trimmed := strings.Trim(parsed.Path, "/")
	if trimmed == "" {
		return 0
	}
	return len(strings.Split(trimmed, "/"))
}
