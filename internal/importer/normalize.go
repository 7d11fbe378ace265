// Package importer converts uploaded bookmark exports into site records,
// detects duplicates and applies them in batches.
package importer

import "strings"

// NormalizeURL reduces a URL to its comparison form: scheme, leading "www."
// and trailing slash stripped, host and path lowercased. Query strings and
// fragments are kept so distinct pages stay distinct.
func NormalizeURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if idx := strings.Index(s, "://"); idx >= 0 {
		s = s[idx+3:]
	}
	s = strings.ToLower(s)
	s = strings.TrimPrefix(s, "www.")
	s = strings.TrimSuffix(s, "/")
	return s
}

// ExtractDomain returns the bare host of a URL, without "www." or port.
func ExtractDomain(raw string) string {
	s := NormalizeURL(raw)
	if s == "" {
		return ""
	}
	if idx := strings.IndexAny(s, "/?#"); idx >= 0 {
		s = s[:idx]
	}
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	return s
}

// NormalizeName folds a category/tag name for near-duplicate comparison:
// lowercase, alphanumerics only ("Web Dev" and "web-dev" collide).
func NormalizeName(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(raw) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
