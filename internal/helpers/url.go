package helpers

import (
	"net/url"
	"strings"
)

// DomainOf extracts the host from a URL, tolerating bare domains.
func DomainOf(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err == nil && u.Host != "" {
		return strings.TrimPrefix(u.Host, "www.")
	}
	if i := strings.Index(raw, "/"); i > 0 {
		return strings.TrimPrefix(raw[:i], "www.")
	}
	return strings.TrimPrefix(raw, "www.")
}

// UniqueURLs returns the input URLs with duplicates and blanks removed,
// preserving first-seen order.
func UniqueURLs(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}
