package validators

import (
	"net/url"
	"strings"

	"github.com/IGLOU-EU/go-wildcard/v2"
)

// AllowedRedirect reports whether the given URL may be used as a
// checkout return or cancel target. The URL must be absolute http(s)
// and its host must match one of the configured patterns. Patterns may
// contain wildcards, e.g. "*.example.com".
func AllowedRedirect(rawURL string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	for _, pattern := range patterns {
		if wildcard.Match(strings.ToLower(pattern), host) {
			return true
		}
	}
	return false
}
