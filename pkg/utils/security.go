package utils

import (
	"net/url"
	"strings"
)

// IsAllowedOrigin reports whether origin matches any of the patterns.
func IsAllowedOrigin(origin string, patterns []string) bool {
	if origin == "" {
		return false
	}

	clean := cleanOrigin(origin)
	for _, pattern := range patterns {
		if MatchOrigin(clean, pattern) {
			return true
		}
	}
	return false
}

// cleanOrigin reduces a URL (typically a Referer) to scheme://host.
func cleanOrigin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.Scheme != "" && u.Host != "" {
		return u.Scheme + "://" + u.Host
	}
	return raw
}

// MatchOrigin matches an origin against a pattern.
//
//	"*"                      any origin
//	"https://app.example"    exact
//	"https://**.example.com" example.com and every subdomain
//	"https://*.example.com"  subdomains only
//	"chrome-extension://*"   any host under the scheme
func MatchOrigin(origin, pattern string) bool {
	if pattern == "*" || origin == pattern {
		return true
	}

	if scheme, ok := strings.CutSuffix(pattern, "://*"); ok {
		rest, found := strings.CutPrefix(origin, scheme+"://")
		return found && rest != "" && !strings.Contains(rest, "/")
	}

	if strings.Contains(pattern, "**.") {
		base := strings.Replace(pattern, "**.", "", 1)
		if origin == base {
			return true
		}
		if strings.HasSuffix(origin, "."+removeScheme(base)) {
			return true
		}
	}

	if strings.Contains(pattern, "*.") {
		parts := strings.Split(pattern, "*")
		if len(parts) == 2 {
			prefix, suffix := parts[0], parts[1]
			if strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) &&
				len(origin) > len(prefix)+len(suffix) {
				middle := origin[len(prefix) : len(origin)-len(suffix)]
				return !strings.Contains(middle, "/")
			}
		}
	}

	return false
}

func removeScheme(s string) string {
	if i := strings.Index(s, "://"); i >= 0 {
		return s[i+3:]
	}
	return s
}
