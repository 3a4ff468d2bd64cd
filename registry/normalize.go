package registry

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var httpScheme = regexp.MustCompile(`(?i)^https?://`)

// NormalizeSiteURL prepares a site URL for storage. A missing scheme
// defaults to https://, scheme and host are lowercased, and the fragment
// is dropped. Path and query are kept exactly as typed: sites are launch
// targets, not dedup keys, so the address stays what the user wrote.
func NormalizeSiteURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty url", ErrInvalidInput)
	}
	if strings.ContainsAny(raw, " \t\n") {
		return "", fmt.Errorf("%w: malformed url", ErrInvalidInput)
	}

	// Bare hosts ("example.com", "localhost:8080/x") parse as opaque or
	// scheme-only URLs, so the default is applied before parsing.
	if !httpScheme.MatchString(raw) {
		raw = "https://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidInput)
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""

	return parsed.String(), nil
}
