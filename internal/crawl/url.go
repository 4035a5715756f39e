package crawl

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL standardizes a URL so trivially-equivalent forms collapse to
// one dedup key. It lowercases the scheme and host, removes default ports and
// fragments, trims trailing slashes, and sorts query parameters.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("parse url: missing scheme or host in %q", rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""

	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	q := u.Query()
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Origin returns the scheme://host[:port] of a URL, the unit at which
// robots.txt and politeness delays apply.
func Origin(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("parse url: missing scheme or host in %q", rawURL)
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), nil
}

// Host returns the lowercased host of a URL, empty on parse failure.
func Host(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}
