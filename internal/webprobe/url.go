// Package webprobe checks whether business websites answer over HTTP and
// resolves a usable website for contacts that lack one.
package webprobe

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

var ErrEmptyURL = errors.New("empty url")

// A scheme only counts at the start; URLs embedded in a query do not.
var schemePrefix = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*://`)

// Normalize trims raw, defaults the scheme to https, lowercases scheme and
// host and drops a trailing slash.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmptyURL
	}
	if !schemePrefix.MatchString(raw) {
		raw = "https://" + strings.TrimPrefix(raw, "//")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", errors.New("url has no host: " + raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errors.New("unsupported scheme: " + u.Scheme)
	}
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String(), nil
}

// Canonical reduces a website to the form used for duplicate comparison:
// lowercase, no scheme, no leading www., no trailing slash. It is idempotent.
func Canonical(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if loc := schemePrefix.FindStringIndex(s); loc != nil {
		s = s[loc[1]:]
	}
	s = strings.TrimPrefix(s, "//")
	for strings.HasPrefix(s, "www.") {
		s = strings.TrimPrefix(s, "www.")
	}
	return strings.TrimRight(s, "/")
}

// Host returns the lowercased host of a normalizable URL, or "".
func Host(raw string) string {
	n, err := Normalize(raw)
	if err != nil {
		return ""
	}
	u, err := url.Parse(n)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
