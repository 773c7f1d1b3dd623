// Package domains holds injectable domain lists and host helpers.
package domains

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Set is a case-insensitive set of domain names.
type Set map[string]struct{}

func NewSet(items ...string) Set {
	s := make(Set, len(items))
	for _, it := range items {
		if d := Clean(it); d != "" {
			s[d] = struct{}{}
		}
	}
	return s
}

func (s Set) Has(domain string) bool {
	if s == nil {
		return false
	}
	_, ok := s[Clean(domain)]
	return ok
}

// Add extends the set in place.
func (s Set) Add(items ...string) {
	for _, it := range items {
		if d := Clean(it); d != "" {
			s[d] = struct{}{}
		}
	}
}

// Clean lowercases and strips surrounding space and a trailing root dot.
func Clean(domain string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
}

// Registrable returns the eTLD+1 of host, or the cleaned host when it has none.
func Registrable(host string) string {
	host = Clean(host)
	if host == "" {
		return ""
	}
	reg, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return reg
}

// ICANN reports whether host ends in an ICANN-managed public suffix.
func ICANN(host string) bool {
	host = Clean(host)
	if host == "" || !strings.Contains(host, ".") {
		return false
	}
	_, icann := publicsuffix.PublicSuffix(host)
	return icann
}

// EmailDomain returns the lowercased part after the last '@', or "".
func EmailDomain(address string) string {
	at := strings.LastIndex(address, "@")
	if at < 0 || at == len(address)-1 {
		return ""
	}
	return Clean(address[at+1:])
}
