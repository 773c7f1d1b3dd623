// Package dedupe flags contacts that repeat a client's earlier contacts.
package dedupe

import (
	"fmt"
	"strings"
	"unicode"

	"leadready/internal/domain"
	"leadready/internal/webprobe"
)

type Status string

const (
	Unique    Status = "unique"
	Potential Status = "potential_duplicate"
	Confirmed Status = "confirmed_duplicate"
)

// minPhoneDigits keeps extensions and junk like "0" from matching.
const minPhoneDigits = 7

type Verdict struct {
	Status  Status `json:"status"`
	MatchID string `json:"match_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func NormalizeWebsite(s string) string {
	return webprobe.Canonical(s)
}

// NormalizeName lowercases, drops punctuation and collapses whitespace.
func NormalizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// NormalizePhone keeps digits only; numbers too short to identify anyone
// normalize to "".
func NormalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() < minPhoneDigits {
		return ""
	}
	return b.String()
}

// Detect compares c against existing. A website or email match is confirmed
// and wins over any name or phone match; otherwise the first potential match
// in input order is reported. Entries with c's ID are ignored.
func Detect(c domain.Contact, existing []domain.Contact) Verdict {
	site := NormalizeWebsite(c.Website)
	email := NormalizeEmail(c.Email)
	name := NormalizeName(c.BusinessName)
	phone := NormalizePhone(c.Phone)

	var potential *Verdict
	for _, e := range existing {
		if c.ID != "" && e.ID == c.ID {
			continue
		}
		if site != "" && site == NormalizeWebsite(e.Website) {
			return Verdict{Status: Confirmed, MatchID: e.ID, Reason: fmt.Sprintf("same website %s as contact %s", site, e.ID)}
		}
		if email != "" && email == NormalizeEmail(e.Email) {
			return Verdict{Status: Confirmed, MatchID: e.ID, Reason: fmt.Sprintf("same email %s as contact %s", email, e.ID)}
		}
		if potential != nil {
			continue
		}
		switch {
		case name != "" && name == NormalizeName(e.BusinessName):
			potential = &Verdict{Status: Potential, MatchID: e.ID, Reason: fmt.Sprintf("same business name as contact %s with different contact details", e.ID)}
		case phone != "" && phone == NormalizePhone(e.Phone):
			potential = &Verdict{Status: Potential, MatchID: e.ID, Reason: fmt.Sprintf("same phone number as contact %s with different contact details", e.ID)}
		}
	}
	if potential != nil {
		return *potential
	}
	return Verdict{Status: Unique}
}
