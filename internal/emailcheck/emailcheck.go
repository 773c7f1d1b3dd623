// Package emailcheck decides whether an address is worth contacting: syntax,
// disposable-domain policy, MX presence and, for business domains, an SMTP
// mailbox probe.
package emailcheck

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"leadready/internal/dnsprobe"
	"leadready/internal/domains"
	"leadready/internal/smtpprobe"
)

// Strategy selects how deep verification goes.
type Strategy string

const (
	// Basic stops at MX presence.
	Basic Strategy = "basic"
	// Thorough adds SMTP mailbox probing for non-free-mail domains.
	Thorough Strategy = "thorough"
)

// DefaultMaxMXHosts bounds how many exchangers are probed per address.
const DefaultMaxMXHosts = 3

var syntax = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)

type DomainProber interface {
	Probe(ctx context.Context, domain string) dnsprobe.Result
}

type MailboxProber interface {
	Probe(ctx context.Context, mxHost, address, local, domain string) smtpprobe.Result
}

type Result struct {
	IsValid     bool              `json:"is_valid"`
	Domain      string            `json:"domain"`
	IsFreeEmail bool              `json:"is_free_email"`
	Reason      string            `json:"reason,omitempty"`
	Mailbox     smtpprobe.Verdict `json:"-"`
	MXHost      string            `json:"mx_host,omitempty"`
	Credibility int               `json:"credibility"`
}

type Validator struct {
	DNS        DomainProber
	SMTP       MailboxProber
	Disposable domains.Set
	FreeMail   domains.Set
	Strategy   Strategy
	// Strict rejects addresses no exchanger confirmed. The default accepts
	// indeterminate probes so a guarded mail server cannot invalidate a real
	// business address.
	Strict     bool
	MaxMXHosts int
	Logger     *slog.Logger
}

func (v *Validator) logger() *slog.Logger {
	if v.Logger != nil {
		return v.Logger
	}
	return slog.Default()
}

// ValidSyntax reports whether address matches a conservative local@domain.tld shape.
func ValidSyntax(address string) bool {
	if !syntax.MatchString(address) {
		return false
	}
	local, domain, _ := strings.Cut(address, "@")
	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") || strings.Contains(address, "..") {
		return false
	}
	if strings.HasPrefix(domain, "-") || strings.HasPrefix(domain, ".") {
		return false
	}
	return true
}

// Validate never returns an error: every failure is a verdict with a reason.
func (v *Validator) Validate(ctx context.Context, address string) Result {
	address = strings.TrimSpace(address)
	if !ValidSyntax(address) {
		return Result{Reason: "invalid email syntax"}
	}
	local, _, _ := strings.Cut(address, "@")
	domain := domains.EmailDomain(address)
	res := Result{Domain: domain, IsFreeEmail: v.FreeMail.Has(domain)}

	if v.Disposable.Has(domain) {
		res.Reason = "disposable email domain"
		return res
	}

	dns := v.DNS.Probe(ctx, domain)
	res.Credibility = dns.Credibility
	if !dns.HasMX {
		res.Reason = "no MX records for " + domain
		if dns.Error != "" {
			res.Reason += " (" + dns.Error + ")"
		}
		return res
	}

	if res.IsFreeEmail {
		res.IsValid = true
		res.Reason = "free-mail provider with MX records"
		return res
	}
	if v.Strategy != Thorough || v.SMTP == nil {
		res.IsValid = true
		res.Reason = "MX records found"
		return res
	}
	return v.probeMailbox(ctx, res, dns, address, local)
}

func (v *Validator) probeMailbox(ctx context.Context, res Result, dns dnsprobe.Result, address, local string) Result {
	max := v.MaxMXHosts
	if max <= 0 {
		max = DefaultMaxMXHosts
	}
	var rejected, unsure []string
	for _, host := range dns.MXHosts(max) {
		pr := v.SMTP.Probe(ctx, host, address, local, res.Domain)
		switch pr.Verdict {
		case smtpprobe.Exists:
			res.IsValid = true
			res.Mailbox = smtpprobe.Exists
			res.MXHost = host
			res.Reason = "mailbox confirmed by " + host
			return res
		case smtpprobe.NotExists:
			rejected = append(rejected, fmt.Sprintf("%s (%d)", host, pr.Code))
		default:
			unsure = append(unsure, host)
			if !v.Strict {
				res.IsValid = true
				res.Mailbox = smtpprobe.Indeterminate
				res.MXHost = host
				res.Reason = "mailbox could not be verified by " + host + "; accepted"
				return res
			}
		}
		if ctx.Err() != nil {
			break
		}
	}
	v.logger().Debug("mailbox not confirmed", "domain", res.Domain, "rejected", rejected, "unsure", unsure)
	switch {
	case len(rejected) > 0 && len(unsure) == 0:
		res.Mailbox = smtpprobe.NotExists
		res.Reason = "mailbox rejected by " + strings.Join(rejected, ", ")
	case len(rejected) == 0 && len(unsure) == 0:
		// thorough strategy but nothing to probe; MX presence already checked
		res.IsValid = true
		res.Reason = "MX records found"
	default:
		res.Mailbox = smtpprobe.Indeterminate
		res.Reason = "mailbox not confirmed by " + strings.Join(append(rejected, unsure...), ", ")
	}
	return res
}
