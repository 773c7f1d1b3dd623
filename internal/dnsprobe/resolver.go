// Package dnsprobe resolves MX and A records for a domain and scores how
// credible the domain looks as a business mail domain.
package dnsprobe

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"leadready/internal/cache"
	"leadready/internal/domains"
	"leadready/internal/retry"
)

// DefaultTTL is how long a successful probe is reused.
const DefaultTTL = 24 * time.Hour

// Result is the cached outcome of probing one domain.
type Result struct {
	Domain      string    `json:"domain"`
	HasMX       bool      `json:"has_mx"`
	HasA        bool      `json:"has_a"`
	MX          []MX      `json:"mx,omitempty"`
	A           []string  `json:"a,omitempty"`
	Credibility int       `json:"credibility"`
	IsFreeMail  bool      `json:"is_free_mail"`
	Error       string    `json:"error,omitempty"`
	CheckedAt   time.Time `json:"checked_at"`
}

// MXHosts returns up to n exchanger hosts in preference order; n <= 0 means all.
func (r Result) MXHosts(n int) []string {
	var out []string
	for _, mx := range r.MX {
		if n > 0 && len(out) == n {
			break
		}
		out = append(out, mx.Host)
	}
	return out
}

// hosted mail platforms whose exchangers sit outside the customer's domain
var hostedMailSuffixes = []string{
	"google.com",
	"googlemail.com",
	"outlook.com",
	"pphosted.com",
	"mimecast.com",
	"zoho.com",
	"zoho.eu",
	"messagingengine.com",
	"secureserver.net",
	"yahoodns.net",
	"icloud.com",
	"protonmail.ch",
}

type Resolver struct {
	Lookup   Lookuper
	Cache    cache.Store[Result]
	Retry    retry.Executor
	Policy   retry.Policy
	FreeMail domains.Set
	Now      func() time.Time
	Logger   *slog.Logger
}

func New(lookup Lookuper, store cache.Store[Result], freeMail domains.Set) *Resolver {
	if store == nil {
		store = cache.NewTTL[Result](DefaultTTL)
	}
	return &Resolver{
		Lookup:   lookup,
		Cache:    store,
		Policy:   retry.PolicyFor(retry.Network),
		FreeMail: freeMail,
		Now:      time.Now,
	}
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r *Resolver) IsFreeMail(domain string) bool {
	return r.FreeMail.Has(domain)
}

// Probe returns the MX/A picture of domain. Lookup failures are reported in
// Result.Error, never returned, and such results are not cached.
func (r *Resolver) Probe(ctx context.Context, domain string) Result {
	domain = domains.Clean(domain)
	if r.Cache != nil {
		if res, ok := r.Cache.Get(ctx, domain); ok {
			return res
		}
	}
	res := Result{Domain: domain, IsFreeMail: r.IsFreeMail(domain), CheckedAt: r.now().UTC()}
	if domain == "" {
		res.Error = "empty domain"
		return res
	}

	mx, mxErr := retry.DoValue(ctx, r.Retry, r.Policy, func(ctx context.Context) ([]MX, error) {
		return r.Lookup.LookupMX(ctx, domain)
	})
	a, aErr := retry.DoValue(ctx, r.Retry, r.Policy, func(ctx context.Context) ([]string, error) {
		return r.Lookup.LookupA(ctx, domain)
	})
	res.MX, res.A = mx, a
	res.HasMX, res.HasA = len(mx) > 0, len(a) > 0

	var errs []string
	if mxErr != nil {
		errs = append(errs, "mx: "+mxErr.Error())
	}
	if aErr != nil {
		errs = append(errs, "a: "+aErr.Error())
	}
	res.Error = strings.Join(errs, "; ")
	res.Credibility = Credibility(res)

	if res.Error != "" {
		r.logger().Warn("dns probe incomplete", "domain", domain, "err", res.Error)
		return res
	}
	if r.Cache != nil {
		r.Cache.Set(ctx, domain, res)
	}
	return res
}

// Credibility scores a probe result from 0 to 10.
func Credibility(res Result) int {
	score := 0
	if res.HasMX {
		score += 4
	}
	if res.HasA {
		score += 2
	}
	if len(res.MX) > 1 {
		score++
	}
	if res.HasMX && mxLooksManaged(res.Domain, res.MX) {
		score++
	}
	if domains.ICANN(res.Domain) {
		score++
	}
	if !res.IsFreeMail && (res.HasMX || res.HasA) {
		score++
	}
	if score > 10 {
		score = 10
	}
	return score
}

func mxLooksManaged(domain string, mx []MX) bool {
	own := domains.Registrable(domain)
	for _, m := range mx {
		reg := domains.Registrable(m.Host)
		if reg == own {
			return true
		}
		for _, suffix := range hostedMailSuffixes {
			if reg == suffix || strings.HasSuffix(m.Host, "."+suffix) {
				return true
			}
		}
	}
	return false
}
