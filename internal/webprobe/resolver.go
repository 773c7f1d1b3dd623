package webprobe

import (
	"context"
	"log/slog"
	"strings"

	"leadready/internal/domains"
)

// Source records which branch produced a resolved website.
type Source string

const (
	SourceDirect         Source = "direct"
	SourceEmailDomain    Source = "email_domain"
	SourceBusinessSearch Source = "business_search"
	SourceFailed         Source = "failed"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
	ConfidenceNone   Confidence = "none"
)

type Input struct {
	BusinessName string
	Email        string
	Website      string
	City         string
}

type Resolution struct {
	Website    string     `json:"website,omitempty"`
	Source     Source     `json:"source"`
	Confidence Confidence `json:"confidence"`
	Message    string     `json:"message,omitempty"`
}

// Checker is the reachability probe the resolver gates every candidate on.
type Checker interface {
	Probe(ctx context.Context, raw string) Result
}

// Searcher turns a business name into a candidate URL.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

type Resolver struct {
	Prober   Checker
	Searcher Searcher
	FreeMail domains.Set
	Logger   *slog.Logger
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Resolve walks direct URL, email domain and business search in that order.
// A failed resolution is a normal outcome, not an error.
func (r *Resolver) Resolve(ctx context.Context, in Input) Resolution {
	var notes []string

	if strings.TrimSpace(in.Website) != "" {
		res := r.Prober.Probe(ctx, in.Website)
		if res.Reachable {
			return Resolution{Website: res.URL, Source: SourceDirect, Confidence: ConfidenceHigh}
		}
		notes = append(notes, "supplied website unreachable")
	}

	if domain := domains.EmailDomain(strings.TrimSpace(in.Email)); domain != "" {
		reg := domains.Registrable(domain)
		switch {
		case r.FreeMail.Has(domain) || r.FreeMail.Has(reg):
			notes = append(notes, "email is on a free-mail provider")
		default:
			// The full mail domain first, then its registrable parent.
			hosts := []string{domain}
			if reg != "" && reg != domain {
				hosts = append(hosts, reg)
			}
			for _, h := range hosts {
				if res := r.Prober.Probe(ctx, "https://"+h); res.Reachable {
					return Resolution{Website: res.URL, Source: SourceEmailDomain, Confidence: ConfidenceHigh}
				}
			}
			notes = append(notes, "email domain "+domain+" has no reachable website")
		}
	}

	if name := strings.TrimSpace(in.BusinessName); name != "" && r.Searcher != nil {
		query := name
		if city := strings.TrimSpace(in.City); city != "" {
			query += " " + city
		}
		candidate, err := r.Searcher.Search(ctx, query)
		switch {
		case err != nil:
			r.logger().Info("business search failed", "query", query, "err", err)
			notes = append(notes, "business search failed")
		case candidate == "":
			notes = append(notes, "business search found nothing")
		default:
			res := r.Prober.Probe(ctx, candidate)
			if res.Reachable {
				conf := ConfidenceLow
				if nameMatchesHost(name, Host(res.URL)) {
					conf = ConfidenceMedium
				}
				return Resolution{Website: res.URL, Source: SourceBusinessSearch, Confidence: conf}
			}
			notes = append(notes, "search result "+candidate+" unreachable")
		}
	}

	if len(notes) == 0 {
		notes = append(notes, "no website, email or business name to work from")
	}
	return Resolution{Source: SourceFailed, Confidence: ConfidenceNone, Message: strings.Join(notes, "; ")}
}

// nameMatchesHost reports whether a significant word of the business name
// appears in the registrable part of host.
func nameMatchesHost(name, host string) bool {
	reg := domains.Registrable(host)
	if reg == "" {
		return false
	}
	label, _, _ := strings.Cut(reg, ".")
	label = strings.ReplaceAll(label, "-", "")
	for _, w := range strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		if len(w) >= 3 && strings.Contains(label, w) {
			return true
		}
	}
	return false
}
