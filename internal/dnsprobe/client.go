package dnsprobe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// MX is one mail exchanger of a domain.
type MX struct {
	Host string `json:"host"`
	Pref uint16 `json:"pref"`
}

// Lookuper answers the two record types the resolver needs. An existing
// domain without records yields an empty slice and a nil error.
type Lookuper interface {
	LookupMX(ctx context.Context, domain string) ([]MX, error)
	LookupA(ctx context.Context, domain string) ([]string, error)
}

var fallbackNameservers = []string{"1.1.1.1:53", "8.8.8.8:53"}

// DNSClient queries nameservers directly with miekg/dns.
type DNSClient struct {
	Nameservers []string
	Timeout     time.Duration
	// ResolvConf is read when Nameservers is empty; defaults to /etc/resolv.conf.
	ResolvConf string
}

func (c *DNSClient) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 5 * time.Second
}

func (c *DNSClient) servers() []string {
	if len(c.Nameservers) > 0 {
		out := make([]string, 0, len(c.Nameservers))
		for _, ns := range c.Nameservers {
			if _, _, err := net.SplitHostPort(ns); err != nil {
				ns = net.JoinHostPort(ns, "53")
			}
			out = append(out, ns)
		}
		return out
	}
	path := c.ResolvConf
	if path == "" {
		path = "/etc/resolv.conf"
	}
	conf, err := dns.ClientConfigFromFile(path)
	if err != nil || len(conf.Servers) == 0 {
		return fallbackNameservers
	}
	out := make([]string, 0, len(conf.Servers))
	for _, s := range conf.Servers {
		out = append(out, net.JoinHostPort(s, conf.Port))
	}
	return out
}

func (c *DNSClient) exchange(ctx context.Context, name string, qtype uint16) (*dns.Msg, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.RecursionDesired = true

	udp := &dns.Client{Timeout: c.timeout()}
	var lastErr error
	for _, ns := range c.servers() {
		in, _, err := udp.ExchangeContext(ctx, m, ns)
		if err == nil && in.Truncated {
			tcp := &dns.Client{Net: "tcp", Timeout: c.timeout()}
			in, _, err = tcp.ExchangeContext(ctx, m, ns)
		}
		if err != nil {
			lastErr = fmt.Errorf("query %s %s via %s: %w", dns.TypeToString[qtype], name, ns, err)
			continue
		}
		switch in.Rcode {
		case dns.RcodeSuccess, dns.RcodeNameError:
			return in, nil
		default:
			lastErr = fmt.Errorf("query %s %s via %s: %s", dns.TypeToString[qtype], name, ns, dns.RcodeToString[in.Rcode])
		}
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no nameservers configured")
	}
	return nil, lastErr
}

func (c *DNSClient) LookupMX(ctx context.Context, domain string) ([]MX, error) {
	in, err := c.exchange(ctx, domain, dns.TypeMX)
	if err != nil {
		return nil, err
	}
	var out []MX
	for _, rr := range in.Answer {
		mx, ok := rr.(*dns.MX)
		if !ok {
			continue
		}
		host := strings.TrimSuffix(strings.ToLower(mx.Mx), ".")
		// null MX (RFC 7505) means the domain accepts no mail
		if host == "" {
			continue
		}
		out = append(out, MX{Host: host, Pref: mx.Preference})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Pref < out[j].Pref })
	return out, nil
}

func (c *DNSClient) LookupA(ctx context.Context, domain string) ([]string, error) {
	in, err := c.exchange(ctx, domain, dns.TypeA)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, rr := range in.Answer {
		if a, ok := rr.(*dns.A); ok {
			out = append(out, a.A.String())
		}
	}
	return out, nil
}
