// Package search looks up a business's website through a public search
// engine's HTML endpoint.
package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"leadready/internal/domains"
	"leadready/internal/retry"
)

const (
	DefaultEndpoint  = "https://html.duckduckgo.com/html/"
	DefaultTimeout   = 15 * time.Second
	DefaultUserAgent = "Mozilla/5.0 (compatible; leadready/1.0)"
)

var ErrNoResult = errors.New("no search result")

// Searcher returns the most plausible website for a query.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// DirectoryHosts are listing and social sites that never count as a
// business's own website.
var DirectoryHosts = []string{
	"facebook.com",
	"instagram.com",
	"linkedin.com",
	"twitter.com",
	"x.com",
	"youtube.com",
	"yelp.com",
	"yellowpages.com",
	"tripadvisor.com",
	"bbb.org",
	"mapquest.com",
	"wikipedia.org",
	"duckduckgo.com",
}

type DuckDuckGo struct {
	Endpoint  string
	Client    *http.Client
	Limiter   *rate.Limiter
	Retry     retry.Executor
	Policy    retry.Policy
	UserAgent string
	Timeout   time.Duration
	Skip      domains.Set
	Logger    *slog.Logger
}

// NewDuckDuckGo builds a searcher limited to perSecond requests; perSecond
// <= 0 disables throttling.
func NewDuckDuckGo(endpoint string, perSecond float64) *DuckDuckGo {
	d := &DuckDuckGo{
		Endpoint: endpoint,
		Client:   &http.Client{},
		Policy:   retry.PolicyFor(retry.ExternalAPI),
		Skip:     domains.NewSet(DirectoryHosts...),
	}
	if perSecond > 0 {
		d.Limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return d
}

func (d *DuckDuckGo) endpoint() string {
	if d.Endpoint != "" {
		return d.Endpoint
	}
	return DefaultEndpoint
}

func (d *DuckDuckGo) client() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return http.DefaultClient
}

func (d *DuckDuckGo) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Search returns the first organic result that is not a directory or social
// profile, or ErrNoResult.
func (d *DuckDuckGo) Search(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrNoResult
	}
	if d.Limiter != nil {
		if err := d.Limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	doc, err := retry.DoValue(ctx, d.Retry, d.Policy, func(ctx context.Context) (*goquery.Document, error) {
		return d.fetch(ctx, query)
	})
	if err != nil {
		return "", fmt.Errorf("search %q: %w", query, err)
	}

	var found string
	doc.Find("a.result__a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if !ok {
			return true
		}
		link := resultURL(href)
		if link == "" {
			return true
		}
		u, err := url.Parse(link)
		if err != nil || u.Hostname() == "" {
			return true
		}
		if d.skipped(u.Hostname()) {
			d.logger().Debug("skipping directory result", "url", link)
			return true
		}
		found = link
		return false
	})
	if found == "" {
		return "", ErrNoResult
	}
	return found, nil
}

func (d *DuckDuckGo) skipped(host string) bool {
	return d.Skip.Has(host) || d.Skip.Has(domains.Registrable(host))
}

func (d *DuckDuckGo) fetch(ctx context.Context, query string) (*goquery.Document, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	u, err := url.Parse(d.endpoint())
	if err != nil {
		return nil, retry.Permanent(err)
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	ua := d.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html")

	resp, err := d.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("status %d: too many requests", resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("status %d: temporarily unavailable", resp.StatusCode)
	case resp.StatusCode >= 400:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, retry.Permanent(fmt.Errorf("status %d", resp.StatusCode))
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

// resultURL unwraps the engine's redirect links (//duckduckgo.com/l/?uddg=...).
func resultURL(href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		href = target
		if u, err = url.Parse(target); err != nil {
			return ""
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return href
}
