package webprobe

import (
	"context"
	"errors"
	"testing"

	"leadready/internal/domains"
)

type fakeChecker struct {
	up    map[string]bool
	calls []string
}

func (f *fakeChecker) Probe(_ context.Context, raw string) Result {
	n, err := Normalize(raw)
	if err != nil {
		return Result{URL: raw, Error: err.Error()}
	}
	f.calls = append(f.calls, n)
	return Result{URL: n, Reachable: f.up[n]}
}

type fakeSearcher struct {
	url     string
	err     error
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, q string) (string, error) {
	f.queries = append(f.queries, q)
	return f.url, f.err
}

func TestResolveFallbackChain(t *testing.T) {
	cases := []struct {
		name     string
		in       Input
		up       map[string]bool
		search   *fakeSearcher
		website  string
		source   Source
		conf     Confidence
		searched bool
	}{
		{
			name:    "direct",
			in:      Input{BusinessName: "Tech Corp", Email: "info@techcorp.com", Website: "techcorp.com"},
			up:      map[string]bool{"https://techcorp.com": true},
			search:  &fakeSearcher{},
			website: "https://techcorp.com", source: SourceDirect, conf: ConfidenceHigh,
		},
		{
			name:    "email domain after broken link",
			in:      Input{BusinessName: "Tech Corp", Email: "info@mail.techcorp.co.uk", Website: "https://dead.example"},
			up:      map[string]bool{"https://techcorp.co.uk": true},
			search:  &fakeSearcher{},
			website: "https://techcorp.co.uk", source: SourceEmailDomain, conf: ConfidenceHigh,
		},
		{
			name:    "full email domain before registrable parent",
			in:      Input{BusinessName: "Tech Corp", Email: "info@shop.techcorp.com"},
			up:      map[string]bool{"https://shop.techcorp.com": true, "https://techcorp.com": true},
			search:  &fakeSearcher{},
			website: "https://shop.techcorp.com", source: SourceEmailDomain, conf: ConfidenceHigh,
		},
		{
			name:    "free mail goes to search",
			in:      Input{BusinessName: "Local Shop", Email: "owner@gmail.com", City: "Austin"},
			up:      map[string]bool{"https://localshopaustin.com": true, "https://gmail.com": true},
			search:  &fakeSearcher{url: "https://localshopaustin.com/"},
			website: "https://localshopaustin.com", source: SourceBusinessSearch, conf: ConfidenceMedium, searched: true,
		},
		{
			name:    "search hit without name match",
			in:      Input{BusinessName: "Local Shop"},
			up:      map[string]bool{"https://bestdeals.net": true},
			search:  &fakeSearcher{url: "https://bestdeals.net"},
			website: "https://bestdeals.net", source: SourceBusinessSearch, conf: ConfidenceLow, searched: true,
		},
		{
			name:   "search error",
			in:     Input{BusinessName: "Local Shop"},
			search: &fakeSearcher{err: errors.New("rate limit")},
			source: SourceFailed, conf: ConfidenceNone, searched: true,
		},
		{
			name:   "nothing to go on",
			in:     Input{},
			search: &fakeSearcher{},
			source: SourceFailed, conf: ConfidenceNone,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			checker := &fakeChecker{up: c.up}
			r := &Resolver{Prober: checker, Searcher: c.search, FreeMail: domains.NewSet("gmail.com")}
			got := r.Resolve(context.Background(), c.in)
			if got.Website != c.website || got.Source != c.source || got.Confidence != c.conf {
				t.Fatalf("got %+v", got)
			}
			if got.Source == SourceFailed && got.Message == "" {
				t.Fatalf("failed resolution needs a message")
			}
			if searched := len(c.search.queries) > 0; searched != c.searched {
				t.Fatalf("searched=%v want %v", searched, c.searched)
			}
			for _, u := range checker.calls {
				if u == "https://gmail.com" {
					t.Fatalf("free-mail domain must never be probed as a website")
				}
			}
		})
	}
}

func TestResolveEmailDomainOrder(t *testing.T) {
	checker := &fakeChecker{up: map[string]bool{"https://techcorp.co.uk": true}}
	r := &Resolver{Prober: checker}
	got := r.Resolve(context.Background(), Input{Email: "info@mail.techcorp.co.uk"})
	if got.Website != "https://techcorp.co.uk" || got.Source != SourceEmailDomain {
		t.Fatalf("got %+v", got)
	}
	want := []string{"https://mail.techcorp.co.uk", "https://techcorp.co.uk"}
	if len(checker.calls) != len(want) || checker.calls[0] != want[0] || checker.calls[1] != want[1] {
		t.Fatalf("checked hosts = %v", checker.calls)
	}
}

func TestResolveSearchQueryIncludesCity(t *testing.T) {
	s := &fakeSearcher{}
	r := &Resolver{Prober: &fakeChecker{}, Searcher: s}
	r.Resolve(context.Background(), Input{BusinessName: " Local Shop ", City: "Austin"})
	if len(s.queries) != 1 || s.queries[0] != "Local Shop Austin" {
		t.Fatalf("queries = %v", s.queries)
	}
}
