package webprobe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestProbeStatusCodes(t *testing.T) {
	var hits atomic.Int32
	var agent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		agent.Store(r.UserAgent())
		switch r.URL.Path {
		case "/ok":
			w.WriteHeader(http.StatusOK)
		case "/moved":
			http.Redirect(w, r, "/elsewhere", http.StatusMovedPermanently)
		case "/elsewhere":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p := NewProber(time.Second, "", nil)
	ctx := context.Background()

	if res := p.Probe(ctx, srv.URL+"/ok"); !res.Reachable || res.StatusCode != 200 || res.Method != http.MethodHead {
		t.Fatalf("ok: %+v", res)
	}
	if got := agent.Load().(string); got != DefaultUserAgent {
		t.Fatalf("user agent = %q", got)
	}
	if res := p.Probe(ctx, srv.URL+"/moved"); !res.Reachable || res.StatusCode != http.StatusMovedPermanently {
		t.Fatalf("redirect should count as reachable: %+v", res)
	}
	if res := p.Probe(ctx, srv.URL+"/missing"); res.Reachable || res.StatusCode != 404 {
		t.Fatalf("missing: %+v", res)
	}
	if res := p.Probe(ctx, "not a url://"); res.Reachable || res.Error == "" {
		t.Fatalf("bad url: %+v", res)
	}

	before := hits.Load()
	if !p.Probe(ctx, srv.URL+"/ok/").Reachable {
		t.Fatalf("cached ok should be reachable")
	}
	if hits.Load() != before {
		t.Fatalf("reachable result should be served from cache")
	}
	p.Probe(ctx, srv.URL+"/missing")
	if hits.Load() != before+1 {
		t.Fatalf("unreachable results must not be cached")
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestProbeFallsBackToGetOnNetworkError(t *testing.T) {
	var methods []string
	p := &Prober{Client: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		methods = append(methods, r.Method)
		if r.Method == http.MethodHead {
			return nil, errors.New("connection reset by peer")
		}
		return &http.Response{StatusCode: 200, Body: http.NoBody, Request: r}, nil
	})}}
	res := p.Probe(context.Background(), "techcorp.com")
	if !res.Reachable || res.Method != http.MethodGet || res.URL != "https://techcorp.com" {
		t.Fatalf("unexpected %+v", res)
	}
	if len(methods) != 2 || methods[0] != http.MethodHead || methods[1] != http.MethodGet {
		t.Fatalf("methods = %v", methods)
	}
}

func TestProbeDoesNotFallBackOnHTTPStatus(t *testing.T) {
	var calls int
	p := &Prober{Client: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		return &http.Response{StatusCode: 503, Body: http.NoBody, Request: r}, nil
	})}}
	if res := p.Probe(context.Background(), "techcorp.com"); res.Reachable || calls != 1 {
		t.Fatalf("status errors must not trigger GET: %+v calls=%d", res, calls)
	}
}

func TestProbeTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	p := NewProber(50*time.Millisecond, "", nil)
	start := time.Now()
	res := p.Probe(context.Background(), srv.URL)
	if res.Reachable || res.Error == "" {
		t.Fatalf("expected timeout, got %+v", res)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("probe did not honour its timeout")
	}
}
