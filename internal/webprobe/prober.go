package webprobe

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"leadready/internal/cache"
)

const (
	DefaultTimeout   = 10 * time.Second
	DefaultUserAgent = "leadready-validator/1.0 (+https://leadready.dev/bot)"
	// DefaultCacheTTL bounds how long a reachable site is trusted.
	DefaultCacheTTL = time.Hour
)

// Result describes one reachability check.
type Result struct {
	URL        string `json:"url"`
	Reachable  bool   `json:"reachable"`
	StatusCode int    `json:"status_code,omitempty"`
	Method     string `json:"method,omitempty"`
	Error      string `json:"error,omitempty"`
}

type Prober struct {
	Client    *http.Client
	Timeout   time.Duration
	UserAgent string
	Cache     cache.Store[Result]
	Logger    *slog.Logger
}

// NewProber returns a prober that does not follow redirects: a 3xx already
// counts as reachable.
func NewProber(timeout time.Duration, userAgent string, store cache.Store[Result]) *Prober {
	if store == nil {
		store = cache.NewTTL[Result](DefaultCacheTTL)
	}
	return &Prober{
		Client: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		Timeout:   timeout,
		UserAgent: userAgent,
		Cache:     store,
	}
}

func (p *Prober) client() *http.Client {
	if p.Client != nil {
		return p.Client
	}
	return http.DefaultClient
}

func (p *Prober) timeout() time.Duration {
	if p.Timeout > 0 {
		return p.Timeout
	}
	return DefaultTimeout
}

func (p *Prober) userAgent() string {
	if p.UserAgent != "" {
		return p.UserAgent
	}
	return DefaultUserAgent
}

func (p *Prober) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// Probe issues HEAD and, only when HEAD fails at the network level, a single
// GET. Only reachable results are cached.
func (p *Prober) Probe(ctx context.Context, raw string) Result {
	target, err := Normalize(raw)
	if err != nil {
		return Result{URL: raw, Error: err.Error()}
	}
	if p.Cache != nil {
		if res, ok := p.Cache.Get(ctx, target); ok {
			return res
		}
	}

	res := Result{URL: target, Method: http.MethodHead}
	code, err := p.do(ctx, http.MethodHead, target)
	if err != nil {
		p.logger().Debug("head failed, trying get", "url", target, "err", err)
		res.Method = http.MethodGet
		code, err = p.do(ctx, http.MethodGet, target)
	}
	if err != nil {
		res.Error = err.Error()
		p.logger().Info("website unreachable", "url", target, "err", err)
		return res
	}
	res.StatusCode = code
	res.Reachable = code < http.StatusBadRequest
	if res.Reachable && p.Cache != nil {
		p.Cache.Set(ctx, target, res)
	}
	return res
}

func (p *Prober) do(ctx context.Context, method, target string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", p.userAgent())
	resp, err := p.client().Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return resp.StatusCode, nil
}
