// Package retry wraps operations with bounded retries, exponential backoff and
// jitter. Only errors classified as transient are retried.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net"
	"strings"
	"time"
)

// Class names an operation family with its own default policy.
type Class string

const (
	Network     Class = "network"
	Database    Class = "database"
	ExternalAPI Class = "external_api"
	File        Class = "file"
)

type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	// Jitter is the fraction of the computed delay randomly added or removed (0..1).
	Jitter float64
}

var defaults = map[Class]Policy{
	Network:     {MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second, Multiplier: 2, Jitter: 0.2},
	Database:    {MaxAttempts: 5, BaseDelay: 50 * time.Millisecond, MaxDelay: 2 * time.Second, Multiplier: 2, Jitter: 0.1},
	ExternalAPI: {MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 15 * time.Second, Multiplier: 3, Jitter: 0.3},
	File:        {MaxAttempts: 2, BaseDelay: 200 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, Jitter: 0.1},
}

// PolicyFor returns the default policy of class; unknown classes get a single attempt.
func PolicyFor(c Class) Policy {
	if p, ok := defaults[c]; ok {
		return p
	}
	return Policy{MaxAttempts: 1}
}

// Delay is the wait before attempt n+1, after n failed attempts (n >= 1), before jitter.
func (p Policy) Delay(n int) time.Duration {
	if n < 1 || p.BaseDelay <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.BaseDelay) * math.Pow(mult, float64(n-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as fatal so the executor surfaces it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

var transientMarkers = []string{
	"timeout",
	"timed out",
	"econnreset",
	"connection reset",
	"econnrefused",
	"connection refused",
	"broken pipe",
	"rate limit",
	"too many requests",
	"temporarily unavailable",
	"try again",
	"database is locked",
	"sqlite_busy",
	"unexpected eof",
	"servfail",
}

// IsRetryable reports whether err looks transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe permanentError
	if errors.As(err, &pe) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// Executor runs operations under a Policy. The zero value is usable.
type Executor struct {
	Sleep  func(ctx context.Context, d time.Duration) error
	Rand   func() float64
	Logger *slog.Logger
}

func (e Executor) sleep(ctx context.Context, d time.Duration) error {
	if e.Sleep != nil {
		return e.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (e Executor) jitter(p Policy, d time.Duration) time.Duration {
	if p.Jitter <= 0 || d <= 0 {
		return d
	}
	r := rand.Float64
	if e.Rand != nil {
		r = e.Rand
	}
	spread := float64(d) * p.Jitter
	out := float64(d) - spread + 2*spread*r()
	if out < 0 {
		return 0
	}
	return time.Duration(out)
}

// Do runs op until it succeeds, returns a non-retryable error, or exhausts
// p.MaxAttempts. Cancellation of ctx stops further attempts.
func (e Executor) Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for n := 1; n <= attempts; n++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if !IsRetryable(err) {
			return err
		}
		if n == attempts {
			break
		}
		wait := e.jitter(p, p.Delay(n))
		if e.Logger != nil {
			e.Logger.Debug("retrying", "attempt", n, "wait", wait, "err", err)
		}
		if serr := e.sleep(ctx, wait); serr != nil {
			return err
		}
	}
	return fmt.Errorf("after %d attempts: %w", attempts, err)
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, e Executor, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := e.Do(ctx, p, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
