package cache

import (
	"context"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestTTLExpiryIsMissAndEvicts(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewTTL[string](time.Minute)
	c.Now = clock.Now
	ctx := context.Background()

	c.Set(ctx, "example.com", "v1")
	if v, ok := c.Get(ctx, "example.com"); !ok || v != "v1" {
		t.Fatalf("expected hit, got %q %v", v, ok)
	}
	clock.Advance(time.Minute)
	if _, ok := c.Get(ctx, "example.com"); !ok {
		t.Fatalf("entry at exactly ttl should still be present")
	}
	clock.Advance(time.Second)
	if _, ok := c.Get(ctx, "example.com"); ok {
		t.Fatalf("expected miss after ttl")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry not evicted, len=%d", c.Len())
	}
}

func TestTTLPurgeAndOverrides(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewTTL[int](time.Hour)
	c.Now = clock.Now
	ctx := context.Background()

	c.Set(ctx, "long", 1)
	c.SetWithTTL(ctx, "short", 2, time.Second)
	c.SetWithTTL(ctx, "never", 3, 0)
	if c.Len() != 2 {
		t.Fatalf("zero ttl should not store, len=%d", c.Len())
	}
	clock.Advance(2 * time.Second)
	if n := c.Purge(); n != 1 {
		t.Fatalf("expected one purged entry, got %d", n)
	}
	if _, ok := c.Get(ctx, "long"); !ok {
		t.Fatalf("long entry should survive purge")
	}
	c.Delete("long")
	if _, ok := c.Get(ctx, "long"); ok {
		t.Fatalf("deleted entry still present")
	}
}

func TestNewFallsBackToMemory(t *testing.T) {
	s := New[string](nil, "dns:", time.Minute)
	if _, ok := s.(*TTL[string]); !ok {
		t.Fatalf("expected in-process store, got %T", s)
	}
}
