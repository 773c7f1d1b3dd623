// Package cache holds the time-to-live stores shared by the probers.
package cache

import (
	"context"
	"sync"
	"time"
)

// Store is the lookup surface the probers depend on.
type Store[T any] interface {
	Get(ctx context.Context, key string) (T, bool)
	Set(ctx context.Context, key string, value T)
}

type entry[T any] struct {
	value    T
	storedAt time.Time
	ttl      time.Duration
}

// TTL is an in-process Store. An entry is absent once now-storedAt > ttl; the
// lookup that observes this evicts it.
type TTL[T any] struct {
	mu      sync.Mutex
	entries map[string]entry[T]
	ttl     time.Duration
	Now     func() time.Time
}

func NewTTL[T any](ttl time.Duration) *TTL[T] {
	return &TTL[T]{entries: make(map[string]entry[T]), ttl: ttl, Now: time.Now}
}

func (c *TTL[T]) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *TTL[T]) Get(_ context.Context, key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if c.now().Sub(e.storedAt) > e.ttl {
		delete(c.entries, key)
		return zero, false
	}
	return e.value, true
}

func (c *TTL[T]) Set(ctx context.Context, key string, value T) {
	c.SetWithTTL(ctx, key, value, c.ttl)
}

// SetWithTTL stores value with an explicit ttl; ttl <= 0 is a no-op.
func (c *TTL[T]) SetWithTTL(_ context.Context, key string, value T, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = make(map[string]entry[T])
	}
	c.entries[key] = entry[T]{value: value, storedAt: c.now(), ttl: ttl}
}

func (c *TTL[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len counts stored entries, including expired ones not yet looked up.
func (c *TTL[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge drops every expired entry and returns how many were removed.
func (c *TTL[T]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for k, e := range c.entries {
		if now.Sub(e.storedAt) > e.ttl {
			delete(c.entries, k)
			n++
		}
	}
	return n
}
