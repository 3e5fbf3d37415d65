// Package ratelimit provides per-key token buckets for MCP tools and HTTP
// clients.
package ratelimit

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// ErrLimited is matched by every *LimitError.
var ErrLimited = errors.New("rate limit exceeded")

// LimitError reports a rejected request and when a token will next be
// available for its key.
type LimitError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry in %s", e.Key, e.RetryAfter.Round(time.Second))
}

// Is reports ErrLimited as this error's kind.
func (e *LimitError) Is(target error) bool {
	return target == ErrLimited
}

// Limiter holds one bucket per key, each refilling at rate tokens per
// second up to burst. New keys start full. Safe for concurrent use.
type Limiter struct {
	rate  float64
	burst float64

	mu      sync.Mutex
	buckets map[string]*bucket
	nowFunc func() time.Time
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// NewLimiter creates a limiter refilling rate tokens per second with room
// for burst.
func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		rate:    rate,
		burst:   float64(burst),
		buckets: make(map[string]*bucket),
		nowFunc: time.Now,
	}
}

// take refills key's bucket to now and returns it. l.mu must be held.
func (l *Limiter) take(key string) *bucket {
	now := l.nowFunc()
	b := l.buckets[key]
	if b == nil {
		b = &bucket{tokens: l.burst, lastSeen: now}
		l.buckets[key] = b
		return b
	}
	if dt := now.Sub(b.lastSeen).Seconds(); dt > 0 {
		b.tokens = math.Min(l.burst, b.tokens+dt*l.rate)
		b.lastSeen = now
	}
	return b
}

// Allow spends one token from key's bucket, reporting false when none is
// left.
func (l *Limiter) Allow(key string) bool {
	return l.Reserve(key) == 0
}

// Reserve spends one token from key's bucket and returns 0, or returns how
// long until a token is available without spending anything. With a zero
// rate an empty bucket never refills and the wait is math.MaxInt64.
func (l *Limiter) Reserve(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.take(key)
	if b.tokens >= 1 {
		b.tokens--
		return 0
	}
	if l.rate <= 0 {
		return time.Duration(math.MaxInt64)
	}
	wait := time.Duration((1 - b.tokens) / l.rate * float64(time.Second))
	return max(wait, time.Nanosecond)
}

// Prune forgets keys idle for longer than idle and returns how many were
// dropped. Once idle*rate >= burst a dropped key behaves exactly as if it
// had been kept.
func (l *Limiter) Prune(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.nowFunc().Add(-idle)
	n := 0
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// ToolLimiters maps MCP tool names to their limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters returns the per-tool limits of the MCP server. Queries
// are cheap once cached; a sweep can occupy every core.
func NewToolLimiters() ToolLimiters {
	return ToolLimiters{
		"rbdc_query":    NewLimiter(1, 10),    // 60/minute
		"rbdc_defaults": NewLimiter(1, 10),    // 60/minute
		"rbdc_sweep":    NewLimiter(5.0/60, 2), // 5/minute
	}
}

// CheckLimit spends a token for tool and returns a *LimitError when its
// limit is exhausted. Tools without a limiter are never limited.
func CheckLimit(limiters ToolLimiters, tool string) error {
	l, ok := limiters[tool]
	if !ok {
		return nil
	}
	if wait := l.Reserve(tool); wait > 0 {
		return &LimitError{Key: tool, RetryAfter: wait}
	}
	return nil
}
