// Package ratelimit provides per-tool token bucket rate limiting for MCP tools.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimited is wrapped by CheckLimit when a tool's bucket is empty.
var ErrRateLimited = errors.New("rate limit exceeded")

// Limiter holds one token bucket per key, all sharing a rate and burst.
// It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	rate    rate.Limit
	burst   int
	nowFunc func() time.Time // injectable clock for testing
}

// NewLimiter creates a limiter with the given rate (tokens/sec) and burst.
// Every key starts with a full burst.
func NewLimiter(perSecond float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
		rate:    rate.Limit(perSecond),
		burst:   burst,
		nowFunc: time.Now,
	}
}

// Allow reports whether a request for key may proceed, consuming a token if so.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.rate, l.burst)
		l.buckets[key] = b
	}
	now := l.nowFunc()
	l.mu.Unlock()

	return b.AllowN(now, 1)
}

// ToolLimiters maps tool names to their rate limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters creates the default per-tool limits. Benchmarks occupy
// every core for seconds, so they get the tightest bucket.
func NewToolLimiters() ToolLimiters {
	return ToolLimiters{
		"netwave_simulate":  NewLimiter(30.0/60.0, 5), // 30/minute, burst 5
		"netwave_benchmark": NewLimiter(2.0/60.0, 1),  // 2/minute, burst 1
		"netwave_graph":     NewLimiter(1.0, 10),      // 60/minute, burst 10
		"netwave_results":   NewLimiter(1.0, 10),      // 60/minute, burst 10
	}
}

// CheckLimit returns nil if toolName may run now. Tools without a
// configured limiter are always allowed.
func CheckLimit(limiters ToolLimiters, toolName string) error {
	limiter, ok := limiters[toolName]
	if !ok {
		return nil
	}
	if !limiter.Allow(toolName) {
		return fmt.Errorf("%w for %s, please try again shortly", ErrRateLimited, toolName)
	}
	return nil
}
