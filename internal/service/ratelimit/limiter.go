package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter holds one token bucket per upstream key. A bucket is created on
// first use with the capacity and refill rate given then.
type Limiter struct {
	mu  sync.Mutex
	m   map[string]*rate.Limiter
	now func() time.Time
}

func New() *Limiter { return &Limiter{m: make(map[string]*rate.Limiter), now: time.Now} }

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string, capacity, refillPerSec float64) bool {
	return l.bucket(key, capacity, refillPerSec).AllowN(l.now(), 1)
}

// Wait blocks until a token for key is available or ctx is done.
// A non-positive refill rate disables limiting.
func (l *Limiter) Wait(ctx context.Context, key string, capacity, refillPerSec float64) error {
	if refillPerSec <= 0 {
		return ctx.Err()
	}
	if err := l.bucket(key, capacity, refillPerSec).Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// the wait would outlive the deadline
		return fmt.Errorf("ratelimit %s: %v: %w", key, err, context.DeadlineExceeded)
	}
	return nil
}

func (l *Limiter) bucket(key string, capacity, refillPerSec float64) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.m[key]
	if !ok {
		limit := rate.Limit(refillPerSec)
		if refillPerSec <= 0 {
			limit = rate.Inf
		}
		burst := max(int(math.Ceil(capacity)), 1)
		b = rate.NewLimiter(limit, burst)
		// start full at the limiter's clock
		b.SetLimitAt(l.now(), limit)
		l.m[key] = b
	}
	return b
}
