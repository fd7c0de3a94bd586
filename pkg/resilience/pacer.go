package resilience

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Interval is the minimum spacing between two requests to a source allowed
// rpm requests per minute, rounded up to the millisecond. Zero or negative
// rpm means no spacing.
func Interval(rpm int) time.Duration {
	if rpm <= 0 {
		return 0
	}
	ms := (60000 + rpm - 1) / rpm
	return time.Duration(ms) * time.Millisecond
}

// Pacer spaces requests per key. Each key gets a token bucket with a burst
// of one, so the first request goes out immediately and later ones wait out
// the interval.
type Pacer struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewPacer() *Pacer {
	return &Pacer{limiters: make(map[string]*rate.Limiter)}
}

// Wait blocks until a request to key may be sent at rpm, or ctx is done.
func (p *Pacer) Wait(ctx context.Context, key string, rpm int) error {
	l := p.limiter(key, rpm)
	if l == nil {
		return ctx.Err()
	}
	return l.Wait(ctx)
}

func (p *Pacer) limiter(key string, rpm int) *rate.Limiter {
	every := Interval(rpm)
	if every == 0 {
		return nil
	}
	limit := rate.Every(every)

	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.limiters[key]
	if !ok {
		l = rate.NewLimiter(limit, 1)
		p.limiters[key] = l
		return l
	}
	if l.Limit() != limit {
		l.SetLimit(limit)
	}
	return l
}
