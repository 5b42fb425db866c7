package limits

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces out outbound requests. One token per interval, burst of one,
// so the first Wait returns immediately.
type Pacer struct {
	limiter  *rate.Limiter
	interval time.Duration
}

// NewPacer: creates a Pacer allowing one request per interval
func NewPacer(interval time.Duration) *Pacer {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Pacer{
		limiter:  rate.NewLimiter(limit, 1),
		interval: interval,
	}
}

// Wait blocks until the next request may be issued or ctx is done. When the
// next token lies past the ctx deadline it blocks until that deadline, so
// the error is always ctx.Err().
func (p *Pacer) Wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

// Allow reports whether a request may be issued right now, consuming the
// token if so.
func (p *Pacer) Allow() bool {
	return p.limiter.Allow()
}

// Interval: configured spacing between requests
func (p *Pacer) Interval() time.Duration {
	return p.interval
}
