package agent

import (
	"context"
	"sync"
	"time"
)

// callPacer spaces out provider calls across all active sessions. The agent
// loop can spin through many iterations per message, and several messages
// run concurrently; without pacing a single stuck conversation could exhaust
// an API quota. Token bucket: burst up front, continuous refill after.
type callPacer struct {
	mu       sync.Mutex
	avail    float64
	capacity float64
	perSec   float64
	last     time.Time
}

func newCallPacer(burst int, perMinute float64) *callPacer {
	if burst <= 0 {
		burst = 10
	}
	if perMinute <= 0 {
		perMinute = 30
	}
	return &callPacer{
		avail:    float64(burst),
		capacity: float64(burst),
		perSec:   perMinute / 60,
		last:     time.Now(),
	}
}

// refillLocked credits tokens for the time elapsed since the last call.
// Caller holds p.mu.
func (p *callPacer) refillLocked(now time.Time) {
	p.avail += now.Sub(p.last).Seconds() * p.perSec
	if p.avail > p.capacity {
		p.avail = p.capacity
	}
	p.last = now
}

// Acquire takes one token, sleeping until the bucket refills if necessary.
// Returns early with the context error on cancellation.
func (p *callPacer) Acquire(ctx context.Context) error {
	for {
		p.mu.Lock()
		p.refillLocked(time.Now())
		if p.avail >= 1 {
			p.avail--
			p.mu.Unlock()
			return nil
		}
		deficit := 1 - p.avail
		p.mu.Unlock()

		wait := time.Duration(deficit / p.perSec * float64(time.Second))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
