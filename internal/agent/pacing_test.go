package agent

import (
	"context"
	"testing"
	"time"
)

func TestCallPacer_BurstAvailableImmediately(t *testing.T) {
	p := newCallPacer(5, 60)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := p.Acquire(ctx); err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("burst took %v, want near-instant", elapsed)
	}
}

func TestCallPacer_BlocksWhenExhausted(t *testing.T) {
	p := newCallPacer(1, 600) // refills at 10/sec
	ctx := context.Background()

	if err := p.Acquire(ctx); err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}

	start := time.Now()
	if err := p.Acquire(ctx); err != nil {
		t.Fatalf("second Acquire() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("second acquire returned after %v, want ~100ms wait", elapsed)
	}
}

func TestCallPacer_CancelledContext(t *testing.T) {
	p := newCallPacer(1, 1) // refill far too slow for the test window
	ctx := context.Background()

	if err := p.Acquire(ctx); err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}

	cancelCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := p.Acquire(cancelCtx); err == nil {
		t.Error("Acquire() on exhausted pacer with cancelled context returned nil")
	}
}

func TestCallPacer_ZeroConfigGetsDefaults(t *testing.T) {
	p := newCallPacer(0, 0)
	if p.capacity <= 0 || p.perSec <= 0 {
		t.Errorf("defaults not applied: capacity=%v perSec=%v", p.capacity, p.perSec)
	}
	if err := p.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
}

func TestCallPacer_Refills(t *testing.T) {
	p := newCallPacer(2, 6000) // 100/sec
	ctx := context.Background()

	p.Acquire(ctx)
	p.Acquire(ctx)

	// Wait 30ms, which refills ~3 tokens but caps at capacity 2.
	time.Sleep(30 * time.Millisecond)

	start := time.Now()
	if err := p.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := p.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("refilled acquires took %v, want near-instant", elapsed)
	}
}
