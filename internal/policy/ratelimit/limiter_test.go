package ratelimit

import (
	"sync"
	"testing"
	"time"
)

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(cfg Config) (*Limiter, *manualClock) {
	clk := &manualClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(cfg)
	l.now = clk.now
	return l, clk
}

func TestLimiter_AllowExhaustsBurst(t *testing.T) {
	t.Parallel()

	l, clk := newTestLimiter(Config{RPS: 1, Burst: 2})
	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("expected burst of 2 to be allowed")
	}
	if l.Allow("a") {
		t.Fatal("expected third request to be refused")
	}
	clk.advance(time.Second)
	if !l.Allow("a") {
		t.Fatal("expected a token after one second")
	}
}

func TestLimiter_ClientsAreIndependent(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter(Config{RPS: 1, Burst: 1})
	if !l.Allow("a") {
		t.Fatal("expected first request from a")
	}
	if l.Allow("a") {
		t.Fatal("expected a to be limited")
	}
	if !l.Allow("b") {
		t.Fatal("client b must not be limited by a")
	}
}

func TestLimiter_DisabledAlwaysAllows(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	if l.Enabled() {
		t.Fatal("zero rps must disable limiting")
	}
	for i := 0; i < 100; i++ {
		if !l.Allow("a") {
			t.Fatalf("request %d refused by disabled limiter", i)
		}
	}
	if l.Clients() != 0 {
		t.Fatalf("disabled limiter should not track clients, got %d", l.Clients())
	}

	var nilLimiter *Limiter
	if !nilLimiter.Allow("a") {
		t.Fatal("nil limiter must allow")
	}
}

func TestLimiter_ForgetsIdleClients(t *testing.T) {
	t.Parallel()

	l, clk := newTestLimiter(Config{RPS: 1, Burst: 1, IdleTTL: time.Minute})
	l.Allow("a")
	l.Allow("b")
	if l.Clients() != 2 {
		t.Fatalf("expected 2 clients, got %d", l.Clients())
	}
	clk.advance(2 * time.Minute)
	l.Allow("c")
	if l.Clients() != 1 {
		t.Fatalf("expected idle clients to be swept, got %d", l.Clients())
	}
}
