package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/WessleyAI/dealflow/pkg/fn"
)

func failing(context.Context) fn.Result[int] { return fn.Err[int](errors.New("fail")) }
func passing(context.Context) fn.Result[int] { return fn.Ok(1) }

func TestBreakerTripsAfterThreshold(t *testing.T) {
	b := NewBreaker(3, time.Minute)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		Guard(ctx, b, failing)
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %v", b.State())
	}
	called := false
	r := Guard(ctx, b, func(context.Context) fn.Result[int] { called = true; return fn.Ok(1) })
	if !errors.Is(r.Error(), ErrCircuitOpen) || called {
		t.Fatalf("expected fast failure, got %v called=%v", r.Error(), called)
	}
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	b := NewBreaker(3, time.Minute)
	ctx := context.Background()
	Guard(ctx, b, failing)
	Guard(ctx, b, failing)
	Guard(ctx, b, passing)
	Guard(ctx, b, failing)
	Guard(ctx, b, failing)
	if b.State() != StateClosed {
		t.Fatalf("expected closed, got %v", b.State())
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	now := time.Now()
	b := NewBreaker(1, time.Second)
	b.now = func() time.Time { return now }
	ctx := context.Background()

	Guard(ctx, b, failing)
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %v", b.State())
	}
	now = now.Add(2 * time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open, got %v", b.State())
	}
	Guard(ctx, b, passing)
	if b.State() != StateClosed {
		t.Fatalf("expected closed after probe, got %v", b.State())
	}

	Guard(ctx, b, failing)
	now = now.Add(2 * time.Second)
	Guard(ctx, b, failing)
	if b.State() != StateOpen {
		t.Fatalf("expected failed probe to reopen, got %v", b.State())
	}
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	b := NewBreaker(1, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	Guard(ctx, b, failing)
	if b.State() != StateClosed {
		t.Fatalf("expected closed, got %v", b.State())
	}
}

func TestBreakersDisabled(t *testing.T) {
	s := NewBreakers(0, time.Minute)
	if b := s.For("a"); b != nil {
		t.Fatalf("expected nil breaker, got %v", b)
	}
	if r := Guard(context.Background(), s.For("a"), passing); r.IsErr() {
		t.Fatalf("unexpected error %v", r.Error())
	}
}

func TestBreakersPerKey(t *testing.T) {
	s := NewBreakers(1, time.Minute)
	ctx := context.Background()
	Guard(ctx, s.For("a"), failing)
	if s.For("a").State() != StateOpen {
		t.Fatal("expected a open")
	}
	if s.For("b").State() != StateClosed {
		t.Fatal("expected b closed")
	}
}

func TestInterval(t *testing.T) {
	cases := map[int]time.Duration{
		0:   0,
		-5:  0,
		1:   time.Minute,
		60:  time.Second,
		7:   8572 * time.Millisecond,
		120: 500 * time.Millisecond,
	}
	for rpm, want := range cases {
		if got := Interval(rpm); got != want {
			t.Fatalf("Interval(%d): expected %v, got %v", rpm, want, got)
		}
	}
}

func TestPacerSpacesRequests(t *testing.T) {
	p := NewPacer()
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := p.Wait(ctx, "src", 600); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 180*time.Millisecond {
		t.Fatalf("expected at least 180ms of pacing, got %v", elapsed)
	}
}

func TestPacerUnlimited(t *testing.T) {
	p := NewPacer()
	start := time.Now()
	for i := 0; i < 50; i++ {
		if err := p.Wait(context.Background(), "src", 0); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("expected no pacing, took %v", elapsed)
	}
}

func TestPacerKeysIndependent(t *testing.T) {
	p := NewPacer()
	ctx := context.Background()
	start := time.Now()
	if err := p.Wait(ctx, "a", 1); err != nil {
		t.Fatal(err)
	}
	if err := p.Wait(ctx, "b", 1); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("expected first request per key to be immediate, took %v", elapsed)
	}
}

func TestPacerHonoursCancel(t *testing.T) {
	p := NewPacer()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Wait(ctx, "src", 1); err != nil {
		t.Fatal(err)
	}
	if err := p.Wait(ctx, "src", 1); err == nil {
		t.Fatal("expected error once the deadline cuts the wait short")
	}
}
