package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errBackend = errors.New("backend down")

func newTestBreaker(t *testing.T, threshold uint32) (*CircuitBreaker, *[]State) {
	t.Helper()
	var (
		mu     sync.Mutex
		states []State
	)
	cfg := DefaultConfig("test")
	cfg.ConsecutiveFailures = threshold
	cfg.OpenTimeout = time.Hour
	cfg.OnStateChange = func(name string, to State) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, to)
	}
	cb, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return cb, &states
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb, states := newTestBreaker(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := cb.Do(ctx, func(context.Context) error { return errBackend }); !errors.Is(err, errBackend) {
			t.Fatalf("call %d error = %v", i, err)
		}
	}

	if cb.GetState() != StateOpen {
		t.Fatalf("state = %s, want open", cb.GetState())
	}
	if len(*states) != 1 || (*states)[0] != StateOpen {
		t.Errorf("state changes = %v", *states)
	}

	called := false
	err := cb.Do(ctx, func(context.Context) error { called = true; return nil })
	if !IsOpen(err) || called {
		t.Errorf("open breaker ran the call (err=%v, called=%v)", err, called)
	}
}

func TestBreaker_CanceledCallsDoNotTrip(t *testing.T) {
	cb, _ := newTestBreaker(t, 2)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = cb.Do(ctx, func(context.Context) error { return context.Canceled })
	}
	if cb.GetState() != StateClosed {
		t.Errorf("state = %s, want closed", cb.GetState())
	}
}

func TestBreaker_HalfOpenAfterTimeout(t *testing.T) {
	cfg := DefaultConfig("test")
	cfg.ConsecutiveFailures = 1
	cfg.OpenTimeout = 20 * time.Millisecond
	cb, err := New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	_ = cb.Do(ctx, func(context.Context) error { return errBackend })
	if cb.GetState() != StateOpen {
		t.Fatalf("state = %s, want open", cb.GetState())
	}
	time.Sleep(40 * time.Millisecond)
	if cb.GetState() != StateHalfOpen {
		t.Fatalf("state = %s, want half-open", cb.GetState())
	}
	if err := cb.Do(ctx, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("trial call error = %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("state = %s, want closed after a successful trial", cb.GetState())
	}
}

func TestState_Gauge(t *testing.T) {
	tests := map[State]float64{StateClosed: 0, StateOpen: 1, StateHalfOpen: 2}
	for s, want := range tests {
		if got := s.Gauge(); got != want {
			t.Errorf("%s.Gauge() = %v, want %v", s, got, want)
		}
	}
}

func TestManager_GetOrCreate(t *testing.T) {
	var changed []string
	m := NewManager(nil, func(name string, to State) { changed = append(changed, name) })

	a, err := m.GetOrCreate("patterns", DefaultConfig(""))
	if err != nil {
		t.Fatal(err)
	}
	b, _ := m.GetOrCreate("patterns", DefaultConfig(""))
	if a != b || a.Name() != "patterns" {
		t.Error("GetOrCreate returned a different breaker for the same name")
	}

	cfg := DefaultConfig("")
	cfg.ConsecutiveFailures = 1
	c, _ := m.GetOrCreate("queue", cfg)
	_ = c.Do(context.Background(), func(context.Context) error { return errBackend })

	if len(changed) != 1 || changed[0] != "queue" {
		t.Errorf("manager hook calls = %v", changed)
	}

	health := m.GetHealthStatus()
	if len(health) != 2 || health[0].Name != "patterns" || health[1].Name != "queue" {
		t.Fatalf("GetHealthStatus() = %+v", health)
	}
	for _, h := range health {
		if h.Name == "queue" && h.Healthy {
			t.Error("open breaker reported healthy")
		}
	}
}
