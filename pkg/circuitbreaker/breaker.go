// Package circuitbreaker guards store and broker calls with sony/gobreaker.
// Every call is traced and counted by outcome through the otel meter.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// State is a breaker position
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Gauge returns the numeric form used by the circuit_breaker_state gauge
func (s State) Gauge() float64 {
	switch s {
	case StateOpen:
		return 1
	case StateHalfOpen:
		return 2
	default:
		return 0
	}
}

func stateOf(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Config tunes when a breaker opens and how it recovers
type Config struct {
	Name string
	// ConsecutiveFailures opens the breaker while fewer than MinRequests
	// calls have been counted
	ConsecutiveFailures uint32
	// FailureRatio opens the breaker once MinRequests calls have been counted
	FailureRatio float64
	MinRequests  uint32
	// Interval clears the counts while closed
	Interval time.Duration
	// OpenTimeout is how long the breaker stays open before a trial call
	OpenTimeout time.Duration
	// OnStateChange is called after every transition
	OnStateChange func(name string, to State)
}

// DefaultConfig returns defaults for store and broker calls
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		ConsecutiveFailures: 5,
		FailureRatio:        0.6,
		MinRequests:         10,
		Interval:            time.Minute,
		OpenTimeout:         10 * time.Second,
	}
}

// IsOpen reports whether err is a call the breaker refused to run
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// CircuitBreaker wraps one gobreaker instance
type CircuitBreaker struct {
	cb       *gobreaker.CircuitBreaker
	name     string
	logger   *zap.Logger
	tracer   trace.Tracer
	calls    metric.Int64Counter
	onChange func(name string, to State)
}

// New creates a breaker
func New(cfg Config, logger *zap.Logger) (*CircuitBreaker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	calls, err := otel.Meter("circuit-breaker").Int64Counter("circuit_breaker_calls_total",
		metric.WithDescription("Calls through a circuit breaker by outcome"))
	if err != nil {
		return nil, fmt.Errorf("create call counter: %w", err)
	}

	c := &CircuitBreaker{
		name:     cfg.Name,
		logger:   logger,
		tracer:   otel.Tracer("circuit-breaker"),
		calls:    calls,
		onChange: cfg.OnStateChange,
	}
	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			c.changed(stateOf(from), stateOf(to))
		},
		IsSuccessful: func(err error) bool {
			// A caller giving up says nothing about the dependency
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return c, nil
}

// Name returns the breaker name
func (c *CircuitBreaker) Name() string {
	return c.name
}

// Do runs fn unless the breaker is open. A refused call returns an error
// for which IsOpen is true and fn is not called.
func (c *CircuitBreaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, span := c.tracer.Start(ctx, "circuit_breaker",
		trace.WithAttributes(
			attribute.String("breaker", c.name),
			attribute.String("state", string(c.GetState())),
		))
	defer span.End()

	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})

	outcome := "success"
	switch {
	case IsOpen(err):
		outcome = "rejected"
		span.SetAttributes(attribute.Bool("circuit_open", true))
	case err != nil:
		outcome = "failure"
	}
	if err != nil {
		span.RecordError(err)
	}
	c.calls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("name", c.name),
		attribute.String("outcome", outcome),
	))
	return err
}

// GetState returns the breaker's current state
func (c *CircuitBreaker) GetState() State {
	return stateOf(c.cb.State())
}

func (c *CircuitBreaker) changed(from, to State) {
	c.logger.Warn("circuit breaker state changed",
		zap.String("breaker", c.name),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	if c.onChange != nil {
		c.onChange(c.name, to)
	}
}

// Manager hands out one breaker per name
type Manager struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	logger   *zap.Logger
	onChange func(name string, to State)
}

// NewManager creates a manager. onChange, if set, is attached to every
// breaker created without its own hook.
func NewManager(logger *zap.Logger, onChange func(name string, to State)) *Manager {
	return &Manager{
		breakers: make(map[string]*CircuitBreaker),
		logger:   logger,
		onChange: onChange,
	}
}

// GetOrCreate returns the breaker called name, creating it from cfg on first use
func (m *Manager) GetOrCreate(name string, cfg Config) (*CircuitBreaker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok := m.breakers[name]; ok {
		return cb, nil
	}

	cfg.Name = name
	if cfg.OnStateChange == nil {
		cfg.OnStateChange = m.onChange
	}
	cb, err := New(cfg, m.logger)
	if err != nil {
		return nil, err
	}
	m.breakers[name] = cb
	return cb, nil
}

// HealthStatus is one breaker's health as reported on /ready
type HealthStatus struct {
	Name     string `json:"name"`
	State    State  `json:"state"`
	Requests uint32 `json:"requests"`
	Failures uint32 `json:"failures"`
	Healthy  bool   `json:"healthy"`
}

// GetHealthStatus reports every breaker, sorted by name
func (m *Manager) GetHealthStatus() []HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	statuses := make([]HealthStatus, 0, len(m.breakers))
	for name, cb := range m.breakers {
		counts := cb.cb.Counts()
		state := cb.GetState()
		statuses = append(statuses, HealthStatus{
			Name:     name,
			State:    state,
			Requests: counts.Requests,
			Failures: counts.TotalFailures,
			Healthy:  state == StateClosed,
		})
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}
