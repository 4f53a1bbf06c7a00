// Package guarded wraps the pattern and recall stores in circuit breakers, so
// a struggling database fails writes fast instead of stalling smart entry.
// Failed writes surface to sessions as persistence warnings.
package guarded

import (
	"context"
	"time"

	"github.com/homeopms/go-smartrx/internal/domain/patternmemory"
	"github.com/homeopms/go-smartrx/internal/domain/recall"
	"github.com/homeopms/go-smartrx/pkg/circuitbreaker"
)

// Breaker is the subset of the circuit breaker used here
type Breaker interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// withTimeout bounds one store call
func withTimeout(ctx context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	if d <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}

// PatternStore guards a patternmemory.Store
type PatternStore struct {
	next    patternmemory.Store
	breaker Breaker
	timeout time.Duration
}

// NewPatternStore wraps next. timeout bounds each call; zero disables it.
func NewPatternStore(next patternmemory.Store, breaker Breaker, timeout time.Duration) *PatternStore {
	return &PatternStore{next: next, breaker: breaker, timeout: timeout}
}

func (s *PatternStore) LoadPatterns(ctx context.Context, clinicianID string) ([]patternmemory.Pattern, error) {
	var out []patternmemory.Pattern
	err := s.breaker.Do(ctx, func(ctx context.Context) error {
		return withTimeout(ctx, s.timeout, func(ctx context.Context) error {
			var err error
			out, err = s.next.LoadPatterns(ctx, clinicianID)
			return err
		})
	})
	return out, err
}

func (s *PatternStore) SavePatterns(ctx context.Context, clinicianID string, patterns []patternmemory.Pattern) error {
	return s.breaker.Do(ctx, func(ctx context.Context) error {
		return withTimeout(ctx, s.timeout, func(ctx context.Context) error {
			return s.next.SavePatterns(ctx, clinicianID, patterns)
		})
	})
}

// UsedMedicineStore guards a recall.Store
type UsedMedicineStore struct {
	next    recall.Store
	breaker Breaker
	timeout time.Duration
}

// NewUsedMedicineStore wraps next. timeout bounds each call; zero disables it.
func NewUsedMedicineStore(next recall.Store, breaker Breaker, timeout time.Duration) *UsedMedicineStore {
	return &UsedMedicineStore{next: next, breaker: breaker, timeout: timeout}
}

func (s *UsedMedicineStore) LoadUsedMedicines(ctx context.Context, clinicianID string) ([]string, error) {
	var out []string
	err := s.breaker.Do(ctx, func(ctx context.Context) error {
		return withTimeout(ctx, s.timeout, func(ctx context.Context) error {
			var err error
			out, err = s.next.LoadUsedMedicines(ctx, clinicianID)
			return err
		})
	})
	return out, err
}

func (s *UsedMedicineStore) SaveUsedMedicines(ctx context.Context, clinicianID string, names []string) error {
	return s.breaker.Do(ctx, func(ctx context.Context) error {
		return withTimeout(ctx, s.timeout, func(ctx context.Context) error {
			return s.next.SaveUsedMedicines(ctx, clinicianID, names)
		})
	})
}

var _ Breaker = (*circuitbreaker.CircuitBreaker)(nil)
