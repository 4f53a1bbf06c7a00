// Package memstore keeps every store in process memory. It backs
// STORE_BACKEND=memory and the API tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/homeopms/go-smartrx/internal/domain/combination"
	"github.com/homeopms/go-smartrx/internal/domain/consultation"
	"github.com/homeopms/go-smartrx/internal/domain/dispensing"
	"github.com/homeopms/go-smartrx/internal/domain/patternmemory"
	"github.com/homeopms/go-smartrx/internal/domain/smartparse"
)

// Store implements the settings, pattern, recall, combination, visit and
// pharmacy queue stores
type Store struct {
	mu           sync.RWMutex
	config       *smartparse.Config
	patterns     map[string][]patternmemory.Pattern
	used         map[string][]string
	combinations []combination.Combination
	visits       []consultation.FinalizedConsultation
	tickets      []dispensing.Ticket
}

// New creates an empty store
func New() *Store {
	return &Store{
		patterns: make(map[string][]patternmemory.Pattern),
		used:     make(map[string][]string),
	}
}

func (s *Store) LoadConfig(ctx context.Context) (*smartparse.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.config == nil {
		return nil, nil
	}
	return s.config.Clone(), nil
}

func (s *Store) SaveConfig(ctx context.Context, cfg *smartparse.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = cfg.Clone()
	return nil
}

func (s *Store) LoadPatterns(ctx context.Context, clinicianID string) ([]patternmemory.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]patternmemory.Pattern(nil), s.patterns[clinicianID]...), nil
}

func (s *Store) SavePatterns(ctx context.Context, clinicianID string, patterns []patternmemory.Pattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns[clinicianID] = append([]patternmemory.Pattern(nil), patterns...)
	return nil
}

func (s *Store) LoadUsedMedicines(ctx context.Context, clinicianID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.used[clinicianID]...), nil
}

func (s *Store) SaveUsedMedicines(ctx context.Context, clinicianID string, names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.used[clinicianID] = append([]string(nil), names...)
	return nil
}

func (s *Store) ListCombinations(ctx context.Context) ([]combination.Combination, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]combination.Combination(nil), s.combinations...), nil
}

func (s *Store) CreateCombination(ctx context.Context, c *combination.Combination) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.combinations {
		if strings.EqualFold(existing.Name, c.Name) {
			return fmt.Errorf("%w: %q", combination.ErrDuplicateName, c.Name)
		}
	}
	s.combinations = append([]combination.Combination{*c}, s.combinations...)
	return nil
}

// RecordVisit stores fc and numbers it after the patient's earlier visits
func (s *Store) RecordVisit(ctx context.Context, fc *consultation.FinalizedConsultation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 1
	for _, v := range s.visits {
		if v.PatientID == fc.PatientID {
			n++
		}
	}
	fc.VisitNumber = n
	s.visits = append(s.visits, *fc)
	return nil
}

// Visits returns the recorded visits in recording order
func (s *Store) Visits() []consultation.FinalizedConsultation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]consultation.FinalizedConsultation(nil), s.visits...)
}

// Enqueue appends t to its clinician's queue for the day. A second ticket
// for the same visit is ignored and t is filled from the stored one.
func (s *Store) Enqueue(ctx context.Context, t *dispensing.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	position := 0
	for _, existing := range s.tickets {
		if existing.VisitID == t.VisitID {
			*t = existing
			return nil
		}
		if existing.ClinicianID == t.ClinicianID && existing.Date == t.Date && existing.Position > position {
			position = existing.Position
		}
	}
	t.Position = position + 1
	s.tickets = append(s.tickets, *t)
	return nil
}

// List returns tickets matching filter ordered by date, priority and position
func (s *Store) List(ctx context.Context, filter dispensing.Filter) ([]dispensing.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []dispensing.Ticket
	for _, t := range s.tickets {
		if filter.ClinicianID != "" && t.ClinicianID != filter.ClinicianID {
			continue
		}
		if filter.Date != "" && t.Date != filter.Date {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].Priority != out[j].Priority {
			return out[i].Priority
		}
		return out[i].Position < out[j].Position
	})
	return out, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id string, status dispensing.Status, priority bool) (*dispensing.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tickets {
		if s.tickets[i].ID == id {
			s.tickets[i].Status = status
			s.tickets[i].Priority = priority
			s.tickets[i].UpdatedAt = time.Now().UTC()
			t := s.tickets[i]
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", dispensing.ErrTicketNotFound, id)
}
