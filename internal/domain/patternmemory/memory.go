// Package patternmemory remembers the last dosing choices a clinician made
// for each medicine.
package patternmemory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/homeopms/go-smartrx/internal/domain/smartparse"
)

// ErrNotPersisted is returned when the in-memory table changed but the store write failed
var ErrNotPersisted = errors.New("pattern memory not persisted")

// Pattern is the remembered dosing for one medicine
type Pattern struct {
	Medicine    string `json:"medicine"`
	Potency     string `json:"potency"`
	Quantity    string `json:"quantity"`
	DosePattern string `json:"dose_pattern"`
	Frequency   string `json:"frequency"`
	Duration    string `json:"duration"`
}

// Store persists a clinician's pattern table as a whole
type Store interface {
	LoadPatterns(ctx context.Context, clinicianID string) ([]Pattern, error)
	SavePatterns(ctx context.Context, clinicianID string, patterns []Pattern) error
}

// Memory is one clinician's pattern table. It is safe for concurrent use;
// writes are serialized and each persists the full table.
type Memory struct {
	clinicianID string
	store       Store
	logger      *zap.Logger

	mu       sync.RWMutex
	patterns []Pattern

	persistMu sync.Mutex
}

// Load reads the clinician's table from store
func Load(ctx context.Context, clinicianID string, store Store, logger *zap.Logger) (*Memory, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	patterns, err := store.LoadPatterns(ctx, clinicianID)
	if err != nil {
		return nil, fmt.Errorf("load patterns for %s: %w", clinicianID, err)
	}
	return &Memory{
		clinicianID: clinicianID,
		store:       store,
		logger:      logger,
		patterns:    patterns,
	}, nil
}

// Lookup returns the remembered pattern for medicine, ignoring case
func (m *Memory) Lookup(medicine string) (Pattern, bool) {
	if medicine == "" {
		return Pattern{}, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.patterns {
		if strings.EqualFold(p.Medicine, medicine) {
			return p, true
		}
	}
	return Pattern{}, false
}

// Patterns returns a copy of the table
func (m *Memory) Patterns() []Pattern {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Pattern(nil), m.patterns...)
}

// Upsert replaces the pattern for p.Medicine (ignoring case) or appends it,
// then persists the whole table. An empty medicine is a no-op. When the store
// write fails the in-memory table keeps the new value and the returned error
// wraps ErrNotPersisted.
func (m *Memory) Upsert(ctx context.Context, p Pattern) error {
	if p.Medicine == "" {
		return nil
	}
	p = normalize(p)

	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	replaced := false
	for i := range m.patterns {
		if strings.EqualFold(m.patterns[i].Medicine, p.Medicine) {
			m.patterns[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		m.patterns = append(m.patterns, p)
	}
	snapshot := append([]Pattern(nil), m.patterns...)
	m.mu.Unlock()

	if err := m.store.SavePatterns(ctx, m.clinicianID, snapshot); err != nil {
		m.logger.Warn("pattern memory write failed",
			zap.String("clinician_id", m.clinicianID),
			zap.String("medicine", p.Medicine),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w", ErrNotPersisted, err)
	}
	return nil
}

func normalize(p Pattern) Pattern {
	if p.DosePattern == "" {
		p.DosePattern = smartparse.DefaultDosePattern
	}
	if p.Frequency == "" {
		p.Frequency = smartparse.DefaultFrequency
	}
	if p.Duration == "" {
		p.Duration = smartparse.DefaultDuration
	}
	return p
}
