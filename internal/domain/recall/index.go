// Package recall keeps the clinician's recently used medicine names and
// answers autocomplete queries against them.
package recall

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const (
	// MaxUsedMedicines caps the recency list
	MaxUsedMedicines = 50
	// DefaultSuggestLimit is the number of suggestions returned when no limit is given
	DefaultSuggestLimit = 10
	// MaxSuggestLimit bounds a single suggestion request
	MaxSuggestLimit = 100
)

// ErrNotPersisted is returned when the recency list changed but the store write failed
var ErrNotPersisted = errors.New("used medicines not persisted")

// Store persists a clinician's recency list, most recent first
type Store interface {
	LoadUsedMedicines(ctx context.Context, clinicianID string) ([]string, error)
	SaveUsedMedicines(ctx context.Context, clinicianID string, names []string) error
}

// Index is one clinician's recency list. It is safe for concurrent use.
type Index struct {
	clinicianID string
	store       Store
	logger      *zap.Logger

	mu   sync.RWMutex
	used []string

	persistMu sync.Mutex
}

// Load reads the clinician's recency list from store
func Load(ctx context.Context, clinicianID string, store Store, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	used, err := store.LoadUsedMedicines(ctx, clinicianID)
	if err != nil {
		return nil, fmt.Errorf("load used medicines for %s: %w", clinicianID, err)
	}
	if len(used) > MaxUsedMedicines {
		used = used[:MaxUsedMedicines]
	}
	return &Index{
		clinicianID: clinicianID,
		store:       store,
		logger:      logger,
		used:        used,
	}, nil
}

// Used returns a copy of the recency list
func (x *Index) Used() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return append([]string(nil), x.used...)
}

// RecordUse prepends name unless an identical (case-sensitive) entry exists,
// caps the list and persists it. An empty name is a no-op.
func (x *Index) RecordUse(ctx context.Context, name string) error {
	if name == "" {
		return nil
	}

	x.persistMu.Lock()
	defer x.persistMu.Unlock()

	x.mu.Lock()
	for _, u := range x.used {
		if u == name {
			x.mu.Unlock()
			return nil
		}
	}
	next := make([]string, 0, len(x.used)+1)
	next = append(next, name)
	next = append(next, x.used...)
	if len(next) > MaxUsedMedicines {
		next = next[:MaxUsedMedicines]
	}
	x.used = next
	snapshot := append([]string(nil), next...)
	x.mu.Unlock()

	if err := x.store.SaveUsedMedicines(ctx, x.clinicianID, snapshot); err != nil {
		x.logger.Warn("used medicines write failed",
			zap.String("clinician_id", x.clinicianID),
			zap.String("medicine", name),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w", ErrNotPersisted, err)
	}
	return nil
}

// Suggest filters the recency list and combinationNames against query
func (x *Index) Suggest(query string, combinationNames []string, limit int) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return Suggest(query, x.used, combinationNames, limit)
}

// Suggest returns entries of used followed by combinationNames whose text
// contains query, ignoring case, truncated to limit. Entries are not merged
// across the two lists. An empty query yields nothing. Limits above
// MaxSuggestLimit are clamped.
func Suggest(query string, used, combinationNames []string, limit int) []string {
	if query == "" {
		return nil
	}
	if limit <= 0 {
		limit = DefaultSuggestLimit
	}
	if limit > MaxSuggestLimit {
		limit = MaxSuggestLimit
	}
	q := strings.ToLower(query)

	var out []string
	for _, list := range [][]string{used, combinationNames} {
		for _, name := range list {
			if len(out) == limit {
				return out
			}
			if strings.Contains(strings.ToLower(name), q) {
				out = append(out, name)
			}
		}
	}
	return out
}
