// Package combination models named bundles of medicines that are prescribed
// as a single line.
package combination

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidCombination is returned when a combination has no name or content
	ErrInvalidCombination = errors.New("combination needs a name and content")
	// ErrDuplicateName is returned by catalogs when the name is already saved
	ErrDuplicateName = errors.New("combination name already exists")
)

// Combination is a saved medicine bundle
type Combination struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// New builds a combination with a fresh ID
func New(name, content string) (*Combination, error) {
	name = strings.TrimSpace(name)
	content = strings.TrimSpace(content)
	if name == "" || content == "" {
		return nil, ErrInvalidCombination
	}
	return &Combination{
		ID:        uuid.New().String(),
		Name:      name,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Catalog is the clinic's persisted combination list, newest first
type Catalog interface {
	ListCombinations(ctx context.Context) ([]Combination, error)
	CreateCombination(ctx context.Context, c *Combination) error
}

// Snapshot is a session's view of the catalog taken at session start
type Snapshot struct {
	mu    sync.RWMutex
	items []Combination
}

// NewSnapshot wraps items
func NewSnapshot(items []Combination) *Snapshot {
	return &Snapshot{items: append([]Combination(nil), items...)}
}

// LoadSnapshot reads the catalog once
func LoadSnapshot(ctx context.Context, catalog Catalog) (*Snapshot, error) {
	items, err := catalog.ListCombinations(ctx)
	if err != nil {
		return nil, err
	}
	return NewSnapshot(items), nil
}

// Names returns the combination names in catalog order
func (s *Snapshot) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.items))
	for _, c := range s.items {
		names = append(names, c.Name)
	}
	return names
}

// Find returns the combination named name, ignoring case
func (s *Snapshot) Find(name string) (Combination, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.items {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Combination{}, false
}

// Add prepends c unless a combination with the same name exists.
// It reports whether c was added.
func (s *Snapshot) Add(c Combination) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.items {
		if strings.EqualFold(existing.Name, c.Name) {
			return false
		}
	}
	s.items = append([]Combination{c}, s.items...)
	return true
}

// All returns a copy of the snapshot
func (s *Snapshot) All() []Combination {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Combination(nil), s.items...)
}
