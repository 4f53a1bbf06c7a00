package idempotency

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore keeps inbox entries in process memory
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*InboxEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*InboxEntry), now: time.Now}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (*InboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *MemoryStore) Start(ctx context.Context, key, handlerName string, payload json.RawMessage, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if e, ok := s.entries[key]; ok {
		if e.Status != StatusRecoverable {
			return ErrDuplicateMessage
		}
		e.Status = StatusStarted
		e.UpdatedAt = now
		return nil
	}
	s.entries[key] = &InboxEntry{
		IdempotencyKey: key,
		HandlerName:    handlerName,
		Status:         StatusStarted,
		Payload:        payload,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      &expiresAt,
	}
	return nil
}

func (s *MemoryStore) Mark(ctx context.Context, key string, status Status, result json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return ErrNotFound
	}
	e.Status = status
	e.Result = result
	e.UpdatedAt = s.now()
	return nil
}
