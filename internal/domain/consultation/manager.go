package consultation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/homeopms/go-smartrx/internal/domain/combination"
	"github.com/homeopms/go-smartrx/internal/domain/patternmemory"
	"github.com/homeopms/go-smartrx/internal/domain/recall"
	"github.com/homeopms/go-smartrx/internal/domain/smartparse"
)

var (
	// ErrSessionNotFound is returned for an unknown session ID
	ErrSessionNotFound = errors.New("consultation session not found")
	// ErrClinicianRequired is returned when a session is started without a clinician
	ErrClinicianRequired = errors.New("clinician_id is required")
)

// Dependencies are the stores a Manager hands to its sessions
type Dependencies struct {
	Config       smartparse.Store
	Patterns     patternmemory.Store
	Recall       recall.Store
	Combinations combination.Catalog
	Visits       VisitRecorder
}

// StartRequest identifies the consultation being opened
type StartRequest struct {
	ClinicianID   string `json:"clinician_id"`
	PatientID     string `json:"patient_id"`
	AppointmentID string `json:"appointment_id,omitempty"`
}

// Manager opens sessions and keeps one pattern memory and recall index per
// clinician, shared by all of that clinician's sessions.
type Manager struct {
	deps     Dependencies
	settings *smartparse.Settings
	logger   *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	lastSeen map[string]time.Time
	memories map[string]*patternmemory.Memory
	indexes  map[string]*recall.Index
	now      func() time.Time
}

// NewManager creates a session manager
func NewManager(deps Dependencies, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		deps:     deps,
		settings: smartparse.NewSettings(deps.Config),
		logger:   logger,
		sessions: make(map[string]*Session),
		lastSeen: make(map[string]time.Time),
		memories: make(map[string]*patternmemory.Memory),
		indexes:  make(map[string]*recall.Index),
		now:      time.Now,
	}
}

// Start opens a session. The rule tables and combination list are read once
// here; later settings changes apply to sessions started afterwards.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*Session, error) {
	if req.ClinicianID == "" {
		return nil, ErrClinicianRequired
	}

	cfg, err := m.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	combos, err := combination.LoadSnapshot(ctx, m.deps.Combinations)
	if err != nil {
		return nil, fmt.Errorf("load combinations: %w", err)
	}
	memory, err := m.Memory(ctx, req.ClinicianID)
	if err != nil {
		return nil, err
	}
	index, err := m.Index(ctx, req.ClinicianID)
	if err != nil {
		return nil, err
	}

	s := NewSession(SessionParams{
		ClinicianID:   req.ClinicianID,
		PatientID:     req.PatientID,
		AppointmentID: req.AppointmentID,
		Parser:        smartparse.NewParser(cfg),
		Memory:        memory,
		Recall:        index,
		Combinations:  combos,
		Catalog:       m.deps.Combinations,
		Visits:        m.deps.Visits,
		Logger:        m.logger,
	})

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.lastSeen[s.ID] = m.now()
	m.mu.Unlock()

	m.logger.Info("consultation started",
		zap.String("session_id", s.ID),
		zap.String("clinician_id", req.ClinicianID),
		zap.String("patient_id", req.PatientID),
	)
	return s, nil
}

// Get returns an open session and marks it as recently used
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	m.lastSeen[id] = m.now()
	return s, nil
}

// Remove forgets a session. It reports whether the session was open.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	delete(m.lastSeen, id)
	return ok
}

// Discard drops an open session without recording a visit
func (m *Manager) Discard(id string) error {
	if !m.Remove(id) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	m.logger.Info("consultation discarded", zap.String("session_id", id))
	return nil
}

// ExpireIdle drops sessions not touched for longer than maxIdle and returns
// their IDs. Unsaved rows of an expired session are lost.
func (m *Manager) ExpireIdle(maxIdle time.Duration) []string {
	cutoff := m.now().Add(-maxIdle)

	m.mu.Lock()
	var expired []string
	for id, seen := range m.lastSeen {
		if seen.Before(cutoff) {
			expired = append(expired, id)
			delete(m.sessions, id)
			delete(m.lastSeen, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		m.logger.Warn("consultation expired while idle",
			zap.String("session_id", id),
			zap.Duration("max_idle", maxIdle))
	}
	return expired
}

// RunExpiry calls ExpireIdle every interval until ctx is done. onExpire,
// when set, is called after each sweep that dropped sessions.
func (m *Manager) RunExpiry(ctx context.Context, interval, maxIdle time.Duration, onExpire func(n int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if expired := m.ExpireIdle(maxIdle); len(expired) > 0 && onExpire != nil {
				onExpire(len(expired))
			}
		}
	}
}

// Active returns the number of open sessions. Ended sessions are removed by
// their caller, so the count is the map size.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Memory returns the clinician's shared pattern memory, loading it on first use
func (m *Manager) Memory(ctx context.Context, clinicianID string) (*patternmemory.Memory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mem, ok := m.memories[clinicianID]; ok {
		return mem, nil
	}
	mem, err := patternmemory.Load(ctx, clinicianID, m.deps.Patterns, m.logger)
	if err != nil {
		return nil, err
	}
	m.memories[clinicianID] = mem
	return mem, nil
}

// Index returns the clinician's shared recall index, loading it on first use
func (m *Manager) Index(ctx context.Context, clinicianID string) (*recall.Index, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if idx, ok := m.indexes[clinicianID]; ok {
		return idx, nil
	}
	idx, err := recall.Load(ctx, clinicianID, m.deps.Recall, m.logger)
	if err != nil {
		return nil, err
	}
	m.indexes[clinicianID] = idx
	return idx, nil
}

// Settings returns the rule-table settings service
func (m *Manager) Settings() *smartparse.Settings {
	return m.settings
}
