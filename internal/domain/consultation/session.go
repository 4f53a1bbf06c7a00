package consultation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/homeopms/go-smartrx/internal/domain/combination"
	"github.com/homeopms/go-smartrx/internal/domain/patternmemory"
	"github.com/homeopms/go-smartrx/internal/domain/recall"
	"github.com/homeopms/go-smartrx/internal/domain/smartparse"
)

var (
	// ErrSessionEnded is returned for any edit after End succeeded
	ErrSessionEnded = errors.New("consultation already ended")
	// ErrEmptyEntry is returned when smart entry text is blank
	ErrEmptyEntry = errors.New("smart entry text is empty")
	// ErrCombinationNotFound is returned when inserting an unknown combination
	ErrCombinationNotFound = errors.New("combination not found")
)

// Store names used in warnings
const (
	StorePatternMemory = "pattern_memory"
	StoreUsedMedicines = "used_medicines"
)

// Warning reports a persistence failure the operator should see. The edit
// itself succeeded and the session keeps the in-memory value.
type Warning struct {
	Store   string `json:"store"`
	Message string `json:"message"`
}

// Outcome is the result of an edit that may consult pattern memory
type Outcome struct {
	Row            Row              `json:"row"`
	Parsed         *smartparse.Line `json:"parsed,omitempty"`
	PatternApplied bool             `json:"pattern_applied"`
	Warnings       []Warning        `json:"warnings,omitempty"`
}

// KeyEvent is a key press in a cell, carrying the cell's current text
type KeyEvent struct {
	Row    int    `json:"row"`
	Column Field  `json:"column"`
	Key    Key    `json:"key"`
	Text   string `json:"text"`
}

// KeyOutcome is the result of HandleKey
type KeyOutcome struct {
	Transition Transition       `json:"transition"`
	Row        *Row             `json:"row,omitempty"`
	Parsed     *smartparse.Line `json:"parsed,omitempty"`
	Warnings   []Warning        `json:"warnings,omitempty"`
}

// SessionParams wires a session to its collaborators
type SessionParams struct {
	ClinicianID   string
	PatientID     string
	AppointmentID string
	Parser        *smartparse.Parser
	Memory        *patternmemory.Memory
	Recall        *recall.Index
	Combinations  *combination.Snapshot
	Catalog       combination.Catalog
	Visits        VisitRecorder
	Logger        *zap.Logger
}

// Session is one consultation. It owns its sheet exclusively; pattern memory
// and the recall index are shared with the clinician's other sessions.
type Session struct {
	ID            string
	ClinicianID   string
	PatientID     string
	AppointmentID string
	StartedAt     time.Time

	parser  *smartparse.Parser
	memory  *patternmemory.Memory
	recall  *recall.Index
	combos  *combination.Snapshot
	catalog combination.Catalog
	visits  VisitRecorder
	logger  *zap.Logger

	mu    sync.Mutex
	sheet *Sheet
	ended bool
}

// NewSession creates a session with an empty sheet
func NewSession(p SessionParams) *Session {
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	if p.Parser == nil {
		p.Parser = smartparse.NewParser(nil)
	}
	if p.Combinations == nil {
		p.Combinations = combination.NewSnapshot(nil)
	}
	id := uuid.New().String()
	return &Session{
		ID:            id,
		ClinicianID:   p.ClinicianID,
		PatientID:     p.PatientID,
		AppointmentID: p.AppointmentID,
		StartedAt:     time.Now().UTC(),
		parser:        p.Parser,
		memory:        p.Memory,
		recall:        p.Recall,
		combos:        p.Combinations,
		catalog:       p.Catalog,
		visits:        p.Visits,
		logger:        p.Logger.With(zap.String("session_id", id), zap.String("clinician_id", p.ClinicianID)),
		sheet:         NewSheet(),
	}
}

// Rows returns a copy of the sheet
func (s *Session) Rows() []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sheet.Rows()
}

// Ended reports whether End has succeeded
func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// Config returns the rule snapshot this session parses with
func (s *Session) Config() *smartparse.Config {
	return s.parser.Config()
}

// AddRow appends a default row
func (s *Session) AddRow() (Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return Row{}, ErrSessionEnded
	}
	return s.sheet.AddRow(), nil
}

// UpdateField replaces one field of row i
func (s *Session) UpdateField(i int, field Field, value string) (Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return Row{}, ErrSessionEnded
	}
	return s.sheet.UpdateField(i, field, value)
}

// RemoveRow deletes row i
func (s *Session) RemoveRow(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return ErrSessionEnded
	}
	return s.sheet.RemoveRow(i)
}

// MoveRow swaps row i with its neighbour
func (s *Session) MoveRow(i int, dir Direction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return ErrSessionEnded
	}
	return s.sheet.MoveRow(i, dir)
}

// Suggest returns autocomplete candidates for the medicine column
func (s *Session) Suggest(query string, limit int) []string {
	names := s.combos.Names()
	if s.recall == nil {
		return recall.Suggest(query, nil, names, limit)
	}
	return s.recall.Suggest(query, names, limit)
}

// SelectSuggestion sets the medicine of row i to name, records the use and
// pre-fills the row from pattern memory when a pattern exists.
func (s *Session) SelectSuggestion(ctx context.Context, i int, name string) (Outcome, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Outcome{}, ErrEmptyEntry
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return Outcome{}, ErrSessionEnded
	}

	row, err := s.sheet.UpdateField(i, FieldMedicine, name)
	if err != nil {
		return Outcome{}, err
	}

	var out Outcome
	if p, ok := s.lookup(name); ok {
		row, _ = s.sheet.ApplyPattern(i, p)
		out.PatternApplied = true
	}
	out.Row = row
	out.Warnings = s.recordUse(ctx, name, out.Warnings)
	return out, nil
}

// SmartEntry parses text into row i. Fields the text names explicitly win;
// for the remembered fields the text leaves at defaults, the medicine's
// pattern is used instead. The resulting pattern is remembered and the
// medicine recorded as used.
func (s *Session) SmartEntry(ctx context.Context, i int, text string) (Outcome, error) {
	if strings.TrimSpace(text) == "" {
		return Outcome{}, ErrEmptyEntry
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return Outcome{}, ErrSessionEnded
	}
	if _, err := s.sheet.Row(i); err != nil {
		return Outcome{}, err
	}
	return s.smartEntry(ctx, i, text), nil
}

func (s *Session) smartEntry(ctx context.Context, i int, text string) Outcome {
	line := s.parser.Parse(text)
	parsed := line

	var out Outcome
	if line.Medicine != "" {
		if p, ok := s.lookup(line.Medicine); ok {
			line = mergePattern(line, p)
			out.PatternApplied = true
		}
	}

	row, _ := s.sheet.ApplyLine(i, line)
	out.Row = row
	out.Parsed = &parsed

	if line.Medicine == "" {
		return out
	}
	if s.memory != nil {
		if err := s.memory.Upsert(ctx, row.Pattern()); err != nil {
			out.Warnings = append(out.Warnings, Warning{Store: StorePatternMemory, Message: err.Error()})
		}
	}
	out.Warnings = s.recordUse(ctx, line.Medicine, out.Warnings)
	return out
}

func mergePattern(line smartparse.Line, p patternmemory.Pattern) smartparse.Line {
	if !line.Matched.Has(smartparse.MatchPotency) {
		line.Potency = p.Potency
	}
	if !line.Matched.Has(smartparse.MatchQuantity) && p.Quantity != "" {
		line.Quantity = p.Quantity
	}
	if !line.Matched.Has(smartparse.MatchDosePattern) && p.DosePattern != "" {
		line.DosePattern = p.DosePattern
	}
	if !line.Matched.Has(smartparse.MatchFrequency) && p.Frequency != "" {
		line.Frequency = p.Frequency
	}
	if !line.Matched.Has(smartparse.MatchDuration) && p.Duration != "" {
		line.Duration = p.Duration
		if _, days, ok := smartparse.ParseDuration(p.Duration); ok {
			line.DurationDays = days
		}
	}
	return line
}

// HandleKey writes the cell text, then applies the key's transition:
// smart entry, a new row, or a focus move.
func (s *Session) HandleKey(ctx context.Context, ev KeyEvent) (KeyOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return KeyOutcome{}, ErrSessionEnded
	}

	row, err := s.sheet.Row(ev.Row)
	if err != nil {
		return KeyOutcome{}, err
	}
	if columnIndex(ev.Column) >= 0 {
		current, _ := row.Get(ev.Column)
		if current != ev.Text {
			if _, err := s.sheet.UpdateField(ev.Row, ev.Column, ev.Text); err != nil {
				return KeyOutcome{}, err
			}
		}
	}

	t := NextFocus(Focus{Row: ev.Row, Column: ev.Column}, ev.Key, ev.Text, s.sheet.Len())
	out := KeyOutcome{Transition: t}
	switch t.Action {
	case ActionSmartEntry:
		res := s.smartEntry(ctx, ev.Row, ev.Text)
		out.Row = &res.Row
		out.Parsed = res.Parsed
		out.Warnings = res.Warnings
	case ActionAppendRow:
		r := s.sheet.AddRow()
		out.Row = &r
	}
	return out, nil
}

// InsertCombination makes row i the saved combination called name
func (s *Session) InsertCombination(i int, name string) (Row, error) {
	c, ok := s.combos.Find(name)
	if !ok {
		return Row{}, fmt.Errorf("%w: %q", ErrCombinationNotFound, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return Row{}, ErrSessionEnded
	}
	return s.sheet.InsertCombination(i, c)
}

// SaveNewCombination saves a combination to the catalog unless one with the
// same name exists, then inserts it into row i
func (s *Session) SaveNewCombination(ctx context.Context, i int, name, content string) (Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return Row{}, ErrSessionEnded
	}
	if _, err := s.sheet.Row(i); err != nil {
		return Row{}, err
	}

	c, ok := s.combos.Find(strings.TrimSpace(name))
	if !ok {
		created, err := combination.New(name, content)
		if err != nil {
			return Row{}, err
		}
		if s.catalog != nil {
			if err := s.catalog.CreateCombination(ctx, created); err != nil {
				return Row{}, fmt.Errorf("save combination: %w", err)
			}
		}
		s.combos.Add(*created)
		c = *created
	}
	return s.sheet.InsertCombination(i, c)
}

// RemoveCombination clears the combination of row i
func (s *Session) RemoveCombination(i int) (Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return Row{}, ErrSessionEnded
	}
	return s.sheet.RemoveCombination(i)
}

// End finalizes the consultation. Every row with a medicine is remembered in
// pattern memory and handed to the visit recorder; rows without a medicine
// are dropped. If recording fails the session stays open and can retry.
func (s *Session) End(ctx context.Context, notes ClinicalNotes) (*FinalizedConsultation, []Warning, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return nil, nil, ErrSessionEnded
	}

	var (
		rows     []Row
		warnings []Warning
	)
	for _, r := range s.sheet.Rows() {
		if strings.TrimSpace(r.Medicine) == "" {
			continue
		}
		if s.memory != nil {
			if err := s.memory.Upsert(ctx, r.Pattern()); err != nil {
				warnings = append(warnings, Warning{Store: StorePatternMemory, Message: err.Error()})
			}
		}
		r.State = RowCommitted
		rows = append(rows, r)
	}

	fc := &FinalizedConsultation{
		ID:            uuid.New().String(),
		SessionID:     s.ID,
		ClinicianID:   s.ClinicianID,
		PatientID:     s.PatientID,
		AppointmentID: s.AppointmentID,
		Notes:         notes.normalized(),
		Rows:          rows,
		FinalizedAt:   time.Now().UTC(),
	}
	if s.visits != nil {
		if err := s.visits.RecordVisit(ctx, fc); err != nil {
			s.logger.Error("failed to record visit", zap.Error(err))
			return nil, warnings, fmt.Errorf("record visit: %w", err)
		}
	}

	s.sheet.commit()
	s.ended = true
	s.logger.Info("consultation finalized",
		zap.String("visit_id", fc.ID),
		zap.Int("rows", len(rows)),
	)
	return fc, warnings, nil
}

func (s *Session) lookup(medicine string) (patternmemory.Pattern, bool) {
	if s.memory == nil {
		return patternmemory.Pattern{}, false
	}
	return s.memory.Lookup(medicine)
}

func (s *Session) recordUse(ctx context.Context, name string, warnings []Warning) []Warning {
	if s.recall == nil {
		return warnings
	}
	if err := s.recall.RecordUse(ctx, name); err != nil {
		warnings = append(warnings, Warning{Store: StoreUsedMedicines, Message: err.Error()})
	}
	return warnings
}
