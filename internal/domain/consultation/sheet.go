package consultation

import (
	"fmt"

	"github.com/homeopms/go-smartrx/internal/domain/combination"
	"github.com/homeopms/go-smartrx/internal/domain/patternmemory"
	"github.com/homeopms/go-smartrx/internal/domain/smartparse"
)

// Direction is the way MoveRow shifts a row
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Sheet is the ordered list of rows for one consultation.
// It is not safe for concurrent use; Session serializes access.
// Every method taking an index returns ErrRowIndex without mutating
// anything when the index is outside the sheet.
type Sheet struct {
	rows []Row
}

// NewSheet returns an empty sheet
func NewSheet() *Sheet {
	return &Sheet{}
}

// Len returns the number of rows
func (s *Sheet) Len() int { return len(s.rows) }

// Rows returns a copy of the rows in order
func (s *Sheet) Rows() []Row {
	return append([]Row(nil), s.rows...)
}

// Row returns the row at index i
func (s *Sheet) Row(i int) (Row, error) {
	if err := s.check(i); err != nil {
		return Row{}, err
	}
	return s.rows[i], nil
}

// AddRow appends a row with field defaults and returns it
func (s *Sheet) AddRow() Row {
	r := NewRow()
	s.rows = append(s.rows, r)
	return r
}

// UpdateField replaces one field of row i
func (s *Sheet) UpdateField(i int, field Field, value string) (Row, error) {
	if err := s.check(i); err != nil {
		return Row{}, err
	}
	if err := s.rows[i].Set(field, value); err != nil {
		return Row{}, err
	}
	return s.rows[i], nil
}

// RemoveRow deletes row i; later rows shift down by one
func (s *Sheet) RemoveRow(i int) error {
	if err := s.check(i); err != nil {
		return err
	}
	s.rows = append(s.rows[:i], s.rows[i+1:]...)
	return nil
}

// MoveRow swaps row i with its neighbour in dir. Moving past either end is a no-op.
func (s *Sheet) MoveRow(i int, dir Direction) error {
	if err := s.check(i); err != nil {
		return err
	}
	var j int
	switch dir {
	case DirectionUp:
		j = i - 1
	case DirectionDown:
		j = i + 1
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDirection, dir)
	}
	if j < 0 || j >= len(s.rows) {
		return nil
	}
	s.rows[i], s.rows[j] = s.rows[j], s.rows[i]
	return nil
}

// ApplyLine merges a parsed line into row i
func (s *Sheet) ApplyLine(i int, line smartparse.Line) (Row, error) {
	if err := s.check(i); err != nil {
		return Row{}, err
	}
	s.rows[i].ApplyLine(line)
	return s.rows[i], nil
}

// ApplyPattern pre-fills row i from pattern memory
func (s *Sheet) ApplyPattern(i int, p patternmemory.Pattern) (Row, error) {
	if err := s.check(i); err != nil {
		return Row{}, err
	}
	s.rows[i].ApplyPattern(p)
	return s.rows[i], nil
}

// InsertCombination turns row i into a combination line named after c
func (s *Sheet) InsertCombination(i int, c combination.Combination) (Row, error) {
	if err := s.check(i); err != nil {
		return Row{}, err
	}
	r := &s.rows[i]
	r.IsCombination = true
	r.CombinationName = c.Name
	r.CombinationContent = c.Content
	r.Medicine = c.Name
	r.State = RowResolved
	return *r, nil
}

// RemoveCombination clears the combination of row i, leaving the medicine
// text in place as free text
func (s *Sheet) RemoveCombination(i int) (Row, error) {
	if err := s.check(i); err != nil {
		return Row{}, err
	}
	r := &s.rows[i]
	r.IsCombination = false
	r.CombinationName = ""
	r.CombinationContent = ""
	if r.State != RowEmpty {
		r.State = RowEditing
	}
	return *r, nil
}

// commit marks every row committed and returns the rows
func (s *Sheet) commit() []Row {
	for i := range s.rows {
		s.rows[i].State = RowCommitted
	}
	return s.Rows()
}

func (s *Sheet) check(i int) error {
	if i < 0 || i >= len(s.rows) {
		return fmt.Errorf("%w: %d (rows: %d)", ErrRowIndex, i, len(s.rows))
	}
	return nil
}
