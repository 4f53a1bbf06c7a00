// Package consultation holds the prescription sheet a clinician edits during
// one consultation, the keyboard protocol that drives it, and the session that
// ties the sheet to the parser, pattern memory and recall index.
package consultation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/homeopms/go-smartrx/internal/domain/patternmemory"
	"github.com/homeopms/go-smartrx/internal/domain/smartparse"
)

var (
	// ErrRowIndex is returned for a row index outside the sheet
	ErrRowIndex = errors.New("row index out of range")
	// ErrUnknownField is returned for a field name the row does not have
	ErrUnknownField = errors.New("unknown row field")
	// ErrCombinationRow is returned when editing the medicine of a combination row
	ErrCombinationRow = errors.New("medicine is set by the combination")
	// ErrInvalidDirection is returned by MoveRow for anything but up or down
	ErrInvalidDirection = errors.New("invalid move direction")
)

// Field names a row column
type Field string

const (
	FieldMedicine     Field = "medicine"
	FieldPotency      Field = "potency"
	FieldQuantity     Field = "quantity"
	FieldDoseForm     Field = "dose_form"
	FieldDosePattern  Field = "dose_pattern"
	FieldFrequency    Field = "frequency"
	FieldDuration     Field = "duration"
	FieldBottles      Field = "bottles"
	FieldInstructions Field = "instructions"
)

// Columns is the keyboard traversal order
var Columns = []Field{
	FieldMedicine,
	FieldPotency,
	FieldQuantity,
	FieldDoseForm,
	FieldDosePattern,
	FieldFrequency,
	FieldDuration,
	FieldBottles,
}

func columnIndex(f Field) int {
	for i, c := range Columns {
		if c == f {
			return i
		}
	}
	return -1
}

// RowState tracks how far a row has progressed
type RowState string

const (
	RowEmpty     RowState = "empty"
	RowEditing   RowState = "editing"
	RowResolved  RowState = "resolved"
	RowCommitted RowState = "committed"
)

// Row is one prescription line
type Row struct {
	ID                 string   `json:"id"`
	Medicine           string   `json:"medicine"`
	Potency            string   `json:"potency"`
	Quantity           string   `json:"quantity"`
	DoseForm           string   `json:"dose_form"`
	DosePattern        string   `json:"dose_pattern"`
	Frequency          string   `json:"frequency"`
	Duration           string   `json:"duration"`
	DurationDays       int      `json:"duration_days"`
	Bottles            int      `json:"bottles"`
	IsCombination      bool     `json:"is_combination"`
	CombinationName    string   `json:"combination_name,omitempty"`
	CombinationContent string   `json:"combination_content,omitempty"`
	Instructions       string   `json:"instructions,omitempty"`
	State              RowState `json:"state"`
}

// NewRow returns a row with the standard field defaults
func NewRow() Row {
	return Row{
		ID:           uuid.New().String(),
		Quantity:     smartparse.DefaultQuantity,
		DoseForm:     smartparse.DefaultDoseForm,
		DosePattern:  smartparse.DefaultDosePattern,
		Frequency:    smartparse.DefaultFrequency,
		Duration:     smartparse.DefaultDuration,
		DurationDays: smartparse.DefaultDurationDays,
		Bottles:      smartparse.DefaultBottles,
		State:        RowEmpty,
	}
}

// Get returns the text value of field
func (r *Row) Get(field Field) (string, error) {
	switch field {
	case FieldMedicine:
		return r.Medicine, nil
	case FieldPotency:
		return r.Potency, nil
	case FieldQuantity:
		return r.Quantity, nil
	case FieldDoseForm:
		return r.DoseForm, nil
	case FieldDosePattern:
		return r.DosePattern, nil
	case FieldFrequency:
		return r.Frequency, nil
	case FieldDuration:
		return r.Duration, nil
	case FieldBottles:
		return strconv.Itoa(r.Bottles), nil
	case FieldInstructions:
		return r.Instructions, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, field)
}

// Set replaces one field. Bottles below one or unparsable become one.
// A duration the parser understands also updates DurationDays.
func (r *Row) Set(field Field, value string) error {
	switch field {
	case FieldMedicine:
		if r.IsCombination {
			return ErrCombinationRow
		}
		r.Medicine = value
		if r.State == RowEmpty && strings.TrimSpace(value) != "" {
			r.State = RowEditing
		}
	case FieldPotency:
		r.Potency = value
	case FieldQuantity:
		r.Quantity = value
	case FieldDoseForm:
		r.DoseForm = value
	case FieldDosePattern:
		r.DosePattern = value
	case FieldFrequency:
		r.Frequency = value
	case FieldDuration:
		r.Duration = value
		if _, days, ok := smartparse.ParseDuration(value); ok {
			r.DurationDays = days
		}
	case FieldBottles:
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 1 {
			n = 1
		}
		r.Bottles = n
	case FieldInstructions:
		r.Instructions = value
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return nil
}

// ApplyLine merges the parser's non-empty fields into the row
func (r *Row) ApplyLine(line smartparse.Line) {
	if line.Medicine != "" && !r.IsCombination {
		r.Medicine = line.Medicine
	}
	if line.Potency != "" {
		r.Potency = line.Potency
	}
	if line.Quantity != "" {
		r.Quantity = line.Quantity
	}
	if line.DoseForm != "" {
		r.DoseForm = line.DoseForm
	}
	if line.DosePattern != "" {
		r.DosePattern = line.DosePattern
	}
	if line.Frequency != "" {
		r.Frequency = line.Frequency
	}
	if line.Duration != "" {
		r.Duration = line.Duration
		r.DurationDays = line.DurationDays
	}
	if line.Bottles > 0 {
		r.Bottles = line.Bottles
	}
	if r.Medicine != "" {
		r.State = RowResolved
	}
}

// ApplyPattern copies the five remembered fields verbatim
func (r *Row) ApplyPattern(p patternmemory.Pattern) {
	r.Potency = p.Potency
	r.Quantity = p.Quantity
	r.DosePattern = p.DosePattern
	r.Frequency = p.Frequency
	r.Duration = p.Duration
	if _, days, ok := smartparse.ParseDuration(p.Duration); ok {
		r.DurationDays = days
	}
	if r.Medicine != "" {
		r.State = RowResolved
	}
}

// Pattern returns the fields pattern memory remembers for this row
func (r *Row) Pattern() patternmemory.Pattern {
	return patternmemory.Pattern{
		Medicine:    r.Medicine,
		Potency:     r.Potency,
		Quantity:    r.Quantity,
		DosePattern: r.DosePattern,
		Frequency:   r.Frequency,
		Duration:    r.Duration,
	}
}
