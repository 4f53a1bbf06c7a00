// Package dispensing models the pharmacy queue fed by finalized consultations.
package dispensing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/homeopms/go-smartrx/internal/domain/consultation"
)

var (
	// ErrTicketNotFound is returned for an unknown ticket ID
	ErrTicketNotFound = errors.New("pharmacy ticket not found")
	// ErrInvalidStatus is returned for a status outside the queue lifecycle
	ErrInvalidStatus = errors.New("invalid ticket status")
)

// Status is a ticket's place in the pharmacy workflow
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusSkipped    Status = "skipped"
)

// ParseStatus validates s
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusWaiting, StatusInProgress, StatusCompleted, StatusSkipped:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Item is one line the pharmacy prepares
type Item struct {
	Medicine      string `json:"medicine"`
	Potency       string `json:"potency,omitempty"`
	Quantity      string `json:"quantity"`
	DoseForm      string `json:"dose_form"`
	DosePattern   string `json:"dose_pattern"`
	Duration      string `json:"duration"`
	Bottles       int    `json:"bottles"`
	IsCombination bool   `json:"is_combination,omitempty"`
	Content       string `json:"content,omitempty"`
	Instructions  string `json:"instructions,omitempty"`
}

// Ticket is a queued dispensing job for one visit
type Ticket struct {
	ID          string    `json:"id"`
	VisitID     string    `json:"visit_id"`
	ClinicianID string    `json:"clinician_id"`
	PatientID   string    `json:"patient_id"`
	Date        string    `json:"date"`
	Position    int       `json:"position"`
	Status      Status    `json:"status"`
	Priority    bool      `json:"priority"`
	Summary     string    `json:"summary"`
	Items       []Item    `json:"items"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Repository stores the queue. Enqueue assigns Position as one more than the
// number of tickets already queued for the same clinician and date.
type Repository interface {
	Enqueue(ctx context.Context, t *Ticket) error
	List(ctx context.Context, filter Filter) ([]Ticket, error)
	UpdateStatus(ctx context.Context, id string, status Status, priority bool) (*Ticket, error)
}

// Filter narrows List
type Filter struct {
	ClinicianID string
	Date        string
	Status      Status
}

// NewTicket builds a waiting ticket from a finalized consultation event
func NewTicket(data *consultation.FinalizedData) *Ticket {
	items := make([]Item, 0, len(data.Rows))
	for _, r := range data.Rows {
		items = append(items, Item{
			Medicine:      r.Medicine,
			Potency:       r.Potency,
			Quantity:      r.Quantity,
			DoseForm:      r.DoseForm,
			DosePattern:   r.DosePattern,
			Duration:      r.Duration,
			Bottles:       r.Bottles,
			IsCombination: r.IsCombination,
			Content:       r.CombinationContent,
			Instructions:  r.Instructions,
		})
	}
	now := time.Now().UTC()
	return &Ticket{
		ID:          uuid.New().String(),
		VisitID:     data.VisitID,
		ClinicianID: data.ClinicianID,
		PatientID:   data.PatientID,
		Date:        data.FinalizedAt.Format(time.DateOnly),
		Status:      StatusWaiting,
		Summary:     Summarize(data.Rows),
		Items:       items,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Summarize renders rows as "Arnica 200, Rhus tox 200"
func Summarize(rows []consultation.Row) string {
	parts := make([]string, 0, len(rows))
	for _, r := range rows {
		name := r.Medicine
		if r.IsCombination && r.CombinationName != "" {
			name = r.CombinationName
		}
		if name == "" {
			continue
		}
		if r.Potency != "" && !r.IsCombination {
			name += " " + r.Potency
		}
		parts = append(parts, name)
	}
	return strings.Join(parts, ", ")
}
