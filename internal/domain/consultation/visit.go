package consultation

import (
	"context"
	"strings"
	"time"
)

// ClinicalNotes are the free-text fields captured alongside the prescription
type ClinicalNotes struct {
	ChiefComplaint     string     `json:"chief_complaint"`
	CaseText           string     `json:"case_text"`
	Diagnosis          string     `json:"diagnosis"`
	Advice             string     `json:"advice"`
	TestsRequired      string     `json:"tests_required"`
	NextVisit          *time.Time `json:"next_visit,omitempty"`
	Prognosis          string     `json:"prognosis"`
	RemarksToFrontdesk string     `json:"remarks_to_frontdesk"`
}

// normalized fills the chief complaint from the first line of the case text
func (n ClinicalNotes) normalized() ClinicalNotes {
	if n.ChiefComplaint == "" && n.CaseText != "" {
		first, _, _ := strings.Cut(n.CaseText, "\n")
		n.ChiefComplaint = strings.TrimSpace(first)
	}
	return n
}

// FinalizedConsultation is what the visit store receives when a consultation ends
type FinalizedConsultation struct {
	ID            string        `json:"id"`
	SessionID     string        `json:"session_id"`
	ClinicianID   string        `json:"clinician_id"`
	PatientID     string        `json:"patient_id"`
	AppointmentID string        `json:"appointment_id,omitempty"`
	VisitNumber   int           `json:"visit_number"`
	Notes         ClinicalNotes `json:"notes"`
	Rows          []Row         `json:"rows"`
	FinalizedAt   time.Time     `json:"finalized_at"`
}

// VisitRecorder persists finalized consultations. Implementations may assign
// VisitNumber.
type VisitRecorder interface {
	RecordVisit(ctx context.Context, fc *FinalizedConsultation) error
}
