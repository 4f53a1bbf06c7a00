package consultation

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of domain event
type EventType string

const (
	EventConsultationFinalized EventType = "ConsultationFinalized"
)

// AggregateType is the aggregate name stamped on consultation events
const AggregateType = "Consultation"

// Event represents a domain event
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     EventType       `json:"event_type"`
	EventData     json.RawMessage `json:"event_data"`
	Version       int             `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	ClinicianID   string          `json:"clinician_id,omitempty"`
	PatientID     string          `json:"patient_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// NewEvent creates a new event
func NewEvent(aggregateID string, eventType EventType, data interface{}) (*Event, error) {
	eventData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: AggregateType,
		EventType:     eventType,
		EventData:     eventData,
		Version:       1,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// FinalizedData is the payload of a ConsultationFinalized event
type FinalizedData struct {
	VisitID       string    `json:"visit_id"`
	SessionID     string    `json:"session_id"`
	ClinicianID   string    `json:"clinician_id"`
	PatientID     string    `json:"patient_id"`
	AppointmentID string    `json:"appointment_id,omitempty"`
	Rows          []Row     `json:"rows"`
	FinalizedAt   time.Time `json:"finalized_at"`
}

// NewFinalizedEvent builds the event announcing fc to downstream services
func NewFinalizedEvent(fc *FinalizedConsultation) (*Event, error) {
	evt, err := NewEvent(fc.ID, EventConsultationFinalized, FinalizedData{
		VisitID:       fc.ID,
		SessionID:     fc.SessionID,
		ClinicianID:   fc.ClinicianID,
		PatientID:     fc.PatientID,
		AppointmentID: fc.AppointmentID,
		Rows:          fc.Rows,
		FinalizedAt:   fc.FinalizedAt,
	})
	if err != nil {
		return nil, err
	}
	evt.ClinicianID = fc.ClinicianID
	evt.PatientID = fc.PatientID
	evt.CorrelationID = fc.SessionID
	return evt, nil
}

// DecodeFinalized reads the payload of a ConsultationFinalized event
func DecodeFinalized(evt *Event) (*FinalizedData, error) {
	var data FinalizedData
	if err := json.Unmarshal(evt.EventData, &data); err != nil {
		return nil, err
	}
	return &data, nil
}
