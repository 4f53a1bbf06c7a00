package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/homeopms/go-smartrx/internal/domain/consultation"
)

// VisitStore records finalized consultations. The visit row and its
// ConsultationFinalized outbox entry commit together.
type VisitStore struct {
	pool   *pgxpool.Pool
	topic  string
	logger *zap.Logger
}

// NewVisitStore creates a visit store publishing to topic through the outbox
func NewVisitStore(pool *pgxpool.Pool, topic string, logger *zap.Logger) *VisitStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VisitStore{pool: pool, topic: topic, logger: logger}
}

// RecordVisit assigns the patient's next visit number and stores fc
func (s *VisitStore) RecordVisit(ctx context.Context, fc *consultation.FinalizedConsultation) error {
	notes, err := json.Marshal(fc.Notes)
	if err != nil {
		return fmt.Errorf("encode notes: %w", err)
	}
	rows, err := json.Marshal(fc.Rows)
	if err != nil {
		return fmt.Errorf("encode rows: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Serialize visit numbering per patient
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "visit:"+fc.PatientID); err != nil {
		return fmt.Errorf("lock patient visits: %w", err)
	}

	var visitNumber int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) + 1 FROM visits WHERE patient_id = $1`, fc.PatientID,
	).Scan(&visitNumber); err != nil {
		return fmt.Errorf("next visit number: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO visits
		(id, session_id, clinician_id, patient_id, appointment_id, visit_number, notes, rows, finalized_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9)
	`, fc.ID, fc.SessionID, fc.ClinicianID, fc.PatientID, fc.AppointmentID,
		visitNumber, notes, rows, fc.FinalizedAt)
	if err != nil {
		return fmt.Errorf("insert visit: %w", err)
	}

	evt, err := consultation.NewFinalizedEvent(fc)
	if err != nil {
		return fmt.Errorf("build event: %w", err)
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	if err := WriteEntry(ctx, tx, &OutboxEntry{
		AggregateID:   fc.ID,
		AggregateType: consultation.AggregateType,
		EventType:     string(evt.EventType),
		Payload:       payload,
		KafkaTopic:    s.topic,
		KafkaKey:      fc.ClinicianID,
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	fc.VisitNumber = visitNumber
	s.logger.Debug("visit recorded",
		zap.String("visit_id", fc.ID),
		zap.String("patient_id", fc.PatientID),
		zap.Int("visit_number", visitNumber))
	return nil
}
