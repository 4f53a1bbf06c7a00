package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/homeopms/go-smartrx/internal/domain/dispensing"
)

const ticketColumns = `id, visit_id, clinician_id, patient_id, to_char(queue_date, 'YYYY-MM-DD'),
	position, status, priority, summary, items, created_at, updated_at`

// QueueStore is the pharmacy queue
type QueueStore struct {
	pool *pgxpool.Pool
}

// NewQueueStore creates a queue store
func NewQueueStore(pool *pgxpool.Pool) *QueueStore {
	return &QueueStore{pool: pool}
}

// Enqueue appends t to its clinician's queue for the day. A second ticket for
// the same visit is ignored and t is filled from the stored one.
func (s *QueueStore) Enqueue(ctx context.Context, t *dispensing.Ticket) error {
	items, err := json.Marshal(t.Items)
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`,
		"queue:"+t.ClinicianID+":"+t.Date); err != nil {
		return fmt.Errorf("lock queue: %w", err)
	}

	var position int
	if err := tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(position), 0) + 1 FROM pharmacy_queue
		WHERE clinician_id = $1 AND queue_date = $2::date
	`, t.ClinicianID, t.Date).Scan(&position); err != nil {
		return fmt.Errorf("next position: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO pharmacy_queue
		(id, visit_id, clinician_id, patient_id, queue_date, position, status, priority, summary, items, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::date, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (visit_id) DO NOTHING
	`, t.ID, t.VisitID, t.ClinicianID, t.PatientID, t.Date, position,
		string(t.Status), t.Priority, t.Summary, items, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}

	if tag.RowsAffected() == 0 {
		existing, err := scanTicket(tx.QueryRow(ctx,
			`SELECT `+ticketColumns+` FROM pharmacy_queue WHERE visit_id = $1`, t.VisitID))
		if err != nil {
			return fmt.Errorf("load existing ticket: %w", err)
		}
		*t = *existing
		return tx.Commit(ctx)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	t.Position = position
	return nil
}

// List returns tickets matching filter in queue order, priority first
func (s *QueueStore) List(ctx context.Context, filter dispensing.Filter) ([]dispensing.Ticket, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.ClinicianID != "" {
		add("clinician_id = $%d", filter.ClinicianID)
	}
	if filter.Date != "" {
		add("queue_date = $%d::date", filter.Date)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}

	query := `SELECT ` + ticketColumns + ` FROM pharmacy_queue`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY queue_date, priority DESC, position"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	var out []dispensing.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// UpdateStatus moves a ticket through the pharmacy workflow
func (s *QueueStore) UpdateStatus(ctx context.Context, id string, status dispensing.Status, priority bool) (*dispensing.Ticket, error) {
	t, err := scanTicket(s.pool.QueryRow(ctx, `
		UPDATE pharmacy_queue SET status = $2, priority = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING `+ticketColumns, id, string(status), priority))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", dispensing.ErrTicketNotFound, id)
	}
	return t, err
}

func scanTicket(row pgx.Row) (*dispensing.Ticket, error) {
	var (
		t      dispensing.Ticket
		status string
		items  []byte
	)
	err := row.Scan(&t.ID, &t.VisitID, &t.ClinicianID, &t.PatientID, &t.Date,
		&t.Position, &status, &t.Priority, &t.Summary, &items, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Status = dispensing.Status(status)
	if err := json.Unmarshal(items, &t.Items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	return &t, nil
}
