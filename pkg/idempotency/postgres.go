package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresStore keeps inbox entries in the inbox table
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPostgresStore creates an inbox store
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PostgresStore{
		pool:   pool,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

func (s *PostgresStore) Get(ctx context.Context, key string) (*InboxEntry, error) {
	entry := &InboxEntry{}
	err := s.pool.QueryRow(ctx, `
		SELECT idempotency_key, handler_name, status, payload, result, created_at, updated_at, expires_at
		FROM inbox
		WHERE idempotency_key = $1
	`, key).Scan(
		&entry.IdempotencyKey, &entry.HandlerName, &entry.Status,
		&entry.Payload, &entry.Result, &entry.CreatedAt, &entry.UpdatedAt, &entry.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *PostgresStore) Start(ctx context.Context, key, handlerName string, payload json.RawMessage, expiresAt time.Time) error {
	var returned string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO inbox (idempotency_key, handler_name, status, payload, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (idempotency_key) DO UPDATE
		SET status = $3, updated_at = NOW()
		WHERE inbox.status = 'RECOVERABLE'
		RETURNING idempotency_key
	`, key, handlerName, StatusStarted, payload, expiresAt).Scan(&returned)
	if errors.Is(err, pgx.ErrNoRows) {
		// Conflict with a non-recoverable entry
		return ErrDuplicateMessage
	}
	return err
}

func (s *PostgresStore) Mark(ctx context.Context, key string, status Status, result json.RawMessage) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE inbox
		SET status = $1, result = $2, updated_at = NOW()
		WHERE idempotency_key = $3
	`, status, result, key)
	return err
}

// StartCleanup starts deleting expired entries every interval
func (s *PostgresStore) StartCleanup(interval time.Duration) {
	go s.cleanupLoop(interval)
	s.logger.Info("inbox cleanup started", zap.Duration("interval", interval))
}

// Stop stops the cleanup loop
func (s *PostgresStore) Stop() {
	s.cancel()
	<-s.done
	s.logger.Info("inbox cleanup stopped")
}

func (s *PostgresStore) cleanupLoop(interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Cleanup(s.ctx); err != nil {
				s.logger.Error("inbox cleanup failed", zap.Error(err))
			}
		}
	}
}

// Cleanup removes expired entries
func (s *PostgresStore) Cleanup(ctx context.Context) (int64, error) {
	result, err := s.pool.Exec(ctx, `
		DELETE FROM inbox
		WHERE expires_at < NOW()
		   OR (status = 'FINISHED' AND updated_at < NOW() - INTERVAL '7 days')
	`)
	if err != nil {
		return 0, err
	}
	if n := result.RowsAffected(); n > 0 {
		s.logger.Info("inbox cleanup completed", zap.Int64("deleted", n))
	}
	return result.RowsAffected(), nil
}

// InboxStats counts entries by status
type InboxStats struct {
	TotalEntries int64 `json:"total"`
	Started      int64 `json:"started"`
	Finished     int64 `json:"finished"`
	Recoverable  int64 `json:"recoverable"`
	Failed       int64 `json:"failed"`
}

// GetStats returns current inbox statistics
func (s *PostgresStore) GetStats(ctx context.Context) (*InboxStats, error) {
	stats := &InboxStats{}
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'STARTED'),
			COUNT(*) FILTER (WHERE status = 'FINISHED'),
			COUNT(*) FILTER (WHERE status = 'RECOVERABLE'),
			COUNT(*) FILTER (WHERE status = 'FAILED')
		FROM inbox
	`).Scan(&stats.TotalEntries, &stats.Started, &stats.Finished, &stats.Recoverable, &stats.Failed)
	if err != nil {
		return nil, err
	}
	return stats, nil
}
