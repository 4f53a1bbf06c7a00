package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/homeopms/go-smartrx/internal/domain/combination"
)

// uniqueViolation is the SQLSTATE for a unique index conflict
const uniqueViolation = "23505"

// CombinationStore is the clinic's saved combination catalog
type CombinationStore struct {
	pool *pgxpool.Pool
}

// NewCombinationStore creates a combination store
func NewCombinationStore(pool *pgxpool.Pool) *CombinationStore {
	return &CombinationStore{pool: pool}
}

// ListCombinations returns the catalog, newest first
func (s *CombinationStore) ListCombinations(ctx context.Context) ([]combination.Combination, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, content, created_at FROM combinations ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list combinations: %w", err)
	}
	defer rows.Close()

	var out []combination.Combination
	for rows.Next() {
		var c combination.Combination
		if err := rows.Scan(&c.ID, &c.Name, &c.Content, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan combination: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateCombination inserts c. A name already in the catalog (ignoring case)
// yields combination.ErrDuplicateName.
func (s *CombinationStore) CreateCombination(ctx context.Context, c *combination.Combination) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO combinations (id, name, content, created_at) VALUES ($1, $2, $3, $4)`,
		c.ID, c.Name, c.Content, c.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %q", combination.ErrDuplicateName, c.Name)
	}
	if err != nil {
		return fmt.Errorf("create combination: %w", err)
	}
	return nil
}
