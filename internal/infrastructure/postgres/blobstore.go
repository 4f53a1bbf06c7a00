package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/homeopms/go-smartrx/internal/domain/patternmemory"
	"github.com/homeopms/go-smartrx/internal/domain/smartparse"
)

// Blob namespaces
const (
	NamespacePatterns     = "patterns"
	NamespaceUsedMedicine = "used_medicines"
	NamespaceSettings     = "settings"

	settingsKey = "smart_parsing"
)

// BlobStore keeps whole JSON documents keyed by namespace and key. Pattern
// tables, used-medicine lists and the smart-parsing config are each written
// as one document.
type BlobStore struct {
	pool *pgxpool.Pool
}

// NewBlobStore creates a blob store
func NewBlobStore(pool *pgxpool.Pool) *BlobStore {
	return &BlobStore{pool: pool}
}

// Get decodes the document into dest. It reports false when nothing is stored.
func (s *BlobStore) Get(ctx context.Context, namespace, key string, dest any) (bool, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM kv_blobs WHERE namespace = $1 AND key = $2`,
		namespace, key,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s/%s: %w", namespace, key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("decode %s/%s: %w", namespace, key, err)
	}
	return true, nil
}

// Put replaces the document
func (s *BlobStore) Put(ctx context.Context, namespace, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", namespace, key, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO kv_blobs (namespace, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, namespace, key, raw)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", namespace, key, err)
	}
	return nil
}

// PatternStore persists pattern tables, one document per clinician
type PatternStore struct {
	blobs *BlobStore
}

// NewPatternStore creates a pattern store
func NewPatternStore(blobs *BlobStore) *PatternStore {
	return &PatternStore{blobs: blobs}
}

func (s *PatternStore) LoadPatterns(ctx context.Context, clinicianID string) ([]patternmemory.Pattern, error) {
	var patterns []patternmemory.Pattern
	if _, err := s.blobs.Get(ctx, NamespacePatterns, clinicianID, &patterns); err != nil {
		return nil, err
	}
	return patterns, nil
}

func (s *PatternStore) SavePatterns(ctx context.Context, clinicianID string, patterns []patternmemory.Pattern) error {
	if patterns == nil {
		patterns = []patternmemory.Pattern{}
	}
	return s.blobs.Put(ctx, NamespacePatterns, clinicianID, patterns)
}

// UsedMedicineStore persists recently used medicine names, most recent first
type UsedMedicineStore struct {
	blobs *BlobStore
}

// NewUsedMedicineStore creates a used-medicine store
func NewUsedMedicineStore(blobs *BlobStore) *UsedMedicineStore {
	return &UsedMedicineStore{blobs: blobs}
}

func (s *UsedMedicineStore) LoadUsedMedicines(ctx context.Context, clinicianID string) ([]string, error) {
	var names []string
	if _, err := s.blobs.Get(ctx, NamespaceUsedMedicine, clinicianID, &names); err != nil {
		return nil, err
	}
	return names, nil
}

func (s *UsedMedicineStore) SaveUsedMedicines(ctx context.Context, clinicianID string, names []string) error {
	if names == nil {
		names = []string{}
	}
	return s.blobs.Put(ctx, NamespaceUsedMedicine, clinicianID, names)
}

// SettingsStore persists the clinic-wide smart-parsing config
type SettingsStore struct {
	blobs *BlobStore
}

// NewSettingsStore creates a settings store
func NewSettingsStore(blobs *BlobStore) *SettingsStore {
	return &SettingsStore{blobs: blobs}
}

func (s *SettingsStore) LoadConfig(ctx context.Context) (*smartparse.Config, error) {
	var cfg smartparse.Config
	found, err := s.blobs.Get(ctx, NamespaceSettings, settingsKey, &cfg)
	if err != nil || !found {
		return nil, err
	}
	return &cfg, nil
}

func (s *SettingsStore) SaveConfig(ctx context.Context, cfg *smartparse.Config) error {
	return s.blobs.Put(ctx, NamespaceSettings, settingsKey, cfg)
}
