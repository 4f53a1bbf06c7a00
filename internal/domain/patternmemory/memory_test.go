package patternmemory

import (
	"context"
	"errors"
	"testing"
)

type mockStore struct {
	loaded  []Pattern
	saved   [][]Pattern
	loadErr error
	saveErr error
}

func (m *mockStore) LoadPatterns(ctx context.Context, clinicianID string) ([]Pattern, error) {
	return m.loaded, m.loadErr
}

func (m *mockStore) SavePatterns(ctx context.Context, clinicianID string, patterns []Pattern) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, patterns)
	return nil
}

func TestLoad_Error(t *testing.T) {
	boom := errors.New("boom")
	if _, err := Load(context.Background(), "dr-1", &mockStore{loadErr: boom}, nil); !errors.Is(err, boom) {
		t.Errorf("Load() = %v, want wrapped boom", err)
	}
}

func TestMemory_LookupIgnoresCase(t *testing.T) {
	store := &mockStore{loaded: []Pattern{{Medicine: "Arnica", Potency: "200"}}}
	m, err := Load(context.Background(), "dr-1", store, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	p, ok := m.Lookup("ARNICA")
	if !ok || p.Potency != "200" {
		t.Errorf("Lookup(ARNICA) = %+v, %v", p, ok)
	}
	if _, ok := m.Lookup("Bryonia"); ok {
		t.Error("Lookup(Bryonia) found a pattern")
	}
	if _, ok := m.Lookup(""); ok {
		t.Error("Lookup(\"\") found a pattern")
	}
}

func TestMemory_UpsertIsIdempotent(t *testing.T) {
	store := &mockStore{}
	m, _ := Load(context.Background(), "dr-1", store, nil)
	ctx := context.Background()

	first := Pattern{Medicine: "Arnica", Potency: "200", Quantity: "2dr", DosePattern: "1-1-1", Frequency: "Daily", Duration: "7 days"}
	second := first
	second.Potency = "1M"
	second.Medicine = "arnica"

	if err := m.Upsert(ctx, first); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := m.Upsert(ctx, second); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got := m.Patterns()
	if len(got) != 1 {
		t.Fatalf("Patterns() = %d entries, want 1", len(got))
	}
	if got[0] != second {
		t.Errorf("Patterns()[0] = %+v, want %+v", got[0], second)
	}
	if len(store.saved) != 2 || len(store.saved[1]) != 1 {
		t.Errorf("saved = %v, want full table written on every upsert", store.saved)
	}
}

func TestMemory_UpsertEmptyMedicineIsNoop(t *testing.T) {
	store := &mockStore{}
	m, _ := Load(context.Background(), "dr-1", store, nil)
	if err := m.Upsert(context.Background(), Pattern{Potency: "30"}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if len(m.Patterns()) != 0 || len(store.saved) != 0 {
		t.Error("empty medicine changed the table")
	}
}

func TestMemory_UpsertFillsDefaults(t *testing.T) {
	m, _ := Load(context.Background(), "dr-1", &mockStore{}, nil)
	_ = m.Upsert(context.Background(), Pattern{Medicine: "Sulphur", Quantity: "1dr"})

	p, _ := m.Lookup("sulphur")
	if p.DosePattern != "1-1-1" || p.Frequency != "Daily" || p.Duration != "7 days" {
		t.Errorf("Lookup(sulphur) = %+v, want defaults filled", p)
	}
}

func TestMemory_PersistFailureKeepsMemory(t *testing.T) {
	boom := errors.New("disk full")
	m, _ := Load(context.Background(), "dr-1", &mockStore{saveErr: boom}, nil)

	err := m.Upsert(context.Background(), Pattern{Medicine: "Bryonia", Potency: "30"})
	if !errors.Is(err, ErrNotPersisted) || !errors.Is(err, boom) {
		t.Fatalf("Upsert() = %v, want ErrNotPersisted wrapping the cause", err)
	}
	if p, ok := m.Lookup("Bryonia"); !ok || p.Potency != "30" {
		t.Errorf("Lookup(Bryonia) = %+v, %v; want in-memory value kept", p, ok)
	}
}
