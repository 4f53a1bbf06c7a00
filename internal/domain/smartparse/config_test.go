package smartparse

import (
	"context"
	"errors"
	"testing"
)

type mockStore struct {
	cfg     *Config
	loadErr error
	saveErr error
	saves   int
}

func (m *mockStore) LoadConfig(ctx context.Context) (*Config, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.cfg, nil
}

func (m *mockStore) SaveConfig(ctx context.Context, cfg *Config) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.cfg = cfg
	return nil
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if len(cfg.Quantities) != 12 || len(cfg.DoseForms) != 12 || len(cfg.DosePatterns) != 12 {
		t.Fatalf("table sizes = %d/%d/%d, want 12 each", len(cfg.Quantities), len(cfg.DoseForms), len(cfg.DosePatterns))
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}
	if cfg.Quantities[5].Keyword != "1/2oz" || cfg.Quantities[5].Value != "0.5oz" {
		t.Errorf("half ounce rule = %+v", cfg.Quantities[5])
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := &Config{
		Quantities: []Rule[string]{
			{Keyword: "", Value: "1dr", Enabled: true},
			{Keyword: "", Value: "", Enabled: false},
		},
		DosePatterns: []Rule[DosePattern]{
			{Keyword: "od", Value: DosePattern{Description: "Once a day"}, Enabled: true},
		},
	}
	err := cfg.Validate()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Validate() = %v, want ErrInvalidConfig", err)
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	stored := &Config{
		Quantities: []Rule[string]{{Keyword: "3oz", Value: "3oz", Enabled: true}},
	}
	got := stored.WithDefaults()
	if len(got.Quantities) != 1 {
		t.Errorf("Quantities = %d rules, want stored table kept", len(got.Quantities))
	}
	if len(got.DoseForms) != 12 || len(got.DosePatterns) != 12 {
		t.Errorf("empty tables not defaulted: %d/%d", len(got.DoseForms), len(got.DosePatterns))
	}

	got.Quantities[0].Value = "changed"
	if stored.Quantities[0].Value != "3oz" {
		t.Error("WithDefaults shares backing array with the stored config")
	}
}

func TestSettings_GetFallsBackToDefaults(t *testing.T) {
	s := NewSettings(&mockStore{})
	cfg, err := s.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(cfg.DosePatterns) != 12 {
		t.Errorf("DosePatterns = %d, want defaults", len(cfg.DosePatterns))
	}
}

func TestSettings_SaveValidates(t *testing.T) {
	store := &mockStore{}
	s := NewSettings(store)

	bad := &Config{DoseForms: []Rule[string]{{Keyword: "tab", Enabled: true}}}
	if err := s.Save(context.Background(), bad); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Save(bad) = %v, want ErrInvalidConfig", err)
	}
	if store.saves != 0 {
		t.Errorf("invalid config was persisted")
	}

	if err := s.Save(context.Background(), DefaultConfig()); err != nil {
		t.Errorf("Save(default) = %v", err)
	}
	if store.saves != 1 {
		t.Errorf("saves = %d, want 1", store.saves)
	}
}

func TestSettings_StoreErrors(t *testing.T) {
	boom := errors.New("boom")
	s := NewSettings(&mockStore{loadErr: boom, saveErr: boom})
	if _, err := s.Get(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Get() = %v, want wrapped boom", err)
	}
	if _, err := s.Reset(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Reset() = %v, want wrapped boom", err)
	}
}
