package combination

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

type mockCatalog struct {
	items []Combination
	err   error
}

func (m *mockCatalog) ListCombinations(ctx context.Context) ([]Combination, error) {
	return m.items, m.err
}

func (m *mockCatalog) CreateCombination(ctx context.Context, c *Combination) error {
	m.items = append([]Combination{*c}, m.items...)
	return nil
}

func TestNew(t *testing.T) {
	c, err := New("  Trauma mix ", "Arnica 200, Hypericum 200")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.Name != "Trauma mix" || c.ID == "" || c.CreatedAt.IsZero() {
		t.Errorf("New() = %+v", c)
	}
	if _, err := New("", "x"); !errors.Is(err, ErrInvalidCombination) {
		t.Errorf("New(empty name) = %v", err)
	}
	if _, err := New("x", " "); !errors.Is(err, ErrInvalidCombination) {
		t.Errorf("New(empty content) = %v", err)
	}
}

func TestSnapshot(t *testing.T) {
	cat := &mockCatalog{items: []Combination{{ID: "1", Name: "Fever mix", Content: "Bell 30, Acon 30"}}}
	s, err := LoadSnapshot(context.Background(), cat)
	if err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}

	if _, ok := s.Find("FEVER MIX"); !ok {
		t.Error("Find ignores case")
	}
	if s.Add(Combination{ID: "2", Name: "fever mix"}) {
		t.Error("Add accepted a duplicate name")
	}
	if !s.Add(Combination{ID: "3", Name: "Trauma mix"}) {
		t.Error("Add rejected a new name")
	}
	if got, want := s.Names(), []string{"Trauma mix", "Fever mix"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestLoadSnapshot_Error(t *testing.T) {
	boom := errors.New("boom")
	if _, err := LoadSnapshot(context.Background(), &mockCatalog{err: boom}); !errors.Is(err, boom) {
		t.Errorf("LoadSnapshot() = %v", err)
	}
}
