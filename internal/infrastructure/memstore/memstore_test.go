package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/homeopms/go-smartrx/internal/domain/combination"
	"github.com/homeopms/go-smartrx/internal/domain/consultation"
	"github.com/homeopms/go-smartrx/internal/domain/dispensing"
	"github.com/homeopms/go-smartrx/internal/domain/patternmemory"
	"github.com/homeopms/go-smartrx/internal/domain/recall"
	"github.com/homeopms/go-smartrx/internal/domain/smartparse"
)

var (
	_ smartparse.Store           = (*Store)(nil)
	_ patternmemory.Store        = (*Store)(nil)
	_ recall.Store               = (*Store)(nil)
	_ combination.Catalog        = (*Store)(nil)
	_ consultation.VisitRecorder = (*Store)(nil)
	_ dispensing.Repository      = (*Store)(nil)
)

func TestStore_ConfigIsCopied(t *testing.T) {
	s := New()
	ctx := context.Background()

	if cfg, err := s.LoadConfig(ctx); cfg != nil || err != nil {
		t.Fatalf("LoadConfig(empty) = %v, %v", cfg, err)
	}

	cfg := smartparse.DefaultConfig()
	if err := s.SaveConfig(ctx, cfg); err != nil {
		t.Fatal(err)
	}
	cfg.Quantities[0].Value = "changed"

	loaded, _ := s.LoadConfig(ctx)
	if loaded.Quantities[0].Value == "changed" {
		t.Error("saved config aliases the caller's value")
	}
}

func TestStore_CombinationsNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()

	a, _ := combination.New("Trauma", "Arnica + Hypericum")
	b, _ := combination.New("Cold", "Aconite + Bryonia")
	_ = s.CreateCombination(ctx, a)
	_ = s.CreateCombination(ctx, b)

	list, _ := s.ListCombinations(ctx)
	if len(list) != 2 || list[0].Name != "Cold" {
		t.Errorf("ListCombinations() = %+v", list)
	}

	dup, _ := combination.New("trauma", "x")
	if err := s.CreateCombination(ctx, dup); !errors.Is(err, combination.ErrDuplicateName) {
		t.Errorf("duplicate = %v", err)
	}
}

func TestStore_VisitNumbering(t *testing.T) {
	s := New()
	ctx := context.Background()

	for i, patient := range []string{"p-1", "p-2", "p-1"} {
		fc := &consultation.FinalizedConsultation{ID: string(rune('a' + i)), PatientID: patient}
		_ = s.RecordVisit(ctx, fc)
		want := 1
		if i == 2 {
			want = 2
		}
		if fc.VisitNumber != want {
			t.Errorf("visit %d number = %d, want %d", i, fc.VisitNumber, want)
		}
	}
	if len(s.Visits()) != 3 {
		t.Errorf("Visits() = %d", len(s.Visits()))
	}
}

func TestStore_Queue(t *testing.T) {
	s := New()
	ctx := context.Background()
	day := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	ticket := func(visit, clinician string) *dispensing.Ticket {
		return dispensing.NewTicket(&consultation.FinalizedData{
			VisitID: visit, ClinicianID: clinician, FinalizedAt: day,
			Rows: []consultation.Row{{Medicine: "Arnica", Potency: "200"}},
		})
	}

	t1, t2, t3 := ticket("v1", "dr-1"), ticket("v2", "dr-1"), ticket("v3", "dr-2")
	for _, tk := range []*dispensing.Ticket{t1, t2, t3} {
		if err := s.Enqueue(ctx, tk); err != nil {
			t.Fatal(err)
		}
	}
	if t1.Position != 1 || t2.Position != 2 || t3.Position != 1 {
		t.Errorf("positions = %d, %d, %d", t1.Position, t2.Position, t3.Position)
	}

	dup := ticket("v1", "dr-1")
	_ = s.Enqueue(ctx, dup)
	if dup.ID != t1.ID {
		t.Error("duplicate visit enqueued twice")
	}

	if _, err := s.UpdateStatus(ctx, t2.ID, dispensing.StatusInProgress, true); err != nil {
		t.Fatal(err)
	}
	list, _ := s.List(ctx, dispensing.Filter{ClinicianID: "dr-1"})
	if len(list) != 2 || list[0].ID != t2.ID {
		t.Errorf("List() order = %+v", list)
	}

	waiting, _ := s.List(ctx, dispensing.Filter{Status: dispensing.StatusWaiting})
	if len(waiting) != 2 {
		t.Errorf("waiting = %d, want 2", len(waiting))
	}

	if _, err := s.UpdateStatus(ctx, "nope", dispensing.StatusCompleted, false); !errors.Is(err, dispensing.ErrTicketNotFound) {
		t.Errorf("UpdateStatus(unknown) = %v", err)
	}
}
