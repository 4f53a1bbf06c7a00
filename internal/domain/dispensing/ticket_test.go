package dispensing

import (
	"errors"
	"testing"
	"time"

	"github.com/homeopms/go-smartrx/internal/domain/consultation"
)

func TestSummarize(t *testing.T) {
	rows := []consultation.Row{
		{Medicine: "Arnica", Potency: "200"},
		{Medicine: "Rhus tox", Potency: "200"},
		{Medicine: "Trauma mix", IsCombination: true, CombinationName: "Trauma mix", Potency: "30"},
		{Medicine: ""},
		{Medicine: "Sulphur"},
	}
	want := "Arnica 200, Rhus tox 200, Trauma mix, Sulphur"
	if got := Summarize(rows); got != want {
		t.Errorf("Summarize() = %q, want %q", got, want)
	}
}

func TestNewTicket(t *testing.T) {
	at := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	data := &consultation.FinalizedData{
		VisitID:     "v-1",
		ClinicianID: "dr-1",
		PatientID:   "p-1",
		FinalizedAt: at,
		Rows: []consultation.Row{
			{Medicine: "Arnica", Potency: "200", Quantity: "2dr", Bottles: 2},
		},
	}
	tk := NewTicket(data)
	if tk.Status != StatusWaiting || tk.Date != "2026-03-14" || tk.VisitID != "v-1" {
		t.Errorf("NewTicket() = %+v", tk)
	}
	if tk.Summary != "Arnica 200" || len(tk.Items) != 1 || tk.Items[0].Bottles != 2 {
		t.Errorf("items = %+v, summary = %q", tk.Items, tk.Summary)
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"waiting", "in-progress", "completed", "skipped"} {
		if _, err := ParseStatus(s); err != nil {
			t.Errorf("ParseStatus(%q) = %v", s, err)
		}
	}
	if _, err := ParseStatus("lost"); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("ParseStatus(lost) = %v", err)
	}
}
