package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/homeopms/go-smartrx/internal/domain/combination"
	"github.com/homeopms/go-smartrx/internal/domain/consultation"
	"github.com/homeopms/go-smartrx/internal/domain/dispensing"
	"github.com/homeopms/go-smartrx/internal/domain/patternmemory"
	"github.com/homeopms/go-smartrx/internal/domain/smartparse"
)

// testPool connects to TEST_DATABASE_URL and applies migrations
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := NewPool(ctx, url, 4, 1)
	if err != nil {
		t.Fatalf("NewPool() error: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := NewMigrator(pool, nil).Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages map[string][]string // topic -> keys
	fail     bool
}

func (p *recordingPublisher) Publish(ctx context.Context, topic, key string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	if p.messages == nil {
		p.messages = make(map[string][]string)
	}
	p.messages[topic] = append(p.messages[topic], key)
	return nil
}

func (p *recordingPublisher) has(topic, key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, k := range p.messages[topic] {
		if k == key {
			return true
		}
	}
	return false
}

func TestIntegration_BlobStores(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	blobs := NewBlobStore(pool)
	clinician := "dr-" + uuid.NewString()

	patterns := NewPatternStore(blobs)
	got, err := patterns.LoadPatterns(ctx, clinician)
	if err != nil || len(got) != 0 {
		t.Fatalf("LoadPatterns(empty) = %v, %v", got, err)
	}
	want := []patternmemory.Pattern{{Medicine: "Arnica", Potency: "200", Quantity: "2dr", DosePattern: "1-1-1", Frequency: "Daily", Duration: "7 days"}}
	if err := patterns.SavePatterns(ctx, clinician, want); err != nil {
		t.Fatal(err)
	}
	got, _ = patterns.LoadPatterns(ctx, clinician)
	if len(got) != 1 || got[0] != want[0] {
		t.Errorf("LoadPatterns() = %+v", got)
	}

	used := NewUsedMedicineStore(blobs)
	if err := used.SaveUsedMedicines(ctx, clinician, []string{"Arnica", "Sulphur"}); err != nil {
		t.Fatal(err)
	}
	names, _ := used.LoadUsedMedicines(ctx, clinician)
	if len(names) != 2 || names[0] != "Arnica" {
		t.Errorf("LoadUsedMedicines() = %v", names)
	}

	settings := NewSettingsStore(blobs)
	cfg := smartparse.DefaultConfig()
	cfg.Quantities[0].Value = "3dr"
	if err := settings.SaveConfig(ctx, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := settings.LoadConfig(ctx)
	if err != nil || loaded == nil || loaded.Quantities[0].Value != "3dr" {
		t.Errorf("LoadConfig() = %+v, %v", loaded, err)
	}
}

func TestIntegration_Combinations(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	store := NewCombinationStore(pool)

	c, _ := combination.New("Mix "+uuid.NewString(), "Arnica 30 + Hypericum 30")
	if err := store.CreateCombination(ctx, c); err != nil {
		t.Fatalf("CreateCombination() error: %v", err)
	}
	dup, _ := combination.New(c.Name, "other")
	if err := store.CreateCombination(ctx, dup); !errors.Is(err, combination.ErrDuplicateName) {
		t.Errorf("duplicate CreateCombination() = %v, want ErrDuplicateName", err)
	}

	list, err := store.ListCombinations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, item := range list {
		if item.ID == c.ID {
			found = true
		}
	}
	if !found {
		t.Error("created combination not listed")
	}
}

func TestIntegration_VisitOutboxRelay(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	visits := NewVisitStore(pool, "consultation.finalized", nil)
	patient := "p-" + uuid.NewString()

	for i := 1; i <= 2; i++ {
		fc := &consultation.FinalizedConsultation{
			ID:          uuid.NewString(),
			SessionID:   uuid.NewString(),
			ClinicianID: "dr-relay",
			PatientID:   patient,
			Rows:        []consultation.Row{{Medicine: "Arnica", Potency: "200"}},
			FinalizedAt: time.Now().UTC(),
		}
		if err := visits.RecordVisit(ctx, fc); err != nil {
			t.Fatalf("RecordVisit() error: %v", err)
		}
		if fc.VisitNumber != i {
			t.Errorf("VisitNumber = %d, want %d", fc.VisitNumber, i)
		}
	}

	pub := &recordingPublisher{}
	cfg := DefaultOutboxConfig()
	cfg.BatchSize = 1000
	relay := NewOutbox(pool, pub, cfg, nil, nil)
	if _, err := relay.ProcessBatch(ctx); err != nil {
		t.Fatalf("ProcessBatch() error: %v", err)
	}
	if !pub.has("consultation.finalized", "dr-relay") {
		t.Error("finalized event not published")
	}

	stats, err := relay.GetStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Processed == 0 {
		t.Errorf("stats = %+v, want processed entries", stats)
	}
}

func TestIntegration_Queue(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	queue := NewQueueStore(pool)
	clinician := "dr-" + uuid.NewString()
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	var tickets []*dispensing.Ticket
	for i := 0; i < 2; i++ {
		tk := dispensing.NewTicket(&consultation.FinalizedData{
			VisitID:     uuid.NewString(),
			ClinicianID: clinician,
			PatientID:   "p-1",
			FinalizedAt: at,
			Rows:        []consultation.Row{{Medicine: "Sulphur", Potency: "30"}},
		})
		if err := queue.Enqueue(ctx, tk); err != nil {
			t.Fatalf("Enqueue() error: %v", err)
		}
		if tk.Position != i+1 {
			t.Errorf("Position = %d, want %d", tk.Position, i+1)
		}
		tickets = append(tickets, tk)
	}

	again := *tickets[0]
	again.ID = uuid.NewString()
	if err := queue.Enqueue(ctx, &again); err != nil {
		t.Fatal(err)
	}
	if again.ID != tickets[0].ID {
		t.Error("re-enqueued visit created a second ticket")
	}

	updated, err := queue.UpdateStatus(ctx, tickets[1].ID, dispensing.StatusInProgress, true)
	if err != nil || updated.Status != dispensing.StatusInProgress || !updated.Priority {
		t.Fatalf("UpdateStatus() = %+v, %v", updated, err)
	}

	list, err := queue.List(ctx, dispensing.Filter{ClinicianID: clinician, Date: "2026-03-14"})
	if err != nil || len(list) != 2 {
		t.Fatalf("List() = %v, %v", list, err)
	}
	if list[0].ID != tickets[1].ID {
		t.Error("priority ticket not listed first")
	}

	if _, err := queue.UpdateStatus(ctx, uuid.NewString(), dispensing.StatusCompleted, false); !errors.Is(err, dispensing.ErrTicketNotFound) {
		t.Errorf("UpdateStatus(unknown) = %v", err)
	}
}

func TestIntegration_MigrationStatus(t *testing.T) {
	pool := testPool(t)
	statuses, err := NewMigrator(pool, nil).Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(statuses) < 3 {
		t.Fatalf("statuses = %d, want at least 3", len(statuses))
	}
	for _, st := range statuses {
		if !st.Applied || st.AppliedAt == nil {
			t.Errorf("migration %d (%s) not applied", st.Version, st.Name)
		}
	}
}
