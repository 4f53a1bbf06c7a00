package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func newTestInbox() (*Inbox, *MemoryStore) {
	store := NewMemoryStore()
	return NewInbox(store, DefaultInboxConfig(), nil), store
}

func TestInbox_ProcessOnce(t *testing.T) {
	inbox, _ := newTestInbox()
	ctx := context.Background()
	key := GenerateKey("pharmacy-queue", "visit-1")

	calls := 0
	fn := func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
		calls++
		return json.RawMessage(`{"ticket":"t-1"}`), nil
	}

	first, err := inbox.Process(ctx, key, "pharmacy-queue", nil, fn)
	if err != nil || !first.IsNew {
		t.Fatalf("first Process() = %+v, %v", first, err)
	}

	second, err := inbox.Process(ctx, key, "pharmacy-queue", nil, fn)
	if err != nil {
		t.Fatal(err)
	}
	if second.IsNew || string(second.Result) != `{"ticket":"t-1"}` {
		t.Errorf("second Process() = %+v", second)
	}
	if calls != 1 {
		t.Errorf("handler ran %d times, want 1", calls)
	}
}

func TestInbox_RecoverableErrorIsRetried(t *testing.T) {
	inbox, store := newTestInbox()
	ctx := context.Background()
	key := GenerateKey("h", "visit-2")

	_, err := inbox.Process(ctx, key, "h", nil, func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("db unavailable")
	})
	if err == nil {
		t.Fatal("expected handler error")
	}
	if e, _ := store.Get(ctx, key); e.Status != StatusRecoverable {
		t.Fatalf("status = %s, want RECOVERABLE", e.Status)
	}

	res, err := inbox.Process(ctx, key, "h", nil, func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return nil, nil
	})
	if err != nil || !res.WasRecovered || res.IsNew {
		t.Errorf("retry Process() = %+v, %v", res, err)
	}
}

func TestInbox_TerminalErrorIsNotRetried(t *testing.T) {
	inbox, _ := newTestInbox()
	ctx := context.Background()
	key := GenerateKey("h", "visit-3")

	_, err := inbox.Process(ctx, key, "h", nil, func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return nil, Terminal(errors.New("malformed event"))
	})
	if !IsTerminal(err) {
		t.Fatalf("error = %v, want terminal", err)
	}

	_, err = inbox.Process(ctx, key, "h", nil, func(context.Context, json.RawMessage) (json.RawMessage, error) {
		t.Error("handler ran for a failed message")
		return nil, nil
	})
	if !errors.Is(err, ErrPreviouslyFailed) {
		t.Errorf("Process() = %v, want ErrPreviouslyFailed", err)
	}
}

func TestInbox_InProgressAndStale(t *testing.T) {
	inbox, store := newTestInbox()
	ctx := context.Background()
	key := GenerateKey("h", "visit-4")

	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return start }
	if err := store.Start(ctx, key, "h", nil, start.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	inbox.now = func() time.Time { return start.Add(time.Minute) }
	noop := func(context.Context, json.RawMessage) (json.RawMessage, error) { return nil, nil }
	if _, err := inbox.Process(ctx, key, "h", nil, noop); !errors.Is(err, ErrMessageInProgress) {
		t.Fatalf("Process() = %v, want ErrMessageInProgress", err)
	}

	inbox.now = func() time.Time { return start.Add(time.Hour) }
	res, err := inbox.Process(ctx, key, "h", nil, noop)
	if err != nil || !res.WasRecovered {
		t.Errorf("stale Process() = %+v, %v", res, err)
	}
}

func TestGenerateKey(t *testing.T) {
	a := GenerateKey("pharmacy-queue", "visit-1")
	if a != GenerateKey("pharmacy-queue", "visit-1") {
		t.Error("key is not deterministic")
	}
	if a == GenerateKey("pharmacy-queue", "visit-2") || a == GenerateKey("other", "visit-1") {
		t.Error("distinct inputs share a key")
	}
	if len(a) != 64 {
		t.Errorf("key length = %d", len(a))
	}
}

func TestTerminal_Nil(t *testing.T) {
	if Terminal(nil) != nil {
		t.Error("Terminal(nil) != nil")
	}
}
