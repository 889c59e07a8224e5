package persist

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/matchbook/internal/domain"
)

type fakeSource struct {
	mu      sync.Mutex
	version uint64
	snaps   int
}

func (s *fakeSource) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

func (s *fakeSource) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps++
	return domain.Snapshot{
		Version: s.version,
		Orders: []domain.Order{{
			ID: "o1", Side: domain.SideBuy, Price: decimal.NewFromInt(100),
			Quantity: decimal.NewFromInt(1), RemainingQuantity: decimal.NewFromInt(1),
			Status: domain.OrderStatusPending,
		}},
	}
}

func (s *fakeSource) bump() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version++
}

// flakyStore fails the first failures calls to Save.
type flakyStore struct {
	mu       sync.Mutex
	failures int
	saves    []domain.Snapshot
	attempts int
	loaded   domain.Snapshot
}

func (s *flakyStore) Save(_ context.Context, snap domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.failures > 0 {
		s.failures--
		return errors.New("disk full")
	}
	s.saves = append(s.saves, snap)
	return nil
}

func (s *flakyStore) Load(context.Context) (domain.Snapshot, error) {
	return s.loaded, nil
}

func (s *flakyStore) Close() error { return nil }

func newTestFlusher(src Source, store Store, retries int) *Flusher {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewFlusher(src, store, FlusherConfig{Retries: retries, Backoff: time.Millisecond}, logger)
}

func TestFlusher_SkipsUnchangedVersion(t *testing.T) {
	src := &fakeSource{version: 1}
	store := &flakyStore{}
	f := newTestFlusher(src, store, 0)
	ctx := context.Background()

	if err := f.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if err := f.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if len(store.saves) != 1 {
		t.Fatalf("expected 1 save for an unchanged version, got %d", len(store.saves))
	}

	src.bump()
	f.Flush(ctx)
	if len(store.saves) != 2 || store.saves[1].Version != 2 {
		t.Fatalf("expected a second save at version 2, got %+v", store.saves)
	}
}

func TestFlusher_RetriesThenSucceeds(t *testing.T) {
	src := &fakeSource{version: 3}
	store := &flakyStore{failures: 2}
	f := newTestFlusher(src, store, 2)

	if err := f.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if store.attempts != 3 {
		t.Errorf("attempts = %d, want 3", store.attempts)
	}
	if len(store.saves) != 1 {
		t.Errorf("saves = %d, want 1", len(store.saves))
	}
}

func TestFlusher_FailureIsRetriedNextFlush(t *testing.T) {
	src := &fakeSource{version: 1}
	store := &flakyStore{failures: 1}
	f := newTestFlusher(src, store, 0)
	ctx := context.Background()

	if err := f.Flush(ctx); err == nil {
		t.Fatal("expected the first flush to fail")
	}
	// Same version, but the previous attempt never landed.
	if err := f.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if len(store.saves) != 1 {
		t.Errorf("saves = %d, want 1", len(store.saves))
	}
}

func TestFlusher_CancelledDuringBackoff(t *testing.T) {
	src := &fakeSource{version: 1}
	store := &flakyStore{failures: 10}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := NewFlusher(src, store, FlusherConfig{Retries: 5, Backoff: time.Hour}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := f.Flush(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Flush() error = %v, want context.Canceled", err)
	}
}

type recordingRestorer struct {
	got domain.Snapshot
}

func (r *recordingRestorer) Restore(snap domain.Snapshot) error {
	r.got = snap
	return nil
}

func TestRestore_MarksVersionFlushed(t *testing.T) {
	store := &flakyStore{loaded: domain.Snapshot{Version: 7}}
	src := &fakeSource{version: 7}
	f := newTestFlusher(src, store, 0)
	dst := &recordingRestorer{}

	snap, err := Restore(context.Background(), store, dst, f)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if snap.Version != 7 || dst.got.Version != 7 {
		t.Fatalf("restored version = %d/%d, want 7", snap.Version, dst.got.Version)
	}
	f.Flush(context.Background())
	if len(store.saves) != 0 {
		t.Errorf("expected no save right after restore, got %d", len(store.saves))
	}
}

func TestRecord_RoundTrip(t *testing.T) {
	o := domain.Order{
		ID: "o1", Side: domain.SideSell, Price: decimal.RequireFromString("10.25"),
		Quantity: decimal.NewFromInt(3), RemainingQuantity: decimal.NewFromInt(2),
		OwnerID: "u1", OwnerLabel: "desk", CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 5, time.UTC),
		Seq: 9, Status: domain.OrderStatusPartiallyFilled,
	}
	got, err := FromOrder(o).Order()
	if err != nil {
		t.Fatalf("Order() error = %v", err)
	}
	if got.ID != o.ID || !got.Price.Equal(o.Price) || got.Seq != o.Seq || !got.CreatedAt.Equal(o.CreatedAt) {
		t.Errorf("round trip mismatch: %+v", got)
	}

	bad := FromOrder(o)
	bad.Side = "bid"
	if _, err := bad.Order(); err == nil {
		t.Error("expected an error for an unknown side")
	}
}
