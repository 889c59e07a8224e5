package pgstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/matchbook/internal/domain"
)

func openTestStore(t *testing.T, instrument string) *Store {
	t.Helper()
	dsn := os.Getenv("MATCHBOOK_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MATCHBOOK_TEST_POSTGRES_DSN not set")
	}
	s, err := Open(context.Background(), dsn, instrument)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		ctx := context.Background()
		s.pool.Exec(ctx, `DELETE FROM matchbook_orders WHERE instrument = $1`, instrument)
		s.pool.Exec(ctx, `DELETE FROM matchbook_trades WHERE instrument = $1`, instrument)
		s.pool.Exec(ctx, `DELETE FROM matchbook_meta WHERE instrument = $1`, instrument)
		s.Close()
	})
	return s
}

func TestStore_LoadMissing(t *testing.T) {
	s := openTestStore(t, "TEST-EMPTY")

	snap, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if snap.Version != 0 || len(snap.Orders) != 0 || len(snap.Trades) != 0 {
		t.Errorf("expected empty snapshot, got %+v", snap)
	}
}

func TestStore_SaveLoad(t *testing.T) {
	s := openTestStore(t, "TEST-RT")
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	snap := domain.Snapshot{
		Orders: []domain.Order{
			{
				ID: "s1", Side: domain.SideSell,
				Price: decimal.RequireFromString("101.25"), Quantity: decimal.NewFromInt(4),
				RemainingQuantity: decimal.RequireFromString("1.5"),
				OwnerID:           "alice", CreatedAt: base, Seq: 1,
				Status: domain.OrderStatusPartiallyFilled,
			},
			{
				ID: "b1", Side: domain.SideBuy,
				Price: decimal.NewFromInt(99), Quantity: decimal.NewFromInt(2),
				RemainingQuantity: decimal.NewFromInt(2),
				OwnerID:           "bob", OwnerLabel: "Bob", CreatedAt: base.Add(time.Second), Seq: 2,
				Status: domain.OrderStatusPending,
			},
		},
		Trades: []domain.Trade{{
			ID: "t1", BuyOrderID: "x", SellOrderID: "s1",
			Price: decimal.RequireFromString("101.25"), Quantity: decimal.RequireFromString("2.5"),
			Timestamp: base, BuyerID: "carol", SellerID: "alice",
		}},
		Version: 9,
		TakenAt: base.Add(time.Minute),
	}
	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	// A second save replaces the first.
	snap.Version = 10
	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Version != 10 {
		t.Errorf("Version = %d, want 10", got.Version)
	}
	if len(got.Orders) != 2 || got.Orders[0].ID != "s1" || got.Orders[1].ID != "b1" {
		t.Fatalf("unexpected orders %+v", got.Orders)
	}
	if !got.Orders[0].RemainingQuantity.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("remaining = %s, want 1.5", got.Orders[0].RemainingQuantity)
	}
	if !got.Orders[0].CreatedAt.Equal(base) {
		t.Errorf("created_at = %v, want %v", got.Orders[0].CreatedAt, base)
	}
	if len(got.Trades) != 1 || !got.Trades[0].Quantity.Equal(decimal.RequireFromString("2.5")) {
		t.Errorf("unexpected trades %+v", got.Trades)
	}
}
