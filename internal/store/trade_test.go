package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/matchbook/internal/domain"
)

var baseTime = time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC)

func newTestTrade(id string, price, qty string, ts time.Time) domain.Trade {
	return domain.Trade{
		ID:          id,
		BuyOrderID:  "buy-1",
		SellOrderID: "sell-1",
		Price:       decimal.RequireFromString(price),
		Quantity:    decimal.RequireFromString(qty),
		Timestamp:   ts,
	}
}

func TestTradeLedger_RecordAndAll(t *testing.T) {
	l := NewTradeLedger(0)
	l.Record(newTestTrade("t1", "100", "1", baseTime))
	l.Record(newTestTrade("t2", "101", "1", baseTime.Add(time.Second)))

	all := l.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(all))
	}
	if all[0].ID != "t1" || all[1].ID != "t2" {
		t.Fatalf("expected record order t1,t2, got %s,%s", all[0].ID, all[1].ID)
	}

	// Mutating the copy must not affect the ledger.
	all[0].ID = "mutated"
	if l.All()[0].ID != "t1" {
		t.Fatal("All() should return a copy")
	}
}

func TestTradeLedger_CurrentPrice(t *testing.T) {
	l := NewTradeLedger(0)
	if _, ok := l.CurrentPrice(); ok {
		t.Fatal("expected no current price on empty ledger")
	}

	l.Record(newTestTrade("t1", "100", "1", baseTime))
	l.Record(newTestTrade("t2", "104.5", "1", baseTime.Add(time.Second)))

	p, ok := l.CurrentPrice()
	if !ok {
		t.Fatal("expected current price")
	}
	if !p.Equal(decimal.RequireFromString("104.5")) {
		t.Errorf("CurrentPrice() = %s, want 104.5", p)
	}
}

func TestTradeLedger_Prune(t *testing.T) {
	l := NewTradeLedger(24 * time.Hour)
	now := baseTime
	l.Record(newTestTrade("old", "90", "1", now.Add(-25*time.Hour)))
	l.Record(newTestTrade("edge", "95", "1", now.Add(-24*time.Hour)))
	l.Record(newTestTrade("new", "100", "1", now.Add(-time.Hour)))

	if removed := l.Prune(now); removed != 1 {
		t.Fatalf("Prune() removed %d, want 1", removed)
	}
	all := l.All()
	if len(all) != 2 || all[0].ID != "edge" || all[1].ID != "new" {
		t.Fatalf("unexpected ledger after prune: %+v", all)
	}
}

func TestTradeLedger_CompleteSince(t *testing.T) {
	l := NewTradeLedger(24 * time.Hour)
	l.Record(newTestTrade("t1", "100", "1", baseTime))
	l.Record(newTestTrade("t2", "101", "1", baseTime.Add(2*time.Hour)))

	if since := l.CompleteSince(); !since.IsZero() {
		t.Fatalf("CompleteSince() = %v, want zero before any prune", since)
	}

	// Nothing old enough to remove: the ledger is still complete.
	l.Prune(baseTime.Add(time.Hour))
	if since := l.CompleteSince(); !since.IsZero() {
		t.Fatalf("CompleteSince() = %v, want zero after empty prune", since)
	}

	now := baseTime.Add(25 * time.Hour)
	if n := l.Prune(now); n != 1 {
		t.Fatalf("Prune() = %d, want 1", n)
	}
	trades, since := l.History()
	if !since.Equal(now.Add(-24 * time.Hour)) {
		t.Errorf("CompleteSince() = %v, want %v", since, now.Add(-24*time.Hour))
	}
	if len(trades) != 1 || trades[0].ID != "t2" {
		t.Errorf("History() trades = %+v, want only t2", trades)
	}

	l.Reset(nil, baseTime.Add(48*time.Hour))
	if since := l.CompleteSince(); !since.Equal(baseTime.Add(48 * time.Hour)) {
		t.Errorf("CompleteSince() after Reset = %v", since)
	}
}

func TestTradeLedger_Volume24h_Empty(t *testing.T) {
	l := NewTradeLedger(0)
	v := l.Volume24h(baseTime)
	if !v.IsZero() {
		t.Errorf("Volume24h() = %s, want 0", v)
	}
}

func TestTradeLedger_Volume24h_WindowAndGuards(t *testing.T) {
	l := NewTradeLedger(48 * time.Hour)
	now := baseTime
	l.Record(newTestTrade("old", "100", "10", now.Add(-25*time.Hour)))
	l.Record(newTestTrade("a", "100", "2", now.Add(-2*time.Hour)))
	l.Record(newTestTrade("b", "50.5", "2", now.Add(-time.Minute)))
	l.Record(newTestTrade("zero", "0", "5", now.Add(-time.Minute)))

	// 100×2 + 50.5×2 = 301
	v := l.Volume24h(now)
	if !v.Equal(decimal.NewFromInt(301)) {
		t.Errorf("Volume24h() = %s, want 301", v)
	}
}

func TestTradeLedger_PriceChange24h_NoBoundary(t *testing.T) {
	l := NewTradeLedger(0)
	l.Record(newTestTrade("a", "100", "1", baseTime.Add(-time.Hour)))

	c := l.PriceChange24h(decimal.NewFromInt(110), baseTime)
	if !c.IsZero() {
		t.Errorf("PriceChange24h() = %s, want 0 without a boundary trade", c)
	}
}

func TestTradeLedger_PriceChange24h_UsesLatestBoundaryTrade(t *testing.T) {
	l := NewTradeLedger(72 * time.Hour)
	now := baseTime
	l.Record(newTestTrade("older", "50", "1", now.Add(-30*time.Hour)))
	l.Record(newTestTrade("boundary", "80", "1", now.Add(-25*time.Hour)))
	l.Record(newTestTrade("inside", "90", "1", now.Add(-time.Hour)))

	c := l.PriceChange24h(decimal.NewFromInt(100), now)
	if !c.Equal(decimal.NewFromInt(25)) {
		t.Errorf("PriceChange24h() = %s, want 25", c)
	}
}

func TestTradeLedger_PriceChange24h_Guards(t *testing.T) {
	l := NewTradeLedger(72 * time.Hour)
	now := baseTime
	l.Record(newTestTrade("zero", "0", "1", now.Add(-25*time.Hour)))

	if c := l.PriceChange24h(decimal.NewFromInt(100), now); !c.IsZero() {
		t.Errorf("PriceChange24h() with zero boundary = %s, want 0", c)
	}
	if c := l.PriceChange24h(decimal.Zero, now); !c.IsZero() {
		t.Errorf("PriceChange24h(0) = %s, want 0", c)
	}
	if c := l.PriceChange24h(decimal.NewFromInt(-5), now); !c.IsZero() {
		t.Errorf("PriceChange24h(-5) = %s, want 0", c)
	}
}

func TestTradeLedger_VWAP(t *testing.T) {
	l := NewTradeLedger(0)
	now := baseTime
	l.Record(newTestTrade("a", "100", "1", now.Add(-10*time.Minute)))
	l.Record(newTestTrade("b", "110", "3", now.Add(-time.Minute)))

	// (100×1 + 110×3) / 4 = 107.5
	v, ok := l.VWAP(time.Hour, now)
	if !ok {
		t.Fatal("expected VWAP to be available")
	}
	if !v.Equal(decimal.RequireFromString("107.5")) {
		t.Errorf("VWAP() = %s, want 107.5", v)
	}

	// Only trade b is inside a 5 minute window.
	v, ok = l.VWAP(5*time.Minute, now)
	if !ok || !v.Equal(decimal.NewFromInt(110)) {
		t.Errorf("VWAP(5m) = %s, %v, want 110, true", v, ok)
	}
}

func TestTradeLedger_VWAP_Unavailable(t *testing.T) {
	l := NewTradeLedger(0)
	if _, ok := l.VWAP(time.Hour, baseTime); ok {
		t.Error("expected VWAP to be unavailable on empty ledger")
	}

	l.Record(newTestTrade("a", "100", "1", baseTime.Add(-2*time.Hour)))
	if _, ok := l.VWAP(time.Hour, baseTime); ok {
		t.Error("expected VWAP to be unavailable when window is empty")
	}
	if _, ok := l.VWAP(0, baseTime); ok {
		t.Error("expected VWAP to be unavailable for a zero window")
	}
}

func TestTradeLedger_Recent(t *testing.T) {
	l := NewTradeLedger(0)
	for i := 0; i < 5; i++ {
		l.Record(newTestTrade(fmt.Sprintf("t%d", i), "100", "1", baseTime.Add(time.Duration(i)*time.Second)))
	}

	recent := l.Recent(3)
	if len(recent) != 3 {
		t.Fatalf("expected 3 trades, got %d", len(recent))
	}
	if recent[0].ID != "t4" || recent[2].ID != "t2" {
		t.Fatalf("expected newest first, got %s..%s", recent[0].ID, recent[2].ID)
	}
	if len(l.Recent(0)) != 0 {
		t.Error("Recent(0) should be empty")
	}
	if len(l.Recent(100)) != 5 {
		t.Error("Recent(100) should return every trade")
	}
}

func TestTradeLedger_ConcurrentAccess(t *testing.T) {
	l := NewTradeLedger(0)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			l.Record(newTestTrade(fmt.Sprintf("t%d", i), "100", "1", baseTime))
		}(i)
		go func() {
			defer wg.Done()
			l.Volume24h(baseTime)
		}()
	}
	wg.Wait()

	if l.Len() != 100 {
		t.Fatalf("expected 100 trades, got %d", l.Len())
	}
}
