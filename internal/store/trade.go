package store

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/matchbook/internal/domain"
)

// StatsWindow is the trailing window behind the 24h statistics.
const StatsWindow = 24 * time.Hour

// TradeLedger is a thread-safe, append-only trade history with bounded
// retention. Trades are kept in record order, which is also the order
// used to break timestamp ties.
type TradeLedger struct {
	mu        sync.RWMutex
	trades    []domain.Trade
	retention time.Duration
	// since is the instant from which the ledger holds every trade. It only
	// moves forward, when Prune removes something.
	since time.Time
}

// NewTradeLedger creates an empty ledger. A non-positive retention falls
// back to StatsWindow.
func NewTradeLedger(retention time.Duration) *TradeLedger {
	if retention <= 0 {
		retention = StatsWindow
	}
	return &TradeLedger{retention: retention}
}

// Retention returns how long trades are kept by Prune.
func (l *TradeLedger) Retention() time.Duration {
	return l.retention
}

// Record appends a trade and returns it.
func (l *TradeLedger) Record(t domain.Trade) domain.Trade {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.trades = append(l.trades, t)
	return t
}

// Prune drops every trade whose timestamp is older than now minus the
// retention and returns how many were removed.
func (l *TradeLedger) Prune(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.retention)
	kept := l.trades[:0]
	for _, t := range l.trades {
		if !t.Timestamp.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	removed := len(l.trades) - len(kept)
	if removed > 0 && cutoff.After(l.since) {
		l.since = cutoff
	}
	// Zero the tail so pruned trades can be collected.
	for i := len(kept); i < len(l.trades); i++ {
		l.trades[i] = domain.Trade{}
	}
	l.trades = kept
	return removed
}

// Reset replaces the ledger contents with trades, in the given order.
// since is the instant from which trades holds every trade ever recorded.
func (l *TradeLedger) Reset(trades []domain.Trade, since time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.trades = make([]domain.Trade, len(trades))
	copy(l.trades, trades)
	l.since = since
}

// CompleteSince returns the instant from which the ledger holds every
// trade ever recorded. It is the zero time until the first trade is pruned.
func (l *TradeLedger) CompleteSince() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.since
}

// CurrentPrice returns the price of the most recently recorded trade.
// Returns false when the ledger is empty.
func (l *TradeLedger) CurrentPrice() (decimal.Decimal, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.trades) == 0 {
		return decimal.Zero, false
	}
	return l.trades[len(l.trades)-1].Price, true
}

// PriceChange24h returns the percentage change of current against the
// boundary trade: the latest trade whose timestamp is at or before
// now-24h. It returns zero when current is not positive, when there is no
// boundary trade or when the boundary price is not positive.
func (l *TradeLedger) PriceChange24h(current decimal.Decimal, now time.Time) decimal.Decimal {
	if !current.IsPositive() {
		return decimal.Zero
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	cutoff := now.Add(-StatsWindow)
	var boundary *domain.Trade
	for i := range l.trades {
		t := &l.trades[i]
		if t.Timestamp.After(cutoff) {
			continue
		}
		if boundary == nil || !t.Timestamp.Before(boundary.Timestamp) {
			boundary = t
		}
	}
	if boundary == nil || !boundary.Price.IsPositive() {
		return decimal.Zero
	}
	return current.Sub(boundary.Price).Div(boundary.Price).Mul(decimal.NewFromInt(100))
}

// Volume24h sums price × quantity over trades with timestamp at or after
// now-24h. Trades with a non-positive price or quantity are ignored.
func (l *TradeLedger) Volume24h(now time.Time) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	cutoff := now.Add(-StatsWindow)
	total := decimal.Zero
	for _, t := range l.trades {
		if t.Timestamp.Before(cutoff) || !usable(t) {
			continue
		}
		total = total.Add(t.Notional())
	}
	return total
}

// VWAP computes the volume-weighted average price over trades inside the
// trailing window ending at now. It returns false when the window holds no
// quantity or is not positive.
func (l *TradeLedger) VWAP(window time.Duration, now time.Time) (decimal.Decimal, bool) {
	if window <= 0 {
		return decimal.Zero, false
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	cutoff := now.Add(-window)
	sumPV := decimal.Zero
	sumQty := decimal.Zero

	// Iterate backwards; most trades of interest are recent.
	for i := len(l.trades) - 1; i >= 0; i-- {
		t := l.trades[i]
		if t.Timestamp.Before(cutoff) || t.Timestamp.After(now) || !usable(t) {
			continue
		}
		sumPV = sumPV.Add(t.Notional())
		sumQty = sumQty.Add(t.Quantity)
	}

	if !sumQty.IsPositive() {
		return decimal.Zero, false
	}
	return sumPV.Div(sumQty), true
}

// CountSince returns how many trades have a timestamp at or after since.
func (l *TradeLedger) CountSince(since time.Time) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0
	for _, t := range l.trades {
		if !t.Timestamp.Before(since) {
			n++
		}
	}
	return n
}

// Recent returns up to n trades, newest first.
func (l *TradeLedger) Recent(n int) []domain.Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 {
		return []domain.Trade{}
	}
	if n > len(l.trades) {
		n = len(l.trades)
	}
	result := make([]domain.Trade, 0, n)
	for i := len(l.trades) - 1; i >= 0 && len(result) < n; i-- {
		result = append(result, l.trades[i])
	}
	return result
}

// All returns every retained trade in record order.
// The returned slice is a copy.
func (l *TradeLedger) All() []domain.Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]domain.Trade, len(l.trades))
	copy(result, l.trades)
	return result
}

// History returns a copy of the retained trades together with
// CompleteSince, read atomically.
func (l *TradeLedger) History() ([]domain.Trade, time.Time) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]domain.Trade, len(l.trades))
	copy(result, l.trades)
	return result, l.since
}

// Len returns the number of retained trades.
func (l *TradeLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.trades)
}

func usable(t domain.Trade) bool {
	return t.Price.IsPositive() && t.Quantity.IsPositive()
}
