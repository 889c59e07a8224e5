package engine

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/matchbook/internal/domain"
	"github.com/efreitasn/matchbook/internal/store"
)

// Depth is the aggregated top of book for both sides.
type Depth struct {
	// Version is the engine state version the levels were read at.
	Version uint64
	Buys    []PriceLevel
	Sells   []PriceLevel
}

// SubmitResult is the outcome of one submit+match cycle.
type SubmitResult struct {
	Order  domain.Order
	Trades []domain.Trade
}

// Engine owns the order book and trade ledger of one instrument. Every
// mutation runs under a single write lock, so submit and match form one
// atomic unit; readers take the read lock and receive copies.
type Engine struct {
	mu        sync.RWMutex
	book      *OrderBook
	ledger    *store.TradeLedger
	orders    *store.OrderStore
	matcher   *Matcher
	now       func() time.Time
	retention time.Duration
	seq       uint64
	version   uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now as the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithRetention sets how long trades and closed orders are kept.
func WithRetention(d time.Duration) Option {
	return func(e *Engine) {
		e.retention = d
	}
}

// New creates an Engine for the given instrument.
func New(instrument string, opts ...Option) *Engine {
	e := &Engine{
		book:      NewOrderBook(instrument),
		orders:    store.NewOrderStore(),
		now:       time.Now,
		retention: store.StatsWindow,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.ledger = store.NewTradeLedger(e.retention)
	e.retention = e.ledger.Retention()
	e.matcher = NewMatcher(e.now)
	return e
}

// Instrument returns the instrument traded by this engine.
func (e *Engine) Instrument() string {
	return e.book.Instrument()
}

// Submit validates o, rests it on the book and runs the match loop. The
// caller may supply ID and CreatedAt; the engine fills them in when empty
// and always assigns the arrival rank, remaining quantity and status.
func (e *Engine) Submit(o domain.Order) (SubmitResult, error) {
	o.RemainingQuantity = o.Quantity
	if err := ValidateOrder(&o); err != nil {
		return SubmitResult{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if o.ID == "" {
		o.ID = uuid.New().String()
	} else if e.orders.Exists(o.ID) {
		return SubmitResult{}, domain.Reject(domain.RejectInvalidRequest, "order id "+o.ID+" already exists")
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = e.now()
	}
	e.seq++
	o.Seq = e.seq
	o.Status = domain.OrderStatusPending

	order := &o
	if err := e.book.Submit(order); err != nil {
		return SubmitResult{}, err
	}
	e.orders.Create(order)

	trades := e.matcher.Match(e.book, e.ledger)
	e.version++

	return SubmitResult{Order: *order, Trades: trades}, nil
}

// Cancel removes a resting order from the book.
//
// Returns ErrOrderNotFound if the order is unknown.
// Returns ErrOrderNotCancellable if the order is filled or cancelled.
func (e *Engine) Cancel(orderID string) (domain.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, err := e.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !o.Open() {
		return domain.Order{}, domain.ErrOrderNotCancellable
	}

	e.book.Remove(orderID)
	o.Status = domain.OrderStatusCancelled
	e.version++

	return *o, nil
}

// Order returns a copy of an order the engine has accepted.
func (e *Engine) Order(orderID string) (domain.Order, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	o, err := e.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return *o, nil
}

// OrdersByOwner returns a page of an owner's orders, newest first, and the
// total number of matching orders.
func (e *Engine) OrdersByOwner(ownerID string, status *domain.OrderStatus, page, limit int) ([]domain.Order, int) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	list, total := e.orders.ListByOwner(ownerID, status, page, limit)
	result := make([]domain.Order, len(list))
	for i, o := range list {
		result[i] = *o
	}
	return result, total
}

// Depth returns up to n aggregated price levels per side.
func (e *Engine) Depth(n int) Depth {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return Depth{
		Version: e.version,
		Buys:    e.book.TopBuys(n),
		Sells:   e.book.TopSells(n),
	}
}

// BookStats returns order counts and resting quantity per side.
func (e *Engine) BookStats() BookStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.book.Stats()
}

// Quote estimates the execution of an order of the given side and
// quantity against the current book without placing it.
func (e *Engine) Quote(side domain.Side, quantity decimal.Decimal) (*QuoteResult, error) {
	if !side.Valid() {
		return nil, domain.Reject(domain.RejectInvalidSide, "side must be buy or sell")
	}
	if !quantity.IsPositive() {
		return nil, domain.Reject(domain.RejectInvalidQuantity, "quantity must be > 0")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	return Quote(e.book, side, quantity), nil
}

// RecentTrades returns up to n trades, newest first.
func (e *Engine) RecentTrades(n int) []domain.Trade {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.ledger.Recent(n)
}

// Trades returns every retained trade in execution order.
func (e *Engine) Trades() []domain.Trade {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.ledger.All()
}

// TradeHistory returns the retained trades and the instant from which they
// are complete. Candles for buckets starting before that instant cannot be
// rebuilt from the trades alone.
func (e *Engine) TradeHistory() ([]domain.Trade, time.Time) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.ledger.History()
}

// CurrentPrice returns the price of the most recent trade.
func (e *Engine) CurrentPrice() (decimal.Decimal, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.ledger.CurrentPrice()
}

// VWAP returns the volume-weighted average price over the trailing window.
func (e *Engine) VWAP(window time.Duration) (decimal.Decimal, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.ledger.VWAP(window, e.now())
}

// Market derives the market snapshot from the ledger.
func (e *Engine) Market() domain.MarketSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	now := e.now()
	snap := domain.MarketSnapshot{
		Instrument:     e.book.Instrument(),
		PriceChange24h: decimal.Zero,
		Volume24h:      e.ledger.Volume24h(now),
		TradeCount24h:  e.ledger.CountSince(now.Add(-store.StatsWindow)),
		At:             now,
	}
	if p, ok := e.ledger.CurrentPrice(); ok {
		snap.CurrentPrice = &p
		snap.PriceChange24h = e.ledger.PriceChange24h(p, now)
	}
	if v, ok := e.ledger.VWAP(store.StatsWindow, now); ok {
		snap.VWAP24h = &v
	}
	return snap
}

// Prune drops trades older than the retention window along with closed
// orders created before it. It returns how many of each were removed.
func (e *Engine) Prune() (trades, orders int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	trades = e.ledger.Prune(now)
	orders = e.orders.PruneClosed(now.Add(-e.retention))
	if trades > 0 || orders > 0 {
		e.version++
	}
	return trades, orders
}

// Version increases with every mutation of the book or ledger.
func (e *Engine) Version() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.version
}

// Snapshot copies the resting orders, in priority order with buys first,
// and the retained trades.
func (e *Engine) Snapshot() domain.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	orders := make([]domain.Order, 0, e.book.Len())
	collect := func(o *domain.Order) bool {
		orders = append(orders, *o)
		return true
	}
	e.book.Walk(domain.SideBuy, collect)
	e.book.Walk(domain.SideSell, collect)

	return domain.Snapshot{
		Orders:  orders,
		Trades:  e.ledger.All(),
		Version: e.version,
		TakenAt: e.now(),
	}
}

// Restore replaces the engine state with snap. Orders are re-inserted in
// arrival order and trades outside the retention window are dropped. No
// matching is performed; a snapshot taken by Snapshot never crosses.
func (e *Engine) Restore(snap domain.Snapshot) error {
	orders := make([]domain.Order, len(snap.Orders))
	copy(orders, snap.Orders)
	for i := range orders {
		o := &orders[i]
		if err := ValidateOrder(o); err != nil {
			return fmt.Errorf("restore order %s: %w", o.ID, err)
		}
		if !o.RemainingQuantity.IsPositive() || !o.Open() {
			return fmt.Errorf("restore order %s: %w: resting order is not open", o.ID, domain.ErrInvariantViolation)
		}
	}
	slices.SortStableFunc(orders, func(a, b domain.Order) int {
		switch {
		case a.ArrivedBefore(&b):
			return -1
		case b.ArrivedBefore(&a):
			return 1
		}
		return 0
	})

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	book := NewOrderBook(e.book.Instrument())
	index := store.NewOrderStore()
	var seq uint64
	for i := range orders {
		o := &orders[i]
		if err := book.Submit(o); err != nil {
			return fmt.Errorf("restore order %s: %w", o.ID, err)
		}
		index.Create(o)
		seq = max(seq, o.Seq)
	}

	cutoff := now.Add(-e.retention)
	trades := make([]domain.Trade, 0, len(snap.Trades))
	for _, t := range snap.Trades {
		if !t.Timestamp.Before(cutoff) {
			trades = append(trades, t)
		}
	}
	slices.SortStableFunc(trades, func(a, b domain.Trade) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	e.book = book
	e.orders = index
	// A snapshot is complete from its last prune cutoff, which is never
	// later than the restore cutoff.
	e.ledger.Reset(trades, cutoff)
	e.seq = seq
	e.version = snap.Version
	return nil
}
