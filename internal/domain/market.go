package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketSnapshot is derived from the trade ledger at a point in time.
// CurrentPrice and VWAP24h are nil when no trade supports them.
type MarketSnapshot struct {
	Instrument     string
	CurrentPrice   *decimal.Decimal
	PriceChange24h decimal.Decimal
	Volume24h      decimal.Decimal
	VWAP24h        *decimal.Decimal
	TradeCount24h  int
	At             time.Time
}

// Candle is one OHLCV bucket for a given interval.
type Candle struct {
	Interval    string          `json:"interval"`
	BucketStart time.Time       `json:"bucket_start"`
	Open        decimal.Decimal `json:"open"`
	High        decimal.Decimal `json:"high"`
	Low         decimal.Decimal `json:"low"`
	Close       decimal.Decimal `json:"close"`
	Volume      decimal.Decimal `json:"volume"`
	TradeCount  int             `json:"trade_count"`
}

// Snapshot is the persisted shape of the engine: the resting orders and the
// retained trades. Version increases with every engine mutation so flushers
// can skip unchanged state.
type Snapshot struct {
	Orders  []Order
	Trades  []Trade
	Version uint64
	TakenAt time.Time
}
