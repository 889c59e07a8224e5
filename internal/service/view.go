package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/matchbook/internal/domain"
	"github.com/efreitasn/matchbook/internal/engine"
)

// Sections and types of the events this package publishes.
const (
	SectionMarket = "market"
	SectionSignal = "signal"

	TypeTrade  = "trade"
	TypeBook   = "book"
	TypeUpdate = "update"
)

// Publisher queues an event for fan-out. It reports false when the event
// was dropped, either as a duplicate or because the queue was full.
type Publisher interface {
	Publish(section, typ string, payload any) bool
}

// OrderView is the wire form of an order.
type OrderView struct {
	ID                string          `json:"id"`
	Side              domain.Side     `json:"side"`
	Price             decimal.Decimal `json:"price"`
	Quantity          decimal.Decimal `json:"quantity"`
	RemainingQuantity decimal.Decimal `json:"remaining_quantity"`
	FilledQuantity    decimal.Decimal `json:"filled_quantity"`
	OwnerID           string          `json:"owner_id"`
	OwnerLabel        string          `json:"owner_label,omitempty"`
	Status            string          `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
}

func NewOrderView(o domain.Order) OrderView {
	return OrderView{
		ID:                o.ID,
		Side:              o.Side,
		Price:             o.Price,
		Quantity:          o.Quantity,
		RemainingQuantity: o.RemainingQuantity,
		FilledQuantity:    o.FilledQuantity(),
		OwnerID:           o.OwnerID,
		OwnerLabel:        o.OwnerLabel,
		Status:            string(o.Status),
		CreatedAt:         o.CreatedAt,
	}
}

// TradeView is the wire form of a trade.
type TradeView struct {
	ID          string          `json:"id"`
	BuyOrderID  string          `json:"buy_order_id"`
	SellOrderID string          `json:"sell_order_id"`
	Price       decimal.Decimal `json:"price"`
	Quantity    decimal.Decimal `json:"quantity"`
	Timestamp   time.Time       `json:"timestamp"`
	BuyerID     string          `json:"buyer_id"`
	SellerID    string          `json:"seller_id"`
}

func NewTradeView(t domain.Trade) TradeView {
	return TradeView{
		ID:          t.ID,
		BuyOrderID:  t.BuyOrderID,
		SellOrderID: t.SellOrderID,
		Price:       t.Price,
		Quantity:    t.Quantity,
		Timestamp:   t.Timestamp,
		BuyerID:     t.BuyerID,
		SellerID:    t.SellerID,
	}
}

// NewTradeViews converts a slice of trades, never returning nil.
func NewTradeViews(trades []domain.Trade) []TradeView {
	views := make([]TradeView, len(trades))
	for i, t := range trades {
		views[i] = NewTradeView(t)
	}
	return views
}

type PriceLevelView struct {
	Price         decimal.Decimal `json:"price"`
	TotalQuantity decimal.Decimal `json:"total_quantity"`
	OrderCount    int             `json:"order_count"`
}

// BookView is the aggregated top of book. Version precedes the levels so
// that books differing past the fingerprint prefix never collapse.
type BookView struct {
	Instrument string           `json:"instrument"`
	Version    uint64           `json:"version"`
	Buys       []PriceLevelView `json:"buys"`
	Sells      []PriceLevelView `json:"sells"`
}

func levelViews(levels []engine.PriceLevel) []PriceLevelView {
	views := make([]PriceLevelView, len(levels))
	for i, l := range levels {
		views[i] = PriceLevelView{Price: l.Price, TotalQuantity: l.TotalQuantity, OrderCount: l.OrderCount}
	}
	return views
}

func NewBookView(instrument string, d engine.Depth) BookView {
	return BookView{
		Instrument: instrument,
		Version:    d.Version,
		Buys:       levelViews(d.Buys),
		Sells:      levelViews(d.Sells),
	}
}

// MarketView is the wire form of a market snapshot. Optional values are
// null when no trade supports them.
type MarketView struct {
	Instrument     string           `json:"instrument"`
	CurrentPrice   *decimal.Decimal `json:"current_price"`
	PriceChange24h decimal.Decimal  `json:"price_change_24h"`
	Volume24h      decimal.Decimal  `json:"volume_24h"`
	VWAP24h        *decimal.Decimal `json:"vwap_24h"`
	TradeCount24h  int              `json:"trade_count_24h"`
}

// NewMarketView leaves out the snapshot time so identical snapshots encode
// identically and collapse in the fan-out dedup window.
func NewMarketView(s domain.MarketSnapshot) MarketView {
	return MarketView{
		Instrument:     s.Instrument,
		CurrentPrice:   s.CurrentPrice,
		PriceChange24h: s.PriceChange24h,
		Volume24h:      s.Volume24h,
		VWAP24h:        s.VWAP24h,
		TradeCount24h:  s.TradeCount24h,
	}
}
