package persist

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/matchbook/internal/domain"
)

// OrderRecord is the stored form of a resting order.
type OrderRecord struct {
	ID                string          `json:"id"`
	Side              string          `json:"side"`
	Price             decimal.Decimal `json:"price"`
	Quantity          decimal.Decimal `json:"quantity"`
	RemainingQuantity decimal.Decimal `json:"remaining_quantity"`
	OwnerID           string          `json:"owner_id"`
	OwnerLabel        string          `json:"owner_label"`
	CreatedAt         time.Time       `json:"created_at"`
	Seq               uint64          `json:"seq"`
	Status            string          `json:"status"`
}

// TradeRecord is the stored form of a trade.
type TradeRecord struct {
	ID          string          `json:"id"`
	BuyOrderID  string          `json:"buy_order_id"`
	SellOrderID string          `json:"sell_order_id"`
	Price       decimal.Decimal `json:"price"`
	Quantity    decimal.Decimal `json:"quantity"`
	Timestamp   time.Time       `json:"timestamp"`
	BuyerID     string          `json:"buyer_id"`
	SellerID    string          `json:"seller_id"`
}

// FromOrder converts a domain order to its stored form.
func FromOrder(o domain.Order) OrderRecord {
	return OrderRecord{
		ID:                o.ID,
		Side:              string(o.Side),
		Price:             o.Price,
		Quantity:          o.Quantity,
		RemainingQuantity: o.RemainingQuantity,
		OwnerID:           o.OwnerID,
		OwnerLabel:        o.OwnerLabel,
		CreatedAt:         o.CreatedAt,
		Seq:               o.Seq,
		Status:            string(o.Status),
	}
}

// Order converts the record back to a domain order.
func (r OrderRecord) Order() (domain.Order, error) {
	side := domain.Side(r.Side)
	if !side.Valid() {
		return domain.Order{}, fmt.Errorf("order %s: unknown side %q", r.ID, r.Side)
	}
	return domain.Order{
		ID:                r.ID,
		Side:              side,
		Price:             r.Price,
		Quantity:          r.Quantity,
		RemainingQuantity: r.RemainingQuantity,
		OwnerID:           r.OwnerID,
		OwnerLabel:        r.OwnerLabel,
		CreatedAt:         r.CreatedAt,
		Seq:               r.Seq,
		Status:            domain.OrderStatus(r.Status),
	}, nil
}

// FromTrade converts a domain trade to its stored form.
func FromTrade(t domain.Trade) TradeRecord {
	return TradeRecord(t)
}

// Trade converts the record back to a domain trade.
func (r TradeRecord) Trade() domain.Trade {
	return domain.Trade(r)
}
