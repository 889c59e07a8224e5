package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is an immutable record of one match between a buy and a sell order.
type Trade struct {
	ID          string
	BuyOrderID  string
	SellOrderID string
	Price       decimal.Decimal
	Quantity    decimal.Decimal
	Timestamp   time.Time
	BuyerID     string
	SellerID    string
}

// Notional returns price × quantity.
func (t Trade) Notional() decimal.Decimal {
	return t.Price.Mul(t.Quantity)
}
