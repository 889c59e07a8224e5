package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side indicates whether an order buys or sells the instrument.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is one of the known sides.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

// Order is one resting or incoming intent to trade.
type Order struct {
	ID                string
	Side              Side
	Price             decimal.Decimal
	Quantity          decimal.Decimal
	RemainingQuantity decimal.Decimal
	OwnerID           string
	OwnerLabel        string
	CreatedAt         time.Time
	// Seq is the engine-assigned arrival rank. It breaks ties between
	// orders that share a CreatedAt.
	Seq    uint64
	Status OrderStatus
}

// FilledQuantity returns how much of the order has been executed.
// Cancelled orders report only what traded before cancellation.
func (o *Order) FilledQuantity() decimal.Decimal {
	return o.Quantity.Sub(o.RemainingQuantity)
}

// Open reports whether the order can still trade or be cancelled.
func (o *Order) Open() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusPartiallyFilled
}

// Fill decrements the remaining quantity by qty and advances the status.
// A fill that is not strictly positive or exceeds the remaining quantity
// is an ErrInvariantViolation and leaves the order untouched.
func (o *Order) Fill(qty decimal.Decimal) error {
	if !qty.IsPositive() || qty.GreaterThan(o.RemainingQuantity) {
		return fmt.Errorf("%w: fill of %s against remaining %s on order %s",
			ErrInvariantViolation, qty, o.RemainingQuantity, o.ID)
	}
	o.RemainingQuantity = o.RemainingQuantity.Sub(qty)
	if o.RemainingQuantity.IsZero() {
		o.Status = OrderStatusFilled
	} else {
		o.Status = OrderStatusPartiallyFilled
	}
	return nil
}

// ArrivedBefore reports whether o arrived strictly before other, comparing
// CreatedAt first and the arrival rank second.
func (o *Order) ArrivedBefore(other *Order) bool {
	if !o.CreatedAt.Equal(other.CreatedAt) {
		return o.CreatedAt.Before(other.CreatedAt)
	}
	return o.Seq < other.Seq
}
