package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func newOrder(qty string) *Order {
	q := decimal.RequireFromString(qty)
	return &Order{
		ID:                "o1",
		Side:              SideBuy,
		Price:             decimal.NewFromInt(100),
		Quantity:          q,
		RemainingQuantity: q,
		Status:            OrderStatusPending,
	}
}

func TestSide_Valid(t *testing.T) {
	if !SideBuy.Valid() || !SideSell.Valid() {
		t.Error("buy and sell should be valid sides")
	}
	if Side("bid").Valid() {
		t.Error("bid should not be a valid side")
	}
	if Side("").Valid() {
		t.Error("empty side should not be valid")
	}
}

func TestSide_Opposite(t *testing.T) {
	if SideBuy.Opposite() != SideSell {
		t.Errorf("SideBuy.Opposite() = %q, want sell", SideBuy.Opposite())
	}
	if SideSell.Opposite() != SideBuy {
		t.Errorf("SideSell.Opposite() = %q, want buy", SideSell.Opposite())
	}
}

func TestOrder_Fill_Partial(t *testing.T) {
	o := newOrder("10")
	if err := o.Fill(decimal.NewFromInt(4)); err != nil {
		t.Fatalf("Fill() error = %v", err)
	}
	if !o.RemainingQuantity.Equal(decimal.NewFromInt(6)) {
		t.Errorf("RemainingQuantity = %s, want 6", o.RemainingQuantity)
	}
	if o.Status != OrderStatusPartiallyFilled {
		t.Errorf("Status = %s, want partially_filled", o.Status)
	}
	if !o.FilledQuantity().Equal(decimal.NewFromInt(4)) {
		t.Errorf("FilledQuantity() = %s, want 4", o.FilledQuantity())
	}
}

func TestOrder_Fill_Complete(t *testing.T) {
	o := newOrder("2.5")
	if err := o.Fill(decimal.RequireFromString("2.5")); err != nil {
		t.Fatalf("Fill() error = %v", err)
	}
	if !o.RemainingQuantity.IsZero() {
		t.Errorf("RemainingQuantity = %s, want 0", o.RemainingQuantity)
	}
	if o.Status != OrderStatusFilled {
		t.Errorf("Status = %s, want filled", o.Status)
	}
	if o.Open() {
		t.Error("filled order should not be open")
	}
}

func TestOrder_Fill_OverfillIsInvariantViolation(t *testing.T) {
	o := newOrder("3")
	err := o.Fill(decimal.NewFromInt(4))
	if !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("Fill() error = %v, want ErrInvariantViolation", err)
	}
	if !o.RemainingQuantity.Equal(decimal.NewFromInt(3)) {
		t.Errorf("RemainingQuantity changed to %s after rejected fill", o.RemainingQuantity)
	}
	if o.Status != OrderStatusPending {
		t.Errorf("Status changed to %s after rejected fill", o.Status)
	}
}

func TestOrder_Fill_NonPositiveIsInvariantViolation(t *testing.T) {
	o := newOrder("3")
	if err := o.Fill(decimal.Zero); !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("Fill(0) error = %v, want ErrInvariantViolation", err)
	}
	if err := o.Fill(decimal.NewFromInt(-1)); !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("Fill(-1) error = %v, want ErrInvariantViolation", err)
	}
}

func TestOrder_ArrivedBefore(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a := &Order{CreatedAt: base, Seq: 2}
	b := &Order{CreatedAt: base.Add(time.Millisecond), Seq: 1}
	if !a.ArrivedBefore(b) {
		t.Error("earlier CreatedAt should arrive first regardless of Seq")
	}
	c := &Order{CreatedAt: base, Seq: 3}
	if !a.ArrivedBefore(c) {
		t.Error("equal CreatedAt should fall back to lower Seq")
	}
	if c.ArrivedBefore(a) {
		t.Error("higher Seq should not arrive first at equal CreatedAt")
	}
}

func TestTrade_Notional(t *testing.T) {
	tr := Trade{Price: decimal.RequireFromString("100.5"), Quantity: decimal.NewFromInt(4)}
	if !tr.Notional().Equal(decimal.NewFromInt(402)) {
		t.Errorf("Notional() = %s, want 402", tr.Notional())
	}
}
