package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"github.com/efreitasn/matchbook/internal/domain"
)

// Feature: matchbook, Property 1: Book ordering invariant

// genRestingOrder generates an order with constrained values. A small range
// of seconds and prices encourages ties in both keys.
func genRestingOrder(id int, side domain.Side) *rapid.Generator[*domain.Order] {
	return rapid.Custom(func(t *rapid.T) *domain.Order {
		price := decimal.NewFromInt(rapid.Int64Range(1, 20).Draw(t, "price"))
		qty := decimal.NewFromInt(rapid.Int64Range(1, 50).Draw(t, "qty"))
		secOffset := rapid.IntRange(0, 5).Draw(t, "secOffset")
		return &domain.Order{
			ID:                fmt.Sprintf("order-%d", id),
			Side:              side,
			Price:             price,
			Quantity:          qty,
			RemainingQuantity: qty,
			CreatedAt:         time.Date(2025, 1, 1, 0, 0, secOffset, 0, time.UTC),
			Seq:               uint64(id + 1),
			Status:            domain.OrderStatusPending,
		}
	})
}

func checkSideOrdering(t *rapid.T, ob *OrderBook, side domain.Side) {
	var prev *domain.Order
	ob.Walk(side, func(o *domain.Order) bool {
		if prev != nil {
			cmp := o.Price.Cmp(prev.Price)
			if side == domain.SideBuy && cmp > 0 {
				t.Fatalf("buy side: price should be descending, got %s after %s", o.Price, prev.Price)
			}
			if side == domain.SideSell && cmp < 0 {
				t.Fatalf("sell side: price should be ascending, got %s after %s", o.Price, prev.Price)
			}
			if cmp == 0 && o.ArrivedBefore(prev) {
				t.Fatalf("%s side: same price %s, %s arrived before %s but is queued after it",
					side, o.Price, o.ID, prev.ID)
			}
		}
		prev = o
		return true
	})
}

func TestProperty_BookSortingInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 60).Draw(t, "numOrders")
		ob := NewOrderBook("TEST")

		for i := 0; i < n; i++ {
			side := rapid.SampledFrom([]domain.Side{domain.SideBuy, domain.SideSell}).Draw(t, fmt.Sprintf("side-%d", i))
			o := genRestingOrder(i, side).Draw(t, fmt.Sprintf("order-%d", i))
			if err := ob.Submit(o); err != nil {
				t.Fatalf("Submit() error = %v", err)
			}
		}

		checkSideOrdering(t, ob, domain.SideBuy)
		checkSideOrdering(t, ob, domain.SideSell)

		if ob.BuyCount()+ob.SellCount() != n {
			t.Fatalf("counts %d+%d != %d", ob.BuyCount(), ob.SellCount(), n)
		}
	})
}

// Feature: matchbook, Property 2: Removal keeps the remaining queue intact

func TestProperty_RemoveKeepsOrdering(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 40).Draw(t, "numOrders")
		ob := NewOrderBook("TEST")
		ids := make([]string, 0, n)

		for i := 0; i < n; i++ {
			o := genRestingOrder(i, domain.SideSell).Draw(t, fmt.Sprintf("order-%d", i))
			if err := ob.Submit(o); err != nil {
				t.Fatalf("Submit() error = %v", err)
			}
			ids = append(ids, o.ID)
		}

		removeCount := rapid.IntRange(0, n).Draw(t, "removeCount")
		perm := rapid.Permutation(ids).Draw(t, "perm")
		for _, id := range perm[:removeCount] {
			if _, ok := ob.Remove(id); !ok {
				t.Fatalf("Remove(%s) reported missing", id)
			}
		}

		if ob.Len() != n-removeCount {
			t.Fatalf("Len() = %d, want %d", ob.Len(), n-removeCount)
		}
		checkSideOrdering(t, ob, domain.SideSell)

		levels := 0
		for _, lv := range ob.TopSells(n) {
			if lv.OrderCount == 0 {
				t.Fatal("empty price level left in the tree")
			}
			levels++
		}
		if levels != ob.Stats().SellPriceLevels {
			t.Fatalf("TopSells levels %d != stats levels %d", levels, ob.Stats().SellPriceLevels)
		}
	})
}
