package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/matchbook/internal/domain"
	"github.com/efreitasn/matchbook/internal/store"
)

// QuotePriceLevel represents a single price level in a quote simulation.
type QuotePriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// QuoteResult holds the result of walking the book for a hypothetical
// order of a given size.
type QuoteResult struct {
	QuantityAvailable decimal.Decimal
	FullyFillable     bool
	EstimatedAvgPrice *decimal.Decimal // nil when no liquidity
	EstimatedTotal    *decimal.Decimal // nil when no liquidity
	PriceLevels       []QuotePriceLevel
}

// Matcher crosses the best buy against the best sell until the book no
// longer crosses.
type Matcher struct {
	now   func() time.Time
	newID func() string
}

// NewMatcher creates a Matcher. A nil clock defaults to time.Now.
func NewMatcher(now func() time.Time) *Matcher {
	if now == nil {
		now = time.Now
	}
	return &Matcher{
		now:   now,
		newID: func() string { return uuid.New().String() },
	}
}

// Match runs the match loop over book and records every trade in ledger.
// It returns the trades in execution order.
//
// The trade price is the price of whichever order arrived first. The loop
// re-selects the best of each side after every fill, so price priority is
// honoured across levels before time priority within a level.
//
// The caller must hold the engine write lock.
func (m *Matcher) Match(book *OrderBook, ledger *store.TradeLedger) []domain.Trade {
	var trades []domain.Trade
	executedAt := m.now()

	for {
		// Step 1: Peek the best of each side.
		buy, ok := book.BestBuy()
		if !ok {
			break
		}
		sell, ok := book.BestSell()
		if !ok {
			break
		}

		// Step 2: Check for a crossing pair.
		if buy.Price.LessThan(sell.Price) {
			break
		}

		// Step 3: Price comes from the order that arrived first.
		price := sell.Price
		if buy.ArrivedBefore(sell) {
			price = buy.Price
		}
		qty := decimal.Min(buy.RemainingQuantity, sell.RemainingQuantity)

		// Step 4: Fill both orders. A failed fill means the book holds an
		// order with a non-positive remainder, which Submit never allows.
		if err := buy.Fill(qty); err != nil {
			panic(err)
		}
		if err := sell.Fill(qty); err != nil {
			panic(err)
		}

		trade := ledger.Record(domain.Trade{
			ID:          m.newID(),
			BuyOrderID:  buy.ID,
			SellOrderID: sell.ID,
			Price:       price,
			Quantity:    qty,
			Timestamp:   executedAt,
			BuyerID:     buy.OwnerID,
			SellerID:    sell.OwnerID,
		})
		trades = append(trades, trade)

		// Step 5: Drop fully filled orders.
		if buy.RemainingQuantity.IsZero() {
			book.Remove(buy.ID)
		}
		if sell.RemainingQuantity.IsZero() {
			book.Remove(sell.ID)
		}
	}

	return trades
}

// Quote performs a read-only walk of the side opposite to side to estimate
// the result of an order for quantity that takes liquidity at any price.
// For buy quotes it walks sells (lowest first); for sell quotes it walks
// buys (highest first).
func Quote(book *OrderBook, side domain.Side, quantity decimal.Decimal) *QuoteResult {
	result := &QuoteResult{
		QuantityAvailable: decimal.Zero,
		PriceLevels:       make([]QuotePriceLevel, 0),
	}

	remaining := quantity
	totalCost := decimal.Zero

	book.Walk(side.Opposite(), func(o *domain.Order) bool {
		if !remaining.IsPositive() {
			return false
		}
		fillQty := decimal.Min(o.RemainingQuantity, remaining)
		totalCost = totalCost.Add(o.Price.Mul(fillQty))
		result.QuantityAvailable = result.QuantityAvailable.Add(fillQty)
		remaining = remaining.Sub(fillQty)

		// Aggregate into price levels.
		if n := len(result.PriceLevels); n > 0 && result.PriceLevels[n-1].Price.Equal(o.Price) {
			result.PriceLevels[n-1].Quantity = result.PriceLevels[n-1].Quantity.Add(fillQty)
		} else {
			result.PriceLevels = append(result.PriceLevels, QuotePriceLevel{
				Price:    o.Price,
				Quantity: fillQty,
			})
		}
		return true
	})

	if result.QuantityAvailable.IsPositive() {
		avgPrice := totalCost.Div(result.QuantityAvailable)
		result.EstimatedAvgPrice = &avgPrice
		result.EstimatedTotal = &totalCost
	}
	result.FullyFillable = result.QuantityAvailable.GreaterThanOrEqual(quantity)

	return result
}
