package engine

import (
	"sort"

	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/matchbook/internal/domain"
)

// priceLevel holds every resting order at one price in arrival order.
type priceLevel struct {
	price  decimal.Decimal
	orders []*domain.Order // FIFO by (CreatedAt, Seq)
}

// PriceLevel represents an aggregated price level in the order book.
type PriceLevel struct {
	Price         decimal.Decimal
	TotalQuantity decimal.Decimal
	OrderCount    int
}

// BookStats summarizes the resting orders on each side.
type BookStats struct {
	BuyOrders       int
	SellOrders      int
	BuyQuantity     decimal.Decimal
	SellQuantity    decimal.Decimal
	BestBuy         *decimal.Decimal
	BestSell        *decimal.Decimal
	Spread          *decimal.Decimal
	BuyPriceLevels  int
	SellPriceLevels int
}

// buyLess orders buy levels by price descending, so Min() is the best bid.
func buyLess(a, b *priceLevel) bool {
	return a.price.GreaterThan(b.price)
}

// sellLess orders sell levels by price ascending, so Min() is the best ask.
func sellLess(a, b *priceLevel) bool {
	return a.price.LessThan(b.price)
}

// OrderBook maintains the buy and sell sides for one instrument. Each side
// is a B-tree of price levels with a FIFO queue per level, and a secondary
// index gives O(log n) removal by order ID.
//
// OrderBook is not safe for concurrent use; the Engine serializes access.
type OrderBook struct {
	instrument string
	buys       *btree.BTreeG[*priceLevel]
	sells      *btree.BTreeG[*priceLevel]
	index      map[string]*domain.Order // order_id → resting order
	buyCount   int
	sellCount  int
}

// NewOrderBook creates an order book for the given instrument.
func NewOrderBook(instrument string) *OrderBook {
	const degree = 32
	return &OrderBook{
		instrument: instrument,
		buys:       btree.NewG[*priceLevel](degree, buyLess),
		sells:      btree.NewG[*priceLevel](degree, sellLess),
		index:      make(map[string]*domain.Order),
	}
}

// Instrument returns the instrument this book trades.
func (ob *OrderBook) Instrument() string {
	return ob.instrument
}

// ValidateOrder checks the fields every incoming order must satisfy.
func ValidateOrder(o *domain.Order) error {
	if !o.Side.Valid() {
		return domain.Reject(domain.RejectInvalidSide, "side must be buy or sell")
	}
	if !o.Price.IsPositive() {
		return domain.Reject(domain.RejectInvalidPrice, "price must be > 0")
	}
	if !o.Quantity.IsPositive() {
		return domain.Reject(domain.RejectInvalidQuantity, "quantity must be > 0")
	}
	if o.RemainingQuantity.IsNegative() || o.RemainingQuantity.GreaterThan(o.Quantity) {
		return domain.Reject(domain.RejectInvalidQuantity, "remaining quantity must be between 0 and quantity")
	}
	return nil
}

// Submit validates o and inserts it at its priority position. A zero
// RemainingQuantity is taken to mean a fresh order and is set to Quantity.
// Matching is not performed here.
func (ob *OrderBook) Submit(o *domain.Order) error {
	if o.RemainingQuantity.IsZero() {
		o.RemainingQuantity = o.Quantity
	}
	if err := ValidateOrder(o); err != nil {
		return err
	}
	if _, exists := ob.index[o.ID]; exists {
		return domain.Reject(domain.RejectInvalidRequest, "order "+o.ID+" is already resting")
	}
	ob.insert(o)
	return nil
}

func (ob *OrderBook) side(s domain.Side) *btree.BTreeG[*priceLevel] {
	if s == domain.SideBuy {
		return ob.buys
	}
	return ob.sells
}

func (ob *OrderBook) insert(o *domain.Order) {
	tree := ob.side(o.Side)
	lvl, ok := tree.Get(&priceLevel{price: o.Price})
	if !ok {
		lvl = &priceLevel{price: o.Price}
		tree.ReplaceOrInsert(lvl)
	}

	// Orders normally arrive in time order, so this is an append; restored
	// or back-dated orders land at their arrival position.
	i := sort.Search(len(lvl.orders), func(i int) bool {
		return o.ArrivedBefore(lvl.orders[i])
	})
	lvl.orders = append(lvl.orders, nil)
	copy(lvl.orders[i+1:], lvl.orders[i:])
	lvl.orders[i] = o

	ob.index[o.ID] = o
	if o.Side == domain.SideBuy {
		ob.buyCount++
	} else {
		ob.sellCount++
	}
}

// Remove deletes a resting order by ID and returns it. Empty price levels
// are dropped from the tree.
func (ob *OrderBook) Remove(orderID string) (*domain.Order, bool) {
	o, ok := ob.index[orderID]
	if !ok {
		return nil, false
	}
	delete(ob.index, orderID)

	tree := ob.side(o.Side)
	lvl, ok := tree.Get(&priceLevel{price: o.Price})
	if ok {
		for i, queued := range lvl.orders {
			if queued == o {
				copy(lvl.orders[i:], lvl.orders[i+1:])
				lvl.orders[len(lvl.orders)-1] = nil
				lvl.orders = lvl.orders[:len(lvl.orders)-1]
				break
			}
		}
		if len(lvl.orders) == 0 {
			tree.Delete(lvl)
		}
	}

	if o.Side == domain.SideBuy {
		ob.buyCount--
	} else {
		ob.sellCount--
	}
	return o, true
}

// Get returns the resting order with the given ID.
func (ob *OrderBook) Get(orderID string) (*domain.Order, bool) {
	o, ok := ob.index[orderID]
	return o, ok
}

// BestBuy returns the highest-priority buy (highest price, earliest arrival).
func (ob *OrderBook) BestBuy() (*domain.Order, bool) {
	return best(ob.buys)
}

// BestSell returns the highest-priority sell (lowest price, earliest arrival).
func (ob *OrderBook) BestSell() (*domain.Order, bool) {
	return best(ob.sells)
}

func best(tree *btree.BTreeG[*priceLevel]) (*domain.Order, bool) {
	lvl, ok := tree.Min()
	if !ok || len(lvl.orders) == 0 {
		return nil, false
	}
	return lvl.orders[0], true
}

// TopBuys returns up to n aggregated price levels from the buy side,
// ordered by price descending.
func (ob *OrderBook) TopBuys(n int) []PriceLevel {
	return topLevels(ob.buys, n)
}

// TopSells returns up to n aggregated price levels from the sell side,
// ordered by price ascending.
func (ob *OrderBook) TopSells(n int) []PriceLevel {
	return topLevels(ob.sells, n)
}

func topLevels(tree *btree.BTreeG[*priceLevel], n int) []PriceLevel {
	if n <= 0 {
		return []PriceLevel{}
	}
	levels := make([]PriceLevel, 0, n)
	tree.Ascend(func(lvl *priceLevel) bool {
		if len(levels) >= n {
			return false
		}
		total := decimal.Zero
		for _, o := range lvl.orders {
			total = total.Add(o.RemainingQuantity)
		}
		levels = append(levels, PriceLevel{
			Price:         lvl.price,
			TotalQuantity: total,
			OrderCount:    len(lvl.orders),
		})
		return true
	})
	return levels
}

// Walk visits the resting orders of one side in priority order. The
// callback returns true to continue, false to stop.
func (ob *OrderBook) Walk(s domain.Side, fn func(*domain.Order) bool) {
	ob.side(s).Ascend(func(lvl *priceLevel) bool {
		for _, o := range lvl.orders {
			if !fn(o) {
				return false
			}
		}
		return true
	})
}

// Stats returns order counts and total remaining quantity per side along
// with the top of book.
func (ob *OrderBook) Stats() BookStats {
	stats := BookStats{
		BuyOrders:       ob.buyCount,
		SellOrders:      ob.sellCount,
		BuyQuantity:     decimal.Zero,
		SellQuantity:    decimal.Zero,
		BuyPriceLevels:  ob.buys.Len(),
		SellPriceLevels: ob.sells.Len(),
	}
	ob.Walk(domain.SideBuy, func(o *domain.Order) bool {
		stats.BuyQuantity = stats.BuyQuantity.Add(o.RemainingQuantity)
		return true
	})
	ob.Walk(domain.SideSell, func(o *domain.Order) bool {
		stats.SellQuantity = stats.SellQuantity.Add(o.RemainingQuantity)
		return true
	})
	if b, ok := ob.BestBuy(); ok {
		p := b.Price
		stats.BestBuy = &p
	}
	if s, ok := ob.BestSell(); ok {
		p := s.Price
		stats.BestSell = &p
	}
	if stats.BestBuy != nil && stats.BestSell != nil {
		spread := stats.BestSell.Sub(*stats.BestBuy)
		stats.Spread = &spread
	}
	return stats
}

// BuyCount returns the number of individual buy orders on the book.
func (ob *OrderBook) BuyCount() int {
	return ob.buyCount
}

// SellCount returns the number of individual sell orders on the book.
func (ob *OrderBook) SellCount() int {
	return ob.sellCount
}

// Len returns the number of resting orders on both sides.
func (ob *OrderBook) Len() int {
	return len(ob.index)
}
