package store

import (
	"sync"
	"time"

	"github.com/efreitasn/matchbook/internal/domain"
)

// OrderStore is a thread-safe in-memory index of every order the engine
// has accepted, with a primary index by order ID and a secondary index by
// owner ID. Entries point at the engine's live orders, so callers outside
// the engine must copy them under the engine's read lock.
type OrderStore struct {
	mu          sync.RWMutex
	orders      map[string]*domain.Order
	ownerOrders map[string][]*domain.Order // owner_id → orders (append-only)
}

// NewOrderStore creates an empty OrderStore.
func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders:      make(map[string]*domain.Order),
		ownerOrders: make(map[string][]*domain.Order),
	}
}

// Create adds an order to the store and appends it to the owner's
// secondary index.
func (s *OrderStore) Create(o *domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders[o.ID] = o
	s.ownerOrders[o.OwnerID] = append(s.ownerOrders[o.OwnerID], o)
}

// Get retrieves an order by ID. It returns
// domain.ErrOrderNotFound if the order does not exist.
func (s *OrderStore) Get(id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return o, nil
}

// Exists reports whether an order with the given ID is indexed.
func (s *OrderStore) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.orders[id]
	return ok
}

// ListByOwner returns orders for an owner in reverse arrival order
// (newest first). If status is non-nil, only orders matching that status
// are included. Pagination is 1-based. Returns the matching orders for the
// requested page and the total count of matching orders (before pagination).
func (s *OrderStore) ListByOwner(ownerID string, status *domain.OrderStatus, page, limit int) ([]*domain.Order, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.ownerOrders[ownerID]

	filtered := make([]*domain.Order, 0)
	for i := len(all) - 1; i >= 0; i-- {
		if status != nil && all[i].Status != *status {
			continue
		}
		filtered = append(filtered, all[i])
	}

	total := len(filtered)

	start := (page - 1) * limit
	if start >= total {
		return []*domain.Order{}, total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return filtered[start:end], total
}

// PruneClosed removes filled and cancelled orders created before cutoff
// and returns how many were removed. Open orders are always kept.
func (s *OrderStore) PruneClosed(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, o := range s.orders {
		if o.Open() || !o.CreatedAt.Before(cutoff) {
			continue
		}
		delete(s.orders, id)
		removed++
	}
	if removed == 0 {
		return 0
	}
	for owner, list := range s.ownerOrders {
		kept := list[:0]
		for _, o := range list {
			if _, ok := s.orders[o.ID]; ok {
				kept = append(kept, o)
			}
		}
		if len(kept) == 0 {
			delete(s.ownerOrders, owner)
			continue
		}
		s.ownerOrders[owner] = kept
	}
	return removed
}

// Len returns the number of indexed orders.
func (s *OrderStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.orders)
}
