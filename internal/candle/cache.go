package candle

import (
	"context"
	"sync"
	"time"

	"github.com/google/btree"

	"github.com/efreitasn/matchbook/internal/domain"
)

// Cache stores candle series keyed by (interval, bucket start). Put
// overwrites any candle already stored for the same key.
type Cache interface {
	Put(ctx context.Context, candles []domain.Candle) error
	// Range returns the candles of interval whose bucket start lies in
	// [from, to], ascending.
	Range(ctx context.Context, interval string, from, to time.Time) ([]domain.Candle, error)
}

func candleLess(a, b domain.Candle) bool {
	return a.BucketStart.Before(b.BucketStart)
}

// MemoryCache is a thread-safe in-process Cache. Each interval keeps at
// most maxPerInterval candles; the oldest are evicted first.
type MemoryCache struct {
	mu             sync.RWMutex
	series         map[string]*btree.BTreeG[domain.Candle]
	maxPerInterval int
}

// NewMemoryCache creates an empty MemoryCache. A non-positive limit keeps
// every candle.
func NewMemoryCache(maxPerInterval int) *MemoryCache {
	return &MemoryCache{
		series:         make(map[string]*btree.BTreeG[domain.Candle]),
		maxPerInterval: maxPerInterval,
	}
}

// Put implements Cache.
func (c *MemoryCache) Put(_ context.Context, candles []domain.Candle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, cd := range candles {
		tree, ok := c.series[cd.Interval]
		if !ok {
			tree = btree.NewG[domain.Candle](16, candleLess)
			c.series[cd.Interval] = tree
		}
		tree.ReplaceOrInsert(cd)
		for c.maxPerInterval > 0 && tree.Len() > c.maxPerInterval {
			tree.DeleteMin()
		}
	}
	return nil
}

// Range implements Cache.
func (c *MemoryCache) Range(_ context.Context, interval string, from, to time.Time) ([]domain.Candle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]domain.Candle, 0)
	tree, ok := c.series[interval]
	if !ok || to.Before(from) {
		return result, nil
	}
	tree.AscendGreaterOrEqual(domain.Candle{BucketStart: from}, func(cd domain.Candle) bool {
		if cd.BucketStart.After(to) {
			return false
		}
		result = append(result, cd)
		return true
	})
	return result, nil
}

// Merge overlays fresh candles on cached ones. A fresh candle replaces a
// cached candle with the same bucket start. Both inputs must be ascending;
// so is the result.
func Merge(cached, fresh []domain.Candle) []domain.Candle {
	result := make([]domain.Candle, 0, len(cached)+len(fresh))
	i, j := 0, 0
	for i < len(cached) && j < len(fresh) {
		switch {
		case cached[i].BucketStart.Before(fresh[j].BucketStart):
			result = append(result, cached[i])
			i++
		case fresh[j].BucketStart.Before(cached[i].BucketStart):
			result = append(result, fresh[j])
			j++
		default:
			result = append(result, fresh[j])
			i++
			j++
		}
	}
	result = append(result, cached[i:]...)
	result = append(result, fresh[j:]...)
	return result
}

// SplitAt separates candles aggregated from a ledger that is complete from
// since. Candles whose bucket starts before since may be missing pruned
// trades and are returned as partial; the rest are complete.
func SplitAt(candles []domain.Candle, since time.Time) (complete, partial []domain.Candle) {
	complete = make([]domain.Candle, 0, len(candles))
	for _, c := range candles {
		if c.BucketStart.Before(since) {
			partial = append(partial, c)
			continue
		}
		complete = append(complete, c)
	}
	return complete, partial
}
