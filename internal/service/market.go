package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/matchbook/internal/candle"
	"github.com/efreitasn/matchbook/internal/domain"
	"github.com/efreitasn/matchbook/internal/engine"
)

const (
	DefaultRefreshInterval = 5 * time.Second
	DefaultCandleLookback  = 7 * 24 * time.Hour

	MaxDepth        = 50
	DefaultTrades   = 20
	MaxTrades       = 500
	DefaultVWAPSpan = 24 * time.Hour
)

// MarketConfig tunes a MarketService.
type MarketConfig struct {
	RefreshInterval time.Duration
	CandleLookback  time.Duration
	Now             func() time.Time
}

// MarketService is the market data egress. It answers read queries from
// the engine and, on every refresh, prunes the ledger, publishes the
// market snapshot and writes fresh candles to the cache.
type MarketService struct {
	engine *engine.Engine
	cache  candle.Cache
	pub    Publisher
	cfg    MarketConfig
	logger *slog.Logger
}

// NewMarketService creates a MarketService. cache may be nil, in which case
// candles are served from the retained trades only.
func NewMarketService(eng *engine.Engine, cache candle.Cache, pub Publisher, cfg MarketConfig, logger *slog.Logger) *MarketService {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.CandleLookback <= 0 {
		cfg.CandleLookback = DefaultCandleLookback
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &MarketService{
		engine: eng,
		cache:  cache,
		pub:    pub,
		cfg:    cfg,
		logger: logger,
	}
}

// Snapshot returns the current market statistics.
func (s *MarketService) Snapshot() domain.MarketSnapshot {
	return s.engine.Market()
}

// VWAP returns the volume-weighted average price over the trailing window.
// The boolean is false when the window holds no quantity.
func (s *MarketService) VWAP(window time.Duration) (decimal.Decimal, bool, error) {
	if window <= 0 {
		return decimal.Zero, false, domain.Reject(domain.RejectInvalidRequest, "window must be a positive duration")
	}
	v, ok := s.engine.VWAP(window)
	return v, ok, nil
}

// Depth returns up to n levels per side. n defaults to DefaultBookDepth.
func (s *MarketService) Depth(n int) (BookView, error) {
	if n == 0 {
		n = DefaultBookDepth
	}
	if n < 1 || n > MaxDepth {
		return BookView{}, domain.Reject(domain.RejectInvalidRequest, "depth must be between 1 and 50")
	}
	return NewBookView(s.engine.Instrument(), s.engine.Depth(n)), nil
}

// BookStats returns the resting order counts and quantities.
func (s *MarketService) BookStats() engine.BookStats {
	return s.engine.BookStats()
}

// RecentTrades returns the last n trades, newest first.
func (s *MarketService) RecentTrades(n int) ([]domain.Trade, error) {
	if n == 0 {
		n = DefaultTrades
	}
	if n < 1 || n > MaxTrades {
		return nil, domain.Reject(domain.RejectInvalidRequest, "limit must be between 1 and 500")
	}
	return s.engine.RecentTrades(n), nil
}

// Quote estimates an order of the given size against the resting book.
func (s *MarketService) Quote(side domain.Side, quantity decimal.Decimal) (*engine.QuoteResult, error) {
	return s.engine.Quote(side, quantity)
}

// Candles returns the candle series of the named interval whose buckets
// overlap [from, to]. Zero bounds default to the configured lookback
// ending now. Cached candles are overlaid with a fresh aggregation of the
// retained trades, except for buckets the pruned ledger can no longer
// rebuild, where the cached candle wins. A cache failure degrades to the
// fresh candles alone.
func (s *MarketService) Candles(ctx context.Context, interval string, from, to time.Time) ([]domain.Candle, error) {
	iv, err := candle.Parse(interval)
	if err != nil {
		return nil, err
	}
	if to.IsZero() {
		to = s.cfg.Now()
	}
	if from.IsZero() {
		from = to.Add(-s.cfg.CandleLookback)
	}
	if to.Before(from) {
		return nil, domain.Reject(domain.RejectInvalidRequest, "from must not be after to")
	}
	from = iv.BucketStart(from)

	var cached []domain.Candle
	if s.cache != nil {
		cached, err = s.cache.Range(ctx, iv.Name, from, to)
		if err != nil {
			s.logger.Warn("candle cache read failed", "interval", iv.Name, "error", err)
			cached = nil
		}
	}

	trades, since := s.engine.TradeHistory()
	inRange := make([]domain.Candle, 0)
	for _, c := range candle.Aggregate(trades, iv) {
		if c.BucketStart.Before(from) || c.BucketStart.After(to) {
			continue
		}
		inRange = append(inRange, c)
	}
	fresh, partial := candle.SplitAt(inRange, since)
	return candle.Merge(candle.Merge(partial, cached), fresh), nil
}

// Refresh publishes the current market snapshot and, when a cache is
// configured, writes the candles of every interval to it. Buckets that
// start before the ledger's complete-since instant are left as cached.
func (s *MarketService) Refresh(ctx context.Context) {
	s.pub.Publish(SectionMarket, TypeUpdate, NewMarketView(s.engine.Market()))

	if s.cache == nil {
		return
	}
	trades, since := s.engine.TradeHistory()
	if len(trades) == 0 {
		return
	}
	for _, iv := range candle.Intervals() {
		complete, _ := candle.SplitAt(candle.Aggregate(trades, iv), since)
		if len(complete) == 0 {
			continue
		}
		if err := s.cache.Put(ctx, complete); err != nil {
			s.logger.Warn("candle cache write failed", "interval", iv.Name, "error", err)
		}
	}
}

// Start runs the refresh loop until ctx is cancelled. Each tick refreshes
// and then prunes expired trades and closed orders, so a bucket is cached
// in full before its trades leave the ledger.
func (s *MarketService) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.cfg.RefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Refresh(ctx)
				if trades, orders := s.engine.Prune(); trades > 0 || orders > 0 {
					s.logger.Debug("pruned expired state", "trades", trades, "orders", orders)
				}
			}
		}
	}()
}
