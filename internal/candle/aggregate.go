package candle

import (
	"slices"

	"github.com/efreitasn/matchbook/internal/domain"
)

// Aggregate buckets trades into OHLCV candles for iv, ascending by bucket
// start. Within a bucket open and close follow timestamp order, with ties
// broken by the order of trades. Trades with a non-positive price or
// quantity are skipped. Aggregate does not read the clock, so the same
// input always produces the same candles.
func Aggregate(trades []domain.Trade, iv Interval) []domain.Candle {
	sorted := make([]domain.Trade, 0, len(trades))
	for _, t := range trades {
		if t.Price.IsPositive() && t.Quantity.IsPositive() {
			sorted = append(sorted, t)
		}
	}
	slices.SortStableFunc(sorted, func(a, b domain.Trade) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	candles := make([]domain.Candle, 0)
	for _, t := range sorted {
		start := iv.BucketStart(t.Timestamp)
		n := len(candles)
		if n > 0 && candles[n-1].BucketStart.Equal(start) {
			c := &candles[n-1]
			if t.Price.GreaterThan(c.High) {
				c.High = t.Price
			}
			if t.Price.LessThan(c.Low) {
				c.Low = t.Price
			}
			c.Close = t.Price
			c.Volume = c.Volume.Add(t.Quantity)
			c.TradeCount++
			continue
		}
		candles = append(candles, domain.Candle{
			Interval:    iv.Name,
			BucketStart: start,
			Open:        t.Price,
			High:        t.Price,
			Low:         t.Price,
			Close:       t.Price,
			Volume:      t.Quantity,
			TradeCount:  1,
		})
	}
	return candles
}
