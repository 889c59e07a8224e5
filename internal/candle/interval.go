package candle

import (
	"fmt"
	"time"

	"github.com/efreitasn/matchbook/internal/domain"
)

// Interval is one candle width. All buckets are computed in UTC.
type Interval struct {
	Name     string
	Duration time.Duration
}

var (
	Minute         = Interval{Name: "1m", Duration: time.Minute}
	FiveMinutes    = Interval{Name: "5m", Duration: 5 * time.Minute}
	FifteenMinutes = Interval{Name: "15m", Duration: 15 * time.Minute}
	Hour           = Interval{Name: "1H", Duration: time.Hour}
	FourHours      = Interval{Name: "4H", Duration: 4 * time.Hour}
	Day            = Interval{Name: "1D", Duration: 24 * time.Hour}
)

var intervals = []Interval{Minute, FiveMinutes, FifteenMinutes, Hour, FourHours, Day}

// Intervals returns every supported interval, narrowest first.
func Intervals() []Interval {
	result := make([]Interval, len(intervals))
	copy(result, intervals)
	return result
}

// Parse looks up an interval by name.
func Parse(name string) (Interval, error) {
	for _, iv := range intervals {
		if iv.Name == name {
			return iv, nil
		}
	}
	return Interval{}, fmt.Errorf("%w: %q", domain.ErrUnknownInterval, name)
}

// BucketStart truncates t to the start of its bucket.
func (iv Interval) BucketStart(t time.Time) time.Time {
	t = t.UTC()
	if iv.Duration == Day.Duration {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	return t.Truncate(iv.Duration)
}

