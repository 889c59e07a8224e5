package fanout

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// fingerprintPrefix bounds how much of the encoded payload feeds the
// fingerprint.
const fingerprintPrefix = 100

// sweepThreshold is the entry count above which expired fingerprints are
// evicted.
const sweepThreshold = 1000

// Fingerprint derives a deterministic key from section, type and the first
// bytes of the encoded payload.
func Fingerprint(section, typ string, data []byte) uint64 {
	if len(data) > fingerprintPrefix {
		data = data[:fingerprintPrefix]
	}
	d := xxhash.New()
	d.WriteString(section)
	d.Write([]byte{0})
	d.WriteString(typ)
	d.Write([]byte{0})
	d.Write(data)
	return d.Sum64()
}

// dedupWindow remembers when each fingerprint was last admitted. Entries
// are evicted lazily once the map grows past sweepThreshold.
type dedupWindow struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[uint64]time.Time
}

func newDedupWindow(window time.Duration) *dedupWindow {
	return &dedupWindow{
		window: window,
		seen:   make(map[uint64]time.Time),
	}
}

// admit reports whether fp may be delivered at now. A rejected duplicate
// does not extend the window.
func (d *dedupWindow) admit(fp uint64, now time.Time) bool {
	if d.window <= 0 {
		return true
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.seen[fp]; ok && now.Sub(last) < d.window {
		return false
	}
	d.seen[fp] = now

	if len(d.seen) > sweepThreshold {
		for k, t := range d.seen {
			if now.Sub(t) >= d.window {
				delete(d.seen, k)
			}
		}
	}
	return true
}

func (d *dedupWindow) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
