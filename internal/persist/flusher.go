package persist

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/efreitasn/matchbook/internal/domain"
)

// Source is the state being flushed.
type Source interface {
	Version() uint64
	Snapshot() domain.Snapshot
}

// FlusherConfig tunes a Flusher.
type FlusherConfig struct {
	Interval time.Duration
	Retries  int
	Backoff  time.Duration
}

// Flusher periodically copies a Source into a Store. Flushing is
// best-effort: a failure is logged and retried, and the source is only
// ever read.
type Flusher struct {
	src    Source
	store  Store
	cfg    FlusherConfig
	logger *slog.Logger

	mu          sync.Mutex // serializes flushes
	lastVersion uint64
	flushed     bool
}

// NewFlusher creates a Flusher.
func NewFlusher(src Source, store Store, cfg FlusherConfig, logger *slog.Logger) *Flusher {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 100 * time.Millisecond
	}
	return &Flusher{
		src:    src,
		store:  store,
		cfg:    cfg,
		logger: logger,
	}
}

// MarkLoaded records that the store already holds the given version, so
// the first tick after a restore does not rewrite it.
func (f *Flusher) MarkLoaded(version uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastVersion = version
	f.flushed = true
}

// Flush saves the current snapshot unless its version was already saved.
// Each failed attempt is retried up to cfg.Retries times with doubling
// backoff. The final error is returned after being logged.
func (f *Flusher) Flush(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.flushed && f.src.Version() == f.lastVersion {
		return nil
	}
	snap := f.src.Snapshot()

	backoff := f.cfg.Backoff
	var err error
	for attempt := 0; attempt <= f.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("flush version %d: %w", snap.Version, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		if err = f.store.Save(ctx, snap); err == nil {
			f.lastVersion = snap.Version
			f.flushed = true
			f.logger.Debug("snapshot flushed",
				"version", snap.Version,
				"orders", len(snap.Orders),
				"trades", len(snap.Trades),
			)
			return nil
		}
		f.logger.Warn("snapshot flush failed",
			"version", snap.Version,
			"attempt", attempt+1,
			"error", err,
		)
	}
	f.logger.Error("snapshot flush gave up, will retry next tick", "version", snap.Version, "error", err)
	return fmt.Errorf("flush version %d: %w", snap.Version, err)
}

// Start launches a background goroutine that flushes at the configured
// interval. It stops when ctx is cancelled.
func (f *Flusher) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(f.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = f.Flush(ctx)
			}
		}
	}()
}

// Restorer accepts a loaded snapshot.
type Restorer interface {
	Restore(snap domain.Snapshot) error
}

// Restore loads the stored snapshot into dst. When f is non-nil the loaded
// version is marked as already flushed.
func Restore(ctx context.Context, store Store, dst Restorer, f *Flusher) (domain.Snapshot, error) {
	snap, err := store.Load(ctx)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	if err := dst.Restore(snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("restore snapshot: %w", err)
	}
	if f != nil {
		f.MarkLoaded(snap.Version)
	}
	return snap, nil
}
