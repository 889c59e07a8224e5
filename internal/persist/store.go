package persist

import (
	"context"

	"github.com/efreitasn/matchbook/internal/domain"
)

// Store is a durable home for the engine's resting orders and trades.
// Save replaces whatever was stored before.
type Store interface {
	Save(ctx context.Context, snap domain.Snapshot) error
	// Load returns the last saved snapshot, or an empty one if nothing was
	// ever saved.
	Load(ctx context.Context) (domain.Snapshot, error)
	Close() error
}
