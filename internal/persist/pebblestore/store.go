// Package pebblestore persists engine snapshots in a local Pebble database.
package pebblestore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/efreitasn/matchbook/internal/domain"
	"github.com/efreitasn/matchbook/internal/persist"
)

var (
	orderPrefix = []byte("order/")
	tradePrefix = []byte("trade/")
	versionKey  = []byte("meta/version")
	takenAtKey  = []byte("meta/taken_at")
)

var _ persist.Store = (*Store)(nil)

// Store keeps one snapshot: resting orders under order/<seq>/<id> and
// trades under trade/<position>, each value JSON encoded.
type Store struct {
	db *pebble.DB
}

// Open opens or creates the database in dir. opts may be nil.
func Open(dir string, opts *pebble.Options) (*Store, error) {
	if opts == nil {
		opts = &pebble.Options{}
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("pebble: open %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func orderKey(o domain.Order) []byte {
	return []byte(fmt.Sprintf("order/%020d/%s", o.Seq, o.ID))
}

func tradeKey(i int) []byte {
	return []byte(fmt.Sprintf("trade/%020d", i))
}

// prefixEnd returns the smallest key greater than every key with prefix.
func prefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	end[len(end)-1]++
	return end
}

// Save replaces the stored snapshot in one synced batch.
func (s *Store) Save(_ context.Context, snap domain.Snapshot) error {
	b := s.db.NewBatch()
	defer b.Close()

	if err := b.DeleteRange(orderPrefix, prefixEnd(orderPrefix), nil); err != nil {
		return err
	}
	if err := b.DeleteRange(tradePrefix, prefixEnd(tradePrefix), nil); err != nil {
		return err
	}

	for _, o := range snap.Orders {
		val, err := json.Marshal(persist.FromOrder(o))
		if err != nil {
			return fmt.Errorf("encode order %s: %w", o.ID, err)
		}
		if err := b.Set(orderKey(o), val, nil); err != nil {
			return err
		}
	}
	for i, t := range snap.Trades {
		val, err := json.Marshal(persist.FromTrade(t))
		if err != nil {
			return fmt.Errorf("encode trade %s: %w", t.ID, err)
		}
		if err := b.Set(tradeKey(i), val, nil); err != nil {
			return err
		}
	}

	var version [8]byte
	binary.BigEndian.PutUint64(version[:], snap.Version)
	if err := b.Set(versionKey, version[:], nil); err != nil {
		return err
	}
	takenAt, err := snap.TakenAt.MarshalBinary()
	if err != nil {
		return err
	}
	if err := b.Set(takenAtKey, takenAt, nil); err != nil {
		return err
	}

	return b.Commit(pebble.Sync)
}

// Load reads the stored snapshot. An empty database yields an empty
// snapshot.
func (s *Store) Load(_ context.Context) (domain.Snapshot, error) {
	var snap domain.Snapshot

	err := s.scan(orderPrefix, func(val []byte) error {
		var rec persist.OrderRecord
		if err := json.Unmarshal(val, &rec); err != nil {
			return err
		}
		o, err := rec.Order()
		if err != nil {
			return err
		}
		snap.Orders = append(snap.Orders, o)
		return nil
	})
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("load orders: %w", err)
	}

	err = s.scan(tradePrefix, func(val []byte) error {
		var rec persist.TradeRecord
		if err := json.Unmarshal(val, &rec); err != nil {
			return err
		}
		snap.Trades = append(snap.Trades, rec.Trade())
		return nil
	})
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("load trades: %w", err)
	}

	val, closer, err := s.db.Get(versionKey)
	switch {
	case errors.Is(err, pebble.ErrNotFound):
		return snap, nil
	case err != nil:
		return domain.Snapshot{}, err
	}
	if len(val) == 8 {
		snap.Version = binary.BigEndian.Uint64(val)
	}
	closer.Close()

	val, closer, err = s.db.Get(takenAtKey)
	if err == nil {
		var takenAt time.Time
		if takenAt.UnmarshalBinary(val) == nil {
			snap.TakenAt = takenAt
		}
		closer.Close()
	}
	return snap, nil
}

func (s *Store) scan(prefix []byte, fn func(val []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}
