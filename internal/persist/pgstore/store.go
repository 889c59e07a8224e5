// Package pgstore persists engine snapshots in PostgreSQL.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/matchbook/internal/domain"
	"github.com/efreitasn/matchbook/internal/persist"
)

const schema = `
CREATE TABLE IF NOT EXISTS matchbook_orders (
	instrument         TEXT        NOT NULL,
	id                 TEXT        NOT NULL,
	side               TEXT        NOT NULL,
	price              NUMERIC     NOT NULL,
	quantity           NUMERIC     NOT NULL,
	remaining_quantity NUMERIC     NOT NULL,
	owner_id           TEXT        NOT NULL,
	owner_label        TEXT        NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL,
	seq                BIGINT      NOT NULL,
	status             TEXT        NOT NULL,
	PRIMARY KEY (instrument, id)
);
CREATE TABLE IF NOT EXISTS matchbook_trades (
	instrument    TEXT        NOT NULL,
	position      INTEGER     NOT NULL,
	id            TEXT        NOT NULL,
	buy_order_id  TEXT        NOT NULL,
	sell_order_id TEXT        NOT NULL,
	price         NUMERIC     NOT NULL,
	quantity      NUMERIC     NOT NULL,
	ts            TIMESTAMPTZ NOT NULL,
	buyer_id      TEXT        NOT NULL,
	seller_id     TEXT        NOT NULL,
	PRIMARY KEY (instrument, position)
);
CREATE TABLE IF NOT EXISTS matchbook_meta (
	instrument TEXT        PRIMARY KEY,
	version    BIGINT      NOT NULL,
	taken_at   TIMESTAMPTZ NOT NULL
);`

var _ persist.Store = (*Store)(nil)

// Store keeps one snapshot per instrument.
type Store struct {
	pool       *pgxpool.Pool
	instrument string
}

// Open connects to dsn and creates the tables if needed.
func Open(ctx context.Context, dsn, instrument string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	s := &Store{pool: pool, instrument: instrument}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the snapshot tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: create schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Save replaces the stored snapshot in a single transaction.
func (s *Store) Save(ctx context.Context, snap domain.Snapshot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM matchbook_orders WHERE instrument = $1`, s.instrument)
	batch.Queue(`DELETE FROM matchbook_trades WHERE instrument = $1`, s.instrument)
	for _, o := range snap.Orders {
		batch.Queue(`INSERT INTO matchbook_orders
			(instrument, id, side, price, quantity, remaining_quantity, owner_id, owner_label, created_at, seq, status)
			VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7, $8, $9, $10, $11)`,
			s.instrument, o.ID, string(o.Side), o.Price.String(), o.Quantity.String(),
			o.RemainingQuantity.String(), o.OwnerID, o.OwnerLabel, o.CreatedAt, int64(o.Seq), string(o.Status))
	}
	for i, t := range snap.Trades {
		batch.Queue(`INSERT INTO matchbook_trades
			(instrument, position, id, buy_order_id, sell_order_id, price, quantity, ts, buyer_id, seller_id)
			VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9, $10)`,
			s.instrument, i, t.ID, t.BuyOrderID, t.SellOrderID, t.Price.String(), t.Quantity.String(),
			t.Timestamp, t.BuyerID, t.SellerID)
	}
	batch.Queue(`INSERT INTO matchbook_meta (instrument, version, taken_at) VALUES ($1, $2, $3)
		ON CONFLICT (instrument) DO UPDATE SET version = EXCLUDED.version, taken_at = EXCLUDED.taken_at`,
		s.instrument, int64(snap.Version), snap.TakenAt)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: save snapshot: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// Load reads the stored snapshot. A missing snapshot yields an empty one.
func (s *Store) Load(ctx context.Context) (domain.Snapshot, error) {
	var snap domain.Snapshot

	var version int64
	err := s.pool.QueryRow(ctx,
		`SELECT version, taken_at FROM matchbook_meta WHERE instrument = $1`, s.instrument,
	).Scan(&version, &snap.TakenAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return domain.Snapshot{}, nil
	case err != nil:
		return domain.Snapshot{}, fmt.Errorf("postgres: load meta: %w", err)
	}
	snap.Version = uint64(version)

	orders, err := s.loadOrders(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	trades, err := s.loadTrades(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	snap.Orders = orders
	snap.Trades = trades
	return snap, nil
}

func (s *Store) loadOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, side, price::text, quantity::text, remaining_quantity::text,
		owner_id, owner_label, created_at, seq, status
		FROM matchbook_orders WHERE instrument = $1 ORDER BY seq`, s.instrument)
	if err != nil {
		return nil, fmt.Errorf("postgres: load orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		var (
			rec                   persist.OrderRecord
			price, qty, remaining string
			seq                   int64
		)
		if err := rows.Scan(&rec.ID, &rec.Side, &price, &qty, &remaining,
			&rec.OwnerID, &rec.OwnerLabel, &rec.CreatedAt, &seq, &rec.Status); err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		if rec.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("order %s price: %w", rec.ID, err)
		}
		if rec.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("order %s quantity: %w", rec.ID, err)
		}
		if rec.RemainingQuantity, err = decimal.NewFromString(remaining); err != nil {
			return nil, fmt.Errorf("order %s remaining quantity: %w", rec.ID, err)
		}
		rec.Seq = uint64(seq)
		o, err := rec.Order()
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) loadTrades(ctx context.Context) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, buy_order_id, sell_order_id, price::text, quantity::text,
		ts, buyer_id, seller_id
		FROM matchbook_trades WHERE instrument = $1 ORDER BY position`, s.instrument)
	if err != nil {
		return nil, fmt.Errorf("postgres: load trades: %w", err)
	}
	defer rows.Close()

	var out []domain.Trade
	for rows.Next() {
		var (
			t          domain.Trade
			price, qty string
		)
		if err := rows.Scan(&t.ID, &t.BuyOrderID, &t.SellOrderID, &price, &qty,
			&t.Timestamp, &t.BuyerID, &t.SellerID); err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("trade %s price: %w", t.ID, err)
		}
		if t.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("trade %s quantity: %w", t.ID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
