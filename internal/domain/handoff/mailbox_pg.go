package handoff

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/onterapia/teleconsulta/internal/platform/db"
)

type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// PGMailbox stores slots in handoff_slot. Take is a single
// DELETE ... RETURNING, so concurrent takers cannot both receive a value.
type PGMailbox struct {
	pool *pgxpool.Pool
}

func NewPGMailbox(pool *pgxpool.Pool) *PGMailbox {
	return &PGMailbox{pool: pool}
}

func (m *PGMailbox) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return m.pool
}

func (m *PGMailbox) Put(ctx context.Context, key string, payload []byte) error {
	_, err := m.conn(ctx).Exec(ctx, `
		INSERT INTO handoff_slot (slot_key, payload, published_at)
		VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (slot_key) DO UPDATE
		SET payload = EXCLUDED.payload, published_at = EXCLUDED.published_at`,
		key, string(payload),
	)
	if err != nil {
		return fmt.Errorf("put handoff slot: %w", err)
	}
	return nil
}

func (m *PGMailbox) Take(ctx context.Context, key string) ([]byte, bool, error) {
	var payload string
	err := m.conn(ctx).QueryRow(ctx, `
		DELETE FROM handoff_slot WHERE slot_key = $1 RETURNING payload::text`, key).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("take handoff slot: %w", err)
	}
	return []byte(payload), true, nil
}
