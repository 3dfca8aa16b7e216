package handoff

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteMailbox keeps slots in a local SQLite file, the way a device keeps
// its own key-value storage.
type SQLiteMailbox struct {
	db *sql.DB
}

// OpenSQLiteMailbox opens (or creates) the database at path.
func OpenSQLiteMailbox(path string) (*SQLiteMailbox, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serialises writers and keeps ":memory:" databases
	// shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS handoff_slot (
			slot_key     TEXT PRIMARY KEY,
			payload      BLOB NOT NULL,
			published_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteMailbox{db: db}, nil
}

func (m *SQLiteMailbox) Close() error {
	return m.db.Close()
}

func (m *SQLiteMailbox) Put(ctx context.Context, key string, payload []byte) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO handoff_slot (slot_key, payload, published_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (slot_key) DO UPDATE
		SET payload = excluded.payload, published_at = excluded.published_at`,
		key, payload,
	)
	if err != nil {
		return fmt.Errorf("put handoff slot: %w", err)
	}
	return nil
}

func (m *SQLiteMailbox) Take(ctx context.Context, key string) ([]byte, bool, error) {
	var payload []byte
	err := m.db.QueryRowContext(ctx, `DELETE FROM handoff_slot WHERE slot_key = ? RETURNING payload`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("take handoff slot: %w", err)
	}
	return payload, true, nil
}
