package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteDriverName = "sqlite"

const schemaSnapshots = `
CREATE TABLE IF NOT EXISTS device_snapshots (
    serial TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    payload TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const (
	upsertSnapshotSQL = `
		INSERT INTO device_snapshots (serial, name, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(serial) DO UPDATE SET
			name=excluded.name,
			payload=excluded.payload,
			updated_at=excluded.updated_at
	`

	selectSnapshotSQL = `
		SELECT name, payload FROM device_snapshots WHERE serial=?
	`
)

// Store keeps the last known raw payload per device serial, so a run
// that cannot reach any live source still has a merge base. Like the
// push channel, the cache is an optimization: callers treat open or
// IO failures as "no snapshot".
type Store struct {
	db *sql.DB
}

// NewStore wraps an existing database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open creates or opens the snapshot database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}

	// single connection; SQLite handles concurrent writers poorly
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set PRAGMA journal_mode=WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set PRAGMA busy_timeout=5000: %w", err)
	}

	if _, err := db.Exec(schemaSnapshots); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply snapshot schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &Store{db: db}, nil
}

// Save upserts the snapshot for one serial with a UTC timestamp.
func (s *Store) Save(ctx context.Context, serial, name string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal snapshot payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, upsertSnapshotSQL, serial, name, string(data), time.Now().UTC())
	return err
}

// Load fetches the snapshot for one serial. A missing row or an
// unparseable payload reports ("", nil, nil): no snapshot, no failure.
func (s *Store) Load(ctx context.Context, serial string) (string, map[string]any, error) {
	row := s.db.QueryRowContext(ctx, selectSnapshotSQL, serial)

	var name, data string
	if err := row.Scan(&name, &data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil, nil
		}
		return "", nil, err
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return "", nil, nil
	}
	return name, payload, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
