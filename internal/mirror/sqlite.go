package mirror

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-home/internal/infrastructure/database"
)

// ErrNotFound is returned when a path has no stored value.
var ErrNotFound = errors.New("mirror: path not found")

// StoredValue is a row of the snapshot table.
type StoredValue struct {
	Path      string          `json:"path"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// StoredEntry is a row of the append log.
type StoredEntry struct {
	ID        string          `json:"id"`
	Path      string          `json:"path"`
	Value     json.RawMessage `json:"value"`
	CreatedAt time.Time       `json:"created_at"`
}

// SQLiteBackend keeps the latest value per path and an append-only log.
type SQLiteBackend struct {
	db *database.DB
}

// NewSQLiteBackend creates a backend on a migrated database.
func NewSQLiteBackend(db *database.DB) *SQLiteBackend {
	return &SQLiteBackend{db: db}
}

// Name implements Backend.
func (b *SQLiteBackend) Name() string { return "sqlite" }

// Set upserts the value at path, or deletes the row when value is nil.
func (b *SQLiteBackend) Set(ctx context.Context, path string, value any, at time.Time) error {
	if value == nil {
		if _, err := b.db.ExecContext(ctx, "DELETE FROM mirror_state WHERE path = ?", path); err != nil {
			return fmt.Errorf("deleting %s: %w", path, err)
		}
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}

	_, err = b.db.ExecContext(ctx, `
		INSERT INTO mirror_state (path, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		path, string(data), at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("storing %s: %w", path, err)
	}
	return nil
}

// Push inserts an entry into the append log.
func (b *SQLiteBackend) Push(ctx context.Context, path string, entry Entry) error {
	data, err := json.Marshal(entry.Value)
	if err != nil {
		return fmt.Errorf("encoding %s entry: %w", path, err)
	}

	_, err = b.db.ExecContext(ctx,
		"INSERT INTO mirror_log (id, path, value, created_at) VALUES (?, ?, ?, ?)",
		entry.ID, path, string(data), entry.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("appending %s: %w", path, err)
	}
	return nil
}

// Get returns the stored value at path.
func (b *SQLiteBackend) Get(ctx context.Context, path string) (StoredValue, error) {
	var v StoredValue
	var value, updated string
	err := b.db.QueryRowContext(ctx,
		"SELECT path, value, updated_at FROM mirror_state WHERE path = ?", path,
	).Scan(&v.Path, &value, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredValue{}, ErrNotFound
	}
	if err != nil {
		return StoredValue{}, fmt.Errorf("loading %s: %w", path, err)
	}
	v.Value = json.RawMessage(value)
	v.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated) //nolint:errcheck // format is ours
	return v, nil
}

// List returns every stored value whose path starts with prefix.
func (b *SQLiteBackend) List(ctx context.Context, prefix string) ([]StoredValue, error) {
	rows, err := b.db.QueryContext(ctx,
		"SELECT path, value, updated_at FROM mirror_state WHERE substr(path, 1, length(?)) = ? ORDER BY path",
		prefix, prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", prefix, err)
	}
	defer rows.Close()

	var out []StoredValue
	for rows.Next() {
		var v StoredValue
		var value, updated string
		if err := rows.Scan(&v.Path, &value, &updated); err != nil {
			return nil, fmt.Errorf("scanning state row: %w", err)
		}
		v.Value = json.RawMessage(value)
		v.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated) //nolint:errcheck // format is ours
		out = append(out, v)
	}
	return out, rows.Err()
}

// Recent returns the newest entries appended under path, newest first.
func (b *SQLiteBackend) Recent(ctx context.Context, path string, limit int) ([]StoredEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := b.db.QueryContext(ctx,
		"SELECT id, path, value, created_at FROM mirror_log WHERE path = ? ORDER BY created_at DESC LIMIT ?",
		path, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying %s log: %w", path, err)
	}
	defer rows.Close()

	var out []StoredEntry
	for rows.Next() {
		var e StoredEntry
		var value, created string
		if err := rows.Scan(&e.ID, &e.Path, &value, &created); err != nil {
			return nil, fmt.Errorf("scanning log row: %w", err)
		}
		e.Value = json.RawMessage(value)
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created) //nolint:errcheck // format is ours
		out = append(out, e)
	}
	return out, rows.Err()
}
