package db

import (
	"context"
	"database/sql"
	"time"
)

// =============================================================================
// Object Operations
// =============================================================================

// PutObject inserts or replaces the object at key
func (db *DB) PutObject(ctx context.Context, key string, body []byte) error {
	query := `
		INSERT INTO objects (key, body, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
	`

	if body == nil {
		body = []byte{}
	}

	_, err := db.ExecContext(ctx, query, key, body, time.Now().UTC())
	return err
}

// GetObject retrieves the object at key
func (db *DB) GetObject(ctx context.Context, key string) (*Object, error) {
	obj := &Object{}

	err := db.QueryRowContext(ctx,
		`SELECT key, body, updated_at FROM objects WHERE key = ?`, key,
	).Scan(&obj.Key, &obj.Body, &obj.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return obj, nil
}

// ObjectExists reports whether an object is stored at key
func (db *DB) ObjectExists(ctx context.Context, key string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(1) FROM objects WHERE key = ?`, key).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListObjectKeys returns all keys with the given prefix, sorted
func (db *DB) ListObjectKeys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT key FROM objects WHERE substr(key, 1, ?) = ? ORDER BY key`, len(prefix), prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}
