package objectstore

import (
	"context"
	"fmt"

	"github.com/livinlefevreloca/runsync/internal/db"
)

// SQLite stores objects in the local runsync database.
// Useful for single-host deployments and local development.
type SQLite struct {
	db *db.DB
}

// NewSQLite creates a store backed by the objects table of database
func NewSQLite(database *db.DB) *SQLite {
	return &SQLite{db: database}
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.db.GetObject(ctx, key)
	if db.IsNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return obj.Body, nil
}

func (s *SQLite) Put(ctx context.Context, key string, body []byte) error {
	if err := s.db.PutObject(ctx, key, body); err != nil {
		return fmt.Errorf("failed to write object %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Exists(ctx context.Context, key string) (bool, error) {
	exists, err := s.db.ObjectExists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to stat object %s: %w", key, err)
	}
	return exists, nil
}
