// Package objectstore provides key-addressed blob storage used for job state,
// run snapshots and metadata tables.
package objectstore

import (
	"context"
	"errors"
	"path"
	"strings"
)

// ErrNotFound is returned by Get when no object exists at the key
var ErrNotFound = errors.New("objectstore: object not found")

// Store is a flat, last-writer-wins blob namespace
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, body []byte) error
	Exists(ctx context.Context, key string) (bool, error)
}

// IsNotFound reports whether err means the object does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Prefixed namespaces every key of an underlying store under a fixed prefix
type Prefixed struct {
	store  Store
	prefix string
}

// WithPrefix wraps store so that key k is stored at prefix+k.
// An empty prefix returns store unchanged.
func WithPrefix(store Store, prefix string) Store {
	if prefix == "" {
		return store
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Prefixed{store: store, prefix: prefix}
}

func (p *Prefixed) Get(ctx context.Context, key string) ([]byte, error) {
	return p.store.Get(ctx, p.prefix+key)
}

func (p *Prefixed) Put(ctx context.Context, key string, body []byte) error {
	return p.store.Put(ctx, p.prefix+key, body)
}

func (p *Prefixed) Exists(ctx context.Context, key string) (bool, error) {
	return p.store.Exists(ctx, p.prefix+key)
}

// contentType guesses a MIME type from the key extension
func contentType(key string) string {
	switch path.Ext(key) {
	case ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
