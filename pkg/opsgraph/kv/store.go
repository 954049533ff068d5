// Package kv provides durable key-value storage for workflow data such
// as policy documents and session records.
package kv

import (
	"context"
	"errors"
	"time"
)

// Store is a table/key addressed document store.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put stores a value under (table, key), overwriting any existing value.
	Put(ctx context.Context, table, key string, value []byte) error

	// Get retrieves the value stored under (table, key).
	// Returns ErrNotFound if the key doesn't exist.
	Get(ctx context.Context, table, key string) ([]byte, error)

	// List returns all items in a table, ordered by key.
	// Returns an empty slice (not an error) if the table is empty.
	List(ctx context.Context, table string) ([]Item, error)

	// Delete removes the value under (table, key).
	// Returns nil if the key doesn't exist.
	Delete(ctx context.Context, table, key string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Item is a stored value with its metadata.
type Item struct {
	Table     string
	Key       string
	Value     []byte
	UpdatedAt time.Time
}

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates the requested key doesn't exist.
	ErrNotFound = errors.New("kv: key not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("kv: store closed")
)
