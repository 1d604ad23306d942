// Package credstore keeps OAuth verifiers and upstream bearer tokens behind a
// small key/value interface with per-key expiry.
package credstore

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("credstore: key not found")

// Entry is one listed key. ExpiresAt is zero for keys without a TTL.
type Entry struct {
	Key       string
	Value     []byte
	ExpiresAt time.Time
}

// Store is the persistence contract the pool runs on. Implementations must be
// safe for concurrent use; reads must not block each other.
type Store interface {
	// Put writes value under key. A ttl <= 0 means no expiry.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns ErrNotFound when the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete succeeds when the key is already gone.
	Delete(ctx context.Context, key string) error
	// List returns the live entries whose key starts with prefix, sorted by key.
	List(ctx context.Context, prefix string) ([]Entry, error)
	Close() error
}

// Taker is implemented by backends that can read and delete a key in one
// atomic step. Verifier consumption uses it when available.
type Taker interface {
	// Take returns ErrNotFound when the key is absent or expired.
	Take(ctx context.Context, key string) ([]byte, error)
}

// Sweeper is implemented by backends that do not expire keys on their own.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}
