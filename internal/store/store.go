// internal/store/store.go
package store

import (
	"context"
	"fmt"
	"time"
)

// Store is a TTL-capable key-value store. All cache layers (edge cache,
// baseline arm) are built on these primitives; keys carry their own
// namespace prefix, the store itself has no cross-key invariants.
type Store interface {
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes a value with the given TTL. A zero or negative TTL
	// stores the key without expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes a key, reporting whether it was present.
	Delete(ctx context.Context, key string) (bool, error)

	Exists(ctx context.Context, key string) (bool, error)

	// TTL returns the remaining lifetime of a key. ok is false when the
	// key is absent or has no expiry.
	TTL(ctx context.Context, key string) (time.Duration, bool, error)

	// UpdateTTL refreshes the expiry without rewriting the value.
	// Returns false when the key is absent.
	UpdateTTL(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Increment atomically increments an integer value, creating it at 1
	// when absent. The key's expiry is left untouched.
	Increment(ctx context.Context, key string) (int64, error)

	// Keys lists all keys with the given prefix. O(n) over the keyspace.
	Keys(ctx context.Context, prefix string) ([]string, error)

	Close() error
}

// Error wraps a backend failure with the operation and key that hit it.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(op, key string, err error) error {
	return &Error{Op: op, Key: key, Err: err}
}
