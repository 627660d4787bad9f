package interfaces

import (
	"context"
	"time"
)

// MinTTL is the floor on record time-to-live, imposed by the minimum expiry
// granularity of the underlying key-value stores. Configured TTLs must
// strictly exceed it.
const MinTTL = 60 * time.Second

// Counter key names, stored as decimal strings alongside the records.
const (
	CreatedCounter         = "created_counter"
	RetrievedCounter       = "retrieved_counter"
	FailedToDecryptCounter = "failed_to_decrypt_counter"
)

// CounterKeys lists every counter key kept in the store.
var CounterKeys = []string{CreatedCounter, RetrievedCounter, FailedToDecryptCounter}

// SecretStore is a TTL-bounded key-value store holding encrypted records and
// auxiliary counters. Implementations are assumed eventually consistent:
// concurrent operations on the same key may observe stale or absent data,
// and both are defined outcomes rather than failures.
type SecretStore interface {
	// Put stores a record under key, expiring after ttl.
	Put(ctx context.Context, key string, record StorageRecord, ttl time.Duration) error

	// Get retrieves a record. Returns ErrRecordNotFound for absent or
	// expired keys.
	Get(ctx context.Context, key string) (StorageRecord, error)

	// List returns all live keys, counters included.
	List(ctx context.Context) ([]string, error)

	// Increment adds one to a named counter and returns the new value.
	// Backends without a native atomic primitive fall back to
	// read-modify-write and can lose concurrent updates.
	Increment(ctx context.Context, counter string) (int64, error)

	// GetCounter reads a named counter, zero if unset.
	GetCounter(ctx context.Context, counter string) (int64, error)

	// Available checks if the backend is accessible.
	Available(ctx context.Context) bool

	// Name returns an identifier for logging.
	Name() string

	// LocationURI returns the URI identifying this backend.
	LocationURI() string
}
