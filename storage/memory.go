package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/artlu99/wallets-and-faucet/interfaces"
)

// memEntry holds one value with its expiry attribute. Counters have a zero
// expiry and never expire.
type memEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is an in-process secret store. Increment is serialized under
// the store mutex, so concurrent increments count exactly.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
	log     *slog.Logger

	// now is overridable in tests to exercise expiry without waiting.
	now func() time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore(log *slog.Logger) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memEntry),
		log:     log,
		now:     time.Now,
	}
}

// Put stores a record under key, expiring after ttl.
func (s *MemoryStore) Put(ctx context.Context, key string, record interfaces.StorageRecord, ttl time.Duration) error {
	if ttl <= interfaces.MinTTL {
		return fmt.Errorf("%w: ttl must exceed %s", interfaces.ErrValidation, interfaces.MinTTL)
	}

	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memEntry{
		value:     string(value),
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

// Get retrieves a record, expiring it lazily if its TTL has passed.
func (s *MemoryStore) Get(ctx context.Context, key string) (interfaces.StorageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return interfaces.StorageRecord{}, interfaces.ErrRecordNotFound
	}
	if !entry.expiresAt.IsZero() && s.now().After(entry.expiresAt) {
		delete(s.entries, key)
		return interfaces.StorageRecord{}, interfaces.ErrRecordNotFound
	}

	var record interfaces.StorageRecord
	if err := json.Unmarshal([]byte(entry.value), &record); err != nil {
		return interfaces.StorageRecord{}, fmt.Errorf("%w: %v", interfaces.ErrMalformedRecord, err)
	}
	return record, nil
}

// List returns all live keys, counters included.
func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	keys := make([]string, 0, len(s.entries))
	for key, entry := range s.entries {
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			delete(s.entries, key)
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Increment adds one to a named counter under the store mutex. Counts are
// exact regardless of concurrency.
func (s *MemoryStore) Increment(ctx context.Context, counter string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := int64(0)
	if entry, ok := s.entries[counter]; ok {
		parsed, err := strconv.ParseInt(entry.value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("counter %s is not a decimal string: %w", counter, err)
		}
		current = parsed
	}

	current++
	s.entries[counter] = memEntry{value: strconv.FormatInt(current, 10)}
	return current, nil
}

// GetCounter reads a named counter, zero if unset.
func (s *MemoryStore) GetCounter(ctx context.Context, counter string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[counter]
	if !ok {
		return 0, nil
	}
	value, err := strconv.ParseInt(entry.value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("counter %s is not a decimal string: %w", counter, err)
	}
	return value, nil
}

// Available always reports true for the in-process store.
func (s *MemoryStore) Available(ctx context.Context) bool {
	return true
}

// Name returns a unique identifier for this store.
func (s *MemoryStore) Name() string {
	return "memory"
}

// LocationURI returns the URI identifying this store.
func (s *MemoryStore) LocationURI() string {
	return "memory://"
}
