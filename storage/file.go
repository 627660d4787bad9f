package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/artlu99/wallets-and-faucet/interfaces"
)

// fileEntry wraps a record with its expiry attribute. The record itself is
// preserved as-is; expiry is an attribute of the store entry, not part of
// the value.
type fileEntry struct {
	Record    interfaces.StorageRecord `json:"record"`
	ExpiresAt int64                    `json:"expires_at"`
}

// FileStore implements a secret store using the local file system. Records
// and counters live in separate subdirectories under the base directory.
// Increments are serialized under an in-process mutex, so counts are exact
// for a single-process deployment.
type FileStore struct {
	baseDir     string
	log         *slog.Logger
	locationURI string

	counterMu sync.Mutex
	now       func() time.Time
}

// NewFileStore creates a file store rooted at baseDir, creating the records
// and counters subdirectories if needed.
func NewFileStore(baseDir string, log *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, "records"), 0700); err != nil {
		return nil, fmt.Errorf("failed to create records directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(baseDir, "counters"), 0700); err != nil {
		return nil, fmt.Errorf("failed to create counters directory: %w", err)
	}

	return &FileStore{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
		now:         time.Now,
	}, nil
}

func (s *FileStore) recordPath(key string) string {
	// Keys are hex digests; sanitize anyway so a hostile key cannot escape
	// the store directory.
	return filepath.Join(s.baseDir, "records", filepath.Base(key))
}

func (s *FileStore) counterPath(counter string) string {
	return filepath.Join(s.baseDir, "counters", filepath.Base(counter))
}

// Put stores a record under key, expiring after ttl.
func (s *FileStore) Put(ctx context.Context, key string, record interfaces.StorageRecord, ttl time.Duration) error {
	if ttl <= interfaces.MinTTL {
		return fmt.Errorf("%w: ttl must exceed %s", interfaces.ErrValidation, interfaces.MinTTL)
	}

	data, err := json.Marshal(fileEntry{
		Record:    record,
		ExpiresAt: s.now().Add(ttl).Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	if err := os.WriteFile(s.recordPath(key), data, 0600); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}

	s.log.Debug("Stored record", slog.String("key", key))
	return nil
}

// Get retrieves a record, removing it lazily if its TTL has passed.
func (s *FileStore) Get(ctx context.Context, key string) (interfaces.StorageRecord, error) {
	data, err := os.ReadFile(s.recordPath(key))
	if os.IsNotExist(err) {
		return interfaces.StorageRecord{}, interfaces.ErrRecordNotFound
	}
	if err != nil {
		return interfaces.StorageRecord{}, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}

	var entry fileEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return interfaces.StorageRecord{}, fmt.Errorf("%w: %v", interfaces.ErrMalformedRecord, err)
	}

	if entry.ExpiresAt > 0 && s.now().Unix() > entry.ExpiresAt {
		_ = os.Remove(s.recordPath(key))
		return interfaces.StorageRecord{}, interfaces.ErrRecordNotFound
	}

	return entry.Record, nil
}

// List returns all live keys, counters included.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	keys := []string{}

	records, err := os.ReadDir(filepath.Join(s.baseDir, "records"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	now := s.now().Unix()
	for _, f := range records {
		if f.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.baseDir, "records", f.Name()))
		if err != nil {
			continue
		}
		var entry fileEntry
		if err := json.Unmarshal(data, &entry); err == nil && entry.ExpiresAt > 0 && now > entry.ExpiresAt {
			_ = os.Remove(filepath.Join(s.baseDir, "records", f.Name()))
			continue
		}
		keys = append(keys, f.Name())
	}

	counters, err := os.ReadDir(filepath.Join(s.baseDir, "counters"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	for _, f := range counters {
		if !f.IsDir() {
			keys = append(keys, f.Name())
		}
	}

	return keys, nil
}

// Increment adds one to a named counter. The read-then-write pair is
// serialized under an in-process mutex.
func (s *FileStore) Increment(ctx context.Context, counter string) (int64, error) {
	s.counterMu.Lock()
	defer s.counterMu.Unlock()

	current, err := s.readCounter(counter)
	if err != nil {
		return 0, err
	}

	current++
	if err := os.WriteFile(s.counterPath(counter), []byte(strconv.FormatInt(current, 10)), 0600); err != nil {
		return 0, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	return current, nil
}

// GetCounter reads a named counter, zero if unset.
func (s *FileStore) GetCounter(ctx context.Context, counter string) (int64, error) {
	s.counterMu.Lock()
	defer s.counterMu.Unlock()
	return s.readCounter(counter)
}

func (s *FileStore) readCounter(counter string) (int64, error) {
	data, err := os.ReadFile(s.counterPath(counter))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	value, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("counter %s is not a decimal string: %w", counter, err)
	}
	return value, nil
}

// Available checks the base directory is accessible.
func (s *FileStore) Available(ctx context.Context) bool {
	_, err := os.Stat(s.baseDir)
	if err != nil {
		s.log.Debug("File store unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this store.
func (s *FileStore) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(s.baseDir))
}

// LocationURI returns the URI identifying this store.
func (s *FileStore) LocationURI() string {
	return s.locationURI
}
