package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"

	"github.com/artlu99/wallets-and-faucet/interfaces"
)

// VaultStore implements a secret store using HashiCorp Vault's KV v2 engine.
// Vault does not expire KV entries natively, so the expiry timestamp is kept
// as an attribute next to the value and enforced lazily on read: an expired
// entry is deleted and reported as not found.
//
// Increment is a read-then-write pair without compare-and-swap; concurrent
// increments from multiple processes can lose updates.
type VaultStore struct {
	client      *api.Client
	mountPath   string
	dataPath    string
	log         *slog.Logger
	locationURI string
	now         func() time.Time
}

// NewVaultStore creates a Vault-backed secret store.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - token: Vault token; empty falls back to the VAULT_TOKEN environment
//   - mountPath: KV v2 mount path (e.g. "secret")
//   - dataPath: path within the mount (e.g. "wallets")
//   - log: structured logger
func NewVaultStore(address, token, mountPath, dataPath string, log *slog.Logger) (*VaultStore, error) {
	config := api.DefaultConfig()
	config.Address = address

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	mountPath = strings.TrimSuffix(mountPath, "/")
	dataPath = strings.Trim(dataPath, "/")

	return &VaultStore{
		client:      client,
		mountPath:   mountPath,
		dataPath:    dataPath,
		log:         log,
		locationURI: fmt.Sprintf("vault://%s/%s/%s", address, mountPath, dataPath),
		now:         time.Now,
	}, nil
}

func (s *VaultStore) dataPathFor(key string) string {
	return fmt.Sprintf("%s/data/%s/%s", s.mountPath, s.dataPath, key)
}

func (s *VaultStore) metadataPathFor(key string) string {
	return fmt.Sprintf("%s/metadata/%s/%s", s.mountPath, s.dataPath, key)
}

// Put stores a record under key with its expiry attribute.
func (s *VaultStore) Put(ctx context.Context, key string, record interfaces.StorageRecord, ttl time.Duration) error {
	if ttl <= interfaces.MinTTL {
		return fmt.Errorf("%w: ttl must exceed %s", interfaces.ErrValidation, interfaces.MinTTL)
	}

	_, err := s.client.Logical().WriteWithContext(ctx, s.dataPathFor(key), map[string]interface{}{
		"data": map[string]interface{}{
			"iv":         record.IV,
			"ciphertext": record.Ciphertext,
			"expires_at": strconv.FormatInt(s.now().Add(ttl).Unix(), 10),
		},
	})
	if err != nil {
		s.log.Error("Failed to write to Vault", slog.String("key", key), "err", err)
		return fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	return nil
}

// Get retrieves a record, deleting it lazily if its TTL has passed.
func (s *VaultStore) Get(ctx context.Context, key string) (interfaces.StorageRecord, error) {
	secret, err := s.client.Logical().ReadWithContext(ctx, s.dataPathFor(key))
	if err != nil {
		s.log.Error("Failed to read from Vault", slog.String("key", key), "err", err)
		return interfaces.StorageRecord{}, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	if secret == nil || secret.Data == nil {
		return interfaces.StorageRecord{}, interfaces.ErrRecordNotFound
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return interfaces.StorageRecord{}, fmt.Errorf("%w: invalid data format in Vault response", interfaces.ErrMalformedRecord)
	}

	if expiresStr, ok := data["expires_at"].(string); ok {
		expiresAt, err := strconv.ParseInt(expiresStr, 10, 64)
		if err == nil && expiresAt > 0 && s.now().Unix() > expiresAt {
			if _, err := s.client.Logical().DeleteWithContext(ctx, s.metadataPathFor(key)); err != nil {
				s.log.Warn("Failed to delete expired Vault entry", slog.String("key", key), "err", err)
			}
			return interfaces.StorageRecord{}, interfaces.ErrRecordNotFound
		}
	}

	record := interfaces.StorageRecord{}
	if iv, ok := data["iv"].(string); ok {
		record.IV = iv
	}
	if ciphertext, ok := data["ciphertext"].(string); ok {
		record.Ciphertext = ciphertext
	}
	return record, nil
}

// List returns all keys under the data path. Expiry is not checked here to
// avoid a read per key; expired entries age out on Get.
func (s *VaultStore) List(ctx context.Context) ([]string, error) {
	secret, err := s.client.Logical().ListWithContext(ctx, fmt.Sprintf("%s/metadata/%s", s.mountPath, s.dataPath))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	if secret == nil || secret.Data == nil {
		return []string{}, nil
	}

	rawKeys, ok := secret.Data["keys"].([]interface{})
	if !ok {
		return []string{}, nil
	}
	keys := make([]string, 0, len(rawKeys))
	for _, k := range rawKeys {
		if keyStr, ok := k.(string); ok {
			keys = append(keys, keyStr)
		}
	}
	return keys, nil
}

// Increment adds one to a named counter via read-then-write. Lost updates
// are possible under concurrency.
func (s *VaultStore) Increment(ctx context.Context, counter string) (int64, error) {
	current, err := s.GetCounter(ctx, counter)
	if err != nil {
		return 0, err
	}

	current++
	_, err = s.client.Logical().WriteWithContext(ctx, s.dataPathFor(counter), map[string]interface{}{
		"data": map[string]interface{}{
			"value": strconv.FormatInt(current, 10),
		},
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	return current, nil
}

// GetCounter reads a named counter, zero if unset.
func (s *VaultStore) GetCounter(ctx context.Context, counter string) (int64, error) {
	secret, err := s.client.Logical().ReadWithContext(ctx, s.dataPathFor(counter))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	if secret == nil || secret.Data == nil {
		return 0, nil
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	valueStr, ok := data["value"].(string)
	if !ok {
		return 0, nil
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("counter %s is not a decimal string: %w", counter, err)
	}
	return value, nil
}

// Available checks connectivity by querying Vault's health endpoint.
func (s *VaultStore) Available(ctx context.Context) bool {
	health, err := s.client.Sys().HealthWithContext(ctx)
	if err != nil {
		s.log.Debug("Vault store unavailable", "err", err)
		return false
	}
	return health.Initialized && !health.Sealed
}

// Name returns a unique identifier for this store.
func (s *VaultStore) Name() string {
	return fmt.Sprintf("vault-%s", s.mountPath)
}

// LocationURI returns the URI identifying this store.
func (s *VaultStore) LocationURI() string {
	return s.locationURI
}
