package storage

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/artlu99/wallets-and-faucet/interfaces"
)

// SecretStoreFactory creates secret store backends from URI strings.
type SecretStoreFactory struct {
	log *slog.Logger
}

// NewSecretStoreFactory creates a factory instance.
func NewSecretStoreFactory(log *slog.Logger) *SecretStoreFactory {
	return &SecretStoreFactory{log: log}
}

// SecretStoreFor creates a secret store from a location URI.
//
// Supported schemes:
//   - memory:// - in-process store (development, tests, single node)
//   - file:// - local filesystem store
//   - vault:// - HashiCorp Vault KV v2 (vault://host:port/mount/path?token=...)
//   - s3:// - Amazon S3 or compatible (s3://bucket/prefix?region=...&endpoint=...)
//
// Returns an error if the URI is invalid or the scheme is unsupported.
func (sf *SecretStoreFactory) SecretStoreFor(locationURI string) (interfaces.SecretStore, error) {
	u, err := url.Parse(locationURI)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid store URI: %v", interfaces.ErrConfiguration, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "memory":
		return NewMemoryStore(sf.log), nil
	case "file":
		return NewFileStore(u.Path, sf.log)
	case "vault":
		return sf.createVaultStore(u)
	case "s3":
		return sf.createS3Store(u)
	default:
		return nil, fmt.Errorf("%w: unsupported store scheme: %s", interfaces.ErrConfiguration, u.Scheme)
	}
}

// createVaultStore creates a Vault store from a URI like
// vault://vault.example.com:8200/secret/wallets?token=...&scheme=https
func (sf *SecretStoreFactory) createVaultStore(u *url.URL) (interfaces.SecretStore, error) {
	serverScheme := u.Query().Get("scheme")
	if serverScheme == "" {
		serverScheme = "https"
	}
	address := fmt.Sprintf("%s://%s", serverScheme, u.Host)

	parts := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)
	if len(parts) == 0 || parts[0] == "" {
		return nil, fmt.Errorf("%w: vault URI must include a mount path", interfaces.ErrConfiguration)
	}
	mountPath := parts[0]
	dataPath := "wallets"
	if len(parts) == 2 && parts[1] != "" {
		dataPath = parts[1]
	}

	return NewVaultStore(address, u.Query().Get("token"), mountPath, dataPath, sf.log)
}

// createS3Store creates an S3 store from a URI like
// s3://bucket-name/prefix?region=us-west-2&endpoint=minio.local:9000
func (sf *SecretStoreFactory) createS3Store(u *url.URL) (interfaces.SecretStore, error) {
	bucketName := u.Host
	if bucketName == "" {
		return nil, fmt.Errorf("%w: s3 URI must include a bucket name", interfaces.ErrConfiguration)
	}

	region := u.Query().Get("region")
	if region == "" {
		region = "us-east-1"
	}

	var accessKey, secretKey string
	if u.User != nil {
		accessKey = u.User.Username()
		secretKey, _ = u.User.Password()
	}

	return NewS3Store(bucketName, strings.Trim(u.Path, "/"), region, u.Query().Get("endpoint"), accessKey, secretKey, sf.log)
}
