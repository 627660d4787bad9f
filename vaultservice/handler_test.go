package vaultservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tyler-smith/go-bip39"

	"github.com/artlu99/wallets-and-faucet/cryptoutils"
	"github.com/artlu99/wallets-and-faucet/entropy"
	"github.com/artlu99/wallets-and-faucet/interfaces"
	"github.com/artlu99/wallets-and-faucet/storage"
)

func newTestHandler(t *testing.T) (*Handler, *storage.MemoryStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := storage.NewMemoryStore(logger)
	defaultKey, err := interfaces.NewEncryptionKeyFromBytes(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)

	handler, err := NewHandler(&Config{
		Store:            store,
		Entropy:          entropy.NewSource(entropy.DefaultBeaconURL, time.Second, logger),
		DefaultKey:       defaultKey,
		DefaultSalt:      interfaces.Salt(""),
		TTL:              time.Hour,
		ChargePerRequest: 0.01,
		Log:              logger,
	})
	require.NoError(t, err)
	return handler, store
}

func serveVault(handler *Handler, req *http.Request) *httptest.ResponseRecorder {
	mux := chi.NewRouter()
	handler.RegisterRoutes(mux)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func createEOA(t *testing.T, handler *Handler, body string, headers map[string]string) EOAResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/eoa", strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := serveVault(handler, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp EOAResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestCreateAndFetchRoundTrip(t *testing.T) {
	handler, store := newTestHandler(t)

	created := createEOA(t, handler, "", nil)
	assert.True(t, strings.HasPrefix(created.Address, "0x"))
	assert.Len(t, created.Address, 42)
	assert.True(t, strings.HasPrefix(created.PK, "0x"))
	assert.Len(t, created.PK, 66)
	assert.Empty(t, created.Mnemonic)
	assert.Greater(t, created.ExpiresAfter, time.Now().Unix())

	// The returned key must actually control the returned address.
	privateKey, err := ethcrypto.HexToECDSA(strings.TrimPrefix(created.PK, "0x"))
	require.NoError(t, err)
	assert.Equal(t, created.Address, ethcrypto.PubkeyToAddress(privateKey.PublicKey).Hex())

	req := httptest.NewRequest(http.MethodGet, "/eoa/"+created.Address, nil)
	w := serveVault(handler, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var fetched EOAResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))
	assert.Equal(t, created.Address, fetched.Address)
	assert.Equal(t, created.PK, fetched.PK)
	assert.Equal(t, created.ExpiresAfter, fetched.ExpiresAfter)

	createdCount, err := store.GetCounter(t.Context(), interfaces.CreatedCounter)
	require.NoError(t, err)
	assert.Equal(t, int64(1), createdCount)
	retrievedCount, err := store.GetCounter(t.Context(), interfaces.RetrievedCounter)
	require.NoError(t, err)
	assert.Equal(t, int64(1), retrievedCount)
}

func TestCreateWithMnemonic(t *testing.T) {
	handler, _ := newTestHandler(t)

	created := createEOA(t, handler, `{"mnemonic":true}`, nil)
	words := strings.Fields(created.Mnemonic)
	assert.Len(t, words, 24)

	// The mnemonic must encode exactly the returned private key.
	raw, err := bip39.EntropyFromMnemonic(created.Mnemonic)
	require.NoError(t, err)
	assert.Equal(t, created.PK, "0x"+fmt.Sprintf("%x", raw))
}

func TestCreateWithBeaconMix(t *testing.T) {
	beacon := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"round":4242,"signature":"deadbeef"}`))
	}))
	defer beacon.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	defaultKey, err := interfaces.NewEncryptionKeyFromBytes(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)

	handler, err := NewHandler(&Config{
		Store:      storage.NewMemoryStore(logger),
		Entropy:    entropy.NewSource(beacon.URL, time.Second, logger),
		DefaultKey: defaultKey,
		TTL:        time.Hour,
		Log:        logger,
	})
	require.NoError(t, err)

	created := createEOA(t, handler, `{"mix":true}`, nil)
	assert.Len(t, created.PK, 66)

	// The mixed key still controls the returned address.
	privateKey, err := ethcrypto.HexToECDSA(strings.TrimPrefix(created.PK, "0x"))
	require.NoError(t, err)
	assert.Equal(t, created.Address, ethcrypto.PubkeyToAddress(privateKey.PublicKey).Hex())
}

func TestCreateWithBeaconDown(t *testing.T) {
	beacon := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	beacon.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	defaultKey, err := interfaces.NewEncryptionKeyFromBytes(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)

	store := storage.NewMemoryStore(logger)
	handler, err := NewHandler(&Config{
		Store:      store,
		Entropy:    entropy.NewSource(beacon.URL, time.Second, logger),
		DefaultKey: defaultKey,
		TTL:        time.Hour,
		Log:        logger,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/eoa", strings.NewReader(`{"mix":true}`))
	w := serveVault(handler, req)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	// Nothing was stored for the failed create.
	keys, err := store.List(t.Context())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestFetchUnknownAddress(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/eoa/0x1111111111111111111111111111111111111111", nil)
	w := serveVault(handler, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFetchWithWrongSalt(t *testing.T) {
	handler, _ := newTestHandler(t)
	created := createEOA(t, handler, "", nil)

	// Different salt means a different storage key: the record is simply
	// not found, never a decryption error.
	req := httptest.NewRequest(http.MethodGet, "/eoa/"+created.Address+"?salt=abcde", nil)
	w := serveVault(handler, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFetchWithWrongKey(t *testing.T) {
	handler, store := newTestHandler(t)
	created := createEOA(t, handler, "", nil)

	otherKey, err := interfaces.NewEncryptionKeyFromBytes(bytes.Repeat([]byte{9}, 32))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/eoa/"+created.Address, nil)
	req.Header.Set(EncryptionSecretHeader, otherKey.Base85())
	w := serveVault(handler, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Internal server error")
	assert.NotContains(t, w.Body.String(), "decrypt")

	failed, err := store.GetCounter(t.Context(), interfaces.FailedToDecryptCounter)
	require.NoError(t, err)
	assert.Equal(t, int64(1), failed)
}

func TestFetchAddressMismatch(t *testing.T) {
	handler, store := newTestHandler(t)
	first := createEOA(t, handler, "", nil)
	second := createEOA(t, handler, "", nil)

	// Copy the first record under the second address's storage slot, then
	// fetch the second address. Decryption succeeds but the derived
	// address belongs to the first EOA; the response must look exactly
	// like an authentication failure.
	firstRecord := rawRecord(t, store, first.Address)
	require.NoError(t, store.Put(t.Context(), addressSlot(second.Address), firstRecord, time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/eoa/"+second.Address, nil)
	w := serveVault(handler, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	failed, err := store.GetCounter(t.Context(), interfaces.FailedToDecryptCounter)
	require.NoError(t, err)
	assert.Equal(t, int64(1), failed)
}

func TestCustomSaltAndKeyIsolation(t *testing.T) {
	handler, _ := newTestHandler(t)

	customKey, err := interfaces.NewEncryptionKeyFromBytes(bytes.Repeat([]byte{42}, 32))
	require.NoError(t, err)
	headers := map[string]string{EncryptionSecretHeader: customKey.Base85()}

	created := createEOA(t, handler, `{"salt":"abcde"}`, headers)

	// Both overrides present: round trip succeeds.
	req := httptest.NewRequest(http.MethodGet, "/eoa/"+created.Address+"?salt=abcde", nil)
	req.Header.Set(EncryptionSecretHeader, customKey.Base85())
	w := serveVault(handler, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Default salt misses the record entirely.
	req = httptest.NewRequest(http.MethodGet, "/eoa/"+created.Address, nil)
	req.Header.Set(EncryptionSecretHeader, customKey.Base85())
	w = serveVault(handler, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Right salt but default key fails generically.
	req = httptest.NewRequest(http.MethodGet, "/eoa/"+created.Address+"?salt=abcde", nil)
	w = serveVault(handler, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestInvalidOverridesRejectedBeforeGeneration(t *testing.T) {
	handler, store := newTestHandler(t)

	tests := []struct {
		name    string
		body    string
		headers map[string]string
	}{
		{name: "bad key header", headers: map[string]string{EncryptionSecretHeader: "not valid \x7f base85"}},
		{name: "short key", headers: map[string]string{EncryptionSecretHeader: interfaces.EncodeBase85([]byte("short"))}},
		{name: "oversized salt", body: fmt.Sprintf(`{"salt":%q}`, strings.Repeat("a", 300))},
		{name: "whitespace salt", body: `{"salt":"ab cd"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/eoa", strings.NewReader(tc.body))
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			w := serveVault(handler, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	// Nothing was generated or stored for rejected requests.
	keys, err := store.List(t.Context())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestEphemeralSecrets(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/ephemeral-secrets", nil)
	w := serveVault(handler, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp EphemeralSecretsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Independent)
	assert.False(t, resp.Mixed)

	// Outputs must satisfy the same validation imposed on client-supplied
	// overrides.
	_, err := interfaces.NewSalt(resp.Salt)
	require.NoError(t, err)
	key, err := interfaces.NewEncryptionKeyFromBase85(resp.EncryptionSecret)
	require.NoError(t, err)
	assert.Len(t, key.Bytes(), interfaces.EncryptionKeySize)

	// Consecutive calls are independent.
	w = serveVault(handler, httptest.NewRequest(http.MethodGet, "/ephemeral-secrets", nil))
	var second EphemeralSecretsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	assert.NotEqual(t, resp.EncryptionSecret, second.EncryptionSecret)
	assert.NotEqual(t, resp.Salt, second.Salt)
}

func TestStatus(t *testing.T) {
	handler, _ := newTestHandler(t)

	created := createEOA(t, handler, "", nil)
	w := serveVault(handler, httptest.NewRequest(http.MethodGet, "/eoa/"+created.Address, nil))
	require.Equal(t, http.StatusOK, w.Code)

	// One failed decryption, so every counter key is populated.
	otherKey, err := interfaces.NewEncryptionKeyFromBytes(bytes.Repeat([]byte{9}, 32))
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/eoa/"+created.Address, nil)
	req.Header.Set(EncryptionSecretHeader, otherKey.Base85())
	w = serveVault(handler, req)
	require.Equal(t, http.StatusInternalServerError, w.Code)

	w = serveVault(handler, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var status StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, int64(1), status.TotalEOACreated)
	assert.Equal(t, int64(1), status.TotalEOARetrieved)
	assert.Equal(t, int64(1), status.TotalEOAFailedToDecrypt)
	assert.Equal(t, int64(1), status.CurrentEOACount)
	assert.Equal(t, "$0.01", status.X402Price)
	assert.Equal(t, entropy.DefaultBeaconURL, status.PublicRandomnessSource)
	assert.NotEmpty(t, status.TimeToDeletion)
	assert.NotEmpty(t, status.SaltRules)
	assert.NotEmpty(t, status.EncryptionKeyRules)
}

// failingCounterStore wraps a memory store and fails reads of one counter.
type failingCounterStore struct {
	*storage.MemoryStore
	failCounter string
}

func (s *failingCounterStore) GetCounter(ctx context.Context, counter string) (int64, error) {
	if counter == s.failCounter {
		return 0, errors.New("backend unavailable")
	}
	return s.MemoryStore.GetCounter(ctx, counter)
}

func TestStatusSurfacesCounterReadErrors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	defaultKey, err := interfaces.NewEncryptionKeyFromBytes(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)

	// Whichever counter read fails, status must report the backend
	// failure instead of a silent zero.
	for _, counter := range interfaces.CounterKeys {
		t.Run(counter, func(t *testing.T) {
			handler, err := NewHandler(&Config{
				Store:      &failingCounterStore{MemoryStore: storage.NewMemoryStore(logger), failCounter: counter},
				Entropy:    entropy.NewSource(entropy.DefaultBeaconURL, time.Second, logger),
				DefaultKey: defaultKey,
				TTL:        time.Hour,
				Log:        logger,
			})
			require.NoError(t, err)

			w := serveVault(handler, httptest.NewRequest(http.MethodGet, "/status", nil))
			assert.Equal(t, http.StatusBadGateway, w.Code)
		})
	}
}

// rawRecord reads the stored record for an address created under the empty
// default salt.
func rawRecord(t *testing.T, store *storage.MemoryStore, address string) interfaces.StorageRecord {
	t.Helper()
	record, err := store.Get(t.Context(), addressSlot(address))
	require.NoError(t, err)
	return record
}

func addressSlot(address string) string {
	return cryptoutils.AddressKey("", address)
}
