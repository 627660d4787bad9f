package vaultservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"

	"github.com/artlu99/wallets-and-faucet/cryptoutils"
	"github.com/artlu99/wallets-and-faucet/entropy"
	"github.com/artlu99/wallets-and-faucet/interfaces"
	"github.com/artlu99/wallets-and-faucet/metrics"
)

// maxBodySize is the maximum allowed request body size (64KB).
const maxBodySize = 64 * 1024

// counterSlots is the number of store keys reserved for counters, excluded
// from the live record count.
var counterSlots = int64(len(interfaces.CounterKeys))

// Config holds the vault service's startup configuration. Read-only after
// initialization; request handling shares no other mutable state.
type Config struct {
	// Store holds encrypted records and counters.
	Store interfaces.SecretStore

	// Entropy produces random bytes and beacon mixing.
	Entropy *entropy.Source

	// DefaultKey encrypts records when the caller supplies no override.
	DefaultKey interfaces.EncryptionKey

	// DefaultSalt addresses records when the caller supplies no override.
	DefaultSalt interfaces.Salt

	// TTL bounds record lifetime. Must exceed interfaces.MinTTL.
	TTL time.Duration

	// ChargePerRequest is the fetch price in USD, for status reporting.
	ChargePerRequest float64

	// Log is the structured logger.
	Log *slog.Logger
}

// Validate checks the configuration eagerly, before any request handling.
func (c *Config) Validate() error {
	if c.Store == nil {
		return fmt.Errorf("%w: secret store is required", interfaces.ErrConfiguration)
	}
	if c.Entropy == nil {
		return fmt.Errorf("%w: entropy source is required", interfaces.ErrConfiguration)
	}
	if c.TTL <= interfaces.MinTTL {
		return fmt.Errorf("%w: ttl must exceed %s", interfaces.ErrConfiguration, interfaces.MinTTL)
	}
	return nil
}

// Handler processes HTTP requests for the ephemeral EOA vault.
type Handler struct {
	cfg *Config
	log *slog.Logger
}

// NewHandler creates a vault request handler from a validated configuration.
func NewHandler(cfg *Config) (*Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Handler{cfg: cfg, log: cfg.Log}, nil
}

// RegisterRoutes attaches the vault endpoints to the given router. Any
// fetchMiddlewares are applied to the fetch route only; create and status
// stay ungated.
func (h *Handler) RegisterRoutes(r chi.Router, fetchMiddlewares ...func(http.Handler) http.Handler) {
	r.Post("/eoa", h.HandleCreate)
	r.With(fetchMiddlewares...).Get("/eoa/{address}", h.HandleFetch)
	r.Get("/ephemeral-secrets", h.HandleEphemeralSecrets)
	r.Get("/status", h.HandleStatus)
}

// HandleCreate processes POST /eoa: generate a keypair, encrypt the private
// key, store it under the salted address hash, and return the material to
// the caller once.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}
	}

	resp, reqErr := h.create(r.Context(), &req, r.Header.Get(EncryptionSecretHeader))
	if reqErr != nil {
		h.writeError(w, "create", reqErr)
		return
	}
	h.writeJSON(w, resp)
}

// HandleFetch processes GET /eoa/{address}: locate the record under the
// salted address hash, decrypt it, and return the key material.
func (h *Handler) HandleFetch(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	if address == "" {
		http.Error(w, "Missing address in URL", http.StatusBadRequest)
		return
	}

	resp, reqErr := h.fetch(r.Context(), address, r.URL.Query().Get(SaltQueryParam), r.Header.Get(EncryptionSecretHeader))
	if reqErr != nil {
		h.writeError(w, "fetch", reqErr)
		return
	}
	h.writeJSON(w, resp)
}

// HandleEphemeralSecrets processes GET /ephemeral-secrets: generate a fresh,
// independent salt and encryption key pair for per-session isolation. Does
// not touch storage.
func (h *Handler) HandleEphemeralSecrets(w http.ResponseWriter, r *http.Request) {
	saltBytes, err := h.cfg.Entropy.Generate(16)
	if err != nil {
		h.writeError(w, "ephemeral", &RequestError{http.StatusInternalServerError, err})
		return
	}
	keyBytes, err := h.cfg.Entropy.Generate(interfaces.EncryptionKeySize)
	if err != nil {
		h.writeError(w, "ephemeral", &RequestError{http.StatusInternalServerError, err})
		return
	}

	salt := interfaces.EncodeBase85(saltBytes)
	encryptionKey := interfaces.EncodeBase85(keyBytes)

	// Generated values must satisfy the same rules imposed on callers.
	if _, err := interfaces.NewSalt(salt); err != nil {
		h.writeError(w, "ephemeral", &RequestError{http.StatusInternalServerError, err})
		return
	}
	if _, err := interfaces.NewEncryptionKeyFromBase85(encryptionKey); err != nil {
		h.writeError(w, "ephemeral", &RequestError{http.StatusInternalServerError, err})
		return
	}

	h.writeJSON(w, &EphemeralSecretsResponse{
		Salt:             salt,
		EncryptionSecret: encryptionKey,
		Independent:      true,
		Mixed:            false,
	})
}

// HandleStatus processes GET /status: aggregate counters and configuration
// in human-readable form. Read-only.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	created, err := h.cfg.Store.GetCounter(ctx, interfaces.CreatedCounter)
	if err != nil {
		h.writeError(w, "status", &RequestError{http.StatusBadGateway, err})
		return
	}
	retrieved, err := h.cfg.Store.GetCounter(ctx, interfaces.RetrievedCounter)
	if err != nil {
		h.writeError(w, "status", &RequestError{http.StatusBadGateway, err})
		return
	}
	failed, err := h.cfg.Store.GetCounter(ctx, interfaces.FailedToDecryptCounter)
	if err != nil {
		h.writeError(w, "status", &RequestError{http.StatusBadGateway, err})
		return
	}

	keys, err := h.cfg.Store.List(ctx)
	if err != nil {
		h.writeError(w, "status", &RequestError{http.StatusBadGateway, err})
		return
	}
	listed := int64(len(keys))

	h.writeJSON(w, &StatusResponse{
		TotalEOACreated:         max(created, listed-counterSlots),
		TotalEOARetrieved:       retrieved,
		TotalEOAFailedToDecrypt: failed,
		CurrentEOACount:         max(listed-counterSlots, 0),
		TimeToDeletion:          humanize.Time(time.Now().Add(h.cfg.TTL)),
		X402Price:               fmt.Sprintf("$%.2f", h.cfg.ChargePerRequest),
		PublicRandomnessSource:  h.cfg.Entropy.BeaconURL(),
		SaltRules:               "≤255 character Base85 string",
		EncryptionKeyRules:      "40-character Base85 string (256-bit key)",
	})
}

// create implements the create state machine. Overrides are validated
// before any entropy is generated, so invalid requests cost nothing and the
// valid/invalid paths do not share a generation step to diverge in timing.
func (h *Handler) create(ctx context.Context, req *CreateRequest, keyOverride string) (*EOAResponse, *RequestError) {
	encKey, salt, reqErr := h.resolveOverrides(keyOverride, req.Salt)
	if reqErr != nil {
		return nil, reqErr
	}

	raw, err := h.cfg.Entropy.Generate(interfaces.EncryptionKeySize)
	if err != nil {
		return nil, &RequestError{http.StatusInternalServerError, err}
	}

	// Local bytes are committed before the beacon round is fetched.
	if req.Mix {
		raw, err = h.cfg.Entropy.Mix(ctx, raw)
		if err != nil {
			h.log.Error("Beacon mixing failed", "err", err)
			return nil, &RequestError{http.StatusBadGateway, err}
		}
	}

	privateKey, err := ethcrypto.ToECDSA(raw)
	if err != nil {
		// Out of range for the curve order; vanishingly rare.
		return nil, &RequestError{http.StatusInternalServerError, err}
	}
	address := ethcrypto.PubkeyToAddress(privateKey.PublicKey).Hex()
	pkHex := hexutil.Encode(raw)

	envelope, err := cryptoutils.ImportKey(encKey)
	if err != nil {
		return nil, &RequestError{http.StatusInternalServerError, err}
	}
	iv, ciphertext, err := envelope.Encrypt([]byte(pkHex))
	if err != nil {
		return nil, &RequestError{http.StatusInternalServerError, err}
	}

	expiresAfter := time.Now().Add(h.cfg.TTL).Unix()
	record := interfaces.StorageRecord{
		IV:           iv,
		Ciphertext:   ciphertext,
		ExpiresAfter: expiresAfter,
	}

	storageKey := cryptoutils.AddressKey(salt, address)
	if err := h.cfg.Store.Put(ctx, storageKey, record, h.cfg.TTL); err != nil {
		h.log.Error("Failed to store record", "err", err)
		return nil, &RequestError{http.StatusBadGateway, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)}
	}

	if _, err := h.cfg.Store.Increment(ctx, interfaces.CreatedCounter); err != nil {
		h.log.Warn("Failed to increment created counter", "err", err)
	}
	metrics.EOACreated.Inc()

	resp := &EOAResponse{
		Address:      address,
		PK:           pkHex,
		ExpiresAfter: expiresAfter,
	}
	if req.Mnemonic {
		// 24-word BIP-39 form of the raw key bytes; reversible via
		// mnemonic-to-entropy.
		mnemonic, err := bip39.NewMnemonic(raw)
		if err != nil {
			return nil, &RequestError{http.StatusInternalServerError, err}
		}
		resp.Mnemonic = mnemonic
	}

	h.log.Info("Created EOA", slog.Bool("mixed", req.Mix), slog.Int64("expiresAfter", expiresAfter))
	return resp, nil
}

// fetch implements the fetch state machine.
func (h *Handler) fetch(ctx context.Context, pathAddress, saltOverride, keyOverride string) (*EOAResponse, *RequestError) {
	encKey, salt, reqErr := h.resolveOverrides(keyOverride, saltOverride)
	if reqErr != nil {
		return nil, reqErr
	}

	storageKey := cryptoutils.AddressKey(salt, pathAddress)
	record, err := h.cfg.Store.Get(ctx, storageKey)
	if errors.Is(err, interfaces.ErrRecordNotFound) {
		return nil, &RequestError{http.StatusNotFound, interfaces.ErrRecordNotFound}
	}
	if err != nil {
		h.log.Error("Store lookup failed", "err", err)
		return nil, &RequestError{http.StatusBadGateway, err}
	}

	if err := record.Validate(); err != nil {
		// Present but corrupted: distinct from absence, still generic to
		// the caller.
		h.log.Error("Record failed structural validation", "err", err)
		return nil, &RequestError{http.StatusBadRequest, interfaces.ErrMalformedRecord}
	}

	envelope, err := cryptoutils.ImportKey(encKey)
	if err != nil {
		return nil, &RequestError{http.StatusInternalServerError, err}
	}

	plaintext, err := envelope.Decrypt(record.IV, record.Ciphertext)
	if err != nil {
		return nil, h.decryptFailure(ctx, "authentication failed")
	}

	pkHex := string(plaintext)
	raw, err := hexutil.Decode(pkHex)
	if err != nil || len(raw) != interfaces.EncryptionKeySize {
		return nil, h.decryptFailure(ctx, "plaintext is not a private key")
	}
	privateKey, err := ethcrypto.ToECDSA(raw)
	if err != nil {
		return nil, h.decryptFailure(ctx, "plaintext is not a private key")
	}

	// The authoritative address is derived from the decrypted key, and it
	// must match the address the caller asked for. A mismatch under a
	// successful decryption means the record does not belong to this
	// address; surfaced exactly like an authentication failure.
	derived := ethcrypto.PubkeyToAddress(privateKey.PublicKey).Hex()
	if !strings.EqualFold(derived, pathAddress) {
		return nil, h.decryptFailure(ctx, "derived address mismatch")
	}

	if _, err := h.cfg.Store.Increment(ctx, interfaces.RetrievedCounter); err != nil {
		h.log.Warn("Failed to increment retrieved counter", "err", err)
	}
	metrics.EOARetrieved.Inc()

	return &EOAResponse{
		Address:      derived,
		PK:           pkHex,
		ExpiresAfter: record.ExpiresAfter,
	}, nil
}

// decryptFailure counts a decryption-class failure and returns the generic
// error shape. The reason is logged, never sent to the caller.
func (h *Handler) decryptFailure(ctx context.Context, reason string) *RequestError {
	h.log.Warn("Fetch failed to decrypt", slog.String("reason", reason))
	if _, err := h.cfg.Store.Increment(ctx, interfaces.FailedToDecryptCounter); err != nil {
		h.log.Warn("Failed to increment failed_to_decrypt counter", "err", err)
	}
	metrics.DecryptFailures.Inc()
	return &RequestError{http.StatusInternalServerError, interfaces.ErrDecryptionFailed}
}

// resolveOverrides validates the per-request key and salt overrides and
// falls back to the configured defaults.
func (h *Handler) resolveOverrides(keyOverride, saltOverride string) (interfaces.EncryptionKey, interfaces.Salt, *RequestError) {
	encKey := h.cfg.DefaultKey
	if keyOverride != "" {
		parsed, err := interfaces.NewEncryptionKeyFromBase85(keyOverride)
		if err != nil {
			return interfaces.EncryptionKey{}, "", &RequestError{http.StatusBadRequest, err}
		}
		encKey = parsed
	}

	salt := h.cfg.DefaultSalt
	if saltOverride != "" {
		parsed, err := interfaces.NewSalt(saltOverride)
		if err != nil {
			return interfaces.EncryptionKey{}, "", &RequestError{http.StatusBadRequest, err}
		}
		salt = parsed
	}

	return encKey, salt, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

// writeError surfaces a request error. Validation errors carry enough
// detail to fix the request; everything else is generic.
func (h *Handler) writeError(w http.ResponseWriter, op string, reqErr *RequestError) {
	msg := "Internal server error"
	switch {
	case errors.Is(reqErr.Err, interfaces.ErrValidation):
		msg = reqErr.Err.Error()
	case errors.Is(reqErr.Err, interfaces.ErrRecordNotFound):
		msg = "EOA not found"
	case errors.Is(reqErr.Err, interfaces.ErrMalformedRecord):
		msg = "Invalid record"
	case errors.Is(reqErr.Err, interfaces.ErrUpstreamUnavailable), errors.Is(reqErr.Err, interfaces.ErrBeaconMalformed), errors.Is(reqErr.Err, interfaces.ErrStoreUnavailable):
		msg = "Upstream unavailable"
	}
	h.log.Debug("Request failed", slog.String("op", op), slog.Int("status", reqErr.StatusCode), "err", reqErr.Err)
	http.Error(w, msg, reqErr.StatusCode)
}
