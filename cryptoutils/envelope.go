package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/artlu99/wallets-and-faucet/interfaces"
)

// gcmIVSize is the IV length for AES-GCM. 12 bytes is standard for GCM.
const gcmIVSize = 12

// EnvelopeKey is an opaque handle bound to AES-256-GCM. The underlying key
// material is not exportable through this type.
type EnvelopeKey struct {
	aead cipher.AEAD
}

// ImportKey derives a usable cipher handle from a 256-bit key.
func ImportKey(key interfaces.EncryptionKey) (*EnvelopeKey, error) {
	block, err := aes.NewCipher(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &EnvelopeKey{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random IV and returns both hex
// encoded. The IV is drawn from the CSPRNG on every call; it is never
// derived from plaintext or counter state, since IV reuse under the same
// key breaks GCM confidentiality entirely.
func (k *EnvelopeKey) Encrypt(plaintext []byte) (iv string, ciphertext string, err error) {
	rawIV := make([]byte, gcmIVSize)
	if _, err := io.ReadFull(rand.Reader, rawIV); err != nil {
		return "", "", fmt.Errorf("failed to generate IV: %w", err)
	}

	sealed := k.aead.Seal(nil, rawIV, plaintext, nil)
	return hex.EncodeToString(rawIV), hex.EncodeToString(sealed), nil
}

// Decrypt opens a sealed payload. Every failure mode, whether malformed
// encoding, truncated input, or an authentication tag mismatch, is collapsed
// into ErrDecryptionFailed so callers cannot distinguish a wrong key from
// tampered ciphertext.
func (k *EnvelopeKey) Decrypt(iv string, ciphertext string) ([]byte, error) {
	rawIV, err := hex.DecodeString(iv)
	if err != nil || len(rawIV) != gcmIVSize {
		return nil, interfaces.ErrDecryptionFailed
	}

	sealed, err := hex.DecodeString(ciphertext)
	if err != nil {
		return nil, interfaces.ErrDecryptionFailed
	}

	plaintext, err := k.aead.Open(nil, rawIV, sealed, nil)
	if err != nil {
		return nil, interfaces.ErrDecryptionFailed
	}
	return plaintext, nil
}
