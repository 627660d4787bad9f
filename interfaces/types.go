package interfaces

import (
	"encoding/ascii85"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// EncryptionKeySize is the required decoded length of an encryption key.
const EncryptionKeySize = 32

// MaxSaltLength bounds the encoded length of a salt.
const MaxSaltLength = 255

// EncryptionKey is a 256-bit symmetric key. Externally it travels as an
// ascii85 string that must decode to exactly 32 bytes; internally only the
// raw bytes are kept. It is never logged or persisted.
type EncryptionKey [EncryptionKeySize]byte

// NewEncryptionKeyFromBase85 decodes and validates an ascii85-encoded key.
// Malformed keys are rejected before any cryptographic operation.
func NewEncryptionKeyFromBase85(encoded string) (EncryptionKey, error) {
	raw, err := DecodeBase85(encoded)
	if err != nil {
		return EncryptionKey{}, fmt.Errorf("%w: encryption key is not valid base85", ErrValidation)
	}
	return NewEncryptionKeyFromBytes(raw)
}

// NewEncryptionKeyFromBytes validates a raw key.
func NewEncryptionKeyFromBytes(raw []byte) (EncryptionKey, error) {
	if len(raw) != EncryptionKeySize {
		return EncryptionKey{}, fmt.Errorf("%w: encryption key must be %d bytes, got %d", ErrValidation, EncryptionKeySize, len(raw))
	}
	var key EncryptionKey
	copy(key[:], raw)
	return key, nil
}

// Bytes returns the raw key material.
func (k EncryptionKey) Bytes() []byte {
	return k[:]
}

// Base85 returns the encoded form, the shape clients supply in headers.
func (k EncryptionKey) Base85() string {
	return EncodeBase85(k[:])
}

// Salt is hashing input for the storage addressing scheme. It is never used
// as encryption input. The empty salt is valid; callers fall back to the
// configured default where one is required.
type Salt string

// NewSalt validates an encoded salt: at most 255 characters of valid ascii85.
func NewSalt(encoded string) (Salt, error) {
	if encoded == "" {
		return Salt(""), nil
	}
	if len(encoded) > MaxSaltLength {
		return Salt(""), fmt.Errorf("%w: salt must be at most %d characters", ErrValidation, MaxSaltLength)
	}
	if _, err := DecodeBase85(encoded); err != nil {
		return Salt(""), fmt.Errorf("%w: salt is not valid base85", ErrValidation)
	}
	return Salt(encoded), nil
}

// IsZero reports whether the salt is empty.
func (s Salt) IsZero() bool {
	return s == ""
}

// StorageRecord is the persisted value for one encrypted secret, keyed by
// the salted hash of its public address. The address itself never appears
// in the record.
type StorageRecord struct {
	IV           string `json:"iv"`
	Ciphertext   string `json:"ciphertext"`
	ExpiresAfter int64  `json:"expiresAfter,omitempty"`
}

// Validate checks the record's structural invariants: iv and ciphertext must
// be present and hex-encoded, with a 12-byte IV.
func (r StorageRecord) Validate() error {
	if r.IV == "" || r.Ciphertext == "" {
		return fmt.Errorf("%w: missing iv or ciphertext", ErrMalformedRecord)
	}
	iv, err := hex.DecodeString(r.IV)
	if err != nil || len(iv) != 12 {
		return fmt.Errorf("%w: invalid iv", ErrMalformedRecord)
	}
	if _, err := hex.DecodeString(r.Ciphertext); err != nil {
		return fmt.Errorf("%w: invalid ciphertext", ErrMalformedRecord)
	}
	return nil
}

// EncodeBase85 renders raw bytes as an ascii85 string.
func EncodeBase85(raw []byte) string {
	buf := make([]byte, ascii85.MaxEncodedLen(len(raw)))
	n := ascii85.Encode(buf, raw)
	return string(buf[:n])
}

// DecodeBase85 decodes an ascii85 string, rejecting trailing garbage.
func DecodeBase85(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, errors.New("empty base85 string")
	}
	if strings.ContainsAny(encoded, " \t\r\n") {
		return nil, errors.New("base85 string contains whitespace")
	}
	dst := make([]byte, len(encoded)*4)
	ndst, nsrc, err := ascii85.Decode(dst, []byte(encoded), true)
	if err != nil {
		return nil, err
	}
	if nsrc != len(encoded) {
		return nil, errors.New("trailing data in base85 string")
	}
	return dst[:ndst], nil
}
