package cryptoutils

import (
	"crypto/rand"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/artlu99/wallets-and-faucet/interfaces"
)

func testKey(t *testing.T) interfaces.EncryptionKey {
	t.Helper()
	raw := make([]byte, 32)
	_, err := rand.Read(raw)
	require.NoError(t, err)
	key, err := interfaces.NewEncryptionKeyFromBytes(raw)
	require.NoError(t, err)
	return key
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := ImportKey(testKey(t))
	require.NoError(t, err)

	testCases := []struct {
		name string
		data []byte
	}{
		{
			name: "Hex private key string",
			data: []byte("0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"),
		},
		{
			name: "Binary data",
			data: []byte{0x00, 0x01, 0x02, 0x03, 0xFF, 0xFE, 0xFD},
		},
		{
			name: "Long data",
			data: make([]byte, 1024),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			iv, ciphertext, err := key.Encrypt(tc.data)
			require.NoError(t, err)

			rawIV, err := hex.DecodeString(iv)
			require.NoError(t, err)
			require.Len(t, rawIV, 12)

			plaintext, err := key.Decrypt(iv, ciphertext)
			require.NoError(t, err)
			require.Equal(t, tc.data, plaintext)
		})
	}
}

func TestEncryptFreshIVPerCall(t *testing.T) {
	key, err := ImportKey(testKey(t))
	require.NoError(t, err)

	iv1, ct1, err := key.Encrypt([]byte("same plaintext"))
	require.NoError(t, err)
	iv2, ct2, err := key.Encrypt([]byte("same plaintext"))
	require.NoError(t, err)

	require.NotEqual(t, iv1, iv2)
	require.NotEqual(t, ct1, ct2)
}

func TestDecryptTamperDetection(t *testing.T) {
	key, err := ImportKey(testKey(t))
	require.NoError(t, err)

	iv, ciphertext, err := key.Encrypt([]byte("sensitive material"))
	require.NoError(t, err)

	// Flip one bit of every byte position in turn; each must fail
	// authentication, never yield a different plaintext.
	rawCT, err := hex.DecodeString(ciphertext)
	require.NoError(t, err)
	for i := range rawCT {
		tampered := make([]byte, len(rawCT))
		copy(tampered, rawCT)
		tampered[i] ^= 0x01

		_, err := key.Decrypt(iv, hex.EncodeToString(tampered))
		require.ErrorIs(t, err, interfaces.ErrDecryptionFailed, "byte %d", i)
	}

	rawIV, err := hex.DecodeString(iv)
	require.NoError(t, err)
	for i := range rawIV {
		tampered := make([]byte, len(rawIV))
		copy(tampered, rawIV)
		tampered[i] ^= 0x01

		_, err := key.Decrypt(hex.EncodeToString(tampered), ciphertext)
		require.ErrorIs(t, err, interfaces.ErrDecryptionFailed, "iv byte %d", i)
	}
}

func TestDecryptWrongKey(t *testing.T) {
	key1, err := ImportKey(testKey(t))
	require.NoError(t, err)
	key2, err := ImportKey(testKey(t))
	require.NoError(t, err)

	iv, ciphertext, err := key1.Encrypt([]byte("secret"))
	require.NoError(t, err)

	_, err = key2.Decrypt(iv, ciphertext)
	require.ErrorIs(t, err, interfaces.ErrDecryptionFailed)
}

func TestDecryptMalformedInput(t *testing.T) {
	key, err := ImportKey(testKey(t))
	require.NoError(t, err)

	testCases := []struct {
		name       string
		iv         string
		ciphertext string
	}{
		{name: "Non-hex IV", iv: "zzzz", ciphertext: "00"},
		{name: "Short IV", iv: "0011", ciphertext: "00"},
		{name: "Non-hex ciphertext", iv: "000102030405060708090a0b", ciphertext: "not-hex"},
		{name: "Empty ciphertext", iv: "000102030405060708090a0b", ciphertext: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := key.Decrypt(tc.iv, tc.ciphertext)
			require.ErrorIs(t, err, interfaces.ErrDecryptionFailed)
		})
	}
}
