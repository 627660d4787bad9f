package cryptoutils

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/artlu99/wallets-and-faucet/interfaces"
)

// AddressKey derives the storage lookup key for a public address:
// hex(SHA-256(salt || address)). It is deterministic so a fetch with the
// same salt recovers what create stored, and non-reversible so the store
// never learns the address. A caller-supplied salt different from the one
// used at creation yields a different key and an honest not-found.
func AddressKey(salt interfaces.Salt, publicAddress string) string {
	sum := sha256.Sum256([]byte(string(salt) + publicAddress))
	return hex.EncodeToString(sum[:])
}
