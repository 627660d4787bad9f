package cryptoutils

import (
	"golang.org/x/crypto/argon2"

	"github.com/artlu99/wallets-and-faucet/interfaces"
)

// DeriveKeyFromPassphrase stretches an operator passphrase into a 256-bit
// encryption key using Argon2id, so deployments can configure a passphrase
// instead of a raw base85 key.
//
// Parameters: time=1, memory=64*1024, threads=4, keyLen=32.
func DeriveKeyFromPassphrase(passphrase, salt string) interfaces.EncryptionKey {
	raw := argon2.IDKey([]byte(passphrase), []byte("wallet-vault-key-"+salt), 1, 64*1024, 4, interfaces.EncryptionKeySize)

	key, _ := interfaces.NewEncryptionKeyFromBytes(raw)
	return key
}
