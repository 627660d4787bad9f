// Package vaultservice implements the ephemeral EOA vault request handlers.
//
// The vault generates single-use Ethereum keypairs, encrypts the private key
// with AES-256-GCM, and stores the envelope under a salted hash of the
// public address. Records expire after a configured TTL and the plaintext
// address is never persisted: without the salt and the address, stored
// entries cannot be correlated with an account.
//
// All decryption-class failures (bad key, tampered ciphertext, address
// mismatch) collapse into one generic error so responses cannot be used as
// a decryption oracle.
package vaultservice
