// Package cryptoutils implements the envelope cipher, the salted-hash
// addressing scheme, and passphrase key derivation.
//
// Records are sealed with AES-256-GCM using a 128-bit authentication tag and
// a fresh random 12-byte IV per encryption. Storage keys are salted SHA-256
// digests of public addresses, keeping the address out of the store entirely.
package cryptoutils
