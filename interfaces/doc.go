// Package interfaces defines the shared types, storage contract, and error
// taxonomy used across the vault service and the payment gate.
//
// The central design rule encoded here is salted-hash addressing: a public
// address is never persisted, in key or value. Storage keys are
// SHA-256(salt || address), so the address alone is not enough to locate a
// record, and a different salt honestly yields not-found.
package interfaces
