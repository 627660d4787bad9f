// Package main (cmd/vaultserver) implements the public-facing ephemeral EOA
// vault server.
//
// The server generates single-use Ethereum keypairs on demand, stores the
// private key AES-256-GCM encrypted under a salted hash of the public
// address, and serves it back for a bounded time window. Retrieval is
// priced: the payment gate forwards each fetch to the cooperating payment
// worker (cmd/paymentworker) and only admits the request after the worker
// reports a settled x402 payment.
//
// The default encryption key comes from either an explicit Base85 key or a
// passphrase stretched with Argon2id. Clients may override both the key and
// the addressing salt per request; the /ephemeral-secrets endpoint hands out
// fresh override material.
//
// Storage is pluggable through a URI flag: in-process memory, a local
// directory, HashiCorp Vault KV, or S3-compatible object storage.
//
// The server implements graceful shutdown on receiving termination signals
// (SIGINT/SIGTERM) and supports health checks, metrics collection, and
// optional profiling endpoints.
//
// Example usage:
//
//	vaultserver \
//	  --listen-addr=127.0.0.1:8080 \
//	  --store-uri=memory:// \
//	  --encryption-passphrase=swordfish \
//	  --payto-address=0xYourAddress \
//	  --payment-worker-url=http://127.0.0.1:8081
package main
