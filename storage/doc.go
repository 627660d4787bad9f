// Package storage provides TTL-bounded secret store backends behind a
// common interface, selected by URI scheme:
//
//   - memory://                          in-process store with atomic counters
//   - file:///var/lib/vault/secrets/     local filesystem store
//   - vault://vault.example.com:8200/secret?token=...  HashiCorp Vault KV v2
//   - s3://bucket-name/prefix/?region=us-west-2        S3-compatible storage
//
// Every backend enforces the TTL floor on writes and expires records lazily
// on reads. Records are stored under salted-hash keys; the public address
// they belong to never reaches the backend.
//
// Counter semantics differ by backend: memory and file serialize increments
// in-process and count exactly; vault and s3 fall back to read-modify-write,
// so concurrent increments can lose updates. Callers that need exact counts
// must use a serializing backend.
package storage
