// Package securestore provides the durable backends behind cpa.TokenStore.
//
// Three backends implement cpa.SecureStore:
//
//   - MemoryStore keeps payloads in process memory, for tests and one-shot runs
//   - FileStore writes one file per key under a private directory and can
//     watch it for changes made by other processes
//   - SQLiteStore keeps payloads in a single SQLite table
//
// FileStore and SQLiteStore accept a Sealer that encrypts payloads at rest
// with XChaCha20-Poly1305. The key is read from, or generated into, a key
// file readable only by its owner.
//
// SECURITY: payloads contain client secrets and access tokens. Backends
// never log payloads; audit log lines carry the key only.
package securestore
