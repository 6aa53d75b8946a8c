// Package store provides the key store backends devid signs with.
//
// Every backend implements domain.KeyStore: private keys are generated inside
// the store, never returned to callers, and used only through Sign. All
// methods are concurrency-safe and CreateKeyIfAbsent is atomic, so two
// racing provisioners end up with the same key.
//
// The package includes:
//   - FileKeyStore: one JSON entry per alias under <home>/keys, created with
//     a link-into-place so an existing entry is never overwritten
//   - SQLiteKeyStore: a key_entries table accessed through Bun
//   - MemoryKeyStore: process-local keys for tests and throwaway identities
//   - PKCS11KeyStore: non-extractable keys on a PKCS#11 token (cgo builds)
//
// The file and SQLite stores seal the PKCS#8 private key with
// ChaCha20-Poly1305 under a scrypt-derived key. The alias is bound as
// additional data, and opened keys are cached in memory so signing does not
// repeat the KDF.
package store
