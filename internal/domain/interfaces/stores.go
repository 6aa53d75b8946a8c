package interfaces

import domaintypes "devid/internal/domain/types"

// KeyStore is the secure key store capability. Private keys never leave it;
// callers hold handles and ask the store to sign.
type KeyStore interface {
	// CreateKeyIfAbsent provisions a key under alias unless one exists, in
	// which case the existing handle is returned. It must be atomic.
	CreateKeyIfAbsent(alias domaintypes.Alias, spec domaintypes.KeySpec) (domaintypes.KeyHandle, error)
	GetKey(alias domaintypes.Alias) (domaintypes.KeyHandle, bool, error)
	// Sign hashes message with SHA-256 and returns an ASN.1 DER ECDSA signature.
	Sign(handle domaintypes.KeyHandle, message []byte) ([]byte, error)
	// DeleteKey removes alias and reports whether an entry existed.
	DeleteKey(alias domaintypes.Alias) (bool, error)
}
