//go:build !cgo

package store

import (
	"fmt"

	"devid/internal/domain"
)

// PKCS11KeyStore is unavailable without cgo.
type PKCS11KeyStore struct{ domain.KeyStore }

// OpenPKCS11KeyStore always fails in builds without cgo.
func OpenPKCS11KeyStore(cfg PKCS11Config, opts ...Option) (*PKCS11KeyStore, error) {
	return nil, fmt.Errorf("%w: pkcs11 support requires a cgo build", domain.ErrStoreUnavailable)
}

// Close is a no-op.
func (s *PKCS11KeyStore) Close() error { return nil }
