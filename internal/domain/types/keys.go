package types

import (
	"crypto/ecdsa"
	"time"
)

// Purpose is a bit set of operations a key may be used for.
type Purpose uint8

const (
	PurposeSign Purpose = 1 << iota
	PurposeVerify
)

// Has reports whether p includes every bit in q.
func (p Purpose) Has(q Purpose) bool { return p&q == q }

// KeySpec describes the key a store must provision for an alias.
type KeySpec struct {
	Curve    string
	Purposes Purpose
	Digests  []string

	// UserAuthenticationRequired gates every use of the key behind a user
	// presence check. No store in this module supports it.
	UserAuthenticationRequired bool
}

// DefaultKeySpec returns the signing key spec used for device identities.
func DefaultKeySpec() KeySpec {
	return KeySpec{
		Curve:    CurveP256,
		Purposes: PurposeSign | PurposeVerify,
		Digests:  []string{DigestSHA256, DigestSHA512},
	}
}

// KeyHandle references a key pair held by a store. It never carries private
// key material; signing goes back through the store that issued it.
type KeyHandle struct {
	Alias     Alias
	PublicKey *ecdsa.PublicKey

	// Certificate is the DER self-signed certificate attached at provisioning.
	Certificate []byte
	CreatedAt   time.Time
}
