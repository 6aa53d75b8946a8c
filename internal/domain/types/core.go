package types

import (
	"errors"
	"fmt"
)

// Alias names a key entry inside a key store.
type Alias string

// String returns the string form of the alias.
func (a Alias) String() string { return string(a) }

// Validate accepts ASCII letters, digits, '-', '_' and '.' (not leading).
// Aliases become file names and primary keys, so nothing else is allowed.
func (a Alias) Validate() error {
	if a == "" {
		return errors.New("alias cannot be empty")
	}
	if a[0] == '.' {
		return fmt.Errorf("alias %q cannot start with '.'", string(a))
	}
	for _, char := range string(a) {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' || char == '.' {
			continue
		}
		return fmt.Errorf("invalid character %q in alias", char)
	}
	return nil
}

// DeviceID is the stable identifier derived from a device public key.
type DeviceID string

// String returns the string form of the device identifier.
func (id DeviceID) String() string { return string(id) }

const (
	// DefaultAlias is the key entry used when no alias is configured.
	DefaultAlias Alias = "device_identity_key"

	// CurveP256 is the only curve identity keys are generated on.
	CurveP256 = "secp256r1"

	// AlgorithmES256 names ECDSA over P-256 with SHA-256.
	AlgorithmES256 = "ES256"

	DigestSHA256 = "SHA-256"
	DigestSHA512 = "SHA-512"

	// NonceSize is the number of random bytes in a claim nonce.
	NonceSize = 16
)
