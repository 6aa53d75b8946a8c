package crypto

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
)

// DeviceID returns base64(SHA-256(SPKI DER)) of pub. It depends only on the
// public key, so it is stable for as long as the key pair exists.
func DeviceID(pub *ecdsa.PublicKey) (string, error) {
	der, err := MarshalPublicKey(pub)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(der)
	return B64(sum[:]), nil
}

// Fingerprint returns a short hex fingerprint of a public key encoding.
//
// It hashes with SHA-256 and truncates to 10 bytes (20 hex chars).
func Fingerprint(pub []byte) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:10])
}
