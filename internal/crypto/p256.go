package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"errors"
)

// ErrNotP256 is returned for keys on any curve other than P-256.
var ErrNotP256 = errors.New("key is not ECDSA P-256")

// GenerateP256 returns a new ECDSA key pair on secp256r1.
func GenerateP256() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
}

// SignP256 hashes msg with SHA-256 and signs the digest.
func SignP256(priv *ecdsa.PrivateKey, msg []byte) ([]byte, error) {
	if priv == nil || priv.Curve != elliptic.P256() {
		return nil, ErrNotP256
	}
	digest := sha256.Sum256(msg)
	return ecdsa.SignASN1(rand.Reader, priv, digest[:])
}

// VerifyP256 verifies an ASN.1 signature over the SHA-256 digest of msg.
func VerifyP256(pub *ecdsa.PublicKey, msg, sig []byte) bool {
	if !IsP256(pub) {
		return false
	}
	digest := sha256.Sum256(msg)
	return ecdsa.VerifyASN1(pub, digest[:], sig)
}

// IsP256 reports whether pub is a usable P-256 public key.
func IsP256(pub *ecdsa.PublicKey) bool {
	return pub != nil && pub.Curve == elliptic.P256()
}
