package crypto

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
)

const pemPublicKey = "PUBLIC KEY"

// B64 returns standard base64 encoding without newlines.
func B64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

// MarshalPublicKey returns the SubjectPublicKeyInfo DER form of pub.
func MarshalPublicKey(pub *ecdsa.PublicKey) ([]byte, error) {
	if !IsP256(pub) {
		return nil, ErrNotP256
	}
	return x509.MarshalPKIXPublicKey(pub)
}

// ParsePublicKey parses SubjectPublicKeyInfo DER and requires P-256.
func ParsePublicKey(der []byte) (*ecdsa.PublicKey, error) {
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, err
	}
	pub, ok := parsed.(*ecdsa.PublicKey)
	if !ok || !IsP256(pub) {
		return nil, ErrNotP256
	}
	return pub, nil
}

// PublicKeyPEM encodes pub as a "PUBLIC KEY" PEM block.
func PublicKeyPEM(pub *ecdsa.PublicKey) (string, error) {
	der, err := MarshalPublicKey(pub)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: pemPublicKey, Bytes: der})), nil
}

// ParsePublicKeyPEM decodes the first PEM block in s as a P-256 public key.
func ParsePublicKeyPEM(s string) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(s))
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if block.Type != pemPublicKey {
		return nil, fmt.Errorf("unexpected PEM type %q", block.Type)
	}
	return ParsePublicKey(block.Bytes)
}
