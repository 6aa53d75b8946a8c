package crypto

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"errors"
	"math/big"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

const p256CoordSize = 32

// P256FromPoint parses an uncompressed SEC 1 point (0x04 || X || Y).
func P256FromPoint(point []byte) (*ecdsa.PublicKey, error) {
	// ecdh rejects points that are not on the curve.
	if _, err := ecdh.P256().NewPublicKey(point); err != nil {
		return nil, err
	}
	if len(point) != 1+2*p256CoordSize {
		return nil, ErrNotP256
	}
	return &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(point[1 : 1+p256CoordSize]),
		Y:     new(big.Int).SetBytes(point[1+p256CoordSize:]),
	}, nil
}

// PointFromP256 returns the uncompressed SEC 1 encoding of pub.
func PointFromP256(pub *ecdsa.PublicKey) ([]byte, error) {
	if !IsP256(pub) {
		return nil, ErrNotP256
	}
	k, err := pub.ECDH()
	if err != nil {
		return nil, err
	}
	return k.Bytes(), nil
}

// RawToASN1 converts a fixed-size r || s signature, as produced by PKCS#11
// tokens, into the ASN.1 DER form ecdsa.VerifyASN1 expects.
func RawToASN1(raw []byte) ([]byte, error) {
	if len(raw) != 2*p256CoordSize {
		return nil, errors.New("raw P-256 signature must be 64 bytes")
	}
	r := new(big.Int).SetBytes(raw[:p256CoordSize])
	s := new(big.Int).SetBytes(raw[p256CoordSize:])

	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1BigInt(r)
		b.AddASN1BigInt(s)
	})
	return b.Bytes()
}
