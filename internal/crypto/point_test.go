package crypto_test

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"testing"

	"devid/internal/crypto"
)

func TestP256Point_RoundTrip(t *testing.T) {
	priv, err := crypto.GenerateP256()
	if err != nil {
		t.Fatalf("GenerateP256: %v", err)
	}
	point, err := crypto.PointFromP256(&priv.PublicKey)
	if err != nil {
		t.Fatalf("PointFromP256: %v", err)
	}
	if len(point) != 65 || point[0] != 0x04 {
		t.Fatalf("unexpected point encoding: % x", point[:1])
	}
	pub, err := crypto.P256FromPoint(point)
	if err != nil {
		t.Fatalf("P256FromPoint: %v", err)
	}
	if !pub.Equal(&priv.PublicKey) {
		t.Fatal("public key changed across point round trip")
	}

	point[10] ^= 0xff
	if _, err := crypto.P256FromPoint(point); err == nil {
		t.Fatal("accepted a point off the curve")
	}
}

func TestRawToASN1_Verifies(t *testing.T) {
	priv, err := crypto.GenerateP256()
	if err != nil {
		t.Fatalf("GenerateP256: %v", err)
	}
	msg := []byte("deviceId=x&timestamp=1&nonce=y")
	digest := sha256.Sum256(msg)
	r, s, err := ecdsa.Sign(rand.Reader, priv, digest[:])
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	raw := make([]byte, 64)
	r.FillBytes(raw[:32])
	s.FillBytes(raw[32:])

	der, err := crypto.RawToASN1(raw)
	if err != nil {
		t.Fatalf("RawToASN1: %v", err)
	}
	if !crypto.VerifyP256(&priv.PublicKey, msg, der) {
		t.Fatal("converted signature does not verify")
	}
	if _, err := crypto.RawToASN1(raw[:63]); err == nil {
		t.Fatal("accepted a short raw signature")
	}
}
