package identity_test

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"devid/internal/crypto"
	"devid/internal/domain"
	"devid/internal/services/identity"
	"devid/internal/store"
)

// verifyClaim checks the claim signature the way a server would.
func verifyClaim(t *testing.T, c domain.DeviceClaim) {
	t.Helper()
	pub, err := crypto.ParsePublicKeyPEM(c.PublicKeyPEM)
	if err != nil {
		t.Fatalf("ParsePublicKeyPEM: %v", err)
	}
	sig, err := base64.StdEncoding.DecodeString(c.Signature)
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	msg := "deviceId=" + c.DeviceID + "&timestamp=" + strconv.FormatInt(c.Timestamp, 10) + "&nonce=" + c.Nonce
	if !crypto.VerifyP256(pub, []byte(msg), sig) {
		t.Fatalf("signature does not verify over %q", msg)
	}
}

func TestMakeClaimPayload_FirstAndSecondCall(t *testing.T) {
	svc := identity.New(store.NewMemoryKeyStore())

	first, err := svc.MakeClaimPayload()
	if err != nil {
		t.Fatalf("MakeClaimPayload: %v", err)
	}
	if !strings.HasPrefix(first.PublicKeyPEM, "-----BEGIN PUBLIC KEY-----") {
		t.Fatalf("public key is not PEM: %q", first.PublicKeyPEM)
	}
	if len(first.Nonce) < 22 || len(first.Nonce) > 24 {
		t.Fatalf("nonce length %d out of range: %q", len(first.Nonce), first.Nonce)
	}
	if raw, err := base64.StdEncoding.DecodeString(first.Nonce); err != nil || len(raw) != 16 {
		t.Fatalf("nonce is not base64 of 16 bytes: %q (%v)", first.Nonce, err)
	}
	if first.Algorithm != "ES256" || first.Curve != "secp256r1" {
		t.Fatalf("unexpected scheme %q/%q", first.Algorithm, first.Curve)
	}
	verifyClaim(t, first)

	second, err := svc.MakeClaimPayload()
	if err != nil {
		t.Fatalf("MakeClaimPayload (second): %v", err)
	}
	verifyClaim(t, second)
	if second.DeviceID != first.DeviceID {
		t.Fatalf("device id changed: %q -> %q", first.DeviceID, second.DeviceID)
	}
	if second.PublicKeyPEM != first.PublicKeyPEM {
		t.Fatal("public key changed between calls")
	}
	if second.Nonce == first.Nonce {
		t.Fatal("nonce repeated")
	}
	if second.Signature == first.Signature {
		t.Fatal("signature repeated")
	}
}

func TestMakeClaimPayload_DeviceIDStableAndDerived(t *testing.T) {
	svc := identity.New(store.NewMemoryKeyStore())
	h, err := svc.GetOrCreateKeyPair()
	if err != nil {
		t.Fatalf("GetOrCreateKeyPair: %v", err)
	}
	want, err := identity.DeriveDeviceID(h.PublicKey)
	if err != nil {
		t.Fatalf("DeriveDeviceID: %v", err)
	}

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		c, err := svc.MakeClaimPayload()
		if err != nil {
			t.Fatalf("MakeClaimPayload %d: %v", i, err)
		}
		if c.DeviceID != want {
			t.Fatalf("claim %d device id %q, want %q", i, c.DeviceID, want)
		}
		if seen[c.Nonce] {
			t.Fatalf("claim %d reused nonce %q", i, c.Nonce)
		}
		seen[c.Nonce] = true
	}
}

func TestMakeClaimPayload_UsesClock(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	svc := identity.New(store.NewMemoryKeyStore(), identity.WithClock(func() time.Time { return at }))
	c, err := svc.MakeClaimPayload()
	if err != nil {
		t.Fatalf("MakeClaimPayload: %v", err)
	}
	if c.Timestamp != 1700000000123 {
		t.Fatalf("want timestamp 1700000000123, got %d", c.Timestamp)
	}
	verifyClaim(t, c)
}

func TestMakeClaimPayload_StableAcrossRestart(t *testing.T) {
	home := t.TempDir()
	kdf := store.WithKDFParams(store.KDFParams{N: 1 << 10, R: 8, P: 1})

	before, err := identity.New(store.NewFileKeyStore(home, "pass", kdf)).MakeClaimPayload()
	if err != nil {
		t.Fatalf("MakeClaimPayload: %v", err)
	}
	after, err := identity.New(store.NewFileKeyStore(home, "pass", kdf)).MakeClaimPayload()
	if err != nil {
		t.Fatalf("MakeClaimPayload after restart: %v", err)
	}
	if before.DeviceID != after.DeviceID {
		t.Fatalf("device id changed across restart: %q -> %q", before.DeviceID, after.DeviceID)
	}
	verifyClaim(t, after)
}

func TestBuildCanonicalMessage(t *testing.T) {
	got := identity.BuildCanonicalMessage("abc+/=", 1712345678901, "n0nce==")
	want := "deviceId=abc+/=&timestamp=1712345678901&nonce=n0nce=="
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestResetIdentity_NewDeviceID(t *testing.T) {
	svc := identity.New(store.NewMemoryKeyStore())
	before, err := svc.MakeClaimPayload()
	if err != nil {
		t.Fatalf("MakeClaimPayload: %v", err)
	}
	if !svc.ResetIdentity() {
		t.Fatal("ResetIdentity reported failure")
	}
	after, err := svc.MakeClaimPayload()
	if err != nil {
		t.Fatalf("MakeClaimPayload after reset: %v", err)
	}
	if before.DeviceID == after.DeviceID {
		t.Fatal("device id survived reset")
	}
	verifyClaim(t, after)
}

func TestResetIdentity_NoKeySucceeds(t *testing.T) {
	svc := identity.New(store.NewMemoryKeyStore())
	if !svc.ResetIdentity() {
		t.Fatal("reset without a key should succeed")
	}
	if !svc.ResetIdentity() {
		t.Fatal("repeated reset should succeed")
	}
}

func TestResetIdentity_StoreFailure(t *testing.T) {
	ks := &stubStore{KeyStore: store.NewMemoryKeyStore(), deleteErr: errors.New("keystore locked")}
	svc := identity.New(ks)

	if svc.ResetIdentity() {
		t.Fatal("ResetIdentity should report failure")
	}
	if err := svc.Reset(); !errors.Is(err, domain.ErrReset) {
		t.Fatalf("want ErrReset, got %v", err)
	}
}

func TestGetOrCreateKeyPair_ConcurrentFirstUse(t *testing.T) {
	ks := store.NewMemoryKeyStore()
	svc := identity.New(ks)

	const n = 16
	claims := make([]domain.DeviceClaim, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			claims[i], errs[i] = svc.MakeClaimPayload()
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("claim %d: %v", i, errs[i])
		}
		if claims[i].DeviceID != claims[0].DeviceID {
			t.Fatalf("claim %d has divergent device id", i)
		}
		verifyClaim(t, claims[i])
	}
	h, ok, err := ks.GetKey(domain.DefaultAlias)
	if err != nil || !ok {
		t.Fatalf("GetKey: ok=%v err=%v", ok, err)
	}
	id, _ := identity.DeriveDeviceID(h.PublicKey)
	if id != claims[0].DeviceID {
		t.Fatal("stored key differs from the one claims were signed with")
	}
}

func TestMakeClaimPayload_ErrorKinds(t *testing.T) {
	cases := []struct {
		name string
		svc  *identity.Service
		kind error
	}{
		{
			name: "provisioning",
			svc:  identity.New(&stubStore{KeyStore: store.NewMemoryKeyStore(), createErr: domain.ErrStoreUnavailable}),
			kind: domain.ErrKeyProvisioning,
		},
		{
			name: "vault passphrase missing",
			svc:  identity.New(store.NewFileKeyStore(t.TempDir(), "")),
			kind: domain.ErrKeyProvisioning,
		},
		{
			name: "signing",
			svc:  identity.New(&stubStore{KeyStore: store.NewMemoryKeyStore(), signErr: errors.New("key revoked")}),
			kind: domain.ErrSigning,
		},
		{
			name: "nonce",
			svc:  identity.New(store.NewMemoryKeyStore(), identity.WithRandom(failingReader{})),
			kind: domain.ErrClaimAssembly,
		},
		{
			name: "clock",
			svc:  identity.New(store.NewMemoryKeyStore(), identity.WithClock(func() time.Time { return time.Time{} })),
			kind: domain.ErrClaimAssembly,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := tc.svc.MakeClaimPayload()
			if err == nil {
				t.Fatal("expected error")
			}
			if c != (domain.DeviceClaim{}) {
				t.Fatalf("partial claim returned: %+v", c)
			}
			var ce *domain.ClaimError
			if !errors.As(err, &ce) {
				t.Fatalf("want *domain.ClaimError, got %T", err)
			}
			if ce.Code() != "CLAIM_ERROR" {
				t.Fatalf("unexpected code %q", ce.Code())
			}
			if !errors.Is(err, tc.kind) {
				t.Fatalf("want %v in chain, got %v", tc.kind, err)
			}
		})
	}
}

func TestPublicCertificate_AbsentThenPresent(t *testing.T) {
	svc := identity.New(store.NewMemoryKeyStore(), identity.WithAlias("vpn_key"))

	cert, ok, err := svc.PublicCertificate()
	if err != nil || ok || cert != nil {
		t.Fatalf("want no certificate before provisioning: cert=%v ok=%v err=%v", cert, ok, err)
	}

	h, err := svc.GetOrCreateKeyPair()
	if err != nil {
		t.Fatalf("GetOrCreateKeyPair: %v", err)
	}
	cert, ok, err = svc.PublicCertificate()
	if err != nil || !ok {
		t.Fatalf("PublicCertificate: ok=%v err=%v", ok, err)
	}
	if cert.Subject.CommonName != "vpn_key" {
		t.Fatalf("unexpected subject %q", cert.Subject.CommonName)
	}
	if !h.PublicKey.Equal(cert.PublicKey) {
		t.Fatal("certificate public key differs from handle")
	}

	if !svc.ResetIdentity() {
		t.Fatal("ResetIdentity failed")
	}
	if _, ok, _ := svc.PublicCertificate(); ok {
		t.Fatal("certificate still reported after reset")
	}
}

type stubStore struct {
	domain.KeyStore
	createErr error
	signErr   error
	deleteErr error
}

func (s *stubStore) CreateKeyIfAbsent(alias domain.Alias, spec domain.KeySpec) (domain.KeyHandle, error) {
	if s.createErr != nil {
		return domain.KeyHandle{}, s.createErr
	}
	return s.KeyStore.CreateKeyIfAbsent(alias, spec)
}

func (s *stubStore) Sign(h domain.KeyHandle, msg []byte) ([]byte, error) {
	if s.signErr != nil {
		return nil, s.signErr
	}
	return s.KeyStore.Sign(h, msg)
}

func (s *stubStore) DeleteKey(alias domain.Alias) (bool, error) {
	if s.deleteErr != nil {
		return false, s.deleteErr
	}
	return s.KeyStore.DeleteKey(alias)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }
