package identity

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"devid/internal/crypto"
	"devid/internal/domain"
	"devid/internal/logging"
)

// Service issues claims for the key stored under a single alias.
type Service struct {
	store domain.KeyStore
	alias domain.Alias
	spec  domain.KeySpec

	now    func() time.Time
	random io.Reader

	// mu serialises provisioning and reset so racing first callers agree on one key.
	mu sync.Mutex
}

// Option customises a Service.
type Option func(*Service)

// WithAlias selects the key entry the service manages.
func WithAlias(alias domain.Alias) Option {
	return func(s *Service) { s.alias = alias }
}

// WithClock overrides the time source for claim timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRandom overrides the entropy source for claim nonces.
func WithRandom(r io.Reader) Option {
	return func(s *Service) { s.random = r }
}

// New returns an identity service backed by the given key store.
func New(ks domain.KeyStore, opts ...Option) *Service {
	s := &Service{
		store:  ks,
		alias:  domain.DefaultAlias,
		spec:   domain.DefaultKeySpec(),
		now:    time.Now,
		random: rand.Reader,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Alias returns the key entry this service manages.
func (s *Service) Alias() domain.Alias { return s.alias }

// GetOrCreateKeyPair returns the handle for the identity key, provisioning it
// on first use. Later calls return the same key until a reset.
func (s *Service) GetOrCreateKeyPair() (domain.KeyHandle, error) {
	if h, ok, err := s.store.GetKey(s.alias); err != nil {
		return domain.KeyHandle{}, fmt.Errorf("%w: %w", domain.ErrKeyProvisioning, err)
	} else if ok {
		return h, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h, err := s.store.CreateKeyIfAbsent(s.alias, s.spec)
	if err != nil {
		return domain.KeyHandle{}, fmt.Errorf("%w: %w", domain.ErrKeyProvisioning, err)
	}
	if der, err := crypto.MarshalPublicKey(h.PublicKey); err == nil {
		logging.Debugf("identity key %s ready (fingerprint %s)", s.alias, crypto.Fingerprint(der))
	}
	return h, nil
}

// DeriveDeviceID returns base64(SHA-256(SPKI DER)) of pub.
func DeriveDeviceID(pub *ecdsa.PublicKey) (string, error) {
	return crypto.DeviceID(pub)
}

// BuildCanonicalMessage returns "deviceId=<id>&timestamp=<ms>&nonce=<nonce>".
func BuildCanonicalMessage(deviceID string, timestamp int64, nonce string) string {
	return domain.CanonicalMessage(deviceID, timestamp, nonce)
}

// Sign asks the store to sign message with the key behind handle.
func (s *Service) Sign(handle domain.KeyHandle, message []byte) ([]byte, error) {
	sig, err := s.store.Sign(handle, message)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSigning, err)
	}
	return sig, nil
}

// MakeClaimPayload builds and signs a fresh claim. Any failure is returned as
// a *domain.ClaimError; no partial claim is ever returned.
func (s *Service) MakeClaimPayload() (domain.DeviceClaim, error) {
	claim, err := s.makeClaim()
	if err != nil {
		return domain.DeviceClaim{}, &domain.ClaimError{Err: err}
	}
	return claim, nil
}

func (s *Service) makeClaim() (domain.DeviceClaim, error) {
	h, err := s.GetOrCreateKeyPair()
	if err != nil {
		return domain.DeviceClaim{}, err
	}
	deviceID, err := DeriveDeviceID(h.PublicKey)
	if err != nil {
		return domain.DeviceClaim{}, fmt.Errorf("%w: device id: %w", domain.ErrClaimAssembly, err)
	}
	publicKeyPEM, err := crypto.PublicKeyPEM(h.PublicKey)
	if err != nil {
		return domain.DeviceClaim{}, fmt.Errorf("%w: public key: %w", domain.ErrClaimAssembly, err)
	}
	nonce, err := crypto.Nonce(s.random, domain.NonceSize)
	if err != nil {
		return domain.DeviceClaim{}, fmt.Errorf("%w: %w", domain.ErrClaimAssembly, err)
	}
	ts := s.now().UnixMilli()
	if ts <= 0 {
		return domain.DeviceClaim{}, fmt.Errorf("%w: clock unavailable", domain.ErrClaimAssembly)
	}

	sig, err := s.Sign(h, []byte(BuildCanonicalMessage(deviceID, ts, nonce)))
	if err != nil {
		return domain.DeviceClaim{}, err
	}

	return domain.DeviceClaim{
		DeviceID:     deviceID,
		PublicKeyPEM: publicKeyPEM,
		Timestamp:    ts,
		Nonce:        nonce,
		Signature:    crypto.B64(sig),
		Algorithm:    domain.AlgorithmES256,
		Curve:        domain.CurveP256,
	}, nil
}

// Reset deletes the identity key. A missing key is not an error. The next
// claim provisions a new key and therefore a new device id.
func (s *Service) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.store.DeleteKey(s.alias)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrReset, err)
	}
	if removed {
		logging.Infof("identity key %s deleted", s.alias)
	} else {
		logging.Debugf("identity key %s already absent", s.alias)
	}
	return nil
}

// ResetIdentity is the best-effort form of Reset: failures are logged and
// reported as false.
func (s *Service) ResetIdentity() bool {
	if err := s.Reset(); err != nil {
		logging.Errorf("reset identity %s: %v", s.alias, err)
		return false
	}
	return true
}

// PublicCertificate returns the certificate attached to the identity key, or
// false when no key is provisioned. It never creates a key.
func (s *Service) PublicCertificate() (*x509.Certificate, bool, error) {
	h, ok, err := s.store.GetKey(s.alias)
	if err != nil || !ok {
		return nil, false, err
	}
	if len(h.Certificate) == 0 {
		return nil, false, errors.New("key entry has no certificate")
	}
	cert, err := x509.ParseCertificate(h.Certificate)
	if err != nil {
		return nil, false, fmt.Errorf("parsing certificate for %s: %w", s.alias, err)
	}
	return cert, true, nil
}

// Compile-time assertion that Service implements domain.IdentityService.
var _ domain.IdentityService = (*Service)(nil)
