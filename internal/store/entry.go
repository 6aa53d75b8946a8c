package store

import (
	"crypto/ecdsa"
	"crypto/x509"
	"fmt"
	"sync"
	"time"

	"devid/internal/crypto"
	"devid/internal/domain"
	"devid/internal/util/memzero"
)

const entryFormatVersion = 1

// keyEntry is what a persistent store keeps for one alias. Public parts are
// in the clear; the private key is a sealed PKCS#8 envelope.
type keyEntry struct {
	V           int          `json:"v"`
	Alias       domain.Alias `json:"alias"`
	Curve       string       `json:"curve"`
	PublicKey   []byte       `json:"public_key"`
	Certificate []byte       `json:"certificate"`
	CreatedAt   time.Time    `json:"created_at"`
	Private     []byte       `json:"private"`
}

// checkSpec rejects key specs no store here can honour.
func checkSpec(spec domain.KeySpec) error {
	if spec.Curve != domain.CurveP256 {
		return fmt.Errorf("%w: curve %q", domain.ErrUnsupportedKeySpec, spec.Curve)
	}
	if !spec.Purposes.Has(domain.PurposeSign) {
		return fmt.Errorf("%w: key must allow signing", domain.ErrUnsupportedKeySpec)
	}
	if spec.UserAuthenticationRequired {
		return fmt.Errorf("%w: user authentication is not available", domain.ErrUnsupportedKeySpec)
	}
	return nil
}

// generateKey creates the key pair and certificate for a new alias.
func generateKey(alias domain.Alias, now time.Time) (*ecdsa.PrivateKey, []byte, error) {
	priv, err := crypto.GenerateP256()
	if err != nil {
		return nil, nil, err
	}
	cert, err := crypto.SelfSignedCertificate(priv, alias.String(), now)
	if err != nil {
		return nil, nil, err
	}
	return priv, cert, nil
}

// newEntry generates a key pair and seals it under passphrase.
func newEntry(alias domain.Alias, passphrase string, o options) (keyEntry, *ecdsa.PrivateKey, error) {
	now := o.now().UTC()
	priv, cert, err := generateKey(alias, now)
	if err != nil {
		return keyEntry{}, nil, err
	}
	pub, err := crypto.MarshalPublicKey(&priv.PublicKey)
	if err != nil {
		return keyEntry{}, nil, err
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return keyEntry{}, nil, err
	}
	defer memzero.Zero(der)

	sealed, err := seal(passphrase, alias, der, o.kdf)
	if err != nil {
		return keyEntry{}, nil, err
	}
	return keyEntry{
		V:           entryFormatVersion,
		Alias:       alias,
		Curve:       domain.CurveP256,
		PublicKey:   pub,
		Certificate: cert,
		CreatedAt:   now,
		Private:     sealed,
	}, priv, nil
}

// handle returns the public view of e.
func (e keyEntry) handle() (domain.KeyHandle, error) {
	pub, err := crypto.ParsePublicKey(e.PublicKey)
	if err != nil {
		return domain.KeyHandle{}, fmt.Errorf("key entry %s: %w", e.Alias, err)
	}
	return domain.KeyHandle{
		Alias:       e.Alias,
		PublicKey:   pub,
		Certificate: e.Certificate,
		CreatedAt:   e.CreatedAt,
	}, nil
}

// privateKey opens the sealed key and checks it matches the public half.
func (e keyEntry) privateKey(passphrase string) (*ecdsa.PrivateKey, error) {
	der, err := open(passphrase, e.Alias, e.Private)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(der)

	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrWrongPassphrase, err)
	}
	priv, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key entry %s: %w", e.Alias, crypto.ErrNotP256)
	}
	pub, err := crypto.ParsePublicKey(e.PublicKey)
	if err != nil {
		return nil, err
	}
	if !priv.PublicKey.Equal(pub) {
		return nil, fmt.Errorf("key entry %s: private key does not match public key", e.Alias)
	}
	return priv, nil
}

// signerCache keeps opened private keys so signing does not rerun the KDF.
type signerCache struct {
	mu   sync.Mutex
	keys map[domain.Alias]*ecdsa.PrivateKey
}

func (c *signerCache) get(alias domain.Alias, pub *ecdsa.PublicKey) (*ecdsa.PrivateKey, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	priv, ok := c.keys[alias]
	if !ok || !priv.PublicKey.Equal(pub) {
		return nil, false
	}
	return priv, true
}

func (c *signerCache) put(alias domain.Alias, priv *ecdsa.PrivateKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keys == nil {
		c.keys = make(map[domain.Alias]*ecdsa.PrivateKey)
	}
	c.keys[alias] = priv
}

func (c *signerCache) drop(alias domain.Alias) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.keys, alias)
}

// signer returns the opened private key for e, from the cache when possible.
func (c *signerCache) signer(e keyEntry, passphrase string) (*ecdsa.PrivateKey, error) {
	pub, err := crypto.ParsePublicKey(e.PublicKey)
	if err != nil {
		return nil, err
	}
	if priv, ok := c.get(e.Alias, pub); ok {
		return priv, nil
	}
	priv, err := e.privateKey(passphrase)
	if err != nil {
		return nil, err
	}
	c.put(e.Alias, priv)
	return priv, nil
}

// signWith signs message after checking handle still refers to priv.
func signWith(priv *ecdsa.PrivateKey, handle domain.KeyHandle, message []byte) ([]byte, error) {
	if handle.PublicKey == nil || !priv.PublicKey.Equal(handle.PublicKey) {
		return nil, fmt.Errorf("%w: alias %s", domain.ErrStaleHandle, handle.Alias)
	}
	return crypto.SignP256(priv, message)
}
