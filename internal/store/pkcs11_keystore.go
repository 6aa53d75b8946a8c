//go:build cgo

package store

import (
	gocrypto "crypto"
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/miekg/pkcs11"

	"devid/internal/crypto"
	"devid/internal/domain"
	"devid/internal/logging"
)

// DER of the secp256r1 OID, the CKA_EC_PARAMS value for P-256 keys.
var p256Params = []byte{0x06, 0x08, 0x2a, 0x86, 0x48, 0xce, 0x3d, 0x03, 0x01, 0x07}

// PKCS11KeyStore keeps identity keys on a PKCS#11 token. Private keys are
// created sensitive and non-extractable; signing happens on the token.
// Each alias owns a private key, a public key and an X.509 certificate
// object, all labelled with the alias.
type PKCS11KeyStore struct {
	ctx     *pkcs11.Ctx
	session pkcs11.SessionHandle
	opts    options

	// A PKCS#11 session runs one operation at a time.
	mu sync.Mutex
}

// OpenPKCS11KeyStore loads the module, opens a read-write session on the
// configured slot and logs in as the user.
func OpenPKCS11KeyStore(cfg PKCS11Config, opts ...Option) (*PKCS11KeyStore, error) {
	if cfg.Module == "" {
		return nil, fmt.Errorf("%w: pkcs11 module not configured", domain.ErrStoreUnavailable)
	}
	ctx := pkcs11.New(cfg.Module)
	if ctx == nil {
		return nil, fmt.Errorf("%w: cannot load pkcs11 module %s", domain.ErrStoreUnavailable, cfg.Module)
	}
	if err := ctx.Initialize(); err != nil && !isCKR(err, pkcs11.CKR_CRYPTOKI_ALREADY_INITIALIZED) {
		ctx.Destroy()
		return nil, fmt.Errorf("%w: initialize: %v", domain.ErrStoreUnavailable, err)
	}

	slots, err := ctx.GetSlotList(true)
	if err != nil {
		ctx.Destroy()
		return nil, fmt.Errorf("%w: list slots: %v", domain.ErrStoreUnavailable, err)
	}
	found := false
	for _, s := range slots {
		if s == cfg.Slot {
			found = true
			break
		}
	}
	if !found {
		ctx.Destroy()
		return nil, fmt.Errorf("%w: slot %d not found", domain.ErrStoreUnavailable, cfg.Slot)
	}

	session, err := ctx.OpenSession(cfg.Slot, pkcs11.CKF_SERIAL_SESSION|pkcs11.CKF_RW_SESSION)
	if err != nil {
		ctx.Destroy()
		return nil, fmt.Errorf("%w: open session: %v", domain.ErrStoreUnavailable, err)
	}
	if err := ctx.Login(session, pkcs11.CKU_USER, cfg.PIN); err != nil && !isCKR(err, pkcs11.CKR_USER_ALREADY_LOGGED_IN) {
		_ = ctx.CloseSession(session)
		ctx.Destroy()
		return nil, fmt.Errorf("%w: login: %v", domain.ErrStoreUnavailable, err)
	}

	return &PKCS11KeyStore{ctx: ctx, session: session, opts: newOptions(opts)}, nil
}

// Close logs out and releases the module.
func (s *PKCS11KeyStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.ctx.Logout(s.session)
	err := s.ctx.CloseSession(s.session)
	_ = s.ctx.Finalize()
	s.ctx.Destroy()
	return err
}

// CreateKeyIfAbsent returns the key for alias, generating it on the token first if needed.
func (s *PKCS11KeyStore) CreateKeyIfAbsent(alias domain.Alias, spec domain.KeySpec) (domain.KeyHandle, error) {
	if err := alias.Validate(); err != nil {
		return domain.KeyHandle{}, err
	}
	if err := checkSpec(spec); err != nil {
		return domain.KeyHandle{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok, err := s.load(alias); err != nil {
		return domain.KeyHandle{}, err
	} else if ok {
		return h, nil
	}

	id := []byte(alias)
	pubTemplate := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PUBLIC_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_EC),
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, true),
		pkcs11.NewAttribute(pkcs11.CKA_VERIFY, spec.Purposes.Has(domain.PurposeVerify)),
		pkcs11.NewAttribute(pkcs11.CKA_EC_PARAMS, p256Params),
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, alias.String()),
		pkcs11.NewAttribute(pkcs11.CKA_ID, id),
	}
	privTemplate := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PRIVATE_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_EC),
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, true),
		pkcs11.NewAttribute(pkcs11.CKA_PRIVATE, true),
		pkcs11.NewAttribute(pkcs11.CKA_SENSITIVE, true),
		pkcs11.NewAttribute(pkcs11.CKA_EXTRACTABLE, false),
		pkcs11.NewAttribute(pkcs11.CKA_SIGN, true),
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, alias.String()),
		pkcs11.NewAttribute(pkcs11.CKA_ID, id),
	}
	pubObj, privObj, err := s.ctx.GenerateKeyPair(s.session,
		[]*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_EC_KEY_PAIR_GEN, nil)},
		pubTemplate, privTemplate)
	if err != nil {
		return domain.KeyHandle{}, fmt.Errorf("%w: generate key pair: %v", domain.ErrStoreUnavailable, err)
	}

	pub, err := s.publicKey(pubObj)
	if err != nil {
		s.destroy(pubObj, privObj)
		return domain.KeyHandle{}, err
	}
	now := s.opts.now().UTC()
	der, err := crypto.SelfSignedCertificate(&tokenSigner{s: s, obj: privObj, pub: pub}, alias.String(), now)
	if err != nil {
		s.destroy(pubObj, privObj)
		return domain.KeyHandle{}, fmt.Errorf("%w: certificate: %v", domain.ErrStoreUnavailable, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		s.destroy(pubObj, privObj)
		return domain.KeyHandle{}, err
	}
	if _, err := s.ctx.CreateObject(s.session, []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_CERTIFICATE),
		pkcs11.NewAttribute(pkcs11.CKA_CERTIFICATE_TYPE, pkcs11.CKC_X_509),
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, true),
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, alias.String()),
		pkcs11.NewAttribute(pkcs11.CKA_ID, id),
		pkcs11.NewAttribute(pkcs11.CKA_SUBJECT, cert.RawSubject),
		pkcs11.NewAttribute(pkcs11.CKA_VALUE, der),
	}); err != nil {
		s.destroy(pubObj, privObj)
		return domain.KeyHandle{}, fmt.Errorf("%w: store certificate: %v", domain.ErrStoreUnavailable, err)
	}

	logging.Debugf("generated token key %s", alias)
	return domain.KeyHandle{Alias: alias, PublicKey: pub, Certificate: der, CreatedAt: cert.NotBefore}, nil
}

// GetKey returns the handle for alias.
func (s *PKCS11KeyStore) GetKey(alias domain.Alias) (domain.KeyHandle, bool, error) {
	if err := alias.Validate(); err != nil {
		return domain.KeyHandle{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(alias)
}

// Sign signs SHA-256(message) on the token. The result is ASN.1 DER.
func (s *PKCS11KeyStore) Sign(handle domain.KeyHandle, message []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok, err := s.load(handle.Alias)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: alias %s", domain.ErrKeyNotFound, handle.Alias)
	}
	if handle.PublicKey == nil || !cur.PublicKey.Equal(handle.PublicKey) {
		return nil, fmt.Errorf("%w: alias %s", domain.ErrStaleHandle, handle.Alias)
	}
	objs, err := s.find(handle.Alias, pkcs11.CKO_PRIVATE_KEY)
	if err != nil {
		return nil, err
	}
	if len(objs) == 0 {
		return nil, fmt.Errorf("%w: private key for %s", domain.ErrKeyNotFound, handle.Alias)
	}
	digest := sha256.Sum256(message)
	return s.signDigest(objs[0], digest[:])
}

// DeleteKey destroys every object labelled alias.
func (s *PKCS11KeyStore) DeleteKey(alias domain.Alias) (bool, error) {
	if err := alias.Validate(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	objs, err := s.find(alias, 0)
	if err != nil {
		return false, err
	}
	for _, o := range objs {
		if err := s.ctx.DestroyObject(s.session, o); err != nil {
			return false, fmt.Errorf("%w: destroy object: %v", domain.ErrStoreUnavailable, err)
		}
	}
	return len(objs) > 0, nil
}

// load reads the public key and certificate for alias. Callers hold s.mu.
func (s *PKCS11KeyStore) load(alias domain.Alias) (domain.KeyHandle, bool, error) {
	pubs, err := s.find(alias, pkcs11.CKO_PUBLIC_KEY)
	if err != nil || len(pubs) == 0 {
		return domain.KeyHandle{}, false, err
	}
	pub, err := s.publicKey(pubs[0])
	if err != nil {
		return domain.KeyHandle{}, false, err
	}
	h := domain.KeyHandle{Alias: alias, PublicKey: pub}

	certs, err := s.find(alias, pkcs11.CKO_CERTIFICATE)
	if err != nil {
		return domain.KeyHandle{}, false, err
	}
	if len(certs) > 0 {
		attrs, err := s.ctx.GetAttributeValue(s.session, certs[0], []*pkcs11.Attribute{
			pkcs11.NewAttribute(pkcs11.CKA_VALUE, nil),
		})
		if err != nil {
			return domain.KeyHandle{}, false, fmt.Errorf("%w: read certificate: %v", domain.ErrStoreUnavailable, err)
		}
		h.Certificate = attrs[0].Value
		if cert, err := x509.ParseCertificate(h.Certificate); err == nil {
			h.CreatedAt = cert.NotBefore
		}
	}
	return h, true, nil
}

// find returns the objects labelled alias, optionally filtered by class.
func (s *PKCS11KeyStore) find(alias domain.Alias, class uint) ([]pkcs11.ObjectHandle, error) {
	template := []*pkcs11.Attribute{pkcs11.NewAttribute(pkcs11.CKA_LABEL, alias.String())}
	if class != 0 {
		template = append(template, pkcs11.NewAttribute(pkcs11.CKA_CLASS, class))
	}
	if err := s.ctx.FindObjectsInit(s.session, template); err != nil {
		return nil, fmt.Errorf("%w: find objects: %v", domain.ErrStoreUnavailable, err)
	}
	var all []pkcs11.ObjectHandle
	for {
		objs, _, err := s.ctx.FindObjects(s.session, 16)
		if err != nil {
			_ = s.ctx.FindObjectsFinal(s.session)
			return nil, fmt.Errorf("%w: find objects: %v", domain.ErrStoreUnavailable, err)
		}
		if len(objs) == 0 {
			break
		}
		all = append(all, objs...)
	}
	if err := s.ctx.FindObjectsFinal(s.session); err != nil {
		return nil, fmt.Errorf("%w: find objects: %v", domain.ErrStoreUnavailable, err)
	}
	return all, nil
}

// publicKey reads CKA_EC_POINT. Tokens return it wrapped in a DER OCTET
// STRING; some older ones return the bare point.
func (s *PKCS11KeyStore) publicKey(obj pkcs11.ObjectHandle) (*ecdsa.PublicKey, error) {
	attrs, err := s.ctx.GetAttributeValue(s.session, obj, []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_EC_POINT, nil),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: read public key: %v", domain.ErrStoreUnavailable, err)
	}
	point := attrs[0].Value
	var inner []byte
	if rest, err := asn1.Unmarshal(point, &inner); err == nil && len(rest) == 0 {
		point = inner
	}
	return crypto.P256FromPoint(point)
}

func (s *PKCS11KeyStore) signDigest(obj pkcs11.ObjectHandle, digest []byte) ([]byte, error) {
	mech := []*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_ECDSA, nil)}
	if err := s.ctx.SignInit(s.session, mech, obj); err != nil {
		return nil, fmt.Errorf("sign init: %w", err)
	}
	raw, err := s.ctx.Sign(s.session, digest)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	return crypto.RawToASN1(raw)
}

func (s *PKCS11KeyStore) destroy(objs ...pkcs11.ObjectHandle) {
	for _, o := range objs {
		if err := s.ctx.DestroyObject(s.session, o); err != nil {
			logging.Warnf("pkcs11: cleanup of object %d failed: %v", o, err)
		}
	}
}

func isCKR(err error, code uint) bool {
	var e pkcs11.Error
	return errors.As(err, &e) && uint(e) == code
}

// tokenSigner adapts a token private key to crypto.Signer for certificate
// issuance. It runs with s.mu already held.
type tokenSigner struct {
	s   *PKCS11KeyStore
	obj pkcs11.ObjectHandle
	pub *ecdsa.PublicKey
}

func (t *tokenSigner) Public() gocrypto.PublicKey { return t.pub }

func (t *tokenSigner) Sign(_ io.Reader, digest []byte, _ gocrypto.SignerOpts) ([]byte, error) {
	return t.s.signDigest(t.obj, digest)
}

var _ domain.KeyStore = (*PKCS11KeyStore)(nil)
