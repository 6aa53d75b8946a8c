package store

import (
	"crypto/rand"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"devid/internal/domain"
	"devid/internal/util/memzero"
)

const (
	// The current supported version of the sealed private key format.
	envelopeFormatVersion = 1
)

// Passphrase KDFs an envelope can be sealed with.
const (
	KDFScrypt   = "scrypt"
	KDFArgon2id = "argon2id"
)

// KDFParams select the passphrase KDF and its cost. An empty Algorithm
// means scrypt.
type KDFParams struct {
	Algorithm string

	// scrypt
	N int
	R int
	P int

	// argon2id
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
}

// DefaultKDFParams returns the scrypt tunables for new envelopes.
func DefaultKDFParams() KDFParams { return KDFParams{Algorithm: KDFScrypt, N: 1 << 15, R: 8, P: 1} }

// Argon2idKDFParams returns argon2id tunables for new envelopes.
func Argon2idKDFParams() KDFParams {
	return KDFParams{Algorithm: KDFArgon2id, Time: 1, MemoryKiB: 64 * 1024, Threads: 4}
}

// ParseKDF maps a KDF name to its default parameters.
func ParseKDF(name string) (KDFParams, error) {
	switch name {
	case "", KDFScrypt:
		return DefaultKDFParams(), nil
	case KDFArgon2id:
		return Argon2idKDFParams(), nil
	default:
		return KDFParams{}, fmt.Errorf("unknown kdf %q (want %s or %s)", name, KDFScrypt, KDFArgon2id)
	}
}

func (p KDFParams) derive(passphrase string, salt []byte) ([]byte, error) {
	switch p.Algorithm {
	case "", KDFScrypt:
		return scrypt.Key([]byte(passphrase), salt, p.N, p.R, p.P, chacha20poly1305.KeySize)
	case KDFArgon2id:
		if p.Time == 0 || p.MemoryKiB == 0 || p.Threads == 0 {
			return nil, fmt.Errorf("argon2id: zero cost parameter")
		}
		return argon2.IDKey([]byte(passphrase), salt, p.Time, p.MemoryKiB, p.Threads, chacha20poly1305.KeySize), nil
	default:
		return nil, fmt.Errorf("unknown kdf %q", p.Algorithm)
	}
}

// envelope is the JSON structure holding a sealed private key and its KDF
// parameters. Envelopes without a kdf field are scrypt.
type envelope struct {
	V       int    `json:"v"`
	KDF     string `json:"kdf,omitempty"`
	Salt    []byte `json:"salt"`
	N       int    `json:"scrypt_N,omitempty"`
	R       int    `json:"scrypt_r,omitempty"`
	P       int    `json:"scrypt_p,omitempty"`
	Time    uint32 `json:"argon2_t,omitempty"`
	Memory  uint32 `json:"argon2_m,omitempty"`
	Threads uint8  `json:"argon2_p,omitempty"`
	Cipher  []byte `json:"cipher"`
}

func (e envelope) params() KDFParams {
	return KDFParams{Algorithm: e.KDF, N: e.N, R: e.R, P: e.P, Time: e.Time, MemoryKiB: e.Memory, Threads: e.Threads}
}

// seal derives a key from passphrase and encrypts raw. The alias is bound as
// additional data so an envelope cannot be moved to another key entry.
func seal(passphrase string, alias domain.Alias, raw []byte, kdf KDFParams) ([]byte, error) {
	var salt [16]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, err
	}
	key, err := kdf.derive(passphrase, salt[:])
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte // zero nonce; salt-bound key is single use
	ct := aead.Seal(nil, nonce[:], raw, additionalData(alias, salt[:]))

	env := envelope{V: envelopeFormatVersion, Salt: salt[:], Cipher: ct}
	switch kdf.Algorithm {
	case KDFArgon2id:
		env.KDF, env.Time, env.Memory, env.Threads = KDFArgon2id, kdf.Time, kdf.MemoryKiB, kdf.Threads
	default:
		env.N, env.R, env.P = kdf.N, kdf.R, kdf.P
	}
	return json.Marshal(env)
}

// open reverses seal.
func open(passphrase string, alias domain.Alias, b []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrWrongPassphrase, err)
	}
	if env.V > envelopeFormatVersion {
		return nil, fmt.Errorf("unsupported envelope version %d", env.V)
	}

	key, err := env.params().derive(passphrase, env.Salt)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte
	pt, err := aead.Open(nil, nonce[:], env.Cipher, additionalData(alias, env.Salt))
	if err != nil {
		return nil, domain.ErrWrongPassphrase
	}
	return pt, nil
}

func additionalData(alias domain.Alias, salt []byte) []byte {
	ad := make([]byte, 0, len(alias)+1+len(salt))
	ad = append(ad, alias...)
	ad = append(ad, 0)
	return append(ad, salt...)
}
