package verify

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"devid/internal/crypto"
	"devid/internal/domain"
)

var (
	ErrMalformedClaim   = errors.New("malformed claim")
	ErrUnsupportedAlg   = errors.New("unsupported claim algorithm")
	ErrDeviceIDMismatch = errors.New("device id does not match public key")
	ErrBadSignature     = errors.New("claim signature does not verify")
	ErrStaleClaim       = errors.New("claim timestamp outside allowed skew")
)

// Verifier checks claim signatures and, when MaxSkew is set, freshness.
type Verifier struct {
	// MaxSkew bounds |now - timestamp|. Zero disables the check.
	MaxSkew time.Duration
	Now     func() time.Time
}

// Claim verifies c with no freshness check.
func Claim(c domain.DeviceClaim) error { return Verifier{}.Verify(c) }

// Verify returns nil if c is well formed, bound to its public key and
// correctly signed.
func (v Verifier) Verify(c domain.DeviceClaim) error {
	if c.DeviceID == "" || c.Nonce == "" || c.Signature == "" || c.PublicKeyPEM == "" {
		return fmt.Errorf("%w: missing field", ErrMalformedClaim)
	}
	if c.Algorithm != "" && c.Algorithm != domain.AlgorithmES256 {
		return fmt.Errorf("%w: %q", ErrUnsupportedAlg, c.Algorithm)
	}

	pub, err := crypto.ParsePublicKeyPEM(c.PublicKeyPEM)
	if err != nil {
		return fmt.Errorf("%w: public key: %v", ErrMalformedClaim, err)
	}
	want, err := crypto.DeviceID(pub)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedClaim, err)
	}
	if want != c.DeviceID {
		return ErrDeviceIDMismatch
	}

	sig, err := base64.StdEncoding.DecodeString(c.Signature)
	if err != nil {
		return fmt.Errorf("%w: signature encoding: %v", ErrMalformedClaim, err)
	}
	if !crypto.VerifyP256(pub, []byte(c.CanonicalMessage()), sig) {
		return ErrBadSignature
	}

	if v.MaxSkew > 0 {
		now := time.Now
		if v.Now != nil {
			now = v.Now
		}
		skew := now().Sub(time.UnixMilli(c.Timestamp))
		if skew < 0 {
			skew = -skew
		}
		if skew > v.MaxSkew {
			return fmt.Errorf("%w: %s", ErrStaleClaim, skew)
		}
	}
	return nil
}

// FromMap reads a claim from a channel result map. Timestamps may arrive as
// int64 (in process) or as JSON numbers after a round trip.
func FromMap(m map[string]any) (domain.DeviceClaim, error) {
	var c domain.DeviceClaim
	var err error
	if c.DeviceID, err = stringField(m, "deviceId"); err != nil {
		return c, err
	}
	if c.PublicKeyPEM, err = stringField(m, "publicKey"); err != nil {
		return c, err
	}
	if c.Nonce, err = stringField(m, "nonce"); err != nil {
		return c, err
	}
	if c.Signature, err = stringField(m, "signature"); err != nil {
		return c, err
	}
	if c.Algorithm, err = stringField(m, "alg"); err != nil {
		return c, err
	}

	switch ts := m["timestamp"].(type) {
	case int64:
		c.Timestamp = ts
	case int:
		c.Timestamp = int64(ts)
	case float64:
		if ts != float64(int64(ts)) {
			return c, fmt.Errorf("%w: timestamp %v is not an integer", ErrMalformedClaim, ts)
		}
		c.Timestamp = int64(ts)
	case json.Number:
		n, err := ts.Int64()
		if err != nil {
			return c, fmt.Errorf("%w: timestamp: %v", ErrMalformedClaim, err)
		}
		c.Timestamp = n
	default:
		return c, fmt.Errorf("%w: timestamp has type %T", ErrMalformedClaim, m["timestamp"])
	}
	return c, nil
}

func stringField(m map[string]any, key string) (string, error) {
	v, ok := m[key].(string)
	if !ok {
		return "", fmt.Errorf("%w: %s missing or not a string", ErrMalformedClaim, key)
	}
	return v, nil
}
