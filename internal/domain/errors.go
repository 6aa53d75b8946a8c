package domain

import "errors"

// Error kinds. Operations wrap the underlying cause with one of these so
// callers can classify failures with errors.Is.
var (
	ErrKeyProvisioning = errors.New("key provisioning failed")
	ErrSigning         = errors.New("signing failed")
	ErrReset           = errors.New("identity reset failed")
	ErrClaimAssembly   = errors.New("claim assembly failed")
)

// Store-level errors.
var (
	ErrKeyNotFound        = errors.New("key not found")
	ErrStaleHandle        = errors.New("key handle does not match stored key")
	ErrUnsupportedKeySpec = errors.New("unsupported key spec")
	ErrStoreUnavailable   = errors.New("key store unavailable")
	ErrWrongPassphrase    = errors.New("wrong passphrase or corrupted key entry")
)

// ClaimErrorCode is the machine-readable code reported for failed claims.
const ClaimErrorCode = "CLAIM_ERROR"

// ClaimError is the single error type surfaced by claim creation. It wraps
// whichever kind caused the failure.
type ClaimError struct {
	Err error
}

func (e *ClaimError) Error() string { return "make claim: " + e.Err.Error() }

func (e *ClaimError) Unwrap() error { return e.Err }

// Code returns ClaimErrorCode.
func (e *ClaimError) Code() string { return ClaimErrorCode }
