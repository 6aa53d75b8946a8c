package interfaces

import (
	"crypto/x509"

	domaintypes "devid/internal/domain/types"
)

// IdentityService provisions the device key, issues claims and resets the identity.
type IdentityService interface {
	GetOrCreateKeyPair() (domaintypes.KeyHandle, error)
	MakeClaimPayload() (domaintypes.DeviceClaim, error)
	ResetIdentity() bool
	PublicCertificate() (*x509.Certificate, bool, error)
}
