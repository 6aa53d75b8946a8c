package types

import "strconv"

// DeviceClaim is a signed assertion binding a device identity, a timestamp
// and a nonce. The JSON names are the wire contract with the verifier.
type DeviceClaim struct {
	DeviceID     string `json:"deviceId"`
	PublicKeyPEM string `json:"publicKey"`
	Timestamp    int64  `json:"timestamp"`
	Nonce        string `json:"nonce"`
	Signature    string `json:"signature"`
	Algorithm    string `json:"alg"`
	Curve        string `json:"curve,omitempty"`
}

// CanonicalMessage returns the exact string whose signature the claim carries.
func (c DeviceClaim) CanonicalMessage() string {
	return CanonicalMessage(c.DeviceID, c.Timestamp, c.Nonce)
}

// CanonicalMessage builds "deviceId=<id>&timestamp=<ms>&nonce=<nonce>".
// Values are used verbatim; a verifier must rebuild the same bytes.
func CanonicalMessage(deviceID string, timestamp int64, nonce string) string {
	return "deviceId=" + deviceID + "&timestamp=" + strconv.FormatInt(timestamp, 10) + "&nonce=" + nonce
}
