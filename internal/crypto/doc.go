// Package crypto exposes the minimal primitives used by devid.
//
// Contents
//
//   - ECDSA P-256 key generation, signing and verification over SHA-256
//     (GenerateP256, SignP256, VerifyP256)
//   - Public key encodings: SPKI DER, PEM and back (MarshalPublicKey,
//     PublicKeyPEM, ParsePublicKeyPEM)
//   - The device identifier and a short display fingerprint (DeviceID,
//     Fingerprint)
//   - Claim nonces (Nonce) and the self-signed key certificate
//     (SelfSignedCertificate)
//
// # Notes
//
// Signatures are ASN.1 DER encoded (SEQUENCE { r, s }), the format produced
// by SHA256withECDSA on platform keystores, so verifiers can use
// ecdsa.VerifyASN1 directly.
package crypto
