// Package channel is the request/response boundary callers use to obtain
// device claims without linking against the identity service directly.
//
// Methods
//
//	makeClaim
//	    No arguments. Returns a map with deviceId, publicKey (PEM), nonce
//	    (base64), signature (base64), alg ("ES256") and timestamp (Unix ms).
//
// Failures carry the machine-readable code CLAIM_ERROR and the underlying
// message. Any other method yields a not-implemented response. The handler
// never panics into its caller.
package channel
