// Package verify checks device claims the way the receiving server does:
// it rebuilds the canonical message from the claim fields and verifies the
// ECDSA P-256 signature against the PEM public key the claim carries.
package verify
