// Package identity manages the device identity: the store-held signing key,
// the device identifier derived from it, and the signed claims built on demand.
//
// The key pair has two states. It is absent until the first claim (or an
// explicit GetOrCreateKeyPair) provisions it, and stays provisioned until
// ResetIdentity deletes it. Provisioning and reset are serialised; signing and
// reads run concurrently.
package identity
