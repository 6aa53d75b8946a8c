// Package app wires application dependencies for the CLI.
//
// LoadConfig merges defaults, an optional devid.yaml, DEVID_* environment
// variables and command flags into a Config. NewWire turns that Config into
// a key store, the identity service and the message channel.
package app
