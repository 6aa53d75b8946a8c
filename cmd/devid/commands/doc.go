// Package commands defines the devid CLI and wires dependencies for subcommands.
//
// Commands
//
//   - init           Provision the device identity key if it does not exist
//   - claim          Produce a signed device claim through the message channel
//   - call           Send an arbitrary method name through the channel
//   - cert           Print the identity certificate
//   - reset          Delete the identity key
//   - verify         Check a claim the way the server does
//   - config write   Write the effective configuration to devid.yaml
//
// # Implementation
//
// The root command loads configuration and builds the key store, identity
// service and channel before any subcommand runs. Commands that only need
// configuration opt out of wiring with the skipWire annotation.
package commands
