// Package cli holds the process setup shared by the commands: operational
// logging and the protocol event log.
package cli
