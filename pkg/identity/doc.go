// Package identity derives the broker client identifiers and topic prefix of
// a device from its application name and MAC address.
//
// Identifiers are pure functions of their inputs so a device reconnects under
// the same identity after every reset. They are built into fixed-capacity
// buffers; an identity that does not fit is rejected with ErrIdentityOverflow
// rather than truncated.
package identity
