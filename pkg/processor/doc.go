// Package processor drives the network stack from the device main loop.
//
// The Processor polls the stack for ingress and egress and watches the
// physical link. When the link drops it resets the stack once, so clients
// reconnect from scratch when the link returns.
package processor
