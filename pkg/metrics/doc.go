// Package metrics exports device and broker counters to Prometheus.
//
// Network users are owned by the main loop goroutine, so their counters are
// published through a Snapshot that the loop refreshes and the HTTP handler
// reads.
package metrics
