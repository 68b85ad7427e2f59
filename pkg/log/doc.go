// Package log records protocol events from the Stabilizer network stack.
//
// These events complement operational slog output. They form a
// machine-readable trace of sockets, pub/sub packets, stream frames and
// network-layer decisions that can be captured on a bench and inspected
// later with stabilizer-log.
//
// Components accept a Logger and default to NoopLogger:
//
//	hostConfig.Logger = log.NewSlogAdapter(logger)
//
//	fl, err := log.NewFileLogger("/tmp/stabilizer.slog")
//	hostConfig.Logger = log.NewMultiLogger(log.NewSlogAdapter(logger), fl)
//
// A capture file is a plain concatenation of CBOR-encoded events. Reader
// replays it, optionally through a Filter, and tolerates a tail cut off
// mid-event.
package log
