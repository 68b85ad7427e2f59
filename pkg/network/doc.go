// Package network assembles the device's network users around one shared
// stack and services them from the main loop.
//
// Users owns the processor, the settings and telemetry clients and the
// sample stream. Each is handed its own proxy of a single shared.Manager,
// so none of them can touch the stack while another is using it.
//
// # Streaming Ownership
//
// The stream generator starts out held by Users (Internal). While held,
// DirectStream may point the stream at a destination but Update never drains
// it. EnableStreaming hands the generator to the application once and for
// all (External); from then on every Update drains the stream backlog.
package network
