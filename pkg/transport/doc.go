// Package transport frames pub/sub packets on stream connections and tracks
// broker liveness.
//
// Every packet travels as a 4-byte big-endian length followed by its CBOR
// encoding:
//
//	+--------+---------------------+
//	| len:u32 | CBOR packet (wire) |
//	+--------+---------------------+
//
// Blocking peers such as the broker and host tools use FrameWriter and
// FrameReader. The device side reads a polled socket and feeds whatever
// bytes arrived into a FrameDecoder.
//
// KeepAlive has no goroutine of its own. The session calls Tick from its
// poll loop, sends a ping when one is due and gives up on the broker after
// too many unanswered pings.
package transport
