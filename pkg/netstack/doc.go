// Package netstack defines the socket-level network stack contract consumed by
// the Stabilizer network layer, and a host implementation of it.
//
// The contract mirrors an embedded TCP/IP stack: sockets are small integer
// handles, every call returns immediately, and ErrWouldBlock means "no work
// available, retry on the next poll cycle". Actual transmission and reception
// only make progress when Poll is called.
//
// # Host Stack
//
// HostStack implements the contract on top of the operating system's sockets.
// Blocking I/O happens on per-socket helper goroutines, but its effects only
// become visible to callers inside Poll, the way DMA descriptors only become
// visible to an embedded stack when it is polled:
//
//	stack := netstack.NewHostStack(netstack.DefaultHostConfig())
//	sock, _ := stack.Open(netstack.TCP)
//	_ = stack.Connect(sock, netip.MustParseAddrPort("10.0.0.1:9883"))
//	for !stack.IsConnected(sock) {
//	    stack.Poll(time.Now())
//	}
package netstack
