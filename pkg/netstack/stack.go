package netstack

import (
	"errors"
	"net/netip"
	"time"
)

// Stack errors.
var (
	// ErrWouldBlock indicates the operation cannot make progress until the next poll.
	ErrWouldBlock = errors.New("operation would block")

	// ErrNoSockets indicates every socket slot is in use.
	ErrNoSockets = errors.New("no free sockets")

	// ErrInvalidSocket indicates an unknown or already closed socket handle.
	ErrInvalidSocket = errors.New("invalid socket handle")

	// ErrNotConnected indicates the socket has no established connection.
	ErrNotConnected = errors.New("socket not connected")

	// ErrInvalidRemote indicates an unusable remote address.
	ErrInvalidRemote = errors.New("invalid remote address")
)

// Protocol selects the transport of a socket.
type Protocol uint8

const (
	// TCP is a connected byte stream.
	TCP Protocol = iota

	// UDP is a connected datagram socket.
	UDP
)

// String returns the protocol name.
func (p Protocol) String() string {
	switch p {
	case TCP:
		return "TCP"
	case UDP:
		return "UDP"
	default:
		return "UNKNOWN"
	}
}

// Socket is a handle to a socket owned by a Stack.
type Socket uint16

// Stack is the socket-level contract of the network stack.
// No method blocks; ErrWouldBlock signals that the caller should retry after
// the next Poll.
type Stack interface {
	// Open allocates a new, unconnected socket.
	Open(proto Protocol) (Socket, error)

	// Connect starts connecting the socket to remote. For TCP the connection
	// completes during a later Poll; use IsConnected to observe it.
	Connect(s Socket, remote netip.AddrPort) error

	// IsConnected reports whether the socket has an established connection.
	IsConnected(s Socket) bool

	// Send queues data for transmission and returns the number of bytes
	// accepted. UDP sockets accept whole datagrams only.
	Send(s Socket, data []byte) (int, error)

	// Receive copies buffered inbound data into buf. UDP sockets return one
	// datagram per call.
	Receive(s Socket, buf []byte) (int, error)

	// Close releases the socket.
	Close(s Socket) error

	// Poll services all sockets: completes connections, moves received data
	// into socket buffers and hands queued data to the wire. It reports
	// whether any socket changed state.
	Poll(now time.Time) (bool, error)

	// HandleLinkReset drops every connection after the physical link went down.
	HandleLinkReset()
}

// Clock provides the time base used to drive the stack and its clients.
type Clock interface {
	Now() time.Time
}

// SystemClock is a Clock backed by time.Now.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// ValidRemote reports whether remote can be used as a socket destination.
// An unspecified address or zero port disables the destination.
func ValidRemote(remote netip.AddrPort) bool {
	return remote.IsValid() && !remote.Addr().IsUnspecified() && remote.Port() != 0
}

var _ Clock = SystemClock{}
