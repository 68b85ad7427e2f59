package netstack

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"syscall"
	"time"

	"github.com/sinara-hw/stabilizer-go/pkg/log"
)

// Host stack defaults.
const (
	// DefaultMaxSockets is the number of socket slots.
	DefaultMaxSockets = 8

	// DefaultRxBufferSize is the per-socket receive buffer size in bytes.
	DefaultRxBufferSize = 4096

	// DefaultTxBufferSize is the per-socket TCP transmit buffer size in bytes.
	DefaultTxBufferSize = 4096

	// DefaultDatagramQueueDepth is the number of datagrams buffered per UDP socket.
	DefaultDatagramQueueDepth = 32

	// DefaultDialTimeout bounds TCP connection attempts.
	DefaultDialTimeout = 5 * time.Second

	// readChunkSize is the size of a single read by the receive goroutine.
	readChunkSize = 2048
)

// HostConfig configures a HostStack.
type HostConfig struct {
	// MaxSockets is the number of socket slots.
	MaxSockets int

	// RxBufferSize is the per-socket receive buffer size in bytes.
	RxBufferSize int

	// TxBufferSize is the per-socket TCP transmit buffer size in bytes.
	TxBufferSize int

	// DatagramQueueDepth is the number of datagrams buffered per UDP socket,
	// in each direction.
	DatagramQueueDepth int

	// DialTimeout bounds TCP connection attempts.
	DialTimeout time.Duration

	// Logger receives socket state events (optional).
	Logger log.Logger
}

// DefaultHostConfig returns the default host stack configuration.
func DefaultHostConfig() HostConfig {
	return HostConfig{
		MaxSockets:         DefaultMaxSockets,
		RxBufferSize:       DefaultRxBufferSize,
		TxBufferSize:       DefaultTxBufferSize,
		DatagramQueueDepth: DefaultDatagramQueueDepth,
		DialTimeout:        DefaultDialTimeout,
	}
}

// socketState is the lifecycle state of a host socket.
type socketState uint8

const (
	stateIdle socketState = iota
	stateConnecting
	stateEstablished
	stateClosed
)

func (s socketState) String() string {
	switch s {
	case stateIdle:
		return "IDLE"
	case stateConnecting:
		return "CONNECTING"
	case stateEstablished:
		return "ESTABLISHED"
	case stateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

type dialResult struct {
	conn net.Conn
	err  error
}

type hostSocket struct {
	proto  Protocol
	state  socketState
	remote netip.AddrPort

	conn   net.Conn
	dialCh chan dialResult
	inbox  chan []byte
	outbox chan []byte
	errCh  chan error
	done   chan struct{}

	// Receive side.
	rx        []byte
	rxPending []byte
	datagrams [][]byte

	// Transmit side.
	tx      [][]byte
	txBytes int
}

// HostStack implements Stack over operating system sockets.
//
// HostStack is not safe for concurrent use: like the embedded stack it stands
// in for, it must be driven from a single goroutine (or through shared.Proxy).
type HostStack struct {
	config  HostConfig
	logger  log.Logger
	sockets []*hostSocket
}

// NewHostStack creates a host stack.
func NewHostStack(config HostConfig) *HostStack {
	if config.MaxSockets <= 0 {
		config.MaxSockets = DefaultMaxSockets
	}
	if config.RxBufferSize <= 0 {
		config.RxBufferSize = DefaultRxBufferSize
	}
	if config.TxBufferSize <= 0 {
		config.TxBufferSize = DefaultTxBufferSize
	}
	if config.DatagramQueueDepth <= 0 {
		config.DatagramQueueDepth = DefaultDatagramQueueDepth
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = DefaultDialTimeout
	}

	return &HostStack{
		config:  config,
		logger:  log.OrNoop(config.Logger),
		sockets: make([]*hostSocket, config.MaxSockets),
	}
}

// Open allocates a new, unconnected socket.
func (h *HostStack) Open(proto Protocol) (Socket, error) {
	if proto != TCP && proto != UDP {
		return 0, fmt.Errorf("unsupported protocol %d", proto)
	}

	for i, sock := range h.sockets {
		if sock == nil {
			h.sockets[i] = &hostSocket{proto: proto, state: stateIdle}
			return Socket(i), nil
		}
	}
	return 0, ErrNoSockets
}

// Connect starts connecting the socket. UDP sockets are connected immediately;
// TCP connections complete during a later Poll.
func (h *HostStack) Connect(s Socket, remote netip.AddrPort) error {
	sock, err := h.get(s)
	if err != nil {
		return err
	}
	if !ValidRemote(remote) {
		return fmt.Errorf("%w: %s", ErrInvalidRemote, remote)
	}

	switch sock.state {
	case stateConnecting, stateEstablished:
		if sock.remote == remote {
			return nil
		}
		return fmt.Errorf("socket %d already connected to %s", s, sock.remote)
	}

	sock.remote = remote

	if sock.proto == UDP {
		conn, err := net.DialUDP("udp", nil, net.UDPAddrFromAddrPort(remote))
		if err != nil {
			h.setState(s, sock, stateClosed, err.Error())
			return fmt.Errorf("failed to open UDP socket: %w", err)
		}
		h.establish(s, sock, conn)
		return nil
	}

	ch := make(chan dialResult, 1)
	sock.dialCh = ch
	timeout := h.config.DialTimeout
	go func() {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.Dial("tcp", remote.String())
		ch <- dialResult{conn: conn, err: err}
	}()

	h.setState(s, sock, stateConnecting, "")
	return nil
}

// IsConnected reports whether the socket has an established connection.
func (h *HostStack) IsConnected(s Socket) bool {
	sock, err := h.get(s)
	if err != nil {
		return false
	}
	return sock.state == stateEstablished
}

// Send queues data for transmission on the next Poll.
func (h *HostStack) Send(s Socket, data []byte) (int, error) {
	sock, err := h.get(s)
	if err != nil {
		return 0, err
	}
	if sock.state != stateEstablished {
		return 0, ErrNotConnected
	}
	if len(data) == 0 {
		return 0, nil
	}

	if sock.proto == UDP {
		if len(sock.tx) >= h.config.DatagramQueueDepth {
			return 0, ErrWouldBlock
		}
		sock.tx = append(sock.tx, bytes.Clone(data))
		sock.txBytes += len(data)
		return len(data), nil
	}

	free := h.config.TxBufferSize - sock.txBytes
	if free <= 0 {
		return 0, ErrWouldBlock
	}
	n := min(free, len(data))
	sock.tx = append(sock.tx, bytes.Clone(data[:n]))
	sock.txBytes += n
	return n, nil
}

// Receive copies buffered inbound data into buf.
func (h *HostStack) Receive(s Socket, buf []byte) (int, error) {
	sock, err := h.get(s)
	if err != nil {
		return 0, err
	}

	if sock.proto == UDP {
		if len(sock.datagrams) == 0 {
			return 0, h.emptyError(sock)
		}
		n := copy(buf, sock.datagrams[0])
		sock.datagrams[0] = nil
		sock.datagrams = sock.datagrams[1:]
		return n, nil
	}

	if len(sock.rx) == 0 {
		return 0, h.emptyError(sock)
	}
	n := copy(buf, sock.rx)
	sock.rx = append(sock.rx[:0], sock.rx[n:]...)
	return n, nil
}

// emptyError selects the error returned by Receive on an empty buffer.
func (h *HostStack) emptyError(sock *hostSocket) error {
	switch sock.state {
	case stateConnecting, stateEstablished:
		return ErrWouldBlock
	default:
		return ErrNotConnected
	}
}

// Close releases the socket and any connection it holds.
func (h *HostStack) Close(s Socket) error {
	sock, err := h.get(s)
	if err != nil {
		return err
	}

	h.teardown(sock)
	h.sockets[s] = nil
	h.logState(s, sock, sock.state.String(), "RELEASED", "")
	return nil
}

// Shutdown closes every socket. The stack must not be used afterwards.
func (h *HostStack) Shutdown() {
	for i, sock := range h.sockets {
		if sock != nil {
			h.teardown(sock)
			h.sockets[i] = nil
		}
	}
}

// Poll services all sockets and reports whether any changed state or moved data.
func (h *HostStack) Poll(now time.Time) (bool, error) {
	changed := false
	for i, sock := range h.sockets {
		if sock == nil {
			continue
		}
		if h.service(Socket(i), sock) {
			changed = true
		}
	}
	return changed, nil
}

// HandleLinkReset drops every connection. Sockets stay allocated in the closed
// state so their owners observe the loss and reconnect.
func (h *HostStack) HandleLinkReset() {
	for i, sock := range h.sockets {
		if sock == nil {
			continue
		}
		if sock.state == stateConnecting || sock.state == stateEstablished {
			h.teardown(sock)
			h.setState(Socket(i), sock, stateClosed, "link reset")
		}
	}
}

func (h *HostStack) get(s Socket) (*hostSocket, error) {
	if int(s) >= len(h.sockets) || h.sockets[s] == nil {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSocket, s)
	}
	return h.sockets[s], nil
}

// service advances one socket and reports whether anything changed.
func (h *HostStack) service(s Socket, sock *hostSocket) bool {
	switch sock.state {
	case stateConnecting:
		select {
		case r := <-sock.dialCh:
			sock.dialCh = nil
			if r.err != nil {
				h.setState(s, sock, stateClosed, r.err.Error())
			} else {
				h.establish(s, sock, r.conn)
			}
			return true
		default:
			return false
		}

	case stateEstablished:
		changed := h.drainInbox(sock)

		// Errors are only acted upon once all data read before them was consumed.
		if len(sock.inbox) == 0 && len(sock.rxPending) == 0 {
			select {
			case err := <-sock.errCh:
				h.release(sock)
				h.setState(s, sock, stateClosed, err.Error())
				return true
			default:
			}
		}

		if h.flush(sock) {
			changed = true
		}
		return changed
	}

	return false
}

// establish attaches a live connection to the socket and starts its I/O goroutines.
func (h *HostStack) establish(s Socket, sock *hostSocket, conn net.Conn) {
	sock.conn = conn
	sock.inbox = make(chan []byte, h.config.DatagramQueueDepth)
	sock.outbox = make(chan []byte, h.config.DatagramQueueDepth)
	sock.errCh = make(chan error, 2)
	sock.done = make(chan struct{})

	go readLoop(conn, sock.proto, sock.inbox, sock.errCh, sock.done)
	go writeLoop(conn, sock.proto, sock.outbox, sock.errCh, sock.done)

	h.setState(s, sock, stateEstablished, "")
}

// teardown releases the connection and discards all buffered data.
func (h *HostStack) teardown(sock *hostSocket) {
	h.release(sock)
	sock.rx = sock.rx[:0]
	sock.rxPending = nil
	sock.datagrams = nil
}

// release stops the socket's goroutines and closes its connection. Data
// already received stays readable.
func (h *HostStack) release(sock *hostSocket) {
	if sock.conn != nil {
		close(sock.done)
		_ = sock.conn.Close()
		sock.conn = nil
	}
	if sock.dialCh != nil {
		ch := sock.dialCh
		sock.dialCh = nil
		go func() {
			if r := <-ch; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
	}

	sock.tx = nil
	sock.txBytes = 0
}

// drainInbox moves received data into the socket buffers, bounded by their capacity.
func (h *HostStack) drainInbox(sock *hostSocket) bool {
	moved := false

	if sock.proto == UDP {
		for len(sock.datagrams) < h.config.DatagramQueueDepth {
			select {
			case d := <-sock.inbox:
				sock.datagrams = append(sock.datagrams, d)
				moved = true
			default:
				return moved
			}
		}
		return moved
	}

	for {
		if len(sock.rxPending) == 0 {
			select {
			case chunk := <-sock.inbox:
				sock.rxPending = chunk
			default:
				return moved
			}
		}

		free := h.config.RxBufferSize - len(sock.rx)
		if free <= 0 {
			return moved
		}
		n := min(free, len(sock.rxPending))
		sock.rx = append(sock.rx, sock.rxPending[:n]...)
		sock.rxPending = sock.rxPending[n:]
		moved = true
	}
}

// flush hands queued transmit chunks to the write goroutine.
func (h *HostStack) flush(sock *hostSocket) bool {
	moved := false
	for len(sock.tx) > 0 {
		select {
		case sock.outbox <- sock.tx[0]:
			sock.txBytes -= len(sock.tx[0])
			sock.tx[0] = nil
			sock.tx = sock.tx[1:]
			moved = true
		default:
			return moved
		}
	}
	return moved
}

func (h *HostStack) setState(s Socket, sock *hostSocket, state socketState, reason string) {
	old := sock.state
	sock.state = state
	h.logState(s, sock, old.String(), state.String(), reason)
}

func (h *HostStack) logState(s Socket, sock *hostSocket, oldState, newState, reason string) {
	event := log.Event{
		Timestamp: time.Now(),
		ClientID:  fmt.Sprintf("socket-%d", s),
		Layer:     log.LayerStack,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySocket,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	}
	if sock.remote.IsValid() {
		event.RemoteAddr = sock.remote.String()
	}
	h.logger.Log(event)
}

// readLoop performs blocking reads and forwards data to the socket inbox.
func readLoop(conn net.Conn, proto Protocol, inbox chan<- []byte, errCh chan<- error, done <-chan struct{}) {
	for {
		buf := make([]byte, readChunkSize)
		n, err := conn.Read(buf)
		if n > 0 {
			select {
			case inbox <- buf[:n]:
			case <-done:
				return
			}
		}
		if err != nil {
			if ignorable(proto, err) {
				continue
			}
			select {
			case errCh <- err:
			default:
			}
			return
		}
	}
}

// writeLoop performs blocking writes of chunks handed over by Poll.
func writeLoop(conn net.Conn, proto Protocol, outbox <-chan []byte, errCh chan<- error, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case b := <-outbox:
			if _, err := conn.Write(b); err != nil && !ignorable(proto, err) {
				select {
				case errCh <- err:
				default:
				}
				return
			}
		}
	}
}

// ignorable reports whether err is a transient condition of connected UDP
// sockets (an ICMP port unreachable from a peer that is not listening yet).
func ignorable(proto Protocol, err error) bool {
	return proto == UDP && errors.Is(err, syscall.ECONNREFUSED)
}

// Compile-time interface satisfaction check.
var _ Stack = (*HostStack)(nil)
