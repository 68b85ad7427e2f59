// Package mock provides in-memory collaborators for testing network clients:
// a socket stack whose peer is the test, a broker peer that speaks the wire
// protocol over it, and a manually advanced clock.
package mock

import (
	"bytes"
	"errors"
	"net/netip"
	"sync"
	"time"

	"github.com/sinara-hw/stabilizer-go/pkg/netstack"
)

// ErrInjected is the error returned by operations configured to fail.
var ErrInjected = errors.New("injected failure")

// Socket is the test-visible state of one mock socket.
type Socket struct {
	// Proto is the protocol the socket was opened with.
	Proto netstack.Protocol

	// Remote is the address passed to Connect.
	Remote netip.AddrPort

	// Open reports whether the handle is allocated.
	Open bool

	// Connected reports whether the socket is established.
	Connected bool

	// Out holds TCP bytes sent by the client.
	Out []byte

	// Datagrams holds UDP datagrams sent by the client.
	Datagrams [][]byte

	// In holds bytes waiting to be received by the client.
	In []byte
}

// Stack is an in-memory netstack.Stack. Connections succeed immediately
// unless Refuse is set. Stack is safe for concurrent use so tests may inspect
// it while a client polls.
type Stack struct {
	mu sync.Mutex

	// MaxSockets bounds the allocated sockets (default 8).
	MaxSockets int

	// Refuse leaves connecting sockets unconnected.
	Refuse bool

	// SendErr, when set, is returned by every Send.
	SendErr error

	// PollChanged and PollErr are returned by Poll.
	PollChanged bool
	PollErr     error

	sockets    []*Socket
	polls      int
	linkResets int
	ops        []string
}

// NewStack creates an empty mock stack.
func NewStack() *Stack {
	return &Stack{MaxSockets: 8}
}

func (s *Stack) record(op string) {
	s.ops = append(s.ops, op)
}

// Open implements netstack.Stack.
func (s *Stack) Open(proto netstack.Protocol) (netstack.Socket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("open")

	for i, sock := range s.sockets {
		if !sock.Open {
			s.sockets[i] = &Socket{Proto: proto, Open: true}
			return netstack.Socket(i), nil
		}
	}
	max := s.MaxSockets
	if max == 0 {
		max = 8
	}
	if len(s.sockets) >= max {
		return 0, netstack.ErrNoSockets
	}
	s.sockets = append(s.sockets, &Socket{Proto: proto, Open: true})
	return netstack.Socket(len(s.sockets) - 1), nil
}

func (s *Stack) get(h netstack.Socket) (*Socket, error) {
	if int(h) >= len(s.sockets) || !s.sockets[h].Open {
		return nil, netstack.ErrInvalidSocket
	}
	return s.sockets[h], nil
}

// Connect implements netstack.Stack.
func (s *Stack) Connect(h netstack.Socket, remote netip.AddrPort) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("connect")

	sock, err := s.get(h)
	if err != nil {
		return err
	}
	if !netstack.ValidRemote(remote) {
		return netstack.ErrInvalidRemote
	}
	sock.Remote = remote
	sock.Connected = !s.Refuse
	return nil
}

// IsConnected implements netstack.Stack.
func (s *Stack) IsConnected(h netstack.Socket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("is_connected")

	sock, err := s.get(h)
	return err == nil && sock.Connected
}

// Send implements netstack.Stack.
func (s *Stack) Send(h netstack.Socket, data []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("send")

	sock, err := s.get(h)
	if err != nil {
		return 0, err
	}
	if !sock.Connected {
		return 0, netstack.ErrNotConnected
	}
	if s.SendErr != nil {
		return 0, s.SendErr
	}
	if sock.Proto == netstack.UDP {
		sock.Datagrams = append(sock.Datagrams, bytes.Clone(data))
	} else {
		sock.Out = append(sock.Out, data...)
	}
	return len(data), nil
}

// Receive implements netstack.Stack.
func (s *Stack) Receive(h netstack.Socket, buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("receive")

	sock, err := s.get(h)
	if err != nil {
		return 0, err
	}
	if len(sock.In) == 0 {
		if sock.Connected {
			return 0, netstack.ErrWouldBlock
		}
		return 0, netstack.ErrNotConnected
	}
	n := copy(buf, sock.In)
	sock.In = sock.In[n:]
	return n, nil
}

// Close implements netstack.Stack.
func (s *Stack) Close(h netstack.Socket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("close")

	sock, err := s.get(h)
	if err != nil {
		return err
	}
	sock.Open = false
	sock.Connected = false
	sock.In = nil
	return nil
}

// Poll implements netstack.Stack.
func (s *Stack) Poll(time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("poll")

	s.polls++
	return s.PollChanged, s.PollErr
}

// HandleLinkReset implements netstack.Stack.
func (s *Stack) HandleLinkReset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("link_reset")

	s.linkResets++
	for _, sock := range s.sockets {
		sock.Connected = false
	}
}

// Polls returns the number of Poll calls.
func (s *Stack) Polls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

// LinkResets returns the number of HandleLinkReset calls.
func (s *Stack) LinkResets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.linkResets
}

// Ops returns the names of all operations in call order and clears the record.
func (s *Stack) Ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops := s.ops
	s.ops = nil
	return ops
}

// With runs fn with exclusive access to the socket table, e.g. to inject data.
func (s *Stack) With(fn func(sockets []*Socket)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.sockets)
}

// Find returns the open socket of proto connected to remote, if any.
func (s *Stack) Find(proto netstack.Protocol, remote netip.AddrPort) (netstack.Socket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sock := range s.sockets {
		if sock.Open && sock.Proto == proto && sock.Remote == remote {
			return netstack.Socket(i), true
		}
	}
	return 0, false
}

// Drop disconnects every socket connected to remote, as a peer closing would.
func (s *Stack) Drop(remote netip.AddrPort) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sock := range s.sockets {
		if sock.Remote == remote {
			sock.Connected = false
		}
	}
}

// TakeDatagrams returns and clears the UDP datagrams sent to remote.
func (s *Stack) TakeDatagrams(remote netip.AddrPort) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out [][]byte
	for _, sock := range s.sockets {
		if sock.Proto == netstack.UDP && sock.Remote == remote {
			out = append(out, sock.Datagrams...)
			sock.Datagrams = nil
		}
	}
	return out
}

var _ netstack.Stack = (*Stack)(nil)
