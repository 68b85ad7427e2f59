package shared

import (
	"errors"
	"fmt"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/sinara-hw/stabilizer-go/pkg/netstack"
)

// ErrStackContention indicates two operations tried to use the stack at once.
var ErrStackContention = errors.New("network stack contention")

// ContentionError describes a stack contention.
type ContentionError struct {
	// Holder is the operation that held the stack.
	Holder string

	// Requester is the operation that tried to enter.
	Requester string
}

// Error implements error.
func (e *ContentionError) Error() string {
	return fmt.Sprintf("%s: %s requested while %s in progress", ErrStackContention, e.Requester, e.Holder)
}

// Unwrap returns ErrStackContention.
func (e *ContentionError) Unwrap() error {
	return ErrStackContention
}

// Stats reports Manager activity.
type Stats struct {
	// Operations is the number of stack operations routed through proxies.
	Operations uint64

	// Proxies is the number of proxies handed out.
	Proxies uint64
}

// Manager owns the network stack for its lifetime.
type Manager struct {
	stack   netstack.Stack
	busy    atomic.Bool
	holder  atomic.Pointer[string]
	ops     atomic.Uint64
	proxies atomic.Uint64
}

// NewManager takes exclusive ownership of stack. The caller must not use the
// stack directly afterwards, nor hand it to a second Manager: the guard only
// sees operations routed through its own proxies.
func NewManager(stack netstack.Stack) *Manager {
	return &Manager{stack: stack}
}

// AcquireStack returns a new proxy for the managed stack.
func (m *Manager) AcquireStack() Proxy {
	m.proxies.Add(1)
	return Proxy{m: m}
}

// Stats returns a snapshot of the manager counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Operations: m.ops.Load(),
		Proxies:    m.proxies.Load(),
	}
}

// enter marks op as in progress. It panics if another operation holds the stack.
func (m *Manager) enter(op string) {
	if !m.busy.CompareAndSwap(false, true) {
		holder := "unknown operation"
		if h := m.holder.Load(); h != nil {
			holder = *h
		}
		panic(&ContentionError{Holder: holder, Requester: op})
	}
	m.holder.Store(&op)
	m.ops.Add(1)
}

func (m *Manager) leave() {
	m.holder.Store(nil)
	m.busy.Store(false)
}

// Proxy is a handle to the managed stack. The zero value is not usable;
// obtain proxies from Manager.AcquireStack.
type Proxy struct {
	m *Manager
}

// Open implements netstack.Stack.
func (p Proxy) Open(proto netstack.Protocol) (netstack.Socket, error) {
	p.m.enter("open")
	defer p.m.leave()
	return p.m.stack.Open(proto)
}

// Connect implements netstack.Stack.
func (p Proxy) Connect(s netstack.Socket, remote netip.AddrPort) error {
	p.m.enter("connect")
	defer p.m.leave()
	return p.m.stack.Connect(s, remote)
}

// IsConnected implements netstack.Stack.
func (p Proxy) IsConnected(s netstack.Socket) bool {
	p.m.enter("is_connected")
	defer p.m.leave()
	return p.m.stack.IsConnected(s)
}

// Send implements netstack.Stack.
func (p Proxy) Send(s netstack.Socket, data []byte) (int, error) {
	p.m.enter("send")
	defer p.m.leave()
	return p.m.stack.Send(s, data)
}

// Receive implements netstack.Stack.
func (p Proxy) Receive(s netstack.Socket, buf []byte) (int, error) {
	p.m.enter("receive")
	defer p.m.leave()
	return p.m.stack.Receive(s, buf)
}

// Close implements netstack.Stack.
func (p Proxy) Close(s netstack.Socket) error {
	p.m.enter("close")
	defer p.m.leave()
	return p.m.stack.Close(s)
}

// Poll implements netstack.Stack.
func (p Proxy) Poll(now time.Time) (bool, error) {
	p.m.enter("poll")
	defer p.m.leave()
	return p.m.stack.Poll(now)
}

// HandleLinkReset implements netstack.Stack.
func (p Proxy) HandleLinkReset() {
	p.m.enter("link_reset")
	defer p.m.leave()
	p.m.stack.HandleLinkReset()
}

// Compile-time interface satisfaction check.
var _ netstack.Stack = Proxy{}
