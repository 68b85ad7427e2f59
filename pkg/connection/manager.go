package connection

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultDialTimeout bounds a single reconnection attempt.
const DefaultDialTimeout = 10 * time.Second

// ErrManagerClosed is returned by Start after Close.
var ErrManagerClosed = errors.New("connection manager closed")

// State represents the connection state.
type State uint8

const (
	// StateDisconnected indicates no active connection.
	StateDisconnected State = iota

	// StateConnecting indicates the first connection attempt is in progress.
	StateConnecting

	// StateConnected indicates an active connection.
	StateConnected

	// StateReconnecting indicates the connection dropped and is being redialed.
	StateReconnecting

	// StateClosed indicates the manager has been closed.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// DialFunc establishes a connection. The returned channel is closed when the
// connection drops.
type DialFunc func(ctx context.Context) (<-chan struct{}, error)

// Manager keeps a blocking connection of a host tool alive. After the first
// successful dial it redials with backoff whenever the connection drops.
type Manager struct {
	dial        DialFunc
	backoff     *Backoff
	dialTimeout time.Duration

	mu            sync.Mutex
	state         State
	onStateChange func(oldState, newState State)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a manager for dial using the given backoff.
func NewManager(dial DialFunc, config BackoffConfig) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		dial:        dial,
		backoff:     NewBackoffWithConfig(config),
		dialTimeout: DefaultDialTimeout,
		state:       StateDisconnected,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnStateChange sets a callback for state changes. It runs on the goroutine
// that changed the state.
func (m *Manager) OnStateChange(fn func(oldState, newState State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// Start dials once. On success the connection is supervised in the
// background until Close.
func (m *Manager) Start(ctx context.Context) error {
	if !m.setState(StateConnecting) {
		return ErrManagerClosed
	}

	done, err := m.dial(ctx)
	if err != nil {
		m.setState(StateDisconnected)
		return err
	}
	m.setState(StateConnected)

	m.wg.Add(1)
	go m.supervise(done)
	return nil
}

// Attempts returns the number of redials since the last successful one.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backoff.Attempts()
}

// Close stops supervision. It does not close the current connection.
func (m *Manager) Close() {
	m.setState(StateClosed)
	m.cancel()
	m.wg.Wait()
}

// setState records a transition and reports whether it was made. Nothing
// leaves StateClosed.
func (m *Manager) setState(state State) bool {
	m.mu.Lock()
	old := m.state
	if old == StateClosed {
		m.mu.Unlock()
		return false
	}
	m.state = state
	fn := m.onStateChange
	m.mu.Unlock()

	if fn != nil && old != state {
		fn(old, state)
	}
	return true
}

func (m *Manager) supervise(done <-chan struct{}) {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-done:
		}

		if !m.setState(StateReconnecting) {
			return
		}
		next, ok := m.redial()
		if !ok {
			return
		}
		done = next
	}
}

// redial retries until a dial succeeds or the manager closes.
func (m *Manager) redial() (<-chan struct{}, bool) {
	for {
		m.mu.Lock()
		delay := m.backoff.Next()
		m.mu.Unlock()

		select {
		case <-m.ctx.Done():
			return nil, false
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(m.ctx, m.dialTimeout)
		done, err := m.dial(ctx)
		cancel()
		if err != nil {
			continue
		}

		m.mu.Lock()
		m.backoff.Reset()
		m.mu.Unlock()
		if !m.setState(StateConnected) {
			return nil, false
		}
		return done, true
	}
}
