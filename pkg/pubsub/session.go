package pubsub

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/sinara-hw/stabilizer-go/pkg/connection"
	"github.com/sinara-hw/stabilizer-go/pkg/log"
	"github.com/sinara-hw/stabilizer-go/pkg/netstack"
	"github.com/sinara-hw/stabilizer-go/pkg/transport"
	"github.com/sinara-hw/stabilizer-go/pkg/wire"
)

// Session defaults.
const (
	// DefaultConnectTimeout bounds the TCP connect and ConnAck wait.
	DefaultConnectTimeout = 5 * time.Second

	// DefaultMaxPacketSize is the largest packet a session sends or accepts.
	DefaultMaxPacketSize = 4096

	// DefaultMaxPending bounds the outbound bytes queued while the stack is busy.
	DefaultMaxPending = 16384

	// DefaultInboxDepth is the number of received publications kept for the owner.
	DefaultInboxDepth = 32
)

// Session errors.
var (
	// ErrNotConnected indicates the session has no accepted broker connection.
	ErrNotConnected = errors.New("session not connected")

	// ErrBacklog indicates the outbound queue is full.
	ErrBacklog = errors.New("outbound queue full")
)

// State is the session lifecycle state.
type State uint8

const (
	// StateDisconnected means no connection; an attempt is made once the backoff expires.
	StateDisconnected State = iota

	// StateConnecting means the TCP connection is being established.
	StateConnecting

	// StateAwaitingConnAck means Connect was sent and the broker has not answered yet.
	StateAwaitingConnAck

	// StateConnected means the broker accepted the session.
	StateConnected
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateAwaitingConnAck:
		return "AWAITING_CONNACK"
	case StateConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Message is a received publication.
type Message struct {
	Topic   string
	Payload []byte
	Retain  bool
}

// SessionConfig configures a Session.
type SessionConfig struct {
	// ClientID identifies the session at the broker.
	ClientID string

	// Broker is the broker address.
	Broker netip.AddrPort

	// KeepAlive configures ping scheduling.
	KeepAlive transport.KeepAliveConfig

	// Backoff configures reconnection delays.
	Backoff connection.BackoffConfig

	// ConnectTimeout bounds the TCP connect and the ConnAck wait.
	ConnectTimeout time.Duration

	// MaxPacketSize is the largest packet sent or accepted.
	MaxPacketSize int

	// MaxPending bounds the queued outbound bytes.
	MaxPending int

	// InboxDepth bounds the received publications awaiting Next.
	InboxDepth int

	// Logger receives protocol events (optional).
	Logger log.Logger
}

func (c *SessionConfig) applyDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.MaxPacketSize <= 0 {
		c.MaxPacketSize = DefaultMaxPacketSize
	}
	if c.MaxPending <= 0 {
		c.MaxPending = DefaultMaxPending
	}
	if c.InboxDepth <= 0 {
		c.InboxDepth = DefaultInboxDepth
	}
}

// Session is a polled publish/subscribe client running over a netstack.Stack.
// It is not safe for concurrent use.
type Session struct {
	stack  netstack.Stack
	clock  netstack.Clock
	config SessionConfig
	logger log.Logger

	state   State
	sock    netstack.Socket
	hasSock bool
	since   time.Time

	decoder   *transport.FrameDecoder
	rxBuf     []byte
	tx        []byte
	keepAlive *transport.KeepAlive
	backoff   *connection.Backoff

	filters  []string
	nextID   uint16
	inbox    []Message
	dropped  uint64
	connects uint64
}

// NewSession creates a session. It does not touch the stack until polled.
func NewSession(stack netstack.Stack, clock netstack.Clock, config SessionConfig) (*Session, error) {
	if config.ClientID == "" {
		return nil, errors.New("client id is required")
	}
	if !netstack.ValidRemote(config.Broker) {
		return nil, fmt.Errorf("%w: broker %s", netstack.ErrInvalidRemote, config.Broker)
	}
	config.applyDefaults()

	return &Session{
		stack:     stack,
		clock:     clock,
		config:    config,
		logger:    log.OrNoop(config.Logger),
		decoder:   transport.NewFrameDecoder(uint32(config.MaxPacketSize)),
		rxBuf:     make([]byte, config.MaxPacketSize),
		keepAlive: transport.NewKeepAlive(config.KeepAlive),
		backoff:   connection.NewBackoffWithConfig(config.Backoff),
	}, nil
}

// ClientID returns the session client id.
func (s *Session) ClientID() string {
	return s.config.ClientID
}

// State returns the current session state.
func (s *Session) State() State {
	return s.state
}

// IsConnected reports whether the broker accepted the session.
func (s *Session) IsConnected() bool {
	return s.state == StateConnected
}

// Connects returns the number of accepted sessions since creation.
func (s *Session) Connects() uint64 {
	return s.connects
}

// Dropped returns the number of received publications discarded because the
// inbox was full.
func (s *Session) Dropped() uint64 {
	return s.dropped
}

// Subscribe registers a topic filter. Filters persist across reconnects.
func (s *Session) Subscribe(filter string) error {
	if !wire.ValidFilter(filter) {
		return fmt.Errorf("invalid filter %q", filter)
	}
	for _, f := range s.filters {
		if f == filter {
			return nil
		}
	}
	s.filters = append(s.filters, filter)

	if s.state == StateConnected {
		return s.queue(wire.Subscribe(s.packetID(), filter))
	}
	return nil
}

// Publish queues a publication. It fails with ErrNotConnected while the
// session is down; publications are not buffered across reconnects.
func (s *Session) Publish(topic string, payload []byte, retain bool) error {
	if s.state != StateConnected {
		return ErrNotConnected
	}
	return s.queue(wire.Publish(topic, payload, retain))
}

// Next pops the oldest received publication.
func (s *Session) Next() (Message, bool) {
	if len(s.inbox) == 0 {
		return Message{}, false
	}
	msg := s.inbox[0]
	s.inbox[0] = Message{}
	s.inbox = s.inbox[1:]
	return msg, true
}

// Poll advances the session. It reports whether the connection state changed
// between connected and not connected.
func (s *Session) Poll() bool {
	now := s.clock.Now()
	wasConnected := s.state == StateConnected

	switch s.state {
	case StateDisconnected:
		if s.backoff.Ready(now) {
			s.startConnect(now)
		}

	case StateConnecting:
		switch {
		case s.stack.IsConnected(s.sock):
			if err := s.queue(wire.Connect(s.config.ClientID, uint32(s.keepAlive.Config().PingInterval/time.Second))); err != nil {
				s.drop(now, err.Error())
				break
			}
			s.setState(StateAwaitingConnAck, "")
			s.since = now
			s.service(now)
		case s.connectFailed():
			s.drop(now, "connection refused")
		case now.Sub(s.since) >= s.config.ConnectTimeout:
			s.drop(now, "connect timeout")
		}

	case StateAwaitingConnAck:
		s.service(now)
		if s.state == StateAwaitingConnAck && now.Sub(s.since) >= s.config.ConnectTimeout {
			s.drop(now, "connack timeout")
		}

	case StateConnected:
		s.service(now)
		if s.state == StateConnected {
			switch s.keepAlive.Tick(now) {
			case transport.KeepAliveSendPing:
				if err := s.queue(wire.Control(wire.PacketPing)); err != nil {
					s.drop(now, err.Error())
				} else {
					s.flush(now)
				}
			case transport.KeepAliveTimeout:
				s.drop(now, "keep-alive timeout")
			}
		}
	}

	return wasConnected != (s.state == StateConnected)
}

// Disconnect closes the session gracefully. The session reconnects on the
// next Poll once the backoff expires.
func (s *Session) Disconnect() {
	if s.state == StateConnected {
		_ = s.queue(wire.Control(wire.PacketDisconnect))
		s.flush(s.clock.Now())
	}
	s.drop(s.clock.Now(), "disconnect requested")
}

func (s *Session) startConnect(now time.Time) {
	sock, err := s.stack.Open(netstack.TCP)
	if err != nil {
		s.logError("open socket", err)
		s.backoff.Schedule(now)
		return
	}
	s.sock = sock
	s.hasSock = true

	if err := s.stack.Connect(sock, s.config.Broker); err != nil {
		s.logError("connect", err)
		s.drop(now, err.Error())
		return
	}
	s.since = now
	s.setState(StateConnecting, "")
}

// connectFailed reports whether a pending TCP connect was rejected.
func (s *Session) connectFailed() bool {
	_, err := s.stack.Receive(s.sock, s.rxBuf[:0])
	return errors.Is(err, netstack.ErrNotConnected)
}

// service moves data in both directions and dispatches received packets.
func (s *Session) service(now time.Time) {
	if !s.stack.IsConnected(s.sock) {
		s.drop(now, "connection lost")
		return
	}

	for {
		n, err := s.stack.Receive(s.sock, s.rxBuf)
		if errors.Is(err, netstack.ErrWouldBlock) {
			break
		}
		if err != nil {
			s.drop(now, err.Error())
			return
		}
		if n == 0 {
			break
		}
		s.decoder.Feed(s.rxBuf[:n])
	}

	for s.hasSock {
		frame, err := s.decoder.Next()
		if err != nil {
			s.logError("decode frame", err)
			s.drop(now, "protocol error")
			return
		}
		if frame == nil {
			break
		}
		pkt, err := wire.DecodePacket(frame)
		if err != nil {
			s.logError("decode packet", err)
			s.drop(now, "protocol error")
			return
		}
		s.handle(now, pkt)
	}

	if s.hasSock {
		s.flush(now)
	}
}

func (s *Session) handle(now time.Time, pkt *wire.Packet) {
	s.logPacket(log.DirectionIn, pkt)

	switch pkt.Type {
	case wire.PacketConnAck:
		if s.state != StateAwaitingConnAck {
			return
		}
		if pkt.Code != wire.CodeAccepted {
			s.drop(now, "rejected: "+pkt.Code.String())
			return
		}
		s.setState(StateConnected, "")
		s.connects++
		s.backoff.Reset()
		s.keepAlive.Reset(now)
		if len(s.filters) > 0 {
			if err := s.queue(wire.Subscribe(s.packetID(), s.filters...)); err != nil {
				s.logError("subscribe", err)
			}
		}

	case wire.PacketSubAck:
		if pkt.Code != wire.CodeAccepted {
			s.logError("subscribe", fmt.Errorf("broker answered %s", pkt.Code))
		}

	case wire.PacketPublish:
		if len(s.inbox) >= s.config.InboxDepth {
			s.inbox[0] = Message{}
			s.inbox = s.inbox[1:]
			s.dropped++
		}
		s.inbox = append(s.inbox, Message{Topic: pkt.Topic, Payload: pkt.Payload, Retain: pkt.Retain})

	case wire.PacketPing:
		if err := s.queue(wire.Control(wire.PacketPong)); err != nil {
			s.logError("pong", err)
		}

	case wire.PacketPong:
		s.keepAlive.PongReceived(now)

	case wire.PacketDisconnect:
		s.drop(now, "broker disconnect")
	}
}

// queue encodes pkt into the outbound buffer.
func (s *Session) queue(pkt *wire.Packet) error {
	data, err := wire.EncodePacket(pkt)
	if err != nil {
		return err
	}
	if len(s.tx)+transport.LengthPrefixSize+len(data) > s.config.MaxPending {
		return ErrBacklog
	}
	tx, err := transport.AppendFrame(s.tx, data, uint32(s.config.MaxPacketSize))
	if err != nil {
		return err
	}
	s.tx = tx
	s.logPacket(log.DirectionOut, pkt)
	return nil
}

// flush hands queued bytes to the stack until it stops accepting them.
func (s *Session) flush(now time.Time) {
	for len(s.tx) > 0 {
		n, err := s.stack.Send(s.sock, s.tx)
		if errors.Is(err, netstack.ErrWouldBlock) || (err == nil && n == 0) {
			return
		}
		if err != nil {
			s.drop(now, err.Error())
			return
		}
		s.tx = append(s.tx[:0], s.tx[n:]...)
	}
}

// drop releases the connection and schedules the next attempt.
func (s *Session) drop(now time.Time, reason string) {
	if s.hasSock {
		if err := s.stack.Close(s.sock); err != nil {
			s.logError("close socket", err)
		}
		s.hasSock = false
	}
	s.decoder.Reset()
	s.tx = s.tx[:0]
	s.backoff.Schedule(now)
	if s.state != StateDisconnected {
		s.setState(StateDisconnected, reason)
	}
}

func (s *Session) packetID() uint16 {
	s.nextID++
	if s.nextID == 0 {
		s.nextID = 1
	}
	return s.nextID
}

func (s *Session) setState(state State, reason string) {
	old := s.state
	s.state = state
	s.logger.Log(log.Event{
		Timestamp:  s.clock.Now(),
		ClientID:   s.config.ClientID,
		Layer:      log.LayerPubSub,
		Category:   log.CategoryState,
		RemoteAddr: s.config.Broker.String(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySession,
			OldState: old.String(),
			NewState: state.String(),
			Reason:   reason,
		},
	})
}

func (s *Session) logPacket(dir log.Direction, pkt *wire.Packet) {
	category := log.CategoryMessage
	switch pkt.Type {
	case wire.PacketPing, wire.PacketPong, wire.PacketDisconnect:
		category = log.CategoryControl
	}
	s.logger.Log(log.Event{
		Timestamp: s.clock.Now(),
		ClientID:  s.config.ClientID,
		Direction: dir,
		Layer:     log.LayerPubSub,
		Category:  category,
		Topic:     pkt.Topic,
		Message: &log.MessageEvent{
			Type:        pkt.Type.String(),
			PayloadSize: len(pkt.Payload),
			Retain:      pkt.Retain,
		},
	})
}

func (s *Session) logError(context string, err error) {
	s.logger.Log(log.Event{
		Timestamp: s.clock.Now(),
		ClientID:  s.config.ClientID,
		Layer:     log.LayerPubSub,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerPubSub,
			Message: err.Error(),
			Context: context,
		},
	})
}
