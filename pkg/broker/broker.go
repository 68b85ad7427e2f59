package broker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/sinara-hw/stabilizer-go/pkg/log"
	"github.com/sinara-hw/stabilizer-go/pkg/transport"
	"github.com/sinara-hw/stabilizer-go/pkg/wire"
)

// Defaults applied by New.
const (
	DefaultAddress        = ":1883"
	DefaultMaxConnections = 64
	DefaultConnectTimeout = 5 * time.Second
	DefaultOutboxDepth    = 256
)

// ErrNotRunning is returned when publishing on a stopped broker.
var ErrNotRunning = errors.New("broker not running")

// Config configures a Broker.
type Config struct {
	// Address to listen on (e.g., ":1883" or "127.0.0.1:0").
	Address string

	// MaxConnections bounds the number of connected clients.
	MaxConnections int

	// MaxMessageSize is the largest accepted frame (default: 64KB).
	MaxMessageSize uint32

	// ConnectTimeout bounds the wait for the Connect packet.
	ConnectTimeout time.Duration

	// OutboxDepth is the number of frames queued per client before
	// publications to that client are dropped.
	OutboxDepth int

	// Logger for protocol logging (optional).
	Logger log.Logger
}

func (c *Config) applyDefaults() {
	if c.Address == "" {
		c.Address = DefaultAddress
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = DefaultMaxConnections
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = transport.DefaultMaxMessageSize
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.OutboxDepth <= 0 {
		c.OutboxDepth = DefaultOutboxDepth
	}
}

// Stats are cumulative broker counters.
type Stats struct {
	Clients   int
	Retained  int
	Accepted  uint64
	Rejected  uint64
	Received  uint64
	Delivered uint64
	Dropped   uint64
}

// Broker routes publications between connected clients.
type Broker struct {
	config   Config
	logger   log.Logger
	listener net.Listener

	// Connected clients by connection id and by client id.
	conns     *xsync.MapOf[string, *client]
	clientIDs *xsync.MapOf[string, *client]
	retained  *xsync.MapOf[string, []byte]

	accepted  atomic.Uint64
	rejected  atomic.Uint64
	received  atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a broker. Call Start to begin accepting clients.
func New(config Config) *Broker {
	config.applyDefaults()
	return &Broker{
		config:    config,
		logger:    log.OrNoop(config.Logger),
		conns:     xsync.NewMapOf[string, *client](),
		clientIDs: xsync.NewMapOf[string, *client](),
		retained:  xsync.NewMapOf[string, []byte](),
	}
}

// Start listens on the configured address and begins accepting clients.
func (b *Broker) Start(ctx context.Context) error {
	if b.running.Load() {
		return fmt.Errorf("broker already running")
	}

	listener, err := net.Listen("tcp", b.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	b.listener = listener
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.running.Store(true)

	b.wg.Add(1)
	go b.acceptLoop()

	return nil
}

// Stop closes the listener and disconnects every client.
func (b *Broker) Stop() error {
	if !b.running.Swap(false) {
		return nil
	}
	b.cancel()
	err := b.listener.Close()

	b.conns.Range(func(_ string, c *client) bool {
		c.close()
		return true
	})
	b.wg.Wait()

	return err
}

// Addr returns the listen address, or nil before Start.
func (b *Broker) Addr() net.Addr {
	if b.listener != nil {
		return b.listener.Addr()
	}
	return nil
}

// ClientIDs returns the sorted ids of connected clients.
func (b *Broker) ClientIDs() []string {
	ids := make([]string, 0, b.clientIDs.Size())
	b.clientIDs.Range(func(id string, _ *client) bool {
		ids = append(ids, id)
		return true
	})
	sort.Strings(ids)
	return ids
}

// Retained returns the retained payload for topic.
func (b *Broker) Retained(topic string) ([]byte, bool) {
	return b.retained.Load(topic)
}

// Stats returns a snapshot of the broker counters.
func (b *Broker) Stats() Stats {
	return Stats{
		Clients:   b.clientIDs.Size(),
		Retained:  b.retained.Size(),
		Accepted:  b.accepted.Load(),
		Rejected:  b.rejected.Load(),
		Received:  b.received.Load(),
		Delivered: b.delivered.Load(),
		Dropped:   b.dropped.Load(),
	}
}

// Publish injects a publication as if a client had sent it.
func (b *Broker) Publish(topic string, payload []byte, retain bool) error {
	if !b.running.Load() {
		return ErrNotRunning
	}
	pkt := wire.Publish(topic, payload, retain)
	if err := pkt.Validate(); err != nil {
		return err
	}
	return b.route(pkt)
}

func (b *Broker) acceptLoop() {
	defer b.wg.Done()

	for b.running.Load() {
		conn, err := b.listener.Accept()
		if err != nil {
			if b.running.Load() {
				b.logError("", "accept", err)
			}
			continue
		}

		b.wg.Add(1)
		go b.handleConnection(conn)
	}
}

func (b *Broker) handleConnection(conn net.Conn) {
	defer b.wg.Done()

	c := &client{
		broker: b,
		conn:   conn,
		connID: uuid.New().String(),
		remote: conn.RemoteAddr().String(),
		writer: transport.NewFrameWriterWithMaxSize(conn, b.config.MaxMessageSize),
		reader: transport.NewFrameReaderWithMaxSize(conn, b.config.MaxMessageSize),
		outbox: make(chan []byte, b.config.OutboxDepth),
		done:   make(chan struct{}),
	}

	b.conns.Store(c.connID, c)
	if !b.handshake(c) {
		b.conns.Delete(c.connID)
		c.close()
		return
	}
	if prev, loaded := b.clientIDs.LoadAndStore(c.clientID, c); loaded {
		prev.close()
		b.logState(prev, "CONNECTED", "DISCONNECTED", "taken over")
	}
	b.accepted.Add(1)
	b.logState(c, "", "CONNECTED", "")

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		c.writeLoop()
	}()

	c.readLoop()
	c.close()

	b.conns.Delete(c.connID)
	b.clientIDs.Compute(c.clientID, func(current *client, loaded bool) (*client, bool) {
		return current, loaded && current == c
	})
	b.logState(c, "CONNECTED", "DISCONNECTED", "")
}

// handshake waits for Connect and answers it. It reports whether the
// client was accepted.
func (b *Broker) handshake(c *client) bool {
	_ = c.conn.SetReadDeadline(time.Now().Add(b.config.ConnectTimeout))
	frame, err := c.reader.ReadFrame()
	if err != nil {
		b.rejected.Add(1)
		b.logError(c.connID, "handshake", err)
		return false
	}
	_ = c.conn.SetReadDeadline(time.Time{})

	pkt, err := wire.DecodePacket(frame)
	if err != nil || pkt.Type != wire.PacketConnect {
		b.rejected.Add(1)
		_ = c.write(wire.ConnAck(wire.CodeBadClientID))
		if err == nil {
			err = fmt.Errorf("expected CONNECT, got %s", pkt.Type)
		}
		b.logError(c.connID, "handshake", err)
		return false
	}
	b.logPacket(c.connID, log.DirectionIn, pkt)
	c.clientID = pkt.ClientID
	c.keepAlive = time.Duration(pkt.KeepAlive) * time.Second

	if _, taken := b.clientIDs.Load(c.clientID); !taken && b.clientIDs.Size() >= b.config.MaxConnections {
		b.rejected.Add(1)
		_ = c.write(wire.ConnAck(wire.CodeUnavailable))
		b.logError(c.clientID, "handshake", fmt.Errorf("connection limit %d reached", b.config.MaxConnections))
		return false
	}

	if err := c.write(wire.ConnAck(wire.CodeAccepted)); err != nil {
		b.rejected.Add(1)
		b.logError(c.clientID, "handshake", err)
		return false
	}
	b.logPacket(c.clientID, log.DirectionOut, wire.ConnAck(wire.CodeAccepted))
	return true
}

// route stores retained state and fans pkt out to every matching client.
func (b *Broker) route(pkt *wire.Packet) error {
	b.received.Add(1)
	if pkt.Retain {
		if len(pkt.Payload) == 0 {
			b.retained.Delete(pkt.Topic)
		} else {
			b.retained.Store(pkt.Topic, pkt.Payload)
		}
	}

	frame, err := encodeFrame(pkt, b.config.MaxMessageSize)
	if err != nil {
		return err
	}
	b.clientIDs.Range(func(_ string, c *client) bool {
		if c.matches(pkt.Topic) {
			b.deliver(c, frame)
		}
		return true
	})
	return nil
}

func (b *Broker) deliver(c *client, frame []byte) {
	if c.enqueue(frame) {
		b.delivered.Add(1)
		return
	}
	b.dropped.Add(1)
}

// replayRetained sends retained publications matching filter to c.
func (b *Broker) replayRetained(c *client, filter string) {
	b.retained.Range(func(topic string, payload []byte) bool {
		if !wire.MatchTopic(filter, topic) {
			return true
		}
		frame, err := encodeFrame(wire.Publish(topic, payload, true), b.config.MaxMessageSize)
		if err != nil {
			b.logError(c.clientID, "retained "+topic, err)
			return true
		}
		b.deliver(c, frame)
		return true
	})
}

func encodeFrame(pkt *wire.Packet, maxSize uint32) ([]byte, error) {
	data, err := wire.EncodePacket(pkt)
	if err != nil {
		return nil, err
	}
	return transport.AppendFrame(nil, data, maxSize)
}

func (b *Broker) logPacket(clientID string, dir log.Direction, pkt *wire.Packet) {
	b.logger.Log(log.Event{
		Timestamp: time.Now(),
		ClientID:  clientID,
		Direction: dir,
		Layer:     log.LayerBroker,
		Category:  log.CategoryMessage,
		Topic:     pkt.Topic,
		Message: &log.MessageEvent{
			Type:        pkt.Type.String(),
			PayloadSize: len(pkt.Payload),
			Retain:      pkt.Retain,
		},
	})
}

func (b *Broker) logState(c *client, oldState, newState, reason string) {
	b.logger.Log(log.Event{
		Timestamp:  time.Now(),
		ClientID:   c.clientID,
		Layer:      log.LayerBroker,
		Category:   log.CategoryState,
		RemoteAddr: c.remote,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySession,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (b *Broker) logError(clientID, op string, err error) {
	b.logger.Log(log.Event{
		Timestamp: time.Now(),
		ClientID:  clientID,
		Layer:     log.LayerBroker,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerBroker,
			Message: err.Error(),
			Context: op,
		},
	})
}
