package pubsub

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sinara-hw/stabilizer-go/pkg/transport"
	"github.com/sinara-hw/stabilizer-go/pkg/wire"
)

// ErrConnClosed indicates the connection was closed.
var ErrConnClosed = errors.New("connection closed")

// Handler receives publications matching a subscription. Handlers run on the
// connection's receive goroutine and must not block.
type Handler func(Message)

type subscription struct {
	filter  string
	handler Handler
}

// Conn is a blocking publish/subscribe client for host tools.
type Conn struct {
	conn     net.Conn
	clientID string
	writer   *transport.FrameWriter
	reader   *transport.FrameReader

	mu      sync.Mutex
	subs    []subscription
	pending map[uint16]chan wire.ReturnCode
	nextID  uint16
	err     error

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the broker at addr and completes the Connect handshake.
func Dial(ctx context.Context, addr, clientID string) (*Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial broker: %w", err)
	}

	c := &Conn{
		conn:     nc,
		clientID: clientID,
		writer:   transport.NewFrameWriter(nc),
		reader:   transport.NewFrameReader(nc),
		pending:  make(map[uint16]chan wire.ReturnCode),
		done:     make(chan struct{}),
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = nc.SetDeadline(deadline)
	}
	if err := c.handshake(); err != nil {
		_ = nc.Close()
		return nil, err
	}
	_ = nc.SetDeadline(time.Time{})

	go c.readLoop()
	return c, nil
}

func (c *Conn) handshake() error {
	if err := c.send(wire.Connect(c.clientID, 0)); err != nil {
		return err
	}
	frame, err := c.reader.ReadFrame()
	if err != nil {
		return fmt.Errorf("failed to read connack: %w", err)
	}
	pkt, err := wire.DecodePacket(frame)
	if err != nil {
		return err
	}
	if pkt.Type != wire.PacketConnAck {
		return fmt.Errorf("expected CONNACK, got %s", pkt.Type)
	}
	if pkt.Code != wire.CodeAccepted {
		return fmt.Errorf("broker rejected connection: %s", pkt.Code)
	}
	return nil
}

// ClientID returns the client id presented to the broker.
func (c *Conn) ClientID() string {
	return c.clientID
}

// Subscribe registers handler for filter and waits for the broker's acknowledgement.
func (c *Conn) Subscribe(ctx context.Context, filter string, handler Handler) error {
	ack := make(chan wire.ReturnCode, 1)

	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return c.err
	}
	c.nextID++
	if c.nextID == 0 {
		c.nextID = 1
	}
	id := c.nextID
	c.pending[id] = ack
	c.subs = append(c.subs, subscription{filter: filter, handler: handler})
	c.mu.Unlock()

	if err := c.send(wire.Subscribe(id, filter)); err != nil {
		return err
	}

	select {
	case code := <-ack:
		if code != wire.CodeAccepted {
			return fmt.Errorf("subscribe %q rejected: %s", filter, code)
		}
		return nil
	case <-c.done:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish sends a publication with a raw payload.
func (c *Conn) Publish(topic string, payload []byte, retain bool) error {
	return c.send(wire.Publish(topic, payload, retain))
}

// PublishValue CBOR-encodes v and publishes it.
func (c *Conn) PublishValue(topic string, v any, retain bool) error {
	payload, err := wire.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	return c.Publish(topic, payload, retain)
}

// Done is closed when the connection terminates.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns the reason the connection terminated, or nil while it is open.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close sends Disconnect and closes the connection.
func (c *Conn) Close() error {
	_ = c.send(wire.Control(wire.PacketDisconnect))
	c.shutdown(ErrConnClosed)
	<-c.done
	return nil
}

func (c *Conn) send(pkt *wire.Packet) error {
	data, err := wire.EncodePacket(pkt)
	if err != nil {
		return err
	}
	if err := c.writer.WriteFrame(data); err != nil {
		return fmt.Errorf("failed to send %s: %w", pkt.Type, err)
	}
	return nil
}

func (c *Conn) shutdown(reason error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		if c.err == nil {
			c.err = reason
		}
		c.mu.Unlock()
		_ = c.conn.Close()
	})
}

func (c *Conn) readLoop() {
	defer close(c.done)

	for {
		frame, err := c.reader.ReadFrame()
		if err != nil {
			c.shutdown(fmt.Errorf("%w: %v", ErrConnClosed, err))
			return
		}
		pkt, err := wire.DecodePacket(frame)
		if err != nil {
			c.shutdown(err)
			return
		}

		switch pkt.Type {
		case wire.PacketPublish:
			c.dispatch(Message{Topic: pkt.Topic, Payload: pkt.Payload, Retain: pkt.Retain})
		case wire.PacketSubAck:
			c.mu.Lock()
			ack, ok := c.pending[pkt.PacketID]
			delete(c.pending, pkt.PacketID)
			c.mu.Unlock()
			if ok {
				ack <- pkt.Code
			}
		case wire.PacketPing:
			_ = c.send(wire.Control(wire.PacketPong))
		case wire.PacketDisconnect:
			c.shutdown(ErrConnClosed)
			return
		}
	}
}

func (c *Conn) dispatch(msg Message) {
	c.mu.Lock()
	var handlers []Handler
	for _, sub := range c.subs {
		if wire.MatchTopic(sub.filter, msg.Topic) {
			handlers = append(handlers, sub.handler)
		}
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(msg)
	}
}
