package broker

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/sinara-hw/stabilizer-go/pkg/log"
	"github.com/sinara-hw/stabilizer-go/pkg/transport"
	"github.com/sinara-hw/stabilizer-go/pkg/wire"
)

var errDuplicateConnect = errors.New("duplicate CONNECT")

// client is one connected session.
type client struct {
	broker    *Broker
	conn      net.Conn
	connID    string
	clientID  string
	remote    string
	keepAlive time.Duration

	writer  *transport.FrameWriter
	reader  *transport.FrameReader
	writeMu sync.Mutex

	mu      sync.RWMutex
	filters []string

	outbox    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// write encodes and sends pkt immediately.
func (c *client) write(pkt *wire.Packet) error {
	data, err := wire.EncodePacket(pkt)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.writer.WriteFrame(data)
}

// enqueue queues a pre-framed publication. It reports false when the
// outbox is full or the client is gone.
func (c *client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.outbox <- frame:
		return true
	default:
		return false
	}
}

func (c *client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.outbox:
			c.writeMu.Lock()
			_, err := c.conn.Write(frame)
			c.writeMu.Unlock()
			if err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *client) matches(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, f := range c.filters {
		if wire.MatchTopic(f, topic) {
			return true
		}
	}
	return false
}

func (c *client) subscribe(filters []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
next:
	for _, f := range filters {
		for _, have := range c.filters {
			if have == f {
				continue next
			}
		}
		c.filters = append(c.filters, f)
	}
}

// idleTimeout is the read deadline derived from the announced keep-alive.
// Zero disables the deadline.
func (c *client) idleTimeout() time.Duration {
	return c.keepAlive * 3 / 2
}

func (c *client) readLoop() {
	b := c.broker
	for {
		select {
		case <-c.done:
			return
		case <-b.ctx.Done():
			return
		default:
		}

		if timeout := c.idleTimeout(); timeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
		}
		frame, err := c.reader.ReadFrame()
		if err != nil {
			select {
			case <-c.done:
			default:
				b.logError(c.clientID, "read", err)
			}
			return
		}

		pkt := new(wire.Packet)
		if err := wire.Unmarshal(frame, pkt); err != nil {
			b.logError(c.clientID, "decode", err)
			continue
		}
		b.logPacket(c.clientID, log.DirectionIn, pkt)
		if err := pkt.Validate(); err != nil {
			b.logError(c.clientID, "validate", err)
			if pkt.Type == wire.PacketSubscribe {
				c.reply(wire.SubAck(pkt.PacketID, wire.CodeBadFilter))
			}
			continue
		}

		switch pkt.Type {
		case wire.PacketSubscribe:
			c.subscribe(pkt.Filters)
			c.reply(wire.SubAck(pkt.PacketID, wire.CodeAccepted))
			for _, f := range pkt.Filters {
				b.replayRetained(c, f)
			}
		case wire.PacketPublish:
			if err := b.route(pkt); err != nil {
				b.logError(c.clientID, "route "+pkt.Topic, err)
			}
		case wire.PacketPing:
			c.reply(wire.Control(wire.PacketPong))
		case wire.PacketDisconnect:
			return
		case wire.PacketConnect:
			b.logError(c.clientID, "session", errDuplicateConnect)
			return
		}
	}
}

func (c *client) reply(pkt *wire.Packet) {
	if err := c.write(pkt); err != nil {
		c.broker.logError(c.clientID, "reply "+pkt.Type.String(), err)
		c.close()
		return
	}
	c.broker.logPacket(c.clientID, log.DirectionOut, pkt)
}
