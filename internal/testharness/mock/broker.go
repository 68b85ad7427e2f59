package mock

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sinara-hw/stabilizer-go/pkg/netstack"
	"github.com/sinara-hw/stabilizer-go/pkg/transport"
	"github.com/sinara-hw/stabilizer-go/pkg/wire"
)

// Broker plays the broker side of every TCP socket a Stack connects to Addr.
type Broker struct {
	Stack *Stack
	Addr  netip.AddrPort

	// Retained messages are delivered on subscribe when their topic matches.
	Retained map[string][]byte

	decoders map[netstack.Socket]*transport.FrameDecoder
}

// NewBroker creates a broker peer for stack.
func NewBroker(stack *Stack, addr netip.AddrPort) *Broker {
	return &Broker{
		Stack:    stack,
		Addr:     addr,
		Retained: make(map[string][]byte),
		decoders: make(map[netstack.Socket]*transport.FrameDecoder),
	}
}

// Packets decodes and consumes the packets sent on the client socket.
func (b *Broker) Packets(t testing.TB, h netstack.Socket) []*wire.Packet {
	t.Helper()

	d, ok := b.decoders[h]
	if !ok {
		d = transport.NewFrameDecoder(transport.DefaultMaxMessageSize)
		b.decoders[h] = d
	}
	b.Stack.With(func(sockets []*Socket) {
		d.Feed(sockets[h].Out)
		sockets[h].Out = nil
	})

	var pkts []*wire.Packet
	for {
		frame, err := d.Next()
		require.NoError(t, err)
		if frame == nil {
			return pkts
		}
		pkt, err := wire.DecodePacket(frame)
		require.NoError(t, err)
		pkts = append(pkts, pkt)
	}
}

// Deliver queues pkt for reception on the client socket.
func (b *Broker) Deliver(t testing.TB, h netstack.Socket, pkt *wire.Packet) {
	t.Helper()
	data, err := wire.EncodePacket(pkt)
	require.NoError(t, err)
	b.Stack.With(func(sockets []*Socket) {
		sockets[h].In, err = transport.AppendFrame(sockets[h].In, data, transport.DefaultMaxMessageSize)
	})
	require.NoError(t, err)
}

// Serve answers the protocol on every socket connected to Addr: it accepts
// connections, acknowledges subscriptions, answers pings and delivers
// matching retained messages. It returns the publications clients sent.
func (b *Broker) Serve(t testing.TB) []*wire.Packet {
	t.Helper()

	var handles []netstack.Socket
	b.Stack.With(func(sockets []*Socket) {
		for i, sock := range sockets {
			if sock.Open && sock.Proto == netstack.TCP && sock.Remote == b.Addr {
				handles = append(handles, netstack.Socket(i))
			}
		}
	})

	var published []*wire.Packet
	for _, h := range handles {
		for _, pkt := range b.Packets(t, h) {
			switch pkt.Type {
			case wire.PacketConnect:
				b.Deliver(t, h, wire.ConnAck(wire.CodeAccepted))
			case wire.PacketSubscribe:
				b.Deliver(t, h, wire.SubAck(pkt.PacketID, wire.CodeAccepted))
				for topic, payload := range b.Retained {
					for _, f := range pkt.Filters {
						if wire.MatchTopic(f, topic) {
							b.Deliver(t, h, wire.Publish(topic, payload, true))
							break
						}
					}
				}
			case wire.PacketPing:
				b.Deliver(t, h, wire.Control(wire.PacketPong))
			case wire.PacketPublish:
				published = append(published, pkt)
			}
		}
	}
	return published
}

// Publish CBOR-encodes v and delivers it as a publication on socket h.
func (b *Broker) Publish(t testing.TB, h netstack.Socket, topic string, v any) {
	t.Helper()
	payload, err := wire.Marshal(v)
	require.NoError(t, err)
	b.Deliver(t, h, wire.Publish(topic, payload, false))
}
