package wire

import (
	"errors"
	"fmt"
)

// Packet errors.
var (
	// ErrInvalidPacketType indicates an unknown packet type.
	ErrInvalidPacketType = errors.New("invalid packet type")

	// ErrMissingField indicates a field required by the packet type is absent.
	ErrMissingField = errors.New("missing required field")
)

// PacketType identifies the kind of packet.
type PacketType uint8

const (
	// PacketConnect opens a session. Client to broker.
	PacketConnect PacketType = iota + 1

	// PacketConnAck answers Connect. Broker to client.
	PacketConnAck

	// PacketSubscribe registers topic filters. Client to broker.
	PacketSubscribe

	// PacketSubAck answers Subscribe. Broker to client.
	PacketSubAck

	// PacketPublish carries an application message. Both directions.
	PacketPublish

	// PacketPing probes liveness. Both directions.
	PacketPing

	// PacketPong answers Ping. Both directions.
	PacketPong

	// PacketDisconnect closes the session gracefully. Both directions.
	PacketDisconnect
)

// String returns the packet type name.
func (t PacketType) String() string {
	switch t {
	case PacketConnect:
		return "CONNECT"
	case PacketConnAck:
		return "CONNACK"
	case PacketSubscribe:
		return "SUBSCRIBE"
	case PacketSubAck:
		return "SUBACK"
	case PacketPublish:
		return "PUBLISH"
	case PacketPing:
		return "PING"
	case PacketPong:
		return "PONG"
	case PacketDisconnect:
		return "DISCONNECT"
	default:
		return fmt.Sprintf("PacketType(%d)", uint8(t))
	}
}

// IsValid reports whether t is a known packet type.
func (t PacketType) IsValid() bool {
	return t >= PacketConnect && t <= PacketDisconnect
}

// ReturnCode is the result carried by ConnAck and SubAck.
type ReturnCode uint8

const (
	// CodeAccepted indicates success.
	CodeAccepted ReturnCode = iota

	// CodeBadClientID indicates the client id was rejected.
	CodeBadClientID

	// CodeBadFilter indicates an invalid subscription filter.
	CodeBadFilter

	// CodeUnavailable indicates the broker cannot serve the client.
	CodeUnavailable
)

// String returns the return code name.
func (c ReturnCode) String() string {
	switch c {
	case CodeAccepted:
		return "ACCEPTED"
	case CodeBadClientID:
		return "BAD_CLIENT_ID"
	case CodeBadFilter:
		return "BAD_FILTER"
	case CodeUnavailable:
		return "UNAVAILABLE"
	default:
		return fmt.Sprintf("ReturnCode(%d)", uint8(c))
	}
}

// Packet is a single protocol packet.
type Packet struct {
	Type      PacketType `cbor:"1,keyasint"`
	ClientID  string     `cbor:"2,keyasint,omitempty"`
	KeepAlive uint32     `cbor:"3,keyasint,omitempty"`
	PacketID  uint16     `cbor:"4,keyasint,omitempty"`
	Topic     string     `cbor:"5,keyasint,omitempty"`
	Payload   []byte     `cbor:"6,keyasint,omitempty"`
	Retain    bool       `cbor:"7,keyasint,omitempty"`
	Filters   []string   `cbor:"8,keyasint,omitempty"`
	Code      ReturnCode `cbor:"9,keyasint,omitempty"`
}

// Validate checks that the fields required by the packet type are present.
func (p *Packet) Validate() error {
	switch p.Type {
	case PacketConnect:
		if p.ClientID == "" {
			return fmt.Errorf("%w: client id", ErrMissingField)
		}
	case PacketSubscribe:
		if len(p.Filters) == 0 {
			return fmt.Errorf("%w: filters", ErrMissingField)
		}
		for _, f := range p.Filters {
			if !ValidFilter(f) {
				return fmt.Errorf("invalid filter %q", f)
			}
		}
	case PacketPublish:
		if !ValidTopic(p.Topic) {
			return fmt.Errorf("invalid topic %q", p.Topic)
		}
	case PacketConnAck, PacketSubAck, PacketPing, PacketPong, PacketDisconnect:
	default:
		return fmt.Errorf("%w: %d", ErrInvalidPacketType, p.Type)
	}
	return nil
}

// Connect returns a Connect packet.
func Connect(clientID string, keepAliveSeconds uint32) *Packet {
	return &Packet{Type: PacketConnect, ClientID: clientID, KeepAlive: keepAliveSeconds}
}

// ConnAck returns a ConnAck packet.
func ConnAck(code ReturnCode) *Packet {
	return &Packet{Type: PacketConnAck, Code: code}
}

// Subscribe returns a Subscribe packet.
func Subscribe(id uint16, filters ...string) *Packet {
	return &Packet{Type: PacketSubscribe, PacketID: id, Filters: filters}
}

// SubAck returns a SubAck packet.
func SubAck(id uint16, code ReturnCode) *Packet {
	return &Packet{Type: PacketSubAck, PacketID: id, Code: code}
}

// Publish returns a Publish packet.
func Publish(topic string, payload []byte, retain bool) *Packet {
	return &Packet{Type: PacketPublish, Topic: topic, Payload: payload, Retain: retain}
}

// Control returns a packet without fields (Ping, Pong or Disconnect).
func Control(t PacketType) *Packet {
	return &Packet{Type: t}
}
