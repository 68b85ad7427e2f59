package log

import "time"

// Event is one captured protocol event. Exactly one of Frame, Message,
// StateChange and Error is set. Integer CBOR keys keep captures small.
type Event struct {
	Timestamp time.Time `cbor:"1,keyasint"`

	// ClientID names the emitting user: a session client id, "stream", or a
	// broker connection.
	ClientID  string    `cbor:"2,keyasint"`
	Direction Direction `cbor:"3,keyasint"`
	Layer     Layer     `cbor:"4,keyasint"`
	Category  Category  `cbor:"5,keyasint"`

	RemoteAddr string `cbor:"6,keyasint,omitempty"`
	Topic      string `cbor:"7,keyasint,omitempty"`

	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"`
}

const unknownName = "UNKNOWN"

func enumName[T ~uint8](v T, names []string) string {
	if int(v) < len(names) {
		return names[v]
	}
	return unknownName
}

// Direction is relative to the component that logged the event.
type Direction uint8

const (
	DirectionIn Direction = iota
	DirectionOut
)

var directionNames = []string{"IN", "OUT"}

func (d Direction) String() string { return enumName(d, directionNames) }

// Layer is the part of the system that emitted an event.
type Layer uint8

const (
	LayerStack   Layer = iota // sockets and link
	LayerPubSub               // pub/sub sessions
	LayerStream               // sample stream egress
	LayerNetwork              // network users orchestration
	LayerBroker               // host broker
)

var layerNames = []string{"STACK", "PUBSUB", "STREAM", "NETWORK", "BROKER"}

func (l Layer) String() string { return enumName(l, layerNames) }

type Category uint8

const (
	CategoryMessage Category = iota // data packets and frames
	CategoryControl                 // connect, ping, subscribe and friends
	CategoryState
	CategoryError
)

var categoryNames = []string{"MESSAGE", "CONTROL", "STATE", "ERROR"}

func (c Category) String() string { return enumName(c, categoryNames) }

// FrameEvent describes one stream datagram. Sequence is that of its first
// block; Size includes the header.
type FrameEvent struct {
	Size     int    `cbor:"1,keyasint"`
	Sequence uint32 `cbor:"2,keyasint"`
	Batches  uint8  `cbor:"3,keyasint"`
}

// MessageEvent describes one pub/sub packet by type name.
type MessageEvent struct {
	Type        string `cbor:"1,keyasint"`
	PayloadSize int    `cbor:"2,keyasint,omitempty"`
	Retain      bool   `cbor:"3,keyasint,omitempty"`
}

// StateChangeEvent records a lifecycle transition. OldState may be empty
// for the first transition.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

type StateEntity uint8

const (
	StateEntitySocket StateEntity = iota
	StateEntitySession
	StateEntityLink
	StateEntityStreaming // ownership or target of the sample stream
	StateEntitySettings
)

var entityNames = []string{"SOCKET", "SESSION", "LINK", "STREAMING", "SETTINGS"}

func (s StateEntity) String() string { return enumName(s, entityNames) }

// ErrorEventData describes a failure. Context names the operation in
// progress; Code carries a protocol code when there is one.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`
	Code    *int   `cbor:"3,keyasint,omitempty"`
	Context string `cbor:"4,keyasint,omitempty"`
}
