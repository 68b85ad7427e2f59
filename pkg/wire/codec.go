package wire

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Decoding limits for packets and application payloads.
const (
	maxArrayElements = 4096
	maxMapPairs      = 1024
	maxNestedLevels  = 16
)

var (
	encMode = mustEncMode()
	decMode = mustDecMode()
)

func mustEncMode() cbor.EncMode {
	mode, err := cbor.EncOptions{
		Sort:          cbor.SortCoreDeterministic,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeUnix,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: encoder mode: %v", err))
	}
	return mode
}

// Unknown keys and duplicate keys are tolerated so older peers can read
// packets from newer ones.
func mustDecMode() cbor.DecMode {
	mode, err := cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyQuiet,
		MaxArrayElements: maxArrayElements,
		MaxMapPairs:      maxMapPairs,
		MaxNestedLevels:  maxNestedLevels,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("wire: decoder mode: %v", err))
	}
	return mode
}

// Marshal encodes v, typically a packet or a publication payload.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// NewEncoder returns an encoder writing to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}

// EncodePacket validates p and encodes it.
func EncodePacket(p *Packet) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid packet: %w", err)
	}
	return Marshal(p)
}

// DecodePacket decodes a packet and validates it.
func DecodePacket(data []byte) (*Packet, error) {
	p := new(Packet)
	if err := Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to decode packet: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid packet: %w", err)
	}
	return p, nil
}
