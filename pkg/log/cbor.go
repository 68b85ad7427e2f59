package log

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// A log file is a CBOR sequence: events are concatenated data items with no
// framing in between.
var (
	eventEncMode = mustEventEncMode()
	eventDecMode = mustEventDecMode()
)

func mustEventEncMode() cbor.EncMode {
	mode, err := cbor.EncOptions{
		Sort:        cbor.SortCoreDeterministic,
		IndefLength: cbor.IndefLengthForbidden,
		Time:        cbor.TimeRFC3339Nano,
		TimeTag:     cbor.EncTagRequired,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("log: event encoder mode: %v", err))
	}
	return mode
}

func mustEventDecMode() cbor.DecMode {
	mode, err := cbor.DecOptions{
		DupMapKey:       cbor.DupMapKeyQuiet,
		MaxNestedLevels: 16,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("log: event decoder mode: %v", err))
	}
	return mode
}

// EncodeEvent encodes one event.
func EncodeEvent(event Event) ([]byte, error) {
	return eventEncMode.Marshal(event)
}

// DecodeEvent decodes one event.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	err := eventDecMode.Unmarshal(data, &event)
	return event, err
}

// NewEncoder returns an encoder appending events to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return eventEncMode.NewEncoder(w)
}

// NewDecoder returns a decoder reading consecutive events from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return eventDecMode.NewDecoder(r)
}
