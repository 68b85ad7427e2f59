package log

import (
	"bufio"
	"errors"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/sinara-hw/stabilizer-go/pkg/wire"
)

// Filter selects events. Zero fields match everything.
type Filter struct {
	// ClientID must equal the event's client id.
	ClientID string

	// Topic is a subscription filter ("+" and "#" allowed) the event's topic
	// must match. Events without a topic never match a topic filter.
	Topic string

	Layer     *Layer
	Direction *Direction
	Category  *Category

	// TimeStart is inclusive, TimeEnd exclusive.
	TimeStart *time.Time
	TimeEnd   *time.Time
}

// Match reports whether event passes the filter.
func (f Filter) Match(event Event) bool {
	switch {
	case f.ClientID != "" && event.ClientID != f.ClientID:
		return false
	case f.Topic != "" && (event.Topic == "" || !wire.MatchTopic(f.Topic, event.Topic)):
		return false
	case f.Layer != nil && event.Layer != *f.Layer:
		return false
	case f.Direction != nil && event.Direction != *f.Direction:
		return false
	case f.Category != nil && event.Category != *f.Category:
		return false
	case f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart):
		return false
	case f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd):
		return false
	}
	return true
}

// Reader iterates the events of a log file.
type Reader struct {
	file      *os.File
	dec       *cbor.Decoder
	filter    Filter
	truncated bool
}

// NewReader opens path for reading every event.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens path for reading the events matching filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{file: f, dec: NewDecoder(bufio.NewReader(f)), filter: filter}, nil
}

// Next returns the next matching event, or io.EOF at the end of the file.
// A final event cut short, as left by a process killed mid-write, also ends
// the iteration with io.EOF and sets Truncated.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		err := r.dec.Decode(&event)
		switch {
		case err == nil:
		case errors.Is(err, io.ErrUnexpectedEOF):
			r.truncated = true
			return Event{}, io.EOF
		default:
			return Event{}, err
		}

		if r.filter.Match(event) {
			return event, nil
		}
	}
}

// Truncated reports whether the file ended inside an event.
func (r *Reader) Truncated() bool {
	return r.truncated
}

// Close closes the file.
func (r *Reader) Close() error {
	return r.file.Close()
}
