package identity

import (
	"errors"
	"fmt"
)

// Buffer capacities.
const (
	// ClientIDCapacity is the capacity of a broker client identifier.
	ClientIDCapacity = 64

	// PrefixCapacity is the capacity of a device topic prefix.
	PrefixCapacity = 128
)

// ErrIdentityOverflow indicates an identifier exceeded its buffer capacity.
var ErrIdentityOverflow = errors.New("identity overflow")

// Bounded is a string builder with a fixed capacity. Writes that would exceed
// the capacity fail and leave the contents unchanged.
type Bounded struct {
	buf []byte
}

// NewBounded allocates a bounded buffer of the given capacity.
func NewBounded(capacity int) Bounded {
	return Bounded{buf: make([]byte, 0, capacity)}
}

// Write appends p. It implements io.Writer so the buffer can be used with fmt.Fprintf.
func (b *Bounded) Write(p []byte) (int, error) {
	if len(b.buf)+len(p) > cap(b.buf) {
		return 0, fmt.Errorf("%w: %d bytes exceed capacity %d", ErrIdentityOverflow, len(b.buf)+len(p), cap(b.buf))
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// WriteString appends s.
func (b *Bounded) WriteString(s string) (int, error) {
	return b.Write([]byte(s))
}

// String returns the contents.
func (b Bounded) String() string {
	return string(b.buf)
}

// Len returns the number of bytes written.
func (b Bounded) Len() int {
	return len(b.buf)
}

// Cap returns the capacity.
func (b Bounded) Cap() int {
	return cap(b.buf)
}
