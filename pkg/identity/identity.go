package identity

import (
	"encoding/hex"
	"fmt"
	"net"
	"strings"
)

// MAC is an Ethernet hardware address.
type MAC [6]byte

// String formats the address as lowercase dash-separated hex, e.g. 00-11-22-33-44-55.
func (m MAC) String() string {
	var sb strings.Builder
	sb.Grow(17)
	for i, b := range m {
		if i > 0 {
			sb.WriteByte('-')
		}
		sb.WriteString(hex.EncodeToString([]byte{b}))
	}
	return sb.String()
}

// ParseMAC parses a colon- or dash-separated 6-byte hardware address.
func ParseMAC(s string) (MAC, error) {
	var mac MAC
	hw, err := net.ParseMAC(s)
	if err != nil {
		return mac, fmt.Errorf("invalid MAC address %q: %w", s, err)
	}
	if len(hw) != len(mac) {
		return mac, fmt.Errorf("invalid MAC address %q: expected 6 bytes, got %d", s, len(hw))
	}
	copy(mac[:], hw)
	return mac, nil
}

// MarshalText implements encoding.TextMarshaler.
func (m MAC) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *MAC) UnmarshalText(text []byte) error {
	parsed, err := ParseMAC(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ClientID returns the broker client identifier "<app>-<mac>-<role>".
func ClientID(app, role string, mac MAC) (Bounded, error) {
	id := NewBounded(ClientIDCapacity)
	if _, err := fmt.Fprintf(&id, "%s-%s-%s", app, mac, role); err != nil {
		return Bounded{}, fmt.Errorf("client id for %s/%s: %w", app, role, err)
	}
	return id, nil
}

// TopicPrefix returns the device topic prefix "dt/sinara/<app>/<mac>".
func TopicPrefix(app string, mac MAC) (Bounded, error) {
	prefix := NewBounded(PrefixCapacity)
	if _, err := fmt.Fprintf(&prefix, "dt/sinara/%s/%s", app, mac); err != nil {
		return Bounded{}, fmt.Errorf("topic prefix for %s: %w", app, err)
	}
	return prefix, nil
}
