package stream

import (
	"fmt"
	"net/netip"
)

// Target is a stream destination in the form carried by settings.
type Target struct {
	IP   [4]uint8 `cbor:"ip" yaml:"ip" json:"ip"`
	Port uint16   `cbor:"port" yaml:"port" json:"port"`
}

// TargetFrom converts an IPv4 address and port into a Target.
func TargetFrom(addr netip.AddrPort) (Target, error) {
	if !addr.Addr().Unmap().Is4() {
		return Target{}, fmt.Errorf("stream target must be IPv4, got %s", addr)
	}
	return Target{IP: addr.Addr().Unmap().As4(), Port: addr.Port()}, nil
}

// ParseTarget parses "a.b.c.d:port".
func ParseTarget(s string) (Target, error) {
	addr, err := netip.ParseAddrPort(s)
	if err != nil {
		return Target{}, fmt.Errorf("invalid stream target %q: %w", s, err)
	}
	return TargetFrom(addr)
}

// AddrPort returns the target as a socket address.
func (t Target) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(netip.AddrFrom4(t.IP), t.Port)
}

// Enabled reports whether the target addresses a host.
func (t Target) Enabled() bool {
	return t.IP != [4]uint8{} && t.Port != 0
}

// String formats the target as "a.b.c.d:port".
func (t Target) String() string {
	return t.AddrPort().String()
}
