package processor

import (
	"net"
)

// PHY reports the state of the physical link.
type PHY interface {
	// LinkUp reports whether the link is established.
	LinkUp() bool
}

// AlwaysUp is a PHY whose link never drops.
type AlwaysUp struct{}

// LinkUp always returns true.
func (AlwaysUp) LinkUp() bool {
	return true
}

// InterfacePHY reports the operational state of a host network interface.
type InterfacePHY struct {
	// Name is the interface name, e.g. "eth0".
	Name string
}

// LinkUp reports whether the interface exists and is up and running.
func (p InterfacePHY) LinkUp() bool {
	iface, err := net.InterfaceByName(p.Name)
	if err != nil {
		return false
	}
	return iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagRunning != 0
}

// LinkFunc adapts a function to the PHY interface.
type LinkFunc func() bool

// LinkUp calls f.
func (f LinkFunc) LinkUp() bool {
	return f()
}

var (
	_ PHY = AlwaysUp{}
	_ PHY = InterfacePHY{}
	_ PHY = LinkFunc(nil)
)
