// Package version provides protocol version parsing and compatibility checks.
//
// The protocol version is advertised in mDNS TXT records so controllers can
// skip devices and brokers they cannot talk to.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Current is the pub/sub and stream protocol version implemented here.
const Current = "1.0"

// Version is a parsed "major.minor" protocol version.
type Version struct {
	Major uint16
	Minor uint16
}

// Parse parses a "major.minor" version string.
func Parse(s string) (Version, error) {
	major, minor, ok := strings.Cut(s, ".")
	if !ok || major == "" || minor == "" || strings.Contains(minor, ".") {
		return Version{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}

	ma, err := strconv.ParseUint(major, 10, 16)
	if err != nil {
		return Version{}, fmt.Errorf("invalid version %q: bad major component", s)
	}
	mi, err := strconv.ParseUint(minor, 10, 16)
	if err != nil {
		return Version{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}

	return Version{Major: uint16(ma), Minor: uint16(mi)}, nil
}

// MustCurrent returns Current parsed.
func MustCurrent() Version {
	v, err := Parse(Current)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version as "major.minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible reports whether other has the same major version.
func (v Version) Compatible(other Version) bool {
	return v.Major == other.Major
}

// CompatibleString reports whether the advertised version s can talk to
// Current. Unparseable and empty versions are incompatible.
func CompatibleString(s string) bool {
	v, err := Parse(s)
	if err != nil {
		return false
	}
	return MustCurrent().Compatible(v)
}
