package telemetry

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sinara-hw/stabilizer-go/pkg/wire"
)

// AfeGain is the programmable gain of an analog front-end input channel.
type AfeGain uint8

const (
	// G1 is unity gain.
	G1 AfeGain = iota

	// G2 is a gain of 2.
	G2

	// G5 is a gain of 5.
	G5

	// G10 is a gain of 10.
	G10
)

// Multiplier returns the gain factor.
func (g AfeGain) Multiplier() float32 {
	switch g {
	case G2:
		return 2
	case G5:
		return 5
	case G10:
		return 10
	default:
		return 1
	}
}

// IsValid reports whether g is a known gain.
func (g AfeGain) IsValid() bool {
	return g <= G10
}

// String returns the gain name.
func (g AfeGain) String() string {
	switch g {
	case G1:
		return "G1"
	case G2:
		return "G2"
	case G5:
		return "G5"
	case G10:
		return "G10"
	default:
		return fmt.Sprintf("AfeGain(%d)", uint8(g))
	}
}

// ParseAfeGain parses a gain name (G1, G2, G5, G10; case-insensitive) or
// bare factor (1, 2, 5, 10).
func ParseAfeGain(s string) (AfeGain, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "G1", "1":
		return G1, nil
	case "G2", "2":
		return G2, nil
	case "G5", "5":
		return G5, nil
	case "G10", "10":
		return G10, nil
	default:
		return G1, fmt.Errorf("invalid AFE gain %q", s)
	}
}

// MarshalYAML implements yaml.Marshaler.
func (g AfeGain) MarshalYAML() (any, error) {
	return g.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (g *AfeGain) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: AFE gain must be a scalar", node.Line)
	}
	parsed, err := ParseAfeGain(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*g = parsed
	return nil
}

// MarshalCBOR encodes the gain by name.
func (g AfeGain) MarshalCBOR() ([]byte, error) {
	return wire.Marshal(g.String())
}

// UnmarshalCBOR accepts a gain name or the enumeration index.
func (g *AfeGain) UnmarshalCBOR(data []byte) error {
	var raw any
	if err := wire.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case string:
		parsed, err := ParseAfeGain(v)
		if err != nil {
			return err
		}
		*g = parsed
	case uint64:
		if v > uint64(G10) {
			return fmt.Errorf("invalid AFE gain index %d", v)
		}
		*g = AfeGain(v)
	default:
		return fmt.Errorf("invalid AFE gain %v", raw)
	}
	return nil
}
