package config

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sinara-hw/stabilizer-go/pkg/connection"
	"github.com/sinara-hw/stabilizer-go/pkg/identity"
	"github.com/sinara-hw/stabilizer-go/pkg/stream"
	"github.com/sinara-hw/stabilizer-go/pkg/telemetry"
	"github.com/sinara-hw/stabilizer-go/pkg/transport"
)

// Defaults.
const (
	DefaultApp             = "stabilizer"
	DefaultBroker          = "127.0.0.1:1883"
	DefaultInterface       = "eth0"
	DefaultTelemetryPeriod = 10 * time.Second
	DefaultListen          = ":1883"
	DefaultMaxConnections  = 64
	DefaultConnectTimeout  = 5 * time.Second
)

// ErrInvalidConfig is wrapped by every validation error.
var ErrInvalidConfig = errors.New("invalid configuration")

// DeviceConfig configures cmd/stabilizer.
type DeviceConfig struct {
	// App is the application name used in client ids and topics.
	App string `yaml:"app"`

	// MAC is the device MAC address. When empty it is read from Interface.
	MAC string `yaml:"mac"`

	// Interface is the host interface providing the MAC and link state.
	Interface string `yaml:"interface"`

	// Broker is the broker address as "ip:port".
	Broker string `yaml:"broker"`

	KeepAlive transport.KeepAliveConfig `yaml:"keep_alive"`
	Backoff   connection.BackoffConfig  `yaml:"backoff"`

	// TelemetryPeriod is the interval between telemetry publications.
	TelemetryPeriod time.Duration `yaml:"telemetry_period"`

	// AFE holds the initial input gains.
	AFE [2]telemetry.AfeGain `yaml:"afe"`

	// StreamTarget is the initial stream destination; empty disables streaming.
	StreamTarget string `yaml:"stream_target"`

	// StreamQueueDepth bounds the blocks buffered for streaming.
	StreamQueueDepth int `yaml:"stream_queue_depth"`

	// ProtocolLog is the path of the CBOR protocol event log; empty disables it.
	ProtocolLog string `yaml:"protocol_log"`

	// MetricsAddr serves Prometheus metrics when set, e.g. ":9100".
	MetricsAddr string `yaml:"metrics_addr"`

	// MDNS advertises the device over mDNS.
	MDNS bool `yaml:"mdns"`
}

// Default returns the default device configuration.
func Default() DeviceConfig {
	return DeviceConfig{
		App:              DefaultApp,
		Interface:        DefaultInterface,
		Broker:           DefaultBroker,
		KeepAlive:        transport.DefaultKeepAliveConfig(),
		Backoff:          connection.DefaultBackoffConfig(),
		TelemetryPeriod:  DefaultTelemetryPeriod,
		AFE:              [2]telemetry.AfeGain{telemetry.G1, telemetry.G1},
		StreamQueueDepth: stream.DefaultQueueDepth,
	}
}

// Load reads the device configuration from path on top of the defaults.
func Load(path string) (DeviceConfig, error) {
	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		return DeviceConfig{}, err
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults.
func Parse(data []byte) (DeviceConfig, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DeviceConfig{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c DeviceConfig) Validate() error {
	if c.App == "" {
		return fmt.Errorf("%w: app is required", ErrInvalidConfig)
	}
	if _, err := identity.ClientID(c.App, "settings", identity.MAC{}); err != nil {
		return fmt.Errorf("%w: app name %q too long: %v", ErrInvalidConfig, c.App, err)
	}
	if c.MAC == "" && c.Interface == "" {
		return fmt.Errorf("%w: mac or interface is required", ErrInvalidConfig)
	}
	if c.MAC != "" {
		if _, err := identity.ParseMAC(c.MAC); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	if _, err := c.BrokerAddr(); err != nil {
		return err
	}
	if c.TelemetryPeriod <= 0 {
		return fmt.Errorf("%w: telemetry_period must be positive", ErrInvalidConfig)
	}
	for i, g := range c.AFE {
		if !g.IsValid() {
			return fmt.Errorf("%w: afe[%d] is not a valid gain", ErrInvalidConfig, i)
		}
	}
	if _, err := c.Target(); err != nil {
		return err
	}
	if c.StreamQueueDepth <= 0 {
		return fmt.Errorf("%w: stream_queue_depth must be positive", ErrInvalidConfig)
	}
	if c.Backoff.Initial <= 0 || c.Backoff.Max < c.Backoff.Initial {
		return fmt.Errorf("%w: backoff must satisfy 0 < initial <= max", ErrInvalidConfig)
	}
	return nil
}

// BrokerAddr returns the parsed broker address.
func (c DeviceConfig) BrokerAddr() (netip.AddrPort, error) {
	addr, err := netip.ParseAddrPort(c.Broker)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: broker %q: %v", ErrInvalidConfig, c.Broker, err)
	}
	return addr, nil
}

// Target returns the initial stream target. An empty StreamTarget yields the
// disabled target.
func (c DeviceConfig) Target() (stream.Target, error) {
	if c.StreamTarget == "" {
		return stream.Target{}, nil
	}
	t, err := stream.ParseTarget(c.StreamTarget)
	if err != nil {
		return stream.Target{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return t, nil
}

// DeviceMAC returns the configured MAC, or the hardware address of Interface.
func (c DeviceConfig) DeviceMAC() (identity.MAC, error) {
	if c.MAC != "" {
		return identity.ParseMAC(c.MAC)
	}
	iface, err := net.InterfaceByName(c.Interface)
	if err != nil {
		return identity.MAC{}, fmt.Errorf("interface %q: %w", c.Interface, err)
	}
	if len(iface.HardwareAddr) != len(identity.MAC{}) {
		return identity.MAC{}, fmt.Errorf("interface %q has no EUI-48 address", c.Interface)
	}
	var mac identity.MAC
	copy(mac[:], iface.HardwareAddr)
	return mac, nil
}

// BrokerConfig configures cmd/stabilizer-broker.
type BrokerConfig struct {
	// Listen is the TCP listen address.
	Listen string `yaml:"listen"`

	// MaxConnections bounds concurrent client connections.
	MaxConnections int `yaml:"max_connections"`

	// ConnectTimeout bounds the wait for a client's Connect packet.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// ProtocolLog is the path of the CBOR protocol event log.
	ProtocolLog string `yaml:"protocol_log"`

	// MetricsAddr serves Prometheus metrics when set.
	MetricsAddr string `yaml:"metrics_addr"`

	// MDNS advertises the broker over mDNS.
	MDNS bool `yaml:"mdns"`
}

// DefaultBrokerConfig returns the default broker configuration.
func DefaultBrokerConfig() BrokerConfig {
	return BrokerConfig{
		Listen:         DefaultListen,
		MaxConnections: DefaultMaxConnections,
		ConnectTimeout: DefaultConnectTimeout,
	}
}

// LoadBroker reads the broker configuration from path on top of the defaults.
func LoadBroker(path string) (BrokerConfig, error) {
	cfg := DefaultBrokerConfig()
	if err := loadFile(path, &cfg); err != nil {
		return BrokerConfig{}, err
	}
	return cfg, nil
}

// Validate checks the broker configuration.
func (c BrokerConfig) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("%w: listen is required", ErrInvalidConfig)
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("%w: max_connections must be positive", ErrInvalidConfig)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("%w: connect_timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

func loadFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}
