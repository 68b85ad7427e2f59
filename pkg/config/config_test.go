package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sinara-hw/stabilizer-go/pkg/identity"
	"github.com/sinara-hw/stabilizer-go/pkg/stream"
	"github.com/sinara-hw/stabilizer-go/pkg/telemetry"
)

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
	assert.NoError(t, DefaultBrokerConfig().Validate())
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
app: lockin
mac: "00:11:22:33:44:55"
broker: 10.0.0.1:1883
telemetry_period: 2s
afe: [G2, G10]
stream_target: 10.0.0.2:9293
keep_alive:
  ping_interval: 15s
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "lockin", cfg.App)
	assert.Equal(t, 2*time.Second, cfg.TelemetryPeriod)
	assert.Equal(t, [2]telemetry.AfeGain{telemetry.G2, telemetry.G10}, cfg.AFE)
	assert.Equal(t, 15*time.Second, cfg.KeepAlive.PingInterval)
	assert.Equal(t, Default().KeepAlive.PongTimeout, cfg.KeepAlive.PongTimeout, "unset fields keep defaults")

	mac, err := cfg.DeviceMAC()
	require.NoError(t, err)
	assert.Equal(t, identity.MAC{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}, mac)

	target, err := cfg.Target()
	require.NoError(t, err)
	assert.Equal(t, stream.Target{IP: [4]uint8{10, 0, 0, 2}, Port: 9293}, target)

	broker, err := cfg.BrokerAddr()
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:1883", broker.String())
}

func TestParseRejectsUnknownGain(t *testing.T) {
	_, err := Parse([]byte("afe: [G3, G1]\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*DeviceConfig)
	}{
		{"empty app", func(c *DeviceConfig) { c.App = "" }},
		{"long app", func(c *DeviceConfig) { c.App = strings.Repeat("a", 60) }},
		{"no mac source", func(c *DeviceConfig) { c.Interface = "" }},
		{"bad mac", func(c *DeviceConfig) { c.MAC = "zz" }},
		{"bad broker", func(c *DeviceConfig) { c.Broker = "broker.local" }},
		{"zero period", func(c *DeviceConfig) { c.TelemetryPeriod = 0 }},
		{"bad gain", func(c *DeviceConfig) { c.AFE[1] = telemetry.AfeGain(9) }},
		{"ipv6 target", func(c *DeviceConfig) { c.StreamTarget = "[::1]:9293" }},
		{"zero queue", func(c *DeviceConfig) { c.StreamQueueDepth = 0 }},
		{"backoff", func(c *DeviceConfig) { c.Backoff.Max = c.Backoff.Initial / 2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestEmptyTargetDisablesStreaming(t *testing.T) {
	target, err := Default().Target()
	require.NoError(t, err)
	assert.False(t, target.Enabled())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app: stabilizer\nmetrics_addr: \":9100\"\nmdns: true\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.MetricsAddr)
	assert.True(t, cfg.MDNS)
	assert.Equal(t, DefaultBroker, cfg.Broker)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadBroker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broker.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: 127.0.0.1:2883\nmax_connections: 4\n"), 0o600))

	cfg, err := LoadBroker(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "127.0.0.1:2883", cfg.Listen)
	assert.Equal(t, 4, cfg.MaxConnections)
	assert.Equal(t, DefaultConnectTimeout, cfg.ConnectTimeout)

	cfg.MaxConnections = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}
