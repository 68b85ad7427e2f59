package transport

import "time"

// Keep-alive constants.
const (
	// DefaultPingInterval is the default interval between pings.
	DefaultPingInterval = 30 * time.Second

	// DefaultPongTimeout is the default timeout waiting for a pong response.
	DefaultPongTimeout = 5 * time.Second

	// DefaultMaxMissedPongs is the default number of missed pongs before disconnect.
	DefaultMaxMissedPongs = 3

	// MaxDetectionDelay is the maximum time to detect connection loss.
	// Calculated as: PingInterval * MaxMissedPongs + PongTimeout
	// Default: 30 * 3 + 5 = 95 seconds
	MaxDetectionDelay = 95 * time.Second
)

// KeepAliveConfig configures keep-alive behavior.
type KeepAliveConfig struct {
	// PingInterval is the interval between pings.
	PingInterval time.Duration `yaml:"ping_interval"`

	// PongTimeout is the timeout waiting for a pong response.
	PongTimeout time.Duration `yaml:"pong_timeout"`

	// MaxMissedPongs is the number of missed pongs before disconnect.
	MaxMissedPongs int `yaml:"max_missed_pongs"`
}

// DefaultKeepAliveConfig returns the default keep-alive configuration.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		PingInterval:   DefaultPingInterval,
		PongTimeout:    DefaultPongTimeout,
		MaxMissedPongs: DefaultMaxMissedPongs,
	}
}

// DetectionDelay calculates the maximum detection delay for this configuration.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	return c.PingInterval*time.Duration(c.MaxMissedPongs) + c.PongTimeout
}

// KeepAliveAction tells the owner what to do after a Tick.
type KeepAliveAction uint8

const (
	// KeepAliveIdle means nothing is due.
	KeepAliveIdle KeepAliveAction = iota

	// KeepAliveSendPing means a ping must be sent now.
	KeepAliveSendPing

	// KeepAliveTimeout means the peer missed too many pongs.
	KeepAliveTimeout
)

// String returns the action name.
func (a KeepAliveAction) String() string {
	switch a {
	case KeepAliveIdle:
		return "IDLE"
	case KeepAliveSendPing:
		return "SEND_PING"
	case KeepAliveTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// KeepAlive tracks connection liveness. It holds no goroutines or timers; the
// owner calls Tick from its poll loop with the current time.
type KeepAlive struct {
	config KeepAliveConfig

	lastPing    time.Time
	pending     bool
	missedPongs int
	lastLatency time.Duration
}

// NewKeepAlive creates a keep-alive tracker.
func NewKeepAlive(config KeepAliveConfig) *KeepAlive {
	if config.PingInterval == 0 {
		config.PingInterval = DefaultPingInterval
	}
	if config.PongTimeout == 0 {
		config.PongTimeout = DefaultPongTimeout
	}
	if config.MaxMissedPongs == 0 {
		config.MaxMissedPongs = DefaultMaxMissedPongs
	}
	return &KeepAlive{config: config}
}

// Config returns the effective configuration.
func (ka *KeepAlive) Config() KeepAliveConfig {
	return ka.config
}

// Reset restarts monitoring, e.g. after a new connection was established.
func (ka *KeepAlive) Reset(now time.Time) {
	ka.lastPing = now
	ka.pending = false
	ka.missedPongs = 0
}

// PongReceived records a pong.
func (ka *KeepAlive) PongReceived(now time.Time) {
	if ka.pending {
		ka.lastLatency = now.Sub(ka.lastPing)
	}
	ka.pending = false
	ka.missedPongs = 0
}

// Tick advances the tracker and returns the action due at now.
func (ka *KeepAlive) Tick(now time.Time) KeepAliveAction {
	elapsed := now.Sub(ka.lastPing)

	if ka.pending {
		if elapsed < ka.config.PongTimeout {
			return KeepAliveIdle
		}
		ka.pending = false
		ka.missedPongs++
		if ka.missedPongs >= ka.config.MaxMissedPongs {
			return KeepAliveTimeout
		}
	}

	if elapsed >= ka.config.PingInterval {
		ka.lastPing = now
		ka.pending = true
		return KeepAliveSendPing
	}
	return KeepAliveIdle
}

// MissedPongs returns the number of consecutive missed pongs.
func (ka *KeepAlive) MissedPongs() int {
	return ka.missedPongs
}

// LastLatency returns the round trip of the last answered ping.
func (ka *KeepAlive) LastLatency() time.Duration {
	return ka.lastLatency
}
