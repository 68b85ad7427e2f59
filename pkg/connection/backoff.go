package connection

import (
	"math/rand/v2"
	"time"
)

// Reconnect timing used when a BackoffConfig leaves a field unset.
const (
	InitialBackoff    = time.Second
	MaxBackoff        = 30 * time.Second
	BackoffMultiplier = 2.0
	JitterFactor      = 0.25
)

// BackoffConfig shapes the delay between broker connection attempts. Jitter
// is the largest fraction of the base delay added at random.
type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial"`
	Max        time.Duration `yaml:"max"`
	Multiplier float64       `yaml:"multiplier"`
	Jitter     float64       `yaml:"jitter"`
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    InitialBackoff,
		Max:        MaxBackoff,
		Multiplier: BackoffMultiplier,
		Jitter:     JitterFactor,
	}
}

// normalized replaces unusable values with defaults.
func (c BackoffConfig) normalized() BackoffConfig {
	if c.Initial <= 0 {
		c.Initial = InitialBackoff
	}
	if c.Max <= 0 {
		c.Max = MaxBackoff
	}
	c.Max = max(c.Max, c.Initial)
	if c.Multiplier <= 1 {
		c.Multiplier = BackoffMultiplier
	}
	c.Jitter = max(c.Jitter, 0)
	return c
}

// Backoff produces growing, jittered retry delays and remembers when the
// next attempt is due. Callers serialize access.
type Backoff struct {
	cfg  BackoffConfig
	base time.Duration // delay before jitter for the next attempt

	attempts int
	due      time.Time

	random func() float64 // [0, 1)
}

func NewBackoff() *Backoff {
	return NewBackoffWithConfig(DefaultBackoffConfig())
}

func NewBackoffWithConfig(cfg BackoffConfig) *Backoff {
	cfg = cfg.normalized()
	return &Backoff{cfg: cfg, base: cfg.Initial, random: rand.Float64}
}

// Next returns the delay for this attempt and grows the base for the
// following one, capped at Max.
func (b *Backoff) Next() time.Duration {
	delay := b.base
	if b.cfg.Jitter > 0 {
		delay += time.Duration(float64(delay) * b.cfg.Jitter * b.random())
	}
	b.attempts++
	b.base = min(time.Duration(float64(b.base)*b.cfg.Multiplier), b.cfg.Max)
	return delay
}

// Schedule consumes a delay and returns now plus that delay as the next
// attempt time.
func (b *Backoff) Schedule(now time.Time) time.Time {
	b.due = now.Add(b.Next())
	return b.due
}

// Ready reports whether now has reached the scheduled attempt.
func (b *Backoff) Ready(now time.Time) bool { return !now.Before(b.due) }

// Due is the scheduled attempt time; zero means no wait.
func (b *Backoff) Due() time.Time { return b.due }

// Reset forgets past failures. Call it once a connection is up.
func (b *Backoff) Reset() {
	b.base = b.cfg.Initial
	b.attempts = 0
	b.due = time.Time{}
}

func (b *Backoff) Attempts() int { return b.attempts }

// Current is the unjittered delay the next call to Next starts from.
func (b *Backoff) Current() time.Duration { return b.base }
