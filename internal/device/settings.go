package device

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sinara-hw/stabilizer-go/pkg/config"
	"github.com/sinara-hw/stabilizer-go/pkg/stream"
	"github.com/sinara-hw/stabilizer-go/pkg/telemetry"
)

// Settings errors.
var (
	ErrInvalidGain   = errors.New("invalid AFE gain")
	ErrOutputRange   = errors.New("output set point out of range")
	ErrInvalidPeriod = errors.New("telemetry period must be at least one second")
)

// Settings is the tree exposed under "<prefix>/settings/".
type Settings struct {
	// AFE are the input gains.
	AFE [2]telemetry.AfeGain `settings:"afe" cbor:"afe"`

	// Output are the DAC set points in volts.
	Output [2]float32 `settings:"output" cbor:"output"`

	// StreamTarget is the stream destination. The zero value disables streaming.
	StreamTarget stream.Target `settings:"stream_target" cbor:"stream_target"`

	// TelemetryPeriod is the telemetry interval in seconds.
	TelemetryPeriod uint16 `settings:"telemetry_period" cbor:"telemetry_period"`
}

// FromConfig returns the boot settings described by cfg.
func FromConfig(cfg config.DeviceConfig) (Settings, error) {
	target, err := cfg.Target()
	if err != nil {
		return Settings{}, err
	}
	period := math.Ceil(cfg.TelemetryPeriod.Seconds())
	s := Settings{
		AFE:             cfg.AFE,
		StreamTarget:    target,
		TelemetryPeriod: uint16(min(max(period, 1), math.MaxUint16)),
	}
	return s, s.Validate()
}

// Validate checks the settings.
func (s Settings) Validate() error {
	for i, g := range s.AFE {
		if !g.IsValid() {
			return fmt.Errorf("%w: afe/%d = %d", ErrInvalidGain, i, uint8(g))
		}
	}
	for i, v := range s.Output {
		if math.IsNaN(float64(v)) || v < -telemetry.DACFullScale || v > telemetry.DACFullScale {
			return fmt.Errorf("%w: output/%d = %g V", ErrOutputRange, i, v)
		}
	}
	if s.TelemetryPeriod == 0 {
		return ErrInvalidPeriod
	}
	return nil
}

// Period returns the telemetry interval.
func (s Settings) Period() time.Duration {
	return time.Duration(s.TelemetryPeriod) * time.Second
}
