package device

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sinara-hw/stabilizer-go/internal/testharness/mock"
	"github.com/sinara-hw/stabilizer-go/pkg/config"
	"github.com/sinara-hw/stabilizer-go/pkg/settings"
	"github.com/sinara-hw/stabilizer-go/pkg/stream"
	"github.com/sinara-hw/stabilizer-go/pkg/telemetry"
	"github.com/sinara-hw/stabilizer-go/pkg/wire"
)

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.AFE = [2]telemetry.AfeGain{telemetry.G2, telemetry.G10}
	cfg.StreamTarget = "10.0.0.2:9293"
	cfg.TelemetryPeriod = 1500 * time.Millisecond

	s, err := FromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.AFE, s.AFE)
	assert.Equal(t, stream.Target{IP: [4]uint8{10, 0, 0, 2}, Port: 9293}, s.StreamTarget)
	assert.Equal(t, uint16(2), s.TelemetryPeriod)
	assert.Equal(t, 2*time.Second, s.Period())

	cfg.StreamTarget = "nowhere"
	_, err = FromConfig(cfg)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestSettingsValidate(t *testing.T) {
	valid := Settings{TelemetryPeriod: 10}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		modify func(*Settings)
		want   error
	}{
		{"bad gain", func(s *Settings) { s.AFE[1] = telemetry.AfeGain(9) }, ErrInvalidGain},
		{"output too high", func(s *Settings) { s.Output[0] = 10.5 }, ErrOutputRange},
		{"output too low", func(s *Settings) { s.Output[1] = -11 }, ErrOutputRange},
		{"zero period", func(s *Settings) { s.TelemetryPeriod = 0 }, ErrInvalidPeriod},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.modify(&s)
			assert.ErrorIs(t, s.Validate(), tt.want)
		})
	}
}

func TestSettingsPaths(t *testing.T) {
	var s Settings
	paths := settings.Paths(&s)
	assert.Contains(t, paths, "afe/0")
	assert.Contains(t, paths, "output/1")
	assert.Contains(t, paths, "stream_target/port")
	assert.Contains(t, paths, "telemetry_period")

	payload, err := wire.Marshal(float32(1.5))
	require.NoError(t, err)
	require.NoError(t, settings.Set(&s, "output/1", payload))
	assert.Equal(t, float32(1.5), s.Output[1])
}

func TestDSPLoopback(t *testing.T) {
	var buf telemetry.SharedBuffer
	d := NewDSP(&buf, Settings{
		AFE:             [2]telemetry.AfeGain{telemetry.G1, telemetry.G2},
		Output:          [2]float32{0.5, -0.2},
		TelemetryPeriod: 1,
	}, 1)

	d.Step()
	assert.Equal(t, uint64(1), d.Batches())
	assert.Equal(t, uint64(0), d.Sent())

	b := buf.Load()
	assert.Equal(t, telemetry.DACCode(0.5), b.LatestOutputs[0])
	assert.Equal(t, telemetry.DACCode(-0.2), b.LatestOutputs[1])
	assert.InDelta(t, telemetry.ADCCode(0.5, telemetry.G1), b.LatestSamples[0], noiseLSB)
	assert.InDelta(t, telemetry.ADCCode(-0.2, telemetry.G2), b.LatestSamples[1], noiseLSB)

	tlm := b.ToTelemetry(telemetry.G1, telemetry.G2)
	assert.InDelta(t, 0.5, tlm.InputLevels[0], 0.001)
	assert.InDelta(t, -0.2, tlm.InputLevels[1], 0.001)
	assert.InDelta(t, 0.5, tlm.OutputLevels[0], 0.001)
}

func TestDSPConfigure(t *testing.T) {
	var buf telemetry.SharedBuffer
	d := NewDSP(&buf, Settings{TelemetryPeriod: 1}, 1)
	d.Step()
	assert.Equal(t, int16(0), buf.Load().LatestOutputs[0])

	d.Configure(Settings{Output: [2]float32{1, 0}, TelemetryPeriod: 1})
	d.Step()
	assert.Equal(t, telemetry.DACCode(1), buf.Load().LatestOutputs[0])
}

func TestDSPFeedsGenerator(t *testing.T) {
	gen, str := stream.New(mock.NewStack(), stream.Config{QueueDepth: 2})

	var buf telemetry.SharedBuffer
	d := NewDSP(&buf, Settings{Output: [2]float32{0.1, 0.1}, TelemetryPeriod: 1}, 7)
	d.Attach(gen)

	for range 3 {
		d.Step()
	}
	assert.Equal(t, uint64(3), d.Batches())
	assert.Equal(t, uint64(2), d.Sent())
	assert.Equal(t, 2, str.Pending())
	assert.Equal(t, uint64(1), gen.Dropped())

	d.Attach(nil)
	d.Step()
	assert.Equal(t, uint64(2), d.Sent())
}

func TestDSPRun(t *testing.T) {
	var buf telemetry.SharedBuffer
	d := NewDSP(&buf, Settings{TelemetryPeriod: 1}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx, time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return d.Batches() >= 3 }, 3*time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
