package telemetry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sinara-hw/stabilizer-go/pkg/wire"
)

func TestToTelemetryInputs(t *testing.T) {
	buf := Buffer{LatestSamples: [2]int16{16384, -16384}}

	tlm := buf.ToTelemetry(G1, G2)

	assert.InDelta(t, 0.4096125, tlm.InputLevels[0], 1e-6)
	assert.InDelta(t, -0.20480625, tlm.InputLevels[1], 1e-6)

	// Same float32 evaluation order as the conversion itself.
	want := float32(16384) / (float32(32767.0) * 5.0 * 1.0) * float32(4.096)
	assert.Equal(t, want, tlm.InputLevels[0])
}

func TestToTelemetryUnityGain(t *testing.T) {
	buf := Buffer{LatestSamples: [2]int16{16384, -16384}}

	tlm := buf.ToTelemetry(G1, G1)

	assert.InDelta(t, 0.4096125, tlm.InputLevels[0], 1e-6)
	assert.InDelta(t, -0.4096125, tlm.InputLevels[1], 1e-6)
	assert.Equal(t, -tlm.InputLevels[0], tlm.InputLevels[1])
}

func TestToTelemetryGainScaling(t *testing.T) {
	buf := Buffer{LatestSamples: [2]int16{10000, 10000}}

	for _, g := range []AfeGain{G1, G2, G5, G10} {
		tlm := buf.ToTelemetry(G1, g)
		assert.InDelta(t, tlm.InputLevels[0]/g.Multiplier(), tlm.InputLevels[1], 1e-6, g.String())
	}
}

func TestToTelemetryOutputs(t *testing.T) {
	buf := Buffer{
		LatestOutputs: [2]int16{math.MaxInt16, -math.MaxInt16},
		DigitalInputs: [2]bool{true, false},
	}

	tlm := buf.ToTelemetry(G1, G1)

	assert.Equal(t, float32(10.24), tlm.OutputLevels[0])
	assert.Equal(t, float32(-10.24), tlm.OutputLevels[1])
	assert.Equal(t, [2]bool{true, false}, tlm.DigitalInputs)
	assert.Equal(t, [2]float32{0, 0}, tlm.InputLevels)
}

func TestToTelemetryIsPure(t *testing.T) {
	buf := Buffer{LatestSamples: [2]int16{123, -456}, LatestOutputs: [2]int16{789, -1011}}
	before := buf

	a := buf.ToTelemetry(G5, G10)
	b := buf.ToTelemetry(G5, G10)

	assert.Equal(t, a, b)
	assert.Equal(t, before, buf)
}

func TestDACCode(t *testing.T) {
	assert.Equal(t, int16(math.MaxInt16), DACCode(10.24))
	assert.Equal(t, int16(0), DACCode(0))
	assert.Equal(t, int16(math.MaxInt16), DACCode(20))
	assert.Equal(t, int16(math.MinInt16), DACCode(-20))
	assert.InDelta(t, 16384, DACCode(5.12), 1)
}

func TestADCCodeInvertsToTelemetry(t *testing.T) {
	for _, g := range []AfeGain{G1, G2, G5, G10} {
		volts := float32(0.05)
		code := ADCCode(volts, g)
		tlm := Buffer{LatestSamples: [2]int16{code, 0}}.ToTelemetry(g, G1)
		assert.InDelta(t, volts, tlm.InputLevels[0], 1e-4, g.String())
	}
}

func TestAfeGain(t *testing.T) {
	tests := []struct {
		in   string
		want AfeGain
		mult float32
	}{
		{"G1", G1, 1},
		{"g2", G2, 2},
		{"5", G5, 5},
		{" G10 ", G10, 10},
	}
	for _, tt := range tests {
		got, err := ParseAfeGain(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, tt.mult, got.Multiplier())
	}

	_, err := ParseAfeGain("G3")
	assert.Error(t, err)
	assert.False(t, AfeGain(4).IsValid())
}

func TestAfeGainYAML(t *testing.T) {
	var cfg struct {
		Gains [2]AfeGain `yaml:"gains"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("gains: [G2, 10]\n"), &cfg))
	assert.Equal(t, [2]AfeGain{G2, G10}, cfg.Gains)

	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(out), "- G2")

	assert.Error(t, yaml.Unmarshal([]byte("gains: [G7, G1]\n"), &cfg))
}

func TestSharedBuffer(t *testing.T) {
	var s SharedBuffer
	s.Update(func(b *Buffer) { b.LatestSamples[0] = 42 })
	s.Store(Buffer{LatestOutputs: [2]int16{1, 2}})

	got := s.Load()
	assert.Equal(t, int16(0), got.LatestSamples[0])
	assert.Equal(t, [2]int16{1, 2}, got.LatestOutputs)

	got.LatestOutputs[0] = 99
	assert.Equal(t, int16(1), s.Load().LatestOutputs[0], "Load returns a copy")
}

func TestAfeGainCBOR(t *testing.T) {
	data, err := wire.Marshal(G5)
	require.NoError(t, err)

	var g AfeGain
	require.NoError(t, wire.Unmarshal(data, &g))
	assert.Equal(t, G5, g)

	data, err = wire.Marshal(uint8(3))
	require.NoError(t, err)
	require.NoError(t, wire.Unmarshal(data, &g))
	assert.Equal(t, G10, g)

	data, err = wire.Marshal(uint8(9))
	require.NoError(t, err)
	assert.Error(t, wire.Unmarshal(data, &g))
}
