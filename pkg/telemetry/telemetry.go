package telemetry

import (
	"math"
	"sync"
)

// Converter full-scale references.
const (
	// ADCFullScale is the ADC reference in volts.
	ADCFullScale = 4.096

	// DACFullScale is the DAC output range in volts.
	DACFullScale = 10.24

	// adcFrontEndAttenuation is the fixed input attenuation ahead of the AFE gain.
	adcFrontEndAttenuation = 5.0
)

// Buffer holds the latest raw values observed by the DSP path.
type Buffer struct {
	// LatestSamples are the most recent ADC codes per channel.
	LatestSamples [2]int16

	// LatestOutputs are the most recent DAC codes per channel.
	LatestOutputs [2]int16

	// DigitalInputs are the levels of the digital inputs.
	DigitalInputs [2]bool
}

// Telemetry is the calibrated, published form of a Buffer.
type Telemetry struct {
	InputLevels   [2]float32 `cbor:"input_levels" json:"input_levels"`
	OutputLevels  [2]float32 `cbor:"output_levels" json:"output_levels"`
	DigitalInputs [2]bool    `cbor:"digital_inputs" json:"digital_inputs"`
}

// ToTelemetry converts raw codes to volts using the AFE gain of each input.
func (b Buffer) ToTelemetry(afe0, afe1 AfeGain) Telemetry {
	gains := [2]AfeGain{afe0, afe1}

	var t Telemetry
	for i := range 2 {
		t.InputLevels[i] = ADCVolts(b.LatestSamples[i], gains[i])
		t.OutputLevels[i] = DACVolts(b.LatestOutputs[i])
	}
	t.DigitalInputs = b.DigitalInputs
	return t
}

// ADCVolts converts an ADC code to the input voltage at the given gain.
func ADCVolts(code int16, gain AfeGain) float32 {
	return float32(code) / (math.MaxInt16 * adcFrontEndAttenuation * gain.Multiplier()) * ADCFullScale
}

// DACVolts converts a DAC code to the output voltage.
func DACVolts(code int16) float32 {
	return float32(code) / math.MaxInt16 * DACFullScale
}

// DACCode returns the DAC code producing volts, saturated to the code range.
func DACCode(volts float32) int16 {
	return saturate(volts / DACFullScale * math.MaxInt16)
}

// ADCCode returns the ADC code an input of volts produces at the given gain,
// saturated to the code range.
func ADCCode(volts float32, gain AfeGain) int16 {
	return saturate(volts / ADCFullScale * (math.MaxInt16 * adcFrontEndAttenuation * gain.Multiplier()))
}

func saturate(code float32) int16 {
	switch {
	case code >= math.MaxInt16:
		return math.MaxInt16
	case code <= math.MinInt16:
		return math.MinInt16
	default:
		return int16(math.Round(float64(code)))
	}
}

// SharedBuffer is a Buffer shared between the DSP goroutine and the network loop.
type SharedBuffer struct {
	mu  sync.Mutex
	buf Buffer
}

// Load returns a copy of the buffer.
func (s *SharedBuffer) Load() Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf
}

// Store replaces the buffer.
func (s *SharedBuffer) Store(b Buffer) {
	s.mu.Lock()
	s.buf = b
	s.mu.Unlock()
}

// Update applies fn to the buffer in place.
func (s *SharedBuffer) Update(fn func(*Buffer)) {
	s.mu.Lock()
	fn(&s.buf)
	s.mu.Unlock()
}
