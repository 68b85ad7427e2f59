// Package telemetry converts raw converter codes into calibrated telemetry
// and publishes it to the broker.
//
// The DSP path records the latest ADC samples, DAC outputs and digital input
// levels in a Buffer. ToTelemetry scales them to volts using the fixed
// full-scale references of the converters (4.096 V ADC, 10.24 V DAC) and the
// analog front-end gain of each input channel.
package telemetry
