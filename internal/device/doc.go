// Package device holds the application side of the simulated Stabilizer:
// the runtime settings tree served over the settings topic and the DSP loop
// that produces samples for telemetry and streaming.
//
// The DSP loop stands in for the analog front end. Each step emits one
// batch: the DAC outputs follow the configured set points and each ADC
// reads back its DAC through an ideal loopback cable plus a little noise.
package device
