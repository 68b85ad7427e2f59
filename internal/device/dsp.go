package device

import (
	"context"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/sinara-hw/stabilizer-go/pkg/stream"
	"github.com/sinara-hw/stabilizer-go/pkg/telemetry"
)

// DefaultBatchPeriod is the interval between simulated sample batches.
const DefaultBatchPeriod = time.Millisecond

// noiseLSB bounds the uniform ADC noise added to each sample.
const noiseLSB = 2

// DSP simulates the sampling loop. Configure and Attach may be called from
// any goroutine; Step must only be called from one.
type DSP struct {
	buffer   *telemetry.SharedBuffer
	settings atomic.Pointer[Settings]
	gen      atomic.Pointer[stream.Generator]
	rng      *rand.Rand

	batches atomic.Uint64
	sent    atomic.Uint64
}

// NewDSP creates a DSP publishing its latest samples to buffer.
func NewDSP(buffer *telemetry.SharedBuffer, initial Settings, seed uint64) *DSP {
	d := &DSP{
		buffer: buffer,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
	d.Configure(initial)
	return d
}

// Configure replaces the settings used by subsequent steps.
func (d *DSP) Configure(s Settings) {
	d.settings.Store(&s)
}

// Attach routes subsequent batches to gen. A nil gen detaches.
func (d *DSP) Attach(gen *stream.Generator) {
	d.gen.Store(gen)
}

// Batches returns the number of batches processed.
func (d *DSP) Batches() uint64 {
	return d.batches.Load()
}

// Sent returns the number of batches accepted by the generator.
func (d *DSP) Sent() uint64 {
	return d.sent.Load()
}

// Step processes one batch.
func (d *DSP) Step() {
	s := d.settings.Load()

	var adc, dac [2][stream.BatchSize]uint16
	var latestADC, latestDAC [2]int16
	for ch := range 2 {
		out := telemetry.DACCode(s.Output[ch])
		in := telemetry.ADCCode(s.Output[ch], s.AFE[ch])
		for i := range stream.BatchSize {
			sample := addNoise(in, d.rng.IntN(2*noiseLSB+1)-noiseLSB)
			adc[ch][i] = uint16(sample)
			dac[ch][i] = uint16(out)
			latestADC[ch] = sample
		}
		latestDAC[ch] = out
	}

	d.buffer.Update(func(b *telemetry.Buffer) {
		b.LatestSamples = latestADC
		b.LatestOutputs = latestDAC
	})
	d.batches.Add(1)

	if gen := d.gen.Load(); gen != nil && gen.Send(adc, dac) {
		d.sent.Add(1)
	}
}

// Run steps every period until ctx is done.
func (d *DSP) Run(ctx context.Context, period time.Duration) {
	if period <= 0 {
		period = DefaultBatchPeriod
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Step()
		}
	}
}

func addNoise(code int16, noise int) int16 {
	v := int(code) + noise
	return int16(min(max(v, -1<<15), 1<<15-1))
}
