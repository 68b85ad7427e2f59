package metrics

import (
	"sync/atomic"

	"github.com/sinara-hw/stabilizer-go/pkg/network"
)

// Snapshot is a cross-goroutine copy of network.Metrics.
type Snapshot struct {
	p atomic.Pointer[network.Metrics]
}

// Store publishes m.
func (s *Snapshot) Store(m network.Metrics) {
	s.p.Store(&m)
}

// Load returns the last stored metrics, or zero values.
func (s *Snapshot) Load() network.Metrics {
	if m := s.p.Load(); m != nil {
		return *m
	}
	return network.Metrics{}
}

// RegisterDevice exports the network counters held by snap.
func RegisterDevice(r *Registry, snap *Snapshot) error {
	counter := func(fn func(m network.Metrics) uint64) func() float64 {
		return func() float64 { return float64(fn(snap.Load())) }
	}
	gauge := func(fn func(m network.Metrics) bool) func() float64 {
		return func() float64 { return boolGauge(fn(snap.Load())) }
	}

	regs := []error{
		r.Counter("network", "cycles_total", "Main loop network update cycles.",
			counter(func(m network.Metrics) uint64 { return m.Cycles })),
		r.Counter("network", "settings_updates_total", "Update cycles in which settings changed.",
			counter(func(m network.Metrics) uint64 { return m.SettingsUpdates })),
		r.Counter("network", "drain_steps_total", "Stream egress drain iterations.",
			counter(func(m network.Metrics) uint64 { return m.DrainSteps })),
		r.Gauge("network", "streaming_external", "1 when the stream generator was handed to the application.",
			func() float64 { return boolGauge(snap.Load().Streaming == network.External) }),
		r.Gauge("settings", "connected", "Settings broker session is up.",
			gauge(func(m network.Metrics) bool { return m.SettingsConnected })),
		r.Gauge("telemetry", "connected", "Telemetry broker session is up.",
			gauge(func(m network.Metrics) bool { return m.TelemetryConnected })),
		r.Counter("stack", "operations_total", "Operations routed through the shared stack.",
			counter(func(m network.Metrics) uint64 { return m.Stack.Operations })),
		r.Counter("processor", "polls_total", "Network stack polls.",
			counter(func(m network.Metrics) uint64 { return m.Processor.Polls })),
		r.Counter("processor", "poll_errors_total", "Network stack polls that failed.",
			counter(func(m network.Metrics) uint64 { return m.Processor.PollErrors })),
		r.Counter("processor", "link_resets_total", "Stack resets after link loss.",
			counter(func(m network.Metrics) uint64 { return m.Processor.LinkResets })),
		r.Counter("stream", "frames_total", "Stream frames sent.",
			counter(func(m network.Metrics) uint64 { return m.Stream.Frames })),
		r.Counter("stream", "blocks_total", "Sample blocks sent.",
			counter(func(m network.Metrics) uint64 { return m.Stream.Blocks })),
		r.Counter("stream", "dropped_frames_total", "Stream frames refused by the stack.",
			counter(func(m network.Metrics) uint64 { return m.Stream.DroppedFrames })),
		r.Counter("stream", "dropped_blocks_total", "Sample blocks lost to a full queue.",
			counter(func(m network.Metrics) uint64 { return m.Stream.DroppedBlocks })),
		r.Counter("stream", "discarded_blocks_total", "Sample blocks flushed while streaming was disabled.",
			counter(func(m network.Metrics) uint64 { return m.Stream.Discarded })),
	}
	for _, err := range regs {
		if err != nil {
			return err
		}
	}
	return nil
}
