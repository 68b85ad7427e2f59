package metrics

import "github.com/sinara-hw/stabilizer-go/pkg/broker"

// StatsSource yields broker counters.
type StatsSource interface {
	Stats() broker.Stats
}

// RegisterBroker exports the counters of b.
func RegisterBroker(r *Registry, b StatsSource) error {
	counter := func(fn func(s broker.Stats) uint64) func() float64 {
		return func() float64 { return float64(fn(b.Stats())) }
	}

	regs := []error{
		r.Gauge("broker", "clients", "Connected clients.",
			func() float64 { return float64(b.Stats().Clients) }),
		r.Gauge("broker", "retained_topics", "Topics holding a retained publication.",
			func() float64 { return float64(b.Stats().Retained) }),
		r.Counter("broker", "accepted_total", "Accepted client sessions.",
			counter(func(s broker.Stats) uint64 { return s.Accepted })),
		r.Counter("broker", "rejected_total", "Rejected connection attempts.",
			counter(func(s broker.Stats) uint64 { return s.Rejected })),
		r.Counter("broker", "received_total", "Publications received.",
			counter(func(s broker.Stats) uint64 { return s.Received })),
		r.Counter("broker", "delivered_total", "Publications queued to subscribers.",
			counter(func(s broker.Stats) uint64 { return s.Delivered })),
		r.Counter("broker", "dropped_total", "Publications dropped for slow subscribers.",
			counter(func(s broker.Stats) uint64 { return s.Dropped })),
	}
	for _, err := range regs {
		if err != nil {
			return err
		}
	}
	return nil
}
