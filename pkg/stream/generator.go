package stream

import (
	"net/netip"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// DefaultQueueDepth is the default number of blocks buffered between the
// producer and the network.
const DefaultQueueDepth = 64

// channel is the state shared by a Generator and its Stream.
type channel struct {
	queue   *xsync.MPMCQueueOf[Block]
	pending atomic.Int64
	remote  atomic.Pointer[netip.AddrPort]

	seq     atomic.Uint32
	dropped atomic.Uint64
}

func newChannel(depth int) *channel {
	c := &channel{queue: xsync.NewMPMCQueueOf[Block](depth)}
	c.remote.Store(&netip.AddrPort{})
	return c
}

func (c *channel) setRemote(addr netip.AddrPort) {
	c.remote.Store(&addr)
}

func (c *channel) loadRemote() netip.AddrPort {
	return *c.remote.Load()
}

// Generator produces sample blocks for a Stream. It is safe for concurrent
// use and never blocks.
type Generator struct {
	ch *channel
}

// Send enqueues one block of samples. It reports false when the queue is
// full; the block is dropped and counted.
func (g *Generator) Send(adc, dac [2][BatchSize]uint16) bool {
	b := Block{Seq: g.ch.seq.Add(1) - 1, ADC: adc, DAC: dac}

	// pending never undercounts the queue
	g.ch.pending.Add(1)
	if !g.ch.queue.TryEnqueue(b) {
		g.ch.pending.Add(-1)
		g.ch.dropped.Add(1)
		return false
	}
	return true
}

// SetRemote re-addresses the stream. An unspecified address disables it.
func (g *Generator) SetRemote(addr netip.AddrPort) {
	g.ch.setRemote(addr)
}

// Remote returns the current stream destination.
func (g *Generator) Remote() netip.AddrPort {
	return g.ch.loadRemote()
}

// Dropped returns the number of blocks lost to a full queue.
func (g *Generator) Dropped() uint64 {
	return g.ch.dropped.Load()
}
