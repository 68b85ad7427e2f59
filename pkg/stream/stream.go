package stream

import (
	"fmt"
	"net/netip"

	"github.com/sinara-hw/stabilizer-go/pkg/log"
	"github.com/sinara-hw/stabilizer-go/pkg/netstack"
)

// clientID names the stream in protocol log events.
const clientID = "stream"

// Config configures a Stream.
type Config struct {
	// QueueDepth is the capacity of the block queue.
	QueueDepth int

	// MaxFrameSize bounds the UDP payload of a frame.
	MaxFrameSize int

	// Logger receives protocol events.
	Logger log.Logger
}

// DefaultConfig returns the default stream configuration.
func DefaultConfig() Config {
	return Config{
		QueueDepth:   DefaultQueueDepth,
		MaxFrameSize: DefaultMaxFrameSize,
	}
}

// Stats holds stream egress counters.
type Stats struct {
	// Frames is the number of frames accepted by the stack.
	Frames uint64

	// Blocks is the number of blocks carried by those frames.
	Blocks uint64

	// DroppedFrames is the number of frames the stack refused.
	DroppedFrames uint64

	// DroppedBlocks is the number of blocks lost to a full queue.
	DroppedBlocks uint64

	// Discarded is the number of blocks flushed while the stream was disabled.
	Discarded uint64
}

// Stream drains the block queue into UDP frames. It is driven by Process
// from the network goroutine.
type Stream struct {
	stack  netstack.Stack
	ch     *channel
	logger log.Logger

	maxBlocks int
	frame     []byte

	sock    netstack.Socket
	hasSock bool
	target  netip.AddrPort

	stats Stats
}

// New creates a stream on stack and its paired generator. The stream starts
// disabled.
func New(stack netstack.Stack, config Config) (*Generator, *Stream) {
	if config.QueueDepth <= 0 {
		config.QueueDepth = DefaultQueueDepth
	}
	if config.MaxFrameSize <= 0 {
		config.MaxFrameSize = DefaultMaxFrameSize
	}
	maxBlocks := max(1, BlocksPerFrame(config.MaxFrameSize))

	ch := newChannel(config.QueueDepth)
	s := &Stream{
		stack:     stack,
		ch:        ch,
		logger:    log.OrNoop(config.Logger),
		maxBlocks: maxBlocks,
		frame:     make([]byte, 0, HeaderSize+maxBlocks*BlockSize),
	}
	return &Generator{ch: ch}, s
}

// SetRemote sets the stream destination.
func (s *Stream) SetRemote(addr netip.AddrPort) {
	s.ch.setRemote(addr)
}

// Remote returns the stream destination.
func (s *Stream) Remote() netip.AddrPort {
	return s.ch.loadRemote()
}

// Pending returns the number of queued blocks.
func (s *Stream) Pending() int {
	return int(max(0, s.ch.pending.Load()))
}

// Stats returns a snapshot of the egress counters.
func (s *Stream) Stats() Stats {
	st := s.stats
	st.DroppedBlocks = s.ch.dropped.Load()
	return st
}

// Process sends at most one frame. It reports whether more blocks are
// waiting, i.e. whether another call would make progress.
func (s *Stream) Process() bool {
	remote := s.ch.loadRemote()
	if !netstack.ValidRemote(remote) {
		s.discard()
		s.closeSocket("disabled")
		return false
	}
	if s.ch.pending.Load() <= 0 {
		return false
	}

	if !s.hasSock || s.target != remote {
		if !s.open(remote) {
			return false
		}
	}
	if !s.stack.IsConnected(s.sock) {
		s.closeSocket("link lost")
		return false
	}

	n, seq := s.encode()
	if n == 0 {
		return false
	}
	if _, err := s.stack.Send(s.sock, s.frame); err != nil {
		s.stats.DroppedFrames++
		return s.ch.pending.Load() > 0
	}
	s.stats.Frames++
	s.stats.Blocks += uint64(n)
	s.logger.Log(log.Event{
		ClientID:   clientID,
		Direction:  log.DirectionOut,
		Layer:      log.LayerStream,
		Category:   log.CategoryMessage,
		RemoteAddr: remote.String(),
		Frame:      &log.FrameEvent{Size: len(s.frame), Sequence: seq, Batches: uint8(n)},
	})
	return s.ch.pending.Load() > 0
}

// encode dequeues up to maxBlocks blocks into s.frame.
func (s *Stream) encode() (int, uint32) {
	s.frame = s.frame[:HeaderSize]
	var first uint32
	n := 0
	for n < s.maxBlocks {
		b, ok := s.ch.queue.TryDequeue()
		if !ok {
			break
		}
		s.ch.pending.Add(-1)
		if n == 0 {
			first = b.Seq
		}
		s.frame = appendBlock(s.frame, &b)
		n++
	}
	if n == 0 {
		return 0, 0
	}
	putHeader(s.frame, uint8(n), first)
	return n, first
}

func (s *Stream) open(remote netip.AddrPort) bool {
	s.closeSocket("retarget")

	sock, err := s.stack.Open(netstack.UDP)
	if err != nil {
		s.logError(remote, fmt.Errorf("open: %w", err))
		return false
	}
	if err := s.stack.Connect(sock, remote); err != nil {
		_ = s.stack.Close(sock)
		s.logError(remote, fmt.Errorf("connect: %w", err))
		return false
	}
	s.sock, s.hasSock, s.target = sock, true, remote
	s.logState(remote, "IDLE", "STREAMING", "")
	return true
}

func (s *Stream) closeSocket(reason string) {
	if !s.hasSock {
		return
	}
	_ = s.stack.Close(s.sock)
	s.hasSock = false
	s.logState(s.target, "STREAMING", "IDLE", reason)
	s.target = netip.AddrPort{}
}

func (s *Stream) discard() {
	for {
		if _, ok := s.ch.queue.TryDequeue(); !ok {
			return
		}
		s.ch.pending.Add(-1)
		s.stats.Discarded++
	}
}

func (s *Stream) logState(remote netip.AddrPort, from, to, reason string) {
	s.logger.Log(log.Event{
		ClientID:   clientID,
		Layer:      log.LayerStream,
		Category:   log.CategoryState,
		RemoteAddr: remote.String(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityStreaming,
			OldState: from,
			NewState: to,
			Reason:   reason,
		},
	})
}

func (s *Stream) logError(remote netip.AddrPort, err error) {
	s.logger.Log(log.Event{
		ClientID:   clientID,
		Layer:      log.LayerStream,
		Category:   log.CategoryError,
		RemoteAddr: remote.String(),
		Error:      &log.ErrorEventData{Layer: log.LayerStream, Message: err.Error(), Context: "stream socket"},
	})
}
