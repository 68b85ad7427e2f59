package stream

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sinara-hw/stabilizer-go/internal/testharness/mock"
	"github.com/sinara-hw/stabilizer-go/pkg/netstack"
)

var (
	hostA = netip.MustParseAddrPort("10.0.0.2:9293")
	hostB = netip.MustParseAddrPort("10.0.0.3:9293")
)

func sendBlocks(t *testing.T, g *Generator, n int) {
	t.Helper()
	for range n {
		b := testBlock(0)
		require.True(t, g.Send(b.ADC, b.DAC))
	}
}

func decodeAll(t *testing.T, datagrams [][]byte) []Frame {
	t.Helper()
	frames := make([]Frame, 0, len(datagrams))
	for _, d := range datagrams {
		f, err := DecodeFrame(d)
		require.NoError(t, err)
		frames = append(frames, f)
	}
	return frames
}

func TestStreamDisabledDiscards(t *testing.T) {
	stack := mock.NewStack()
	gen, s := New(stack, DefaultConfig())

	sendBlocks(t, gen, 5)
	assert.Equal(t, 5, s.Pending())

	assert.False(t, s.Process())
	assert.Equal(t, 0, s.Pending())
	assert.Equal(t, uint64(5), s.Stats().Discarded)
	assert.NotContains(t, stack.Ops(), "open")
}

func TestStreamSendsFrames(t *testing.T) {
	stack := mock.NewStack()
	gen, s := New(stack, DefaultConfig())
	gen.SetRemote(hostA)

	sendBlocks(t, gen, 20)

	assert.True(t, s.Process(), "15 of 20 blocks fit the first frame")
	assert.False(t, s.Process())

	frames := decodeAll(t, stack.TakeDatagrams(hostA))
	require.Len(t, frames, 2)
	assert.Equal(t, uint32(0), frames[0].Sequence)
	assert.Len(t, frames[0].Blocks, 15)
	assert.Equal(t, uint32(15), frames[1].Sequence)
	assert.Len(t, frames[1].Blocks, 5)

	st := s.Stats()
	assert.Equal(t, uint64(2), st.Frames)
	assert.Equal(t, uint64(20), st.Blocks)
}

func TestStreamIdleWithoutBlocks(t *testing.T) {
	stack := mock.NewStack()
	_, s := New(stack, DefaultConfig())
	s.SetRemote(hostA)

	assert.False(t, s.Process())
	assert.NotContains(t, stack.Ops(), "open")
}

func TestGeneratorDropsWhenFull(t *testing.T) {
	stack := mock.NewStack()
	gen, s := New(stack, Config{QueueDepth: 4})

	sendBlocks(t, gen, 4)
	b := testBlock(0)
	assert.False(t, gen.Send(b.ADC, b.DAC))

	assert.Equal(t, uint64(1), gen.Dropped())
	assert.Equal(t, uint64(1), s.Stats().DroppedBlocks)
	assert.Equal(t, 4, s.Pending())
}

func TestStreamRetarget(t *testing.T) {
	stack := mock.NewStack()
	gen, s := New(stack, DefaultConfig())
	gen.SetRemote(hostA)

	sendBlocks(t, gen, 1)
	s.Process()
	assert.Len(t, stack.TakeDatagrams(hostA), 1)

	gen.SetRemote(hostB)
	assert.Equal(t, hostB, s.Remote())
	sendBlocks(t, gen, 1)
	s.Process()

	_, onA := stack.Find(netstack.UDP, hostA)
	assert.False(t, onA, "old socket closed")
	frames := decodeAll(t, stack.TakeDatagrams(hostB))
	require.Len(t, frames, 1)
	assert.Equal(t, uint32(1), frames[0].Sequence)
}

func TestStreamDisableClosesSocket(t *testing.T) {
	stack := mock.NewStack()
	gen, s := New(stack, DefaultConfig())
	gen.SetRemote(hostA)
	sendBlocks(t, gen, 1)
	s.Process()

	gen.SetRemote(netip.AddrPort{})
	sendBlocks(t, gen, 3)
	assert.False(t, s.Process())

	_, open := stack.Find(netstack.UDP, hostA)
	assert.False(t, open)
	assert.Equal(t, uint64(3), s.Stats().Discarded)
}

func TestStreamDropsRefusedFrames(t *testing.T) {
	stack := mock.NewStack()
	stack.SendErr = netstack.ErrWouldBlock
	gen, s := New(stack, Config{MaxFrameSize: HeaderSize + BlockSize})
	gen.SetRemote(hostA)

	sendBlocks(t, gen, 2)
	assert.True(t, s.Process())
	assert.False(t, s.Process())

	st := s.Stats()
	assert.Equal(t, uint64(2), st.DroppedFrames)
	assert.Zero(t, st.Frames)
	assert.Equal(t, 0, s.Pending())
}

func TestStreamReopensAfterLinkReset(t *testing.T) {
	stack := mock.NewStack()
	gen, s := New(stack, DefaultConfig())
	gen.SetRemote(hostA)
	sendBlocks(t, gen, 1)
	s.Process()
	stack.TakeDatagrams(hostA)

	stack.HandleLinkReset()
	sendBlocks(t, gen, 1)
	assert.False(t, s.Process(), "lost socket is closed first")
	assert.Equal(t, 1, s.Pending())

	s.Process()
	assert.Len(t, stack.TakeDatagrams(hostA), 1)
	assert.Equal(t, 0, s.Pending())
}
