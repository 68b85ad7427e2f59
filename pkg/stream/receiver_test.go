package stream

import (
	"bytes"
	"context"
	"encoding/csv"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sinara-hw/stabilizer-go/pkg/telemetry"
)

func frameOf(t *testing.T, seq uint32, n int) Frame {
	t.Helper()
	blocks := make([]Block, n)
	for i := range blocks {
		blocks[i] = testBlock(seq + uint32(i))
	}
	return Frame{Format: FormatADCDAC, Sequence: seq, Blocks: blocks}
}

func TestLossTracker(t *testing.T) {
	var l LossTracker

	l.Observe(frameOf(t, 100, 2))
	assert.Zero(t, l.Lost, "first frame sets the baseline")

	l.Observe(frameOf(t, 102, 2))
	assert.Zero(t, l.Lost)

	l.Observe(frameOf(t, 110, 2))
	assert.Equal(t, uint64(6), l.Lost)

	l.Observe(frameOf(t, 104, 2))
	assert.Equal(t, uint64(6), l.Lost, "late frame does not rewind")

	assert.Equal(t, uint64(4), l.Frames)
	assert.Equal(t, uint64(8), l.Blocks)
	assert.InDelta(t, 6.0/14.0, l.Ratio(), 1e-9)
}

func TestLossTrackerWraps(t *testing.T) {
	var l LossTracker
	l.Observe(frameOf(t, 0xFFFFFFFE, 2))
	l.Observe(frameOf(t, 1, 1))
	assert.Equal(t, uint64(1), l.Lost)
}

func TestLossTrackerEmptyRatio(t *testing.T) {
	var l LossTracker
	assert.Zero(t, l.Ratio())
}

func listen(t *testing.T) (*Receiver, *net.UDPConn) {
	t.Helper()
	r, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	conn, err := net.DialUDP("udp4", nil, net.UDPAddrFromAddrPort(r.Addr()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return r, conn
}

func sendFrame(t *testing.T, conn *net.UDPConn, seq uint32, n int) {
	t.Helper()
	data, err := EncodeFrame(frameOf(t, seq, n).Blocks)
	require.NoError(t, err)
	_, err = conn.Write(data)
	require.NoError(t, err)
}

func TestReceiverNext(t *testing.T) {
	r, conn := listen(t)

	_, err := conn.Write([]byte("junk"))
	require.NoError(t, err)
	sendFrame(t, conn, 5, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	f, err := r.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), f.Sequence)
	assert.Len(t, f.Blocks, 3)
	assert.Equal(t, uint64(1), r.Loss().Bad)
}

func TestReceiverNextCancelled(t *testing.T) {
	r, _ := listen(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := r.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReceiverMeasure(t *testing.T) {
	r, conn := listen(t)

	go func() {
		for _, seq := range []uint32{0, 2, 8} {
			data, _ := EncodeFrame(frameOf(t, seq, 2).Blocks)
			_, _ = conn.Write(data)
		}
	}()

	report, err := r.Measure(context.Background(), 300*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), report.Frames)
	assert.Equal(t, uint64(6), report.Blocks)
	assert.Equal(t, uint64(4), report.Lost)
	assert.Contains(t, report.String(), "3 frames")
}

func TestReceiverRecord(t *testing.T) {
	r, conn := listen(t)
	sendFrame(t, conn, 0, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var buf bytes.Buffer
	require.NoError(t, r.Record(ctx, &buf, 1, [2]telemetry.AfeGain{telemetry.G1, telemetry.G1}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 1+BatchSize)
	assert.Equal(t, []string{"block", "sample", "adc0", "adc1", "dac0", "dac1"}, rows[0])
	assert.Equal(t, "0", rows[1][0])
	assert.Equal(t, "0", rows[1][1])
	assert.Equal(t, "0.000000", rows[1][2])
}

func TestBlockVolts(t *testing.T) {
	var b Block
	b.ADC[0][0] = uint16(telemetry.ADCCode(0.2, telemetry.G2))
	b.DAC[1][3] = uint16(telemetry.DACCode(-2.5))

	adc, dac := b.Volts([2]telemetry.AfeGain{telemetry.G2, telemetry.G1})
	assert.InDelta(t, 0.2, adc[0][0], 1e-4)
	assert.InDelta(t, -2.5, dac[1][3], 1e-3)
}
