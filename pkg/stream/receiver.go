package stream

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"strconv"
	"time"

	"github.com/sinara-hw/stabilizer-go/pkg/telemetry"
)

// readInterval bounds how long a receive blocks before checking its context.
const readInterval = 100 * time.Millisecond

// Volts converts the block's codes to volts using the AFE gain of each input.
func (b *Block) Volts(gains [2]telemetry.AfeGain) (adc, dac [2][BatchSize]float32) {
	for ch := range 2 {
		for i := range BatchSize {
			adc[ch][i] = telemetry.ADCVolts(int16(b.ADC[ch][i]), gains[ch])
			dac[ch][i] = telemetry.DACVolts(int16(b.DAC[ch][i]))
		}
	}
	return adc, dac
}

// LossTracker accounts received blocks and sequence gaps.
type LossTracker struct {
	// Frames and Blocks count what was received.
	Frames uint64
	Blocks uint64

	// Lost counts blocks skipped by the sequence.
	Lost uint64

	// Bad counts datagrams that did not decode.
	Bad uint64

	next    uint32
	started bool
}

// Observe accounts a received frame. Late frames count as received but do
// not rewind the expected sequence.
func (l *LossTracker) Observe(f Frame) {
	l.Frames++
	l.Blocks += uint64(len(f.Blocks))

	gap := int32(f.Sequence - l.next)
	if l.started && gap < 0 {
		return
	}
	if l.started {
		l.Lost += uint64(gap)
	}
	l.next = f.Sequence + uint32(len(f.Blocks))
	l.started = true
}

// Ratio returns the fraction of blocks lost.
func (l *LossTracker) Ratio() float64 {
	total := l.Blocks + l.Lost
	if total == 0 {
		return 0
	}
	return float64(l.Lost) / float64(total)
}

// Report is the result of a loss measurement.
type Report struct {
	Duration time.Duration
	Frames   uint64
	Blocks   uint64
	Lost     uint64
	Bad      uint64
	Ratio    float64
}

// String formats the report for humans.
func (r Report) String() string {
	return fmt.Sprintf("%d frames, %d blocks, %d lost (%.3f%%), %d bad in %s",
		r.Frames, r.Blocks, r.Lost, r.Ratio*100, r.Bad, r.Duration)
}

// Receiver receives stream frames on a host UDP socket.
type Receiver struct {
	conn *net.UDPConn
	buf  []byte
	loss LossTracker
}

// Listen opens a receiver on addr ("host:port"; port 0 picks a free port).
func Listen(addr string) (*Receiver, error) {
	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	return &Receiver{conn: conn, buf: make([]byte, 65535)}, nil
}

// Addr returns the local address frames should be sent to.
func (r *Receiver) Addr() netip.AddrPort {
	return r.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

// Loss returns the accounting since the receiver was opened or last reset.
func (r *Receiver) Loss() LossTracker {
	return r.loss
}

// ResetLoss clears the loss accounting.
func (r *Receiver) ResetLoss() {
	r.loss = LossTracker{}
}

// Next blocks until a frame arrives or ctx is done. Undecodable datagrams
// are counted and skipped.
func (r *Receiver) Next(ctx context.Context) (Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}
		deadline := time.Now().Add(readInterval)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		if err := r.conn.SetReadDeadline(deadline); err != nil {
			return Frame{}, err
		}

		n, err := r.conn.Read(r.buf)
		if errors.Is(err, os.ErrDeadlineExceeded) {
			continue
		}
		if err != nil {
			return Frame{}, fmt.Errorf("receive: %w", err)
		}

		f, err := DecodeFrame(r.buf[:n])
		if err != nil {
			r.loss.Bad++
			continue
		}
		r.loss.Observe(f)
		return f, nil
	}
}

// Measure receives frames for d and reports the loss observed in that window.
func (r *Receiver) Measure(ctx context.Context, d time.Duration) (Report, error) {
	r.ResetLoss()
	window, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	start := time.Now()
	for {
		if _, err := r.Next(window); err != nil {
			if ctx.Err() != nil {
				return Report{}, ctx.Err()
			}
			if !errors.Is(err, context.DeadlineExceeded) {
				return Report{}, err
			}
			break
		}
	}

	return Report{
		Duration: time.Since(start),
		Frames:   r.loss.Frames,
		Blocks:   r.loss.Blocks,
		Lost:     r.loss.Lost,
		Bad:      r.loss.Bad,
		Ratio:    r.loss.Ratio(),
	}, nil
}

// Record writes the samples of the next n frames to w as CSV, one row per
// sample, in volts.
func (r *Receiver) Record(ctx context.Context, w io.Writer, n int, gains [2]telemetry.AfeGain) error {
	out := csv.NewWriter(w)
	if err := out.Write([]string{"block", "sample", "adc0", "adc1", "dac0", "dac1"}); err != nil {
		return err
	}

	row := make([]string, 6)
	for range n {
		f, err := r.Next(ctx)
		if err != nil {
			return err
		}
		for i := range f.Blocks {
			adc, dac := f.Blocks[i].Volts(gains)
			for j := range BatchSize {
				row[0] = strconv.FormatUint(uint64(f.Blocks[i].Seq), 10)
				row[1] = strconv.Itoa(j)
				row[2] = formatVolts(adc[0][j])
				row[3] = formatVolts(adc[1][j])
				row[4] = formatVolts(dac[0][j])
				row[5] = formatVolts(dac[1][j])
				if err := out.Write(row); err != nil {
					return err
				}
			}
		}
	}
	out.Flush()
	return out.Error()
}

// Close closes the socket.
func (r *Receiver) Close() error {
	return r.conn.Close()
}

func formatVolts(v float32) string {
	return strconv.FormatFloat(float64(v), 'f', 6, 32)
}
