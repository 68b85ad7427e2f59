package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

const (
	// LengthPrefixSize is the big-endian length header in front of every
	// packet on a stream connection.
	LengthPrefixSize = 4

	// DefaultMaxMessageSize bounds a single packet (64 KiB).
	DefaultMaxMessageSize = 64 << 10
)

var (
	ErrMessageTooLarge = errors.New("message too large")
	ErrMessageEmpty    = errors.New("message is empty")
	ErrFrameTruncated  = errors.New("frame truncated")
)

// checkLength validates a payload length against limit.
func checkLength(n uint64, limit uint32) error {
	switch {
	case n == 0:
		return ErrMessageEmpty
	case n > uint64(limit):
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, n, limit)
	}
	return nil
}

// AppendFrame appends data with its length prefix to dst.
func AppendFrame(dst, data []byte, maxSize uint32) ([]byte, error) {
	if err := checkLength(uint64(len(data)), maxSize); err != nil {
		return dst, err
	}
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(data)))
	return append(dst, data...), nil
}

// FrameWriter frames packets onto a blocking writer. It is safe for
// concurrent use and issues one Write per frame.
type FrameWriter struct {
	mu    sync.Mutex
	w     io.Writer
	limit uint32
	out   []byte
}

func NewFrameWriter(w io.Writer) *FrameWriter {
	return NewFrameWriterWithMaxSize(w, DefaultMaxMessageSize)
}

func NewFrameWriterWithMaxSize(w io.Writer, maxSize uint32) *FrameWriter {
	return &FrameWriter{w: w, limit: maxSize}
}

func (fw *FrameWriter) WriteFrame(data []byte) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	out, err := AppendFrame(fw.out[:0], data, fw.limit)
	if err != nil {
		return err
	}
	fw.out = out
	if _, err := fw.w.Write(out); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// FrameReader reads frames from a blocking reader. A clean end of stream
// between frames yields io.EOF; one inside a frame yields ErrFrameTruncated.
type FrameReader struct {
	r      io.Reader
	limit  uint32
	header [LengthPrefixSize]byte
}

func NewFrameReader(r io.Reader) *FrameReader {
	return NewFrameReaderWithMaxSize(r, DefaultMaxMessageSize)
}

func NewFrameReaderWithMaxSize(r io.Reader, maxSize uint32) *FrameReader {
	return &FrameReader{r: r, limit: maxSize}
}

// ReadFrame returns the next payload without its prefix.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	switch _, err := io.ReadFull(fr.r, fr.header[:]); {
	case err == io.EOF:
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return nil, ErrFrameTruncated
	case err != nil:
		return nil, fmt.Errorf("read length prefix: %w", err)
	}

	n := binary.BigEndian.Uint32(fr.header[:])
	if err := checkLength(uint64(n), fr.limit); err != nil {
		return nil, err
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrFrameTruncated
		}
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return payload, nil
}

// FrameDecoder reassembles frames from the chunks a polled socket yields.
// Next returns nil until a whole frame is buffered and never blocks.
type FrameDecoder struct {
	pending []byte
	limit   uint32
}

func NewFrameDecoder(maxSize uint32) *FrameDecoder {
	return &FrameDecoder{limit: maxSize}
}

// Feed buffers received bytes.
func (d *FrameDecoder) Feed(p []byte) {
	d.pending = append(d.pending, p...)
}

// Next pops one complete payload. After an error the stream is corrupt and
// the owner should drop the connection.
func (d *FrameDecoder) Next() ([]byte, error) {
	if len(d.pending) < LengthPrefixSize {
		return nil, nil
	}
	n := binary.BigEndian.Uint32(d.pending)
	if err := checkLength(uint64(n), d.limit); err != nil {
		return nil, err
	}
	end := LengthPrefixSize + int(n)
	if len(d.pending) < end {
		return nil, nil
	}

	payload := append([]byte(nil), d.pending[LengthPrefixSize:end]...)
	d.pending = append(d.pending[:0], d.pending[end:]...)
	return payload, nil
}

// Buffered reports bytes held for an incomplete frame.
func (d *FrameDecoder) Buffered() int { return len(d.pending) }

// Reset drops anything buffered.
func (d *FrameDecoder) Reset() { d.pending = d.pending[:0] }
