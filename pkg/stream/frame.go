package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Frame layout constants.
const (
	// Magic identifies stream frames.
	Magic uint16 = 0x057B

	// FormatADCDAC is the only defined frame format.
	FormatADCDAC uint8 = 1

	// HeaderSize is the frame header size in bytes.
	HeaderSize = 8

	// BatchSize is the number of samples per channel in a block.
	BatchSize = 8

	// BlockSize is the encoded size of a block in bytes.
	BlockSize = 4 * BatchSize * 2

	// DefaultMaxFrameSize is the default maximum UDP payload.
	DefaultMaxFrameSize = 1024
)

// Frame errors.
var (
	// ErrBadMagic indicates the datagram is not a stream frame.
	ErrBadMagic = errors.New("bad frame magic")

	// ErrUnknownFormat indicates an unsupported frame format.
	ErrUnknownFormat = errors.New("unknown frame format")

	// ErrFrameTruncated indicates the datagram is shorter than its header announces.
	ErrFrameTruncated = errors.New("frame truncated")
)

// Block is one batch of samples of both ADC and DAC channels.
type Block struct {
	// Seq is assigned by the Generator.
	Seq uint32

	ADC [2][BatchSize]uint16
	DAC [2][BatchSize]uint16
}

// Frame is a decoded stream datagram.
type Frame struct {
	Format   uint8
	Sequence uint32
	Blocks   []Block
}

// BlocksPerFrame returns how many blocks fit into a frame of maxFrameSize bytes.
func BlocksPerFrame(maxFrameSize int) int {
	n := (maxFrameSize - HeaderSize) / BlockSize
	return max(0, min(n, 255))
}

// appendHeader appends a frame header.
func appendHeader(dst []byte, blocks uint8, sequence uint32) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, Magic)
	dst = append(dst, FormatADCDAC, blocks)
	return binary.LittleEndian.AppendUint32(dst, sequence)
}

// putHeader writes a frame header into the first HeaderSize bytes of buf.
func putHeader(buf []byte, blocks uint8, sequence uint32) {
	binary.LittleEndian.PutUint16(buf, Magic)
	buf[2] = FormatADCDAC
	buf[3] = blocks
	binary.LittleEndian.PutUint32(buf[4:], sequence)
}

// appendBlock appends the sample payload of b.
func appendBlock(dst []byte, b *Block) []byte {
	for _, ch := range b.ADC {
		for _, s := range ch {
			dst = binary.LittleEndian.AppendUint16(dst, s)
		}
	}
	for _, ch := range b.DAC {
		for _, s := range ch {
			dst = binary.LittleEndian.AppendUint16(dst, s)
		}
	}
	return dst
}

// EncodeFrame encodes blocks into a frame. The frame sequence is the Seq of the first block.
func EncodeFrame(blocks []Block) ([]byte, error) {
	if len(blocks) == 0 || len(blocks) > 255 {
		return nil, fmt.Errorf("frame must carry 1..255 blocks, got %d", len(blocks))
	}
	buf := make([]byte, 0, HeaderSize+len(blocks)*BlockSize)
	buf = appendHeader(buf, uint8(len(blocks)), blocks[0].Seq)
	for i := range blocks {
		buf = appendBlock(buf, &blocks[i])
	}
	return buf, nil
}

// DecodeFrame decodes a stream datagram. Block sequence numbers are derived
// from the frame sequence.
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) < HeaderSize {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrFrameTruncated, len(data))
	}
	if magic := binary.LittleEndian.Uint16(data); magic != Magic {
		return Frame{}, fmt.Errorf("%w: %#04x", ErrBadMagic, magic)
	}

	f := Frame{
		Format:   data[2],
		Sequence: binary.LittleEndian.Uint32(data[4:]),
	}
	if f.Format != FormatADCDAC {
		return Frame{}, fmt.Errorf("%w: %d", ErrUnknownFormat, f.Format)
	}

	count := int(data[3])
	payload := data[HeaderSize:]
	if len(payload) < count*BlockSize {
		return Frame{}, fmt.Errorf("%w: %d blocks need %d bytes, have %d", ErrFrameTruncated, count, count*BlockSize, len(payload))
	}

	f.Blocks = make([]Block, count)
	for i := range f.Blocks {
		b := &f.Blocks[i]
		b.Seq = f.Sequence + uint32(i)
		p := payload[i*BlockSize:]
		for ch := range 2 {
			for j := range BatchSize {
				b.ADC[ch][j] = binary.LittleEndian.Uint16(p)
				p = p[2:]
			}
		}
		for ch := range 2 {
			for j := range BatchSize {
				b.DAC[ch][j] = binary.LittleEndian.Uint16(p)
				p = p[2:]
			}
		}
	}
	return f, nil
}
