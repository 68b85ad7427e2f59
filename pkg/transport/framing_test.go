package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

func TestFrameWriterReader(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{
			name:    "small message",
			payload: []byte("hello"),
		},
		{
			name:    "max size message",
			payload: bytes.Repeat([]byte("y"), DefaultMaxMessageSize),
		},
		{
			name:    "single byte",
			payload: []byte{0x42},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)

			writer := NewFrameWriter(buf)
			if err := writer.WriteFrame(tt.payload); err != nil {
				t.Fatalf("WriteFrame failed: %v", err)
			}

			expectedSize := LengthPrefixSize + len(tt.payload)
			if buf.Len() != expectedSize {
				t.Errorf("frame size = %d, want %d", buf.Len(), expectedSize)
			}

			reader := NewFrameReader(buf)
			got, err := reader.ReadFrame()
			if err != nil {
				t.Fatalf("ReadFrame failed: %v", err)
			}
			if !bytes.Equal(got, tt.payload) {
				t.Errorf("payload mismatch: got %d bytes, want %d bytes", len(got), len(tt.payload))
			}
		})
	}
}

func TestFrameWriterRejects(t *testing.T) {
	writer := NewFrameWriterWithMaxSize(io.Discard, 4)

	if err := writer.WriteFrame(nil); !errors.Is(err, ErrMessageEmpty) {
		t.Errorf("expected ErrMessageEmpty, got %v", err)
	}
	if err := writer.WriteFrame([]byte("hello")); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("expected ErrMessageTooLarge, got %v", err)
	}
}

func TestFrameReaderErrors(t *testing.T) {
	t.Run("EOF", func(t *testing.T) {
		_, err := NewFrameReader(bytes.NewReader(nil)).ReadFrame()
		if err != io.EOF {
			t.Errorf("expected io.EOF, got %v", err)
		}
	})

	t.Run("TruncatedPrefix", func(t *testing.T) {
		_, err := NewFrameReader(bytes.NewReader([]byte{0, 0})).ReadFrame()
		if !errors.Is(err, ErrFrameTruncated) {
			t.Errorf("expected ErrFrameTruncated, got %v", err)
		}
	})

	t.Run("TruncatedPayload", func(t *testing.T) {
		_, err := NewFrameReader(bytes.NewReader([]byte{0, 0, 0, 5, 'a'})).ReadFrame()
		if !errors.Is(err, ErrFrameTruncated) {
			t.Errorf("expected ErrFrameTruncated, got %v", err)
		}
	})

	t.Run("TooLarge", func(t *testing.T) {
		var prefix [4]byte
		binary.BigEndian.PutUint32(prefix[:], 100)
		_, err := NewFrameReaderWithMaxSize(bytes.NewReader(prefix[:]), 10).ReadFrame()
		if !errors.Is(err, ErrMessageTooLarge) {
			t.Errorf("expected ErrMessageTooLarge, got %v", err)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := NewFrameReader(bytes.NewReader([]byte{0, 0, 0, 0})).ReadFrame()
		if !errors.Is(err, ErrMessageEmpty) {
			t.Errorf("expected ErrMessageEmpty, got %v", err)
		}
	})
}

func TestFrameDecoderChunked(t *testing.T) {
	var stream []byte
	var err error
	for _, msg := range []string{"first", "second", "third"} {
		stream, err = AppendFrame(stream, []byte(msg), DefaultMaxMessageSize)
		if err != nil {
			t.Fatalf("AppendFrame failed: %v", err)
		}
	}

	d := NewFrameDecoder(DefaultMaxMessageSize)
	var got []string

	// Feed one byte at a time, as a congested socket might deliver it.
	for _, b := range stream {
		d.Feed([]byte{b})
		for {
			frame, err := d.Next()
			if err != nil {
				t.Fatalf("Next failed: %v", err)
			}
			if frame == nil {
				break
			}
			got = append(got, string(frame))
		}
	}

	if len(got) != 3 || got[0] != "first" || got[1] != "second" || got[2] != "third" {
		t.Errorf("frames = %v", got)
	}
	if d.Buffered() != 0 {
		t.Errorf("Buffered() = %d, want 0", d.Buffered())
	}
}

func TestFrameDecoderFramesDoNotAlias(t *testing.T) {
	stream, _ := AppendFrame(nil, []byte("aa"), 16)
	stream, _ = AppendFrame(stream, []byte("bb"), 16)

	d := NewFrameDecoder(16)
	d.Feed(stream)

	first, _ := d.Next()
	second, _ := d.Next()
	if string(first) != "aa" || string(second) != "bb" {
		t.Errorf("frames = %q, %q", first, second)
	}
}

func TestFrameDecoderRejectsOversize(t *testing.T) {
	d := NewFrameDecoder(8)
	d.Feed([]byte{0, 0, 1, 0})
	if _, err := d.Next(); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("expected ErrMessageTooLarge, got %v", err)
	}

	d.Reset()
	if d.Buffered() != 0 {
		t.Errorf("Buffered() after Reset = %d", d.Buffered())
	}
}
