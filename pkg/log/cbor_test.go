package log

import (
	"testing"
	"time"
)

func TestEncodeDecodeEventPreservesNanoseconds(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	event := Event{
		Timestamp: ts,
		ClientID:  "stream",
		Layer:     LayerStream,
		Category:  CategoryMessage,
		Frame:     &FrameEvent{Size: 1032, Sequence: 77, Batches: 15},
	}

	data, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}

	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if !decoded.Timestamp.Equal(ts) {
		t.Errorf("Timestamp: got %v, want %v", decoded.Timestamp, ts)
	}
	if decoded.Frame == nil || decoded.Frame.Sequence != 77 || decoded.Frame.Batches != 15 {
		t.Errorf("Frame: got %+v", decoded.Frame)
	}
}

func TestDecodeEventRejectsGarbage(t *testing.T) {
	if _, err := DecodeEvent([]byte{0xff, 0x00}); err == nil {
		t.Error("expected error decoding garbage")
	}
}
