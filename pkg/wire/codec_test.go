package wire

import (
	"bytes"
	"errors"
	"testing"
)

func TestPacketEncodeDecode(t *testing.T) {
	tests := []struct {
		name string
		pkt  *Packet
	}{
		{"connect", Connect("stabilizer-00-11-22-33-44-55-tlm", 30)},
		{"connack", ConnAck(CodeUnavailable)},
		{"subscribe", Subscribe(7, "dt/sinara/stabilizer/00-11-22-33-44-55/settings/#")},
		{"suback", SubAck(7, CodeAccepted)},
		{"publish", Publish("dt/sinara/stabilizer/00-11-22-33-44-55/telemetry", []byte{0xa0}, true)},
		{"ping", Control(PacketPing)},
		{"disconnect", Control(PacketDisconnect)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodePacket(tt.pkt)
			if err != nil {
				t.Fatalf("EncodePacket failed: %v", err)
			}

			got, err := DecodePacket(data)
			if err != nil {
				t.Fatalf("DecodePacket failed: %v", err)
			}

			if got.Type != tt.pkt.Type || got.ClientID != tt.pkt.ClientID ||
				got.KeepAlive != tt.pkt.KeepAlive || got.PacketID != tt.pkt.PacketID ||
				got.Topic != tt.pkt.Topic || got.Retain != tt.pkt.Retain || got.Code != tt.pkt.Code {
				t.Errorf("decoded packet = %+v, want %+v", got, tt.pkt)
			}
			if !bytes.Equal(got.Payload, tt.pkt.Payload) {
				t.Errorf("Payload = %x, want %x", got.Payload, tt.pkt.Payload)
			}
			if len(got.Filters) != len(tt.pkt.Filters) {
				t.Errorf("Filters = %v, want %v", got.Filters, tt.pkt.Filters)
			}
		})
	}
}

func TestPacketIntegerKeys(t *testing.T) {
	data, err := EncodePacket(Control(PacketPing))
	if err != nil {
		t.Fatalf("EncodePacket failed: %v", err)
	}

	// {1: 6}
	want := []byte{0xa1, 0x01, 0x06}
	if !bytes.Equal(data, want) {
		t.Errorf("encoded ping = %x, want %x", data, want)
	}
}

func TestPacketValidate(t *testing.T) {
	tests := []struct {
		name    string
		pkt     *Packet
		wantErr error
	}{
		{"connect without client id", Connect("", 0), ErrMissingField},
		{"subscribe without filters", Subscribe(1), ErrMissingField},
		{"unknown type", &Packet{Type: 42}, ErrInvalidPacketType},
		{"zero type", &Packet{}, ErrInvalidPacketType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pkt.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if err := Publish("a/+/b", nil, false).Validate(); err == nil {
		t.Error("expected error for wildcard publish topic")
	}
	if err := Subscribe(1, "a/#/b").Validate(); err == nil {
		t.Error("expected error for misplaced multi-level wildcard")
	}
}

func TestDecodePacketRejectsGarbage(t *testing.T) {
	if _, err := DecodePacket([]byte{0xff, 0x00}); err == nil {
		t.Error("expected decode error")
	}
}

func TestUnmarshalRejectsDeepNesting(t *testing.T) {
	data := bytes.Repeat([]byte{0x81}, maxNestedLevels+4)
	data = append(data, 0x00)

	var v any
	if err := Unmarshal(data, &v); err == nil {
		t.Error("expected error for deeply nested payload")
	}
}
