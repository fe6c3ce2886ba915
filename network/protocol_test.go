// network/protocol_test.go
package network

import (
	"bytes"
	"errors"
	"io"
	"math"
	"testing"
)

func TestEncodeDecode(t *testing.T) {
	data := []byte(`{"game_id":42}`)
	packet, err := Encode(MsgTypeWatch, data)
	if err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}
	if len(packet) != HeaderSize+len(data) {
		t.Fatalf("Expected %d bytes, got %d", HeaderSize+len(data), len(packet))
	}
	if packet[0] != 0 || packet[1] != MsgTypeWatch {
		t.Errorf("Expected big endian message id, got %v", packet[:2])
	}

	decoded, err := Decode(packet)
	if err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if decoded.MsgID != MsgTypeWatch || int(decoded.Length) != len(data) {
		t.Errorf("Unexpected header: %+v", decoded)
	}
	if !bytes.Equal(decoded.Data, data) {
		t.Errorf("Expected %s, got %s", data, decoded.Data)
	}
}

func TestDecodeShortPackets(t *testing.T) {
	if _, err := Decode([]byte{0, 1, 0}); !errors.Is(err, io.ErrShortBuffer) {
		t.Errorf("Expected ErrShortBuffer for short header, got %v", err)
	}
	// 声明长度 10, 只有 2 字节
	if _, err := Decode([]byte{0, 1, 0, 10, 'a', 'b'}); !errors.Is(err, io.ErrShortBuffer) {
		t.Errorf("Expected ErrShortBuffer for truncated payload, got %v", err)
	}
}

func TestDecodeEmptyPayload(t *testing.T) {
	packet, _ := Encode(MsgTypeHeartbeat, nil)
	decoded, err := Decode(packet)
	if err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if decoded.MsgID != MsgTypeHeartbeat || len(decoded.Data) != 0 {
		t.Errorf("Unexpected packet: %+v", decoded)
	}
}

func TestEncodeTooLarge(t *testing.T) {
	if _, err := Encode(MsgTypeScoreboard, make([]byte, math.MaxUint16+1)); !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("Expected ErrPayloadTooLarge, got %v", err)
	}
}
