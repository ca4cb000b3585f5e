package record

import (
	"bytes"
	"testing"

	"github.com/backtrace-labs/stuffed-record-stream/internal/wordstuff"
)

func decodeEncoded(t *testing.T, encoded []byte) (Header, []byte) {
	t.Helper()
	dst := make([]byte, MaxRead+2*wordstuff.HeaderSize)
	h, decoded, ok := Decode(dst, encoded)
	if !ok {
		t.Fatalf("Decode failed on Encode's own output")
	}
	return h, decoded
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name       string
		generation uint32
		payload    []byte
	}{
		{name: "empty payload", generation: 0, payload: nil},
		{name: "small payload", generation: 7, payload: []byte("hello")},
		{name: "payload containing the marker", generation: 42, payload: []byte{1, 0xFE, 0xFD, 2}},
		{name: "max write size", generation: 1, payload: bytes.Repeat([]byte{0x5A}, MaxWrite)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := Encode(tt.generation, tt.payload)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}

			h, decoded := decodeEncoded(t, encoded)
			if h.Generation != tt.generation {
				t.Errorf("Generation = %d, want %d", h.Generation, tt.generation)
			}
			if !Verify(decoded) {
				t.Errorf("Verify() rejected a record Encode just produced")
			}
			if !bytes.Equal(decoded[HeaderSize:], tt.payload) {
				t.Errorf("payload = %v, want %v", decoded[HeaderSize:], tt.payload)
			}
		})
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	_, err := Encode(0, bytes.Repeat([]byte{0}, MaxWrite+1))
	if err != ErrPayloadTooLarge {
		t.Errorf("Encode() error = %v, want %v", err, ErrPayloadTooLarge)
	}
}

func TestVerifyDetectsBitFlip(t *testing.T) {
	encoded, err := Encode(5, []byte("payload"))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	_, decoded := decodeEncoded(t, encoded)
	decoded[HeaderSize] ^= 0xFF

	if Verify(decoded) {
		t.Errorf("Verify() accepted a record with a flipped payload byte")
	}
}

func TestVerifyRestoresBuffer(t *testing.T) {
	encoded, err := Encode(3, []byte("payload"))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	_, decoded := decodeEncoded(t, encoded)

	before := append([]byte(nil), decoded...)
	if !Verify(decoded) {
		t.Fatalf("Verify() rejected a valid record")
	}
	if !bytes.Equal(decoded, before) {
		t.Errorf("Verify() mutated its input: got %v, want %v", decoded, before)
	}
}
