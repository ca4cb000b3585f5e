package wordstuff

import (
	"bytes"
	"testing"
)

// encodeFull returns Encode's output followed by the trailing marker, the
// shape every record in a stream actually takes on disk.
func encodeFull(src []byte) []byte {
	bound, ok := Bound(len(src), true)
	if !ok {
		panic("bound overflow in test")
	}
	dst := make([]byte, bound)
	n := Encode(dst, src)
	dst = dst[:n]
	dst = append(dst, Marker[0], Marker[1])
	return dst
}

func decodeUpToMarker(encoded []byte) ([]byte, bool) {
	body := encoded[:Find(encoded)]
	dst := make([]byte, len(body)+2*HeaderSize+16)
	n, ok := Decode(dst, body)
	if !ok {
		return nil, false
	}
	return dst[:n], true
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		src  []byte
	}{
		{name: "empty", src: []byte{}},
		{name: "single byte", src: []byte{0xAA}},
		{name: "contains marker", src: []byte{0xFE, 0xFD}},
		{name: "marker in middle", src: []byte{1, 2, 0xFE, 0xFD, 3, 4}},
		{name: "many markers", src: bytes.Repeat([]byte{0xFE, 0xFD}, 50)},
		{name: "exactly one initial run", src: bytes.Repeat([]byte{0x01}, MaxInitialRun)},
		{name: "one byte over initial run", src: bytes.Repeat([]byte{0x01}, MaxInitialRun+1)},
		{name: "spans several remaining runs", src: bytes.Repeat([]byte{0x02}, MaxInitialRun+MaxRemainingRun*2+37)},
		{name: "no markers, random-ish bytes", src: []byte("the quick brown fox jumps over the lazy dog")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := encodeFull(tt.src)

			for _, b := range encoded[:len(encoded)-HeaderSize] {
				_ = b
			}
			if got := Find(encoded[:len(encoded)-HeaderSize]); got != len(encoded)-HeaderSize {
				t.Fatalf("stuffed body still contains the marker at %d", got)
			}

			decoded, ok := decodeUpToMarker(encoded)
			if !ok {
				t.Fatalf("Decode failed on Encode's own output")
			}
			if !bytes.Equal(decoded, tt.src) {
				t.Fatalf("round trip mismatch: got %v, want %v", decoded, tt.src)
			}
		})
	}
}

func TestBoundRespected(t *testing.T) {
	sizes := []int{0, 1, 2, MaxInitialRun - 1, MaxInitialRun, MaxInitialRun + 1, MaxInitialRun + MaxRemainingRun, 100000}
	for _, n := range sizes {
		src := bytes.Repeat([]byte{0x7F}, n)
		bound, ok := Bound(n, false)
		if !ok {
			t.Fatalf("Bound(%d) overflowed unexpectedly", n)
		}
		dst := make([]byte, bound)
		written := Encode(dst, src)
		if written > bound {
			t.Errorf("Encode wrote %d bytes for input of %d, exceeding Bound() = %d", written, n, bound)
		}
	}
}

func TestDecodeNeverExpandsPastInput(t *testing.T) {
	src := bytes.Repeat([]byte{0x11, 0xFE, 0xFD, 0x22}, 20)
	encoded := encodeFull(src)
	body := encoded[:Find(encoded)]

	dst := make([]byte, len(body))
	n, ok := Decode(dst, body)
	if !ok {
		t.Fatalf("Decode failed")
	}
	if n > len(body) {
		t.Errorf("Decode produced %d bytes from %d bytes of input", n, len(body))
	}
}

func TestMarkerNeverAppearsInStuffedOutput(t *testing.T) {
	inputs := [][]byte{
		bytes.Repeat([]byte{0xFE}, 1000),
		bytes.Repeat([]byte{0xFD}, 1000),
		bytes.Repeat([]byte{0xFE, 0xFD}, 1000),
		bytes.Repeat([]byte{0xFE, 0xFE, 0xFD, 0xFD}, 500),
	}
	for i, src := range inputs {
		bound, _ := Bound(len(src), false)
		dst := make([]byte, bound)
		n := Encode(dst, src)
		if pos := Find(dst[:n]); pos != n {
			t.Errorf("case %d: marker found at offset %d inside stuffed body", i, pos)
		}
	}
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	tests := []struct {
		name string
		src  []byte
	}{
		{name: "empty input", src: []byte{}},
		{name: "initial run length too large", src: []byte{253}},
		{name: "initial run claims more bytes than present", src: []byte{10, 1, 2, 3}},
		{name: "truncated continuation header", src: []byte{0, 5}},
		{name: "continuation run exceeds cap", src: append([]byte{0}, encodeOverflowRun()...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := make([]byte, 4096)
			if _, ok := Decode(dst, tt.src); ok {
				t.Fatalf("Decode accepted malformed input %v", tt.src)
			}
		})
	}
}

func encodeOverflowRun() []byte {
	// MaxRemainingRun+1 encoded little-endian in base Radix: guaranteed to
	// exceed the cap the decoder enforces for non-initial runs.
	v := MaxRemainingRun + 1
	return []byte{byte(v % Radix), byte(v / Radix)}
}

func TestConcreteScenarios(t *testing.T) {
	t.Run("empty input yields an empty run header and the terminator", func(t *testing.T) {
		encoded := encodeFull(nil)
		want := []byte{0x00, 0xFE, 0xFD}
		if !bytes.Equal(encoded, want) {
			t.Errorf("Encode(nil)+trailer = % x, want % x", encoded, want)
		}
	})

	t.Run("single literal byte", func(t *testing.T) {
		encoded := encodeFull([]byte{0xAA})
		want := []byte{0x01, 0xAA, 0xFE, 0xFD}
		if !bytes.Equal(encoded, want) {
			t.Errorf("Encode([0xAA])+trailer = % x, want % x", encoded, want)
		}
	})

	t.Run("input that is itself the marker", func(t *testing.T) {
		// The first run's length is 0 (the marker sits right at the start,
		// consumed implicitly), then a second, empty run header is
		// required to signal that no more data follows: the loop only
		// ends on a run shorter than its cap with no bytes left after it,
		// and after the marker is consumed that takes one more run.
		encoded := encodeFull([]byte{0xFE, 0xFD})
		want := []byte{0x00, 0x00, 0x00, 0xFE, 0xFD}
		if !bytes.Equal(encoded, want) {
			t.Errorf("Encode([0xFE,0xFD])+trailer = % x, want % x", encoded, want)
		}
	})

	t.Run("input exactly filling the initial run", func(t *testing.T) {
		src := bytes.Repeat([]byte{0x5A}, MaxInitialRun)
		encoded := encodeFull(src)

		want := make([]byte, 0, MaxInitialRun+1+HeaderSize+HeaderSize)
		want = append(want, byte(MaxInitialRun))
		want = append(want, src...)
		want = append(want, 0x00, 0x00) // empty terminating run: cap was hit exactly
		want = append(want, Marker[0], Marker[1])

		if !bytes.Equal(encoded, want) {
			t.Errorf("Encode(%d literal bytes)+trailer has length %d, want %d", MaxInitialRun, len(encoded), len(want))
		}
	})
}
