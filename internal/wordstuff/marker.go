// Package wordstuff implements a self-synchronising byte-stuffing codec: it
// rewrites a buffer so a reserved two-byte marker never occurs inside it,
// letting a reader that starts anywhere in a stream of stuffed buffers find
// the next boundary by a plain byte scan.
package wordstuff

// HeaderSize is the length, in bytes, of the reserved marker sequence.
const HeaderSize = 2

// Marker is the two-byte sequence that Encode guarantees never appears in
// its output, and that Find looks for.
var Marker = [HeaderSize]byte{0xFE, 0xFD}

// Find returns the offset of the first occurrence of Marker in data, or
// len(data) if the marker does not occur. Buffers shorter than the marker
// itself trivially never contain it.
func Find(data []byte) int {
	if len(data) < HeaderSize {
		return len(data)
	}
	for i := 0; i < len(data)-1; i++ {
		if data[i] == Marker[0] && data[i+1] == Marker[1] {
			return i
		}
	}
	return len(data)
}

// WriteMarker writes Marker to dst[0:HeaderSize] and returns the remainder
// of dst following it.
func WriteMarker(dst []byte) []byte {
	dst[0] = Marker[0]
	dst[1] = Marker[1]
	return dst[HeaderSize:]
}
