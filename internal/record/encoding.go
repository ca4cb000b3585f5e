package record

import (
	"hash/crc32"

	"github.com/backtrace-labs/stuffed-record-stream/internal/wordstuff"
	"github.com/backtrace-labs/stuffed-record-stream/pkg"
)

const crcSentinel = 0xFFFFFFFF

// Encode marshals a header and payload, computes the record's CRC32C with
// the CRC field pre-filled to the all-ones sentinel — avoiding the
// well-known weakness where a CRC32 checksum can't distinguish a run of
// leading zero bytes from a shorter run — and returns the word-stuffed
// bytes, not including the trailing marker that follows every record on
// the wire.
func Encode(generation uint32, payload []byte) ([]byte, error) {
	if len(payload) > MaxWrite {
		return nil, ErrPayloadTooLarge
	}

	raw := make([]byte, HeaderSize+len(payload))
	pkg.ByteOrder.PutUint32(raw[0:4], crcSentinel)
	pkg.ByteOrder.PutUint32(raw[4:8], generation)
	copy(raw[HeaderSize:], payload)

	pkg.ByteOrder.PutUint32(raw[0:4], crc32c(raw))

	bound, ok := wordstuff.Bound(len(raw), false)
	if !ok {
		return nil, ErrPayloadTooLarge
	}
	dst := make([]byte, bound)
	n := wordstuff.Encode(dst, raw)
	return dst[:n], nil
}

// Decode un-stuffs encoded into dst and parses its header. It does not
// verify the checksum: callers that need to distinguish a well-formed
// record from a corrupt one call Verify separately.
func Decode(dst, encoded []byte) (Header, []byte, bool) {
	n, ok := wordstuff.Decode(dst, encoded)
	if !ok || n < HeaderSize {
		return Header{}, nil, false
	}
	h := Header{
		CRC:        pkg.ByteOrder.Uint32(dst[0:4]),
		Generation: pkg.ByteOrder.Uint32(dst[4:8]),
	}
	return h, dst[:n], true
}

// Verify recomputes decoded's CRC32C, with the CRC field temporarily reset
// to the sentinel exactly as at encode time, and reports whether it
// matches the stored value. decoded is restored to its original contents
// before Verify returns.
func Verify(decoded []byte) bool {
	if len(decoded) < HeaderSize {
		return false
	}
	want := pkg.ByteOrder.Uint32(decoded[0:4])
	pkg.ByteOrder.PutUint32(decoded[0:4], crcSentinel)
	got := crc32c(decoded)
	pkg.ByteOrder.PutUint32(decoded[0:4], want)
	return got == want
}

func crc32c(data []byte) uint32 {
	return crc32.Checksum(data, pkg.CRC32CTable)
}
