package record

import "errors"

// HeaderSize is the length, in bytes, of the fixed portion at the front of
// every record: a CRC32C checksum followed by an opaque generation number,
// both little-endian.
const HeaderSize = 8

// MaxWrite is the largest payload Encode will accept.
const MaxWrite = 512

// MaxRead is the largest encoded record the stream iterator will try to
// decode; decoding never expands its input, so the decoded header and
// payload also fit in MaxRead bytes. Decode itself does not check it. It
// is larger than MaxWrite so a reader stays forward-compatible with
// writers using a larger MaxWrite.
const MaxRead = 1024

// ErrPayloadTooLarge is returned by Encode when payload exceeds MaxWrite.
var ErrPayloadTooLarge = errors.New("record: payload exceeds MaxWrite")

// Header is the fixed prefix of a decoded record. The core attaches no
// meaning to Generation; callers are free to use it as a sequence number,
// a logical clock, or leave it at zero.
type Header struct {
	CRC        uint32
	Generation uint32
}
