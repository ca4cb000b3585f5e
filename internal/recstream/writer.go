package recstream

import (
	"bytes"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/backtrace-labs/stuffed-record-stream/internal/record"
	"github.com/backtrace-labs/stuffed-record-stream/internal/wordstuff"
)

// Marshaler is the optional serialization hook for message types that want
// to skip an intermediate []byte allocation before appending: it reduces
// to the same pair of operations any packed-message type exposes, a size
// and a pack call.
type Marshaler interface {
	PackedSize() int
	Pack(dst []byte) int
}

const numAppendTries = 3

// AppendInitial makes sure fd — which may already hold data, possibly torn
// by a previous crash — is ready to receive more records: if it doesn't
// already end with the reserved marker, one is appended so the next
// append has a clean anchor to write after.
func AppendInitial(fd *os.File) error {
	header := make([]byte, wordstuff.HeaderSize)
	wordstuff.WriteMarker(header)

	if fdEndsWithHeader(fd, header) {
		return nil
	}
	return appendWithRetry(int(fd.Fd()), header)
}

func fdEndsWithHeader(fd *os.File, header []byte) bool {
	if _, err := fd.Seek(-int64(len(header)), io.SeekEnd); err != nil {
		return false
	}
	buf := make([]byte, len(header))
	if _, err := io.ReadFull(fd, buf); err != nil {
		return false
	}
	return bytes.Equal(buf, header)
}

// AppendBuf appends one record with the given generation and payload to
// fd, which must be open for writing at the end of the file. The encoded
// record is followed by a trailing marker, which doubles as the header
// for whatever gets appended next.
func AppendBuf(fd *os.File, generation uint32, payload []byte) error {
	buf, err := buildRecord(generation, payload)
	if err != nil {
		return err
	}
	return appendWithRetry(int(fd.Fd()), buf)
}

// AppendMsg is AppendBuf for a Marshaler, avoiding an intermediate copy
// into a caller-owned []byte for the common case of a message type that
// already knows how to pack itself.
func AppendMsg(fd *os.File, generation uint32, m Marshaler) error {
	buf := make([]byte, m.PackedSize())
	n := m.Pack(buf)
	return AppendBuf(fd, generation, buf[:n])
}

func buildRecord(generation uint32, payload []byte) ([]byte, error) {
	encoded, err := record.Encode(generation, payload)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, len(encoded)+wordstuff.HeaderSize)
	copy(buf, encoded)
	wordstuff.WriteMarker(buf[len(encoded):])
	return buf, nil
}

// appendWithRetry mirrors the original append_to_fd retry policy: up to
// numAppendTries attempts of a vectored write, with the leading iovec
// promoted from empty to a 2-byte marker after the first short write,
// since a concurrent writer may already have consumed the trailing-marker
// guarantee this append was relying on. If every attempt still leaves the
// write short, it makes one best-effort attempt to at least land the
// marker before giving up, so the file stays self-synchronising even on
// failure.
func appendWithRetry(fd int, buf []byte) error {
	header := make([]byte, wordstuff.HeaderSize)
	wordstuff.WriteMarker(header)

	iov := [][]byte{{}, buf}
	expected := len(buf)

	var written int
	var writeErr error
	promoted := false

	for i := 0; i < numAppendTries; i++ {
		written, writeErr = unix.Writev(fd, iov)
		if writeErr == nil && written == expected {
			break
		}
		if written <= 0 {
			continue
		}
		if !promoted {
			promoted = true
			iov[0] = header
			expected = len(buf) + len(header)
		}
	}

	if promoted && written != expected {
		_, _ = unix.Write(fd, header)
	}

	if writeErr != nil {
		return writeErr
	}
	if written != expected {
		return ErrShortWrite
	}
	return nil
}

// WriteInitial writes a leading marker to w. It is the unbuffered,
// no-retry counterpart to AppendInitial, intended for private temporary
// files where the caller already owns synchronization and error handling.
func WriteInitial(w io.Writer) error {
	header := make([]byte, wordstuff.HeaderSize)
	wordstuff.WriteMarker(header)
	_, err := w.Write(header)
	return err
}

// WriteBuf writes one record to w with no retry logic.
func WriteBuf(w io.Writer, generation uint32, payload []byte) error {
	buf, err := buildRecord(generation, payload)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// WriteMsg is WriteBuf for a Marshaler.
func WriteMsg(w io.Writer, generation uint32, m Marshaler) error {
	buf := make([]byte, m.PackedSize())
	n := m.Pack(buf)
	return WriteBuf(w, generation, buf[:n])
}
