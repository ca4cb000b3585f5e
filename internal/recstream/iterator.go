package recstream

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/backtrace-labs/stuffed-record-stream/internal/bufpool"
	"github.com/backtrace-labs/stuffed-record-stream/internal/record"
	"github.com/backtrace-labs/stuffed-record-stream/internal/wordstuff"
)

// Iterator scans a byte range — either an in-memory buffer or a
// memory-mapped file — for self-synchronising records. Iterator values
// share no mutable state with one another: it is safe to run many of them
// concurrently over disjoint, or even overlapping, ranges of the same
// backing bytes.
type Iterator struct {
	data         []byte
	cursor       int
	end          int
	stopAt       int
	firstNonzero int
	firstRecord  bool

	mapped []byte // non-nil only for file-backed iterators; released on Close
}

// NewBufIterator scans buf for records, starting at offset 0.
func NewBufIterator(buf []byte) *Iterator {
	return &Iterator{
		data:        buf,
		end:         len(buf),
		stopAt:      len(buf),
		firstRecord: true,
	}
}

// NewFileIterator memory-maps fd read-only and scans it for records. A
// leading sparse hole is skipped via SEEK_DATA, and any run of zero bytes
// immediately following it is skipped too: no valid record ever starts
// with a zero byte, since the marker's first byte is non-zero.
func NewFileIterator(fd *os.File) (*Iterator, error) {
	st, err := fd.Stat()
	if err != nil {
		return nil, err
	}
	if st.Size() <= 0 {
		return NewBufIterator(nil), nil
	}

	size := int(st.Size())
	firstData, err := unix.Seek(int(fd.Fd()), 0, unix.SEEK_DATA)
	if err != nil {
		firstData = 0
	}

	mapped, err := unix.Mmap(int(fd.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}

	start := 0
	if firstData > 0 && int(firstData) < size {
		start = int(firstData)
	} else if int(firstData) >= size {
		start = size
	}
	start = skipZeros(mapped, start, size)

	return &Iterator{
		data:         mapped,
		cursor:       start,
		end:          size,
		stopAt:       size,
		firstNonzero: start,
		firstRecord:  true,
		mapped:       mapped,
	}, nil
}

func skipZeros(data []byte, from, to int) int {
	i := from
	for i < to && data[i] == 0 {
		i++
	}
	return i
}

// Close releases the memory mapping backing a file iterator. It is a no-op
// for buffer-backed iterators.
func (it *Iterator) Close() error {
	if it.mapped == nil {
		return nil
	}
	m := it.mapped
	it.mapped = nil
	it.data = nil
	return unix.Munmap(m)
}

// Size returns the number of bytes in the iterator's full backing range,
// regardless of any StopAt restriction in effect.
func (it *Iterator) Size() int {
	return it.end
}

// Reset rewinds the iterator to its first candidate record and clears any
// StopAt restriction, so a long-lived iterator handed out repeatedly by a
// cache can be replayed from the start each time it's checked out.
func (it *Iterator) Reset() {
	it.cursor = it.firstNonzero
	it.stopAt = it.end
	it.firstRecord = true
}

// LocateAt positions the iterator to resume scanning at offset. It rejects
// offsets before the first non-zero byte or past the current stop offset.
// Positioning exactly at the first non-zero byte is treated as starting
// fresh, since that offset may itself be the very first record's header.
func (it *Iterator) LocateAt(offset int) bool {
	if offset < it.firstNonzero || offset > it.stopAt {
		return false
	}
	it.cursor = offset
	it.firstRecord = offset == it.firstNonzero
	return true
}

// StopAt clamps the offset at which the iterator stops considering new
// candidate records: a record whose header begins before offset is still
// decoded in full even if its body runs past it, but the search for a
// marker following the last record is not itself bounded by stopAt (see
// Next).
func (it *Iterator) StopAt(offset int) {
	if offset > it.end {
		offset = it.end
	}
	it.stopAt = offset
}

// Next decodes and returns the next valid record. It reports ok=false at
// end of stream. Malformed candidates and CRC mismatches are never
// surfaced as errors — the scan silently resumes at the next marker
// occurrence, which is the whole point of a self-synchronising format.
func (it *Iterator) Next() (generation uint32, payload []byte, ok bool) {
	scratchPtr := bufpool.Get(record.MaxRead)
	defer bufpool.Put(scratchPtr)
	scratch := *scratchPtr

	for it.cursor < it.stopAt {
		h, decoded, good := it.nextCandidate(scratch)
		if !good {
			continue
		}
		out := make([]byte, len(decoded)-record.HeaderSize)
		copy(out, decoded[record.HeaderSize:])
		return h.Generation, out, true
	}
	it.cursor = it.end
	return 0, nil, false
}

// nextCandidate attempts to decode exactly one record starting at or after
// it.cursor. On any failure it still advances it.cursor so the caller's
// loop makes forward progress.
func (it *Iterator) nextCandidate(scratch []byte) (record.Header, []byte, bool) {
	var headerPos, encodedStart int

	if it.firstRecord {
		it.firstRecord = false
		headerPos = it.cursor
		encodedStart = it.cursor
	} else {
		firstHeader := it.cursor + wordstuff.Find(it.data[it.cursor:it.end])
		if firstHeader >= it.stopAt {
			it.cursor = it.end
			return record.Header{}, nil, false
		}
		headerPos = firstHeader
		encodedStart = firstHeader + wordstuff.HeaderSize
	}

	if headerPos >= it.stopAt {
		it.cursor = it.end
		return record.Header{}, nil, false
	}

	// The search for the record's terminating marker is never bounded by
	// stopAt: a record that starts before stopAt is decoded in full even
	// if its encoded bytes run past it.
	encodedEnd := encodedStart + wordstuff.Find(it.data[encodedStart:it.end])
	it.cursor = encodedEnd

	if encodedEnd-encodedStart > record.MaxRead {
		return record.Header{}, nil, false
	}

	h, decoded, ok := record.Decode(scratch, it.data[encodedStart:encodedEnd])
	if !ok {
		return record.Header{}, nil, false
	}
	if !record.Verify(decoded) {
		return record.Header{}, nil, false
	}
	return h, decoded, true
}
