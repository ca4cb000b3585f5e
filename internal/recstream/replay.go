package recstream

import (
	"os"

	"golang.org/x/sync/errgroup"
)

// Replay opens path read-only, partitions it into up to workers disjoint
// byte ranges by starting offset, and calls fn for every valid record
// found in any of them. A record is delivered by exactly one partition —
// whichever one's range contains the record's first byte — regardless of
// how far its encoded bytes run past the partition boundary. fn may be
// called concurrently from different goroutines when workers > 1.
func Replay(path string, workers int, fn func(generation uint32, payload []byte) error) error {
	if workers < 1 {
		workers = 1
	}

	fd, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fd.Close()

	base, err := NewFileIterator(fd)
	if err != nil {
		return err
	}
	defer base.Close()

	size := base.Size()
	if size == 0 {
		return nil
	}
	if workers > size {
		workers = size
	}

	chunk := (size + workers - 1) / workers
	ranges := partitionRanges(size, chunk, base.firstNonzero)

	g := new(errgroup.Group)
	for _, r := range ranges {
		r := r
		g.Go(func() error {
			it := partitionIterator(base, r.start, r.end)
			return replayIterator(it, fn)
		})
	}

	return g.Wait()
}

type byteRange struct {
	start, end int
}

// partitionRanges lays size bytes out into one candidate range per chunk
// bytes (the last one possibly shorter), then clamps every candidate's
// start forward to firstNonzero — the first byte NewFileIterator found
// actual data at, past any leading sparse hole. When that hole is larger
// than one chunk, several candidates clamp to the same start; handing the
// same range to more than one worker would double-deliver every record in
// it, so instead each clamped candidate that would overlap the range
// before it is merged forward into that range rather than kept as a
// separate one. A candidate that merely abuts the range before it stays a
// separate range.
func partitionRanges(size, chunk, firstNonzero int) []byteRange {
	var ranges []byteRange
	prevEnd := -1

	for start := 0; start < size; start += chunk {
		s := start
		if s < firstNonzero {
			s = firstNonzero
		}
		end := s + chunk
		if end > size {
			end = size
		}
		if s >= end {
			continue
		}

		if s < prevEnd {
			if end > prevEnd {
				ranges[len(ranges)-1].end = end
				prevEnd = end
			}
			continue
		}

		ranges = append(ranges, byteRange{s, end})
		prevEnd = end
	}

	return ranges
}

// partitionIterator builds an independent view over base's backing bytes,
// restricted to [start, end).
func partitionIterator(base *Iterator, start, end int) *Iterator {
	it := &Iterator{
		data:         base.data,
		end:          base.end,
		stopAt:       base.end,
		firstNonzero: base.firstNonzero,
	}
	it.LocateAt(start)
	it.StopAt(end)
	return it
}

func replayIterator(it *Iterator, fn func(uint32, []byte) error) error {
	for {
		generation, payload, ok := it.Next()
		if !ok {
			return nil
		}
		if err := fn(generation, payload); err != nil {
			return err
		}
	}
}
