package recstream

import (
	"errors"

	"github.com/backtrace-labs/stuffed-record-stream/internal/record"
)

// ErrPayloadTooLarge is returned when a payload exceeds record.MaxWrite.
var ErrPayloadTooLarge = record.ErrPayloadTooLarge

// ErrShortWrite is returned when an append could not be completed even
// after retrying, and no I/O error explains why.
var ErrShortWrite = errors.New("recstream: short write")
