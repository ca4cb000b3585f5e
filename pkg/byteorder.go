// Package pkg holds tiny shared helpers used across this module's internal
// packages.
package pkg

import (
	"encoding/binary"
	"hash/crc32"
)

// ByteOrder is the wire byte order used by every on-disk integer in this
// module: little-endian, per the record header layout.
var ByteOrder = binary.LittleEndian

// CRC32CTable is the Castagnoli CRC32 table shared by the record and
// stream-iterator packages, so both use the exact same polynomial.
var CRC32CTable = crc32.MakeTable(crc32.Castagnoli)
