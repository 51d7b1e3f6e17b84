package lsm

import (
	"encoding/binary"
	"time"
)

// Timestamp is a 128-bit unsigned microsecond timestamp, stored as a pair
// of 64-bit words so a MemTable entry's accounted size (16 bytes) matches
// the field's on-the-wire width even though any real wall-clock value fits
// comfortably in the low word alone.
type Timestamp struct {
	Hi uint64
	Lo uint64
}

// timestampSize is the number of bytes a Timestamp occupies in a MemTable
// entry's byte-size accounting.
const timestampSize = 16

// now returns the current wall-clock time as a Timestamp of microseconds
// since the Unix epoch.
func now() Timestamp {
	return Timestamp{Hi: 0, Lo: uint64(time.Now().UnixMicro())}
}

// nowUnixMillis returns the current wall-clock time in milliseconds since
// the Unix epoch, used as the suffix of a newly created SSTable's filename.
func nowUnixMillis() int64 {
	return time.Now().UnixMilli()
}

// Bytes encodes the timestamp as 16 little-endian bytes (low word, then
// high word).
func (t Timestamp) Bytes() [timestampSize]byte {
	var buf [timestampSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], t.Lo)
	binary.LittleEndian.PutUint64(buf[8:16], t.Hi)
	return buf
}

// Before reports whether t happened strictly before other, comparing the
// high word first.
func (t Timestamp) Before(other Timestamp) bool {
	if t.Hi != other.Hi {
		return t.Hi < other.Hi
	}
	return t.Lo < other.Lo
}
