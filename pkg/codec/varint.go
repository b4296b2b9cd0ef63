package codec

import "github.com/pkg/errors"

// ErrShortBuffer is returned when a decode call runs out of input.
var ErrShortBuffer = errors.New("codec: short buffer")

// putVarint gamma-codes v as a little-endian base-128 varint (7 payload
// bits per byte, high bit set while more bytes follow). Channel ids are
// small in practice (a handful of registered channels) so this almost
// always costs a single byte.
func putVarint(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}

// readVarint reads a varint starting at offset off, returning the value,
// the new offset, and an error if the buffer ran out before termination.
func readVarint(data []byte, off int) (uint64, int, error) {
	var v uint64
	var shift uint
	for {
		if off >= len(data) {
			return 0, off, ErrShortBuffer
		}
		b := data[off]
		off++
		v |= uint64(b&0x7F) << shift
		if b&0x80 == 0 {
			return v, off, nil
		}
		shift += 7
		if shift > 63 {
			return 0, off, errors.New("codec: varint too long")
		}
	}
}
