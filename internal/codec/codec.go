// Package codec implements the CRC32 record framing shared by the WAL
// and the document store (spec.md §4.1): a pure function from bytes to
// bytes, with no knowledge of WAL or store semantics.
//
// Framing: [u32 total_length][body...][u32 crc32]. total_length covers
// the leading length field itself and the trailing checksum. All
// integers are little-endian; strings and byte strings are length
// prefixed.
package codec

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

var byteOrder = binary.LittleEndian

const (
	LengthSize = 4
	CRCSize    = 4
	// FrameOverhead is the fixed cost of the length prefix and trailing
	// checksum, excluding anything between them.
	FrameOverhead = LengthSize + CRCSize
)

// Builder accumulates a record body with little-endian, length-prefixed
// fields, then Finish() frames it with the total length and CRC32.
type Builder struct {
	buf []byte
}

// NewBuilder reserves room for the length prefix, which Finish fills in.
func NewBuilder() *Builder {
	b := &Builder{buf: make([]byte, LengthSize)}
	return b
}

func (b *Builder) PutUint8(v uint8) *Builder {
	b.buf = append(b.buf, v)
	return b
}

func (b *Builder) PutUint32(v uint32) *Builder {
	var tmp [4]byte
	byteOrder.PutUint32(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
	return b
}

func (b *Builder) PutUint64(v uint64) *Builder {
	var tmp [8]byte
	byteOrder.PutUint64(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
	return b
}

// PutString writes a u32-length-prefixed UTF-8 string.
func (b *Builder) PutString(s string) *Builder {
	b.PutUint32(uint32(len(s)))
	b.buf = append(b.buf, s...)
	return b
}

// PutBytes writes a u32-length-prefixed byte string.
func (b *Builder) PutBytes(p []byte) *Builder {
	b.PutUint32(uint32(len(p)))
	b.buf = append(b.buf, p...)
	return b
}

// Finish writes the total length into the reserved prefix and appends
// the trailing CRC32 over everything preceding it. Returns the framed
// record.
func (b *Builder) Finish() []byte {
	total := uint32(len(b.buf) + CRCSize)
	byteOrder.PutUint32(b.buf[:LengthSize], total)
	crc := crc32.ChecksumIEEE(b.buf)
	var crcBuf [4]byte
	byteOrder.PutUint32(crcBuf[:], crc)
	return append(b.buf, crcBuf[:]...)
}

// Reader walks a framed record body (everything after the length prefix
// and before the trailing checksum), which the caller has already
// validated via VerifyFrame.
type Reader struct {
	buf []byte
	off int
}

// VerifyFrame checks that data is a complete, checksummed frame:
// data[0:4] must equal len(data), and the trailing CRC32 must match.
// Returns a Reader positioned just after the length prefix, or a
// DATA_CORRUPTION-class error.
func VerifyFrame(data []byte) (*Reader, error) {
	if len(data) < FrameOverhead {
		return nil, fmt.Errorf("frame shorter than minimum overhead: %w", ErrCorrupt)
	}
	total := byteOrder.Uint32(data[:LengthSize])
	if int(total) != len(data) {
		return nil, fmt.Errorf("declared length %d does not match frame size %d: %w", total, len(data), ErrCorrupt)
	}
	storedCRC := byteOrder.Uint32(data[len(data)-CRCSize:])
	computed := crc32.ChecksumIEEE(data[:len(data)-CRCSize])
	if storedCRC != computed {
		return nil, fmt.Errorf("crc32 mismatch: stored=%x computed=%x: %w", storedCRC, computed, ErrCorrupt)
	}
	return &Reader{buf: data[:len(data)-CRCSize], off: LengthSize}, nil
}

func (r *Reader) remaining() int { return len(r.buf) - r.off }

func (r *Reader) Uint8() (uint8, error) {
	if r.remaining() < 1 {
		return 0, fmt.Errorf("truncated field: %w", ErrCorrupt)
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

func (r *Reader) Uint32() (uint32, error) {
	if r.remaining() < 4 {
		return 0, fmt.Errorf("truncated field: %w", ErrCorrupt)
	}
	v := byteOrder.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *Reader) Uint64() (uint64, error) {
	if r.remaining() < 8 {
		return 0, fmt.Errorf("truncated field: %w", ErrCorrupt)
	}
	v := byteOrder.Uint64(r.buf[r.off:])
	r.off += 8
	return v, nil
}

// String reads a u32-length-prefixed UTF-8 string, refusing a declared
// length that would overflow the remaining body region.
func (r *Reader) String() (string, error) {
	n, err := r.Uint32()
	if err != nil {
		return "", err
	}
	if int(n) > r.remaining() {
		return "", fmt.Errorf("string field overflows record body: %w", ErrCorrupt)
	}
	s := string(r.buf[r.off : r.off+int(n)])
	r.off += int(n)
	return s, nil
}

// Bytes reads a u32-length-prefixed byte string.
func (r *Reader) Bytes() ([]byte, error) {
	n, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	if int(n) > r.remaining() {
		return nil, fmt.Errorf("bytes field overflows record body: %w", ErrCorrupt)
	}
	out := make([]byte, n)
	copy(out, r.buf[r.off:r.off+int(n)])
	r.off += int(n)
	return out, nil
}

// Done reports whether the body has been fully consumed (no trailing
// garbage before the checksum).
func (r *Reader) Done() bool { return r.remaining() == 0 }
