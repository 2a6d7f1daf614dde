package wal

import (
	"encoding/binary"
	"errors"
	"io"
	"os"

	"github.com/aerodb/aerodb/internal/aeroerrors"
	"github.com/aerodb/aerodb/internal/codec"
	"github.com/aerodb/aerodb/internal/types"
)

var errBadLength = errors.New("wal: declared record length shorter than length prefix")

// Reader sequentially replays a WAL file from byte 0 (spec.md §4.2
// "Reader contract"). There are no checkpoints in this core: replay
// always starts at the beginning of the file.
type Reader struct {
	path   string
	file   *os.File
	offset int64
}

func NewReader(path string) *Reader {
	return &Reader{path: path}
}

// Open opens the WAL file for sequential reading, creating it if absent
// (an absent WAL is an empty WAL: spec.md §8 "empty WAL yields zero
// replay records").
func (r *Reader) Open() error {
	file, err := os.OpenFile(r.path, os.O_RDONLY|os.O_CREATE, 0644)
	if err != nil {
		return aeroerrors.New(aeroerrors.KindWALCorruption, err)
	}
	r.file = file
	r.offset = 0
	return nil
}

// Next returns the next record, or (nil, nil) at a clean end of file. A
// truncated tail (a length prefix announcing more bytes than remain) is
// WAL_CORRUPTION, never silently dropped (spec.md §4.2 "Phase 0 policy").
func (r *Reader) Next() (*types.WALRecord, error) {
	lenBuf := make([]byte, codec.LengthSize)
	n, err := io.ReadFull(r.file, lenBuf)
	if err != nil {
		if err == io.EOF && n == 0 {
			return nil, nil
		}
		return nil, aeroerrors.New(aeroerrors.KindWALCorruption, err)
	}

	total := int(binary.LittleEndian.Uint32(lenBuf))
	if total < codec.LengthSize {
		return nil, aeroerrors.New(aeroerrors.KindWALCorruption, errBadLength)
	}

	rest := make([]byte, total-codec.LengthSize)
	if _, err := io.ReadFull(r.file, rest); err != nil {
		// A short read here is a partial, truncated final record: fatal
		// corruption, not a clean end of file.
		return nil, aeroerrors.New(aeroerrors.KindWALCorruption, err)
	}

	full := make([]byte, total)
	copy(full, lenBuf)
	copy(full[codec.LengthSize:], rest)

	record, err := DecodeRecord(full)
	if err != nil {
		return nil, aeroerrors.New(aeroerrors.KindWALCorruption, err)
	}
	r.offset += int64(total)
	return record, nil
}

// CurrentOffset reports bytes consumed so far, for error reporting
// (spec.md §4.2 "current_offset()").
func (r *Reader) CurrentOffset() int64 { return r.offset }

func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
