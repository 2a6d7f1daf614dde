package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aerodb/aerodb/internal/codec"
)

// Scanner performs a full, ordered front-to-back pass over a store file
// (spec.md §4.3 "full scan iterator for recovery and index rebuild").
// It is the authoritative construction path: index rebuild, recovery
// verification and BuildDocumentMap are all expressed in terms of it.
type Scanner struct {
	file   *os.File
	offset int64
}

// NewScanner opens path read-only for a fresh front-to-back scan. A
// missing file scans as empty, matching an empty store at first boot.
func NewScanner(path string) (*Scanner, error) {
	file, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	return &Scanner{file: file}, nil
}

// Offset reports the byte offset the scanner is currently positioned at,
// so a corruption error can name it.
func (s *Scanner) Offset() int64 { return s.offset }

// Next returns the next record together with the offset it was read
// from, or (nil, nil) at a clean end of file. Any framing/checksum failure, or
// a length prefix announcing more bytes than remain, is store corruption
// (spec.md §8 "reopening S causes a CORRUPTION-class fatal error").
func (s *Scanner) Next() (*ScannedRecord, error) {
	start := s.offset
	lenBuf := make([]byte, codec.LengthSize)
	n, err := io.ReadFull(s.file, lenBuf)
	if err != nil {
		if errors.Is(err, io.EOF) && n == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: reading length prefix at offset %d: %v", ErrCorruption, start, err)
	}

	total := int(binary.LittleEndian.Uint32(lenBuf))
	if total < codec.LengthSize {
		return nil, fmt.Errorf("%w: declared length %d shorter than prefix at offset %d", ErrCorruption, total, start)
	}

	rest := make([]byte, total-codec.LengthSize)
	if _, err := io.ReadFull(s.file, rest); err != nil {
		return nil, fmt.Errorf("%w: truncated record at offset %d: %v", ErrCorruption, start, err)
	}

	full := make([]byte, total)
	copy(full, lenBuf)
	copy(full[codec.LengthSize:], rest)

	record, err := DecodeRecord(full)
	if err != nil {
		return nil, fmt.Errorf("%w (offset %d)", err, start)
	}
	s.offset += int64(total)
	return &ScannedRecord{Record: record, Offset: start}, nil
}

func (s *Scanner) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
