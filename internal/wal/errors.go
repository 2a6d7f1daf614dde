package wal

import "errors"

var (
	// ErrPayloadTooLarge is returned when a record body exceeds MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("wal: payload exceeds maximum size")
	// ErrCorruption wraps any framing/checksum/field failure from the codec
	// layer; WAL_CORRUPTION per spec.md §7 is always fatal.
	ErrCorruption = errors.New("wal: corrupt record")
)
