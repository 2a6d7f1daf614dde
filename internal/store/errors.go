package store

import "errors"

var (
	// ErrPayloadTooLarge is returned when a record body exceeds MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("store: payload exceeds maximum size")
	// ErrCorruption wraps any framing/checksum/field failure from the codec
	// layer. Per spec.md §7 this always surfaces as a CORRUPTION-class
	// fatal error to callers (DATA_CORRUPTION on read, STORAGE_CORRUPTION
	// during a full scan).
	ErrCorruption = errors.New("store: corrupt record")
	// ErrNotFound is the sentinel for a missing record. ReadAt and Latest
	// do not return it: Latest reports a miss with ok=false.
	ErrNotFound = errors.New("store: record not found")
)
