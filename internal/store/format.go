// Package store implements the append-only document store (spec.md §4.3):
// a framed, checksummed file keyed by composite id (collection:doc_id),
// where the record at the largest offset for a given id is authoritative
// ("latest wins") and tombstones are preserved forever.
//
// Store record framing (spec.md §6):
//
//	u32 length
//	u32 doc_id_len | bytes doc_id          -- composite collection:id
//	u32 schema_id_len | bytes schema_id
//	u32 schema_version_len | bytes schema_version
//	u8 tombstone_flag
//	u32 body_len | bytes body
//	u32 crc32
package store

import (
	"fmt"

	"github.com/aerodb/aerodb/internal/codec"
	"github.com/aerodb/aerodb/internal/types"
)

// MaxPayloadSize bounds a single record's body.
const MaxPayloadSize = 16 * 1024 * 1024

// EncodeRecord frames one store record. Deletes are encoded with
// tombstone=true and an empty body.
func EncodeRecord(docID, schemaID, schemaVersion string, tombstone bool, body []byte) ([]byte, error) {
	if len(body) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}
	var tombByte uint8
	if tombstone {
		tombByte = 1
	}
	frame := codec.NewBuilder().
		PutString(docID).
		PutString(schemaID).
		PutString(schemaVersion).
		PutUint8(tombByte).
		PutBytes(body).
		Finish()
	return frame, nil
}

// DecodeRecord validates and decodes one complete, framed store record.
func DecodeRecord(data []byte) (*types.StoreRecord, error) {
	r, err := codec.VerifyFrame(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruption, err)
	}

	docID, err := r.String()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruption, err)
	}
	schemaID, err := r.String()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruption, err)
	}
	schemaVersion, err := r.String()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruption, err)
	}
	tombByte, err := r.Uint8()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruption, err)
	}
	body, err := r.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruption, err)
	}
	if !r.Done() {
		return nil, fmt.Errorf("%w: trailing bytes after body", ErrCorruption)
	}

	return &types.StoreRecord{
		Length:        uint64(len(data)),
		DocID:         docID,
		SchemaID:      schemaID,
		SchemaVersion: schemaVersion,
		Tombstone:     tombByte != 0,
		Body:          body,
	}, nil
}
