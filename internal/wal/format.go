// Package wal implements the write-ahead log described in spec.md §4.2:
// the single source of truth for recovery. Every intended state change is
// durably recorded here before any store mutation is attempted.
//
// Record layout (spec.md §6 "WAL record framing"):
//
//	u32 length | u64 sequence_number | u8 record_type
//	u32 collection_len | bytes collection
//	u32 doc_id_len | bytes doc_id
//	u32 schema_id_len | bytes schema_id
//	u32 schema_version_len | bytes schema_version
//	u32 body_len | bytes body
//	u32 crc32
package wal

import (
	"fmt"

	"github.com/aerodb/aerodb/internal/codec"
	"github.com/aerodb/aerodb/internal/types"
)

// MaxPayloadSize bounds a single record's body, matching the teacher
// repo's store/WAL cap.
const MaxPayloadSize = 16 * 1024 * 1024

// EncodeRecord frames one WAL record. The sequence number is assigned by
// the Writer, never the caller.
func EncodeRecord(seq uint64, opType types.OperationType, collection, docID, schemaID, schemaVersion string, body []byte) ([]byte, error) {
	if len(body) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}
	frame := codec.NewBuilder().
		PutUint64(seq).
		PutUint8(byte(opType)).
		PutString(collection).
		PutString(docID).
		PutString(schemaID).
		PutString(schemaVersion).
		PutBytes(body).
		Finish()
	return frame, nil
}

// DecodeRecord validates and decodes one complete, framed WAL record.
func DecodeRecord(data []byte) (*types.WALRecord, error) {
	r, err := codec.VerifyFrame(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruption, err)
	}

	seq, err := r.Uint64()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruption, err)
	}
	opByte, err := r.Uint8()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruption, err)
	}
	collection, err := r.String()
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
	body, err := r.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruption, err)
	}
	if !r.Done() {
		return nil, fmt.Errorf("%w: trailing bytes after body", ErrCorruption)
	}

	return &types.WALRecord{
		Length:         uint64(len(data)),
		SequenceNumber: seq,
		OpType:         types.OperationType(opByte),
		Collection:     collection,
		DocID:          docID,
		SchemaID:       schemaID,
		SchemaVersion:  schemaVersion,
		Body:           body,
	}, nil
}
