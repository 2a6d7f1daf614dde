package store

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aerodb/aerodb/internal/aeroerrors"
	"github.com/aerodb/aerodb/internal/codec"
	"github.com/aerodb/aerodb/internal/logger"
	"github.com/aerodb/aerodb/internal/types"
)

// ScannedRecord pairs a decoded store record with the file offset it was
// read from; that offset is the canonical handle indexes carry (spec.md
// §4.3 "its file offset is the canonical handle used by indexes").
type ScannedRecord struct {
	Record *types.StoreRecord
	Offset int64
}

// Writer is the single-writer append-only document store (spec.md §4.3).
// It owns an in-memory composite_id -> latest_offset map built by
// scanning the file on open (I4: this map is an optimization, never the
// source of truth — rebuild_from_storage is authoritative), plus a small
// read-through cache of decoded records keyed by offset.
type Writer struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	offset int64
	index  map[string]int64
	cache  *lru.Cache[int64, *types.StoreRecord]
	logger *logger.Logger
}

// NewWriter constructs a Writer. cacheEntries sizes the read-through
// cache (config.Config.CacheEntries); zero disables caching.
func NewWriter(path string, cacheEntries int, log *logger.Logger) *Writer {
	w := &Writer{path: path, index: make(map[string]int64), logger: log.With("store")}
	if cacheEntries > 0 {
		cache, err := lru.New[int64, *types.StoreRecord](cacheEntries)
		if err == nil {
			w.cache = cache
		}
	}
	return w
}

// Open opens (creating if needed) the store file and scans it once to
// rebuild the composite_id -> latest_offset map (spec.md §4.3 "the writer
// maintains an in-memory map ... built by scanning the file on open").
func (w *Writer) Open() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	file, err := os.OpenFile(w.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return aeroerrors.New(aeroerrors.KindStorageIOError, err)
	}
	w.file = file

	scanner, err := NewScanner(w.path)
	if err != nil {
		file.Close()
		return aeroerrors.New(aeroerrors.KindStorageIOError, err)
	}
	defer scanner.Close()

	for {
		rec, err := scanner.Next()
		if err != nil {
			file.Close()
			return aeroerrors.New(aeroerrors.KindStorageCorruption, err)
		}
		if rec == nil {
			break
		}
		// Latest offset wins unconditionally (I3): later writes in file
		// order are always authoritative, including tombstones.
		w.index[rec.Record.DocID] = rec.Offset
	}
	w.offset = scanner.Offset()
	return nil
}

// Write appends a live (non-tombstone) document record and returns its
// offset. The writer fsyncs before returning and only then updates the
// in-memory offset map (spec.md §4.3 "writes are fsynced; successful
// writes update the map").
func (w *Writer) Write(docID, schemaID, schemaVersion string, body []byte) (int64, error) {
	return w.append(docID, schemaID, schemaVersion, false, body)
}

// WriteTombstone appends a tombstone record: an empty body with the
// delete flag set, preserved forever (spec.md Glossary "Tombstone").
func (w *Writer) WriteTombstone(docID, schemaID, schemaVersion string) (int64, error) {
	return w.append(docID, schemaID, schemaVersion, true, nil)
}

func (w *Writer) append(docID, schemaID, schemaVersion string, tombstone bool, body []byte) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	frame, err := EncodeRecord(docID, schemaID, schemaVersion, tombstone, body)
	if err != nil {
		return 0, aeroerrors.New(aeroerrors.KindStorageWriteFailed, err)
	}

	offset := w.offset
	writeErr := aeroerrors.RetryTransient(func() error {
		if _, err := w.file.WriteAt(frame, offset); err != nil {
			return err
		}
		return w.file.Sync()
	})
	if writeErr != nil {
		return 0, aeroerrors.New(aeroerrors.KindStorageWriteFailed, writeErr)
	}

	w.offset += int64(len(frame))
	w.index[docID] = offset
	if w.cache != nil {
		rec := &types.StoreRecord{
			Length:        uint64(len(frame)),
			DocID:         docID,
			SchemaID:      schemaID,
			SchemaVersion: schemaVersion,
			Tombstone:     tombstone,
			Body:          body,
		}
		w.cache.Add(offset, rec)
	}
	w.logger.Debug("wrote record doc_id=%s tombstone=%v offset=%d len=%d", docID, tombstone, offset, len(frame))
	return offset, nil
}

// Latest returns the offset of the most recent record for compositeID,
// per the in-memory map (an optimization over a full scan; I4 still
// holds because this map is rebuilt from the store, never hand-edited).
func (w *Writer) Latest(compositeID string) (int64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	off, ok := w.index[compositeID]
	return off, ok
}

// ReadAt validates and decodes the record at offset, reporting
// DATA_CORRUPTION on any framing or checksum mismatch (spec.md §4.3
// "read_at(offset) -> record").
func (w *Writer) ReadAt(offset int64) (*types.StoreRecord, error) {
	if w.cache != nil {
		if rec, ok := w.cache.Get(offset); ok {
			return rec, nil
		}
	}

	w.mu.Lock()
	file := w.file
	w.mu.Unlock()

	lenBuf := make([]byte, codec.LengthSize)
	if _, err := file.ReadAt(lenBuf, offset); err != nil {
		return nil, aeroerrors.New(aeroerrors.KindDataCorruption, err)
	}
	total := int(binary.LittleEndian.Uint32(lenBuf))
	if total < codec.LengthSize {
		return nil, aeroerrors.New(aeroerrors.KindDataCorruption, fmt.Errorf("declared length %d shorter than prefix", total))
	}
	full := make([]byte, total)
	if _, err := file.ReadAt(full, offset); err != nil {
		return nil, aeroerrors.New(aeroerrors.KindDataCorruption, err)
	}

	record, err := DecodeRecord(full)
	if err != nil {
		return nil, aeroerrors.New(aeroerrors.KindDataCorruption, err)
	}
	if w.cache != nil {
		w.cache.Add(offset, record)
	}
	return record, nil
}

// Scan opens an independent read handle for a full front-to-back pass,
// used by recovery and index rebuild (spec.md §4.3). Readers share the
// file through the OS; append-only + fsync-before-ack means any scan
// opened after a successful write observes it (spec.md §5).
func (w *Writer) Scan() (*Scanner, error) {
	return NewScanner(w.path)
}

// BuildDocumentMap performs the full scan described in spec.md §4.3,
// returning the latest raw record (tombstone or not) per composite id.
// It is deliberately expressed as a scan, not a read of the in-memory
// index, so it can serve as the independent oracle the index manager's
// incremental updates are checked against (spec.md §9 "apply-on-write is
// an optimization that must preserve the same result the rebuild would
// produce").
func (w *Writer) BuildDocumentMap() (map[string]*types.StoreRecord, error) {
	scanner, err := w.Scan()
	if err != nil {
		return nil, aeroerrors.New(aeroerrors.KindStorageIOError, err)
	}
	defer scanner.Close()

	out := make(map[string]*types.StoreRecord)
	for {
		rec, err := scanner.Next()
		if err != nil {
			return nil, aeroerrors.New(aeroerrors.KindStorageCorruption, err)
		}
		if rec == nil {
			break
		}
		out[rec.Record.DocID] = rec.Record
	}
	return out, nil
}

func (w *Writer) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.offset
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	if err := w.file.Sync(); err != nil {
		return aeroerrors.New(aeroerrors.KindStorageWriteFailed, err)
	}
	err := w.file.Close()
	w.file = nil
	return err
}
