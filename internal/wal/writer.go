package wal

import (
	"os"
	"sync"

	"github.com/aerodb/aerodb/internal/aeroerrors"
	"github.com/aerodb/aerodb/internal/logger"
	"github.com/aerodb/aerodb/internal/types"
)

// Writer is the single-producer append-only WAL writer (spec.md §4.2).
// The request handler's global lock guarantees single-producer access;
// the internal mutex here is belt-and-suspenders for ad hoc callers
// such as tests.
type Writer struct {
	mu     sync.Mutex
	file   *os.File
	path   string
	nextSeq uint64
	logger *logger.Logger
}

func NewWriter(path string, log *logger.Logger) *Writer {
	return &Writer{path: path, logger: log.With("wal")}
}

// Open opens (creating if needed) the WAL file for writing and scans it
// to recover the next sequence number to assign. Append writes each
// record at the current end of the file.
func (w *Writer) Open() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	file, err := os.OpenFile(w.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return aeroerrors.New(aeroerrors.KindWALWriteFailed, err)
	}
	w.file = file

	lastSeq, err := scanLastSequence(w.path)
	if err != nil {
		file.Close()
		return err
	}
	w.nextSeq = lastSeq + 1
	return nil
}

// Append durably records one intended state change (spec.md §4.2
// "append contract"): assigns the next sequence number, frames and
// writes the record, fsyncs, and only then returns the assigned
// sequence number and the record's byte offset. On any failure the
// in-memory sequence counter is left untouched, and no WAL_WRITE_FAILED
// call ever appears to have partially succeeded.
func (w *Writer) Append(opType types.OperationType, collection, docID, schemaID, schemaVersion string, body []byte) (seq uint64, offset int64, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	info, err := w.file.Stat()
	if err != nil {
		return 0, 0, aeroerrors.New(aeroerrors.KindWALWriteFailed, err)
	}
	offset = info.Size()

	candidate := w.nextSeq
	frame, err := EncodeRecord(candidate, opType, collection, docID, schemaID, schemaVersion, body)
	if err != nil {
		return 0, 0, aeroerrors.New(aeroerrors.KindWALWriteFailed, err)
	}

	writeErr := aeroerrors.RetryTransient(func() error {
		if _, err := w.file.WriteAt(frame, offset); err != nil {
			return err
		}
		return w.file.Sync()
	})
	if writeErr != nil {
		// Nothing durable happened; nextSeq is untouched (I-WAL: a
		// failed append must not advance sequence state).
		return 0, 0, aeroerrors.New(aeroerrors.KindWALWriteFailed, writeErr)
	}

	w.nextSeq = candidate + 1
	w.logger.Debug("appended record seq=%d type=%s offset=%d len=%d", candidate, opType, offset, len(frame))
	return candidate, offset, nil
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	if err := w.file.Sync(); err != nil {
		return aeroerrors.New(aeroerrors.KindWALWriteFailed, err)
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// scanLastSequence replays the WAL once at Open time to recover the
// highest durably-written sequence number, tolerating a zero-length
// (freshly created) file.
func scanLastSequence(path string) (uint64, error) {
	r := NewReader(path)
	if err := r.Open(); err != nil {
		return 0, err
	}
	defer r.Close()

	var last uint64
	for {
		rec, err := r.Next()
		if err != nil {
			return 0, err
		}
		if rec == nil {
			break
		}
		last = rec.SequenceNumber
	}
	return last, nil
}
