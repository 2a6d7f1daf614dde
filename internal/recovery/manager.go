// Package recovery orchestrates AeroDB startup (spec.md §4.8): load
// schemas, replay the WAL into the store, rebuild every index from a
// full store scan, verify every live record against the schema
// registry, and only then mark the database ready to serve requests.
// Each step strictly precedes the next; any failure aborts startup.
package recovery

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	"github.com/aerodb/aerodb/internal/aeroerrors"
	"github.com/aerodb/aerodb/internal/config"
	"github.com/aerodb/aerodb/internal/index"
	"github.com/aerodb/aerodb/internal/logger"
	"github.com/aerodb/aerodb/internal/schema"
	"github.com/aerodb/aerodb/internal/store"
	"github.com/aerodb/aerodb/internal/types"
	"github.com/aerodb/aerodb/internal/wal"
)

// Layout resolves the on-disk paths from spec.md §6 under a data
// directory.
type Layout struct {
	WALPath    string
	StorePath  string
	SchemaDir  string
	MarkerPath string
}

// NewLayout lays the fixed directory structure out under dataDir.
func NewLayout(dataDir string) Layout {
	return Layout{
		WALPath:    filepath.Join(dataDir, "wal", "wal.log"),
		StorePath:  filepath.Join(dataDir, "data", "documents.dat"),
		SchemaDir:  filepath.Join(dataDir, "metadata", "schemas"),
		MarkerPath: filepath.Join(dataDir, "clean_shutdown"),
	}
}

// ReplayStats counts WAL record types seen during replay (spec.md §9
// open question, resolved as count-only for MVCC record types; see
// DESIGN.md). It is a diagnostic returned to the operator, never a
// durability signal.
type ReplayStats struct {
	Insert      uint64
	Update      uint64
	Delete      uint64
	MvccCommit  uint64
	MvccVersion uint64
	MvccGc      uint64
}

func (s *ReplayStats) count(op types.OperationType) {
	switch op {
	case types.OpInsert:
		s.Insert++
	case types.OpUpdate:
		s.Update++
	case types.OpDelete:
		s.Delete++
	case types.OpMvccCommit:
		s.MvccCommit++
	case types.OpMvccVersion:
		s.MvccVersion++
	case types.OpMvccGc:
		s.MvccGc++
	}
}

// Total returns the number of WAL records counted, store-effecting or not.
func (s *ReplayStats) Total() uint64 {
	return s.Insert + s.Update + s.Delete + s.MvccCommit + s.MvccVersion + s.MvccGc
}

// Manager owns the subsystems brought up by Open and torn down by
// Shutdown: the schema registry, the WAL writer used for subsequent
// requests, the store writer, and the index manager (spec.md §4.8,
// §4.9 "ownership").
type Manager struct {
	layout   Layout
	logger   *logger.Logger
	Registry *schema.Registry
	WAL      *wal.Writer
	Store    *store.Writer
	Index    *index.Manager
	Stats    ReplayStats
}

// Open runs the full startup sequence against cfg.DataDir and returns a
// Manager with every subsystem ready to hand to the request handler.
func Open(cfg *config.Config, log *logger.Logger) (*Manager, error) {
	layout := NewLayout(cfg.DataDir)
	rlog := log.With("recovery")

	for _, dir := range []string{filepath.Dir(layout.WALPath), filepath.Dir(layout.StorePath), layout.SchemaDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, aeroerrors.New(aeroerrors.KindRecoveryFailed, err)
		}
	}

	// Step 1: load all schemas.
	registry := schema.NewRegistry(layout.SchemaDir, log)
	if err := registry.Load(); err != nil {
		return nil, aeroerrors.New(aeroerrors.KindRecoveryFailed, err)
	}

	// Step 2: open the WAL reader at offset 0 and the store writer
	// (which scans to rebuild its own offset map).
	storeWriter := store.NewWriter(layout.StorePath, cfg.CacheEntries, log)
	if err := storeWriter.Open(); err != nil {
		return nil, aeroerrors.New(aeroerrors.KindRecoveryFailed, err)
	}

	reader := wal.NewReader(layout.WALPath)
	if err := reader.Open(); err != nil {
		storeWriter.Close()
		return nil, aeroerrors.New(aeroerrors.KindRecoveryFailed, err)
	}

	// Step 3: replay the WAL, applying every store-effecting record to
	// the store writer and counting every record type seen.
	var stats ReplayStats
	for {
		rec, err := reader.Next()
		if err != nil {
			reader.Close()
			storeWriter.Close()
			return nil, aeroerrors.New(aeroerrors.KindRecoveryFailed, err)
		}
		if rec == nil {
			break
		}
		stats.count(rec.OpType)
		if !rec.OpType.IsStoreEffect() {
			continue
		}

		var writeErr error
		if rec.OpType == types.OpDelete {
			_, writeErr = storeWriter.WriteTombstone(rec.CompositeID(), rec.SchemaID, rec.SchemaVersion)
		} else {
			_, writeErr = storeWriter.Write(rec.CompositeID(), rec.SchemaID, rec.SchemaVersion, rec.Body)
		}
		if writeErr != nil {
			reader.Close()
			storeWriter.Close()
			return nil, aeroerrors.New(aeroerrors.KindRecoveryFailed, writeErr)
		}
	}
	reader.Close()
	rlog.Info("replayed WAL: insert=%d update=%d delete=%d mvcc_commit=%d mvcc_version=%d mvcc_gc=%d",
		stats.Insert, stats.Update, stats.Delete, stats.MvccCommit, stats.MvccVersion, stats.MvccGc)

	// Step 4: rebuild every index from a full, front-to-back store scan.
	idx := index.NewManager(registry.IndexedFields())
	if err := idx.RebuildFromStorage(storeWriter.Scan); err != nil {
		storeWriter.Close()
		return nil, aeroerrors.New(aeroerrors.KindRecoveryFailed, err)
	}

	// Step 5: verification pass. Every live record's (schema_id,
	// schema_version) must exist in the registry; any checksum failure
	// during this scan is fatal storage corruption.
	if err := verify(storeWriter, registry); err != nil {
		storeWriter.Close()
		return nil, err
	}

	// Step 6: the clean_shutdown marker is informational only (spec.md
	// §4.8 step 6) — replay ran identically whether or not it was
	// present. Remove it now so a future crash (without a graceful
	// Shutdown) is distinguishable from this clean startup, should a later
	// phase choose to read it.
	_ = os.Remove(layout.MarkerPath)

	walWriter := wal.NewWriter(layout.WALPath, log)
	if err := walWriter.Open(); err != nil {
		storeWriter.Close()
		return nil, aeroerrors.New(aeroerrors.KindRecoveryFailed, err)
	}

	rlog.Info("ready: schemas=%d indexed_fields=%v", len(registry.All()), idx.IndexedFields())

	return &Manager{
		layout:   layout,
		logger:   rlog,
		Registry: registry,
		WAL:      walWriter,
		Store:    storeWriter,
		Index:    idx,
		Stats:    stats,
	}, nil
}

// verify re-scans the store front to back, checking that every live
// record's schema reference still resolves (spec.md §4.8 step 5,
// RECOVERY_SCHEMA_MISSING fatal on miss). Any framing/checksum failure
// surfaces as STORAGE_CORRUPTION, also fatal.
func verify(storeWriter *store.Writer, registry *schema.Registry) error {
	scanner, err := storeWriter.Scan()
	if err != nil {
		return aeroerrors.New(aeroerrors.KindStorageCorruption, err)
	}
	defer scanner.Close()

	for {
		rec, err := scanner.Next()
		if err != nil {
			return aeroerrors.New(aeroerrors.KindStorageCorruption, err)
		}
		if rec == nil {
			return nil
		}
		if rec.Record.Tombstone {
			continue
		}
		if !registry.ExistsVersion(rec.Record.SchemaID, rec.Record.SchemaVersion) {
			return aeroerrors.Newf(aeroerrors.KindRecoverySchemaMissing,
				"live record %q references unknown schema %s/%s", rec.Record.DocID, rec.Record.SchemaID, rec.Record.SchemaVersion)
		}
	}
}

// Shutdown durably writes the clean_shutdown marker and closes every
// owned subsystem (spec.md §4.8 "On graceful shutdown"). The marker
// write goes through github.com/natefinch/atomic so a crash mid-write
// never leaves a half-written marker for the next Open to trip over.
func (m *Manager) Shutdown() error {
	if err := atomic.WriteFile(m.layout.MarkerPath, bytes.NewReader(nil)); err != nil {
		return aeroerrors.New(aeroerrors.KindStorageWriteFailed, err)
	}
	if err := m.WAL.Close(); err != nil {
		return err
	}
	if err := m.Store.Close(); err != nil {
		return err
	}
	m.logger.Info("shutdown complete")
	return nil
}
