// Package schema implements the mandatory schema registry and strict
// document validator (spec.md §4.4). The registry loads immutable
// schema definitions from disk at startup; the validator applies them
// to documents with no coercion, no defaults, and no nulls.
package schema

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/natefinch/atomic"

	"github.com/aerodb/aerodb/internal/aeroerrors"
	"github.com/aerodb/aerodb/internal/logger"
	"github.com/aerodb/aerodb/internal/types"
)

// Registry loads every schema_<id>_<version>.json in a fixed directory
// (spec.md §4.4). Once loaded, a given (id, version) pair's field map
// never changes (I7); Register enforces this.
type Registry struct {
	mu       sync.RWMutex
	dir      string
	byKey    map[string]*types.Schema // "id/version" -> schema
	idExists map[string]bool
	logger   *logger.Logger
}

func NewRegistry(dir string, log *logger.Logger) *Registry {
	return &Registry{
		dir:      dir,
		byKey:    make(map[string]*types.Schema),
		idExists: make(map[string]bool),
		logger:   log.With("schema"),
	}
}

func key(id, version string) string { return id + "/" + version }

// Load reads every schema_*.json in the registry directory. Files are
// processed in sorted order so repeated loads are deterministic.
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return aeroerrors.New(aeroerrors.KindStorageIOError, err)
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return aeroerrors.New(aeroerrors.KindStorageIOError, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), "schema_") && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(r.dir, name))
		if err != nil {
			return aeroerrors.New(aeroerrors.KindStorageIOError, err)
		}
		schema, err := parseSchemaFile(data)
		if err != nil {
			return err
		}
		r.byKey[key(schema.SchemaID, schema.SchemaVersion)] = schema
		r.idExists[schema.SchemaID] = true
	}

	r.logger.Info("loaded %d schema versions from %s", len(r.byKey), r.dir)
	return nil
}

// Exists reports whether any version of schemaID has been registered.
func (r *Registry) Exists(schemaID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.idExists[schemaID]
}

// ExistsVersion reports whether the exact (schemaID, schemaVersion) pair
// is registered.
func (r *Registry) ExistsVersion(schemaID, schemaVersion string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byKey[key(schemaID, schemaVersion)]
	return ok
}

// Get returns the registered schema, or an error with the precise kind
// the validator's first two checks require (spec.md §4.4 steps 1-2).
func (r *Registry) Get(schemaID, schemaVersion string) (*types.Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.idExists[schemaID] {
		return nil, aeroerrors.Newf(aeroerrors.KindUnknownSchema, "unknown schema %q", schemaID)
	}
	s, ok := r.byKey[key(schemaID, schemaVersion)]
	if !ok {
		return nil, aeroerrors.Newf(aeroerrors.KindUnknownSchemaVersion, "unknown schema version %q/%q", schemaID, schemaVersion)
	}
	return s, nil
}

// Register durably adds a new (schema_id, schema_version), rejecting a
// repeat registration with SCHEMA_IMMUTABLE (I7). The file is written
// atomically so a crash mid-write never leaves a half-written schema
// file for the next Load to trip over.
func (r *Registry) Register(s *types.Schema) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(s.SchemaID, s.SchemaVersion)
	if _, exists := r.byKey[k]; exists {
		return aeroerrors.Newf(aeroerrors.KindSchemaImmutable, "schema %s/%s already registered", s.SchemaID, s.SchemaVersion)
	}

	idField, ok := s.Fields["_id"]
	if !ok || idField.Type != types.FieldString || !idField.Required {
		return aeroerrors.Newf(aeroerrors.KindSchemaValidationFailed, "schema %s/%s must declare _id as a required string field", s.SchemaID, s.SchemaVersion).WithPath("_id")
	}

	data, err := marshalSchemaFile(s)
	if err != nil {
		return aeroerrors.New(aeroerrors.KindSchemaValidationFailed, err)
	}
	path := filepath.Join(r.dir, fmt.Sprintf("schema_%s_%s.json", s.SchemaID, s.SchemaVersion))
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return aeroerrors.New(aeroerrors.KindStorageWriteFailed, err)
	}

	r.byKey[k] = s
	r.idExists[s.SchemaID] = true
	r.logger.Info("registered schema %s/%s", s.SchemaID, s.SchemaVersion)
	return nil
}

// All returns every registered schema, in no particular order; the
// recovery manager and the CLI use it to report the schema count.
func (r *Registry) All() []*types.Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*types.Schema, 0, len(r.byKey))
	for _, s := range r.byKey {
		out = append(out, s)
	}
	return out
}

// IndexedFields returns the sorted, deduplicated set of top-level field
// names marked `"indexed": true` across every registered schema version
// (spec.md §4.5 "zero or more per-field indexes"). The index manager is
// configured once at startup from this set, rather than one index
// manager per schema, since a composite id already scopes offsets to a
// particular collection's documents.
func (r *Registry) IndexedFields() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	for _, s := range r.byKey {
		for name, def := range s.Fields {
			if def.Indexed {
				seen[name] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
