// Package client embeds AeroDB directly in a host Go process: unlike
// the teacher's pkg/client (a unix-socket client talking to a separate
// docdb process), this client runs recovery and the request handler
// in-process and exposes typed Go methods over the same envelope
// semantics as the wire protocol (spec.md §6).
package client

import (
	"encoding/json"

	"github.com/aerodb/aerodb/internal/config"
	"github.com/aerodb/aerodb/internal/handler"
	"github.com/aerodb/aerodb/internal/logger"
	"github.com/aerodb/aerodb/internal/recovery"
)

// DB is an embedded AeroDB instance. It is safe for concurrent use: all
// requests serialize through the handler's single global lock, exactly
// as they would across a wire protocol (spec.md §5).
type DB struct {
	mgr *recovery.Manager
	h   *handler.Handler
}

// Open runs recovery against cfg.DataDir and returns a ready DB.
func Open(cfg *config.Config) (*DB, error) {
	return OpenWithLogger(cfg, logger.Default())
}

// OpenWithLogger is Open with an explicit logger, for hosts that already
// run their own zerolog-based logging and want AeroDB's log lines tagged
// consistently with the rest of the process.
func OpenWithLogger(cfg *config.Config, log *logger.Logger) (*DB, error) {
	mgr, err := recovery.Open(cfg, log)
	if err != nil {
		return nil, err
	}
	return &DB{mgr: mgr, h: handler.New(mgr, log)}, nil
}

// Close writes the clean_shutdown marker and closes the WAL and store.
func (db *DB) Close() error {
	return db.mgr.Shutdown()
}

// Raw sends an envelope built by the caller directly to the handler,
// for callers (aerodbsh, tests) that need filter shapes the Builder
// doesn't cover.
func (db *DB) Raw(env *handler.Envelope) handler.Response {
	return db.h.Handle(env)
}

// Insert validates and durably writes a new document (spec.md §4.9
// "Insert"). document must marshal to a JSON object containing `_id`.
func (db *DB) Insert(schemaID, schemaVersion string, document interface{}) (handler.Response, error) {
	body, err := json.Marshal(document)
	if err != nil {
		return handler.Response{}, err
	}
	return db.h.Handle(&handler.Envelope{
		Op:            "insert",
		SchemaID:      schemaID,
		SchemaVersion: schemaVersion,
		Document:      body,
	}), nil
}

// Update validates and durably overwrites an existing document (spec.md
// §4.9 "Update"); the document's `_id` must match an existing record.
func (db *DB) Update(schemaID, schemaVersion string, document interface{}) (handler.Response, error) {
	body, err := json.Marshal(document)
	if err != nil {
		return handler.Response{}, err
	}
	return db.h.Handle(&handler.Envelope{
		Op:            "update",
		SchemaID:      schemaID,
		SchemaVersion: schemaVersion,
		Document:      body,
	}), nil
}

// Delete tombstones the document identified by documentID (spec.md §4.9
// "Delete").
func (db *DB) Delete(schemaID, documentID string) handler.Response {
	return db.h.Handle(&handler.Envelope{
		Op:         "delete",
		SchemaID:   schemaID,
		DocumentID: documentID,
	})
}

// Query builds a Builder for constructing a bounded query against
// schemaID/schemaVersion (spec.md §4.6, §4.7).
func (db *DB) Query(schemaID, schemaVersion string) *Builder {
	return &Builder{
		db:            db,
		schemaID:      schemaID,
		schemaVersion: schemaVersion,
		filter:        map[string]map[string]json.RawMessage{},
	}
}

// Builder accumulates filter/sort/limit clauses for one query or
// explain call. It mirrors the wire envelope's filter shape (spec.md
// §6) rather than inventing a separate predicate DSL.
type Builder struct {
	db            *DB
	schemaID      string
	schemaVersion string
	filter        map[string]map[string]json.RawMessage
	sort          string
	limit         *int
}

// Where adds a `field op value` clause; op is one of "$eq", "$gt",
// "$gte", "$lt", "$lte".
func (b *Builder) Where(field, op string, value interface{}) *Builder {
	raw, err := json.Marshal(value)
	if err != nil {
		raw = json.RawMessage("null")
	}
	if b.filter[field] == nil {
		b.filter[field] = map[string]json.RawMessage{}
	}
	b.filter[field][op] = raw
	return b
}

// SortBy sets the sort field; prefix with "-" for descending.
func (b *Builder) SortBy(field string) *Builder {
	b.sort = field
	return b
}

// Limit sets the mandatory result limit (spec.md §4.6 "Boundedness").
func (b *Builder) Limit(n int) *Builder {
	b.limit = &n
	return b
}

func (b *Builder) envelope(op string) *handler.Envelope {
	return &handler.Envelope{
		Op:            op,
		SchemaID:      b.schemaID,
		SchemaVersion: b.schemaVersion,
		Filter:        b.filter,
		Sort:          b.sort,
		Limit:         b.limit,
	}
}

// Run executes the query and returns its response envelope.
func (b *Builder) Run() handler.Response {
	return b.db.h.Handle(b.envelope("query"))
}

// Explain returns the deterministic plan for this query with no
// execution (spec.md §4.9 "Explain").
func (b *Builder) Explain() handler.Response {
	return b.db.h.Handle(b.envelope("explain"))
}
