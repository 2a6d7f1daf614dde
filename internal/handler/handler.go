// Package handler implements the request handler (spec.md §4.9): the
// single process-wide serialization point that drives every request
// through "validate -> WAL append -> store append -> index update" (for
// writes) or "plan -> execute" (for reads), and nothing else ever
// touches the WAL writer, store writer, or index manager concurrently.
package handler

import (
	"sync"

	"github.com/google/uuid"

	"github.com/aerodb/aerodb/internal/aeroerrors"
	"github.com/aerodb/aerodb/internal/index"
	"github.com/aerodb/aerodb/internal/logger"
	"github.com/aerodb/aerodb/internal/query"
	"github.com/aerodb/aerodb/internal/recovery"
	"github.com/aerodb/aerodb/internal/schema"
	"github.com/aerodb/aerodb/internal/store"
	"github.com/aerodb/aerodb/internal/types"
	"github.com/aerodb/aerodb/internal/wal"
)

// Handler owns the WAL writer, store writer, and index manager
// exclusively for the duration of each request (spec.md §3
// "Ownership"). mu is the single process-wide lock from spec.md §5: it
// is held from validate through index update, so the core never
// interleaves two requests.
type Handler struct {
	mu        sync.Mutex
	wal       *wal.Writer
	store     *store.Writer
	index     *index.Manager
	registry  *schema.Registry
	validator *schema.Validator
	planner   *query.Planner
	executor  *query.Executor
	logger    *logger.Logger
}

// New wires a Handler from an already-recovered Manager (spec.md §4.8
// step 6 "mark ready").
func New(mgr *recovery.Manager, log *logger.Logger) *Handler {
	validator := schema.NewValidator(mgr.Registry)
	return &Handler{
		wal:       mgr.WAL,
		store:     mgr.Store,
		index:     mgr.Index,
		registry:  mgr.Registry,
		validator: validator,
		planner:   query.NewPlanner(mgr.Registry, mgr.Index),
		executor:  query.NewExecutor(mgr.Index, mgr.Store),
		logger:    log.With("handler"),
	}
}

// Handle dispatches one request envelope to its operation and returns
// the response envelope (spec.md §4.9, §6). It never panics: every
// fallible path returns an *aeroerrors.AeroError, which Handle renders
// into the error response shape.
func (h *Handler) Handle(req *Envelope) Response {
	reqID := uuid.NewString()
	h.mu.Lock()
	defer h.mu.Unlock()

	var (
		data interface{}
		err  error
	)
	switch req.Op {
	case "insert":
		data, err = h.insert(req)
	case "update":
		data, err = h.update(req)
	case "delete":
		data, err = h.delete(req)
	case "query":
		data, err = h.query(req)
	case "explain":
		data, err = h.explain(req)
	default:
		err = aeroerrors.Newf(aeroerrors.KindQueryInvalid, "unknown op %q", req.Op)
	}

	if err != nil {
		h.logger.Warn("request_id=%s op=%s failed: %v", reqID, req.Op, err)
		return fail(err)
	}
	h.logger.Debug("request_id=%s op=%s ok", reqID, req.Op)
	return ok(data)
}

// collection returns the composite-id namespace a request operates in.
// This core has no separate collection field on the wire (spec.md §6);
// DESIGN.md records the decision to use schema_id as the collection
// name, matching the original Rust source where one storage adapter is
// configured per collection and the request API never names one
// independently.
func collection(schemaID string) string { return schemaID }

func compositeID(schemaID, docID string) string { return collection(schemaID) + ":" + docID }

// insert runs "validate -> WAL append -> store append -> index update"
// (spec.md §4.9 "Insert"). A failure at any stage short-circuits: a
// rejected write leaves no WAL, no store, no index trace (spec.md §7
// "User-visible behavior").
func (h *Handler) insert(req *Envelope) (interface{}, error) {
	if req.SchemaID == "" {
		return nil, aeroerrors.New(aeroerrors.KindSchemaRequired, nil)
	}
	if req.SchemaVersion == "" {
		return nil, aeroerrors.New(aeroerrors.KindSchemaVersionRequired, nil)
	}

	doc, err := schema.DecodeDocument(req.Document)
	if err != nil {
		return nil, err
	}
	if err := h.validator.Validate(req.SchemaID, req.SchemaVersion, doc); err != nil {
		return nil, err
	}

	id, _ := doc["_id"].(string)
	cid := compositeID(req.SchemaID, id)

	if _, _, err := h.wal.Append(types.OpInsert, collection(req.SchemaID), id, req.SchemaID, req.SchemaVersion, req.Document); err != nil {
		return nil, err
	}
	offset, err := h.store.Write(cid, req.SchemaID, req.SchemaVersion, req.Document)
	if err != nil {
		return nil, err
	}
	h.index.ApplyWrite(index.DocumentInfo{
		CompositeID:   cid,
		SchemaID:      req.SchemaID,
		SchemaVersion: req.SchemaVersion,
		Body:          doc,
		Offset:        offset,
	}, nil)

	return map[string]interface{}{"_id": id}, nil
}

// update runs Insert's pipeline with the validator in update mode and a
// PK existence check first (spec.md §4.9 "Update"): the document's id
// cannot change (I2), and the old body must be known so stale secondary
// index entries are unwired.
func (h *Handler) update(req *Envelope) (interface{}, error) {
	if req.SchemaID == "" {
		return nil, aeroerrors.New(aeroerrors.KindSchemaRequired, nil)
	}
	if req.SchemaVersion == "" {
		return nil, aeroerrors.New(aeroerrors.KindSchemaVersionRequired, nil)
	}

	doc, err := schema.DecodeDocument(req.Document)
	if err != nil {
		return nil, err
	}
	id, _ := doc["_id"].(string)
	cid := compositeID(req.SchemaID, id)

	existingOffsets := h.index.LookupPK(cid)
	if len(existingOffsets) == 0 {
		return nil, aeroerrors.Newf(aeroerrors.KindDocNotFound, "document %q not found", id)
	}
	existing, err := h.store.ReadAt(existingOffsets[len(existingOffsets)-1])
	if err != nil {
		return nil, err
	}
	// The wire envelope carries only the new body (spec.md §6 update =
	// {schema_id, schema_version, document}), so id is always looked up
	// by the value it already has; ValidateUpdate's immutability check
	// (I2) still runs against that same id for parity with insert's path.
	if err := h.validator.ValidateUpdate(req.SchemaID, req.SchemaVersion, id, doc); err != nil {
		return nil, err
	}
	oldBody, err := schema.DecodeDocument(existing.Body)
	if err != nil {
		return nil, err
	}

	if _, _, err := h.wal.Append(types.OpUpdate, collection(req.SchemaID), id, req.SchemaID, req.SchemaVersion, req.Document); err != nil {
		return nil, err
	}
	offset, err := h.store.Write(cid, req.SchemaID, req.SchemaVersion, req.Document)
	if err != nil {
		return nil, err
	}
	h.index.ApplyWrite(index.DocumentInfo{
		CompositeID:   cid,
		SchemaID:      req.SchemaID,
		SchemaVersion: req.SchemaVersion,
		Body:          doc,
		Offset:        offset,
	}, oldBody)

	return map[string]interface{}{"_id": id}, nil
}

// delete confirms existence via the PK index, reads the old body to
// unwind its secondary-index entries, then appends a tombstone (spec.md
// §4.9 "Delete").
func (h *Handler) delete(req *Envelope) (interface{}, error) {
	if req.SchemaID == "" {
		return nil, aeroerrors.New(aeroerrors.KindSchemaRequired, nil)
	}
	cid := compositeID(req.SchemaID, req.DocumentID)

	offsets := h.index.LookupPK(cid)
	if len(offsets) == 0 {
		return nil, aeroerrors.Newf(aeroerrors.KindDocNotFound, "document %q not found", req.DocumentID)
	}
	existing, err := h.store.ReadAt(offsets[len(offsets)-1])
	if err != nil {
		return nil, err
	}
	oldBody, err := schema.DecodeDocument(existing.Body)
	if err != nil {
		return nil, err
	}

	if _, _, err := h.wal.Append(types.OpDelete, collection(req.SchemaID), req.DocumentID, existing.SchemaID, existing.SchemaVersion, nil); err != nil {
		return nil, err
	}
	if _, err := h.store.WriteTombstone(cid, existing.SchemaID, existing.SchemaVersion); err != nil {
		return nil, err
	}
	h.index.ApplyDelete(cid, oldBody)

	return map[string]interface{}{"_id": req.DocumentID}, nil
}

// query builds the AST, plans it, and executes it (spec.md §4.9
// "Query").
func (h *Handler) query(req *Envelope) (interface{}, error) {
	q, err := req.toQuery()
	if err != nil {
		return nil, err
	}
	plan, err := h.planner.Plan(q)
	if err != nil {
		return nil, err
	}
	result, err := h.executor.Execute(plan)
	if err != nil {
		return nil, err
	}
	return renderResult(result), nil
}

// explain builds the AST and plans it, returning a pure rendering of
// the plan with no execution (spec.md §4.9 "Explain MUST be a pure
// function of the plan").
func (h *Handler) explain(req *Envelope) (interface{}, error) {
	q, err := req.toQuery()
	if err != nil {
		return nil, err
	}
	plan, err := h.planner.Plan(q)
	if err != nil {
		return nil, err
	}
	return RenderExplain(plan), nil
}

func renderResult(r *query.Result) map[string]interface{} {
	docs := make([]map[string]interface{}, 0, len(r.Documents))
	for _, d := range r.Documents {
		body := make(map[string]interface{}, len(d.Body))
		for k, v := range d.Body {
			body[k] = v
		}
		docs = append(docs, body)
	}
	return map[string]interface{}{
		"documents":      docs,
		"scanned_count":  r.ScannedCount,
		"returned_count": r.ReturnedCount,
		"limit_applied":  r.LimitApplied,
	}
}
