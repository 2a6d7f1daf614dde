package query

import (
	"github.com/aerodb/aerodb/internal/aeroerrors"
	"github.com/aerodb/aerodb/internal/schema"
	"github.com/aerodb/aerodb/internal/types"
)

// IndexLookup is the slice of internal/index.Manager the executor
// needs to resolve a plan's chosen index into candidate offsets.
type IndexLookup interface {
	LookupPK(compositeID string) []int64
	LookupEq(field string, value interface{}) []int64
	LookupRange(field string, min, max interface{}, limit int) []int64
}

// StorageReader is the slice of internal/store.Writer the executor
// needs to read candidate documents.
type StorageReader interface {
	ReadAt(offset int64) (*types.StoreRecord, error)
}

// Executor runs plans against an index and a storage reader (spec.md
// §4.7).
type Executor struct {
	index   IndexLookup
	storage StorageReader
}

// NewExecutor constructs an executor over the given index and
// storage.
func NewExecutor(index IndexLookup, storage StorageReader) *Executor {
	return &Executor{index: index, storage: storage}
}

// Execute runs plan to completion. With the same index and store
// bytes, successive calls produce byte-identical result orderings
// (spec.md §4.7 "Determinism").
func (e *Executor) Execute(plan *types.Plan) (*Result, error) {
	offsets := e.candidateOffsets(plan)

	var docs []ResultDocument
	scanned := 0
	for _, offset := range offsets {
		scanned++

		rec, err := e.storage.ReadAt(offset)
		if err != nil {
			return nil, aeroerrors.New(aeroerrors.KindDataCorruption, err)
		}
		if rec.Tombstone {
			continue
		}
		if rec.SchemaID != plan.SchemaID || rec.SchemaVersion != plan.SchemaVersion {
			// Schema mismatch is a silent exclusion, not an error
			// (spec.md §4.7 step 2).
			continue
		}

		body, err := schema.DecodeDocument(rec.Body)
		if err != nil {
			// A live record that fails to parse is structurally
			// inconsistent; verification should already have caught
			// it, so the executor excludes it rather than aborting.
			continue
		}

		if !matchesAll(body, plan.Predicates) {
			continue
		}

		id := rec.DocID
		if idx := lastColon(id); idx >= 0 {
			id = id[idx+1:]
		}

		docs = append(docs, ResultDocument{
			ID:            id,
			SchemaID:      rec.SchemaID,
			SchemaVersion: rec.SchemaVersion,
			Body:          body,
			Offset:        offset,
		})
	}

	if plan.Sort != nil {
		sortResults(docs, plan.Sort)
	}

	limitApplied := len(docs) > plan.Limit
	if plan.Limit >= 0 && len(docs) > plan.Limit {
		docs = docs[:plan.Limit]
	}

	return &Result{
		Documents:     docs,
		ScannedCount:  scanned,
		ReturnedCount: len(docs),
		LimitApplied:  limitApplied,
	}, nil
}

func lastColon(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			return i
		}
	}
	return -1
}

// candidateOffsets resolves plan.ScanType + plan.ChosenIndex into a
// bounded offset list via the index manager (spec.md §4.7 step 1).
func (e *Executor) candidateOffsets(plan *types.Plan) []int64 {
	switch plan.ScanType {
	case types.ScanPK:
		for _, p := range plan.Predicates {
			if p.Field == "_id" && p.Op == types.OpEq {
				if s, ok := p.Value.(string); ok {
					return e.index.LookupPK(plan.Collection + ":" + s)
				}
			}
		}
		return nil

	case types.ScanIndexedEq:
		for _, p := range plan.Predicates {
			if p.Field == plan.ChosenIndex && p.Op == types.OpEq {
				return e.index.LookupEq(plan.ChosenIndex, p.Value)
			}
		}
		return nil

	case types.ScanIndexedRange:
		var min, max interface{}
		for _, p := range plan.Predicates {
			if p.Field != plan.ChosenIndex {
				continue
			}
			switch p.Op {
			case types.OpGte, types.OpGt:
				min = p.Value
			case types.OpLte, types.OpLt:
				max = p.Value
			}
		}
		// No limit is passed here: candidates are truncated only after
		// filtering and sorting (spec.md §4.7 step 5), never at the
		// index layer in ascending-key order, so a descending sort or
		// a sort field different from the range field still sees every
		// live candidate before limit is applied.
		return e.index.LookupRange(plan.ChosenIndex, min, max, 0)

	default:
		return nil
	}
}
