package handler

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/aerodb/aerodb/internal/aeroerrors"
	"github.com/aerodb/aerodb/internal/query"
	"github.com/aerodb/aerodb/internal/types"
)

// Envelope is the on-the-wire request shape from spec.md §6: one JSON
// object consumed at a time, collection implied by schema_id (see
// DESIGN.md "collection = schema_id").
type Envelope struct {
	Op            string                                 `json:"op"`
	SchemaID      string                                 `json:"schema_id"`
	SchemaVersion string                                 `json:"schema_version"`
	Document      json.RawMessage                        `json:"document,omitempty"`
	DocumentID    string                                 `json:"document_id,omitempty"`
	Filter        map[string]map[string]json.RawMessage  `json:"filter,omitempty"`
	Sort          string                                 `json:"sort,omitempty"`
	Limit         *int                                   `json:"limit,omitempty"`
}

// Response is the on-the-wire response shape from spec.md §6.
type Response struct {
	Status  string      `json:"status"`
	Data    interface{} `json:"data,omitempty"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
}

func ok(data interface{}) Response {
	return Response{Status: "ok", Data: data}
}

func fail(err error) Response {
	if ae, ok := err.(*aeroerrors.AeroError); ok {
		return Response{Status: "error", Code: ae.Code(), Message: ae.Error()}
	}
	return Response{Status: "error", Code: "AERO_INTERNAL", Message: err.Error()}
}

// toQuery converts the envelope's filter/sort/limit into the planner's
// AST (spec.md §4.6). Filter fields are sorted lexicographically before
// becoming predicates so that parsing the same request bytes always
// yields the same predicate order, independent of Go's randomized JSON
// object decoding order — required for "planner.plan(Q) == plan(Q)
// byte-for-byte across runs" (spec.md §8).
func (e *Envelope) toQuery() (*query.Query, error) {
	fieldNames := make([]string, 0, len(e.Filter))
	for field := range e.Filter {
		fieldNames = append(fieldNames, field)
	}
	sort.Strings(fieldNames)

	predicates := make([]types.Predicate, 0, len(fieldNames))
	for _, field := range fieldNames {
		ops := e.Filter[field]
		opNames := make([]string, 0, len(ops))
		for op := range ops {
			opNames = append(opNames, op)
		}
		sort.Strings(opNames)
		for _, opName := range opNames {
			cmpOp, ok := parseCompareOp(opName)
			if !ok {
				return nil, aeroerrors.Newf(aeroerrors.KindQueryInvalid, "unknown filter operator %q on field %q", opName, field)
			}
			value, err := decodeFilterValue(ops[opName])
			if err != nil {
				return nil, aeroerrors.Newf(aeroerrors.KindQueryInvalid, "invalid filter value for %q.%s: %v", field, opName, err)
			}
			predicates = append(predicates, types.Predicate{Field: field, Op: cmpOp, Value: value})
		}
	}

	var sortSpec *types.SortSpec
	if e.Sort != "" {
		sortSpec = parseSortSpec(e.Sort)
	}

	limit := 0
	hasLimit := false
	if e.Limit != nil {
		limit = *e.Limit
		hasLimit = true
	}

	return &query.Query{
		Collection:    e.SchemaID,
		SchemaID:      e.SchemaID,
		SchemaVersion: e.SchemaVersion,
		Predicates:    predicates,
		Sort:          sortSpec,
		Limit:         limit,
		HasLimit:      hasLimit,
	}, nil
}

func parseCompareOp(op string) (types.CompareOp, bool) {
	switch types.CompareOp(op) {
	case types.OpEq, types.OpGt, types.OpGte, types.OpLt, types.OpLte:
		return types.CompareOp(op), true
	default:
		return "", false
	}
}

func parseSortSpec(raw string) *types.SortSpec {
	if len(raw) > 0 && raw[0] == '-' {
		return &types.SortSpec{Field: raw[1:], Desc: true}
	}
	return &types.SortSpec{Field: raw, Desc: false}
}

// decodeFilterValue decodes a raw filter value preserving the int/float
// distinction the validator and comparator rely on (spec.md §4.7 step 3
// "no coercion").
func decodeFilterValue(raw json.RawMessage) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
