// Package query implements the AST, boundedness analyzer, planner, and
// executor for AeroDB queries (spec.md §4.6, §4.7). A query must be
// proven bounded before a plan is synthesized, and planning is a pure
// function of its inputs: identical queries against identical schema
// and index state always produce identical plans.
package query

import "github.com/aerodb/aerodb/internal/types"

// Query is the parsed request AST handed to the planner (spec.md §4.6
// "parsed query").
type Query struct {
	Collection    string
	SchemaID      string
	SchemaVersion string // empty means absent; SCHEMA_VERSION_REQUIRED
	Predicates    []types.Predicate
	Sort          *types.SortSpec
	Limit         int  // 0 means absent
	HasLimit      bool
}

// HasPKFilter reports whether the query carries an equality predicate
// on the primary key field.
func (q *Query) HasPKFilter() bool {
	for _, p := range q.Predicates {
		if p.Field == "_id" && p.Op == types.OpEq {
			return true
		}
	}
	return false
}

func isEquality(op types.CompareOp) bool { return op == types.OpEq }

func isRange(op types.CompareOp) bool {
	switch op {
	case types.OpGt, types.OpGte, types.OpLt, types.OpLte:
		return true
	default:
		return false
	}
}
