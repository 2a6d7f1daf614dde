package query

import (
	"encoding/json"

	"github.com/aerodb/aerodb/internal/types"
)

// matchesAll applies every predicate with AND semantics and strict
// matching rules (spec.md §4.7 step 3): missing or null fields never
// match, equality never coerces, range comparisons apply only between
// two numbers or two strings.
func matchesAll(doc map[string]interface{}, predicates []types.Predicate) bool {
	for _, p := range predicates {
		if !matchesOne(doc, p) {
			return false
		}
	}
	return true
}

func matchesOne(doc map[string]interface{}, p types.Predicate) bool {
	actual, ok := doc[p.Field]
	if !ok || actual == nil {
		return false
	}
	switch p.Op {
	case types.OpEq:
		return valuesEqual(actual, p.Value)
	case types.OpGte:
		cmp, ok := compareValues(actual, p.Value)
		return ok && cmp >= 0
	case types.OpGt:
		cmp, ok := compareValues(actual, p.Value)
		return ok && cmp > 0
	case types.OpLte:
		cmp, ok := compareValues(actual, p.Value)
		return ok && cmp <= 0
	case types.OpLt:
		cmp, ok := compareValues(actual, p.Value)
		return ok && cmp < 0
	default:
		return false
	}
}

// valuesEqual is exact, no-coercion equality: the two sides must be the
// same JSON kind, and for numbers the same literal form (an int literal
// never equals a float literal at the same mathematical value).
func valuesEqual(a, b interface{}) bool {
	switch av := a.(type) {
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case json.Number:
		bv, ok := b.(json.Number)
		return ok && av == bv
	default:
		return false
	}
}

// compareValues orders two values when both are numbers or both are
// strings (spec.md §4.7 step 3 "ordering comparisons apply only when
// both sides are of the same number or string type"); anything else
// reports ok=false so the comparison never matches.
func compareValues(a, b interface{}) (int, bool) {
	switch av := a.(type) {
	case json.Number:
		bv, ok := b.(json.Number)
		if !ok {
			return 0, false
		}
		af, err1 := av.Float64()
		bf, err2 := bv.Float64()
		if err1 != nil || err2 != nil {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		default:
			return 0, true
		}
	default:
		return 0, false
	}
}
