package query

import (
	"github.com/aerodb/aerodb/internal/aeroerrors"
	"github.com/aerodb/aerodb/internal/types"
)

// IndexChecker reports whether a field has an index, with "_id" always
// considered indexed. internal/index.Manager satisfies this.
type IndexChecker interface {
	IsIndexed(field string) bool
}

// AnalyzeBounds proves a query touches a finite number of records
// before any plan is synthesized (spec.md §4.6 "Boundedness analysis",
// grounded on the PK-lookup special case from the original planner's
// bounds analyzer).
func AnalyzeBounds(q *Query, indexed IndexChecker) (types.BoundsProof, error) {
	if !q.HasLimit || q.Limit <= 0 {
		return types.BoundsProof{}, aeroerrors.New(aeroerrors.KindQueryLimitRequired, nil)
	}

	for _, p := range q.Predicates {
		if !indexed.IsIndexed(p.Field) {
			return types.BoundsProof{}, aeroerrors.Newf(aeroerrors.KindQueryUnindexedField,
				"field %q is not indexed", p.Field).WithPath(p.Field)
		}
	}

	if q.Sort != nil && !indexed.IsIndexed(q.Sort.Field) {
		return types.BoundsProof{}, aeroerrors.Newf(aeroerrors.KindQuerySortNotIndexed,
			"sort field %q is not indexed", q.Sort.Field).WithPath(q.Sort.Field)
	}

	// PK equality is special-cased and checked before the general
	// indexed-scan proof: the scan is bounded at 1 regardless of the
	// requested limit (spec.md §4.6).
	if q.HasPKFilter() {
		return types.BoundsProof{
			MaxScan:       1,
			IndexedFields: []string{"_id"},
			UsesPK:        true,
		}, nil
	}

	fields := make([]string, 0, len(q.Predicates))
	for _, p := range q.Predicates {
		fields = append(fields, p.Field)
	}
	return types.BoundsProof{
		MaxScan:       uint64(q.Limit),
		IndexedFields: fields,
		UsesPK:        false,
	}, nil
}
