package query

import (
	"sort"

	"github.com/aerodb/aerodb/internal/aeroerrors"
	"github.com/aerodb/aerodb/internal/types"
)

// SchemaChecker is the read-only slice of the schema registry the
// planner needs. internal/schema.Registry satisfies this.
type SchemaChecker interface {
	Exists(schemaID string) bool
	ExistsVersion(schemaID, schemaVersion string) bool
}

// Planner produces deterministic, bounded plans (spec.md §4.6).
type Planner struct {
	schemas SchemaChecker
	indexed IndexChecker
}

// NewPlanner constructs a planner over the given schema registry and
// index manager.
func NewPlanner(schemas SchemaChecker, indexed IndexChecker) *Planner {
	return &Planner{schemas: schemas, indexed: indexed}
}

// Plan validates schema gates, proves boundedness, selects an index by
// strict priority, and returns an immutable plan. Two calls with equal
// inputs always yield equal plans.
func (p *Planner) Plan(q *Query) (*types.Plan, error) {
	if q.SchemaVersion == "" {
		return nil, aeroerrors.New(aeroerrors.KindSchemaVersionRequired, nil)
	}
	if !p.schemas.Exists(q.SchemaID) {
		return nil, aeroerrors.Newf(aeroerrors.KindUnknownSchema, "schema %q not found", q.SchemaID)
	}
	if !p.schemas.ExistsVersion(q.SchemaID, q.SchemaVersion) {
		return nil, aeroerrors.Newf(aeroerrors.KindUnknownSchemaVersion,
			"schema %q version %q not found", q.SchemaID, q.SchemaVersion)
	}

	bounds, err := AnalyzeBounds(q, p.indexed)
	if err != nil {
		return nil, err
	}

	chosenIndex, scanType, err := p.selectIndex(q)
	if err != nil {
		return nil, err
	}

	return &types.Plan{
		Collection:    q.Collection,
		SchemaID:      q.SchemaID,
		SchemaVersion: q.SchemaVersion,
		ChosenIndex:   chosenIndex,
		ScanType:      scanType,
		Predicates:    append([]types.Predicate(nil), q.Predicates...),
		Sort:          q.Sort,
		Limit:         q.Limit,
		Bounds:        bounds,
	}, nil
}

// selectIndex applies the strict priority order (spec.md §4.6 "Index
// selection"): PK equality, then indexed equality, then indexed range,
// ties broken lexicographically by field name.
func (p *Planner) selectIndex(q *Query) (string, types.ScanType, error) {
	if q.HasPKFilter() {
		return "_id", types.ScanPK, nil
	}

	var eqCandidates []string
	for _, pred := range q.Predicates {
		if isEquality(pred.Op) && p.indexed.IsIndexed(pred.Field) {
			eqCandidates = append(eqCandidates, pred.Field)
		}
	}
	if len(eqCandidates) > 0 {
		sort.Strings(eqCandidates)
		return eqCandidates[0], types.ScanIndexedEq, nil
	}

	var rangeCandidates []string
	for _, pred := range q.Predicates {
		if isRange(pred.Op) && p.indexed.IsIndexed(pred.Field) {
			rangeCandidates = append(rangeCandidates, pred.Field)
		}
	}
	if len(rangeCandidates) > 0 {
		sort.Strings(rangeCandidates)
		return rangeCandidates[0], types.ScanIndexedRange, nil
	}

	// Boundedness already proved a usable predicate exists; reaching
	// here means a bug in AnalyzeBounds, not a client error.
	return "", "", aeroerrors.New(aeroerrors.KindQueryUnbounded, nil)
}
