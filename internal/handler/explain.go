package handler

import "github.com/aerodb/aerodb/internal/types"

// ExplainPlan is the deterministic, pure rendering of a types.Plan
// (spec.md §4.9 "Explain MUST be a pure function of the plan, never
// touching the store"). Field order here is fixed, not map-derived, so
// two Explain calls against the same plan always marshal to the same
// bytes.
type ExplainPlan struct {
	ScanType      string             `json:"scan_type"`
	ChosenIndex   string             `json:"chosen_index"`
	IndexedFields []string           `json:"indexed_fields"`
	MaxScan       uint64             `json:"max_scan"`
	UsesPK        bool               `json:"uses_pk"`
	Predicates    []ExplainPredicate `json:"predicates"`
	Sort          *ExplainSort       `json:"sort,omitempty"`
	Limit         int                `json:"limit"`
}

// ExplainPredicate mirrors one types.Predicate in its plan-declared
// order (spec.md §5 "predicate list in field-declared order").
type ExplainPredicate struct {
	Field string      `json:"field"`
	Op    string      `json:"op"`
	Value interface{} `json:"value"`
}

type ExplainSort struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc"`
}

// RenderExplain converts a plan into its wire shape with no execution
// and no side effects.
func RenderExplain(plan *types.Plan) ExplainPlan {
	predicates := make([]ExplainPredicate, 0, len(plan.Predicates))
	for _, p := range plan.Predicates {
		predicates = append(predicates, ExplainPredicate{
			Field: p.Field,
			Op:    string(p.Op),
			Value: p.Value,
		})
	}

	var sortOut *ExplainSort
	if plan.Sort != nil {
		sortOut = &ExplainSort{Field: plan.Sort.Field, Desc: plan.Sort.Desc}
	}

	return ExplainPlan{
		ScanType:      string(plan.ScanType),
		ChosenIndex:   plan.ChosenIndex,
		IndexedFields: append([]string(nil), plan.Bounds.IndexedFields...),
		MaxScan:       plan.Bounds.MaxScan,
		UsesPK:        plan.Bounds.UsesPK,
		Predicates:    predicates,
		Sort:          sortOut,
		Limit:         plan.Limit,
	}
}
