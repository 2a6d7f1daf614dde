package query

import (
	"encoding/json"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aerodb/aerodb/internal/aeroerrors"
	"github.com/aerodb/aerodb/internal/types"
)

// fakeIndex is a minimal IndexChecker/IndexLookup double over an
// in-memory field->sorted-offsets map, enough to exercise the planner
// and executor without pulling in internal/index or internal/store.
type fakeIndex struct {
	indexed map[string]bool
	pk      map[string]int64
	fields  map[string]map[string][]int64 // field -> json-number-string or raw -> offsets
}

func (f *fakeIndex) IsIndexed(field string) bool { return field == "_id" || f.indexed[field] }

func (f *fakeIndex) LookupPK(compositeID string) []int64 {
	if off, ok := f.pk[compositeID]; ok {
		return []int64{off}
	}
	return nil
}

func (f *fakeIndex) LookupEq(field string, value interface{}) []int64 {
	return append([]int64(nil), f.fields[field][fmtKey(value)]...)
}

func (f *fakeIndex) LookupRange(field string, min, max interface{}, limit int) []int64 {
	var out []int64
	for k, offs := range f.fields[field] {
		n := json.Number(k)
		nf, _ := n.Float64()
		if min != nil {
			mf, _ := min.(json.Number).Float64()
			if nf < mf {
				continue
			}
		}
		if max != nil {
			xf, _ := max.(json.Number).Float64()
			if nf > xf {
				continue
			}
		}
		out = append(out, offs...)
	}
	// deterministic ascending order for the test double, matching the
	// contract real index.Tree.LookupRange guarantees.
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j] < out[i] {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func fmtKey(v interface{}) string {
	switch t := v.(type) {
	case json.Number:
		return string(t)
	case string:
		return t
	default:
		return ""
	}
}

type fakeSchemas struct{ known map[string]map[string]bool }

func (s *fakeSchemas) Exists(schemaID string) bool { return s.known[schemaID] != nil }
func (s *fakeSchemas) ExistsVersion(schemaID, schemaVersion string) bool {
	return s.known[schemaID] != nil && s.known[schemaID][schemaVersion]
}

type fakeStorage struct {
	byOffset map[int64]*types.StoreRecord
}

func (f *fakeStorage) ReadAt(offset int64) (*types.StoreRecord, error) {
	rec, ok := f.byOffset[offset]
	if !ok {
		return nil, aeroerrors.New(aeroerrors.KindDataCorruption, nil)
	}
	return rec, nil
}

func TestAnalyzeBoundsRequiresPositiveLimit(t *testing.T) {
	idx := &fakeIndex{indexed: map[string]bool{"age": true}}
	_, err := AnalyzeBounds(&Query{HasLimit: false}, idx)
	require.True(t, aeroerrors.Is(err, aeroerrors.KindQueryLimitRequired))

	_, err = AnalyzeBounds(&Query{HasLimit: true, Limit: 0}, idx)
	require.True(t, aeroerrors.Is(err, aeroerrors.KindQueryLimitRequired))
}

func TestAnalyzeBoundsRejectsUnindexedPredicateAndSort(t *testing.T) {
	idx := &fakeIndex{indexed: map[string]bool{"age": true}}

	_, err := AnalyzeBounds(&Query{
		HasLimit:   true,
		Limit:      10,
		Predicates: []types.Predicate{{Field: "name", Op: types.OpEq, Value: "Alice"}},
	}, idx)
	require.True(t, aeroerrors.Is(err, aeroerrors.KindQueryUnindexedField))

	_, err = AnalyzeBounds(&Query{
		HasLimit:   true,
		Limit:      10,
		Predicates: []types.Predicate{{Field: "age", Op: types.OpEq, Value: json.Number("1")}},
		Sort:       &types.SortSpec{Field: "name"},
	}, idx)
	require.True(t, aeroerrors.Is(err, aeroerrors.KindQuerySortNotIndexed))
}

func TestAnalyzeBoundsPKEqualityIsMaxScanOneRegardlessOfLimit(t *testing.T) {
	idx := &fakeIndex{}
	bounds, err := AnalyzeBounds(&Query{
		HasLimit:   true,
		Limit:      500,
		Predicates: []types.Predicate{{Field: "_id", Op: types.OpEq, Value: "u1"}},
	}, idx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), bounds.MaxScan)
	require.True(t, bounds.UsesPK)
}

func TestAnalyzeBoundsNonPKMaxScanEqualsLimit(t *testing.T) {
	idx := &fakeIndex{indexed: map[string]bool{"age": true}}
	bounds, err := AnalyzeBounds(&Query{
		HasLimit:   true,
		Limit:      7,
		Predicates: []types.Predicate{{Field: "age", Op: types.OpGte, Value: json.Number("1")}},
	}, idx)
	require.NoError(t, err)
	require.Equal(t, uint64(7), bounds.MaxScan)
	require.False(t, bounds.UsesPK)
}

func TestPlannerRejectsUnknownSchemaAndMissingVersion(t *testing.T) {
	schemas := &fakeSchemas{known: map[string]map[string]bool{"users": {"v1": true}}}
	idx := &fakeIndex{}
	p := NewPlanner(schemas, idx)

	_, err := p.Plan(&Query{SchemaID: "users", SchemaVersion: "", HasLimit: true, Limit: 1})
	require.True(t, aeroerrors.Is(err, aeroerrors.KindSchemaVersionRequired))

	_, err = p.Plan(&Query{SchemaID: "ghosts", SchemaVersion: "v1", HasLimit: true, Limit: 1})
	require.True(t, aeroerrors.Is(err, aeroerrors.KindUnknownSchema))

	_, err = p.Plan(&Query{SchemaID: "users", SchemaVersion: "v9", HasLimit: true, Limit: 1})
	require.True(t, aeroerrors.Is(err, aeroerrors.KindUnknownSchemaVersion))
}

func TestPlannerIndexSelectionPriorityAndTieBreak(t *testing.T) {
	schemas := &fakeSchemas{known: map[string]map[string]bool{"users": {"v1": true}}}
	idx := &fakeIndex{indexed: map[string]bool{"age": true, "name": true}}
	p := NewPlanner(schemas, idx)

	// PK equality wins over everything else, even when other equality
	// predicates are present.
	plan, err := p.Plan(&Query{
		SchemaID: "users", SchemaVersion: "v1", HasLimit: true, Limit: 10,
		Predicates: []types.Predicate{
			{Field: "_id", Op: types.OpEq, Value: "u1"},
			{Field: "age", Op: types.OpEq, Value: json.Number("1")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, types.ScanPK, plan.ScanType)
	require.Equal(t, "_id", plan.ChosenIndex)

	// Equality beats range; ties among equality candidates break
	// lexicographically by field name.
	plan, err = p.Plan(&Query{
		SchemaID: "users", SchemaVersion: "v1", HasLimit: true, Limit: 10,
		Predicates: []types.Predicate{
			{Field: "name", Op: types.OpEq, Value: "Alice"},
			{Field: "age", Op: types.OpEq, Value: json.Number("1")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, types.ScanIndexedEq, plan.ScanType)
	require.Equal(t, "age", plan.ChosenIndex)

	// Range is chosen only when no equality predicate applies.
	plan, err = p.Plan(&Query{
		SchemaID: "users", SchemaVersion: "v1", HasLimit: true, Limit: 10,
		Predicates: []types.Predicate{{Field: "age", Op: types.OpGte, Value: json.Number("1")}},
	})
	require.NoError(t, err)
	require.Equal(t, types.ScanIndexedRange, plan.ScanType)
}

func TestPlannerIsPureAcrossCalls(t *testing.T) {
	schemas := &fakeSchemas{known: map[string]map[string]bool{"users": {"v1": true}}}
	idx := &fakeIndex{indexed: map[string]bool{"age": true}}
	p := NewPlanner(schemas, idx)

	q := &Query{
		SchemaID: "users", SchemaVersion: "v1", HasLimit: true, Limit: 3,
		Predicates: []types.Predicate{{Field: "age", Op: types.OpGte, Value: json.Number("18")}},
		Sort:       &types.SortSpec{Field: "age"},
	}

	first, err := p.Plan(q)
	require.NoError(t, err)
	second, err := p.Plan(q)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

// TestExecutorExcludesTombstonesAndSchemaMismatches uses an equality
// scan: index.LookupEq carries no limit parameter (spec.md §4.5
// "lookup_eq(field, value)"), so every candidate for the bucket reaches
// the executor and the tombstone/schema-mismatch exclusion in step 2 is
// exercised directly rather than being pre-filtered by the index.
func TestExecutorExcludesTombstonesAndSchemaMismatches(t *testing.T) {
	idx := &fakeIndex{
		fields: map[string]map[string][]int64{
			"status": {"active": {0, 10, 20, 30}},
		},
	}
	storage := &fakeStorage{byOffset: map[int64]*types.StoreRecord{
		0:  {DocID: "users:a", SchemaID: "users", SchemaVersion: "v1", Body: []byte(`{"_id":"a","status":"active"}`)},
		10: {DocID: "users:b", SchemaID: "users", SchemaVersion: "v1", Tombstone: true},
		20: {DocID: "users:c", SchemaID: "users", SchemaVersion: "v2", Body: []byte(`{"_id":"c","status":"active"}`)},
		30: {DocID: "users:d", SchemaID: "users", SchemaVersion: "v1", Body: []byte(`{"_id":"d","status":"active"}`)},
	}}

	exec := NewExecutor(idx, storage)
	plan := &types.Plan{
		Collection: "users", SchemaID: "users", SchemaVersion: "v1",
		ChosenIndex: "status", ScanType: types.ScanIndexedEq,
		Predicates: []types.Predicate{{Field: "status", Op: types.OpEq, Value: "active"}},
		Limit:      10,
	}

	result, err := exec.Execute(plan)
	require.NoError(t, err)
	// b is a tombstone, c is schema v2: both silently excluded, leaving
	// only a and d (spec.md §4.7 step 2 "schema mismatch is a silent
	// exclusion, not an error").
	require.Equal(t, 2, result.ReturnedCount)
	require.False(t, result.LimitApplied)
	ids := []string{result.Documents[0].ID, result.Documents[1].ID}
	require.ElementsMatch(t, []string{"a", "d"}, ids)
}

// TestExecutorSortsThenAppliesLimit exercises step 4 (stable typed
// sort) and step 5 (limit + limit_applied) together against an
// equality-bucket candidate set larger than the requested limit.
func TestExecutorSortsThenAppliesLimit(t *testing.T) {
	idx := &fakeIndex{
		fields: map[string]map[string][]int64{
			"status": {"active": {30, 10, 20, 0}},
		},
	}
	storage := &fakeStorage{byOffset: map[int64]*types.StoreRecord{
		0:  {DocID: "users:a", SchemaID: "users", SchemaVersion: "v1", Body: []byte(`{"_id":"a","status":"active","age":27}`)},
		10: {DocID: "users:b", SchemaID: "users", SchemaVersion: "v1", Body: []byte(`{"_id":"b","status":"active","age":23}`)},
		20: {DocID: "users:c", SchemaID: "users", SchemaVersion: "v1", Body: []byte(`{"_id":"c","status":"active","age":25}`)},
		30: {DocID: "users:d", SchemaID: "users", SchemaVersion: "v1", Body: []byte(`{"_id":"d","status":"active","age":24}`)},
	}}

	exec := NewExecutor(idx, storage)
	plan := &types.Plan{
		Collection: "users", SchemaID: "users", SchemaVersion: "v1",
		ChosenIndex: "status", ScanType: types.ScanIndexedEq,
		Predicates: []types.Predicate{{Field: "status", Op: types.OpEq, Value: "active"}},
		Sort:       &types.SortSpec{Field: "age"},
		Limit:      3,
	}

	result, err := exec.Execute(plan)
	require.NoError(t, err)
	require.Equal(t, 3, result.ReturnedCount)
	require.True(t, result.LimitApplied)
	require.Equal(t, []string{"b", "d", "c"}, []string{
		result.Documents[0].ID, result.Documents[1].ID, result.Documents[2].ID,
	})
}

// TestExecutorRangeScanAppliesLimitAfterSort exercises spec.md §8 end-to-
// end scenario 3 verbatim: ten users aged 21..30, range [23,27], sorted
// ascending by the range field itself, limit 3. If the executor (or the
// index manager on its behalf) truncated candidates to the limit before
// sorting, the candidate order here already happens to equal the sorted
// order, so this case alone would pass even with the bug; the assertion
// on limit_applied still pins down that truncation happened after
// filtering, not before.
func TestExecutorRangeScanAppliesLimitAfterSort(t *testing.T) {
	idx := &fakeIndex{
		fields: map[string]map[string][]int64{
			"age": {},
		},
	}
	storage := &fakeStorage{byOffset: map[int64]*types.StoreRecord{}}
	for i, age := 0, 21; age <= 30; i, age = i+1, age+1 {
		offset := int64(i)
		id := string(rune('a' + i))
		idx.fields["age"][json.Number(strconv.Itoa(age))] = append(idx.fields["age"][json.Number(strconv.Itoa(age))], offset)
		storage.byOffset[offset] = &types.StoreRecord{
			DocID: "users:" + id, SchemaID: "users", SchemaVersion: "v1",
			Body: []byte(`{"_id":"` + id + `","age":` + strconv.Itoa(age) + `}`),
		}
	}

	exec := NewExecutor(idx, storage)
	plan := &types.Plan{
		Collection: "users", SchemaID: "users", SchemaVersion: "v1",
		ChosenIndex: "age", ScanType: types.ScanIndexedRange,
		Predicates: []types.Predicate{
			{Field: "age", Op: types.OpGte, Value: json.Number("23")},
			{Field: "age", Op: types.OpLte, Value: json.Number("27")},
		},
		Sort:  &types.SortSpec{Field: "age"},
		Limit: 3,
	}

	result, err := exec.Execute(plan)
	require.NoError(t, err)
	require.True(t, result.LimitApplied)
	require.Equal(t, 3, result.ReturnedCount)
	ages := make([]string, 3)
	for i, d := range result.Documents {
		ages[i] = d.Body["age"].(json.Number).String()
	}
	require.Equal(t, []string{"23", "24", "25"}, ages)
}

// TestExecutorRangeScanDescendingSortIsNotTruncatedByKeyOrder pins the
// correctness failure mode the ascending case above cannot distinguish:
// index-layer truncation in ascending key order would keep ages
// 20,21,22 and merely reverse them, instead of returning the three
// largest ages in descending order.
func TestExecutorRangeScanDescendingSortIsNotTruncatedByKeyOrder(t *testing.T) {
	idx := &fakeIndex{fields: map[string]map[string][]int64{"age": {}}}
	storage := &fakeStorage{byOffset: map[int64]*types.StoreRecord{}}
	for i, age := 0, 20; age <= 30; i, age = i+1, age+1 {
		offset := int64(i)
		id := string(rune('a' + i))
		idx.fields["age"][json.Number(strconv.Itoa(age))] = append(idx.fields["age"][json.Number(strconv.Itoa(age))], offset)
		storage.byOffset[offset] = &types.StoreRecord{
			DocID: "users:" + id, SchemaID: "users", SchemaVersion: "v1",
			Body: []byte(`{"_id":"` + id + `","age":` + strconv.Itoa(age) + `}`),
		}
	}

	exec := NewExecutor(idx, storage)
	plan := &types.Plan{
		Collection: "users", SchemaID: "users", SchemaVersion: "v1",
		ChosenIndex: "age", ScanType: types.ScanIndexedRange,
		Predicates: []types.Predicate{
			{Field: "age", Op: types.OpGte, Value: json.Number("20")},
			{Field: "age", Op: types.OpLte, Value: json.Number("30")},
		},
		Sort:  &types.SortSpec{Field: "age", Desc: true},
		Limit: 3,
	}

	result, err := exec.Execute(plan)
	require.NoError(t, err)
	require.True(t, result.LimitApplied)
	ages := make([]string, 3)
	for i, d := range result.Documents {
		ages[i] = d.Body["age"].(json.Number).String()
	}
	require.Equal(t, []string{"30", "29", "28"}, ages)
}


func TestExecutorDeterministicAcrossRuns(t *testing.T) {
	idx := &fakeIndex{pk: map[string]int64{"users:u1": 0}}
	storage := &fakeStorage{byOffset: map[int64]*types.StoreRecord{
		0: {DocID: "users:u1", SchemaID: "users", SchemaVersion: "v1", Body: []byte(`{"_id":"u1","age":25}`)},
	}}
	exec := NewExecutor(idx, storage)
	plan := &types.Plan{
		Collection: "users", SchemaID: "users", SchemaVersion: "v1",
		ChosenIndex: "_id", ScanType: types.ScanPK,
		Predicates: []types.Predicate{{Field: "_id", Op: types.OpEq, Value: "u1"}},
		Limit:      1,
	}

	first, err := exec.Execute(plan)
	require.NoError(t, err)
	second, err := exec.Execute(plan)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestFiltersNoCoercionBetweenIntAndString(t *testing.T) {
	doc := map[string]interface{}{"age": json.Number("25")}
	require.False(t, matchesOne(doc, types.Predicate{Field: "age", Op: types.OpEq, Value: "25"}))
	require.True(t, matchesOne(doc, types.Predicate{Field: "age", Op: types.OpEq, Value: json.Number("25")}))
}

func TestFiltersMissingOrNullFieldNeverMatches(t *testing.T) {
	doc := map[string]interface{}{"age": nil}
	require.False(t, matchesOne(doc, types.Predicate{Field: "age", Op: types.OpEq, Value: json.Number("25")}))
	require.False(t, matchesOne(map[string]interface{}{}, types.Predicate{Field: "age", Op: types.OpGte, Value: json.Number("0")}))
}

func TestSortTypedOrderingNullBoolNumberString(t *testing.T) {
	docs := []ResultDocument{
		{ID: "str", Body: map[string]interface{}{"v": "z"}},
		{ID: "num", Body: map[string]interface{}{"v": json.Number("5")}},
		{ID: "bool", Body: map[string]interface{}{"v": true}},
		{ID: "null", Body: map[string]interface{}{}},
	}
	sortResults(docs, &types.SortSpec{Field: "v"})
	require.Equal(t, []string{"null", "bool", "num", "str"}, []string{docs[0].ID, docs[1].ID, docs[2].ID, docs[3].ID})
}

func TestSortStableAmongEquals(t *testing.T) {
	docs := []ResultDocument{
		{ID: "first", Body: map[string]interface{}{"v": json.Number("1")}},
		{ID: "second", Body: map[string]interface{}{"v": json.Number("1")}},
		{ID: "third", Body: map[string]interface{}{"v": json.Number("1")}},
	}
	sortResults(docs, &types.SortSpec{Field: "v"})
	require.Equal(t, []string{"first", "second", "third"}, []string{docs[0].ID, docs[1].ID, docs[2].ID})
}
