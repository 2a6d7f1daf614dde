package query

import (
	"encoding/json"
	"sort"

	"github.com/aerodb/aerodb/internal/types"
)

// sortResults orders documents by the sort spec using a stable sort
// and typed ordering: null < bool < number < string, ties broken by
// original (store-scan) order (spec.md §4.7 step 4).
func sortResults(docs []ResultDocument, spec *types.SortSpec) {
	sort.SliceStable(docs, func(i, j int) bool {
		less := compareTyped(docs[i].Body[spec.Field], docs[j].Body[spec.Field])
		if spec.Desc {
			return less > 0
		}
		return less < 0
	})
}

func typeRank(v interface{}) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case json.Number:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

// compareTyped returns <0, 0, >0 for a<b, a==b, a>b under the typed
// ordering; values outside the sortable kinds (arrays, objects) never
// reach here because such fields cannot be indexed (spec.md §4.5).
func compareTyped(a, b interface{}) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return ra - rb
	}
	switch av := a.(type) {
	case nil:
		return 0
	case bool:
		bv := b.(bool)
		if av == bv {
			return 0
		}
		if !av {
			return -1
		}
		return 1
	case json.Number:
		bv := b.(json.Number)
		af, _ := av.Float64()
		bf, _ := bv.Float64()
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	case string:
		bv := b.(string)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	default:
		return 0
	}
}
