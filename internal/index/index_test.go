package index

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFloatKeyTotalOrderAcrossSignAndZero(t *testing.T) {
	negInf := FloatKey(math.Inf(-1))
	negOne := FloatKey(-1)
	negZero := FloatKey(math.Copysign(0, -1))
	posZero := FloatKey(0)
	posOne := FloatKey(1)
	posInf := FloatKey(math.Inf(1))

	require.True(t, negInf.Less(negOne))
	require.True(t, negOne.Less(negZero))
	require.True(t, negZero.Less(posZero))
	require.True(t, posZero.Less(posOne))
	require.True(t, posOne.Less(posInf))
}

func TestFloatKeyOrdersNaNDeterministically(t *testing.T) {
	nan1 := FloatKey(math.NaN())
	nan2 := FloatKey(math.NaN())
	require.True(t, nan1.Equal(nan2))
}

func TestVariantOrderingBoolIntFloatString(t *testing.T) {
	require.True(t, BoolKey(true).Less(IntKey(0)))
	require.True(t, IntKey(1000).Less(FloatKey(0.001)))
	require.True(t, FloatKey(1e18).Less(StringKey("")))
}

func TestTreeInsertLookupRemove(t *testing.T) {
	tr := NewTree()
	tr.Insert(IntKey(5), 30)
	tr.Insert(IntKey(5), 10)
	tr.Insert(IntKey(5), 20)
	require.Equal(t, []int64{10, 20, 30}, tr.LookupEq(IntKey(5)))

	tr.Remove(IntKey(5), 20)
	require.Equal(t, []int64{10, 30}, tr.LookupEq(IntKey(5)))

	tr.Remove(IntKey(5), 10)
	tr.Remove(IntKey(5), 30)
	require.Empty(t, tr.LookupEq(IntKey(5)))
}

func TestTreeLookupRangeMatchesPermutationOfLookupEq(t *testing.T) {
	tr := NewTree()
	for i := int64(0); i < 10; i++ {
		tr.Insert(IntKey(i), 100+i)
	}
	k := IntKey(5)
	eq := tr.LookupEq(k)
	rng := tr.LookupRange(&k, &k)
	require.Equal(t, eq, rng)
}

func TestTreeLookupRangeInclusiveBounds(t *testing.T) {
	tr := NewTree()
	for i := int64(0); i < 10; i++ {
		tr.Insert(IntKey(i), i)
	}
	min := IntKey(3)
	max := IntKey(6)
	require.Equal(t, []int64{3, 4, 5, 6}, tr.LookupRange(&min, &max))
}

func TestManagerApplyWriteThenUpdateRemovesStaleSecondaryEntry(t *testing.T) {
	m := NewManager([]string{"age"})

	doc1 := DocumentInfo{CompositeID: "users:u1", Offset: 0, Body: decode(t, `{"_id":"u1","age":25}`)}
	m.ApplyWrite(doc1, nil)
	require.Equal(t, []int64{0}, m.LookupEq("age", json.Number("25")))

	doc2 := DocumentInfo{CompositeID: "users:u1", Offset: 40, Body: decode(t, `{"_id":"u1","age":30}`)}
	m.ApplyWrite(doc2, doc1.Body)

	require.Empty(t, m.LookupEq("age", json.Number("25")))
	require.Equal(t, []int64{40}, m.LookupEq("age", json.Number("30")))
	require.Equal(t, []int64{40}, m.LookupPK("users:u1"))
}

func TestManagerApplyDeleteRemovesAllEntries(t *testing.T) {
	m := NewManager([]string{"age"})
	doc := DocumentInfo{CompositeID: "users:u1", Offset: 0, Body: decode(t, `{"_id":"u1","age":25}`)}
	m.ApplyWrite(doc, nil)
	m.ApplyDelete("users:u1", doc.Body)

	require.Empty(t, m.LookupPK("users:u1"))
	require.Empty(t, m.LookupEq("age", json.Number("25")))
}

func TestManagerLookupEqOnIDDelegatesToPK(t *testing.T) {
	m := NewManager(nil)
	doc := DocumentInfo{CompositeID: "users:u1", Offset: 7, Body: decode(t, `{"_id":"u1"}`)}
	m.ApplyWrite(doc, nil)
	require.Equal(t, []int64{7}, m.LookupEq("_id", "users:u1"))
}

func TestManagerIsIndexedAlwaysTrueForID(t *testing.T) {
	m := NewManager(nil)
	require.True(t, m.IsIndexed("_id"))
	require.False(t, m.IsIndexed("name"))
}

func decode(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v map[string]interface{}
	require.NoError(t, dec.Decode(&v))
	return v
}
