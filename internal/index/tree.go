package index

import "sort"

// Tree is one field's ordered offset index: Key -> sorted ascending
// list of store offsets (spec.md §4.5). It keeps its keys in sorted
// order alongside a map for O(1) exact lookup, mirroring a BTreeMap's
// deterministic iteration without needing a balanced tree in Go.
type Tree struct {
	byKey map[Key][]int64
	keys  []Key // kept sorted ascending by Key.Less
}

func NewTree() *Tree {
	return &Tree{byKey: make(map[Key][]int64)}
}

func (t *Tree) keyIndex(k Key) (int, bool) {
	i := sort.Search(len(t.keys), func(i int) bool { return !t.keys[i].Less(k) })
	if i < len(t.keys) && t.keys[i].Equal(k) {
		return i, true
	}
	return i, false
}

// Insert adds offset under key, keeping offsets within the key sorted
// ascending and de-duplicated.
func (t *Tree) Insert(k Key, offset int64) {
	idx, found := t.keyIndex(k)
	if !found {
		t.keys = append(t.keys, Key{})
		copy(t.keys[idx+1:], t.keys[idx:])
		t.keys[idx] = k
	}
	offsets := t.byKey[k]
	pos := sort.Search(len(offsets), func(i int) bool { return offsets[i] >= offset })
	if pos < len(offsets) && offsets[pos] == offset {
		return
	}
	offsets = append(offsets, 0)
	copy(offsets[pos+1:], offsets[pos:])
	offsets[pos] = offset
	t.byKey[k] = offsets
}

// Remove deletes offset from key's offset list; if the list becomes
// empty, the key itself is removed so range scans skip it.
func (t *Tree) Remove(k Key, offset int64) {
	offsets, ok := t.byKey[k]
	if !ok {
		return
	}
	pos := sort.Search(len(offsets), func(i int) bool { return offsets[i] >= offset })
	if pos >= len(offsets) || offsets[pos] != offset {
		return
	}
	offsets = append(offsets[:pos], offsets[pos+1:]...)
	if len(offsets) == 0 {
		delete(t.byKey, k)
		idx, found := t.keyIndex(k)
		if found {
			t.keys = append(t.keys[:idx], t.keys[idx+1:]...)
		}
		return
	}
	t.byKey[k] = offsets
}

// LookupEq returns offsets for an exact key match, ascending.
func (t *Tree) LookupEq(k Key) []int64 {
	return append([]int64(nil), t.byKey[k]...)
}

// LookupRange returns offsets for every key in [min, max] (inclusive on
// whichever bound is provided), in ascending key order and then
// ascending offset order within each key.
func (t *Tree) LookupRange(min, max *Key) []int64 {
	start := 0
	if min != nil {
		start = sort.Search(len(t.keys), func(i int) bool { return !t.keys[i].Less(*min) })
	}
	var out []int64
	for i := start; i < len(t.keys); i++ {
		if max != nil && max.Less(t.keys[i]) {
			break
		}
		out = append(out, t.byKey[t.keys[i]]...)
	}
	return out
}

func (t *Tree) Clear() {
	t.byKey = make(map[Key][]int64)
	t.keys = nil
}
