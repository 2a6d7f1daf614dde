package index

import (
	"sort"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/aerodb/aerodb/internal/aeroerrors"
	"github.com/aerodb/aerodb/internal/schema"
	"github.com/aerodb/aerodb/internal/store"
)

// DocumentInfo is the slice of a store record the index manager needs to
// maintain its maps (spec.md §4.5).
type DocumentInfo struct {
	CompositeID   string
	SchemaID      string
	SchemaVersion string
	Body          map[string]interface{}
	Offset        int64
}

// Manager owns the primary-key map and the configured secondary field
// maps (spec.md §4.5). All state here is derived (I4): RebuildFromStorage
// is the authoritative construction path and ApplyWrite/ApplyDelete are
// optimizations that must agree with it.
type Manager struct {
	mu            sync.RWMutex
	pk            *Tree
	fields        map[string]*Tree
	indexedFields []string // sorted, for deterministic rebuild/iteration
	docOffsets    map[string]int64
}

// NewManager constructs a manager configured to index the given field
// names in addition to the always-indexed primary key.
func NewManager(indexedFields []string) *Manager {
	sorted := append([]string(nil), indexedFields...)
	sort.Strings(sorted)
	fields := make(map[string]*Tree, len(sorted))
	for _, f := range sorted {
		fields[f] = NewTree()
	}
	return &Manager{
		pk:            NewTree(),
		fields:        fields,
		indexedFields: sorted,
		docOffsets:    make(map[string]int64),
	}
}

// IndexedFields reports the configured secondary field names, sorted.
func (m *Manager) IndexedFields() []string {
	return append([]string(nil), m.indexedFields...)
}

// IsIndexed reports whether field has a secondary index, with "_id"
// always considered indexed (spec.md §4.6 "the primary key _id is
// always indexed").
func (m *Manager) IsIndexed(field string) bool {
	if field == "_id" {
		return true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.fields[field]
	return ok
}

func (m *Manager) indexDocumentLocked(doc DocumentInfo) {
	m.pk.Insert(StringKey(doc.CompositeID), doc.Offset)
	m.docOffsets[doc.CompositeID] = doc.Offset
	for _, field := range m.indexedFields {
		value, ok := doc.Body[field]
		if !ok {
			continue
		}
		key, ok := FromJSON(value)
		if !ok {
			continue
		}
		m.fields[field].Insert(key, doc.Offset)
	}
}

func (m *Manager) unindexDocumentLocked(compositeID string, offset int64, body map[string]interface{}) {
	m.pk.Remove(StringKey(compositeID), offset)
	delete(m.docOffsets, compositeID)
	if body == nil {
		return
	}
	for _, field := range m.indexedFields {
		value, ok := body[field]
		if !ok {
			continue
		}
		key, ok := FromJSON(value)
		if !ok {
			continue
		}
		m.fields[field].Remove(key, offset)
	}
}

// ApplyWrite updates indexes after a store write (spec.md §4.5
// "apply_write"). oldBody must be the previously indexed body (nil for
// a fresh insert) so a stale secondary-index entry from an update is
// correctly removed rather than leaked — the discipline invariant I4
// requires (apply-on-write must match what a rebuild would produce).
func (m *Manager) ApplyWrite(doc DocumentInfo, oldBody map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if oldOffset, existed := m.docOffsets[doc.CompositeID]; existed {
		m.unindexDocumentLocked(doc.CompositeID, oldOffset, oldBody)
	}
	m.indexDocumentLocked(doc)
}

// ApplyDelete removes a document from every index (spec.md §4.5
// "apply_delete"). oldBody is the body of the record being deleted, used
// to unwind its secondary-index entries.
func (m *Manager) ApplyDelete(compositeID string, oldBody map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	offset, ok := m.docOffsets[compositeID]
	if !ok {
		return
	}
	m.unindexDocumentLocked(compositeID, offset, oldBody)
}

// LookupPK returns offsets for an exact composite-id match, ascending.
func (m *Manager) LookupPK(compositeID string) []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pk.LookupEq(StringKey(compositeID))
}

// LookupEq returns offsets for an exact field match, special-casing
// "_id" to the primary-key map (spec.md §4.5 "lookup_eq").
func (m *Manager) LookupEq(field string, value interface{}) []int64 {
	if field == "_id" {
		if s, ok := value.(string); ok {
			return m.LookupPK(s)
		}
		return nil
	}
	key, ok := FromJSON(value)
	if !ok {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	tree, ok := m.fields[field]
	if !ok {
		return nil
	}
	return tree.LookupEq(key)
}

// LookupRange returns offsets for field within [min, max] (either bound
// may be nil), ascending, truncated to limit when limit > 0 (spec.md
// §4.5 "lookup_range").
func (m *Manager) LookupRange(field string, min, max interface{}, limit int) []int64 {
	m.mu.RLock()
	tree, ok := m.fields[field]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	var minKey, maxKey *Key
	if min != nil {
		if k, ok := FromJSON(min); ok {
			minKey = &k
		}
	}
	if max != nil {
		if k, ok := FromJSON(max); ok {
			maxKey = &k
		}
	}

	offsets := tree.LookupRange(minKey, maxKey)
	if limit > 0 && len(offsets) > limit {
		offsets = offsets[:limit]
	}
	return offsets
}

// RebuildFromStorage clears every map and reconstructs it from a full,
// front-to-back scan of the store (spec.md §4.5 "rebuild_from_storage").
// The primary-key scan runs inline; each secondary field's scan runs
// concurrently over its own independent read handle via a bounded worker
// pool, since store.Writer.Scan() hands out independent file handles
// that are safe to read concurrently (spec.md §5 "readers ... open
// independent read handles against the same on-disk files").
func (m *Manager) RebuildFromStorage(opener func() (*store.Scanner, error)) error {
	m.mu.Lock()
	m.pk.Clear()
	for _, tree := range m.fields {
		tree.Clear()
	}
	m.docOffsets = make(map[string]int64)
	fields := append([]string(nil), m.indexedFields...)
	m.mu.Unlock()

	pkScanner, err := opener()
	if err != nil {
		return aeroerrors.New(aeroerrors.KindIndexBuildFailed, err)
	}
	defer pkScanner.Close()

	pkTree := NewTree()
	docOffsets := make(map[string]int64)
	for {
		rec, err := pkScanner.Next()
		if err != nil {
			return aeroerrors.New(aeroerrors.KindIndexBuildFailed, err)
		}
		if rec == nil {
			break
		}
		// Latest wins (I3): a later record for the same id, tombstone or
		// not, supersedes every earlier one.
		if old, ok := docOffsets[rec.Record.DocID]; ok {
			pkTree.Remove(StringKey(rec.Record.DocID), old)
			delete(docOffsets, rec.Record.DocID)
		}
		if rec.Record.Tombstone {
			continue
		}
		pkTree.Insert(StringKey(rec.Record.DocID), rec.Offset)
		docOffsets[rec.Record.DocID] = rec.Offset
	}

	fieldTrees := make(map[string]*Tree, len(fields))
	var mu sync.Mutex
	var wg sync.WaitGroup
	var firstErr error

	pool, poolErr := ants.NewPool(len(fields) + 1)
	if poolErr != nil {
		return aeroerrors.New(aeroerrors.KindIndexBuildFailed, poolErr)
	}
	defer pool.Release()

	for _, field := range fields {
		field := field
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			tree, err := rebuildField(opener, field, docOffsets)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			fieldTrees[field] = tree
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			if firstErr == nil {
				firstErr = submitErr
			}
			mu.Unlock()
		}
	}
	wg.Wait()
	if firstErr != nil {
		return aeroerrors.New(aeroerrors.KindIndexBuildFailed, firstErr)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pk = pkTree
	m.docOffsets = docOffsets
	for field, tree := range fieldTrees {
		m.fields[field] = tree
	}
	return nil
}

// rebuildField indexes field for the live records only: live maps each
// composite id to the offset of its latest non-tombstone record.
func rebuildField(opener func() (*store.Scanner, error), field string, live map[string]int64) (*Tree, error) {
	scanner, err := opener()
	if err != nil {
		return nil, err
	}
	defer scanner.Close()

	tree := NewTree()
	for {
		rec, err := scanner.Next()
		if err != nil {
			return nil, err
		}
		if rec == nil {
			break
		}
		if rec.Record.Tombstone {
			continue
		}
		if latest, ok := live[rec.Record.DocID]; !ok || latest != rec.Offset {
			continue
		}
		body, err := schema.DecodeDocument(rec.Record.Body)
		if err != nil {
			// A live record that fails to parse as a document is a
			// structural inconsistency the verification pass should
			// have already caught; treat it as unindexable rather than
			// aborting the whole rebuild.
			continue
		}
		value, ok := body[field]
		if !ok {
			continue
		}
		key, ok := FromJSON(value)
		if !ok {
			continue
		}
		tree.Insert(key, rec.Offset)
	}
	return tree, nil
}
