// Package postings tracks, per interned value, the set of documents
// referencing it, using Roaring Bitmaps for compressed posting lists.
//
// A Map is the enum store's posting-list collaborator: wire its OnReclaim
// method into the store with enumstore.WithReclaimHook, and call ApplyRemap
// after every compaction so posting keys follow the relocated entries.
//
// Like the store itself, a Map assumes a single logical writer; reads may
// run concurrently against a stable snapshot.
package postings

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/enumstore"
)

// Map holds one posting list per interned value.
type Map struct {
	lists map[enumstore.Index]*roaring.Bitmap
}

// NewMap creates an empty posting map.
func NewMap() *Map {
	return &Map{
		lists: make(map[enumstore.Index]*roaring.Bitmap),
	}
}

// Add records that a document references the value at idx.
func (m *Map) Add(idx enumstore.Index, docID uint32) {
	list, ok := m.lists[idx]
	if !ok {
		list = roaring.New()
		m.lists[idx] = list
	}
	list.Add(docID)
}

// Remove drops a document from the value's posting list. Empty lists are
// deleted so reclamation of the value needs no extra bookkeeping.
func (m *Map) Remove(idx enumstore.Index, docID uint32) {
	list, ok := m.lists[idx]
	if !ok {
		return
	}
	list.Remove(docID)
	if list.IsEmpty() {
		delete(m.lists, idx)
	}
}

// DocIDs returns the posting list for idx, or nil if no document references
// the value. The returned bitmap is live; callers must not mutate it.
func (m *Map) DocIDs(idx enumstore.Index) *roaring.Bitmap {
	return m.lists[idx]
}

// DocCount returns the number of documents referencing the value at idx.
func (m *Map) DocCount(idx enumstore.Index) uint64 {
	list, ok := m.lists[idx]
	if !ok {
		return 0
	}
	return list.GetCardinality()
}

// Len returns the number of values with a non-empty posting list.
func (m *Map) Len() int {
	return len(m.lists)
}

// OnReclaim is the store's reclaim hook. A value being reclaimed must not be
// referenced by any document anymore; a non-empty posting list here means
// refcounts and postings went out of sync, which is a fatal bookkeeping bug.
func (m *Map) OnReclaim(idx enumstore.Index) {
	if list, ok := m.lists[idx]; ok {
		if !list.IsEmpty() {
			panic(fmt.Sprintf("postings: reclaimed value %#08x still referenced by %d documents", uint32(idx), list.GetCardinality()))
		}
		delete(m.lists, idx)
	}
}

// ApplyRemap rewrites every posting key after a compaction. A key absent
// from the remap belongs to an entry the compaction reclaimed; its posting
// list must already be empty.
func (m *Map) ApplyRemap(remap enumstore.IndexRemap) error {
	next := make(map[enumstore.Index]*roaring.Bitmap, len(m.lists))
	for idx, list := range m.lists {
		nidx, ok := remap.Remap(idx)
		if !ok {
			if list.IsEmpty() {
				continue
			}
			return fmt.Errorf("postings: index %#08x reclaimed by compaction but still referenced by %d documents", uint32(idx), list.GetCardinality())
		}
		next[nidx] = list
	}
	m.lists = next
	return nil
}
