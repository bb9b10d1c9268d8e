package enumstore

import (
	"fmt"

	"github.com/hupe1980/enumstore/internal/bufstore"
)

const (
	indexOffsetBits = 24
	indexOffsetMask = 1<<indexOffsetBits - 1
)

// Index is an opaque handle identifying an entry's location inside the
// store's buffers. It packs a buffer id and an aligned offset into a single
// word, so it is cheap to copy, compare and keep in posting structures.
//
// Indices are the only externally visible identity for a value: equal values
// always map to exactly one live Index. They stay valid across arbitrary
// operations except compaction, which invalidates all prior indices and
// requires the caller to apply the returned IndexRemap. The zero Index is
// never a valid entry.
//
// A valid Index can only be obtained from store or dictionary operations;
// every dereference goes back through the store.
type Index uint32

func newIndex(bufferID, byteOffset uint32) Index {
	if byteOffset%bufstore.EntryAlignment != 0 {
		panic(fmt.Sprintf("enumstore: unaligned entry offset %d", byteOffset))
	}
	slot := byteOffset / bufstore.EntryAlignment
	if slot > indexOffsetMask || bufferID > (1<<(32-indexOffsetBits))-1 {
		panic(fmt.Sprintf("enumstore: index out of range: buffer %d offset %d", bufferID, byteOffset))
	}
	return Index(bufferID<<indexOffsetBits | slot)
}

// Valid reports whether the index refers to an entry.
func (i Index) Valid() bool { return i != 0 }

func (i Index) bufferID() uint32 { return uint32(i) >> indexOffsetBits }

func (i Index) byteOffset() uint32 {
	return (uint32(i) & indexOffsetMask) * bufstore.EntryAlignment
}

// Handle pairs an Index with a snapshot of its reference count, for callers
// that inspect entries without dereferencing them again.
type Handle struct {
	Index    Index
	RefCount uint32
}

// IndexRemap maps pre-compaction indices to their relocated replacements.
// Every live entry appears in the map; an old index that is absent was a
// refcount-zero entry reclaimed by the compaction pass.
type IndexRemap map[Index]Index

// Remap translates a single index.
func (m IndexRemap) Remap(idx Index) (Index, bool) {
	nidx, ok := m[idx]
	return nidx, ok
}

// Apply rewrites every index in idxs in place. An index with no mapping means
// the caller held on to an entry the store considered dead, which is a
// double-free style bug on the caller's side.
func (m IndexRemap) Apply(idxs []Index) error {
	for i, idx := range idxs {
		nidx, ok := m[idx]
		if !ok {
			return fmt.Errorf("enumstore: index %#08x has no remapping; entry was reclaimed", uint32(idx))
		}
		idxs[i] = nidx
	}
	return nil
}
