package enumstore

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// BatchUpdater accumulates the net effect of many add, increment and
// decrement calls on one logical update (typically one document) and defers
// unused-entry reclamation to a single Commit.
//
// The deferral is the point: a value that is decremented and re-incremented
// within the same batch — a field unchanged across a document re-index — must
// not be evicted and reallocated in between. Commit reclaims only entries
// still at zero.
//
// A BatchUpdater is bound to one store and is not safe for concurrent use;
// one instance corresponds to one in-flight update.
type BatchUpdater[T any] struct {
	store          *EnumStore[T]
	possiblyUnused *roaring.Bitmap
}

// NewBatchUpdater creates a BatchUpdater bound to this store.
func (s *EnumStore[T]) NewBatchUpdater() *BatchUpdater[T] {
	return &BatchUpdater[T]{
		store:          s,
		possiblyUnused: roaring.New(),
	}
}

// Add interns a value and records the resulting index as a reclaim
// candidate. A newly created entry starts at reference count 1; if its
// creating reference is dropped again before Commit, the entry vanishes on
// commit instead of lingering.
func (u *BatchUpdater[T]) Add(v T) (Index, error) {
	idx, err := u.store.AddEnum(v)
	if err != nil {
		return 0, err
	}
	u.possiblyUnused.Add(uint32(idx))
	return idx, nil
}

// IncRefCount records one more holder of the entry at idx.
func (u *BatchUpdater[T]) IncRefCount(idx Index) {
	u.store.IncRefCount(idx)
}

// DecRefCount drops one holder of the entry at idx and, if the count reached
// zero, records the index as a reclaim candidate.
func (u *BatchUpdater[T]) DecRefCount(idx Index) {
	u.store.DecRefCount(idx)
	if u.store.GetRefCount(idx) == 0 {
		u.possiblyUnused.Add(uint32(idx))
	}
}

// Commit reclaims exactly the accumulated candidate set. Candidates whose
// count climbed back above zero are left alone. The updater is empty
// afterwards and may be reused for the next logical update.
func (u *BatchUpdater[T]) Commit() {
	u.store.FreeUnusedEnums(u.possiblyUnused)
	u.possiblyUnused.Clear()
}
