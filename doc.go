// Package enumstore provides a reference-counted value-interning store for
// attribute columns in search and database engines.
//
// An enum store deduplicates repeated field values (numeric or string) into a
// compact table and hands callers small stable Index handles instead of raw
// values. Callers use indices for comparisons, grouping and serialization
// without re-reading or re-comparing full values.
//
// # Quick Start
//
//	store, _ := enumstore.New(enumstore.String())
//	idx, _ := store.AddEnum("red")        // interns the value, refcount 1
//	same, _ := store.AddEnum("red")       // same index, no new entry
//	store.IncRefCount(idx)                // a second holder
//
//	v := store.GetValue(idx)              // "red"
//	h, ok := store.FindEnum("red")        // handle with refcount snapshot
//
// # Batched Updates
//
// Document updates that remove and re-add the same value must not bounce the
// entry through reclamation. A BatchUpdater defers reclamation to a single
// commit:
//
//	u := store.NewBatchUpdater()
//	u.DecRefCount(oldIdx)
//	newIdx, _ := u.Add("blue")
//	u.Commit()                            // frees only entries still at zero
//
// # Compaction
//
// Freed entries leave dead bytes behind in the store's buffers. When
// NeedsCompaction reports true, PerformCompaction relocates every live entry
// into fresh buffers and returns an old-to-new index remap. The caller MUST
// apply the remap to every held index (posting lists, attribute columns)
// before dereferencing them again; a stale index panics on use until its
// buffer slot is recycled by a later pass.
//
// # Concurrency Model
//
// A store assumes a single logical writer. Reads (GetValue, FindIndex,
// FindFoldedEnums, FindIndexes) may run concurrently against a stable
// snapshot that is not being mutated or compacted at that moment; the
// surrounding engine coordinates the reader/writer handoff.
package enumstore
