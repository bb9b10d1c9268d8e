package enumstore

import (
	"encoding/binary"

	"github.com/google/btree"

	"github.com/hupe1980/enumstore/internal/bufstore"
)

// NeedsCompaction reports whether freed-but-unreclaimed space has grown past
// the configured threshold and would cover the requested headroom. The
// surrounding engine polls this before write bursts and decides when it is
// safe to pause writers for a compaction.
func (s *EnumStore[T]) NeedsCompaction(bytesNeeded uint64) bool {
	dead := s.buf.BytesDead()
	return dead >= s.opts.compactionThreshold && dead >= bytesNeeded
}

// PerformCompaction relocates every live entry into fresh buffers sized for
// the live data plus bytesNeeded of headroom, releases the old buffers and
// returns the complete old-to-new index map. Values and reference counts are
// preserved; entries already at zero are dropped instead of moved and do not
// appear in the map.
//
// The caller MUST apply the returned remap to every externally held index
// before those indices are dereferenced again. The store offers no automatic
// indirection: a stale index panics on use until the released buffer slot is
// recycled by a later pass.
//
// On allocation failure the dictionary and all existing indices remain
// valid; only unused fresh buffers are left behind.
func (s *EnumStore[T]) PerformCompaction(bytesNeeded uint64) (IndexRemap, error) {
	oldBuffers := s.buf.LiveBufferIDs()
	oldDead := s.buf.BytesDead()

	// First pass: measure the live set and collect what moves. Values are
	// decoded up front; the old buffers stay readable until released.
	type liveEntry struct {
		old      Index
		value    T
		refCount uint32
		size     uint32
	}
	live := make([]liveEntry, 0, s.dict.Len())
	var dropped []Index
	var liveTotal uint64
	s.dict.Ascend(func(it dictItem[T]) bool {
		refCount := s.GetRefCount(it.idx)
		if refCount == 0 {
			dropped = append(dropped, it.idx)
			return true
		}
		v := s.GetValue(it.idx)
		size := alignEntrySize(refCountSize + s.et.Size(v))
		live = append(live, liveEntry{old: it.idx, value: v, refCount: refCount, size: size})
		liveTotal += uint64(size)
		return true
	})

	s.buf.Seal()
	capacity := liveTotal + bytesNeeded + bufstore.EntryAlignment
	if capacity > bufstore.MaxBufferSize {
		// Oversized live sets spill into additional buffers as needed.
		capacity = bufstore.MaxBufferSize
	}
	if _, err := s.buf.AddBuffer(uint32(capacity)); err != nil {
		return nil, err
	}

	remap := make(IndexRemap, len(live))
	dict := btree.NewG(s.opts.dictionaryDegree, s.itemLess)
	for i := range live {
		e := &live[i]
		bufferID, offset, span, err := s.buf.Alloc(e.size)
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint32(span[:refCountSize], e.refCount)
		s.et.EncodeValue(span[refCountSize:], e.value)
		nidx := newIndex(bufferID, offset)
		remap[e.old] = nidx
		dict.ReplaceOrInsert(dictItem[T]{idx: nidx})
	}

	if s.opts.reclaimHook != nil {
		for _, idx := range dropped {
			s.opts.reclaimHook(idx)
		}
	}

	s.dict = dict
	for _, id := range oldBuffers {
		s.buf.Release(id)
	}
	s.generation++
	s.compactions++
	s.opts.logger.LogCompaction(len(live), len(dropped), oldDead)

	return remap, nil
}
