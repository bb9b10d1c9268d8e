package enumstore

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/btree"

	"github.com/hupe1980/enumstore/internal/bufstore"
)

// EnumStore interns values of a single kind. Each unique value lives in
// exactly one reference-counted entry, addressed by an Index and ordered by
// the kind's comparator in the dictionary.
//
// Entries are never mutated in place after creation except for their
// reference count. An entry whose count reaches zero is "unused" but keeps
// its buffer space until reclaimed by FreeUnusedEnums, FreeAllUnused or a
// compaction pass.
type EnumStore[T any] struct {
	et   EntryType[T]
	buf  *bufstore.Store
	dict *btree.BTreeG[dictItem[T]]
	opts options

	generation  uint32
	compactions uint64
}

// New creates a store for the given entry type.
func New[T any](et EntryType[T], opts ...Option) (*EnumStore[T], error) {
	if et == nil {
		return nil, errors.New("enumstore: nil entry type")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	s := &EnumStore[T]{
		et:         et,
		buf:        bufstore.New(o.initialBufferSize),
		opts:       o,
		generation: 1,
	}
	s.dict = btree.NewG(o.dictionaryDegree, s.itemLess)
	return s, nil
}

// AddEnum interns a value: if it is already present its existing index is
// returned unchanged, otherwise a new entry with reference count 1 is
// allocated, encoded and inserted into the dictionary.
//
// AddEnum never increments the count of an existing entry; that policy
// belongs to the caller (see BatchUpdater). Values the kind cannot encode
// intact, like strings with an embedded NUL byte, fail with ErrInvalidValue.
func (s *EnumStore[T]) AddEnum(v T) (Index, error) {
	if err := s.et.ValidateValue(v); err != nil {
		return 0, err
	}
	if idx, ok := s.FindIndex(v); ok {
		return idx, nil
	}

	size := alignEntrySize(refCountSize + s.et.Size(v))
	bufferID, offset, span, err := s.buf.Alloc(size)
	if err != nil {
		return 0, err
	}
	binary.LittleEndian.PutUint32(span[:refCountSize], 1)
	s.et.EncodeValue(span[refCountSize:], v)

	idx := newIndex(bufferID, offset)
	s.dict.ReplaceOrInsert(dictItem[T]{idx: idx})
	return idx, nil
}

// GetValue decodes the value stored at idx. Dereferencing an invalid index,
// or one left stale by a compaction, panics.
func (s *EnumStore[T]) GetValue(idx Index) T {
	return s.et.DecodeValue(s.entryView(idx)[refCountSize:])
}

// GetRefCount returns the current reference count of the entry at idx.
func (s *EnumStore[T]) GetRefCount(idx Index) uint32 {
	return binary.LittleEndian.Uint32(s.refCountSpan(idx))
}

// IncRefCount records one more live holder of the entry at idx.
func (s *EnumStore[T]) IncRefCount(idx Index) {
	span := s.refCountSpan(idx)
	binary.LittleEndian.PutUint32(span, binary.LittleEndian.Uint32(span)+1)
}

// DecRefCount records that a holder dropped its reference. Decrementing an
// entry already at zero signals a double free of a logical reference and
// panics.
func (s *EnumStore[T]) DecRefCount(idx Index) {
	span := s.refCountSpan(idx)
	count := binary.LittleEndian.Uint32(span)
	if count == 0 {
		panic(fmt.Sprintf("enumstore: refcount underflow for index %#08x: double free of a reference", uint32(idx)))
	}
	binary.LittleEndian.PutUint32(span, count-1)
}

// FreeUnusedEnums reclaims every candidate whose reference count is zero:
// the entry leaves the dictionary and its buffer span is returned to the
// allocator's dead-space accounting. Candidates that were re-incremented
// since being marked are silently skipped; that skip is what makes batched
// updates safe.
func (s *EnumStore[T]) FreeUnusedEnums(candidates *roaring.Bitmap) {
	if candidates == nil {
		return
	}
	freed := 0
	it := candidates.Iterator()
	for it.HasNext() {
		idx := Index(it.Next())
		if !idx.Valid() {
			continue
		}
		if s.GetRefCount(idx) == 0 {
			s.freeEnum(idx)
			freed++
		}
	}
	s.opts.logger.LogReclaim(freed)
}

// FreeAllUnused sweeps the full dictionary and reclaims every entry with a
// zero reference count. Used by maintenance passes that have no candidate
// set.
func (s *EnumStore[T]) FreeAllUnused() {
	var unused []Index
	s.dict.Ascend(func(it dictItem[T]) bool {
		if s.GetRefCount(it.idx) == 0 {
			unused = append(unused, it.idx)
		}
		return true
	})
	for _, idx := range unused {
		s.freeEnum(idx)
	}
	s.opts.logger.LogReclaim(len(unused))
}

func (s *EnumStore[T]) freeEnum(idx Index) {
	if s.opts.reclaimHook != nil {
		s.opts.reclaimHook(idx)
	}
	v := s.GetValue(idx)
	s.dict.Delete(dictItem[T]{idx: idx})
	s.buf.Free(idx.bufferID(), idx.byteOffset(), alignEntrySize(refCountSize+s.et.Size(v)))
}

// NumUniques returns the number of live unique values.
func (s *EnumStore[T]) NumUniques() int {
	return s.dict.Len()
}

// Generation identifies the current index space. It bumps on every
// compaction and reset; indices issued under an earlier generation must not
// be dereferenced without applying the remap.
func (s *EnumStore[T]) Generation() uint32 {
	return s.generation
}

// Stats is a point-in-time snapshot of store usage.
type Stats struct {
	UniqueValues  int    // Live unique entries
	BytesUsed     uint64 // Bytes occupied by live entries
	BytesDead     uint64 // Freed but unreclaimed bytes
	BytesFree     uint64 // Unallocated buffer capacity
	ActiveBuffers int    // Buffers not yet released
	Compactions   uint64 // Historical: compaction passes
	Generation    uint32 // Current index-space generation
}

// Stats returns a snapshot of store usage.
func (s *EnumStore[T]) Stats() Stats {
	return Stats{
		UniqueValues:  s.dict.Len(),
		BytesUsed:     s.buf.BytesUsed(),
		BytesDead:     s.buf.BytesDead(),
		BytesFree:     s.buf.BytesFree(),
		ActiveBuffers: s.buf.ActiveBuffers(),
		Compactions:   s.compactions,
		Generation:    s.generation,
	}
}

func (s *EnumStore[T]) entryView(idx Index) []byte {
	if !idx.Valid() {
		panic("enumstore: dereference of invalid index")
	}
	return s.buf.EntryView(idx.bufferID(), idx.byteOffset())
}

func (s *EnumStore[T]) refCountSpan(idx Index) []byte {
	if !idx.Valid() {
		panic("enumstore: dereference of invalid index")
	}
	return s.buf.Bytes(idx.bufferID(), idx.byteOffset(), refCountSize)
}
