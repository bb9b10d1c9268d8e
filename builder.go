package enumstore

import (
	"encoding/binary"

	"github.com/google/btree"

	"github.com/hupe1980/enumstore/internal/bufstore"
)

// Builder accumulates a bulk load for Store.Reset: loading persisted state or
// rebuilding after a schema change is far cheaper this way than through the
// per-value insert path.
//
// The caller supplies unique values in final dictionary order; the Builder
// neither sorts nor deduplicates, and violating sortedness or uniqueness
// leaves the dictionary in undefined state. Each Insert accumulates the
// entry's aligned size into a running offset inside buffer 0, the buffer id
// reserved for reset loads.
type Builder[T any] struct {
	et         EntryType[T]
	uniques    []uniqueEntry[T]
	bufferSize uint32
}

type uniqueEntry[T any] struct {
	value    T
	size     uint32
	refCount uint32
}

// NewBuilder creates a Builder for the given entry type. The entry type must
// match the store the builder is later applied to.
func NewBuilder[T any](et EntryType[T]) *Builder[T] {
	return &Builder[T]{
		et: et,
		// The first aligned slot of every buffer is reserved so the zero
		// Index stays invalid.
		bufferSize: bufstore.EntryAlignment,
	}
}

// Insert appends the next value in sort order with a reference count of 1
// and returns the index it will occupy after Reset. A value the kind cannot
// encode intact panics; loaders feed Insert from streams that were validated
// on write.
func (b *Builder[T]) Insert(v T) Index {
	if err := b.et.ValidateValue(v); err != nil {
		panic(err.Error())
	}
	size := alignEntrySize(refCountSize + b.et.Size(v))
	idx := newIndex(0, b.bufferSize)
	b.uniques = append(b.uniques, uniqueEntry[T]{value: v, size: size, refCount: 1})
	b.bufferSize += size
	return idx
}

// UpdateRefCount overrides the reference count of the most recently inserted
// value. Loaders call it after Insert once the persisted count is known.
func (b *Builder[T]) UpdateRefCount(refCount uint32) {
	if len(b.uniques) == 0 {
		panic("enumstore: UpdateRefCount before Insert")
	}
	b.uniques[len(b.uniques)-1].refCount = refCount
}

// Len returns the number of accumulated values.
func (b *Builder[T]) Len() int {
	return len(b.uniques)
}

// BufferSize returns the total buffer capacity the accumulated entries need.
func (b *Builder[T]) BufferSize() uint32 {
	return b.bufferSize
}

// Reset rewrites the store's buffers and dictionary from the builder's
// accumulated list in one pass. All previous entries and indices are
// discarded and the generation bumps: indices issued before the reset must
// not be used again. The old buffers are released; buffer 0's slot carries
// the fresh load, since Builder precomputed its indices against it.
func (s *EnumStore[T]) Reset(b *Builder[T]) error {
	if err := s.buf.Reset(b.bufferSize); err != nil {
		return err
	}

	dict := btree.NewG(s.opts.dictionaryDegree, s.itemLess)
	for i := range b.uniques {
		u := &b.uniques[i]
		bufferID, offset, span, err := s.buf.Alloc(u.size)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(span[:refCountSize], u.refCount)
		s.et.EncodeValue(span[refCountSize:], u.value)
		dict.ReplaceOrInsert(dictItem[T]{idx: newIndex(bufferID, offset)})
	}

	s.dict = dict
	s.generation++
	return nil
}
