package enumstore

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// dictItem is what the dictionary tree orders. Stored items carry only an
// Index; lookups pass a transient probe value instead, so searching never
// touches the store's buffers for the key side.
type dictItem[T any] struct {
	idx Index

	// probe is a lookup key; items holding one are never inserted.
	probe *T

	// foldedOnly makes a probe sort below every stored member of its fold
	// class, turning it into a lower bound for folded-range scans.
	foldedOnly bool
}

func (s *EnumStore[T]) itemValue(it dictItem[T]) T {
	if it.probe != nil {
		return *it.probe
	}
	return s.GetValue(it.idx)
}

func (s *EnumStore[T]) itemLess(a, b dictItem[T]) bool {
	return s.compareItems(a, b) < 0
}

// compareItems is the dictionary order. Folding kinds order by the folded
// form first with the exact order as tiebreak, so values that fold
// identically form a contiguous range; equality still means exact equality.
func (s *EnumStore[T]) compareItems(a, b dictItem[T]) int {
	va, vb := s.itemValue(a), s.itemValue(b)
	if s.et.HasFold() {
		if c := s.et.CompareFolded(va, vb); c != 0 {
			return c
		}
		if a.foldedOnly != b.foldedOnly {
			if a.foldedOnly {
				return -1
			}
			return 1
		}
	}
	return s.et.Compare(va, vb)
}

// FindIndex locates the exact entry for a value.
func (s *EnumStore[T]) FindIndex(v T) (Index, bool) {
	it, ok := s.dict.Get(dictItem[T]{probe: &v})
	if !ok {
		return 0, false
	}
	return it.idx, true
}

// FindEnum locates the exact entry for a value and returns a handle carrying
// a reference count snapshot.
func (s *EnumStore[T]) FindEnum(v T) (Handle, bool) {
	idx, ok := s.FindIndex(v)
	if !ok {
		return Handle{}, false
	}
	return Handle{Index: idx, RefCount: s.GetRefCount(idx)}, true
}

// FindFoldedEnums returns every entry whose folded form matches the value,
// in primary dictionary order. Search paths use this for case-insensitive
// matching. Kinds without folding return nil.
func (s *EnumStore[T]) FindFoldedEnums(v T) []Handle {
	if !s.et.HasFold() {
		return nil
	}
	var out []Handle
	pivot := dictItem[T]{probe: &v, foldedOnly: true}
	s.dict.AscendGreaterOrEqual(pivot, func(it dictItem[T]) bool {
		if s.et.CompareFolded(v, s.GetValue(it.idx)) != 0 {
			return false
		}
		out = append(out, Handle{Index: it.idx, RefCount: s.GetRefCount(it.idx)})
		return true
	})
	return out
}

// FoldedChange reports whether the folded forms of two distinct entries
// differ. Dictionary-range maintenance uses it to detect fold-class
// boundaries after edits.
func (s *EnumStore[T]) FoldedChange(a, b Index) bool {
	return s.et.CompareFolded(s.GetValue(a), s.GetValue(b)) != 0
}

// findIndexesChunk is sized so each goroutine amortizes scheduling overhead
// across a run of tree lookups.
const findIndexesChunk = 256

// FindIndexes resolves many values at once, fanning lookups out across
// goroutines. The result is positional: out[i] is the index of values[i], or
// the zero Index when the value is not interned.
//
// Lookups only read, so this is safe whenever concurrent readers are; query
// evaluation uses it to resolve large IN-style value lists.
func (s *EnumStore[T]) FindIndexes(ctx context.Context, values []T) ([]Index, error) {
	out := make([]Index, len(values))
	if len(values) == 0 {
		return out, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for start := 0; start < len(values); start += findIndexesChunk {
		start := start
		end := min(start+findIndexesChunk, len(values))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				if idx, ok := s.FindIndex(values[i]); ok {
					out[i] = idx
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
