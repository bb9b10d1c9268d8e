package enumstore

import (
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStringStore(t *testing.T, opts ...Option) *EnumStore[string] {
	t.Helper()

	s, err := New(String(), opts...)
	require.NoError(t, err)
	return s
}

func candidates(idxs ...Index) *roaring.Bitmap {
	bm := roaring.New()
	for _, idx := range idxs {
		bm.Add(uint32(idx))
	}
	return bm
}

func TestNew_NilEntryType(t *testing.T) {
	_, err := New[string](nil)
	require.Error(t, err)
}

func TestEnumStore_AddEnumDeduplicates(t *testing.T) {
	s := newStringStore(t)

	idx1, err := s.AddEnum("red")
	require.NoError(t, err)
	require.True(t, idx1.Valid())

	idx2, err := s.AddEnum("red")
	require.NoError(t, err)
	assert.Equal(t, idx1, idx2)
	assert.Equal(t, 1, s.NumUniques())

	// AddEnum never increments on a hit.
	assert.Equal(t, uint32(1), s.GetRefCount(idx1))
}

func TestEnumStore_AddEnumDistinctValues(t *testing.T) {
	s, err := New(Int32())
	require.NoError(t, err)

	values := []int32{42, -7, 0, 1 << 20, -(1 << 20)}
	idxs := make(map[int32]Index, len(values))
	for _, v := range values {
		idx, err := s.AddEnum(v)
		require.NoError(t, err)
		idxs[v] = idx
	}

	assert.Equal(t, len(values), s.NumUniques())
	for _, v := range values {
		assert.Equal(t, v, s.GetValue(idxs[v]))
		got, ok := s.FindIndex(v)
		require.True(t, ok)
		assert.Equal(t, idxs[v], got)
	}

	_, ok := s.FindIndex(99)
	assert.False(t, ok)
}

func TestEnumStore_AddEnumRejectsEmbeddedNUL(t *testing.T) {
	s := newStringStore(t)

	idx, err := s.AddEnum("a")
	require.NoError(t, err)

	// The NUL-terminated payload cannot hold these intact; storing them
	// would create an entry that decodes as a different value.
	_, err = s.AddEnum("a\x00b")
	require.ErrorIs(t, err, ErrInvalidValue)
	_, err = s.AddEnum("\x00")
	require.ErrorIs(t, err, ErrInvalidValue)

	// Rejected inserts leave the store untouched.
	assert.Equal(t, 1, s.NumUniques())
	assert.Equal(t, "a", s.GetValue(idx))
	got, ok := s.FindIndex("a")
	require.True(t, ok)
	assert.Equal(t, idx, got)
}

func TestEnumStore_RefCountLifecycle(t *testing.T) {
	s := newStringStore(t)

	idx, err := s.AddEnum("value")
	require.NoError(t, err)
	require.Equal(t, uint32(1), s.GetRefCount(idx))

	s.IncRefCount(idx)
	s.IncRefCount(idx)
	assert.Equal(t, uint32(3), s.GetRefCount(idx))

	s.DecRefCount(idx)
	s.DecRefCount(idx)
	s.DecRefCount(idx)
	assert.Equal(t, uint32(0), s.GetRefCount(idx))

	// Zero count alone does not remove the entry.
	_, ok := s.FindIndex("value")
	assert.True(t, ok)

	s.FreeUnusedEnums(candidates(idx))
	_, ok = s.FindIndex("value")
	assert.False(t, ok)
	assert.Equal(t, 0, s.NumUniques())
	assert.Positive(t, s.Stats().BytesDead)
}

func TestEnumStore_DecRefCountUnderflowPanics(t *testing.T) {
	s := newStringStore(t)

	idx, err := s.AddEnum("value")
	require.NoError(t, err)
	s.DecRefCount(idx)

	require.Panics(t, func() {
		s.DecRefCount(idx)
	})
}

func TestEnumStore_FreeUnusedEnumsSkipsLiveCandidates(t *testing.T) {
	s := newStringStore(t)

	idx, err := s.AddEnum("kept")
	require.NoError(t, err)

	// Candidate was re-incremented after being marked: must survive.
	s.DecRefCount(idx)
	s.IncRefCount(idx)
	s.FreeUnusedEnums(candidates(idx))

	got, ok := s.FindIndex("kept")
	require.True(t, ok)
	assert.Equal(t, idx, got)
}

func TestEnumStore_FreeAllUnusedSweep(t *testing.T) {
	s := newStringStore(t)

	keep, err := s.AddEnum("keep")
	require.NoError(t, err)
	drop1, err := s.AddEnum("drop1")
	require.NoError(t, err)
	drop2, err := s.AddEnum("drop2")
	require.NoError(t, err)

	s.DecRefCount(drop1)
	s.DecRefCount(drop2)
	s.FreeAllUnused()

	assert.Equal(t, 1, s.NumUniques())
	_, ok := s.FindIndex("keep")
	assert.True(t, ok)
	assert.Equal(t, uint32(1), s.GetRefCount(keep))
	_, ok = s.FindIndex("drop1")
	assert.False(t, ok)
	_, ok = s.FindIndex("drop2")
	assert.False(t, ok)
}

func TestEnumStore_ReclaimHook(t *testing.T) {
	var reclaimed []Index
	s := newStringStore(t, WithReclaimHook(func(idx Index) {
		reclaimed = append(reclaimed, idx)
	}))

	idx, err := s.AddEnum("value")
	require.NoError(t, err)
	s.DecRefCount(idx)
	s.FreeUnusedEnums(candidates(idx))

	assert.Equal(t, []Index{idx}, reclaimed)
}

func TestEnumStore_InvalidIndexPanics(t *testing.T) {
	s := newStringStore(t)

	require.Panics(t, func() {
		s.GetValue(Index(0))
	})
	require.Panics(t, func() {
		s.GetRefCount(Index(0))
	})
}

func TestEnumStore_ManyValuesStayUnique(t *testing.T) {
	s, err := New(Int64(), WithInitialBufferSize(256))
	require.NoError(t, err)

	// Repeated rounds over the same value set never create duplicates, and
	// the index for a value is stable across rounds.
	first := make(map[int64]Index)
	for round := 0; round < 3; round++ {
		for v := int64(0); v < 500; v++ {
			idx, err := s.AddEnum(v * 3)
			require.NoError(t, err)
			if round == 0 {
				first[v*3] = idx
			} else {
				assert.Equal(t, first[v*3], idx)
			}
		}
	}
	assert.Equal(t, 500, s.NumUniques())
}

func TestEnumStore_Stats(t *testing.T) {
	s := newStringStore(t)

	stats := s.Stats()
	assert.Equal(t, 0, stats.UniqueValues)
	assert.Equal(t, uint32(1), stats.Generation)

	idx, err := s.AddEnum("value")
	require.NoError(t, err)

	stats = s.Stats()
	assert.Equal(t, 1, stats.UniqueValues)
	assert.Positive(t, stats.BytesUsed)
	assert.Equal(t, uint64(0), stats.BytesDead)

	s.DecRefCount(idx)
	s.FreeUnusedEnums(candidates(idx))
	assert.Positive(t, s.Stats().BytesDead)
}
