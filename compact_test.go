package enumstore

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerformCompaction_PreservesValuesAndRefCounts(t *testing.T) {
	s := newStringStore(t)

	type entry struct {
		idx      Index
		refCount uint32
	}
	live := make(map[string]entry)
	for i := 0; i < 50; i++ {
		v := fmt.Sprintf("value-%02d", i)
		idx, err := s.AddEnum(v)
		require.NoError(t, err)
		for n := 0; n < i%4; n++ {
			s.IncRefCount(idx)
		}
		live[v] = entry{idx: idx, refCount: uint32(1 + i%4)}
	}

	// Create dead space by dropping a few entries entirely.
	for _, v := range []string{"value-10", "value-20", "value-30"} {
		e := live[v]
		for n := uint32(0); n < e.refCount; n++ {
			s.DecRefCount(e.idx)
		}
		s.FreeUnusedEnums(candidates(e.idx))
		delete(live, v)
	}
	require.Positive(t, s.Stats().BytesDead)

	remap, err := s.PerformCompaction(0)
	require.NoError(t, err)
	require.Len(t, remap, len(live))

	for v, e := range live {
		nidx, ok := remap.Remap(e.idx)
		require.True(t, ok, v)
		assert.Equal(t, v, s.GetValue(nidx), v)
		assert.Equal(t, e.refCount, s.GetRefCount(nidx), v)

		found, ok := s.FindIndex(v)
		require.True(t, ok, v)
		assert.Equal(t, nidx, found, v)
	}

	assert.Equal(t, uint64(0), s.Stats().BytesDead)
	assert.Equal(t, len(live), s.NumUniques())
}

func TestPerformCompaction_DropsZeroCountEntries(t *testing.T) {
	s := newStringStore(t)

	keep, err := s.AddEnum("keep")
	require.NoError(t, err)
	drop, err := s.AddEnum("drop")
	require.NoError(t, err)
	s.DecRefCount(drop)

	remap, err := s.PerformCompaction(0)
	require.NoError(t, err)

	// The zero-count entry is reclaimed by the pass, not relocated.
	_, ok := remap.Remap(drop)
	assert.False(t, ok)
	_, ok = s.FindIndex("drop")
	assert.False(t, ok)

	nidx, ok := remap.Remap(keep)
	require.True(t, ok)
	assert.Equal(t, "keep", s.GetValue(nidx))
}

func TestPerformCompaction_ReclaimHookForDropped(t *testing.T) {
	var reclaimed []Index
	s := newStringStore(t, WithReclaimHook(func(idx Index) {
		reclaimed = append(reclaimed, idx)
	}))

	drop, err := s.AddEnum("drop")
	require.NoError(t, err)
	s.DecRefCount(drop)

	_, err = s.PerformCompaction(0)
	require.NoError(t, err)
	assert.Equal(t, []Index{drop}, reclaimed)
}

func TestPerformCompaction_StaleIndexPanics(t *testing.T) {
	s := newStringStore(t)

	idx, err := s.AddEnum("value")
	require.NoError(t, err)

	_, err = s.PerformCompaction(0)
	require.NoError(t, err)

	// The old index space is gone; a missed remap must fail loudly.
	require.Panics(t, func() {
		s.GetValue(idx)
	})
}

func TestPerformCompaction_RepeatedPassesRecycleBuffers(t *testing.T) {
	s := newStringStore(t)

	idx, err := s.AddEnum("durable")
	require.NoError(t, err)

	// Long-lived stores compact far more often than the buffer id space is
	// wide; released slots must be recycled.
	for i := 0; i < 600; i++ {
		remap, err := s.PerformCompaction(0)
		require.NoError(t, err)
		nidx, ok := remap.Remap(idx)
		require.True(t, ok)
		idx = nidx
	}
	assert.Equal(t, "durable", s.GetValue(idx))
	assert.Equal(t, uint64(600), s.Stats().Compactions)
}

func TestPerformCompaction_BumpsGeneration(t *testing.T) {
	s := newStringStore(t)

	_, err := s.AddEnum("value")
	require.NoError(t, err)
	gen := s.Generation()

	_, err = s.PerformCompaction(0)
	require.NoError(t, err)
	assert.Equal(t, gen+1, s.Generation())
	assert.Equal(t, uint64(1), s.Stats().Compactions)
}

func TestPerformCompaction_EmptyStore(t *testing.T) {
	s := newStringStore(t)

	remap, err := s.PerformCompaction(0)
	require.NoError(t, err)
	assert.Empty(t, remap)
}

func TestNeedsCompaction(t *testing.T) {
	s, err := New(String(), WithCompactionThreshold(8))
	require.NoError(t, err)

	assert.False(t, s.NeedsCompaction(0))

	idx, err := s.AddEnum("a long enough value")
	require.NoError(t, err)
	s.DecRefCount(idx)
	s.FreeUnusedEnums(candidates(idx))

	assert.True(t, s.NeedsCompaction(0))
	assert.True(t, s.NeedsCompaction(8))
	assert.False(t, s.NeedsCompaction(1<<30), "dead space does not cover the requested headroom")
}

func TestIndexRemap_Apply(t *testing.T) {
	s := newStringStore(t)

	a, err := s.AddEnum("a")
	require.NoError(t, err)
	b, err := s.AddEnum("b")
	require.NoError(t, err)
	dropped, err := s.AddEnum("dropped")
	require.NoError(t, err)
	s.DecRefCount(dropped)

	remap, err := s.PerformCompaction(0)
	require.NoError(t, err)

	held := []Index{a, b}
	require.NoError(t, remap.Apply(held))
	assert.Equal(t, "a", s.GetValue(held[0]))
	assert.Equal(t, "b", s.GetValue(held[1]))

	// An index the compaction reclaimed has no mapping.
	require.Error(t, remap.Apply([]Index{dropped}))
}

func TestPerformCompaction_DictionaryOrderSurvives(t *testing.T) {
	s, err := New(Int32())
	require.NoError(t, err)

	for _, v := range []int32{5, -3, 9, 0, -8} {
		_, err := s.AddEnum(v)
		require.NoError(t, err)
	}

	_, err = s.PerformCompaction(0)
	require.NoError(t, err)

	var got []int32
	s.dict.Ascend(func(it dictItem[int32]) bool {
		got = append(got, s.GetValue(it.idx))
		return true
	})
	assert.Equal(t, []int32{-8, -3, 0, 5, 9}, got)
}
