package enumstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchUpdater_AbandonedAddVanishesOnCommit(t *testing.T) {
	s := newStringStore(t)
	u := s.NewBatchUpdater()

	idx, err := u.Add("tentative")
	require.NoError(t, err)
	require.Equal(t, uint32(1), s.GetRefCount(idx))

	// The creating reference is dropped again within the batch.
	u.DecRefCount(idx)
	u.Commit()

	_, ok := s.FindIndex("tentative")
	assert.False(t, ok)
}

func TestBatchUpdater_KeptAddSurvivesCommit(t *testing.T) {
	s := newStringStore(t)
	u := s.NewBatchUpdater()

	idx, err := u.Add("kept")
	require.NoError(t, err)
	u.Commit()

	// The creating reference is still held; the candidate is skipped.
	got, ok := s.FindIndex("kept")
	require.True(t, ok)
	assert.Equal(t, idx, got)
	assert.Equal(t, uint32(1), s.GetRefCount(idx))
}

func TestBatchUpdater_DecThenIncWithinBatchIsSafe(t *testing.T) {
	s := newStringStore(t)

	idx, err := s.AddEnum("stable")
	require.NoError(t, err)

	// A document re-index with an unchanged field value: the old reference
	// goes away and a new one arrives in the same batch.
	u := s.NewBatchUpdater()
	u.DecRefCount(idx)
	require.Equal(t, uint32(0), s.GetRefCount(idx))
	u.IncRefCount(idx)
	u.Commit()

	got, ok := s.FindIndex("stable")
	require.True(t, ok)
	assert.Equal(t, idx, got)
	assert.Equal(t, uint32(1), s.GetRefCount(idx))
}

func TestBatchUpdater_MixedCommit(t *testing.T) {
	s := newStringStore(t)

	old, err := s.AddEnum("old")
	require.NoError(t, err)
	kept, err := s.AddEnum("kept")
	require.NoError(t, err)
	s.IncRefCount(kept)

	u := s.NewBatchUpdater()
	u.DecRefCount(old)
	u.DecRefCount(kept)
	fresh, err := u.Add("fresh")
	require.NoError(t, err)
	u.Commit()

	_, ok := s.FindIndex("old")
	assert.False(t, ok, "fully dereferenced entry is reclaimed")

	_, ok = s.FindIndex("kept")
	assert.True(t, ok, "entry with remaining references survives")
	assert.Equal(t, uint32(1), s.GetRefCount(kept))

	got, ok := s.FindIndex("fresh")
	require.True(t, ok)
	assert.Equal(t, fresh, got)
}

func TestBatchUpdater_ReusableAfterCommit(t *testing.T) {
	s := newStringStore(t)
	u := s.NewBatchUpdater()

	idx, err := u.Add("first")
	require.NoError(t, err)
	u.DecRefCount(idx)
	u.Commit()

	// A later batch must not be affected by the committed candidate set.
	idx2, err := u.Add("second")
	require.NoError(t, err)
	u.Commit()

	_, ok := s.FindIndex("second")
	require.True(t, ok)
	assert.Equal(t, uint32(1), s.GetRefCount(idx2))
}

func TestBatchUpdater_AddExistingValue(t *testing.T) {
	s := newStringStore(t)

	idx, err := s.AddEnum("shared")
	require.NoError(t, err)
	s.IncRefCount(idx)

	u := s.NewBatchUpdater()
	got, err := u.Add("shared")
	require.NoError(t, err)
	assert.Equal(t, idx, got)
	u.Commit()

	// Counts of an existing entry are untouched by Add.
	assert.Equal(t, uint32(2), s.GetRefCount(idx))
}
