package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := New(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, st.Close()) })
	return st
}

func TestNew(t *testing.T) {
	t.Run("successful creation", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test.db")
		st, err := New(dbPath)
		require.NoError(t, err)
		assert.NotNil(t, st)
		require.NoError(t, st.Close())
	})

	t.Run("invalid path", func(t *testing.T) {
		st, err := New("/invalid/path/that/does/not/exist/test.db")
		assert.Error(t, err)
		assert.Nil(t, st)
	})
}

func TestStore_TablesCreated(t *testing.T) {
	st := newTestStore(t)

	var count int
	err := st.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='exercises'").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	err = st.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='sets'").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStore_CreateExercise(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	ex, err := st.CreateExercise(ctx, "Bench Press")
	require.NoError(t, err)
	assert.Positive(t, ex.ID)
	assert.Equal(t, "Bench Press", ex.Name)

	t.Run("duplicate name rejected", func(t *testing.T) {
		_, err := st.CreateExercise(ctx, "Bench Press")
		require.ErrorIs(t, err, ErrConflict)

		// exactly one row with that name
		var count int
		err = st.db.QueryRow("SELECT COUNT(*) FROM exercises WHERE name = ?", "Bench Press").Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("name uniqueness is case-sensitive", func(t *testing.T) {
		_, err := st.CreateExercise(ctx, "bench press")
		require.NoError(t, err)
	})
}

func TestStore_GetExercise(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	created, err := st.CreateExercise(ctx, "Squat")
	require.NoError(t, err)

	ex, err := st.GetExercise(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, ex)

	_, err = st.GetExercise(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListExercises(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	list, err := st.ListExercises(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	// inserted out of alphabetical order
	for _, name := range []string{"Squat", "Bench Press", "Deadlift"} {
		_, err := st.CreateExercise(ctx, name)
		require.NoError(t, err)
	}

	list, err = st.ListExercises(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "Bench Press", list[0].Name)
	assert.Equal(t, "Deadlift", list[1].Name)
	assert.Equal(t, "Squat", list[2].Name)
}

func TestStore_AddSet(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	ex, err := st.CreateExercise(ctx, "Bench Press")
	require.NoError(t, err)

	performed := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	set, err := st.AddSet(ctx, ex.ID, 100, 5, performed)
	require.NoError(t, err)
	assert.Positive(t, set.ID)
	assert.Equal(t, ex.ID, set.ExerciseID)
	assert.InDelta(t, 100.0, set.Weight, 0.0001)
	assert.Equal(t, 5, set.Reps)
	assert.Equal(t, performed, set.PerformedAt)

	t.Run("unknown exercise rejected by foreign key", func(t *testing.T) {
		_, err := st.AddSet(ctx, 999, 100, 5, performed)
		require.ErrorIs(t, err, ErrNotFound)

		var count int
		err = st.db.QueryRow("SELECT COUNT(*) FROM sets").Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}

func TestStore_ListSets_Ordering(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	ex, err := st.CreateExercise(ctx, "Deadlift")
	require.NoError(t, err)

	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	// inserted out of chronological order
	for _, offset := range []time.Duration{time.Hour, 3 * time.Hour, 2 * time.Hour} {
		_, err := st.AddSet(ctx, ex.ID, 120, 3, base.Add(offset))
		require.NoError(t, err)
	}

	sets, err := st.ListSets(ctx, ex.ID)
	require.NoError(t, err)
	require.Len(t, sets, 3)
	assert.Equal(t, base.Add(3*time.Hour), sets[0].PerformedAt)
	assert.Equal(t, base.Add(2*time.Hour), sets[1].PerformedAt)
	assert.Equal(t, base.Add(time.Hour), sets[2].PerformedAt)
}

func TestStore_MaxWeight(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	ex, err := st.CreateExercise(ctx, "Overhead Press")
	require.NoError(t, err)

	_, ok, err := st.MaxWeight(ctx, ex.ID)
	require.NoError(t, err)
	assert.False(t, ok, "no sets means no personal record")

	now := time.Now().UTC()
	for _, w := range []float64{60, 72.5, 65} {
		_, err := st.AddSet(ctx, ex.ID, w, 5, now)
		require.NoError(t, err)
	}

	pr, ok, err := st.MaxWeight(ctx, ex.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 72.5, pr, 0.0001)
}

func TestStore_DeleteExercise(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	ex, err := st.CreateExercise(ctx, "Row")
	require.NoError(t, err)
	other, err := st.CreateExercise(ctx, "Curl")
	require.NoError(t, err)

	now := time.Now().UTC()
	_, err = st.AddSet(ctx, ex.ID, 80, 8, now)
	require.NoError(t, err)
	_, err = st.AddSet(ctx, ex.ID, 85, 6, now)
	require.NoError(t, err)
	_, err = st.AddSet(ctx, other.ID, 20, 12, now)
	require.NoError(t, err)

	require.NoError(t, st.DeleteExercise(ctx, ex.ID))

	_, err = st.GetExercise(ctx, ex.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// cascade removed only the deleted exercise's sets
	var count int
	err = st.db.QueryRow("SELECT COUNT(*) FROM sets WHERE exercise_id = ?", ex.ID).Scan(&count)
	require.NoError(t, err)
	assert.Zero(t, count)

	remaining, err := st.ListSets(ctx, other.ID)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)

	t.Run("unknown id", func(t *testing.T) {
		err := st.DeleteExercise(ctx, 999)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
