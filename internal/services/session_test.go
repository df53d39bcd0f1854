package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales-dashboard/internal/models"
)

func TestSessionStore_Lifecycle(t *testing.T) {
	store := NewSessionStore(0, nil)
	ds := twoRecordDataset()

	s, err := store.Create(ds, "test")
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())

	got, err := store.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, store.Delete(s.ID))
	_, err = store.Get(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, store.Delete(s.ID), ErrSessionNotFound)
}

func TestSessionStore_Limit(t *testing.T) {
	store := NewSessionStore(2, nil)
	ds := twoRecordDataset()

	for i := 0; i < 2; i++ {
		_, err := store.Create(ds, "test")
		require.NoError(t, err)
	}
	_, err := store.Create(ds, "test")
	assert.ErrorIs(t, err, ErrTooManySessions)
}

func TestSessionStore_CreateRecycled(t *testing.T) {
	store := NewSessionStore(1, nil)
	ds := twoRecordDataset()

	oldest := store.CreateRecycled(ds, "seed", 2)
	oldest.mu.Lock()
	oldest.lastSeen = time.Now().Add(-time.Minute)
	oldest.mu.Unlock()
	kept := store.CreateRecycled(ds, "seed", 2)
	newest := store.CreateRecycled(ds, "seed", 2)

	assert.Equal(t, 2, store.Len())
	_, err := store.Get(oldest.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound, "the idlest recycled session is replaced")
	for _, s := range []*Session{kept, newest} {
		_, err := store.Get(s.ID)
		assert.NoError(t, err)
	}

	owned, err := store.Create(ds, "upload")
	require.NoError(t, err, "recycled sessions are not held against the limit")
	_, err = store.Create(ds, "upload")
	assert.ErrorIs(t, err, ErrTooManySessions)

	require.NoError(t, store.Delete(owned.ID))
	_, err = store.Create(ds, "upload")
	assert.NoError(t, err, "deleting an owned session frees its slot")
}

func TestSessionStore_Sweep(t *testing.T) {
	store := NewSessionStore(0, nil)
	ds := twoRecordDataset()

	stale, err := store.Create(ds, "stale")
	require.NoError(t, err)
	fresh, err := store.Create(ds, "fresh")
	require.NoError(t, err)

	stale.mu.Lock()
	stale.lastSeen = time.Now().Add(-time.Hour)
	stale.mu.Unlock()

	assert.Equal(t, 1, store.Sweep(30*time.Minute))
	_, err = store.Get(stale.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = store.Get(fresh.ID)
	assert.NoError(t, err)
}

func TestSessionStore_RunJanitorStops(t *testing.T) {
	store := NewSessionStore(0, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		store.RunJanitor(ctx, time.Millisecond, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop after cancel")
	}
}

func TestSession_Filters(t *testing.T) {
	ds := twoRecordDataset()
	s := newSession(ds, "test")

	assert.Equal(t, 2, s.View().Len())

	spec := s.Filters()
	spec.Selections[models.DimSeason] = []string{"Winter"}
	assert.Equal(t, 2, s.View().Len(), "Filters returns a copy")

	require.NoError(t, s.SetFilters(spec))
	assert.Equal(t, "B", s.View().At(0).Name)

	spec.Selections[models.DimSeason] = []string{"Monsoon"}
	var filterErr *FilterError
	assert.ErrorAs(t, s.SetFilters(spec), &filterErr)
	assert.Equal(t, 1, s.View().Len(), "a rejected spec leaves the previous one in place")

	reset := s.ResetFilters()
	assert.Equal(t, ds.DefaultFilterSpec(), reset)
	assert.Equal(t, 2, s.View().Len())
}

func TestBuildSnapshot(t *testing.T) {
	ds := loadFixture(t)

	snap, err := BuildSnapshot(context.Background(), ds.All(), 2)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Summary.TotalProducts)
	assert.Equal(t, "wool", snap.TopMaterial.Value)
	assert.Len(t, snap.TopProducts, 2)
	assert.Equal(t, "Jacket A", snap.TopProducts[0].Name)
	assert.Len(t, snap.Scatter, 3)
	assert.Equal(t, "Summer", snap.SeasonRevenue[0].Key)
	assert.Len(t, snap.SeasonMaterial, 3)
	assert.Empty(t, snap.Warnings)

	spec := ds.DefaultFilterSpec()
	spec.PriceMin, spec.PriceMax = 500, 600
	empty, err := BuildSnapshot(context.Background(), ApplyFilters(ds, spec), 2)
	require.NoError(t, err)
	require.Len(t, empty.Warnings, 1)
	assert.Equal(t, WarnEmptyResult, empty.Warnings[0].Kind)
	assert.False(t, empty.Summary.AvgPrice.Valid)
	assert.Empty(t, empty.TopProducts)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = BuildSnapshot(ctx, ds.All(), 2)
	assert.ErrorIs(t, err, context.Canceled)
}
