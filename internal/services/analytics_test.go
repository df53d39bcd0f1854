package services

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales-dashboard/internal/models"
)

func createTempCSV(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "sales*.csv")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if _, err := f.WriteString(content); err != nil {
		t.Fatal(err)
	}
	return f.Name()
}

type recordingRecorder struct {
	mu      sync.Mutex
	loaded  []string
	matched []int
	stages  map[string]int
	exports []string
}

func (r *recordingRecorder) DatasetLoaded(source string, records, dropped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = append(r.loaded, source)
}

func (r *recordingRecorder) FiltersApplied(matched int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matched = append(r.matched, matched)
}

func (r *recordingRecorder) StageObserved(stage string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stages == nil {
		r.stages = make(map[string]int)
	}
	r.stages[stage]++
}

func (r *recordingRecorder) ExportWritten(format string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exports = append(r.exports, format)
}

func TestNewAnalytics(t *testing.T) {
	a := NewAnalytics()
	if a == nil {
		t.Fatal("NewAnalytics() returned nil")
	}
	if a.logger == nil {
		t.Error("logger should be initialized")
	}
	if a.Seed() != nil {
		t.Error("seed should be empty before LoadSeed")
	}
	if _, err := a.NewSeedSession(); !errors.Is(err, ErrNoSeedDataset) {
		t.Errorf("NewSeedSession() error = %v, want ErrNoSeedDataset", err)
	}
}

func TestAnalytics_LoadSeed(t *testing.T) {
	rec := &recordingRecorder{}
	a := NewAnalytics(WithCacheDir(t.TempDir()), WithRecorder(rec))

	filename := createTempCSV(t, salesCSV)
	require.NoError(t, a.LoadSeed(context.Background(), filename))

	seed := a.Seed()
	require.NotNil(t, seed)
	assert.Equal(t, 3, seed.Len())
	assert.Equal(t, 2, seed.Dropped())
	assert.Equal(t, []string{"seed"}, rec.loaded)

	stats := a.Stats()
	assert.Equal(t, true, stats["seed_loaded"])
	assert.Equal(t, filename, stats["seed_path"])
	assert.Equal(t, 3, stats["seed_records"])
	assert.Equal(t, 10.0, stats["seed_price_min"])
	assert.Equal(t, 30.0, stats["seed_price_max"])
}

func TestAnalytics_LoadSeedErrors(t *testing.T) {
	a := NewAnalytics(WithCacheDir(""))

	err := a.LoadSeed(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	err = a.LoadSeed(context.Background(), createTempCSV(t, ""))
	var loadErr *LoadError
	assert.ErrorAs(t, err, &loadErr)
	assert.Nil(t, a.Seed())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, a.LoadSeed(ctx, createTempCSV(t, salesCSV)), context.Canceled)
}

func TestAnalytics_SeedCache(t *testing.T) {
	cacheDir := t.TempDir()
	filename := createTempCSV(t, salesCSV)

	first := NewAnalytics(WithCacheDir(cacheDir))
	require.NoError(t, first.LoadSeed(context.Background(), filename))

	// rewrite the source but keep it older than the cache
	require.NoError(t, os.WriteFile(filename, []byte("name,price,Sales Volume\nOnly,1,1\n"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(filename, old, old))

	cached := NewAnalytics(WithCacheDir(cacheDir))
	require.NoError(t, cached.LoadSeed(context.Background(), filename))
	assert.Equal(t, 3, cached.Seed().Len())
	assert.Equal(t, first.Seed().All().Records(), cached.Seed().All().Records())
	assert.Equal(t, []string{"Summer", "Autumn", "Winter"}, cached.Seed().DistinctValues(models.DimSeason))

	// a newer source invalidates the cache
	newer := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(filename, newer, newer))

	fresh := NewAnalytics(WithCacheDir(cacheDir))
	require.NoError(t, fresh.LoadSeed(context.Background(), filename))
	assert.Equal(t, 1, fresh.Seed().Len())
}

func TestAnalytics_SeedSessionsAreIndependent(t *testing.T) {
	a := NewAnalytics(WithCacheDir(""))
	require.NoError(t, a.LoadSeed(context.Background(), createTempCSV(t, salesCSV)))

	s1, err := a.NewSeedSession()
	require.NoError(t, err)
	s2, err := a.NewSeedSession()
	require.NoError(t, err)
	assert.NotEqual(t, s1.ID, s2.ID)

	spec := s1.Filters()
	spec.Selections[models.DimSection] = []string{"WOMAN"}
	require.NoError(t, s1.SetFilters(spec))

	assert.Equal(t, 1, a.FilteredView(s1).Len())
	assert.Equal(t, 3, a.FilteredView(s2).Len())
}

func TestAnalytics_Upload(t *testing.T) {
	rec := &recordingRecorder{}
	a := NewAnalytics(WithCacheDir(""), WithRecorder(rec), WithSessionLimit(1))

	s, err := a.Upload(RawInput{Data: []byte("item\tprice\tqty\nTee\t5\t2\n"), Filename: "paste.tsv"})
	require.NoError(t, err)
	assert.Equal(t, "paste.tsv", s.Source)
	assert.Equal(t, 1, s.Dataset().Len())

	got, err := a.Session(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = a.Upload(RawInput{Data: []byte("name,price,qty\nA,1,1\n")})
	assert.ErrorIs(t, err, ErrTooManySessions)

	_, err = a.Upload(RawInput{Data: []byte("\xff")})
	var loadErr *LoadError
	assert.ErrorAs(t, err, &loadErr)
	assert.Equal(t, 1, a.Sessions().Len())

	snap, err := a.Snapshot(context.Background(), s, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Summary.TotalUnits)
	assert.Equal(t, []int{1}, rec.matched)
	assert.Equal(t, 1, rec.stages["aggregate"])
	assert.Equal(t, 3, rec.stages["load"])
}

func TestAnalytics_Export(t *testing.T) {
	rec := &recordingRecorder{}
	a := NewAnalytics(WithCacheDir(""), WithRecorder(rec))
	s, err := a.Upload(RawInput{Data: []byte(salesCSV)})
	require.NoError(t, err)

	spec := s.Filters()
	spec.Selections[models.DimMaterial] = []string{"cotton"}
	require.NoError(t, s.SetFilters(spec))

	var buf bytes.Buffer
	require.NoError(t, a.Export(&buf, s, FormatTSV, ExportOptions{Columns: []string{"name", "Revenue"}}))
	assert.Equal(t, "name\tRevenue\nJacket A\t50\n", buf.String())

	buf.Reset()
	require.NoError(t, a.Export(&buf, s, FormatXLSX, ExportOptions{}))
	reloaded, err := Load(RawInput{Data: buf.Bytes()})
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Len())

	assert.Error(t, a.Export(&buf, s, ExportFormat("pdf"), ExportOptions{}))
	assert.Equal(t, []string{"tsv", "xlsx"}, rec.exports)
}
