package services

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"sales-dashboard/internal/models"
)

const (
	cacheVersion        = "v2"
	defaultCacheDir     = ".cache"
	defaultSeedSessions = 100
	seedSource          = "seed"
)

// ErrNoSeedDataset is returned when a session is requested from the seed
// dataset but none was loaded.
var ErrNoSeedDataset = errors.New("no seed dataset loaded")

// Recorder receives pipeline events. observability.Metrics implements it.
type Recorder interface {
	DatasetLoaded(source string, records, dropped int)
	FiltersApplied(matched int)
	StageObserved(stage string, d time.Duration)
	ExportWritten(format string)
}

type nopRecorder struct{}

func (nopRecorder) DatasetLoaded(string, int, int)      {}
func (nopRecorder) FiltersApplied(int)                  {}
func (nopRecorder) StageObserved(string, time.Duration) {}
func (nopRecorder) ExportWritten(string)                {}

type cachedDataset struct {
	Records      []models.Record
	Dropped      int
	Warnings     []Warning
	LastModified time.Time
}

// Analytics ties the seed dataset, uploaded datasets and sessions together.
type Analytics struct {
	mu             sync.RWMutex
	seed           *Dataset
	seedPath       string
	sessions       *SessionStore
	seedSessions   int
	cacheDir       string
	recorder       Recorder
	logger         *slog.Logger
	datasetsLoaded atomic.Int64
}

// Option configures Analytics.
type Option func(*Analytics)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Analytics) { a.logger = logger }
}

func WithRecorder(r Recorder) Option {
	return func(a *Analytics) { a.recorder = r }
}

// WithCacheDir sets where the seed dataset cache is written; empty
// disables caching.
func WithCacheDir(dir string) Option {
	return func(a *Analytics) { a.cacheDir = dir }
}

func WithSessionLimit(limit int) Option {
	return func(a *Analytics) { a.sessions.limit = limit }
}

// WithSeedSessionLimit caps how many sessions over the seed dataset exist at
// once; the idlest is replaced beyond that. limit <= 0 means unbounded.
func WithSeedSessionLimit(limit int) Option {
	return func(a *Analytics) { a.seedSessions = limit }
}

func NewAnalytics(opts ...Option) *Analytics {
	a := &Analytics{
		cacheDir:     defaultCacheDir,
		seedSessions: defaultSeedSessions,
		recorder:     nopRecorder{},
		logger:       slog.Default(),
	}
	a.sessions = NewSessionStore(0, a.logger)
	for _, opt := range opts {
		opt(a)
	}
	a.sessions.logger = a.logger
	return a
}

// Sessions exposes the session store.
func (a *Analytics) Sessions() *SessionStore { return a.sessions }

// SetSeed installs an already built dataset as the seed.
func (a *Analytics) SetSeed(ds *Dataset) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seed = ds
}

// Seed returns the seed dataset, or nil.
func (a *Analytics) Seed() *Dataset {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.seed
}

// LoadSeed loads the dataset served to new dashboard visitors. A cache of
// the normalized records is reused while the source file is older than it.
func (a *Analytics) LoadSeed(ctx context.Context, filename string) error {
	a.mu.Lock()
	a.seedPath = filename
	a.mu.Unlock()

	if cached, err := a.loadFromCache(filename); err == nil {
		fileInfo, err := os.Stat(filename)
		if err == nil && fileInfo.ModTime().Before(cached.LastModified) {
			ds := newDataset(cached.Records, cached.Dropped, cached.Warnings)
			a.SetSeed(ds)
			a.logger.Info("seed dataset loaded from cache", "records", ds.Len(), "dropped", ds.Dropped())
			return nil
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	a.logger.Info("processing seed dataset", "filename", filename)

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("read seed dataset: %w", err)
	}
	ds, err := a.load(RawInput{Data: data, Filename: filepath.Base(filename), Delimiter: DelimiterAuto}, seedSource)
	if err != nil {
		return fmt.Errorf("load seed dataset: %w", err)
	}
	a.SetSeed(ds)

	if err := a.saveToCache(filename, ds); err != nil {
		a.logger.Warn("failed to save cache", "error", err)
	}

	duration := time.Since(start)
	a.logger.Info("seed dataset processing complete",
		"records", ds.Len(),
		"dropped", ds.Dropped(),
		"duration", duration,
	)
	return nil
}

func (a *Analytics) load(in RawInput, source string) (*Dataset, error) {
	start := time.Now()
	ds, err := Load(in)
	a.recorder.StageObserved("load", time.Since(start))
	if err != nil {
		return nil, err
	}
	a.datasetsLoaded.Add(1)
	a.recorder.DatasetLoaded(source, ds.Len(), ds.Dropped())
	for _, w := range ds.Warnings() {
		a.logger.Warn("dataset warning", "source", source, "kind", w.Kind, "column", w.Column, "message", w.Message)
	}
	return ds, nil
}

// NewSeedSession opens a session over the seed dataset. The dataset is
// shared read-only; each session gets its own FilterSpec. Seed sessions are
// recycled, so they never exhaust the limit uploads are held to.
func (a *Analytics) NewSeedSession() (*Session, error) {
	seed := a.Seed()
	if seed == nil {
		return nil, ErrNoSeedDataset
	}
	return a.sessions.CreateRecycled(seed, seedSource, a.seedSessions), nil
}

// Upload builds a private dataset from raw input and opens a session on it.
func (a *Analytics) Upload(in RawInput) (*Session, error) {
	source := "upload"
	if in.Filename != "" {
		source = in.Filename
	}
	ds, err := a.load(in, "upload")
	if err != nil {
		return nil, err
	}
	return a.sessions.Create(ds, source)
}

// Session looks up a live session.
func (a *Analytics) Session(id string) (*Session, error) {
	return a.sessions.Get(id)
}

// FilteredView applies the session's filters and records the outcome.
func (a *Analytics) FilteredView(s *Session) *View {
	start := time.Now()
	v := s.View()
	a.recorder.StageObserved("filter", time.Since(start))
	a.recorder.FiltersApplied(v.Len())
	return v
}

// Snapshot computes every dashboard panel for the session.
func (a *Analytics) Snapshot(ctx context.Context, s *Session, topN int) (*Snapshot, error) {
	v := a.FilteredView(s)
	start := time.Now()
	snap, err := BuildSnapshot(ctx, v, topN)
	a.recorder.StageObserved("aggregate", time.Since(start))
	return snap, err
}

// Export writes the session's filtered view in the requested format.
func (a *Analytics) Export(w io.Writer, s *Session, format ExportFormat, opts ExportOptions) error {
	v := a.FilteredView(s)
	start := time.Now()

	var err error
	switch format {
	case FormatXLSX:
		err = ExportWorkbook(w, v, opts)
	case FormatTSV:
		err = Export(w, v, DelimiterTab, opts)
	case FormatCSV:
		err = Export(w, v, DelimiterComma, opts)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
	a.recorder.StageObserved("export", time.Since(start))
	if err != nil {
		return err
	}
	a.recorder.ExportWritten(string(format))
	a.logger.Debug("view exported", "session_id", s.ID, "format", format, "records", v.Len())
	return nil
}

// Cache management
func (a *Analytics) getCacheFilename(path string) string {
	name := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(path)
	return filepath.Join(a.cacheDir, fmt.Sprintf("%s_%s.gob", name, cacheVersion))
}

func (a *Analytics) saveToCache(path string, ds *Dataset) error {
	if a.cacheDir == "" {
		return nil
	}
	if err := os.MkdirAll(a.cacheDir, 0755); err != nil {
		return err
	}

	file, err := os.Create(a.getCacheFilename(path))
	if err != nil {
		return err
	}
	defer file.Close()

	return gob.NewEncoder(file).Encode(cachedDataset{
		Records:      ds.records,
		Dropped:      ds.dropped,
		Warnings:     ds.warnings,
		LastModified: time.Now(),
	})
}

func (a *Analytics) loadFromCache(path string) (*cachedDataset, error) {
	if a.cacheDir == "" {
		return nil, os.ErrNotExist
	}
	file, err := os.Open(a.getCacheFilename(path))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var data cachedDataset
	if err := gob.NewDecoder(file).Decode(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Utility method for monitoring
func (a *Analytics) Stats() map[string]any {
	stats := map[string]any{
		"sessions":        a.sessions.Len(),
		"datasets_loaded": a.datasetsLoaded.Load(),
		"seed_loaded":     false,
	}
	a.mu.RLock()
	seed, seedPath := a.seed, a.seedPath
	a.mu.RUnlock()

	if seed != nil {
		bounds, _ := seed.ObservedPriceBounds()
		stats["seed_loaded"] = true
		stats["seed_path"] = seedPath
		stats["seed_records"] = seed.Len()
		stats["seed_dropped"] = seed.Dropped()
		stats["seed_price_min"] = bounds.Min
		stats["seed_price_max"] = bounds.Max
		stats["seed_loaded_at"] = seed.LoadedAt()
	}
	return stats
}
