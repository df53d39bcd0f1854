package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"sales-dashboard/internal/models"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTooManySessions = errors.New("session limit reached")
)

// Session owns one immutable Dataset and the user's mutable FilterSpec.
type Session struct {
	ID        string
	CreatedAt time.Time
	Source    string

	dataset  *Dataset
	recycled bool
	mu       sync.Mutex
	filters  models.FilterSpec
	lastSeen time.Time
}

func newSession(ds *Dataset, source string) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		Source:    source,
		dataset:   ds,
		filters:   ds.DefaultFilterSpec(),
		lastSeen:  now,
	}
}

// Dataset returns the session's dataset.
func (s *Session) Dataset() *Dataset { return s.dataset }

// Filters returns a copy of the current FilterSpec.
func (s *Session) Filters() models.FilterSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filters.Clone()
}

// SetFilters validates and replaces the FilterSpec.
func (s *Session) SetFilters(spec models.FilterSpec) error {
	if err := ValidateFilterSpec(s.dataset, spec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = spec.Clone()
	s.lastSeen = time.Now()
	return nil
}

// ResetFilters restores the dataset's default FilterSpec.
func (s *Session) ResetFilters() models.FilterSpec {
	spec := s.dataset.DefaultFilterSpec()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = spec
	s.lastSeen = time.Now()
	return spec.Clone()
}

// View applies the current FilterSpec to the dataset.
func (s *Session) View() *View {
	spec := s.Filters()
	s.touch()
	return ApplyFilters(s.dataset, spec)
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// SessionStore keeps live sessions in memory.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	limit    int
	// owned counts sessions that are held against limit; recycled ones are not.
	owned  int
	logger *slog.Logger
}

// NewSessionStore creates a store; limit <= 0 means unbounded.
func NewSessionStore(limit int, logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionStore{
		sessions: make(map[string]*Session),
		limit:    limit,
		logger:   logger,
	}
}

// Create registers a new session over ds.
func (st *SessionStore) Create(ds *Dataset, source string) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.limit > 0 && st.owned >= st.limit {
		return nil, ErrTooManySessions
	}
	s := newSession(ds, source)
	st.sessions[s.ID] = s
	st.owned++
	st.logger.Debug("session created", "session_id", s.ID, "source", source, "records", ds.Len())
	return s, nil
}

// CreateRecycled registers a session for an anonymous visitor. At most
// limit recycled sessions share a source; once that many exist the one idle
// longest is replaced. Recycled sessions are not held against the store
// limit, so visits alone cannot lock out uploads. limit <= 0 means
// unbounded.
func (st *SessionStore) CreateRecycled(ds *Dataset, source string, limit int) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	if limit > 0 {
		var idlest *Session
		count := 0
		for _, s := range st.sessions {
			if !s.recycled || s.Source != source {
				continue
			}
			count++
			if idlest == nil || s.idleSince().Before(idlest.idleSince()) {
				idlest = s
			}
		}
		if count >= limit {
			st.remove(idlest.ID)
			st.logger.Debug("recycled session evicted", "session_id", idlest.ID, "source", source)
		}
	}

	s := newSession(ds, source)
	s.recycled = true
	st.sessions[s.ID] = s
	st.logger.Debug("session created", "session_id", s.ID, "source", source, "records", ds.Len(), "recycled", true)
	return s
}

// remove deletes a session; callers hold st.mu.
func (st *SessionStore) remove(id string) {
	s, ok := st.sessions[id]
	if !ok {
		return
	}
	delete(st.sessions, id)
	if !s.recycled {
		st.owned--
	}
}

// Get returns the session with id.
func (st *SessionStore) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete removes a session.
func (st *SessionStore) Delete(id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	st.remove(id)
	return nil
}

// Len returns the number of live sessions.
func (st *SessionStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Sweep removes sessions idle for longer than ttl and returns how many
// were removed.
func (st *SessionStore) Sweep(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	st.mu.Lock()
	defer st.mu.Unlock()

	removed := 0
	for id, s := range st.sessions {
		if s.idleSince().Before(cutoff) {
			st.remove(id)
			removed++
		}
	}
	if removed > 0 {
		st.logger.Info("expired sessions removed", "count", removed, "remaining", len(st.sessions))
	}
	return removed
}

// RunJanitor sweeps idle sessions every interval until ctx is done.
func (st *SessionStore) RunJanitor(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st.Sweep(ttl)
		}
	}
}
