// Package store keeps one session (task graph plus insights) per user and
// serializes access to it.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"taskflow/internal/graph"
	"taskflow/internal/insight"
	"taskflow/internal/logging"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("store closed")

// Session is the state owned by one user.
type Session struct {
	UserID   string
	Graph    *graph.Graph
	Insights *insight.UserInsights
}

func (s *Session) clone() *Session {
	return &Session{
		UserID:   s.UserID,
		Graph:    s.Graph.Clone(),
		Insights: s.Insights.Clone(),
	}
}

type entry struct {
	sem  chan struct{}
	sess *Session
}

func (e *entry) lock(ctx context.Context) error {
	select {
	case e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *entry) unlock() { <-e.sem }

// Store maps user IDs to sessions. Each user has an exclusive section;
// different users never wait on each other except for the brief map lookup.
type Store struct {
	backend Backend
	now     func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry
	closed  bool
}

// New creates a store persisting through backend.
func New(backend Backend) *Store {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	return &Store{
		backend: backend,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

func (s *Store) entry(userID string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.entries[userID]
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if ok {
		return e, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[userID]; ok {
		return e, nil
	}
	e = &entry{sem: make(chan struct{}, 1)}
	s.entries[userID] = e
	return e, nil
}

// load fills e.sess from the backend on first use. Caller holds e's lock.
func (s *Store) load(ctx context.Context, userID string, e *entry) error {
	if e.sess != nil {
		return nil
	}
	rec, found, err := s.backend.Load(ctx, userID)
	if err != nil {
		return fmt.Errorf("load session %q: %w", userID, err)
	}
	sess := &Session{UserID: userID, Graph: graph.New(), Insights: insight.New()}
	if found {
		if rec.Graph != nil {
			sess.Graph = rec.Graph.Clone()
		}
		if rec.Insights != nil {
			sess.Insights = rec.Insights.Clone()
		}
	}
	e.sess = sess
	return nil
}

// With runs fn inside userID's exclusive section. fn receives a private
// copy of the session; when fn returns nil the copy is persisted and becomes
// the current session, otherwise it is discarded.
func (s *Store) With(ctx context.Context, userID string, fn func(*Session) error) error {
	e, err := s.entry(userID)
	if err != nil {
		return err
	}
	if err := e.lock(ctx); err != nil {
		return err
	}
	defer e.unlock()

	if err := s.load(ctx, userID, e); err != nil {
		return err
	}

	work := e.sess.clone()
	if err := fn(work); err != nil {
		return err
	}

	rec := &Record{Graph: work.Graph, Insights: work.Insights, UpdatedAt: s.now()}
	// Persist even if the request context was cancelled while fn ran.
	if err := s.backend.Save(context.WithoutCancel(ctx), userID, rec); err != nil {
		logging.Error("failed to persist session", "user", userID, "error", err)
		return fmt.Errorf("save session %q: %w", userID, err)
	}
	e.sess = work
	return nil
}

// View runs fn with a read-only copy of userID's session.
func (s *Store) View(ctx context.Context, userID string, fn func(*Session) error) error {
	e, err := s.entry(userID)
	if err != nil {
		return err
	}
	if err := e.lock(ctx); err != nil {
		return err
	}
	defer e.unlock()

	if err := s.load(ctx, userID, e); err != nil {
		return err
	}
	return fn(e.sess.clone())
}

// Len returns the number of users seen since start.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close closes the backend. Later calls fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.backend.Close()
}
