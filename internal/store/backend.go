package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"taskflow/internal/config"
	"taskflow/internal/fileutil"
	"taskflow/internal/graph"
	"taskflow/internal/insight"
)

// Record is the persisted form of a session.
type Record struct {
	Graph     *graph.Graph          `json:"graph"`
	Insights  *insight.UserInsights `json:"insights"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// Backend persists session records.
type Backend interface {
	// Load returns the record for userID; found is false if none exists.
	Load(ctx context.Context, userID string) (rec *Record, found bool, err error)
	// Save replaces the record for userID.
	Save(ctx context.Context, userID string, rec *Record) error
	Close() error
}

// Open returns the backend selected by cfg.
func Open(cfg config.StoreConfig) (Backend, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryBackend(), nil
	case "file":
		return NewFileBackend(cfg.Path)
	case "sqlite":
		return NewSQLiteBackend(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// MemoryBackend keeps records in process memory.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[string]*Record)}
}

func cloneRecord(r *Record) *Record {
	return &Record{
		Graph:     r.Graph.Clone(),
		Insights:  r.Insights.Clone(),
		UpdatedAt: r.UpdatedAt,
	}
}

func (m *MemoryBackend) Load(_ context.Context, userID string) (*Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[userID]
	if !ok {
		return nil, false, nil
	}
	return cloneRecord(rec), true, nil
}

func (m *MemoryBackend) Save(_ context.Context, userID string, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[userID] = cloneRecord(rec)
	return nil
}

func (m *MemoryBackend) Close() error { return nil }

// FileBackend stores one JSON document per user in a directory. File names
// are derived from a hash of the user ID so arbitrary IDs are safe.
type FileBackend struct {
	dir string
}

// NewFileBackend creates dir if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if dir == "" {
		return nil, fmt.Errorf("file backend: directory is required")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("file backend: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

func (f *FileBackend) path(userID string) string {
	sum := sha256.Sum256([]byte(userID))
	return filepath.Join(f.dir, hex.EncodeToString(sum[:16])+".json")
}

func (f *FileBackend) Load(_ context.Context, userID string) (*Record, bool, error) {
	var rec Record
	found, err := fileutil.ReadJSON(f.path(userID), &rec)
	if err != nil || !found {
		return nil, false, err
	}
	return &rec, true, nil
}

func (f *FileBackend) Save(_ context.Context, userID string, rec *Record) error {
	return fileutil.WriteJSON(f.path(userID), rec, 0600)
}

func (f *FileBackend) Close() error { return nil }
