package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"taskflow/internal/graph"
	"taskflow/internal/insight"

	_ "modernc.org/sqlite"
)

// SQLiteBackend stores sessions in a SQLite database.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (and if needed creates) the database at path.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite backend: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("sqlite backend: create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite backend: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite backend: pragma %q: %w", p, err)
		}
	}

	b := &SQLiteBackend{db: db}
	if err := b.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite backend: migration: %w", err)
	}
	return b, nil
}

func (b *SQLiteBackend) migrate() error {
	_, err := b.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			user_id    TEXT PRIMARY KEY,
			graph      TEXT NOT NULL,
			insights   TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`)
	return err
}

func (b *SQLiteBackend) Load(ctx context.Context, userID string) (*Record, bool, error) {
	var graphJSON, insightsJSON, updated string
	err := b.db.QueryRowContext(ctx,
		`SELECT graph, insights, updated_at FROM sessions WHERE user_id = ?`, userID,
	).Scan(&graphJSON, &insightsJSON, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	rec := &Record{Graph: &graph.Graph{}, Insights: &insight.UserInsights{}}
	if err := json.Unmarshal([]byte(graphJSON), rec.Graph); err != nil {
		return nil, false, fmt.Errorf("decode graph: %w", err)
	}
	if err := json.Unmarshal([]byte(insightsJSON), rec.Insights); err != nil {
		return nil, false, fmt.Errorf("decode insights: %w", err)
	}
	rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated)
	if err != nil {
		return nil, false, fmt.Errorf("decode updated_at: %w", err)
	}
	return rec, true, nil
}

func (b *SQLiteBackend) Save(ctx context.Context, userID string, rec *Record) error {
	graphJSON, err := json.Marshal(rec.Graph)
	if err != nil {
		return fmt.Errorf("encode graph: %w", err)
	}
	insightsJSON, err := json.Marshal(rec.Insights)
	if err != nil {
		return fmt.Errorf("encode insights: %w", err)
	}

	if _, err := b.db.ExecContext(ctx, `
		INSERT INTO sessions (user_id, graph, insights, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			graph = excluded.graph,
			insights = excluded.insights,
			updated_at = excluded.updated_at`,
		userID, string(graphJSON), string(insightsJSON), rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
