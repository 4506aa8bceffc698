// Package tracker persists the run history in a local SQLite database.
// Caches are in-process only; the tracker is the one thing glyph writes
// to disk, and it powers the stats command.
package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/glyph-ai/glyph/pkg/models"
)

// Tracker records and queries completed extraction runs.
type Tracker interface {
	// Record stores one completed run.
	Record(ctx context.Context, rec models.RunRecord) error
	// Recent returns the most recent runs, newest first.
	Recent(ctx context.Context, limit int) ([]models.RunRecord, error)
	// Summary returns aggregated run statistics grouped by model.
	Summary(ctx context.Context) ([]models.RunSummary, error)
	// Close releases resources.
	Close() error
}

// SQLiteTracker implements Tracker with a SQLite database.
type SQLiteTracker struct {
	db *sql.DB
}

const createTable = `
CREATE TABLE IF NOT EXISTS run_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	file_name TEXT NOT NULL,
	file_hash TEXT NOT NULL,
	file_size INTEGER NOT NULL,
	model TEXT NOT NULL,
	pages INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	cache_hit INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_runs_time ON run_records(created_at);
CREATE INDEX IF NOT EXISTS idx_runs_hash ON run_records(file_hash);
`

// New creates a SQLiteTracker and runs auto-migration.
func New(dbPath string) (*SQLiteTracker, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open tracker db: %w", err)
	}

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate tracker db: %w", err)
	}

	return &SQLiteTracker{db: db}, nil
}

// Record stores one completed run.
func (t *SQLiteTracker) Record(ctx context.Context, rec models.RunRecord) error {
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO run_records (file_name, file_hash, file_size, model, pages, duration_ms, cache_hit, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.FileName, rec.FileHash, rec.FileSize, rec.Model, rec.Pages, rec.DurationMs, rec.CacheHit, created,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (t *SQLiteTracker) Recent(ctx context.Context, limit int) ([]models.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := t.db.QueryContext(ctx,
		`SELECT id, file_name, file_hash, file_size, model, pages, duration_ms, cache_hit, created_at
		 FROM run_records ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var records []models.RunRecord
	for rows.Next() {
		var r models.RunRecord
		if err := rows.Scan(&r.ID, &r.FileName, &r.FileHash, &r.FileSize, &r.Model, &r.Pages, &r.DurationMs, &r.CacheHit, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Summary returns aggregated run statistics grouped by model.
func (t *SQLiteTracker) Summary(ctx context.Context) ([]models.RunSummary, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT model, COUNT(*), SUM(file_size), SUM(pages), CAST(AVG(duration_ms) AS INTEGER), SUM(cache_hit)
		 FROM run_records GROUP BY model ORDER BY model`,
	)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.RunSummary
	for rows.Next() {
		var s models.RunSummary
		if err := rows.Scan(&s.Model, &s.Files, &s.TotalBytes, &s.TotalPages, &s.AvgDurationMs, &s.CacheHits); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Close releases the database connection.
func (t *SQLiteTracker) Close() error {
	return t.db.Close()
}
