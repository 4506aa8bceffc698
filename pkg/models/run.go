package models

import "time"

// RunRecord tracks one completed extraction for the run history.
type RunRecord struct {
	ID         int64     `json:"id"`
	FileName   string    `json:"file_name"`
	FileHash   string    `json:"file_hash"`
	FileSize   int64     `json:"file_size"`
	Model      string    `json:"model"`
	Pages      int       `json:"pages"`
	DurationMs int64     `json:"duration_ms"`
	CacheHit   bool      `json:"cache_hit"`
	CreatedAt  time.Time `json:"created_at"`
}

// RunSummary aggregates run history per model.
type RunSummary struct {
	Model         string `json:"model"`
	Files         int    `json:"files"`
	TotalBytes    int64  `json:"total_bytes"`
	TotalPages    int    `json:"total_pages"`
	AvgDurationMs int64  `json:"avg_duration_ms"`
	CacheHits     int    `json:"cache_hits"`
}
