// Package models holds the value objects shared across glyph packages.
package models

import "time"

// Usage carries the vendor-reported OCR usage counts.
type Usage struct {
	PagesProcessed int `json:"pages_processed"`
	DocSizeBytes   int `json:"doc_size_bytes"`
}

// Outcome is the result of one upload-then-OCR operation.
type Outcome struct {
	ExtractedText string        `json:"extracted_text"`
	FileID        string        `json:"file_id"`
	Model         string        `json:"model"`
	FileName      string        `json:"file_name"`
	FileSize      int64         `json:"file_size"`
	Usage         Usage         `json:"usage"`
	Duration      time.Duration `json:"duration_ns"`
	// UploadCached is set when the network upload was skipped entirely.
	UploadCached bool `json:"upload_cached"`
	// ResultCached is set when the OCR call was served from cache.
	ResultCached bool      `json:"result_cached"`
	Timestamp    time.Time `json:"timestamp"`
}

// EmptyText reports whether OCR produced no usable text.
func (o *Outcome) EmptyText() bool {
	for _, r := range o.ExtractedText {
		switch r {
		case ' ', '\t', '\n', '\r':
		default:
			return false
		}
	}
	return true
}

// UploadRecord is what the file-upload cache stores per content hash.
type UploadRecord struct {
	FileID    string    `json:"file_id"`
	Bytes     int64     `json:"bytes"`
	FileName  string    `json:"file_name"`
	CreatedAt time.Time `json:"created_at"`
}
