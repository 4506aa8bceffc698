// Package ocr orchestrates the upload-then-extract workflow: validate,
// check caches, upload, run OCR, cache the result.
package ocr

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/glyph-ai/glyph/pkg/api"
	"github.com/glyph-ai/glyph/pkg/cache/memory"
	"github.com/glyph-ai/glyph/pkg/config"
	"github.com/glyph-ai/glyph/pkg/fileinfo"
	"github.com/glyph-ai/glyph/pkg/metrics"
	"github.com/glyph-ai/glyph/pkg/models"
)

// resultKey identifies a cached OCR result. The model is part of the key
// so switching models never serves stale text.
type resultKey struct {
	fileID string
	model  string
}

// cachedResult is the part of an OCR response worth keeping.
type cachedResult struct {
	text  string
	usage models.Usage
}

// RunRecorder persists one run for later reporting. Implementations must
// tolerate concurrent calls.
type RunRecorder interface {
	Record(ctx context.Context, rec models.RunRecord) error
}

// Service ties the API client, the two caches and the metrics together.
type Service struct {
	cfg     *config.Config
	client  *api.Client
	uploads *memory.Cache[string, models.UploadRecord]
	results *memory.Cache[resultKey, cachedResult]

	collector *metrics.Collector
	files     *metrics.FileTracker
	recorder  RunRecorder
	logger    *zap.Logger

	// sf collapses concurrent requests for the same content and model
	// into a single upload and OCR call.
	sf singleflight.Group
}

// ServiceOptions configures a Service. Config is required; a nil Logger
// disables logging and a nil Recorder disables run history.
type ServiceOptions struct {
	Config   *config.Config
	Logger   *zap.Logger
	Recorder RunRecorder
}

// NewService wires up a Service from validated configuration.
func NewService(opts ServiceOptions) (*Service, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	creds, err := api.NewCredentials(cfg.APIKey, cfg.APIBaseURL)
	if err != nil {
		return nil, err
	}

	collector := metrics.NewCollector()
	client, err := api.NewClient(api.Options{
		Credentials:        creds,
		Timeout:            cfg.Timeout(),
		Policy:             cfg.Retry.Policy(),
		StreamingThreshold: cfg.StreamingThresholdBytes(),
		Collector:          collector,
		Logger:             logger,
	})
	if err != nil {
		return nil, err
	}

	uploads, err := memory.New[string, models.UploadRecord](cfg.Cache.UploadTTL(), cfg.Cache.UploadMaxEntries)
	if err != nil {
		return nil, err
	}
	results, err := memory.New[resultKey, cachedResult](cfg.Cache.OCRTTL(), cfg.Cache.OCRMaxEntries)
	if err != nil {
		return nil, err
	}

	return &Service{
		cfg:       cfg,
		client:    client,
		uploads:   uploads,
		results:   results,
		collector: collector,
		files:     metrics.NewFileTracker(),
		recorder:  opts.Recorder,
		logger:    logger,
	}, nil
}

// Process runs the full workflow for one file. model may be empty to use
// the configured default. Concurrent calls for identical content and
// model share one network round trip.
func (s *Service) Process(ctx context.Context, f *fileinfo.File, model string) (*models.Outcome, error) {
	if model == "" {
		model = s.cfg.Model
	}
	start := time.Now()

	hash, err := memory.ContentHashFile(f.Path)
	if err != nil {
		// Unhashable content cannot be cached or deduplicated, but the
		// workflow itself can still run.
		s.logger.Warn("content hash failed, caching disabled for this run",
			zap.String("file", f.Path), zap.Error(err))
		outcome, err := s.process(ctx, f, "", model)
		return s.finish(ctx, outcome, "", model, start, err)
	}

	key := hash + "|" + model
	v, err, shared := s.sf.Do(key, func() (any, error) {
		return s.process(ctx, f, hash, model)
	})
	if err != nil {
		return nil, err
	}
	// Copy the shared result so each caller stamps its own duration.
	outcome := *v.(*models.Outcome)
	if shared {
		s.logger.Debug("request coalesced with identical in-flight run",
			zap.String("hash", hash), zap.String("model", model))
	}
	return s.finish(ctx, &outcome, hash, model, start, nil)
}

// process is the cache-aware workflow body. hash may be empty, which
// bypasses both caches.
func (s *Service) process(ctx context.Context, f *fileinfo.File, hash, model string) (*models.Outcome, error) {
	outcome := &models.Outcome{
		Model:     model,
		FileName:  f.Name(),
		FileSize:  f.Size,
		Timestamp: time.Now(),
	}

	fileID, uploadCached := s.lookupUpload(hash, f)
	if !uploadCached {
		resp, err := s.client.UploadFile(ctx, f)
		if err != nil {
			return nil, err
		}
		fileID = resp.ID
		if hash != "" {
			s.uploads.Put(hash, models.UploadRecord{
				FileID:    resp.ID,
				Bytes:     resp.Bytes,
				FileName:  resp.Filename,
				CreatedAt: time.Unix(resp.CreatedAt, 0),
			})
		}
	}
	outcome.FileID = fileID
	outcome.UploadCached = uploadCached

	rk := resultKey{fileID: fileID, model: model}
	if hash != "" {
		if cached, ok := s.results.Get(rk); ok {
			s.logger.Debug("OCR result served from cache",
				zap.String("file_id", fileID), zap.String("model", model))
			outcome.ExtractedText = cached.text
			outcome.Usage = cached.usage
			outcome.ResultCached = true
			return outcome, nil
		}
	}

	resp, err := s.client.ProcessOCR(ctx, fileID, model)
	if err != nil {
		// A cached file id can outlive the server-side file. Drop the
		// upload entry so the next run re-uploads.
		if uploadCached && hash != "" {
			s.uploads.Remove(hash)
		}
		return nil, err
	}

	outcome.ExtractedText = resp.ExtractedText()
	outcome.Usage = models.Usage{
		PagesProcessed: resp.UsageInfo.PagesProcessed,
		DocSizeBytes:   int(resp.UsageInfo.DocSizeBytes),
	}
	if hash != "" {
		s.results.Put(rk, cachedResult{
			text:  outcome.ExtractedText,
			usage: outcome.Usage,
		})
	}
	return outcome, nil
}

// lookupUpload checks the upload cache. An empty hash always misses.
func (s *Service) lookupUpload(hash string, f *fileinfo.File) (string, bool) {
	if hash == "" {
		return "", false
	}
	rec, ok := s.uploads.Get(hash)
	if !ok {
		return "", false
	}
	s.logger.Debug("upload served from cache",
		zap.String("file", f.Name()), zap.String("file_id", rec.FileID))
	return rec.FileID, true
}

// finish stamps the duration, records file metrics and run history, and
// passes the outcome or error through.
func (s *Service) finish(ctx context.Context, outcome *models.Outcome, hash, model string, start time.Time, err error) (*models.Outcome, error) {
	elapsed := time.Since(start)
	if err != nil {
		return nil, err
	}
	outcome.Duration = elapsed
	s.files.Record(outcome.FileSize, elapsed)

	if s.recorder != nil {
		rec := models.RunRecord{
			FileName:   outcome.FileName,
			FileHash:   hash,
			FileSize:   outcome.FileSize,
			Model:      model,
			Pages:      outcome.Usage.PagesProcessed,
			DurationMs: elapsed.Milliseconds(),
			CacheHit:   outcome.UploadCached || outcome.ResultCached,
			CreatedAt:  time.Now(),
		}
		if rerr := s.recorder.Record(ctx, rec); rerr != nil {
			s.logger.Warn("run history write failed", zap.Error(rerr))
		}
	}
	return outcome, nil
}

// Redacted returns the redacted API credential for diagnostics.
func (s *Service) Redacted() string { return s.client.Redacted() }

// MetricsSnapshot returns the API call counters.
func (s *Service) MetricsSnapshot() metrics.Snapshot { return s.collector.Snapshot() }

// FileMetricsSummary returns the per-file latency and throughput summary.
func (s *Service) FileMetricsSummary() metrics.FileSummary { return s.files.Summary() }

// CacheStats returns the counters of both caches.
func (s *Service) CacheStats() (upload, result memory.Stats) {
	return s.uploads.Stats(), s.results.Stats()
}
