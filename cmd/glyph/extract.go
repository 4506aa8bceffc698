package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/glyph-ai/glyph/pkg/apierror"
	"github.com/glyph-ai/glyph/pkg/config"
	"github.com/glyph-ai/glyph/pkg/fileinfo"
	"github.com/glyph-ai/glyph/pkg/models"
	"github.com/glyph-ai/glyph/pkg/ocr"
	"github.com/glyph-ai/glyph/pkg/tracker"
)

// successEnvelope is the machine-readable output on success.
type successEnvelope struct {
	Success bool        `json:"success"`
	Data    extractData `json:"data"`
}

type extractData struct {
	ExtractedText string       `json:"extracted_text"`
	FileName      string       `json:"file_name"`
	FileSizeBytes int64        `json:"file_size_bytes"`
	Model         string       `json:"model"`
	FileID        string       `json:"file_id"`
	DurationMs    int64        `json:"duration_ms"`
	UploadCached  bool         `json:"upload_cached"`
	ResultCached  bool         `json:"result_cached"`
	Usage         models.Usage `json:"usage"`
}

// failureEnvelope is the machine-readable output on failure.
type failureEnvelope struct {
	Success bool         `json:"success"`
	Error   failureError `json:"error"`
}

type failureError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func newExtractCmd() *cobra.Command {
	var (
		configPath  string
		model       string
		jsonOut     bool
		verbose     bool
		showMetrics bool
	)

	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Upload a PDF or image and print the extracted text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := runExtract(cmd.Context(), args[0], configPath, model, jsonOut, verbose, showMetrics)
			if err == nil {
				return nil
			}
			if jsonOut {
				emitFailure(err)
			} else {
				fmt.Fprintln(os.Stderr, "Error:", err)
			}
			return reportedError{err}
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (default: search config.toml)")
	cmd.Flags().StringVar(&model, "model", "", "OCR model (default from config)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit a machine-readable JSON envelope")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "print API and cache metrics after the run")
	return cmd
}

func runExtract(ctx context.Context, path, configPath, model string, jsonOut, verbose, showMetrics bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	logger, err := buildLogger(level)
	if err != nil {
		return err
	}
	defer logger.Sync()

	f, err := fileinfo.Stat(path, cfg.MaxFileSizeBytes())
	if err != nil {
		return err
	}

	var recorder ocr.RunRecorder
	if cfg.DBPath != "" {
		tr, err := tracker.New(cfg.DBPath)
		if err != nil {
			// Run history is best effort; the extraction still runs.
			logger.Warn("run history disabled", zap.Error(err))
		} else {
			defer tr.Close()
			recorder = tr
		}
	}

	svc, err := ocr.NewService(ocr.ServiceOptions{
		Config:   cfg,
		Logger:   logger,
		Recorder: recorder,
	})
	if err != nil {
		return err
	}

	logger.Info("extracting",
		zap.String("file", f.Name()),
		zap.Int64("size", f.Size),
		zap.String("auth", svc.Redacted()),
	)

	out, err := svc.Process(ctx, f, model)
	if err != nil {
		return err
	}

	if out.EmptyText() {
		logger.Warn("document produced no text", zap.String("file", out.FileName))
	}

	if jsonOut {
		emitSuccess(out)
	} else {
		fmt.Println(out.ExtractedText)
	}

	if showMetrics {
		printMetrics(svc)
	}
	return nil
}

func emitSuccess(out *models.Outcome) {
	env := successEnvelope{
		Success: true,
		Data: extractData{
			ExtractedText: out.ExtractedText,
			FileName:      out.FileName,
			FileSizeBytes: out.FileSize,
			Model:         out.Model,
			FileID:        out.FileID,
			DurationMs:    out.Duration.Milliseconds(),
			UploadCached:  out.UploadCached,
			ResultCached:  out.ResultCached,
			Usage:         out.Usage,
		},
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(env)
}

func emitFailure(err error) {
	env := failureEnvelope{
		Success: false,
		Error: failureError{
			Type:    apierror.KindOf(err).String(),
			Message: err.Error(),
		},
	}
	var apiErr *apierror.Error
	if errors.As(err, &apiErr) && apiErr.Err != nil {
		env.Error.Details = apiErr.Err.Error()
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(env)
}

func printMetrics(svc *ocr.Service) {
	snap := svc.MetricsSnapshot()
	uploadStats, resultStats := svc.CacheStats()

	fmt.Fprintf(os.Stderr, "\nAPI calls: %d (%.0f%% success), retries: %d, rate limits: %d, avg %.0fms, %d bytes\n",
		snap.TotalCalls(), snap.SuccessRate(), snap.Retries, snap.RateLimitHits,
		float64(snap.AverageResponseTime.Microseconds())/1000.0, snap.TotalBytesTransferred)
	fmt.Fprintf(os.Stderr, "upload cache: %d hits / %d misses, result cache: %d hits / %d misses\n",
		uploadStats.Hits, uploadStats.Misses, resultStats.Hits, resultStats.Misses)
	fmt.Fprintln(os.Stderr, svc.FileMetricsSummary())
}

// buildLogger creates a stderr logger at the given level so stdout stays
// reserved for the extracted text.
func buildLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, apierror.Wrap(apierror.KindConfiguration, err, "invalid log level %q", level)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zcfg.Build()
	if err != nil {
		return nil, apierror.Wrap(apierror.KindInternal, err, "building logger")
	}
	return logger, nil
}
