// Package api implements the Mistral Files and OCR clients together with
// the resilience layer around them: per-attempt timeouts, retry with
// backoff, circuit breaking, compressed response handling and metrics.
package api

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/glyph-ai/glyph/pkg/apierror"
	"github.com/glyph-ai/glyph/pkg/metrics"
	"github.com/glyph-ai/glyph/pkg/retry"
)

// Version is stamped into the User-Agent; overridden at build time.
var Version = "dev"

// maxErrorBody bounds how much of an error response is kept for messages.
const maxErrorBody = 2048

// Client is the base API client shared by the Files and OCR calls.
type Client struct {
	httpClient *http.Client
	creds      Credentials
	policy     retry.Policy
	breaker    *gobreaker.CircuitBreaker
	collector  *metrics.Collector
	logger     *zap.Logger

	// streamingThreshold selects streamed vs buffered upload bodies.
	streamingThreshold int64
}

// Options configures a Client.
type Options struct {
	Credentials        Credentials
	Timeout            time.Duration
	Policy             retry.Policy
	StreamingThreshold int64
	Collector          *metrics.Collector
	Logger             *zap.Logger
}

// NewClient builds a Client. The retry policy is validated here so a bad
// configuration fails before any network activity.
func NewClient(opts Options) (*Client, error) {
	if err := opts.Policy.Validate(); err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		return nil, apierror.New(apierror.KindConfiguration, "request timeout must be positive, got %v", opts.Timeout)
	}
	if opts.StreamingThreshold <= 0 {
		return nil, apierror.New(apierror.KindConfiguration, "streaming threshold must be positive, got %d", opts.StreamingThreshold)
	}
	if opts.Collector == nil {
		opts.Collector = metrics.NewCollector()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "mistral-api",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		httpClient:         &http.Client{Timeout: opts.Timeout},
		creds:              opts.Credentials,
		policy:             opts.Policy,
		breaker:            breaker,
		collector:          opts.Collector,
		logger:             opts.Logger,
		streamingThreshold: opts.StreamingThreshold,
	}, nil
}

// Redacted returns the redacted credential for diagnostics.
func (c *Client) Redacted() string { return c.creds.Redacted() }

func (c *Client) endpoint(path string) string {
	return c.creds.BaseURL() + path
}

// do runs one logical API call with the full retry loop. newRequest is
// invoked once per attempt because request bodies are single-use.
// uploadBytes is counted into the transfer metric on success.
func (c *Client) do(ctx context.Context, op string, newRequest func(context.Context) (*http.Request, error), uploadBytes int64) ([]byte, error) {
	var lastErr error

	for attempt := 1; ; attempt++ {
		body, err := c.attempt(ctx, op, newRequest, uploadBytes)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			// Cancellation wins over classification.
			return nil, apierror.Wrap(apierror.KindNetwork, ctx.Err(), "%s cancelled", op)
		}
		lastErr = err

		wait, again := c.policy.Next(attempt, err)
		if !again {
			return nil, annotateAttempts(lastErr, attempt)
		}

		c.collector.RecordRetry()
		c.logger.Warn("retrying API call",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.String("error", err.Error()),
		)
		if err := retry.Wait(ctx, wait); err != nil {
			return nil, apierror.Wrap(apierror.KindNetwork, err, "%s cancelled during backoff", op)
		}
	}
}

// attempt performs a single HTTP exchange and classifies the outcome.
func (c *Client) attempt(ctx context.Context, op string, newRequest func(context.Context) (*http.Request, error), uploadBytes int64) ([]byte, error) {
	req, err := newRequest(ctx)
	if err != nil {
		return nil, err
	}
	c.creds.apply(req.Header)
	req.Header.Set("User-Agent", "glyph/"+Version)

	c.logger.Debug("API request",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.String("auth", c.creds.Redacted()),
	)

	start := time.Now()
	result, err := c.breaker.Execute(func() (any, error) {
		return c.exchange(req)
	})
	elapsed := time.Since(start)

	if err != nil {
		classified := c.classifyFailure(op, err)
		if apierror.KindOf(classified) == apierror.KindRateLimit {
			c.collector.RecordRateLimit(elapsed)
		} else {
			c.collector.RecordFailure(elapsed)
		}
		return nil, classified
	}

	body := result.([]byte)
	c.collector.RecordSuccess(elapsed, uploadBytes+int64(len(body)))
	c.logger.Debug("API response",
		zap.String("op", op),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", elapsed),
	)
	return body, nil
}

// exchange sends the request and returns the decompressed body of a 2xx
// response, or a classified error. Runs inside the circuit breaker so
// network and server failures trip it.
func (c *Client) exchange(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err // classified by classifyFailure
	}
	defer resp.Body.Close()

	reader, err := decodeBody(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		body, err := io.ReadAll(reader)
		if err != nil {
			return nil, apierror.Wrap(apierror.KindNetwork, err, "reading response body")
		}
		return body, nil
	}

	raw, _ := io.ReadAll(io.LimitReader(reader, maxErrorBody))
	return nil, apierror.FromStatus(resp.StatusCode, errorMessage(raw))
}

// classifyFailure maps transport-level errors into the taxonomy. Errors
// already carrying a kind pass through untouched.
func (c *Client) classifyFailure(op string, err error) error {
	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		return err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apierror.Wrap(apierror.KindNetwork, err, "%s suspended by circuit breaker", op)
	}
	// http.Client timeouts and connection failures both land here.
	return apierror.Wrap(apierror.KindNetwork, err, "%s request failed", op)
}

// decodeBody unwraps the negotiated content encoding.
func decodeBody(resp *http.Response) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "", "identity":
		return resp.Body, nil
	case "gzip":
		r, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, apierror.Wrap(apierror.KindNetwork, err, "corrupt gzip response")
		}
		return r, nil
	case "deflate":
		return flate.NewReader(resp.Body), nil
	case "br":
		return brotli.NewReader(resp.Body), nil
	default:
		return nil, apierror.New(apierror.KindNetwork, "unsupported content encoding %q", resp.Header.Get("Content-Encoding"))
	}
}

// errorMessage extracts a message from a JSON error payload, falling back
// to the raw text.
func errorMessage(raw []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	if len(raw) == 0 {
		return "unknown error"
	}
	return string(raw)
}

// annotateAttempts records how many attempts were made before giving up.
func annotateAttempts(err error, attempts int) error {
	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		annotated := *apiErr
		annotated.Attempts = attempts
		return &annotated
	}
	return fmt.Errorf("after %d attempts: %w", attempts, err)
}
