// Package config loads and validates glyph configuration.
//
// Configuration comes from a TOML file (config.toml, the native format) or
// a YAML file by extension, with GLYPH_* environment variables overriding
// file values. Values are validated once at load; everything downstream
// trusts the struct.
package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/glyph-ai/glyph/pkg/apierror"
	"github.com/glyph-ai/glyph/pkg/retry"
)

// RetryConfig mirrors retry.Policy with file-friendly field types.
type RetryConfig struct {
	MaxRetries         int     `toml:"max_retries" yaml:"max_retries"`
	BaseDelayMS        int64   `toml:"base_delay_ms" yaml:"base_delay_ms"`
	MaxDelayMS         int64   `toml:"max_delay_ms" yaml:"max_delay_ms"`
	ExponentialBackoff bool    `toml:"exponential_backoff" yaml:"exponential_backoff"`
	JitterFactor       float64 `toml:"jitter_factor" yaml:"jitter_factor"`
}

// Policy converts the file representation into a retry.Policy.
func (r RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		MaxRetries:         r.MaxRetries,
		BaseDelay:          time.Duration(r.BaseDelayMS) * time.Millisecond,
		MaxDelay:           time.Duration(r.MaxDelayMS) * time.Millisecond,
		ExponentialBackoff: r.ExponentialBackoff,
		JitterFactor:       r.JitterFactor,
	}
}

// CacheConfig bounds the two in-process caches.
type CacheConfig struct {
	UploadTTLSeconds int `toml:"upload_ttl_seconds" yaml:"upload_ttl_seconds"`
	UploadMaxEntries int `toml:"upload_max_entries" yaml:"upload_max_entries"`
	OCRTTLSeconds    int `toml:"ocr_ttl_seconds" yaml:"ocr_ttl_seconds"`
	OCRMaxEntries    int `toml:"ocr_max_entries" yaml:"ocr_max_entries"`
}

// UploadTTL returns the upload cache TTL.
func (c CacheConfig) UploadTTL() time.Duration { return time.Duration(c.UploadTTLSeconds) * time.Second }

// OCRTTL returns the OCR result cache TTL.
func (c CacheConfig) OCRTTL() time.Duration { return time.Duration(c.OCRTTLSeconds) * time.Second }

// Config holds all glyph configuration.
type Config struct {
	APIKey               string      `toml:"api_key" yaml:"api_key"`
	APIBaseURL           string      `toml:"api_base_url" yaml:"api_base_url"`
	Model                string      `toml:"model" yaml:"model"`
	TimeoutSeconds       int         `toml:"timeout_seconds" yaml:"timeout_seconds"`
	MaxFileSizeMB        int64       `toml:"max_file_size_mb" yaml:"max_file_size_mb"`
	StreamingThresholdMB int64       `toml:"streaming_threshold_mb" yaml:"streaming_threshold_mb"`
	LogLevel             string      `toml:"log_level" yaml:"log_level"`
	DBPath               string      `toml:"db_path" yaml:"db_path"`
	Retry                RetryConfig `toml:"retry" yaml:"retry"`
	Cache                CacheConfig `toml:"cache" yaml:"cache"`
}

// Default returns a Config with the stock values.
func Default() *Config {
	return &Config{
		APIBaseURL:           "https://api.mistral.ai",
		Model:                "mistral-ocr-latest",
		TimeoutSeconds:       30,
		MaxFileSizeMB:        100,
		StreamingThresholdMB: 50,
		LogLevel:             "info",
		DBPath:               "glyph.db",
		Retry: RetryConfig{
			MaxRetries:         3,
			BaseDelayMS:        1000,
			MaxDelayMS:         10000,
			ExponentialBackoff: true,
			JitterFactor:       0.1,
		},
		Cache: CacheConfig{
			UploadTTLSeconds: 3600,
			UploadMaxEntries: 100,
			OCRTTLSeconds:    7200,
			OCRMaxEntries:    200,
		},
	}
}

// Load reads configuration from path. An empty path searches the default
// locations and falls back to pure defaults plus env overrides; an
// explicit path that does not exist is an error.
func Load(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadLocal reads configuration for commands that never call the API,
// so credentials are not required.
func LoadLocal(path string) (*Config, error) {
	return load(path)
}

func load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, apierror.Wrap(apierror.KindConfiguration, err, "reading config file %s", path)
		}
		expanded := []byte(os.ExpandEnv(string(data)))
		if err := unmarshalByExt(path, expanded, cfg); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func unmarshalByExt(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return apierror.Wrap(apierror.KindConfiguration, err, "parsing %s", path)
		}
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return apierror.Wrap(apierror.KindConfiguration, err, "parsing %s", path)
		}
	}
	return nil
}

// findConfigFile searches the working directory, then XDG config dirs.
func findConfigFile() string {
	candidates := []string{"config.toml", "config.yaml", "config.yml"}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}

	var dirs []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		dirs = append(dirs, filepath.Join(xdg, "glyph"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", "glyph"))
	}
	for _, d := range dirs {
		for _, c := range candidates {
			p := filepath.Join(d, c)
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
	}
	return ""
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GLYPH_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("GLYPH_API_BASE_URL"); v != "" {
		c.APIBaseURL = v
	}
	if v := os.Getenv("GLYPH_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("GLYPH_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.TimeoutSeconds = n
		}
	}
	if v := os.Getenv("GLYPH_MAX_FILE_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.MaxFileSizeMB = n
		}
	}
	if v := os.Getenv("GLYPH_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("GLYPH_DB_PATH"); v != "" {
		c.DBPath = v
	}
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

// Validate rejects out-of-range configuration before anything runs.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return apierror.New(apierror.KindConfiguration, "api_key must not be empty (set GLYPH_API_KEY or api_key in config)")
	}
	if strings.ContainsAny(c.APIKey, " \t\n\r") {
		return apierror.New(apierror.KindConfiguration, "api_key must not contain whitespace")
	}

	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Host == "" {
		return apierror.New(apierror.KindConfiguration, "api_base_url must be a valid URL, got %q", c.APIBaseURL)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return apierror.New(apierror.KindConfiguration, "api_base_url must use http(s), got %q", u.Scheme)
	}

	if c.Model == "" {
		return apierror.New(apierror.KindConfiguration, "model must not be empty")
	}
	if c.TimeoutSeconds < 1 || c.TimeoutSeconds > 300 {
		return apierror.New(apierror.KindConfiguration, "timeout_seconds must be between 1 and 300, got %d", c.TimeoutSeconds)
	}
	if c.MaxFileSizeMB < 1 || c.MaxFileSizeMB > 100 {
		return apierror.New(apierror.KindConfiguration, "max_file_size_mb must be between 1 and 100, got %d", c.MaxFileSizeMB)
	}
	if c.StreamingThresholdMB < 1 {
		return apierror.New(apierror.KindConfiguration, "streaming_threshold_mb must be positive, got %d", c.StreamingThresholdMB)
	}
	if !validLogLevels[c.LogLevel] {
		return apierror.New(apierror.KindConfiguration, "log_level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	if err := c.Retry.Policy().Validate(); err != nil {
		return err
	}
	if c.Cache.UploadTTLSeconds <= 0 || c.Cache.OCRTTLSeconds <= 0 {
		return apierror.New(apierror.KindConfiguration, "cache TTLs must be positive")
	}
	if c.Cache.UploadMaxEntries <= 0 || c.Cache.OCRMaxEntries <= 0 {
		return apierror.New(apierror.KindConfiguration, "cache entry bounds must be positive")
	}
	return nil
}

// Timeout returns the per-request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// MaxFileSizeBytes returns the file size bound in bytes.
func (c *Config) MaxFileSizeBytes() int64 {
	return c.MaxFileSizeMB * 1024 * 1024
}

// StreamingThresholdBytes returns the streamed-upload threshold in bytes.
func (c *Config) StreamingThresholdBytes() int64 {
	return c.StreamingThresholdMB * 1024 * 1024
}
