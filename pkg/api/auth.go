package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/glyph-ai/glyph/pkg/apierror"
)

// Credentials holds the API key and endpoint. The key is never exposed
// through any diagnostic path; use Redacted for logging.
type Credentials struct {
	apiKey  string
	baseURL string
}

// NewCredentials validates and wraps an API key and base URL.
func NewCredentials(apiKey, baseURL string) (Credentials, error) {
	if apiKey == "" {
		return Credentials{}, apierror.New(apierror.KindConfiguration, "api key must not be empty")
	}
	if strings.ContainsAny(apiKey, " \t\n\r") {
		return Credentials{}, apierror.New(apierror.KindConfiguration, "api key must not contain whitespace")
	}
	if baseURL == "" {
		return Credentials{}, apierror.New(apierror.KindConfiguration, "base URL must not be empty")
	}
	return Credentials{apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// BaseURL returns the endpoint with any trailing slash removed.
func (c Credentials) BaseURL() string { return c.baseURL }

// Redacted returns the key with all but a short prefix masked.
func (c Credentials) Redacted() string {
	if len(c.apiKey) > 8 {
		return c.apiKey[:4] + "***"
	}
	return "***"
}

// String implements fmt.Stringer so accidental logging stays redacted.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{key: %s, url: %s}", c.Redacted(), c.baseURL)
}

// apply sets the authentication and content-negotiation headers on a
// request. Compressed responses are requested in gzip, deflate, brotli
// preference order.
func (c Credentials) apply(h http.Header) {
	h.Set("Authorization", "Bearer "+c.apiKey)
	h.Set("Accept-Encoding", "gzip, deflate, br")
}
