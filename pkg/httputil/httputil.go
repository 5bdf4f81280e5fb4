// Package httputil provides shared HTTP client construction so that every
// outbound call (LLM, speech, search) carries consistent timeouts and
// tracing.
package httputil

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Standard timeout defaults used across the project.
const (
	// DefaultProviderTimeout is the HTTP timeout for LLM provider calls.
	// Tool-calling rounds can take a while on long conversations.
	DefaultProviderTimeout = 60 * time.Second

	// DefaultToolTimeout is the HTTP timeout for tool calls such as web
	// search. These are short-lived API requests.
	DefaultToolTimeout = 30 * time.Second
)

// NewHTTPClient returns an *http.Client configured with the given timeout
// whose transport records OpenTelemetry client spans.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}
