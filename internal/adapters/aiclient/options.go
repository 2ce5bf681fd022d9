package aiclient

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/pkg/logger"
)

// Default client settings.
const (
	DefaultTimeout       = 60 * time.Second
	DefaultRateLimit     = 2.0
	DefaultBurst         = 4
	maxResponseBodyBytes = 4 << 20
)

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sends the key as a bearer token.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithModel sets the default model name used when a request has none.
func WithModel(name string) Option {
	return func(c *Client) { c.model = name }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithRateLimit sets the client-side request rate. A non-positive rps
// disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}
