// Package aiclient is the HTTP adapter for the text-completion endpoint used
// by prompt-based analysis engines.
package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/analysis"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/pkg/logger"
)

// Client posts chat-style completion requests to a single endpoint.
type Client struct {
	endpoint string
	apiKey   string
	model    string
	http     *http.Client
	limiter  *rate.Limiter
	log      logger.Logger
}

var _ analysis.Completer = (*Client)(nil)

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type requestBody struct {
	Model    string    `json:"model,omitempty"`
	Messages []message `json:"messages"`
}

type responseBody struct {
	Text    string `json:"text"`
	Choices []struct {
		Message message `json:"message"`
		Text    string  `json:"text"`
	} `json:"choices"`
}

// New creates a client for endpoint.
func New(endpoint string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, ErrNoEndpoint
	}
	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: DefaultTimeout},
		limiter:  rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultBurst),
		log:      logger.Named("aiclient"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Complete implements analysis.Completer. Responses may be JSON with a
// top-level "text", OpenAI-style choices, or plain text.
func (c *Client) Complete(ctx context.Context, req analysis.CompletionRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: rate limiter: %w", ErrTransport, err)
	}

	model := req.Model
	if model == "" {
		model = c.model
	}
	payload, err := json.Marshal(requestBody{
		Model: model,
		Messages: []message{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("encoding completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/plain")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %w", ErrTransport, err)
	}
	c.log.Debug(ctx, "completion response",
		logger.Int("status", resp.StatusCode),
		logger.Int("bytes", len(body)),
		logger.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: status %d: %s", ErrTransport, resp.StatusCode, snippet(body))
	}
	return extractText(body)
}

func extractText(body []byte) (string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "", ErrEmptyCompletion
	}
	if trimmed[0] == '{' {
		var rb responseBody
		if err := json.Unmarshal(trimmed, &rb); err == nil {
			if rb.Text != "" {
				return rb.Text, nil
			}
			if len(rb.Choices) > 0 {
				if content := rb.Choices[0].Message.Content; content != "" {
					return content, nil
				}
				if rb.Choices[0].Text != "" {
					return rb.Choices[0].Text, nil
				}
			}
		}
	}
	// Anything else is handed to the parser as-is.
	return string(body), nil
}

func snippet(body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
