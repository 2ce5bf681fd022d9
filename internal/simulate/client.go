package simulate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/pipeline"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/types"
)

// StatusError is a non-2xx answer from the service.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// IsStatus reports whether err is a StatusError with the given API code.
func IsStatus(err error, code string) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// Client is a typed client for the report service API.
type Client struct {
	base   string
	http   *http.Client
	stream *http.Client
}

// NewClient creates a client with the given request timeout. Event streams
// are bounded by their context only.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		http:   &http.Client{Timeout: timeout},
		stream: &http.Client{},
	}
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// Stats fetches GET /stats.
func (c *Client) Stats(ctx context.Context) (types.Stats, error) {
	var out types.Stats
	err := c.do(ctx, http.MethodGet, "/stats", nil, &out)
	return out, err
}

// OpenGate opens a quality gate.
func (c *Client) OpenGate(ctx context.Context, req types.OpenGateRequest) (types.GateStatus, error) {
	var out types.GateStatus
	err := c.do(ctx, http.MethodPost, "/api/v1/gates", req, &out)
	return out, err
}

// AddSamples posts one sample batch.
func (c *Client) AddSamples(ctx context.Context, sessionID string, batch types.SampleBatch) (types.GateStatus, error) {
	var out types.GateStatus
	err := c.do(ctx, http.MethodPost, "/api/v1/gates/"+url.PathEscape(sessionID)+"/samples", batch, &out)
	return out, err
}

// Seal seals a session whose gate fired.
func (c *Client) Seal(ctx context.Context, sessionID string, req types.SealRequest) (model.MeasurementSession, error) {
	var out model.MeasurementSession
	err := c.do(ctx, http.MethodPost, "/api/v1/sessions/"+url.PathEscape(sessionID)+"/seal", req, &out)
	return out, err
}

// SubmitJob submits an analysis job.
func (c *Client) SubmitJob(ctx context.Context, req pipeline.SubmitRequest) (types.JobAck, error) {
	var out types.JobAck
	err := c.do(ctx, http.MethodPost, "/api/v1/jobs", req, &out)
	return out, err
}

// GetJob fetches a job.
func (c *Client) GetJob(ctx context.Context, jobID string) (model.PipelineJob, error) {
	var out model.PipelineJob
	err := c.do(ctx, http.MethodGet, "/api/v1/jobs/"+url.PathEscape(jobID), nil, &out)
	return out, err
}

// Balance fetches an account balance.
func (c *Client) Balance(ctx context.Context, accountID string) (int, error) {
	var out types.Balance
	err := c.do(ctx, http.MethodGet, "/api/v1/accounts/"+url.PathEscape(accountID)+"/balance", nil, &out)
	return out.Balance, err
}

// FollowJob reads the job event stream, calling fn for each event, until a
// terminal event arrives or ctx ends. It returns the last event seen.
func (c *Client) FollowJob(ctx context.Context, jobID string, fn func(types.JobEvent)) (types.JobEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/v1/jobs/"+url.PathEscape(jobID)+"/events", http.NoBody)
	if err != nil {
		return types.JobEvent{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		return types.JobEvent{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return types.JobEvent{}, statusError(resp)
	}

	var last types.JobEvent
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		data, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		var ev types.JobEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return last, fmt.Errorf("decoding job event: %w", err)
		}
		last = ev
		if fn != nil {
			fn(ev)
		}
		if ev.Terminal {
			return last, nil
		}
	}
	if err := sc.Err(); err != nil {
		return last, err
	}
	if err := ctx.Err(); err != nil {
		return last, err
	}
	return last, io.ErrUnexpectedEOF
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return statusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s: %w", method, path, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	se := &StatusError{StatusCode: resp.StatusCode}
	var body types.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err == nil {
		se.Code, se.Message = body.Code, body.Message
	} else {
		se.Message = http.StatusText(resp.StatusCode)
	}
	return se
}
