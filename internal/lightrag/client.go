// Package lightrag talks to a LightRAG server: it inserts documents, waits
// for the indexing pipeline to drain and runs retrieval queries.
package lightrag

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

	"github.com/trialmatch/trialrag/internal/metrics"
	"github.com/trialmatch/trialrag/internal/pkg/errors"
	"github.com/trialmatch/trialrag/internal/pkg/logger"
)

// Client is an HTTP client for the LightRAG server API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	poll       time.Duration
	finalize   time.Duration
	log        *logger.Logger
	metrics    *metrics.Metrics
}

// Config configures the client.
type Config struct {
	// BaseURL is the base URL of the LightRAG server.
	BaseURL string

	// APIKey is sent as X-API-Key when set.
	APIKey string

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// RequestsPerSecond throttles outgoing requests. Zero disables throttling.
	RequestsPerSecond float64

	// FinalizePoll is the interval between pipeline status checks.
	FinalizePoll time.Duration

	// FinalizeTimeout bounds the wait for the pipeline to drain.
	FinalizeTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:         "http://localhost:9621",
		Timeout:         5 * time.Minute,
		FinalizePoll:    2 * time.Second,
		FinalizeTimeout: 30 * time.Minute,
	}
}

// New creates a new LightRAG client.
func New(cfg Config, log *logger.Logger, m *metrics.Metrics) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.FinalizePoll == 0 {
		cfg.FinalizePoll = def.FinalizePoll
	}
	if cfg.FinalizeTimeout == 0 {
		cfg.FinalizeTimeout = def.FinalizeTimeout
	}
	if log == nil {
		log = logger.Default()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		poll:       cfg.FinalizePoll,
		finalize:   cfg.FinalizeTimeout,
		log:        log.WithComponent("lightrag"),
		metrics:    m,
	}
}

// InsertRequest is the body of a text insertion.
type InsertRequest struct {
	Text       string `json:"text"`
	FileSource string `json:"file_source,omitempty"`
	ID         string `json:"id,omitempty"`
}

// InsertResponse is the server's reply to an insertion.
type InsertResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	TrackID string `json:"track_id,omitempty"`
}

// PipelineStatus reports the indexing pipeline state.
type PipelineStatus struct {
	Busy          bool   `json:"busy"`
	JobName       string `json:"job_name"`
	Docs          int    `json:"docs"`
	Batches       int    `json:"batchs"`
	CurrentBatch  int    `json:"cur_batch"`
	LatestMessage string `json:"latest_message"`
}

// QueryRequest is the body of a retrieval query.
type QueryRequest struct {
	Query string `json:"query"`
	QueryParam
}

// QueryResponse is the server's reply to a query.
type QueryResponse struct {
	Response string `json:"response"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// APIError is a non-2xx reply.
type APIError struct {
	StatusCode int    `json:"-"`
	Detail     string `json:"detail"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Detail)
}

// Insert adds a document. The server deduplicates by content, so repeating
// an insert leaves the store unchanged.
func (c *Client) Insert(ctx context.Context, text, id, sourcePath string) error {
	start := time.Now()
	var resp InsertResponse
	err := c.post(ctx, "/documents/text", InsertRequest{Text: text, FileSource: sourcePath, ID: id}, &resp)
	if err == nil && resp.Status == "failure" {
		err = fmt.Errorf("server rejected document: %s", resp.Message)
	}
	c.metrics.ObserveSink("insert", time.Since(start), err)
	if err != nil {
		return errors.SinkError("insert failed", err).WithDetail("id", id)
	}
	return nil
}

// Finalize waits until the server's indexing pipeline is idle.
func (c *Client) Finalize(ctx context.Context) error {
	start := time.Now()
	err := c.waitIdle(ctx)
	c.metrics.ObserveSink("finalize", time.Since(start), err)
	if err != nil {
		return errors.SinkError("finalize failed", err)
	}
	return nil
}

func (c *Client) waitIdle(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.finalize)
	defer cancel()

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		status, err := c.PipelineStatus(ctx)
		if err != nil {
			return err
		}
		if !status.Busy {
			return nil
		}
		c.log.Debug("Pipeline busy",
			"job", status.JobName,
			"batch", status.CurrentBatch,
			"batches", status.Batches,
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("pipeline still busy: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// PipelineStatus returns the current pipeline state.
func (c *Client) PipelineStatus(ctx context.Context) (*PipelineStatus, error) {
	var status PipelineStatus
	if err := c.get(ctx, "/documents/pipeline_status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Query runs a retrieval query and returns the raw response text.
func (c *Client) Query(ctx context.Context, query string, param QueryParam) (string, error) {
	start := time.Now()
	var resp QueryResponse
	err := c.post(ctx, "/query", QueryRequest{Query: query, QueryParam: param}, &resp)
	c.metrics.ObserveSink("query", time.Since(start), err)
	if err != nil {
		return "", errors.SinkError("query failed", err)
	}
	return resp.Response, nil
}

// Health checks if the server is healthy.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.get(ctx, "/health", &resp); err != nil {
		return nil, errors.Wrap(errors.CodeUnavailable, "health check failed", err)
	}
	return &resp, nil
}

// get performs a GET request.
func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	return c.do(req, result)
}

// post performs a POST request.
func (c *Client) post(ctx context.Context, path string, body, result interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return c.do(req, result)
}

// do executes a request.
func (c *Client) do(req *http.Request, result interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Detail == "" {
			apiErr.Detail = strings.TrimSpace(string(body))
		}
		return apiErr
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}
