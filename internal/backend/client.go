// Copyright (c) 2025 Noesis Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/noesis-chat/client-core/internal/model"
)

// Configuration constants for the backend API.
const (
	// DefaultBaseURL is where a locally run backend listens.
	DefaultBaseURL = "http://localhost:8000/api/v1"

	// DefaultTimeout bounds a single request.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the attempt count for transient errors.
	DefaultMaxRetries = 3

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay caps the backoff delay.
	retryMaxDelay = 10 * time.Second

	// MaxResponseSize caps a response body read.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB
)

// sharedHTTPClient pools connections across all backend requests.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
	Timeout: DefaultTimeout,
}

// Error variables for common backend failures.
var (
	// ErrRateLimited indicates the backend asked us to slow down.
	ErrRateLimited = errors.New("rate limited")

	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrResponseTooLarge indicates the response body hit the size cap.
	ErrResponseTooLarge = errors.New("response exceeded maximum size")
)

// APIError is a structured error from the backend.
type APIError struct {
	Code    string
	Message string
	Status  int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("backend error (HTTP %d): %s", e.Status, e.Message)
}

// apiErrorResponse is the backend's error envelope.
type apiErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// =============================================================================
// REQUEST / RESPONSE SHAPES
// =============================================================================

// QueryRequest is the body sent to the query endpoint.
type QueryRequest struct {
	SessionID string `json:"session_id"`
	Prompt    string `json:"prompt"`
}

// QueryResponse is the backend's answer to a chat query.
type QueryResponse struct {
	Reply        string            `json:"reply"`
	HasGraphData bool              `json:"has_graph_data"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the backend's HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	userAgent  string
}

// NewClient creates a backend client with default settings.
func NewClient() *Client {
	return &Client{
		baseURL:    DefaultBaseURL,
		httpClient: sharedHTTPClient,
		maxRetries: DefaultMaxRetries,
		userAgent:  "noesis/0.1.0",
	}
}

// WithBaseURL sets a custom base URL for the API.
func (c *Client) WithBaseURL(url string) *Client {
	if url != "" {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
	return c
}

// WithTimeout sets the per-request timeout. Replaces the shared pooled
// client with a dedicated one so the shared timeout stays untouched.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if timeout > 0 {
		dedicated := *sharedHTTPClient
		dedicated.Timeout = timeout
		c.httpClient = &dedicated
	}
	return c
}

// WithMaxRetries sets the maximum number of attempts.
func (c *Client) WithMaxRetries(maxRetries int) *Client {
	if maxRetries > 0 {
		c.maxRetries = maxRetries
	}
	return c
}

// WithHTTPClient swaps the underlying HTTP client. Used by tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// API OPERATIONS
// =============================================================================

// FetchGraph retrieves the full knowledge-graph snapshot.
func (c *Client) FetchGraph(ctx context.Context) (*model.GraphSnapshot, error) {
	var snap model.GraphSnapshot
	if err := c.getJSON(ctx, "/graph", &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Query sends a chat prompt for the given session and returns the
// backend's reply.
func (c *Client) Query(ctx context.Context, sessionID, prompt string) (*QueryResponse, error) {
	req := QueryRequest{SessionID: sessionID, Prompt: prompt}
	var resp QueryResponse
	if err := c.postJSON(ctx, "/query", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// =============================================================================
// TRANSPORT PLUMBING
// =============================================================================

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.doWithRetry(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	}, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	bodyBytes, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, out)
}

// doWithRetry performs the request with exponential backoff on
// transient errors. The request is rebuilt per attempt so its body is
// re-readable.
func (c *Client) doWithRetry(ctx context.Context, build func() (*http.Request, error), out any) error {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoffDelay(attempt)):
			}
		}

		req, err := build()
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("backend: %s %s failed: %v", req.Method, req.URL.Path, err)
			lastErr = err
			continue
		}
		log.Printf("backend: %s %s -> %d (%v)", req.Method, req.URL.Path, resp.StatusCode, time.Since(start))

		body, err := readResponse(resp)
		resp.Body.Close()
		if err != nil {
			return err
		}

		if resp.StatusCode != http.StatusOK {
			apiErr := toError(resp.StatusCode, body)
			if !isRetryable(apiErr) {
				return apiErr
			}
			lastErr = apiErr
			continue
		}

		if out == nil {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// readResponse reads a body with the size cap applied.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, ErrResponseTooLarge
	}
	return body, nil
}

// toError converts a non-200 response to a Go error.
func toError(statusCode int, body []byte) error {
	var envelope apiErrorResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr := &APIError{
			Code:    envelope.Error.Code,
			Message: envelope.Error.Message,
			Status:  statusCode,
		}
		switch statusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, apiErr.Message)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s", ErrRateLimited, apiErr.Message)
		default:
			return apiErr
		}
	}

	switch statusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return &APIError{
			Message: strings.TrimSpace(string(body)),
			Status:  statusCode,
		}
	}
}

// isRetryable reports whether an error should trigger another attempt.
func isRetryable(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 && apiErr.Status < 600
	}
	return false
}

// backoffDelay returns the wait before the given attempt: 500ms, 1s,
// 2s, capped at retryMaxDelay.
func backoffDelay(attempt int) time.Duration {
	delay := retryBaseDelay * time.Duration(1<<uint(attempt-1))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}
