package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tendant/simple-image-pipeline/pkg/pipeline"
)

// Error is a failed invocation reported by the pipeline
type Error struct {
	StatusCode int
	Body       pipeline.ErrorBody
}

func (e *Error) Error() string {
	return fmt.Sprintf("invocation failed in %s (status %d): %s", e.Body.Stage, e.StatusCode, e.Body.Message)
}

// Client is an HTTP client for invoking the pipeline
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new pipeline client
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			// Invocations are synchronous and include image processing
			Timeout: 5 * time.Minute,
		},
	}
}

// NewWithHTTPClient creates a new pipeline client with a custom HTTP client
func NewWithHTTPClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// Invoke runs one invocation and returns its result
func (c *Client) Invoke(ctx context.Context, req pipeline.InvocationRequest) (*pipeline.InvocationResult, error) {
	var result pipeline.InvocationResult
	if err := c.do(ctx, http.MethodPost, "/v1/invoke", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Configure sets the pipeline's workspace root
func (c *Client) Configure(ctx context.Context, cfg pipeline.ConfigRequest) error {
	return c.do(ctx, http.MethodPut, "/v1/config", cfg, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	// Marshal request
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	// Create HTTP request
	url := fmt.Sprintf("%s%s", c.baseURL, path)
	httpReq, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	// Execute request
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	// Check status code
	if resp.StatusCode != http.StatusOK {
		var errResp pipeline.ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil || errResp.Error.Message == "" {
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(bodyBytes))
		}
		return &Error{StatusCode: resp.StatusCode, Body: errResp.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
