package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	transfersPath   = "/api/v1/transfers"
	healthPath      = "/health"
	maxResponseBody = 64 << 10
)

// ErrInvalidResponse marks a response that could not be trusted.
var ErrInvalidResponse = errors.New("invalid submission response")

// Submitter sends a single transfer to the custody service. A returned error
// and a result with Success=false are both submission failures.
type Submitter interface {
	Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error)
}

// Client submits transfers over HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient constructs a Client. A zero timeout leaves the request bounded
// only by ctx.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the configured endpoint root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Submit posts req with the transfer id as the idempotency key so a replay of
// an already accepted transfer is answered from the receiver's record.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("encode transfer: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+transfersPath, bytes.NewReader(body))
	if err != nil {
		return SubmitResult{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.ID)
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("submit transfer: %w", err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp)
}

func decodeResponse(resp *http.Response) (SubmitResult, error) {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return SubmitResult{}, fmt.Errorf("read response: %w", err)
	}

	var payload SubmitResponse
	decodeErr := json.Unmarshal(data, &payload)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && strings.TrimSpace(payload.Error) != "" {
			return SubmitResult{Success: false, Error: strings.TrimSpace(payload.Error)}, nil
		}
		return SubmitResult{}, fmt.Errorf("submit transfer: unexpected status %s", resp.Status)
	}
	if decodeErr != nil {
		return SubmitResult{}, fmt.Errorf("%w: %v", ErrInvalidResponse, decodeErr)
	}
	if payload.Success == nil {
		return SubmitResult{}, fmt.Errorf("%w: missing success field", ErrInvalidResponse)
	}
	return SubmitResult{Success: *payload.Success, Error: strings.TrimSpace(payload.Error)}, nil
}

// Ping checks the receiver health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ping remote: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ping remote: unexpected status %s", resp.Status)
	}
	return nil
}
