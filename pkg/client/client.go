package client

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

	"github.com/benthamhq/bentham/pkg/orchestrator"
	"github.com/benthamhq/bentham/pkg/types"
)

// APIError is a non-2xx response from the server
type APIError struct {
	StatusCode int
	Code       types.ErrorCode
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// IsNotFound reports whether the error is a 404 from the API
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to the study API over HTTP
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a client for the given base URL and API key secret
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// CreateStudy submits a manifest and returns the admission receipt
func (c *Client) CreateStudy(ctx context.Context, manifest *types.Manifest) (*orchestrator.CreateResult, error) {
	var receipt orchestrator.CreateResult
	if err := c.do(ctx, http.MethodPost, "/v1/studies", manifest, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// ListStudies returns the tenant's studies, newest first
func (c *Client) ListStudies(ctx context.Context) ([]*orchestrator.StatusView, error) {
	var listing struct {
		Studies []*orchestrator.StatusView `json:"studies"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/studies", nil, &listing); err != nil {
		return nil, err
	}
	return listing.Studies, nil
}

// GetStudy returns a study's status and progress
func (c *Client) GetStudy(ctx context.Context, studyID string) (*orchestrator.StatusView, error) {
	var view orchestrator.StatusView
	if err := c.do(ctx, http.MethodGet, "/v1/studies/"+studyID, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// GetResults returns a study's per-cell results
func (c *Client) GetResults(ctx context.Context, studyID string) (*orchestrator.ResultsView, error) {
	var view orchestrator.ResultsView
	if err := c.do(ctx, http.MethodGet, "/v1/studies/"+studyID+"/results", nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// GetCosts returns a study's estimate band and accrued spend
func (c *Client) GetCosts(ctx context.Context, studyID string) (*types.CostReport, error) {
	var report types.CostReport
	if err := c.do(ctx, http.MethodGet, "/v1/costs/"+studyID, nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// PauseStudy stops a study from claiming new cells
func (c *Client) PauseStudy(ctx context.Context, studyID string) error {
	return c.do(ctx, http.MethodPost, "/v1/studies/"+studyID+"/pause", nil, nil)
}

// ResumeStudy lets a paused study claim cells again
func (c *Client) ResumeStudy(ctx context.Context, studyID string) error {
	return c.do(ctx, http.MethodPost, "/v1/studies/"+studyID+"/resume", nil, nil)
}

// CancelStudy aborts a study
func (c *Client) CancelStudy(ctx context.Context, studyID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/studies/"+studyID, nil, nil)
}

// Health reports the server's liveness checks
func (c *Client) Health(ctx context.Context) (map[string]interface{}, error) {
	var report map[string]interface{}
	if err := c.do(ctx, http.MethodGet, "/v1/health", nil, &report); err != nil {
		return nil, err
	}
	return report, nil
}

// envelope mirrors the server's uniform response shape
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    types.ErrorCode `json:"code"`
		Message string          `json:"message"`
	} `json:"error"`
}

// do performs one request and decodes the envelope into out. A nil
// out discards the data payload.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}

	if !env.Success {
		apiErr := &APIError{StatusCode: resp.StatusCode, Code: types.ErrCodeUnknown, Message: "unknown error"}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}
