package surface

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/benthamhq/bentham/pkg/types"
)

// maxResponseBytes caps how much of an upstream body is read
const maxResponseBytes = 16 << 20

// restChatAdapter talks to OpenAI-compatible JSON chat APIs. Perplexity
// style citation arrays are picked up when present.
type restChatAdapter struct {
	id      string
	baseURL string
	model   string
	apiKey  string
	client  *http.Client
}

func newRESTChatAdapter(def Definition) (Adapter, error) {
	if def.BaseURL == "" {
		return nil, fmt.Errorf("surface %s: baseUrl is required for restchat", def.ID)
	}

	return &restChatAdapter{
		id:      def.ID,
		baseURL: strings.TrimRight(def.BaseURL, "/"),
		model:   def.Model,
		apiKey:  os.Getenv(def.APIKeyEnv),
		client:  &http.Client{},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Citations []string `json:"citations"`
}

// Query executes one prompt via the chat completions endpoint
func (a *restChatAdapter) Query(ctx context.Context, req *Request) (*Response, error) {
	model := a.model
	if req.Model != "" {
		model = req.Model
	}

	messages := make([]chatMessage, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.History {
		messages = append(messages, chatMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Query})

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, NewError(types.ErrCodeUnknown, fmt.Sprintf("failed to encode request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, NewError(types.ErrCodeUnknown, fmt.Sprintf("failed to build request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	a.setIdentity(httpReq, req)

	start := time.Now()
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()
	ttfb := time.Since(start).Milliseconds()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, classifyTransport(err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, NewError(types.ErrCodeUnknown, "upstream returned malformed JSON")
	}
	if len(parsed.Choices) == 0 {
		return nil, NewError(types.ErrCodeUnknown, "completion contained no choices")
	}

	out := &Response{
		Text:      parsed.Choices[0].Message.Content,
		TokensIn:  parsed.Usage.PromptTokens,
		TokensOut: parsed.Usage.CompletionTokens,
		TTFBMs:    ttfb,
	}
	for i, url := range parsed.Citations {
		out.Citations = append(out.Citations, types.Citation{URL: url, Position: i + 1})
	}
	if req.Evidence == types.EvidenceFull {
		out.Raw = json.RawMessage(raw)
	}

	return out, nil
}

// HealthCheck probes the models endpoint without spending tokens
func (a *restChatAdapter) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/models", nil)
	if err != nil {
		return NewError(types.ErrCodeUnknown, fmt.Sprintf("failed to build request: %v", err))
	}
	a.setIdentity(httpReq, nil)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return classifyStatus(resp.StatusCode)
}

// Close releases pooled connections
func (a *restChatAdapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

func (a *restChatAdapter) setIdentity(httpReq *http.Request, req *Request) {
	if a.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	}
	if req == nil {
		return
	}
	if req.UserAgent != "" {
		httpReq.Header.Set("User-Agent", req.UserAgent)
	}
	if req.SessionID != "" {
		httpReq.Header.Set("X-Session-Id", req.SessionID)
	}
}

// classifyTransport maps errors from the HTTP client to the taxonomy
func classifyTransport(err error) *Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(types.ErrCodeTimeout, "request deadline exceeded")
	case errors.Is(err, context.Canceled):
		return NewError(types.ErrCodeCancelled, "request cancelled")
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewError(types.ErrCodeTimeout, "network timeout")
	}

	return NewError(types.ErrCodeNetwork, fmt.Sprintf("transport failure: %v", err))
}

// classifyStatus maps upstream HTTP statuses to the taxonomy. Upstream
// bodies never reach error messages.
func classifyStatus(status int) *Error {
	switch {
	case status == http.StatusTooManyRequests:
		return NewError(types.ErrCodeUpstreamRateLimit, "upstream rate limited")
	case status == http.StatusUnauthorized:
		return NewError(types.ErrCodeSessionExpired, "upstream rejected credentials")
	case status == http.StatusForbidden:
		return NewError(types.ErrCodeAntiBot, "upstream denied access")
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return NewError(types.ErrCodeTimeout, fmt.Sprintf("upstream timeout (%d)", status))
	case status >= 500:
		return NewError(types.ErrCodeNetwork, fmt.Sprintf("upstream error (%d)", status))
	default:
		return NewError(types.ErrCodeUnknown, fmt.Sprintf("unexpected status %d", status))
	}
}
