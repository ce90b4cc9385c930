package surface

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benthamhq/bentham/pkg/types"
)

func completionBody(text string, citations []string) map[string]interface{} {
	return map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": text}},
		},
		"usage": map[string]int{
			"prompt_tokens":     12,
			"completion_tokens": 48,
			"total_tokens":      60,
		},
		"citations": citations,
	}
}

func newTestChatAdapter(t *testing.T, handler http.HandlerFunc) Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	t.Setenv("SURFACE_TEST_KEY", "sk-test-credential")
	adapter, err := newRESTChatAdapter(Definition{
		ID:        "chat-test",
		Kind:      KindRESTChat,
		BaseURL:   server.URL,
		Model:     "gpt-test",
		APIKeyEnv: "SURFACE_TEST_KEY",
	})
	require.NoError(t, err)
	t.Cleanup(func() { adapter.Close() })
	return adapter
}

func TestRESTChatQuery(t *testing.T) {
	var captured struct {
		auth      string
		userAgent string
		session   string
		body      chatRequest
	}

	adapter := newTestChatAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		captured.auth = r.Header.Get("Authorization")
		captured.userAgent = r.Header.Get("User-Agent")
		captured.session = r.Header.Get("X-Session-Id")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured.body))

		json.NewEncoder(w).Encode(completionBody("Asana and Linear lead the category.", []string{
			"https://example.com/review",
			"https://example.com/comparison",
		}))
	})

	temp := 0.2
	resp, err := adapter.Query(context.Background(), &Request{
		Query:        "best project management tools",
		SystemPrompt: "You are a market analyst.",
		History:      []Message{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hello"}},
		Temperature:  &temp,
		MaxTokens:    512,
		SessionID:    "sess-1",
		UserAgent:    "bentham-test-agent",
	})
	require.NoError(t, err)

	assert.Equal(t, "Asana and Linear lead the category.", resp.Text)
	assert.Equal(t, 12, resp.TokensIn)
	assert.Equal(t, 48, resp.TokensOut)
	require.Len(t, resp.Citations, 2)
	assert.Equal(t, types.Citation{URL: "https://example.com/review", Position: 1}, resp.Citations[0])
	assert.Nil(t, resp.Raw)

	assert.Equal(t, "Bearer sk-test-credential", captured.auth)
	assert.Equal(t, "bentham-test-agent", captured.userAgent)
	assert.Equal(t, "sess-1", captured.session)
	assert.Equal(t, "gpt-test", captured.body.Model)
	require.Len(t, captured.body.Messages, 4)
	assert.Equal(t, "system", captured.body.Messages[0].Role)
	assert.Equal(t, "best project management tools", captured.body.Messages[3].Content)
	require.NotNil(t, captured.body.Temperature)
	assert.InDelta(t, 0.2, *captured.body.Temperature, 1e-9)
	assert.Equal(t, 512, captured.body.MaxTokens)
}

func TestRESTChatModelOverride(t *testing.T) {
	var gotModel string
	adapter := newTestChatAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		var body chatRequest
		json.NewDecoder(r.Body).Decode(&body)
		gotModel = body.Model
		json.NewEncoder(w).Encode(completionBody("ok", nil))
	})

	_, err := adapter.Query(context.Background(), &Request{Query: "q", Model: "gpt-override"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-override", gotModel)
}

func TestRESTChatEvidenceFullKeepsRaw(t *testing.T) {
	adapter := newTestChatAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(completionBody("ok", nil))
	})

	resp, err := adapter.Query(context.Background(), &Request{Query: "q", Evidence: types.EvidenceFull})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Raw)
	assert.True(t, json.Valid(resp.Raw))
}

func TestRESTChatStatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   types.ErrorCode
	}{
		{"too many requests", http.StatusTooManyRequests, types.ErrCodeUpstreamRateLimit},
		{"unauthorized", http.StatusUnauthorized, types.ErrCodeSessionExpired},
		{"forbidden", http.StatusForbidden, types.ErrCodeAntiBot},
		{"gateway timeout", http.StatusGatewayTimeout, types.ErrCodeTimeout},
		{"server error", http.StatusInternalServerError, types.ErrCodeNetwork},
		{"unexpected client error", http.StatusBadRequest, types.ErrCodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := newTestChatAdapter(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			_, err := adapter.Query(context.Background(), &Request{Query: "q"})
			var surfErr *Error
			require.ErrorAs(t, err, &surfErr)
			assert.Equal(t, tt.want, surfErr.Code)
		})
	}
}

func TestRESTChatEmptyChoices(t *testing.T) {
	adapter := newTestChatAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
	})

	_, err := adapter.Query(context.Background(), &Request{Query: "q"})
	var surfErr *Error
	require.ErrorAs(t, err, &surfErr)
	assert.Equal(t, types.ErrCodeUnknown, surfErr.Code)
}

func TestRESTChatDeadline(t *testing.T) {
	adapter := newTestChatAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		json.NewEncoder(w).Encode(completionBody("late", nil))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := adapter.Query(ctx, &Request{Query: "q"})
	var surfErr *Error
	require.ErrorAs(t, err, &surfErr)
	assert.Equal(t, types.ErrCodeTimeout, surfErr.Code)
}

func TestRESTChatHealthCheck(t *testing.T) {
	healthy := newTestChatAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/models", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})
	assert.NoError(t, healthy.HealthCheck(context.Background()))

	down := newTestChatAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	err := down.HealthCheck(context.Background())
	var surfErr *Error
	require.ErrorAs(t, err, &surfErr)
	assert.Equal(t, types.ErrCodeNetwork, surfErr.Code)
}

func TestRESTChatRequiresBaseURL(t *testing.T) {
	_, err := newRESTChatAdapter(Definition{ID: "x", Kind: KindRESTChat})
	assert.Error(t, err)
}
