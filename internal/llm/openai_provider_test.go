package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Conceptual-Machines/readaloud-api/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const completionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o-mini",
  "choices": [
    {"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Short and plain."}}
  ],
  "usage": {"prompt_tokens": 42, "completion_tokens": 7, "total_tokens": 49}
}`

type capturedRequest struct {
	Path   string
	Header http.Header
	Body   map[string]any
}

func newChatServer(t *testing.T, status int, body string) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var captured []capturedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var decoded map[string]any
		_ = json.NewDecoder(r.Body).Decode(&decoded)
		captured = append(captured, capturedRequest{Path: r.URL.Path, Header: r.Header.Clone(), Body: decoded})

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, &captured
}

func sampleRequest() *GenerationRequest {
	return &GenerationRequest{
		SystemPrompt:    "You rewrite web text.",
		UserContent:     "Simplify the following text:\n\nHello.",
		Temperature:     0.25,
		MaxOutputTokens: 400,
		RequestID:       "req-1",
	}
}

func TestNewOpenAIProvider(t *testing.T) {
	provider := NewOpenAIProvider("test-api-key", "gpt-4.1-mini", "")
	require.NotNil(t, provider)
	assert.Equal(t, "openai", provider.Name())
	assert.Equal(t, "openai", provider.Source())
	assert.NotNil(t, provider.client)
}

func TestOpenAIProvider_BuildRequestParams(t *testing.T) {
	provider := NewOpenAIProvider("test-key", "gpt-4.1-mini", "")

	params := provider.buildRequestParams(sampleRequest())
	assert.EqualValues(t, "gpt-4.1-mini", params.Model)
	assert.Len(t, params.Messages, 2)
	assert.InDelta(t, 0.25, params.Temperature.Value, 1e-9)
	assert.EqualValues(t, 400, params.MaxTokens.Value)
}

func TestOpenAIProvider_GenerateSuccess(t *testing.T) {
	server, captured := newChatServer(t, http.StatusOK, completionBody)
	provider := NewOpenAIProvider("sk-test", "gpt-4o-mini", server.URL)

	resp, err := provider.Generate(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "Short and plain.", resp.Text)
	assert.Equal(t, "gpt-4o-mini", resp.Model)
	assert.EqualValues(t, 42, resp.Usage.InputTokens)
	assert.EqualValues(t, 49, resp.Usage.TotalTokens)

	require.Len(t, *captured, 1)
	req := (*captured)[0]
	assert.Equal(t, "/chat/completions", req.Path)
	assert.Equal(t, "gpt-4o-mini", req.Body["model"])
	assert.InDelta(t, 0.25, req.Body["temperature"], 1e-9)
	assert.EqualValues(t, 400, req.Body["max_tokens"])

	messages, ok := req.Body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "user", messages[1].(map[string]any)["role"])
}

func TestOpenAIProvider_GenerateErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantKind  apperr.Kind
		retryable bool
	}{
		{
			name:      "http 429",
			status:    http.StatusTooManyRequests,
			body:      `{"error": {"code": "429", "message": "slow down"}}`,
			wantKind:  apperr.KindRateLimited,
			retryable: true,
		},
		{
			name:      "rate limit tag on non-429",
			status:    http.StatusForbidden,
			body:      `{"error": {"code": "RateLimitReached", "message": "quota"}}`,
			wantKind:  apperr.KindRateLimited,
			retryable: true,
		},
		{
			name:      "rate limit tag in a 200 body",
			status:    http.StatusOK,
			body:      `{"error": {"code": "RateLimitReached", "message": "quota"}}`,
			wantKind:  apperr.KindRateLimited,
			retryable: true,
		},
		{
			name:     "other error object in a 200 body",
			status:   http.StatusOK,
			body:     `{"error": {"code": "content_filter", "message": "blocked"}}`,
			wantKind: apperr.KindUpstream,
		},
		{
			name:     "server error",
			status:   http.StatusInternalServerError,
			body:     `{"error": {"code": "server_error", "message": "boom"}}`,
			wantKind: apperr.KindUpstream,
		},
		{
			name:     "bad request",
			status:   http.StatusBadRequest,
			body:     `{"error": {"code": "invalid_request", "message": "bad"}}`,
			wantKind: apperr.KindUpstream,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, captured := newChatServer(t, tt.status, tt.body)
			provider := NewOpenAIProvider("sk-test", "gpt-4o-mini", server.URL)

			resp, err := provider.Generate(context.Background(), sampleRequest())
			assert.Nil(t, resp)
			require.Error(t, err)

			appErr, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantKind, appErr.Kind)
			assert.Equal(t, tt.retryable, appErr.Retryable)
			assert.Equal(t, tt.status, appErr.Details["status"])
			assert.Len(t, *captured, 1, "the provider itself never retries")
		})
	}
}

func TestOpenAIProvider_GenerateNoChoices(t *testing.T) {
	server, _ := newChatServer(t, http.StatusOK, `{"id": "chatcmpl-2", "model": "gpt-4o-mini", "choices": []}`)
	provider := NewOpenAIProvider("sk-test", "gpt-4o-mini", server.URL)

	_, err := provider.Generate(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindEmptyContent))
}

func TestAzureOpenAIProvider_Generate(t *testing.T) {
	server, captured := newChatServer(t, http.StatusOK, completionBody)
	provider := NewAzureOpenAIProvider(server.URL, "azure-key", "reader-mini", "2024-02-15-preview")
	assert.Equal(t, "azure-openai", provider.Name())
	assert.Equal(t, "azure-openai-mini", provider.Source())

	resp, err := provider.Generate(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "Short and plain.", resp.Text)

	require.Len(t, *captured, 1)
	req := (*captured)[0]
	assert.Contains(t, req.Path, "/openai/deployments/reader-mini/chat/completions")
	assert.Equal(t, "azure-key", req.Header.Get("Api-Key"))
}
