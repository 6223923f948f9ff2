package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Conceptual-Machines/readaloud-api/internal/config"
	"github.com/Conceptual-Machines/readaloud-api/internal/metrics"
	"github.com/Conceptual-Machines/readaloud-api/internal/prompt"
	"github.com/Conceptual-Machines/readaloud-api/internal/rewrite"
	"github.com/Conceptual-Machines/readaloud-api/internal/speech"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type echoRewriter struct{}

func (echoRewriter) Run(_ context.Context, text string, mode prompt.Mode, requestID string) *rewrite.Result {
	return &rewrite.Result{OutputText: "rewritten: " + text, Mode: mode, RequestID: requestID, FallbackText: text}
}

type silentSynthesizer struct{}

func (silentSynthesizer) Name() string { return "silent" }

func (silentSynthesizer) Synthesize(_ context.Context, req *speech.Request) (*speech.Result, error) {
	return &speech.Result{RequestID: req.RequestID, AudioBase64: "AA==", AudioContentType: "audio/mpeg", Source: speech.SourceAzureTTS}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		LLMProvider:       config.ProviderOpenAI,
		LLMMaxTextLength:  8000,
		LLMChunkChars:     4000,
		MaxTTSTextLength:  5000,
		DefaultLanguage:   "en-US",
		AzureSharedSecret: "secret",
		RateLimitRPS:      100,
		RateLimitBurst:    100,
	}
}

func newTestRouter(cfg *config.Config) *gin.Engine {
	return SetupRouter(cfg, Dependencies{
		Rewriter:     echoRewriter{},
		LLMSource:    "openai",
		Speech:       silentSynthesizer{},
		DirectSpeech: silentSynthesizer{},
		Recorder:     metrics.NewRecorder(nil, nil, metrics.NewPrometheus()),
	}, "test")
}

func serve(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestRouterRoutes(t *testing.T) {
	router := newTestRouter(testConfig())

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{"health", http.MethodGet, "/health", "", http.StatusOK, `"status":"ok"`},
		{"runtime metrics", http.MethodGet, "/api/metrics", "", http.StatusOK, `"llm_provider":"openai"`},
		{"llm", http.MethodPost, "/llm", `{"text":"hi"}`, http.StatusOK, `"outputText":"rewritten: hi"`},
		{"llm preflight", http.MethodOptions, "/llm", "", http.StatusNoContent, ""},
		{"tts", http.MethodPost, "/tts", `{"text":"hi"}`, http.StatusOK, `"audioBase64":"AA=="`},
		{"tts preflight", http.MethodOptions, "/tts", "", http.StatusNoContent, ""},
		{"unsigned function call", http.MethodPost, "/api/tts", `{"text":"hi"}`, http.StatusUnauthorized, `"success":false`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
			assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
			assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
		})
	}
}

func TestRouterSignedFunctionCall(t *testing.T) {
	router := newTestRouter(testConfig())

	body := `{"requestId":"f-1","text":"hi"}`
	ts := time.Now().UTC().Format(time.RFC3339Nano)
	req := httptest.NewRequest(http.MethodPost, "/api/tts", strings.NewReader(body))
	req.Header.Set(speech.HeaderTimestamp, ts)
	req.Header.Set(speech.HeaderSignature, speech.Sign("secret", ts, []byte(body)))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"requestId":"f-1"`)
}

func TestRouterFunctionEndpointNeedsSecret(t *testing.T) {
	cfg := testConfig()
	cfg.AzureSharedSecret = ""
	router := newTestRouter(cfg)

	w := serve(router, http.MethodPost, "/api/tts", `{"text":"hi"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouterPrometheusEndpoint(t *testing.T) {
	router := newTestRouter(testConfig())
	serve(router, http.MethodPost, "/llm", `{"text":"hi"}`)

	w := serve(router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `http_requests_total{method="POST",path="/llm",status="200"} 1`)
}

func TestRouterRateLimitsRelay(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitRPS = 1
	cfg.RateLimitBurst = 1
	router := newTestRouter(cfg)

	assert.Equal(t, http.StatusOK, serve(router, http.MethodPost, "/llm", `{"text":"hi"}`).Code)

	w := serve(router, http.MethodPost, "/llm", `{"mode":"summarize","text":"page text","requestId":"r1"}`)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "r1", body["requestId"])
	assert.Equal(t, "summarize", body["mode"])
	assert.Equal(t, "page text", body["fallbackText"])
	errBody := body["error"].(map[string]any)
	assert.Equal(t, "RATE_LIMITED", errBody["code"])
	assert.EqualValues(t, 1, errBody["details"].(map[string]any)["retryAfterS"])

	// /tts shares the client's bucket
	assert.Equal(t, http.StatusTooManyRequests, serve(router, http.MethodPost, "/tts", `{"text":"hi"}`).Code)

	// probes are not limited
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health", "").Code)
}
