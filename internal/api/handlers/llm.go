package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Conceptual-Machines/readaloud-api/internal/apperr"
	"github.com/Conceptual-Machines/readaloud-api/internal/logger"
	"github.com/Conceptual-Machines/readaloud-api/internal/metrics"
	"github.com/Conceptual-Machines/readaloud-api/internal/observability"
	"github.com/Conceptual-Machines/readaloud-api/internal/prompt"
	"github.com/Conceptual-Machines/readaloud-api/internal/rewrite"
	"github.com/gin-gonic/gin"
)

// Rewriter runs one rewrite. *rewrite.Orchestrator implements it.
type Rewriter interface {
	Run(ctx context.Context, text string, mode prompt.Mode, requestID string) *rewrite.Result
}

type llmRequest struct {
	Mode      string `json:"mode"`
	Text      string `json:"text"`
	RequestID string `json:"requestId"`
}

type llmSuccess struct {
	Success    bool   `json:"success"`
	RequestID  string `json:"requestId"`
	Mode       string `json:"mode"`
	OutputText string `json:"outputText"`
	Source     string `json:"source"`
}

type llmFailure struct {
	Success      bool            `json:"success"`
	RequestID    string          `json:"requestId"`
	Mode         string          `json:"mode"`
	Error        apperr.Envelope `json:"error"`
	FallbackText string          `json:"fallbackText"`
}

// ClientLimiter decides whether a client may make another rewrite request.
// *middleware.ClientLimiter implements it.
type ClientLimiter interface {
	Allow(clientIP string) (ok bool, retryAfterS int)
}

// LLMHandler serves POST /llm
type LLMHandler struct {
	rewriter      Rewriter
	source        string
	maxTextLength int
	recorder      *metrics.Recorder
	langfuse      *observability.LangfuseClient
	limiter       ClientLimiter
	now           func() time.Time
}

// NewLLMHandler creates the rewrite handler. recorder and langfuse may be nil.
func NewLLMHandler(
	rewriter Rewriter,
	source string,
	maxTextLength int,
	recorder *metrics.Recorder,
	langfuse *observability.LangfuseClient,
) *LLMHandler {
	return &LLMHandler{
		rewriter:      rewriter,
		source:        source,
		maxTextLength: maxTextLength,
		recorder:      recorder,
		langfuse:      langfuse,
		now:           time.Now,
	}
}

// WithLimiter rate limits rewrites per client. A denied request still gets
// the full failure body, fallbackText included.
func (h *LLMHandler) WithLimiter(limiter ClientLimiter) *LLMHandler {
	h.limiter = limiter
	return h
}

// Rewrite simplifies or summarizes the posted text
func (h *LLMHandler) Rewrite(c *gin.Context) {
	var req llmRequest
	if err := decodeBody(c, &req); err != nil {
		h.fail(c, "", "", "", apperr.Normalize(apperr.OriginRelay, err))
		return
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = ServerRequestID(h.now())
	}

	text, truncated := rewrite.Clamp(req.Text, h.maxTextLength)
	mode, err := prompt.ParseMode(req.Mode)
	if err != nil {
		h.fail(c, requestID, string(mode), text, apperr.Normalize(apperr.OriginModes, err))
		return
	}
	if strings.TrimSpace(text) == "" {
		h.fail(c, requestID, string(mode), text, apperr.Normalize(apperr.OriginRelay,
			apperr.New(apperr.KindBadRequest, "Text is required and cannot be empty.")))
		return
	}
	if h.limiter != nil {
		if ok, retryAfter := h.limiter.Allow(c.ClientIP()); !ok {
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			h.respond(c, http.StatusTooManyRequests, requestID, string(mode), text,
				apperr.Normalize(apperr.OriginRelay, apperr.New(apperr.KindRateLimited, "Too many requests.").
					WithDetails(map[string]any{"retryAfterS": retryAfter})))
			return
		}
	}

	fields := logger.WithContext(c)
	fields["relay_request_id"] = requestID
	fields["mode"] = string(mode)
	fields["text_length"] = len(text)
	fields["truncated"] = truncated
	logger.Info("Rewrite request received", fields)

	trace := h.langfuse.StartTrace(c.Request.Context(), "rewrite", map[string]interface{}{
		"request_id": requestID,
		"mode":       string(mode),
		"source":     h.source,
	})
	ctx := observability.ContextWithTrace(c.Request.Context(), trace)

	result := h.rewriter.Run(ctx, text, mode, requestID)
	trace.Finish()
	if h.recorder != nil {
		h.recorder.RecordRewrite(ctx, result)
	}

	if !result.Success() {
		h.fail(c, requestID, string(mode), text, apperr.Normalize(apperr.OriginOrchestrator, result.Err))
		return
	}

	c.JSON(http.StatusOK, llmSuccess{
		Success:    true,
		RequestID:  requestID,
		Mode:       string(mode),
		OutputText: result.OutputText,
		Source:     h.source,
	})
}

// fail answers with the error envelope; the (possibly truncated) input goes
// back as fallbackText so the caller can still read something aloud.
func (h *LLMHandler) fail(c *gin.Context, requestID, mode, text string, env apperr.Envelope) {
	status := apperr.StatusFor(env.Code)
	if env.Code == apperr.KindParse {
		status = http.StatusBadRequest
	}
	h.respond(c, status, requestID, mode, text, env)
}

func (h *LLMHandler) respond(c *gin.Context, status int, requestID, mode, text string, env apperr.Envelope) {
	fields := logger.WithContext(c)
	fields["relay_request_id"] = requestID
	fields["mode"] = mode
	fields["code"] = string(env.Code)
	fields["status_code"] = status
	logger.Warn("Rewrite request failed", fields)

	c.JSON(status, llmFailure{
		Success:      false,
		RequestID:    requestID,
		Mode:         mode,
		Error:        env,
		FallbackText: text,
	})
}

// ServerRequestID names requests that arrive without a requestId
func ServerRequestID(now time.Time) string {
	return "server-generated-" + strconv.FormatInt(now.UnixMilli(), 36)
}

// decodeBody unmarshals the JSON body; an empty body decodes as {}.
func decodeBody(c *gin.Context, dst any) error {
	raw, err := c.GetRawData()
	if err != nil {
		return apperr.Wrap(apperr.KindBadRequest, "Could not read request body.", err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
