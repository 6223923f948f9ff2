package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/Conceptual-Machines/readaloud-api/internal/apperr"
	"github.com/Conceptual-Machines/readaloud-api/internal/logger"
	"github.com/Conceptual-Machines/readaloud-api/internal/metrics"
	"github.com/Conceptual-Machines/readaloud-api/internal/prompt"
	"github.com/Conceptual-Machines/readaloud-api/internal/speech"
	"github.com/gin-gonic/gin"
)

const callerSigned = "signed"

type ttsRequest struct {
	RequestID      string  `json:"requestId"`
	Text           string  `json:"text"`
	Language       string  `json:"language"`
	SourceLanguage string  `json:"sourceLanguage"`
	Voice          string  `json:"voice"`
	Format         string  `json:"format"`
	TranslateTo    *string `json:"translateTo"`
	TargetLanguage *string `json:"targetLanguage"`
	Simplify       bool    `json:"simplify"`
}

// target prefers targetLanguage over translateTo when both are present
func (r *ttsRequest) target() string {
	switch {
	case r.TargetLanguage != nil:
		return *r.TargetLanguage
	case r.TranslateTo != nil:
		return *r.TranslateTo
	}
	return ""
}

type ttsSuccess struct {
	Success bool `json:"success"`
	*speech.Result
}

type ttsFailure struct {
	Success   bool            `json:"success"`
	RequestID string          `json:"requestId,omitempty"`
	Error     apperr.Envelope `json:"error"`
}

// TTSHandler serves the speech endpoints
type TTSHandler struct {
	synthesizer     speech.Synthesizer
	rewriter        Rewriter
	maxTextLength   int
	defaultLanguage string
	recorder        *metrics.Recorder
	now             func() time.Time
}

// NewTTSHandler creates the speech handler. rewriter is only used for
// simplify:true requests and may be nil, as may recorder.
func NewTTSHandler(
	synthesizer speech.Synthesizer,
	rewriter Rewriter,
	maxTextLength int,
	defaultLanguage string,
	recorder *metrics.Recorder,
) *TTSHandler {
	return &TTSHandler{
		synthesizer:     synthesizer,
		rewriter:        rewriter,
		maxTextLength:   maxTextLength,
		defaultLanguage: defaultLanguage,
		recorder:        recorder,
		now:             time.Now,
	}
}

// Speak validates the request, optionally simplifies the text and returns
// base64 audio from the configured speech backend.
func (h *TTSHandler) Speak(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}

	text := req.Text
	if req.Simplify {
		text = h.simplify(c.Request.Context(), text, req.RequestID)
	}

	h.synthesize(c, &speech.Request{
		RequestID:   req.RequestID,
		Text:        text,
		Language:    h.language(req),
		Voice:       voiceOrDefault(req.Voice),
		Format:      speech.NormalizeFormat(req.Format),
		TranslateTo: req.target(),
		Simplify:    req.Simplify,
	})
}

// SpeakSigned serves the function side of the relay: the caller has already
// been authenticated by the signature middleware and the body is the relay's
// speech.Request.
func (h *TTSHandler) SpeakSigned(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}

	h.synthesize(c, &speech.Request{
		RequestID:   req.RequestID,
		Text:        req.Text,
		Language:    h.language(req),
		Voice:       req.Voice,
		Format:      speech.NormalizeFormat(req.Format),
		TranslateTo: req.target(),
		Simplify:    req.Simplify,
		Caller:      callerSigned,
	})
}

func (h *TTSHandler) bind(c *gin.Context) (*ttsRequest, bool) {
	var req ttsRequest
	if err := decodeBody(c, &req); err != nil {
		h.fail(c, "", http.StatusBadRequest, apperr.Normalize(apperr.OriginRelay, err))
		return nil, false
	}
	if req.RequestID == "" {
		req.RequestID = ServerRequestID(h.now())
	}

	if req.Text == "" {
		h.fail(c, req.RequestID, http.StatusBadRequest, apperr.Normalize(apperr.OriginRelay,
			apperr.New(apperr.KindBadRequest, `Field "text" is required and must be a string.`)))
		return nil, false
	}
	if n := utf8.RuneCountInString(req.Text); n > h.maxTextLength {
		h.fail(c, req.RequestID, http.StatusRequestEntityTooLarge, apperr.Normalize(apperr.OriginRelay,
			apperr.New(apperr.KindTextTooLong, fmt.Sprintf("Max %d chars", h.maxTextLength)).
				WithDetails(map[string]any{"length": n})))
		return nil, false
	}
	return &req, true
}

func (h *TTSHandler) language(req *ttsRequest) string {
	lang := req.Language
	if lang == "" {
		lang = req.SourceLanguage
	}
	if speech.IsValidLanguage(lang) {
		return lang
	}
	return h.defaultLanguage
}

// simplify rewrites text before synthesis; on any failure the original text is spoken.
func (h *TTSHandler) simplify(ctx context.Context, text, requestID string) string {
	if h.rewriter == nil {
		return text
	}
	result := h.rewriter.Run(ctx, text, prompt.ModeSimplify, requestID)
	if h.recorder != nil {
		h.recorder.RecordRewrite(ctx, result)
	}
	if !result.Success() {
		logger.Warn("Simplify before speech failed, speaking original text", logger.Fields{
			"request_id": requestID,
			"code":       string(result.Err.Kind),
		})
		return text
	}
	return result.OutputText
}

func (h *TTSHandler) synthesize(c *gin.Context, req *speech.Request) {
	fields := logger.WithContext(c)
	fields["relay_request_id"] = req.RequestID
	fields["text_length"] = len(req.Text)
	fields["language"] = req.Language
	fields["target_language"] = req.TranslateTo
	fields["format"] = req.Format
	fields["backend"] = h.synthesizer.Name()
	logger.Info("TTS request received", fields)

	result, err := h.synthesizer.Synthesize(c.Request.Context(), req)
	if h.recorder != nil {
		h.recorder.RecordSpeech(h.synthesizer.Name(), err)
	}
	if err != nil {
		env := apperr.Normalize(apperr.OriginSpeech, err)
		status := apperr.StatusFor(env.Code)
		if env.Code == apperr.KindRateLimited {
			status = http.StatusTooManyRequests
		}
		h.fail(c, req.RequestID, status, env)
		return
	}

	c.JSON(http.StatusOK, ttsSuccess{Success: true, Result: result})
}

func (h *TTSHandler) fail(c *gin.Context, requestID string, status int, env apperr.Envelope) {
	fields := logger.WithContext(c)
	fields["relay_request_id"] = requestID
	fields["code"] = string(env.Code)
	fields["status_code"] = status
	logger.Warn("TTS request failed", fields)

	c.JSON(status, ttsFailure{Success: false, RequestID: requestID, Error: env})
}

func voiceOrDefault(voice string) string {
	if voice == "" {
		return "default"
	}
	return voice
}
