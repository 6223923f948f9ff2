package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Conceptual-Machines/readaloud-api/internal/apperr"
	"github.com/getsentry/sentry-go"
)

const (
	backendFunction  = "azure-function"
	providerFunction = "azure-function"
	callerRelay      = "relay"
	defaultAudioMIME = "audio/mpeg"
)

// FunctionClient forwards synthesis to a remote function, signing every request
// with the shared secret.
type FunctionClient struct {
	url        string
	secret     string
	httpClient *http.Client
	now        func() time.Time
}

// NewFunctionClient creates a client for the function at url. A nil client uses a 30s-timeout default.
func NewFunctionClient(url, secret string, httpClient *http.Client) *FunctionClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: httpTimeout}
	}
	return &FunctionClient{url: url, secret: secret, httpClient: httpClient, now: time.Now}
}

// Name returns the backend name
func (c *FunctionClient) Name() string {
	return backendFunction
}

type functionResponse struct {
	Success          *bool  `json:"success"`
	Status           string `json:"status"`
	RequestID        string `json:"requestId"`
	AudioBase64      string `json:"audioBase64"`
	AudioContentType string `json:"audioContentType"`
	Language         string `json:"language"`
	Voice            string `json:"voice"`
	LatencyMs        *int64 `json:"latencyMs"`
	RetryAfterS      *int   `json:"retryAfterS"`
	Audio            *struct {
		Base64 string `json:"base64"`
		MIME   string `json:"mime"`
	} `json:"audio"`
	Meta *struct {
		Voice     string `json:"voice"`
		LatencyMs *int64 `json:"latencyMs"`
	} `json:"meta"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (r *functionResponse) succeeded() bool {
	if r.Success != nil {
		return *r.Success
	}
	return r.Status == "ok"
}

// Synthesize posts req to the function and maps its response.
func (c *FunctionClient) Synthesize(ctx context.Context, req *Request) (*Result, error) {
	span := sentry.StartSpan(ctx, "speech.function_call")
	defer span.Finish()
	started := c.now()

	payload := *req
	if payload.Caller == "" {
		payload.Caller = callerRelay
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "Failed to encode function request.", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConfig, "Invalid AZURE_FUNCTION_URL.", err)
	}
	ts := started.UTC().Format(time.RFC3339Nano)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(HeaderTimestamp, ts)
	httpReq.Header.Set(HeaderSignature, Sign(c.secret, ts, body))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		return nil, apperr.FromUpstream(providerFunction, 0, "", err.Error(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		return nil, apperr.FromUpstream(providerFunction, resp.StatusCode, "", err.Error(), err)
	}

	var decoded functionResponse
	parsed := json.Unmarshal(raw, &decoded) == nil

	switch {
	case resp.StatusCode == http.StatusOK && parsed && decoded.succeeded():
		span.Status = sentry.SpanStatusOK
		return c.result(req, &decoded, started)

	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := DefaultRetryAfterSeconds
		if parsed && decoded.RetryAfterS != nil {
			retryAfter = *decoded.RetryAfterS
		}
		return nil, apperr.New(apperr.KindRateLimited, "Azure rate limited request.").
			WithDetails(map[string]any{"provider": providerFunction, "status": resp.StatusCode, "retryAfterS": retryAfter})

	default:
		span.Status = sentry.SpanStatusInternalError
		code, msg := "", fmt.Sprintf("Azure returned %d", resp.StatusCode)
		if parsed {
			code, msg = decoded.failure(msg)
		}
		return nil, apperr.FromUpstream(providerFunction, resp.StatusCode, code, msg, nil).
			WithDetails(map[string]any{"azureStatus": resp.StatusCode})
	}
}

func (r *functionResponse) failure(fallback string) (string, string) {
	code, msg := r.Code, r.Message
	if r.Error != nil {
		if r.Error.Code != "" {
			code = r.Error.Code
		}
		if r.Error.Message != "" {
			msg = r.Error.Message
		}
	}
	if msg == "" {
		msg = fallback
	}
	return code, msg
}

func (c *FunctionClient) result(req *Request, r *functionResponse, started time.Time) (*Result, error) {
	audio, mime := r.AudioBase64, r.AudioContentType
	if r.Audio != nil {
		if audio == "" {
			audio = r.Audio.Base64
		}
		if mime == "" {
			mime = r.Audio.MIME
		}
	}
	if audio == "" {
		return nil, apperr.New(apperr.KindEmptyContent, "Azure response missing audio payload.").
			WithDetails(map[string]any{"provider": providerFunction})
	}

	out := &Result{
		RequestID:        firstNonEmpty(r.RequestID, req.RequestID),
		AudioBase64:      audio,
		AudioContentType: firstNonEmpty(mime, defaultAudioMIME),
		Language:         firstNonEmpty(r.Language, req.Language),
		Voice:            firstNonEmpty(r.Voice, req.Voice),
		Source:           SourceAzureTTS,
		LatencyMs:        c.now().Sub(started).Milliseconds(),
	}
	if r.Meta != nil {
		out.Voice = firstNonEmpty(r.Voice, r.Meta.Voice, req.Voice)
	}
	switch {
	case r.LatencyMs != nil:
		out.LatencyMs = *r.LatencyMs
	case r.Meta != nil && r.Meta.LatencyMs != nil:
		out.LatencyMs = *r.Meta.LatencyMs
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
