// Package speech turns text into audio through Azure: optional translation,
// then neural text-to-speech, either directly against Cognitive Services or
// through a remote function that shares an HMAC secret with the relay.
package speech

import (
	"context"
	"net/http"

	"github.com/Conceptual-Machines/readaloud-api/internal/config"
)

const (
	// SourceAzureTTS labels successful synthesis responses.
	SourceAzureTTS = "azure-tts"

	// DefaultRetryAfterSeconds is reported when a rate-limited upstream gives no hint.
	DefaultRetryAfterSeconds = 5
)

// Request is the payload sent to a Synthesizer. It doubles as the wire format
// of the remote function call.
type Request struct {
	RequestID   string `json:"requestId"`
	Text        string `json:"text"`
	Language    string `json:"language"`
	Voice       string `json:"voice,omitempty"`
	Format      string `json:"format"`
	TranslateTo string `json:"translateTo,omitempty"`
	Simplify    bool   `json:"simplify"`
	Caller      string `json:"caller,omitempty"`
}

// Result is a synthesized clip, base64 encoded.
type Result struct {
	RequestID        string `json:"requestId"`
	AudioBase64      string `json:"audioBase64"`
	AudioContentType string `json:"audioContentType"`
	Language         string `json:"language"`
	Voice            string `json:"voice"`
	Source           string `json:"source"`
	LatencyMs        int64  `json:"latencyMs"`
}

// Synthesizer produces audio for a request. Failures are *apperr.Error.
type Synthesizer interface {
	Synthesize(ctx context.Context, req *Request) (*Result, error)
	Name() string
}

// New selects the speech backend: the remote function when AZURE_FUNCTION_URL
// is set, otherwise Cognitive Services directly.
func New(cfg *config.Config, httpClient *http.Client) Synthesizer {
	if cfg.AzureFunctionURL != "" {
		return NewFunctionClient(cfg.AzureFunctionURL, cfg.AzureSharedSecret, httpClient)
	}
	return NewDirect(cfg, httpClient)
}

// NewDirect returns the Cognitive Services backend regardless of AZURE_FUNCTION_URL.
// It serves the function side of the signed relay.
func NewDirect(cfg *config.Config, httpClient *http.Client) *CognitiveService {
	return NewCognitiveService(CognitiveConfig{
		SpeechKey:        cfg.AzureSpeechKey,
		SpeechRegion:     cfg.AzureSpeechRegion,
		TranslatorKey:    cfg.AzureTranslatorKey,
		TranslatorRegion: cfg.AzureTranslatorRegion,
	}, httpClient)
}
