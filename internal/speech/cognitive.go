package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Conceptual-Machines/readaloud-api/internal/apperr"
	"github.com/getsentry/sentry-go"
)

const (
	translatorEndpoint   = "https://api.cognitive.microsofttranslator.com/translate"
	translatorAPIVersion = "3.0"
	speechEndpointFormat = "https://%s.tts.speech.microsoft.com/cognitiveservices/v1"

	providerTranslator = "azure-translator"
	providerSpeech     = "azure-speech"

	backendCognitive = "azure-cognitive-services"

	httpTimeout      = 30 * time.Second
	maxErrorBodySize = 2048
)

// CognitiveConfig holds Azure Cognitive Services credentials.
type CognitiveConfig struct {
	SpeechKey        string
	SpeechRegion     string
	TranslatorKey    string
	TranslatorRegion string

	// Endpoint overrides, mainly for tests
	SpeechURL     string
	TranslatorURL string
}

// CognitiveService translates and synthesizes by calling Azure REST APIs directly.
type CognitiveService struct {
	cfg        CognitiveConfig
	httpClient *http.Client
}

// NewCognitiveService creates a service. A nil client uses a 30s-timeout default.
func NewCognitiveService(cfg CognitiveConfig, httpClient *http.Client) *CognitiveService {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: httpTimeout}
	}
	if cfg.TranslatorURL == "" {
		cfg.TranslatorURL = translatorEndpoint
	}
	if cfg.SpeechURL == "" && cfg.SpeechRegion != "" {
		cfg.SpeechURL = fmt.Sprintf(speechEndpointFormat, cfg.SpeechRegion)
	}
	return &CognitiveService{cfg: cfg, httpClient: httpClient}
}

// Name returns the backend name
func (s *CognitiveService) Name() string {
	return backendCognitive
}

// Synthesize translates when req.TranslateTo is set, then synthesizes speech.
func (s *CognitiveService) Synthesize(ctx context.Context, req *Request) (*Result, error) {
	if s.cfg.SpeechKey == "" || s.cfg.SpeechRegion == "" {
		return nil, apperr.New(apperr.KindConfig, "Missing AZURE_SPEECH_KEY or AZURE_SPEECH_REGION env vars.")
	}

	span := sentry.StartSpan(ctx, "speech.synthesize")
	defer span.Finish()
	started := time.Now()

	text, language := req.Text, req.Language
	if wantsTranslation(req.TranslateTo) {
		translated, lang, err := s.Translate(ctx, req.Text, req.Language, req.TranslateTo)
		if err != nil {
			span.Status = sentry.SpanStatusInternalError
			return nil, err
		}
		text, language = translated, lang
	}

	voice := ResolveVoice(language, req.Voice)
	format := FormatFor(req.Format)
	audio, err := s.synthesize(ctx, text, language, voice, format)
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		return nil, err
	}

	span.Status = sentry.SpanStatusOK
	return &Result{
		RequestID:        req.RequestID,
		AudioBase64:      base64.StdEncoding.EncodeToString(audio),
		AudioContentType: format.MIME,
		Language:         language,
		Voice:            voice,
		Source:           SourceAzureTTS,
		LatencyMs:        time.Since(started).Milliseconds(),
	}, nil
}

func wantsTranslation(target string) bool {
	return target != "" && target != "none"
}

type translateItem struct {
	Text string `json:"Text"`
}

type translateResponse []struct {
	Translations []struct {
		Text string `json:"text"`
		To   string `json:"to"`
	} `json:"translations"`
}

// Translate calls Translator v3 and returns the translated text and its language.
func (s *CognitiveService) Translate(ctx context.Context, text, from, to string) (string, string, error) {
	if s.cfg.TranslatorKey == "" || s.cfg.TranslatorRegion == "" {
		return "", "", apperr.New(apperr.KindConfig, "Translation requested but AZURE_TRANSLATOR_* env vars are missing.")
	}

	endpoint, err := url.Parse(s.cfg.TranslatorURL)
	if err != nil {
		return "", "", apperr.Wrap(apperr.KindConfig, "Invalid translator endpoint.", err)
	}
	q := endpoint.Query()
	q.Set("api-version", translatorAPIVersion)
	q.Set("to", to)
	if from != "" {
		q.Set("from", from)
	}
	endpoint.RawQuery = q.Encode()

	body, err := json.Marshal([]translateItem{{Text: text}})
	if err != nil {
		return "", "", apperr.Wrap(apperr.KindInternal, "Failed to encode translation request.", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return "", "", apperr.Wrap(apperr.KindInternal, "Failed to create translation request.", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", s.cfg.TranslatorKey)
	httpReq.Header.Set("Ocp-Apim-Subscription-Region", s.cfg.TranslatorRegion)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return "", "", apperr.FromUpstream(providerTranslator, 0, "", err.Error(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", "", upstreamFailure(providerTranslator, resp)
	}

	var decoded translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", "", apperr.Wrap(apperr.KindParse, "Azure Translator response was not valid JSON.", err)
	}
	if len(decoded) == 0 || len(decoded[0].Translations) == 0 || decoded[0].Translations[0].Text == "" {
		return "", "", apperr.New(apperr.KindEmptyContent, "Azure Translator response missing translated text.")
	}

	t := decoded[0].Translations[0]
	return t.Text, t.To, nil
}

func (s *CognitiveService) synthesize(ctx context.Context, text, language, voice string, format AudioFormat) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.SpeechURL,
		strings.NewReader(BuildSSML(text, language, voice)))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "Failed to create speech request.", err)
	}
	httpReq.Header.Set("Content-Type", "application/ssml+xml")
	httpReq.Header.Set("X-Microsoft-OutputFormat", format.OutputFormat)
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", s.cfg.SpeechKey)
	httpReq.Header.Set("Ocp-Apim-Subscription-Region", s.cfg.SpeechRegion)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperr.FromUpstream(providerSpeech, 0, "", err.Error(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, upstreamFailure(providerSpeech, resp)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.FromUpstream(providerSpeech, resp.StatusCode, "", err.Error(), err)
	}
	if len(audio) == 0 {
		return nil, apperr.New(apperr.KindEmptyContent, "Azure Speech returned no audio.")
	}
	return audio, nil
}

// upstreamFailure classifies a non-200 response, attaching retryAfterS when rate limited.
func upstreamFailure(provider string, resp *http.Response) *apperr.Error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	failure := apperr.FromUpstream(provider, resp.StatusCode, "", strings.TrimSpace(string(snippet)), nil)
	if failure.Kind == apperr.KindRateLimited {
		failure.WithDetails(map[string]any{"retryAfterS": retryAfterSeconds(resp.Header.Get("Retry-After"))})
	}
	return failure
}

func retryAfterSeconds(header string) int {
	if n, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && n > 0 {
		return n
	}
	return DefaultRetryAfterSeconds
}
