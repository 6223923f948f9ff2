package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Conceptual-Machines/readaloud-api/internal/apperr"
	"github.com/getsentry/sentry-go"
	"google.golang.org/genai"
)

const (
	providerNameGemini = "gemini"
)

// GeminiProvider implements the Provider interface using Google's Gemini API
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		model:  model,
	}, nil
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return providerNameGemini
}

// Generate performs a single GenerateContent call
func (p *GeminiProvider) Generate(ctx context.Context, request *GenerationRequest) (*GenerationResponse, error) {
	span := sentry.StartSpan(ctx, "llm.generate_content")
	span.Description = p.model
	span.SetTag("provider", providerNameGemini)
	defer span.Finish()

	result, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(request.UserContent), buildGeminiConfig(request))
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		return nil, mapGeminiError(err)
	}

	span.Status = sentry.SpanStatusOK
	response := &GenerationResponse{
		Text:  result.Text(),
		Model: p.model,
	}
	if result.UsageMetadata != nil {
		response.Usage = Usage{
			InputTokens:  int64(result.UsageMetadata.PromptTokenCount),
			OutputTokens: int64(result.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int64(result.UsageMetadata.TotalTokenCount),
		}
	}
	return response, nil
}

func buildGeminiConfig(request *GenerationRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(request.SystemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr(float32(request.Temperature)),
	}
	if request.MaxOutputTokens > 0 {
		config.MaxOutputTokens = int32(request.MaxOutputTokens)
	}
	return config
}

// mapGeminiError classifies an SDK error. Gemini reports quota exhaustion as
// HTTP 429 with status RESOURCE_EXHAUSTED.
func mapGeminiError(err error) *apperr.Error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apperr.FromUpstream(providerNameGemini, apiErr.Code, apiErr.Status, apiErr.Message, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return apperr.FromUpstream(providerNameGemini, apiErrPtr.Code, apiErrPtr.Status, apiErrPtr.Message, err)
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return apperr.Wrap(apperr.KindParse, "Failed to parse completion response.", err).
			WithDetails(map[string]any{"provider": providerNameGemini})
	}
	return apperr.FromUpstream(providerNameGemini, 0, "", err.Error(), err)
}
