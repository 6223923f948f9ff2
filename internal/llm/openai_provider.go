package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Conceptual-Machines/readaloud-api/internal/apperr"
	"github.com/getsentry/sentry-go"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const (
	// Provider names
	providerNameAzureOpenAI = "azure-openai"
	providerNameOpenAI      = "openai"

	// Source label reported to clients for the Azure mini deployment
	sourceAzureOpenAIMini = "azure-openai-mini"
)

// OpenAIProvider implements the Provider interface using the Chat Completions API,
// either against an Azure OpenAI deployment or the OpenAI API
type OpenAIProvider struct {
	client *openai.Client
	model  string // Deployment name on Azure, model name on OpenAI
	name   string
}

// NewAzureOpenAIProvider creates a provider bound to one Azure OpenAI deployment
func NewAzureOpenAIProvider(endpoint, apiKey, deployment, apiVersion string, opts ...option.RequestOption) *OpenAIProvider {
	base := []option.RequestOption{
		azure.WithEndpoint(strings.TrimRight(endpoint, "/"), apiVersion),
		azure.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	client := openai.NewClient(append(base, opts...)...)
	return &OpenAIProvider{
		client: &client,
		model:  deployment,
		name:   providerNameAzureOpenAI,
	}
}

// NewOpenAIProvider creates a new OpenAI provider. baseURL is optional.
func NewOpenAIProvider(apiKey, model, baseURL string, opts ...option.RequestOption) *OpenAIProvider {
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		base = append(base, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}
	client := openai.NewClient(append(base, opts...)...)
	return &OpenAIProvider{
		client: &client,
		model:  model,
		name:   providerNameOpenAI,
	}
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Source returns the label reported to relay clients
func (p *OpenAIProvider) Source() string {
	if p.name == providerNameAzureOpenAI {
		return sourceAzureOpenAIMini
	}
	return p.name
}

// Generate performs a single chat completion
func (p *OpenAIProvider) Generate(ctx context.Context, request *GenerationRequest) (*GenerationResponse, error) {
	span := sentry.StartSpan(ctx, "llm.chat_completion")
	span.Description = p.model
	span.SetTag("provider", p.name)
	defer span.Finish()

	params := p.buildRequestParams(request)

	var httpResp *http.Response
	apiStart := time.Now()
	completion, err := p.client.Chat.Completions.New(ctx, params, option.WithResponseInto(&httpResp))
	span.SetData("latency_ms", time.Since(apiStart).Milliseconds())

	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		return nil, p.classifyError(err, httpResp)
	}

	if len(completion.Choices) == 0 {
		if failure := p.payloadError(completion.RawJSON(), httpResp); failure != nil {
			span.Status = sentry.SpanStatusInternalError
			return nil, failure
		}
		return nil, apperr.New(apperr.KindEmptyContent, "Completion contained no choices.").
			WithDetails(map[string]any{"provider": p.name})
	}

	span.Status = sentry.SpanStatusOK
	return &GenerationResponse{
		Text:  completion.Choices[0].Message.Content,
		Model: completion.Model,
		Usage: Usage{
			InputTokens:  completion.Usage.PromptTokens,
			OutputTokens: completion.Usage.CompletionTokens,
			TotalTokens:  completion.Usage.TotalTokens,
		},
	}, nil
}

func (p *OpenAIProvider) buildRequestParams(request *GenerationRequest) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(request.SystemPrompt),
			openai.UserMessage(request.UserContent),
		},
		Temperature: openai.Float(request.Temperature),
	}
	if request.MaxOutputTokens > 0 {
		params.MaxTokens = openai.Int(int64(request.MaxOutputTokens))
	}
	return params
}

// classifyError maps an SDK failure onto the error taxonomy.
// A 2xx response that fails to decode is a parse error; everything else goes through FromUpstream.
func (p *OpenAIProvider) classifyError(err error, httpResp *http.Response) *apperr.Error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apperr.FromUpstream(p.name, apiErr.StatusCode, apiErr.Code, apiErr.Message, err)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.FromUpstream(p.name, 0, "", err.Error(), err)
	}

	if httpResp != nil && httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
		return apperr.Wrap(apperr.KindParse, "Failed to parse completion response.", err).
			WithDetails(map[string]any{"provider": p.name})
	}

	status := 0
	if httpResp != nil {
		status = httpResp.StatusCode
	}
	return apperr.FromUpstream(p.name, status, "", err.Error(), err)
}

// completionErrorBody is an error object sent with a success status.
type completionErrorBody struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// payloadError classifies an error object found in a completion without
// choices, so a rate-limit tag is honoured whatever the HTTP status.
func (p *OpenAIProvider) payloadError(raw string, httpResp *http.Response) *apperr.Error {
	var body completionErrorBody
	if err := json.Unmarshal([]byte(raw), &body); err != nil || body.Error == nil {
		return nil
	}
	status := 0
	if httpResp != nil {
		status = httpResp.StatusCode
	}
	return apperr.FromUpstream(p.name, status, body.Error.Code, body.Error.Message, nil)
}
