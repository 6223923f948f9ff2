package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/Conceptual-Machines/readaloud-api/internal/apperr"
	"github.com/Conceptual-Machines/readaloud-api/internal/config"
)

// Sourced is implemented by providers whose client-facing label differs from Name
type Sourced interface {
	Source() string
}

// SourceOf returns the label reported to relay clients for p
func SourceOf(p Provider) string {
	if s, ok := p.(Sourced); ok {
		return s.Source()
	}
	return p.Name()
}

// ProviderFactory creates providers based on configuration
type ProviderFactory struct {
	cfg *config.Config
}

// NewProviderFactory creates a new provider factory
func NewProviderFactory(cfg *config.Config) *ProviderFactory {
	return &ProviderFactory{cfg: cfg}
}

// GetProvider returns the provider named by cfg.LLMProvider.
// A provider without credentials is returned as an unconfigured provider so
// that requests fail with CONFIG_ERROR instead of the process refusing to start.
func (f *ProviderFactory) GetProvider(ctx context.Context) (Provider, error) {
	switch strings.ToLower(f.cfg.LLMProvider) {
	case providerNameAzureOpenAI:
		if missing := missingKeys(
			"AZURE_OPENAI_ENDPOINT", f.cfg.AzureOpenAIEndpoint,
			"AZURE_OPENAI_API_KEY", f.cfg.AzureOpenAIAPIKey,
			"AZURE_OPENAI_DEPLOYMENT", f.cfg.AzureOpenAIDeployment,
		); len(missing) > 0 {
			return NewUnconfiguredProvider(providerNameAzureOpenAI, missing), nil
		}
		return NewAzureOpenAIProvider(
			f.cfg.AzureOpenAIEndpoint, f.cfg.AzureOpenAIAPIKey,
			f.cfg.AzureOpenAIDeployment, f.cfg.AzureOpenAIAPIVersion,
		), nil

	case providerNameOpenAI:
		if f.cfg.OpenAIAPIKey == "" {
			return NewUnconfiguredProvider(providerNameOpenAI, []string{"OPENAI_API_KEY"}), nil
		}
		return NewOpenAIProvider(f.cfg.OpenAIAPIKey, f.cfg.OpenAIModel, f.cfg.OpenAIBaseURL), nil

	case providerNameGemini:
		if f.cfg.GeminiAPIKey == "" {
			return NewUnconfiguredProvider(providerNameGemini, []string{"GEMINI_API_KEY"}), nil
		}
		provider, err := NewGeminiProvider(ctx, f.cfg.GeminiAPIKey, f.cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		return provider, nil

	default:
		return nil, fmt.Errorf("unknown provider: %s (allowed: azure-openai, openai, gemini)", f.cfg.LLMProvider)
	}
}

// missingKeys takes key, value pairs and returns the keys whose value is empty
func missingKeys(pairs ...string) []string {
	var missing []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			missing = append(missing, pairs[i])
		}
	}
	return missing
}

// UnconfiguredProvider fails every request with CONFIG_ERROR
type UnconfiguredProvider struct {
	name    string
	missing []string
}

// NewUnconfiguredProvider returns a provider that reports the missing settings
func NewUnconfiguredProvider(name string, missing []string) *UnconfiguredProvider {
	return &UnconfiguredProvider{name: name, missing: missing}
}

// Name returns the provider name
func (p *UnconfiguredProvider) Name() string {
	return p.name
}

// Generate always fails with CONFIG_ERROR
func (p *UnconfiguredProvider) Generate(_ context.Context, _ *GenerationRequest) (*GenerationResponse, error) {
	return nil, apperr.New(apperr.KindConfig,
		fmt.Sprintf("%s is not configured: missing %s", p.name, strings.Join(p.missing, ", "))).
		WithDetails(map[string]any{"provider": p.name, "missing": p.missing})
}
