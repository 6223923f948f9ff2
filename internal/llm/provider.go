package llm

import (
	"context"
)

// Provider defines the interface for text generation backends
// A provider performs exactly one request per Generate call; retries belong to the caller
type Provider interface {
	// Generate sends one system + user message pair and returns the single textual completion.
	// Failures are returned as *apperr.Error so the caller can classify them.
	Generate(ctx context.Context, request *GenerationRequest) (*GenerationResponse, error)

	// Name returns the provider name (e.g., "azure-openai", "gemini")
	Name() string
}

// GenerationRequest contains all parameters needed for one completion
type GenerationRequest struct {
	SystemPrompt    string
	UserContent     string
	Temperature     float64
	MaxOutputTokens int

	// Correlation only, never sent to the backend
	RequestID  string
	Mode       string
	Attempt    int
	ChunkIndex int
	ChunkCount int
}

// Usage reports token counts for one completion
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// Map returns the usage as log/trace fields
func (u Usage) Map() map[string]interface{} {
	return map[string]interface{}{
		"input_tokens":  u.InputTokens,
		"output_tokens": u.OutputTokens,
		"total_tokens":  u.TotalTokens,
	}
}

// GenerationResponse contains the result from the backend
type GenerationResponse struct {
	Text  string `json:"text"`
	Model string `json:"model"`
	Usage Usage  `json:"usage"`
}
