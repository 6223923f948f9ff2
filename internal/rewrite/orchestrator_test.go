package rewrite

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/Conceptual-Machines/readaloud-api/internal/apperr"
	"github.com/Conceptual-Machines/readaloud-api/internal/generation"
	"github.com/Conceptual-Machines/readaloud-api/internal/llm"
	"github.com/Conceptual-Machines/readaloud-api/internal/prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGenerator answers each call with callFunc, recording the requests
type fakeGenerator struct {
	requests []llm.GenerationRequest
	callFunc func(n int, req *llm.GenerationRequest) (string, error)
}

func (g *fakeGenerator) Call(_ context.Context, req *llm.GenerationRequest) (string, error) {
	g.requests = append(g.requests, *req)
	if g.callFunc == nil {
		return fmt.Sprintf("out-%d", len(g.requests)), nil
	}
	return g.callFunc(len(g.requests), req)
}

func newTestOrchestrator(g Generator, maxChunkChars int) *Orchestrator {
	return NewOrchestrator(g, prompt.MustDefaultCatalog(), maxChunkChars)
}

// threeParagraphs builds text that splits into exactly three chunks at a 100-char budget.
func threeParagraphs() string {
	return strings.Join([]string{
		strings.Repeat("a", 80),
		strings.Repeat("b", 80),
		strings.Repeat("c", 80),
	}, "\n\n")
}

func TestRunEmptyInput(t *testing.T) {
	g := &fakeGenerator{}
	result := newTestOrchestrator(g, 100).Run(context.Background(), " \n\n ", prompt.ModeSimplify, "req-1")

	require.False(t, result.Success())
	assert.Equal(t, apperr.KindEmptyInput, result.Err.Kind)
	assert.Equal(t, " \n\n ", result.FallbackText)
	assert.Empty(t, g.requests)
}

func TestRunSingleChunkMakesOneCall(t *testing.T) {
	for _, mode := range prompt.Modes() {
		t.Run(string(mode), func(t *testing.T) {
			g := &fakeGenerator{}
			text := "A short paragraph.\n\nAnother short one."

			result := newTestOrchestrator(g, 4000).Run(context.Background(), text, mode, "req-1")

			require.True(t, result.Success())
			assert.Equal(t, "out-1", result.OutputText)
			assert.Equal(t, 1, result.Chunks)
			assert.Equal(t, 1, result.Calls)
			require.Len(t, g.requests, 1)
			assert.Contains(t, g.requests[0].UserContent, text)
			assert.Equal(t, 1, g.requests[0].ChunkIndex)
			assert.Equal(t, 1, g.requests[0].ChunkCount)
			assert.Equal(t, "req-1", g.requests[0].RequestID)
			assert.Equal(t, string(mode), g.requests[0].Mode)
		})
	}
}

func TestRunSimplifyConcatenatesPartials(t *testing.T) {
	g := &fakeGenerator{}

	result := newTestOrchestrator(g, 100).Run(context.Background(), threeParagraphs(), prompt.ModeSimplify, "req-1")

	require.True(t, result.Success())
	assert.Equal(t, "out-1\n\nout-2\n\nout-3", result.OutputText)
	assert.Equal(t, 3, result.Chunks)
	assert.Equal(t, 3, result.Calls, "simplify makes no reduction call")

	for i, r := range g.requests {
		assert.Equal(t, i+1, r.ChunkIndex)
		assert.Equal(t, 3, r.ChunkCount)
		assert.InDelta(t, 0.25, r.Temperature, 1e-9)
		assert.Equal(t, 400, r.MaxOutputTokens)
	}
	assert.Contains(t, g.requests[1].UserContent, strings.Repeat("b", 80))
}

func TestRunSummarizeReducesPartials(t *testing.T) {
	g := &fakeGenerator{}

	result := newTestOrchestrator(g, 100).Run(context.Background(), threeParagraphs(), prompt.ModeSummarize, "req-1")

	require.True(t, result.Success())
	assert.Equal(t, "out-4", result.OutputText)
	assert.Equal(t, 4, result.Calls)
	require.Len(t, g.requests, 4)

	reduction := g.requests[3]
	assert.Equal(t, ReductionChunkIndex, reduction.ChunkIndex)
	assert.Contains(t, reduction.UserContent, "from 3 different sections")
	assert.Contains(t, reduction.UserContent, "out-1\n\nout-2\n\nout-3")
	assert.InDelta(t, 0.3, reduction.Temperature, 1e-9)
	assert.Equal(t, 300, reduction.MaxOutputTokens)
}

func TestRunShortCircuitsOnChunkFailure(t *testing.T) {
	tests := []struct {
		name      string
		failure   *apperr.Error
		retryable bool
	}{
		{"parse error", apperr.New(apperr.KindParse, "Failed to parse completion response."), false},
		{"rate limited", apperr.New(apperr.KindRateLimited, "azure-openai rate limited the request"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &fakeGenerator{
				callFunc: func(n int, _ *llm.GenerationRequest) (string, error) {
					if n == 2 {
						return "", tt.failure
					}
					return "partial", nil
				},
			}

			result := newTestOrchestrator(g, 100).Run(context.Background(), threeParagraphs(), prompt.ModeSummarize, "req-9")

			require.False(t, result.Success())
			assert.Equal(t, tt.failure.Kind, result.Err.Kind)
			assert.Equal(t, tt.retryable, result.Err.Retryable)
			assert.Equal(t, 2, result.Err.Details["chunk_index"])
			assert.Len(t, g.requests, 2, "chunk 3 and the reduction are never called")
			assert.Empty(t, result.OutputText)
			assert.Equal(t, threeParagraphs(), result.FallbackText)
		})
	}
}

// countingProvider answers every request with reply and counts calls
type countingProvider struct {
	reply string
	calls int
}

func (p *countingProvider) Name() string { return "counting" }

func (p *countingProvider) Generate(context.Context, *llm.GenerationRequest) (*llm.GenerationResponse, error) {
	p.calls++
	return &llm.GenerationResponse{Text: p.reply, Model: "test-model"}, nil
}

func TestRunShortSummarizeThroughCaller(t *testing.T) {
	p := &countingProvider{reply: "\n  - A short sentence.  \n"}
	caller := generation.NewCaller(p, generation.WithSleeper(func(context.Context, time.Duration) error {
		t.Fatal("no backoff expected")
		return nil
	}))

	result := NewOrchestrator(caller, prompt.MustDefaultCatalog(), 4000).
		Run(context.Background(), "A short sentence.", prompt.ModeSummarize, "req-1")

	require.True(t, result.Success())
	assert.Equal(t, "- A short sentence.", result.OutputText)
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, 1, result.Calls)
}

func TestRunReductionFailure(t *testing.T) {
	g := &fakeGenerator{
		callFunc: func(n int, _ *llm.GenerationRequest) (string, error) {
			if n == 4 {
				return "", apperr.New(apperr.KindEmptyContent, "Model returned empty content.")
			}
			return "partial", nil
		},
	}

	result := newTestOrchestrator(g, 100).Run(context.Background(), threeParagraphs(), prompt.ModeSummarize, "req-1")

	require.False(t, result.Success())
	assert.Equal(t, apperr.KindEmptyContent, result.Err.Kind)
	assert.Equal(t, "reduction", result.Err.Details["stage"])
}

func TestRunUnclassifiedErrorBecomesInternal(t *testing.T) {
	g := &fakeGenerator{
		callFunc: func(int, *llm.GenerationRequest) (string, error) {
			return "", fmt.Errorf("unexpected")
		},
	}

	result := newTestOrchestrator(g, 0).Run(context.Background(), "hello", prompt.ModeSimplify, "req-1")
	require.False(t, result.Success())
	assert.Equal(t, apperr.KindInternal, result.Err.Kind)
}

func TestRunUnsupportedMode(t *testing.T) {
	g := &fakeGenerator{}

	result := newTestOrchestrator(g, 0).Run(context.Background(), "hello", prompt.Mode("translate"), "req-1")
	require.False(t, result.Success())
	assert.Equal(t, apperr.KindUnsupportedMode, result.Err.Kind)
	assert.Empty(t, g.requests)
}

func TestClamp(t *testing.T) {
	short := "hello"
	out, truncated := Clamp(short, 10)
	assert.Equal(t, short, out)
	assert.False(t, truncated)

	exact := strings.Repeat("x", 10)
	out, truncated = Clamp(exact, 10)
	assert.Equal(t, exact, out)
	assert.False(t, truncated)

	long := strings.Repeat("é", 25)
	out, truncated = Clamp(long, 10)
	assert.True(t, truncated)
	assert.Equal(t, strings.Repeat("é", 10)+TruncationMarker, out)
	assert.True(t, strings.HasSuffix(out, "[Text truncated for length]"))

	padded := "  " + strings.Repeat("z", 10) + "\n\n \t"
	out, truncated = Clamp(padded, 10)
	assert.False(t, truncated, "surrounding whitespace does not count against the ceiling")
	assert.Equal(t, strings.Repeat("z", 10), out)

	huge := strings.Repeat("y", DefaultMaxTextLength+1)
	out, truncated = Clamp(huge, 0)
	assert.True(t, truncated)
	assert.Equal(t, DefaultMaxTextLength+utf8.RuneCountInString(TruncationMarker), utf8.RuneCountInString(out))
}
