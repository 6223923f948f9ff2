// Package rewrite turns one page of text into a simplified or summarized
// version, chunking long input and issuing backend calls in sequence.
package rewrite

import (
	"context"
	"strings"
	"time"

	"github.com/Conceptual-Machines/readaloud-api/internal/apperr"
	"github.com/Conceptual-Machines/readaloud-api/internal/chunker"
	"github.com/Conceptual-Machines/readaloud-api/internal/llm"
	"github.com/Conceptual-Machines/readaloud-api/internal/logger"
	"github.com/Conceptual-Machines/readaloud-api/internal/prompt"
)

// ReductionChunkIndex marks the merge call in per-attempt records.
const ReductionChunkIndex = 0

// Generator performs one logical backend request. *generation.Caller implements it.
type Generator interface {
	Call(ctx context.Context, req *llm.GenerationRequest) (string, error)
}

// Result is the outcome of one rewrite. FallbackText is always the input text.
type Result struct {
	OutputText   string
	Mode         prompt.Mode
	RequestID    string
	Chunks       int
	Calls        int
	Duration     time.Duration
	Err          *apperr.Error
	FallbackText string
}

// Success reports whether the rewrite produced output.
func (r *Result) Success() bool {
	return r.Err == nil
}

// Orchestrator drives the chunk, call, reduce pipeline.
type Orchestrator struct {
	generator     Generator
	catalog       *prompt.Catalog
	maxChunkChars int
}

// NewOrchestrator creates an orchestrator. maxChunkChars <= 0 uses the chunker default.
func NewOrchestrator(generator Generator, catalog *prompt.Catalog, maxChunkChars int) *Orchestrator {
	return &Orchestrator{
		generator:     generator,
		catalog:       catalog,
		maxChunkChars: maxChunkChars,
	}
}

// Run rewrites text in the given mode. Calls are strictly sequential and the
// first failure ends the run; Result.Err is set instead of returning an error.
func (o *Orchestrator) Run(ctx context.Context, text string, mode prompt.Mode, requestID string) *Result {
	start := time.Now()
	result := &Result{Mode: mode, RequestID: requestID, FallbackText: text}

	defer func() {
		result.Duration = time.Since(start)
		o.logResult(result)
	}()

	instructions, err := o.catalog.InstructionsFor(mode)
	if err != nil {
		result.Err = asAppError(err)
		return result
	}

	chunks := chunker.Chunk(text, o.maxChunkChars)
	result.Chunks = len(chunks)

	switch len(chunks) {
	case 0:
		result.Err = apperr.New(apperr.KindEmptyInput, "Text is empty.")
		return result

	case 1:
		out, callErr := o.call(ctx, result, instructions, instructions.UserContent(text), 1, 1)
		if callErr != nil {
			result.Err = callErr
			return result
		}
		result.OutputText = out
		return result
	}

	partials := make([]string, 0, len(chunks))
	for _, c := range chunks {
		out, callErr := o.call(ctx, result, instructions, instructions.ChunkContent(c.Content), c.Index, len(chunks))
		if callErr != nil {
			result.Err = callErr.WithDetails(map[string]any{"chunk_index": c.Index, "chunk_count": len(chunks)})
			return result
		}
		partials = append(partials, out)
	}

	joined := strings.Join(partials, chunker.Separator)
	if !instructions.Reduces() {
		result.OutputText = joined
		return result
	}

	out, callErr := o.call(ctx, result, instructions,
		instructions.ReductionContent(joined, len(partials)), ReductionChunkIndex, len(chunks))
	if callErr != nil {
		result.Err = callErr.WithDetails(map[string]any{"stage": "reduction"})
		return result
	}
	result.OutputText = out
	return result
}

func (o *Orchestrator) call(
	ctx context.Context,
	result *Result,
	instructions *prompt.Instructions,
	content string,
	chunkIndex, chunkCount int,
) (string, *apperr.Error) {
	result.Calls++
	out, err := o.generator.Call(ctx, &llm.GenerationRequest{
		SystemPrompt:    instructions.SystemPrompt,
		UserContent:     content,
		Temperature:     instructions.Temperature,
		MaxOutputTokens: instructions.MaxOutputTokens,
		RequestID:       result.RequestID,
		Mode:            string(result.Mode),
		ChunkIndex:      chunkIndex,
		ChunkCount:      chunkCount,
	})
	if err != nil {
		return "", asAppError(err)
	}
	return out, nil
}

func (o *Orchestrator) logResult(r *Result) {
	fields := logger.Fields{
		"request_id":  r.RequestID,
		"mode":        string(r.Mode),
		"chunks":      r.Chunks,
		"calls":       r.Calls,
		"duration_ms": r.Duration.Milliseconds(),
	}
	if r.Success() {
		fields["output_length"] = len(r.OutputText)
		logger.Info("rewrite completed", fields)
		return
	}
	fields["code"] = string(r.Err.Kind)
	logger.Warn("rewrite failed", fields)
}

func asAppError(err error) *apperr.Error {
	if appErr, ok := apperr.As(err); ok {
		return appErr
	}
	return apperr.Wrap(apperr.KindInternal, "Failed to call text generation service.", err)
}
