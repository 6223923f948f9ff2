package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
)

const (
	// HTTP status code threshold for considering a request successful
	successStatusCodeThreshold = http.StatusBadRequest
)

// SentryMetrics handles custom metrics for Sentry
type SentryMetrics struct {
	enabled bool
}

// NewSentryMetrics creates a new Sentry metrics client
func NewSentryMetrics(enabled bool) *SentryMetrics {
	return &SentryMetrics{enabled: enabled}
}

// RecordAPIRequest records API request metrics
func (m *SentryMetrics) RecordAPIRequest(ctx context.Context, endpoint string, statusCode int, duration time.Duration) {
	if !m.enabled {
		return
	}

	span := sentry.StartSpan(ctx, "api.request")
	defer span.Finish()

	span.SetTag("endpoint", endpoint)
	span.SetTag("status_code", fmt.Sprintf("%d", statusCode))
	span.SetTag("success", fmt.Sprintf("%t", statusCode < successStatusCodeThreshold))
	span.SetData("duration_ms", duration.Milliseconds())

	if statusCode < successStatusCodeThreshold {
		span.Status = sentry.SpanStatusOK
	} else {
		span.Status = sentry.SpanStatusInternalError
	}
	span.Description = fmt.Sprintf("API Request: %s", endpoint)
}

// RecordGenerationAttempt tags the active transaction with the attempt and adds a child span
func (m *SentryMetrics) RecordGenerationAttempt(
	ctx context.Context, provider, model, outcome string, attempt int, latency time.Duration, inputTokens, outputTokens int64,
) {
	if !m.enabled {
		return
	}

	if transaction := sentry.TransactionFromContext(ctx); transaction != nil {
		transaction.SetTag("llm.provider", provider)
		transaction.SetTag("llm.last_outcome", outcome)
		transaction.SetData("llm.attempts", attempt)
	}

	span := sentry.StartSpan(ctx, "generation.attempt")
	defer span.Finish()

	span.Description = fmt.Sprintf("Generation attempt %d: %s", attempt, outcome)
	span.SetTag("provider", provider)
	span.SetTag("outcome", outcome)
	span.SetData("model", model)
	span.SetData("latency_ms", latency.Milliseconds())
	span.SetData("input_tokens", inputTokens)
	span.SetData("output_tokens", outputTokens)

	if outcome == "success" {
		span.Status = sentry.SpanStatusOK
	} else {
		span.Status = sentry.SpanStatusInternalError
	}
}

// RecordRewrite records a finished rewrite
func (m *SentryMetrics) RecordRewrite(ctx context.Context, mode, code string, chunks, calls int, duration time.Duration) {
	if !m.enabled {
		return
	}

	span := sentry.StartSpan(ctx, "rewrite.request")
	defer span.Finish()

	span.Description = fmt.Sprintf("Rewrite: %s", mode)
	span.SetTag("mode", mode)
	span.SetTag("code", code)
	span.SetData("chunks", chunks)
	span.SetData("calls", calls)
	span.SetData("duration_ms", duration.Milliseconds())

	if code == codeOK {
		span.Status = sentry.SpanStatusOK
	} else {
		span.Status = sentry.SpanStatusInternalError
	}
}
