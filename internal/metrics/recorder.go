package metrics

import (
	"context"
	"time"

	"github.com/Conceptual-Machines/readaloud-api/internal/apperr"
	"github.com/Conceptual-Machines/readaloud-api/internal/generation"
	"github.com/Conceptual-Machines/readaloud-api/internal/rewrite"
)

const codeOK = "ok"

// Recorder fans every relay metric out to Sentry, CloudWatch and Prometheus.
// Nil sinks are skipped.
type Recorder struct {
	sentry     *SentryMetrics
	cloudwatch *Client
	prometheus *Prometheus
}

// NewRecorder creates a recorder over the given sinks
func NewRecorder(sentryMetrics *SentryMetrics, cloudwatchClient *Client, prom *Prometheus) *Recorder {
	return &Recorder{sentry: sentryMetrics, cloudwatch: cloudwatchClient, prometheus: prom}
}

// Prometheus returns the Prometheus sink, if any
func (r *Recorder) Prometheus() *Prometheus {
	return r.prometheus
}

// RecordAPIRequest records one served HTTP request
func (r *Recorder) RecordAPIRequest(ctx context.Context, method, endpoint string, statusCode int, duration time.Duration) {
	if r.sentry != nil {
		r.sentry.RecordAPIRequest(ctx, endpoint, statusCode, duration)
	}
	if r.cloudwatch != nil {
		r.cloudwatch.RecordAPIRequest(endpoint, statusCode, duration)
	}
	if r.prometheus != nil {
		r.prometheus.ObserveHTTP(method, endpoint, statusCode, duration)
	}
}

// ObserveAttempt implements generation.AttemptObserver
func (r *Recorder) ObserveAttempt(ctx context.Context, a generation.Attempt) {
	outcome := a.Outcome()
	if r.sentry != nil {
		r.sentry.RecordGenerationAttempt(ctx, a.Provider, a.Model, outcome, a.Number, a.Latency,
			a.Usage.InputTokens, a.Usage.OutputTokens)
	}
	if r.cloudwatch != nil {
		r.cloudwatch.RecordGenerationAttempt(a.Provider, outcome, a.Latency, a.Usage.InputTokens, a.Usage.OutputTokens)
	}
	if r.prometheus != nil {
		r.prometheus.ObserveAttempt(a.Provider, a.Mode, outcome, a.Latency, a.Usage.InputTokens, a.Usage.OutputTokens)
	}
}

// RecordRewrite records a finished rewrite
func (r *Recorder) RecordRewrite(ctx context.Context, result *rewrite.Result) {
	code := codeOK
	if result.Err != nil {
		code = string(result.Err.Kind)
	}
	mode := string(result.Mode)

	if r.sentry != nil {
		r.sentry.RecordRewrite(ctx, mode, code, result.Chunks, result.Calls, result.Duration)
	}
	if r.cloudwatch != nil {
		r.cloudwatch.RecordRewriteDuration(mode, result.Duration, result.Success())
	}
	if r.prometheus != nil {
		r.prometheus.ObserveRewrite(mode, code, result.Chunks)
	}
}

// RecordSpeech records one synthesis request; err is nil on success
func (r *Recorder) RecordSpeech(backend string, err error) {
	if r.prometheus == nil {
		return
	}
	code := codeOK
	if err != nil {
		code = string(apperr.KindOf(err))
	}
	r.prometheus.ObserveSpeech(backend, code)
}
