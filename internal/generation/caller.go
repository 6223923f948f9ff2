// Package generation wraps a text generation backend with failure
// classification and exponential backoff on rate limiting.
package generation

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Conceptual-Machines/readaloud-api/internal/apperr"
	"github.com/Conceptual-Machines/readaloud-api/internal/llm"
	"github.com/Conceptual-Machines/readaloud-api/internal/logger"
)

const outcomeSuccess = "success"

// Attempt is the record of a single backend call.
type Attempt struct {
	RequestID  string
	Mode       string
	Provider   string
	Number     int
	ChunkIndex int
	ChunkCount int
	TextLength int
	Latency    time.Duration
	RetryIn    time.Duration // non-zero when the caller will retry after this attempt
	Input      string
	Output     string
	Model      string
	Usage      llm.Usage
	Err        *apperr.Error
}

// Outcome is "success" or the lower-cased error kind.
func (a Attempt) Outcome() string {
	if a.Err == nil {
		return outcomeSuccess
	}
	return strings.ToLower(string(a.Err.Kind))
}

// Status is the upstream HTTP status, 200 on success and 0 when unknown.
func (a Attempt) Status() int {
	if a.Err == nil {
		return 200
	}
	if status, ok := a.Err.Details["status"].(int); ok {
		return status
	}
	return 0
}

// AttemptObserver receives every attempt record.
type AttemptObserver interface {
	ObserveAttempt(ctx context.Context, attempt Attempt)
}

// ObserverFunc adapts a function to AttemptObserver.
type ObserverFunc func(ctx context.Context, attempt Attempt)

func (f ObserverFunc) ObserveAttempt(ctx context.Context, attempt Attempt) {
	f(ctx, attempt)
}

// Caller performs one logical generation request, retrying on rate limiting only.
type Caller struct {
	provider  llm.Provider
	policy    Policy
	sleep     Sleeper
	now       func() time.Time
	observers []AttemptObserver
}

// Option configures a Caller.
type Option func(*Caller)

// WithSleeper replaces the backoff sleep, for tests.
func WithSleeper(s Sleeper) Option {
	return func(c *Caller) { c.sleep = s }
}

// WithClock replaces the latency clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Caller) { c.now = now }
}

// WithObservers registers attempt observers.
func WithObservers(observers ...AttemptObserver) Option {
	return func(c *Caller) { c.observers = append(c.observers, observers...) }
}

// NewCaller creates a Caller using DefaultPolicy.
func NewCaller(provider llm.Provider, opts ...Option) *Caller {
	c := &Caller{
		provider: provider,
		policy:   DefaultPolicy(),
		sleep:    sleepContext,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Provider returns the backend the caller talks to.
func (c *Caller) Provider() llm.Provider {
	return c.provider
}

// Call sends req and returns the trimmed completion text. Failures are *apperr.Error.
// Only rate limiting is retried; every other failure is returned after one attempt.
func (c *Caller) Call(ctx context.Context, req *llm.GenerationRequest) (string, error) {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", abandoned(err)
		}

		r := *req
		r.Attempt = attempt

		start := c.now()
		resp, err := c.provider.Generate(ctx, &r)
		latency := c.now().Sub(start)

		text, failure := c.classify(resp, err)
		record := Attempt{
			RequestID:  req.RequestID,
			Mode:       req.Mode,
			Provider:   c.provider.Name(),
			Number:     attempt,
			ChunkIndex: req.ChunkIndex,
			ChunkCount: req.ChunkCount,
			TextLength: utf8.RuneCountInString(req.UserContent),
			Latency:    latency,
			Input:      req.UserContent,
			Output:     text,
			Err:        failure,
		}
		if resp != nil {
			record.Model = resp.Model
			record.Usage = resp.Usage
		}

		if failure == nil {
			c.record(ctx, record)
			return text, nil
		}

		if failure.Kind == apperr.KindRateLimited && c.policy.ShouldRetry(attempt) {
			record.RetryIn = c.policy.Delay(attempt)
			c.record(ctx, record)
			if err := c.sleep(ctx, record.RetryIn); err != nil {
				return "", abandoned(err)
			}
			continue
		}

		if failure.Kind == apperr.KindRateLimited {
			failure.WithDetails(map[string]any{"attempts": attempt})
		}
		c.record(ctx, record)
		return "", failure
	}
}

// classify turns a provider result into either trimmed text or a classified failure.
func (c *Caller) classify(resp *llm.GenerationResponse, err error) (string, *apperr.Error) {
	if err != nil {
		if appErr, ok := apperr.As(err); ok {
			return "", appErr
		}
		return "", apperr.FromUpstream(c.provider.Name(), 0, "", err.Error(), err)
	}
	if resp == nil {
		return "", apperr.New(apperr.KindEmptyContent, "Model returned no response.")
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", apperr.New(apperr.KindEmptyContent, "Model returned empty content.").
			WithDetails(map[string]any{"provider": c.provider.Name()})
	}
	return text, nil
}

func (c *Caller) record(ctx context.Context, a Attempt) {
	fields := logger.Fields{
		"request_id":  a.RequestID,
		"mode":        a.Mode,
		"provider":    a.Provider,
		"attempt":     a.Number,
		"latency_ms":  a.Latency.Milliseconds(),
		"outcome":     a.Outcome(),
		"status":      a.Status(),
		"chunk_index": a.ChunkIndex,
		"chunk_count": a.ChunkCount,
		"text_length": a.TextLength,
	}

	switch {
	case a.Err == nil:
		logger.Info("generation attempt", fields)
	case a.RetryIn > 0:
		fields["retry_in_ms"] = a.RetryIn.Milliseconds()
		logger.Warn("generation attempt rate limited, retrying", fields)
	default:
		fields["error"] = a.Err.Message
		logger.Warn("generation attempt failed", fields)
	}

	for _, o := range c.observers {
		o.ObserveAttempt(ctx, a)
	}
}

func abandoned(err error) *apperr.Error {
	return apperr.Wrap(apperr.KindUpstream, "Generation request abandoned.", err)
}
