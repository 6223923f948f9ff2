package observability

import (
	"context"
	"time"

	"github.com/Conceptual-Machines/readaloud-api/internal/config"
	"github.com/Conceptual-Machines/readaloud-api/internal/generation"
	"github.com/Conceptual-Machines/readaloud-api/internal/logger"
	langfuse "github.com/henomis/langfuse-go"
	"github.com/henomis/langfuse-go/model"
)

const levelError = "ERROR"

// LangfuseClient wraps the Langfuse client with our configuration
type LangfuseClient struct {
	client  *langfuse.Langfuse
	enabled bool
}

// InitializeLangfuse creates the Langfuse client. The SDK reads
// LANGFUSE_PUBLIC_KEY, LANGFUSE_SECRET_KEY and LANGFUSE_HOST from the environment.
func InitializeLangfuse(ctx context.Context, cfg *config.Config) *LangfuseClient {
	if !cfg.LangfuseEnabled || cfg.LangfuseSecretKey == "" || cfg.LangfusePublicKey == "" {
		logger.Info("Langfuse disabled", logger.Fields{"enabled_flag": cfg.LangfuseEnabled})
		return &LangfuseClient{enabled: false}
	}

	logger.Info("Langfuse initialized", logger.Fields{"host": cfg.LangfuseHost})
	return &LangfuseClient{
		client:  langfuse.New(ctx),
		enabled: true,
	}
}

// IsEnabled returns whether Langfuse is enabled
func (c *LangfuseClient) IsEnabled() bool {
	return c != nil && c.enabled && c.client != nil
}

// Flush sends queued events
func (c *LangfuseClient) Flush(ctx context.Context) {
	if c.IsEnabled() {
		c.client.Flush(ctx)
	}
}

// StartTrace starts a new trace in Langfuse
func (c *LangfuseClient) StartTrace(ctx context.Context, name string, metadata map[string]interface{}) *Trace {
	if !c.IsEnabled() {
		return &Trace{enabled: false, ctx: ctx}
	}

	trace, err := c.client.Trace(&model.Trace{
		Name:     name,
		Metadata: metadata,
	})
	if err != nil {
		logger.Warn("Failed to create Langfuse trace", logger.Fields{"error": err.Error()})
		return &Trace{enabled: false, ctx: ctx}
	}

	return &Trace{
		trace:   trace,
		enabled: true,
		ctx:     ctx,
		client:  c.client,
	}
}

// Trace represents a Langfuse trace
type Trace struct {
	trace   *model.Trace
	enabled bool
	ctx     context.Context
	client  *langfuse.Langfuse
}

// ID returns the Langfuse trace ID, empty when disabled
func (t *Trace) ID() string {
	if !t.enabled || t.trace == nil {
		return ""
	}
	return t.trace.ID
}

// Generation creates a new generation span within the trace
func (t *Trace) Generation(name string, startTime time.Time, metadata map[string]interface{}) *Generation {
	if !t.enabled {
		return &Generation{enabled: false}
	}

	gen, err := t.client.Generation(&model.Generation{
		TraceID:   t.ID(),
		Name:      name,
		StartTime: &startTime,
		Metadata:  metadata,
	}, nil)
	if err != nil {
		logger.Warn("Failed to create Langfuse generation", logger.Fields{"error": err.Error()})
		return &Generation{enabled: false}
	}

	return &Generation{
		generation: gen,
		enabled:    true,
		client:     t.client,
	}
}

// Finish flushes queued events for the trace
func (t *Trace) Finish() {
	if t.enabled && t.client != nil {
		t.client.Flush(t.ctx)
	}
}

// Generation represents a Langfuse generation span
type Generation struct {
	generation *model.Generation
	enabled    bool
	client     *langfuse.Langfuse
}

// Finish completes the generation and sends it to Langfuse
func (g *Generation) Finish(endTime time.Time) {
	if g.enabled && g.generation != nil && g.client != nil {
		g.generation.EndTime = &endTime
		if _, err := g.client.GenerationEnd(g.generation); err != nil {
			logger.Warn("Failed to end Langfuse generation", logger.Fields{"error": err.Error()})
		}
	}
}

type traceKey struct{}

// ContextWithTrace attaches a trace so attempt observers can find it
func ContextWithTrace(ctx context.Context, t *Trace) context.Context {
	return context.WithValue(ctx, traceKey{}, t)
}

// TraceFromContext returns the trace attached to ctx, if any
func TraceFromContext(ctx context.Context) (*Trace, bool) {
	t, ok := ctx.Value(traceKey{}).(*Trace)
	return t, ok && t != nil
}

// AttemptTracer records every generation attempt as a Langfuse generation on the
// trace carried by the request context.
type AttemptTracer struct{}

// ObserveAttempt implements generation.AttemptObserver
func (AttemptTracer) ObserveAttempt(ctx context.Context, a generation.Attempt) {
	trace, ok := TraceFromContext(ctx)
	if !ok || !trace.enabled {
		return
	}

	end := time.Now()
	gen := trace.Generation("rewrite.attempt", end.Add(-a.Latency), AttemptMetadata(a))
	if gen.enabled {
		applyAttempt(gen.generation, a)
	}
	gen.Finish(end)
}

// AttemptMetadata returns the metadata attached to an attempt's generation
func AttemptMetadata(a generation.Attempt) map[string]interface{} {
	md := map[string]interface{}{
		"request_id":  a.RequestID,
		"mode":        a.Mode,
		"provider":    a.Provider,
		"attempt":     a.Number,
		"chunk_index": a.ChunkIndex,
		"chunk_count": a.ChunkCount,
		"outcome":     a.Outcome(),
		"status":      a.Status(),
		"latency_ms":  a.Latency.Milliseconds(),
	}
	if a.Err == nil {
		md["cost_usd"] = CalculateCost(a.Model, a.Usage)
	} else {
		md["error"] = a.Err.Message
	}
	return md
}

func applyAttempt(g *model.Generation, a generation.Attempt) {
	g.Model = a.Model
	g.Input = a.Input
	if a.Err != nil {
		g.Level = model.ObservationLevel(levelError)
		return
	}

	g.Output = a.Output
	cost := CalculateCost(a.Model, a.Usage)
	g.Usage = model.Usage{
		Input:     int(a.Usage.InputTokens),
		Output:    int(a.Usage.OutputTokens),
		Total:     int(a.Usage.TotalTokens),
		Unit:      model.ModelUsageUnitTokens,
		TotalCost: cost,
	}
}
