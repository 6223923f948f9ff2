package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus holds the relay's Prometheus collectors on a dedicated registry.
type Prometheus struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	attemptsTotal       *prometheus.CounterVec
	attemptDuration     *prometheus.HistogramVec
	tokensTotal         *prometheus.CounterVec
	rewritesTotal       *prometheus.CounterVec
	rewriteChunks       *prometheus.HistogramVec
	speechTotal         *prometheus.CounterVec
}

// NewPrometheus creates and registers all collectors, including Go runtime and process metrics.
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "generation_attempts_total",
				Help: "Backend calls made by the generation caller, by outcome.",
			},
			[]string{"provider", "mode", "outcome"},
		),
		attemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "generation_attempt_duration_seconds",
				Help:    "Latency of a single backend call.",
				Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
			},
			[]string{"provider"},
		),
		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "generation_tokens_total",
				Help: "Tokens consumed, by direction.",
			},
			[]string{"provider", "direction"},
		),
		rewritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rewrite_requests_total",
				Help: "Completed rewrites, by mode and result code.",
			},
			[]string{"mode", "code"},
		),
		rewriteChunks: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rewrite_chunks",
				Help:    "Number of chunks per rewrite.",
				Buckets: []float64{1, 2, 3, 4, 6, 8},
			},
			[]string{"mode"},
		),
		speechTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "speech_requests_total",
				Help: "Speech synthesis requests, by backend and result code.",
			},
			[]string{"backend", "code"},
		),
	}

	p.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.httpRequestsTotal,
		p.httpRequestDuration,
		p.attemptsTotal,
		p.attemptDuration,
		p.tokensTotal,
		p.rewritesTotal,
		p.rewriteChunks,
		p.speechTotal,
	)
	return p
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one served request.
func (p *Prometheus) ObserveHTTP(method, path string, status int, duration time.Duration) {
	p.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	p.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveAttempt records one backend call.
func (p *Prometheus) ObserveAttempt(provider, mode, outcome string, latency time.Duration, inputTokens, outputTokens int64) {
	p.attemptsTotal.WithLabelValues(provider, mode, outcome).Inc()
	p.attemptDuration.WithLabelValues(provider).Observe(latency.Seconds())
	if inputTokens > 0 {
		p.tokensTotal.WithLabelValues(provider, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		p.tokensTotal.WithLabelValues(provider, "output").Add(float64(outputTokens))
	}
}

// ObserveRewrite records one finished rewrite. code is "ok" on success.
func (p *Prometheus) ObserveRewrite(mode, code string, chunks int) {
	p.rewritesTotal.WithLabelValues(mode, code).Inc()
	p.rewriteChunks.WithLabelValues(mode).Observe(float64(chunks))
}

// ObserveSpeech records one synthesis request. code is "ok" on success.
func (p *Prometheus) ObserveSpeech(backend, code string) {
	p.speechTotal.WithLabelValues(backend, code).Inc()
}
