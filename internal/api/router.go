package api

import (
	"net/http"

	"github.com/Conceptual-Machines/readaloud-api/internal/api/handlers"
	apimiddleware "github.com/Conceptual-Machines/readaloud-api/internal/api/middleware"
	"github.com/Conceptual-Machines/readaloud-api/internal/config"
	"github.com/Conceptual-Machines/readaloud-api/internal/metrics"
	"github.com/Conceptual-Machines/readaloud-api/internal/observability"
	"github.com/Conceptual-Machines/readaloud-api/internal/prompt"
	"github.com/Conceptual-Machines/readaloud-api/internal/speech"
	"github.com/gin-gonic/gin"
)

// Dependencies are the collaborators the router wires into handlers
type Dependencies struct {
	Rewriter  handlers.Rewriter
	LLMSource string

	// Speech serves /tts. DirectSpeech synthesizes without the function hop
	// and serves the signed /api/tts endpoint.
	Speech       speech.Synthesizer
	DirectSpeech speech.Synthesizer

	Recorder *metrics.Recorder
	Langfuse *observability.LangfuseClient
}

func SetupRouter(cfg *config.Config, deps Dependencies, version string) *gin.Engine {
	router := gin.New()

	// Recovery middleware (must be first)
	router.Use(apimiddleware.RecoverWithSentry())

	// Sentry middleware for error tracking
	router.Use(apimiddleware.SentryMiddleware())

	// Request tracking and structured logging
	router.Use(apimiddleware.RequestTracking(deps.Recorder))

	// CORS middleware, answers preflight with 204
	router.Use(apimiddleware.CORS())

	// Health check
	healthHandler := handlers.NewHealthHandler(cfg.LLMProvider, cfg.SpeechBackend())
	router.GET("/health", healthHandler.HealthCheck)

	// Metrics endpoints
	metricsHandler := handlers.NewMetricsHandler(version, handlers.RelayInfo{
		LLMProvider:    cfg.LLMProvider,
		LLMSource:      deps.LLMSource,
		SpeechBackend:  cfg.SpeechBackend(),
		Modes:          modeNames(),
		MaxTextLength:  cfg.LLMMaxTextLength,
		ChunkChars:     cfg.LLMChunkChars,
		MaxTTSLength:   cfg.MaxTTSTextLength,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})
	router.GET("/api/metrics", metricsHandler.GetMetrics)
	if deps.Recorder != nil && deps.Recorder.Prometheus() != nil {
		router.GET("/metrics", gin.WrapH(deps.Recorder.Prometheus().Handler()))
	}

	// One bucket per client across /llm and /tts. The rewrite handler applies
	// it itself so a denied request keeps its requestId and fallbackText.
	limiter := apimiddleware.NewClientLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	// Rewrite relay
	llmHandler := handlers.NewLLMHandler(deps.Rewriter, deps.LLMSource, cfg.LLMMaxTextLength, deps.Recorder, deps.Langfuse)
	if limiter != nil {
		llmHandler.WithLimiter(limiter)
	}
	router.POST("/llm", llmHandler.Rewrite)
	router.OPTIONS("/llm", noContent)

	// Speech relay
	if deps.Speech != nil {
		ttsHandler := handlers.NewTTSHandler(deps.Speech, deps.Rewriter, cfg.MaxTTSTextLength, cfg.DefaultLanguage, deps.Recorder)
		router.POST("/tts", apimiddleware.Limit(limiter), ttsHandler.Speak)
		router.OPTIONS("/tts", noContent)
	}

	// Function side of the signed speech relay
	if cfg.AzureSharedSecret != "" && deps.DirectSpeech != nil {
		functionHandler := handlers.NewTTSHandler(deps.DirectSpeech, nil, cfg.MaxTTSTextLength, cfg.DefaultLanguage, deps.Recorder)
		router.POST("/api/tts", apimiddleware.SignedRequest(cfg.AzureSharedSecret), functionHandler.SpeakSigned)
	}

	return router
}

// noContent backs the OPTIONS routes; CORS answers them before this runs
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func modeNames() []string {
	modes := prompt.Modes()
	names := make([]string, 0, len(modes))
	for _, m := range modes {
		names = append(names, string(m))
	}
	return names
}
