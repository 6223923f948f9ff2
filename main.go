package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Conceptual-Machines/readaloud-api/internal/api"
	"github.com/Conceptual-Machines/readaloud-api/internal/config"
	"github.com/Conceptual-Machines/readaloud-api/internal/generation"
	"github.com/Conceptual-Machines/readaloud-api/internal/llm"
	"github.com/Conceptual-Machines/readaloud-api/internal/logger"
	"github.com/Conceptual-Machines/readaloud-api/internal/metrics"
	"github.com/Conceptual-Machines/readaloud-api/internal/observability"
	"github.com/Conceptual-Machines/readaloud-api/internal/prompt"
	"github.com/Conceptual-Machines/readaloud-api/internal/rewrite"
	"github.com/Conceptual-Machines/readaloud-api/internal/speech"
	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

const (
	sentryFlushTimeout    = 2 * time.Second
	shutdownTimeout       = 15 * time.Second
	readHeaderTimeout     = 10 * time.Second
	environmentProduction = "production"
)

// releaseVersion is set via ldflags during build
var releaseVersion = "dev"

// GetVersion returns the current release version
func GetVersion() string {
	return releaseVersion
}

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := config.Load()

	if err := logger.Init(cfg.Environment); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize Sentry
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			Release:          "readaloud-api@" + releaseVersion,
			EnableTracing:    true,
			TracesSampleRate: 1.0,
			EnableLogs:       true,
			Debug:            cfg.Environment != environmentProduction,
			BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
				if event.Request != nil {
					event.Request.Headers = filterSensitiveHeaders(event.Request.Headers)
				}
				return event
			},
		}); err != nil {
			logger.Warn("Failed to initialize Sentry", logger.Fields{"error": err.Error()})
		} else {
			logger.Info("Sentry initialized", logger.Fields{"environment": cfg.Environment, "release": releaseVersion})
			defer sentry.Flush(sentryFlushTimeout)
		}
	} else {
		logger.Info("Sentry not configured (SENTRY_DSN not set)", nil)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	router, langfuseClient, err := buildRouter(ctx, cfg)
	if err != nil {
		sentry.CaptureException(err)
		logger.Error("Failed to build relay", err, nil)
		os.Exit(1)
	}
	defer langfuseClient.Flush(context.Background())

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		logger.Info("Starting server", logger.Fields{
			"port":           cfg.Port,
			"llm_provider":   cfg.LLMProvider,
			"speech_backend": cfg.SpeechBackend(),
			"version":        releaseVersion,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sentry.CaptureException(err)
			logger.Error("Failed to start server", err, nil)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", err, nil)
	}
}

// buildRouter wires the backends, the rewrite pipeline and the observers.
func buildRouter(ctx context.Context, cfg *config.Config) (*gin.Engine, *observability.LangfuseClient, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	provider, err := llm.NewProviderFactory(cfg).GetProvider(ctx)
	if err != nil {
		return nil, nil, err
	}
	catalog, err := prompt.DefaultCatalog()
	if err != nil {
		return nil, nil, err
	}

	recorder := metrics.NewRecorder(
		metrics.NewSentryMetrics(cfg.SentryDSN != ""),
		metrics.NewClient(ctx, cfg.Environment, cfg.CloudWatchEnabled),
		metrics.NewPrometheus(),
	)
	langfuseClient := observability.InitializeLangfuse(ctx, cfg)

	caller := generation.NewCaller(provider,
		generation.WithObservers(recorder, observability.AttemptTracer{}))
	orchestrator := rewrite.NewOrchestrator(caller, catalog, cfg.LLMChunkChars)

	router := api.SetupRouter(cfg, api.Dependencies{
		Rewriter:     orchestrator,
		LLMSource:    llm.SourceOf(provider),
		Speech:       speech.New(cfg, nil),
		DirectSpeech: speech.NewDirect(cfg, nil),
		Recorder:     recorder,
		Langfuse:     langfuseClient,
	}, GetVersion())
	return router, langfuseClient, nil
}

func filterSensitiveHeaders(headers map[string]string) map[string]string {
	filtered := make(map[string]string)
	sensitiveKeys := map[string]bool{
		"authorization":             true,
		"cookie":                    true,
		"x-api-key":                 true,
		"api-key":                   true,
		"x-goog-api-key":            true,
		"x-azure-sig":               true,
		"ocp-apim-subscription-key": true,
	}

	for k, v := range headers {
		if sensitiveKeys[strings.ToLower(k)] {
			filtered[k] = "[REDACTED]"
		} else {
			filtered[k] = v
		}
	}
	return filtered
}
