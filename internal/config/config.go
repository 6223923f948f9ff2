package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds the application configuration
// Note: The relay is stateless - every value here is read once at startup from the environment
type Config struct {
	// Environment
	Environment string
	Port        string

	// Text generation backend
	// - "azure-openai": Azure OpenAI deployment (default when AZURE_OPENAI_ENDPOINT is set)
	// - "openai": OpenAI API
	// - "gemini": Google Gemini API
	LLMProvider           string
	AzureOpenAIEndpoint   string
	AzureOpenAIAPIKey     string
	AzureOpenAIDeployment string
	AzureOpenAIAPIVersion string
	OpenAIAPIKey          string
	OpenAIModel           string
	OpenAIBaseURL         string // Optional override for OpenAI-compatible endpoints
	GeminiAPIKey          string
	GeminiModel           string

	// Rewrite limits
	LLMMaxTextLength int // Ceiling applied before chunking
	LLMChunkChars    int // Chunk budget in characters

	// Speech (translation + text-to-speech)
	AzureFunctionURL      string // Remote TTS function; when set, the relay forwards signed requests to it
	AzureSharedSecret     string // HMAC secret shared with the TTS function
	AzureSpeechKey        string
	AzureSpeechRegion     string
	AzureTranslatorKey    string
	AzureTranslatorRegion string
	MaxTTSTextLength      int
	DefaultLanguage       string

	// Relay protection
	RateLimitRPS   float64
	RateLimitBurst int

	// Observability
	SentryDSN         string // Sentry DSN for error tracking
	LangfusePublicKey string // Langfuse public key
	LangfuseSecretKey string // Langfuse secret key
	LangfuseHost      string // Langfuse host URL (cloud or self-hosted)
	LangfuseEnabled   bool   // Feature flag for Langfuse
	CloudWatchEnabled bool   // Publish custom metrics to CloudWatch
}

const (
	defaultLLMMaxTextLength = 8000
	defaultLLMChunkChars    = 4000
	defaultMaxTTSTextLength = 5000
	defaultRateLimitRPS     = 2.0
	defaultRateLimitBurst   = 5
)

func Load() *Config {
	cfg := &Config{
		Environment:           getEnv("ENVIRONMENT", "development"),
		Port:                  getEnv("PORT", "8080"),
		LLMProvider:           strings.ToLower(getEnv("LLM_PROVIDER", "")),
		AzureOpenAIEndpoint:   getEnv("AZURE_OPENAI_ENDPOINT", ""),
		AzureOpenAIAPIKey:     getEnv("AZURE_OPENAI_API_KEY", ""),
		AzureOpenAIDeployment: getEnv("AZURE_OPENAI_DEPLOYMENT", ""),
		AzureOpenAIAPIVersion: getEnv("AZURE_OPENAI_API_VERSION", "2024-02-15-preview"),
		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:           getEnv("OPENAI_MODEL", "gpt-4.1-mini"),
		OpenAIBaseURL:         getEnv("OPENAI_BASE_URL", ""),
		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GeminiModel:           getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		LLMMaxTextLength:      getEnvInt("LLM_MAX_TEXT_LENGTH", defaultLLMMaxTextLength),
		LLMChunkChars:         getEnvInt("LLM_CHUNK_CHARS", defaultLLMChunkChars),
		AzureFunctionURL:      getEnv("AZURE_FUNCTION_URL", ""),
		AzureSharedSecret:     getEnv("AZURE_SHARED_SECRET", ""),
		AzureSpeechKey:        getEnv("AZURE_SPEECH_KEY", ""),
		AzureSpeechRegion:     getEnv("AZURE_SPEECH_REGION", ""),
		AzureTranslatorKey:    getEnv("AZURE_TRANSLATOR_KEY", ""),
		AzureTranslatorRegion: getEnv("AZURE_TRANSLATOR_REGION", ""),
		MaxTTSTextLength:      getEnvInt("MAX_TEXT_LENGTH", defaultMaxTTSTextLength),
		DefaultLanguage:       getEnv("DEFAULT_LANGUAGE", "en-US"),
		RateLimitRPS:          getEnvFloat("RATE_LIMIT_RPS", defaultRateLimitRPS),
		RateLimitBurst:        getEnvInt("RATE_LIMIT_BURST", defaultRateLimitBurst),
		SentryDSN:             getEnv("SENTRY_DSN", ""),
		LangfusePublicKey:     getEnv("LANGFUSE_PUBLIC_KEY", ""),
		LangfuseSecretKey:     getEnv("LANGFUSE_SECRET_KEY", ""),
		LangfuseHost:          getEnv("LANGFUSE_HOST", "https://cloud.langfuse.com"),
		LangfuseEnabled:       getEnv("LANGFUSE_ENABLED", "false") == "true",
		CloudWatchEnabled:     getEnv("CLOUDWATCH_ENABLED", "false") == "true",
	}

	if cfg.LLMProvider == "" {
		cfg.LLMProvider = cfg.inferLLMProvider()
	}
	return cfg
}

// inferLLMProvider picks the first backend with credentials, preferring Azure OpenAI.
func (c *Config) inferLLMProvider() string {
	switch {
	case c.AzureOpenAIEndpoint != "":
		return ProviderAzureOpenAI
	case c.OpenAIAPIKey != "":
		return ProviderOpenAI
	case c.GeminiAPIKey != "":
		return ProviderGemini
	default:
		return ProviderAzureOpenAI
	}
}

// Provider names accepted in LLM_PROVIDER
const (
	ProviderAzureOpenAI = "azure-openai"
	ProviderOpenAI      = "openai"
	ProviderGemini      = "gemini"
)

// IsProduction returns true when running in the production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// SpeechBackend names the speech path used by the TTS relay
func (c *Config) SpeechBackend() string {
	if c.AzureFunctionURL != "" {
		return "azure-function"
	}
	return "azure-cognitive-services"
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}
