package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const healthSource = "readaloud-api"

// HealthHandler answers liveness probes without touching any backend
type HealthHandler struct {
	llmProvider   string
	speechBackend string
}

func NewHealthHandler(llmProvider, speechBackend string) *HealthHandler {
	return &HealthHandler{llmProvider: llmProvider, speechBackend: speechBackend}
}

// HealthCheck returns the health status of the API
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"source":         healthSource,
		"ts":             time.Now().UTC().Format(time.RFC3339Nano),
		"llm_provider":   h.llmProvider,
		"speech_backend": h.speechBackend,
	})
}
