package middleware

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/Conceptual-Machines/readaloud-api/internal/apperr"
	"github.com/Conceptual-Machines/readaloud-api/internal/logger"
	"github.com/Conceptual-Machines/readaloud-api/internal/speech"
	"github.com/gin-gonic/gin"
)

const maxSignedBodyBytes = 1 << 20

// SignedRequest only lets requests through whose X-Azure-Ts / X-Azure-Sig
// headers were produced with secret over the exact request body.
// The body is restored for the next handler.
func SignedRequest(secret string) gin.HandlerFunc {
	return signedRequest(secret, time.Now)
}

func signedRequest(secret string, now func() time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSignedBodyBytes))
		if err != nil {
			abortUnauthorized(c, "Could not read request body.", err)
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		ts := c.GetHeader(speech.HeaderTimestamp)
		sig := c.GetHeader(speech.HeaderSignature)
		if err := speech.Verify(secret, ts, sig, body, now()); err != nil {
			abortUnauthorized(c, "Invalid request signature.", err)
			return
		}

		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string, err error) {
	logger.Warn("Rejected signed request", logger.Fields{
		"request_id": c.GetString(RequestIDKey),
		"path":       c.Request.URL.Path,
		"error":      err.Error(),
	})
	env := apperr.Normalize(apperr.OriginSpeech, apperr.Wrap(apperr.KindBadRequest, message, err))
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success":   false,
		"requestId": c.GetString(RequestIDKey),
		"error":     env,
	})
}
