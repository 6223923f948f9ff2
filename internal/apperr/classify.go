package apperr

import (
	"fmt"
	"net/http"
	"strings"
)

// rateLimitTags are provider-specific error codes that signal rate limiting
// even when the HTTP status is not 429.
var rateLimitTags = map[string]bool{
	"ratelimitreached":    true, // Azure OpenAI
	"toomanyrequests":     true, // Azure OpenAI
	"rate_limit_exceeded": true, // OpenAI
	"resource_exhausted":  true, // Gemini
}

// IsRateLimitSignal is the single place rate limiting is detected. New
// backend signals (for example a dedicated response header) belong here.
func IsRateLimitSignal(status int, code string) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	return rateLimitTags[strings.ToLower(strings.TrimSpace(code))]
}

// FromUpstream classifies a non-success response from a remote backend.
// Rate limiting becomes KindRateLimited; everything else is KindUpstream.
func FromUpstream(provider string, status int, code, message string, err error) *Error {
	details := map[string]any{"provider": provider}
	if status != 0 {
		details["status"] = status
	}
	if code != "" {
		details["upstream_code"] = code
	}

	if IsRateLimitSignal(status, code) {
		return Wrap(KindRateLimited, fmt.Sprintf("%s rate limited the request", provider), err).
			WithDetails(details)
	}

	msg := fmt.Sprintf("%s returned HTTP %d", provider, status)
	if status == 0 {
		msg = fmt.Sprintf("%s request failed", provider)
	}
	if message != "" {
		msg += ": " + message
	}
	return Wrap(KindUpstream, msg, err).WithDetails(details)
}

// StatusFor maps an error kind to the HTTP status returned by the relay.
func StatusFor(kind Kind) int {
	switch kind {
	case KindBadRequest, KindUnsupportedMode, KindEmptyInput:
		return http.StatusBadRequest
	case KindTextTooLong:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusBadGateway
	}
}
