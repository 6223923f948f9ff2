package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Origin tags the component a failure came from.
type Origin string

const (
	OriginRelay        Origin = "relay"
	OriginChunker      Origin = "chunker"
	OriginCaller       Origin = "caller"
	OriginOrchestrator Origin = "orchestrator"
	OriginModes        Origin = "modes"
	OriginSpeech       Origin = "speech"
)

const defaultMessage = "Failed to call text generation service."

// Envelope is the only failure shape that crosses a component boundary.
type Envelope struct {
	Code    Kind           `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Normalize converts any failure into an Envelope.
func Normalize(origin Origin, raw any) Envelope {
	env := classify(raw)
	if env.Message == "" {
		env.Message = defaultMessage
	}
	if env.Details == nil {
		env.Details = map[string]any{}
	}
	if _, ok := env.Details["origin"]; !ok {
		env.Details["origin"] = string(origin)
	}
	return env
}

func classify(raw any) Envelope {
	switch v := raw.(type) {
	case nil:
		return Envelope{Code: KindInternal, Message: "unknown failure"}
	case Envelope:
		return v
	case *Envelope:
		return *v
	case string:
		return Envelope{Code: KindInternal, Message: v}
	case error:
		return classifyError(v)
	default:
		return Envelope{
			Code:    KindInternal,
			Message: defaultMessage,
			Details: map[string]any{"raw": fmt.Sprintf("%v", v)},
		}
	}
}

func classifyError(err error) Envelope {
	if ae, ok := As(err); ok {
		code := ae.Kind
		if code == KindUnsupportedMode {
			code = KindBadRequest
		}
		return Envelope{Code: code, Message: ae.Message, Details: copyDetails(ae.Details)}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return Envelope{
			Code:    KindParse,
			Message: "Request body must be valid JSON.",
			Details: map[string]any{"error": err.Error()},
		}
	}

	return Envelope{
		Code:    KindInternal,
		Message: defaultMessage,
		Details: map[string]any{"error": err.Error()},
	}
}

func copyDetails(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
