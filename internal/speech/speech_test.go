package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Conceptual-Machines/readaloud-api/internal/apperr"
	"github.com/Conceptual-Machines/readaloud-api/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveVoice(t *testing.T) {
	tests := []struct {
		language  string
		requested string
		want      string
	}{
		{"en-US", "", "en-US-JennyNeural"},
		{"es-ES", "", "es-ES-ElviraNeural"},
		{"fr-FR", "default", "fr-FR-DeniseNeural"},
		{"zh-CN", "", "zh-CN-XiaoxiaoNeural"},
		{"ar-SA", "", "ar-SA-ZariyahNeural"},
		{"de-DE", "", VoiceFallback},
		{"es-ES", "es-ES-AlvaroNeural", "es-ES-AlvaroNeural"},
	}

	for _, tt := range tests {
		t.Run(tt.language+"/"+tt.requested, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveVoice(tt.language, tt.requested))
		})
	}
}

func TestFormats(t *testing.T) {
	assert.Equal(t, "riff-16khz-16bit-mono-pcm", FormatFor("audio/wav").OutputFormat)
	assert.Equal(t, "audio/wav", FormatFor("audio/wav").MIME)
	assert.Equal(t, "audio-16khz-32kbitrate-mono-mp3", FormatFor("audio/mp3").OutputFormat)
	assert.Equal(t, "audio/mpeg", FormatFor("audio/ogg").MIME)
	assert.Equal(t, FormatMP3, NormalizeFormat(""))
}

func TestIsValidLanguage(t *testing.T) {
	assert.True(t, IsValidLanguage("en"))
	assert.True(t, IsValidLanguage("zh-Hans-CN"))
	assert.False(t, IsValidLanguage("e"))
	assert.False(t, IsValidLanguage("much-too-long"))
}

func TestBuildSSMLEscapes(t *testing.T) {
	ssml := BuildSSML(`Tom & "Jerry" <3 'cheese'`, "en-US", "en-US-JennyNeural")

	assert.Contains(t, ssml, `xml:lang="en-US"`)
	assert.Contains(t, ssml, `<voice name="en-US-JennyNeural">`)
	assert.Contains(t, ssml, "Tom &amp; &quot;Jerry&quot; &lt;3 &apos;cheese&apos;")
}

func TestSignAndVerify(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ts := now.Format(time.RFC3339Nano)
	body := []byte(`{"text":"hello"}`)
	sig := Sign("dev-secret", ts, body)

	assert.Len(t, sig, 64)
	assert.NoError(t, Verify("dev-secret", ts, sig, body, now.Add(time.Minute)))

	assert.ErrorIs(t, Verify("dev-secret", "", sig, body, now), ErrMissingSignature)
	assert.ErrorIs(t, Verify("dev-secret", "yesterday", sig, body, now), ErrBadTimestamp)
	assert.ErrorIs(t, Verify("dev-secret", ts, sig, body, now.Add(10*time.Minute)), ErrStaleTimestamp)
	assert.ErrorIs(t, Verify("other-secret", ts, sig, body, now), ErrBadSignature)
	assert.ErrorIs(t, Verify("dev-secret", ts, sig, []byte(`{"text":"tampered"}`), now), ErrBadSignature)
	assert.ErrorIs(t, Verify("dev-secret", ts, "not-hex", body, now), ErrBadSignature)
}

func TestNewSelectsBackend(t *testing.T) {
	assert.Equal(t, "azure-function", New(&config.Config{AzureFunctionURL: "http://localhost:4000/api/tts"}, nil).Name())
	assert.Equal(t, "azure-cognitive-services", New(&config.Config{}, nil).Name())
}

func TestCognitiveServiceMissingConfig(t *testing.T) {
	svc := NewCognitiveService(CognitiveConfig{}, nil)

	_, err := svc.Synthesize(context.Background(), &Request{Text: "hello", Language: "en-US"})
	assert.Equal(t, apperr.KindConfig, apperr.KindOf(err))

	svc = NewCognitiveService(CognitiveConfig{SpeechKey: "k", SpeechRegion: "eastus"}, nil)
	_, err = svc.Synthesize(context.Background(), &Request{Text: "hello", Language: "en-US", TranslateTo: "es"})
	assert.Equal(t, apperr.KindConfig, apperr.KindOf(err), "translation needs translator credentials")
}

func newCognitiveFixture(t *testing.T, speechStatus int) (*CognitiveService, *[]*http.Request, *[]string) {
	t.Helper()
	var requests []*http.Request
	var bodies []string

	mux := http.NewServeMux()
	mux.HandleFunc("/translate", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		requests = append(requests, r)
		bodies = append(bodies, string(b))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"translations":[{"text":"Hola mundo","to":"es"}]}]`))
	})
	mux.HandleFunc("/tts", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		requests = append(requests, r)
		bodies = append(bodies, string(b))
		if speechStatus != http.StatusOK {
			w.Header().Set("Retry-After", "12")
			w.WriteHeader(speechStatus)
			_, _ = w.Write([]byte("quota"))
			return
		}
		_, _ = w.Write([]byte("RIFFaudio"))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	svc := NewCognitiveService(CognitiveConfig{
		SpeechKey:        "speech-key",
		SpeechRegion:     "eastus",
		TranslatorKey:    "translator-key",
		TranslatorRegion: "eastus",
		SpeechURL:        server.URL + "/tts",
		TranslatorURL:    server.URL + "/translate",
	}, server.Client())
	return svc, &requests, &bodies
}

func TestCognitiveServiceTranslatesThenSynthesizes(t *testing.T) {
	svc, requests, bodies := newCognitiveFixture(t, http.StatusOK)

	result, err := svc.Synthesize(context.Background(), &Request{
		RequestID:   "req-1",
		Text:        "Hello world",
		Language:    "en-US",
		Format:      "audio/wav",
		TranslateTo: "es",
	})
	require.NoError(t, err)

	require.Len(t, *requests, 2)
	translate := (*requests)[0]
	assert.Equal(t, "3.0", translate.URL.Query().Get("api-version"))
	assert.Equal(t, "es", translate.URL.Query().Get("to"))
	assert.Equal(t, "en-US", translate.URL.Query().Get("from"))
	assert.Equal(t, "translator-key", translate.Header.Get("Ocp-Apim-Subscription-Key"))
	assert.JSONEq(t, `[{"Text":"Hello world"}]`, (*bodies)[0])

	tts := (*requests)[1]
	assert.Equal(t, "riff-16khz-16bit-mono-pcm", tts.Header.Get("X-Microsoft-OutputFormat"))
	assert.Equal(t, "application/ssml+xml", tts.Header.Get("Content-Type"))
	assert.Contains(t, (*bodies)[1], "Hola mundo")
	assert.Contains(t, (*bodies)[1], `xml:lang="es"`)

	audio, err := base64.StdEncoding.DecodeString(result.AudioBase64)
	require.NoError(t, err)
	assert.Equal(t, "RIFFaudio", string(audio))
	assert.Equal(t, "audio/wav", result.AudioContentType)
	assert.Equal(t, "es", result.Language)
	assert.Equal(t, VoiceFallback, result.Voice, "bare 'es' has no mapped voice")
	assert.Equal(t, SourceAzureTTS, result.Source)
	assert.Equal(t, "req-1", result.RequestID)
}

func TestCognitiveServiceRateLimited(t *testing.T) {
	svc, _, _ := newCognitiveFixture(t, http.StatusTooManyRequests)

	_, err := svc.Synthesize(context.Background(), &Request{Text: "Hello", Language: "en-US"})
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindRateLimited, appErr.Kind)
	assert.Equal(t, 12, appErr.Details["retryAfterS"])
}

func TestCognitiveServiceUpstreamError(t *testing.T) {
	svc, _, _ := newCognitiveFixture(t, http.StatusInternalServerError)

	_, err := svc.Synthesize(context.Background(), &Request{Text: "Hello", Language: "en-US"})
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "quota")
}

func TestFunctionClientSignsAndMapsSuccess(t *testing.T) {
	var gotBody []byte
	var gotHeader http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeader = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"requestId":"req-7","audioBase64":"SUQz","audioContentType":"audio/mpeg","language":"en-US","voice":"mock-voice","latencyMs":42}`))
	}))
	defer server.Close()

	client := NewFunctionClient(server.URL, "dev-secret", server.Client())
	result, err := client.Synthesize(context.Background(), &Request{
		RequestID: "req-7", Text: "hello", Language: "en-US", Format: "audio/mp3",
	})
	require.NoError(t, err)

	ts := gotHeader.Get(HeaderTimestamp)
	require.NoError(t, Verify("dev-secret", ts, gotHeader.Get(HeaderSignature), gotBody, time.Now()))

	var sent Request
	require.NoError(t, json.Unmarshal(gotBody, &sent))
	assert.Equal(t, "relay", sent.Caller)
	assert.Equal(t, "hello", sent.Text)

	assert.Equal(t, "SUQz", result.AudioBase64)
	assert.Equal(t, "mock-voice", result.Voice)
	assert.EqualValues(t, 42, result.LatencyMs)
	assert.Equal(t, SourceAzureTTS, result.Source)
}

func TestFunctionClientFailures(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantKind    apperr.Kind
		wantRetry   any
		wantMessage string
	}{
		{"rate limited with hint", http.StatusTooManyRequests, `{"retryAfterS": 9}`, apperr.KindRateLimited, 9, "rate limited"},
		{"rate limited default", http.StatusTooManyRequests, `not json`, apperr.KindRateLimited, 5, "rate limited"},
		{"missing audio", http.StatusOK, `{"success":true}`, apperr.KindEmptyContent, nil, "missing audio"},
		{"function error", http.StatusInternalServerError, `{"success":false,"error":{"code":"AZURE_TTS_ERROR","message":"voice not found"}}`, apperr.KindUpstream, nil, "voice not found"},
		{"unparseable error", http.StatusBadGateway, `<html>`, apperr.KindUpstream, nil, "Azure returned 502"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewFunctionClient(server.URL, "s", server.Client()).
				Synthesize(context.Background(), &Request{Text: "hello"})
			appErr, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantKind, appErr.Kind)
			assert.True(t, strings.Contains(appErr.Error(), tt.wantMessage), appErr.Error())
			if tt.wantRetry != nil {
				assert.Equal(t, tt.wantRetry, appErr.Details["retryAfterS"])
			}
		})
	}
}
