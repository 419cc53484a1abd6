package providers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Egham-7/adaptive-tiers/internal/models"
	"github.com/Egham-7/adaptive-tiers/internal/services/gateway"
	"github.com/Egham-7/adaptive-tiers/internal/services/providers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// replay serves a fixed status and JSON body on every request.
func replay(t *testing.T, status int, body string, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestAnthropicComplete(t *testing.T) {
	server := replay(t, http.StatusOK, `{
		"id": "msg_01",
		"type": "message",
		"role": "assistant",
		"model": "claude-3-5-haiku-latest",
		"content": [{"type": "text", "text": "hello from claude"}],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 11, "output_tokens": 4}
	}`, func(r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("X-Api-Key"))
	})

	provider, err := providers.NewAnthropic(models.ProviderConfig{APIKey: "sk-ant-test", BaseURL: server.URL + "/"})
	require.NoError(t, err)

	completion, err := provider.Complete(context.Background(), "claude-3-5-haiku-latest", models.Prompt{System: "be brief", User: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello from claude", completion.Text)
	assert.Equal(t, int64(11), completion.InputTokens)
	assert.Equal(t, int64(4), completion.OutputTokens)
	assert.Equal(t, int64(15), completion.Tokens())
}

func TestAnthropicErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   models.FailureKind
	}{
		{
			name:   "overloaded",
			status: 529,
			body:   `{"type": "error", "error": {"type": "overloaded_error", "message": "Overloaded"}}`,
			want:   models.KindModelUnavailable,
		},
		{
			name:   "prompt too long",
			status: http.StatusBadRequest,
			body:   `{"type": "error", "error": {"type": "invalid_request_error", "message": "prompt is too long: 212000 tokens > 200000 maximum"}}`,
			want:   models.KindContextTooLong,
		},
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			body:   `{"type": "error", "error": {"type": "rate_limit_error", "message": "Number of request tokens has exceeded your per-minute rate limit"}}`,
			want:   models.KindQuotaExceeded,
		},
		{
			name:   "bad request",
			status: http.StatusBadRequest,
			body:   `{"type": "error", "error": {"type": "invalid_request_error", "message": "messages.0.content: field required"}}`,
			want:   models.KindInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := replay(t, tt.status, tt.body, nil)
			provider, err := providers.NewAnthropic(models.ProviderConfig{APIKey: "sk-ant-test", BaseURL: server.URL + "/"})
			require.NoError(t, err)

			_, err = provider.Complete(context.Background(), "claude-3-5-haiku-latest", models.Prompt{User: "hi"})
			var providerErr *models.ProviderError
			require.ErrorAs(t, err, &providerErr)
			assert.Equal(t, "anthropic", providerErr.Provider)
			assert.Equal(t, tt.status, providerErr.StatusCode)

			invErr := gateway.Classify("claude-3-5-haiku-latest", err)
			assert.Equal(t, tt.want, invErr.Kind)
		})
	}
}

func TestGeminiComplete(t *testing.T) {
	server := replay(t, http.StatusOK, `{
		"candidates": [{"content": {"role": "model", "parts": [{"text": "hello from gemini"}]}, "finishReason": "STOP"}],
		"usageMetadata": {"promptTokenCount": 8, "candidatesTokenCount": 2, "totalTokenCount": 10}
	}`, func(r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-2.0-flash:generateContent"), r.URL.Path)
	})

	provider, err := providers.NewGemini(models.ProviderConfig{APIKey: "gm-test", BaseURL: server.URL + "/"})
	require.NoError(t, err)

	completion, err := provider.Complete(context.Background(), "gemini-2.0-flash", models.Prompt{User: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello from gemini", completion.Text)
	assert.Equal(t, int64(8), completion.InputTokens)
	assert.Equal(t, int64(2), completion.OutputTokens)
	assert.Equal(t, int64(10), completion.Tokens())
}

func TestGeminiErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   models.FailureKind
	}{
		{
			name:   "resource exhausted",
			status: http.StatusTooManyRequests,
			body:   `{"error": {"code": 429, "message": "Resource has been exhausted (e.g. check quota).", "status": "RESOURCE_EXHAUSTED"}}`,
			want:   models.KindQuotaExceeded,
		},
		{
			name:   "input token count",
			status: http.StatusBadRequest,
			body:   `{"error": {"code": 400, "message": "The input token count (1200000) exceeds the maximum number of tokens allowed (1048576).", "status": "INVALID_ARGUMENT"}}`,
			want:   models.KindContextTooLong,
		},
		{
			name:   "unavailable",
			status: http.StatusServiceUnavailable,
			body:   `{"error": {"code": 503, "message": "The model is overloaded. Please try again later.", "status": "UNAVAILABLE"}}`,
			want:   models.KindModelUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := replay(t, tt.status, tt.body, nil)
			provider, err := providers.NewGemini(models.ProviderConfig{APIKey: "gm-test", BaseURL: server.URL + "/"})
			require.NoError(t, err)

			_, err = provider.Complete(context.Background(), "gemini-2.0-flash", models.Prompt{User: "hi"})
			var providerErr *models.ProviderError
			require.ErrorAs(t, err, &providerErr)
			assert.Equal(t, "gemini", providerErr.Provider)
			assert.Equal(t, tt.status, providerErr.StatusCode)

			invErr := gateway.Classify("gemini-2.0-flash", err)
			assert.Equal(t, tt.want, invErr.Kind)
		})
	}
}
