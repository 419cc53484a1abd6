package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/Egham-7/adaptive-tiers/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoFactory(name string, built *atomic.Int64) Factory {
	return func(cfg models.ProviderConfig) (Provider, error) {
		built.Add(1)
		return ProviderFunc(func(_ context.Context, model string, prompt models.Prompt) (*models.Completion, error) {
			return &models.Completion{Text: name + ":" + prompt.User, Model: model}, nil
		}), nil
	}
}

func TestRouterDispatchesByPrefix(t *testing.T) {
	var openaiBuilt, anthropicBuilt atomic.Int64
	router, err := NewRouter(
		map[models.ProviderType]models.ProviderConfig{
			models.ProviderOpenAI:    {APIKey: "sk-openai"},
			models.ProviderAnthropic: {APIKey: "sk-anthropic"},
		},
		map[models.ProviderType]Factory{
			models.ProviderOpenAI:    echoFactory("openai", &openaiBuilt),
			models.ProviderAnthropic: echoFactory("anthropic", &anthropicBuilt),
		},
	)
	require.NoError(t, err)

	ctx := context.Background()
	for range 3 {
		completion, err := router.Complete(ctx, "gpt-4o", models.Prompt{User: "hi"})
		require.NoError(t, err)
		assert.Equal(t, "openai:hi", completion.Text)
	}

	completion, err := router.Complete(ctx, "claude-3-5-haiku", models.Prompt{User: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic:hi", completion.Text)

	assert.Equal(t, int64(1), openaiBuilt.Load())
	assert.Equal(t, int64(1), anthropicBuilt.Load())
}

func TestRouterUnknownModel(t *testing.T) {
	var built atomic.Int64
	router, err := NewRouter(
		map[models.ProviderType]models.ProviderConfig{models.ProviderOpenAI: {APIKey: "sk"}},
		map[models.ProviderType]Factory{models.ProviderOpenAI: echoFactory("openai", &built)},
	)
	require.NoError(t, err)

	_, err = router.Complete(context.Background(), "gemini-2.0-flash", models.Prompt{User: "hi"})
	assert.Equal(t, models.KindModelUnavailable, models.KindOf(err))

	err = router.Validate([]string{"gpt-4o", "gemini-2.0-flash", "claude-3-opus"})
	require.Error(t, err)
	assert.True(t, models.IsConfigurationError(err))
	assert.Contains(t, err.Error(), "claude-3-opus, gemini-2.0-flash")

	assert.NoError(t, router.Validate([]string{"gpt-4o", "gpt-3.5-turbo"}))
}

func TestRouterQualifiedModel(t *testing.T) {
	var openaiBuilt, anthropicBuilt atomic.Int64
	var upstream string
	router, err := NewRouter(
		map[models.ProviderType]models.ProviderConfig{
			models.ProviderOpenAI:    {APIKey: "sk-openai"},
			models.ProviderAnthropic: {APIKey: "sk-anthropic"},
		},
		map[models.ProviderType]Factory{
			models.ProviderOpenAI: echoFactory("openai", &openaiBuilt),
			models.ProviderAnthropic: func(models.ProviderConfig) (Provider, error) {
				anthropicBuilt.Add(1)
				return ProviderFunc(func(_ context.Context, model string, _ models.Prompt) (*models.Completion, error) {
					upstream = model
					return &models.Completion{Text: "ok", Model: model}, nil
				}), nil
			},
		},
	)
	require.NoError(t, err)

	completion, err := router.Complete(context.Background(), "anthropic:my-finetune", models.Prompt{User: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "my-finetune", upstream)
	assert.Equal(t, "anthropic:my-finetune", completion.Model)
	assert.Zero(t, openaiBuilt.Load())

	_, ok := router.ProviderFor("gemini:gemini-2.0-flash")
	assert.False(t, ok, "unconfigured provider")
	_, ok = router.ProviderFor("openai:")
	assert.False(t, ok)
}

func TestRouterLongestPrefixWins(t *testing.T) {
	var openaiBuilt, customBuilt atomic.Int64
	router, err := NewRouter(
		map[models.ProviderType]models.ProviderConfig{
			models.ProviderOpenAI: {APIKey: "sk", ModelPrefixes: []string{"gpt-"}},
			models.ProviderGemini: {APIKey: "sk", ModelPrefixes: []string{"gpt-oss-"}},
		},
		map[models.ProviderType]Factory{
			models.ProviderOpenAI: echoFactory("openai", &openaiBuilt),
			models.ProviderGemini: echoFactory("custom", &customBuilt),
		},
	)
	require.NoError(t, err)

	provider, ok := router.ProviderFor("gpt-oss-20b")
	require.True(t, ok)
	assert.Equal(t, models.ProviderGemini, provider)

	provider, ok = router.ProviderFor("gpt-4o")
	require.True(t, ok)
	assert.Equal(t, models.ProviderOpenAI, provider)
}

func TestRouterSkipsProvidersWithoutKey(t *testing.T) {
	router, err := NewRouter(map[models.ProviderType]models.ProviderConfig{models.ProviderOpenAI: {}}, nil)
	require.NoError(t, err)

	_, ok := router.ProviderFor("gpt-4o")
	assert.False(t, ok)
}

func TestRouterRejectsUnsupportedProvider(t *testing.T) {
	_, err := NewRouter(map[models.ProviderType]models.ProviderConfig{"mistral": {APIKey: "sk"}}, nil)
	assert.True(t, models.IsConfigurationError(err))
}

func TestRouterFactoryError(t *testing.T) {
	router, err := NewRouter(
		map[models.ProviderType]models.ProviderConfig{models.ProviderOpenAI: {APIKey: "sk"}},
		map[models.ProviderType]Factory{
			models.ProviderOpenAI: func(models.ProviderConfig) (Provider, error) { return nil, errors.New("boom") },
		},
	)
	require.NoError(t, err)

	_, err = router.Complete(context.Background(), "gpt-4o", models.Prompt{User: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestOpenAIComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o-2024-08-06",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "hello there"}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`))
	}))
	defer server.Close()

	provider, err := NewOpenAI(models.ProviderConfig{APIKey: "sk-test", BaseURL: server.URL + "/v1/"})
	require.NoError(t, err)

	completion, err := provider.Complete(context.Background(), "gpt-4o", models.Prompt{System: "be nice", User: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello there", completion.Text)
	assert.Equal(t, "gpt-4o", completion.Model)
	assert.Equal(t, int64(12), completion.InputTokens)
	assert.Equal(t, int64(3), completion.OutputTokens)
	assert.Equal(t, int64(15), completion.Tokens())
}

func TestOpenAIErrorTranslation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "You exceeded your current quota", "type": "insufficient_quota", "param": null, "code": "insufficient_quota"}}`))
	}))
	defer server.Close()

	provider, err := NewOpenAI(models.ProviderConfig{APIKey: "sk-test", BaseURL: server.URL + "/v1/"})
	require.NoError(t, err)

	_, err = provider.Complete(context.Background(), "gpt-4o", models.Prompt{User: "hi"})
	var providerErr *models.ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, http.StatusTooManyRequests, providerErr.StatusCode)
	assert.Equal(t, "openai", providerErr.Provider)
}

func TestNewProvidersRequireKey(t *testing.T) {
	_, err := NewOpenAI(models.ProviderConfig{})
	assert.True(t, models.IsConfigurationError(err))

	_, err = NewAnthropic(models.ProviderConfig{})
	assert.True(t, models.IsConfigurationError(err))

	_, err = NewGemini(models.ProviderConfig{})
	assert.True(t, models.IsConfigurationError(err))
}

func TestTranslatePassesThroughContextErrors(t *testing.T) {
	assert.ErrorIs(t, translateOpenAIError(context.DeadlineExceeded), context.DeadlineExceeded)
	assert.ErrorIs(t, translateAnthropicError(context.Canceled), context.Canceled)
	assert.ErrorIs(t, translateGeminiError(context.DeadlineExceeded), context.DeadlineExceeded)
}
