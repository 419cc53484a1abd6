package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Egham-7/adaptive-tiers/internal/config"
	"github.com/Egham-7/adaptive-tiers/internal/models"
	"github.com/Egham-7/adaptive-tiers/internal/services/catalog"
	"github.com/Egham-7/adaptive-tiers/internal/services/response"
	"github.com/Egham-7/adaptive-tiers/internal/services/usage"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type executorFunc func(ctx context.Context, req models.InvocationRequest) (*models.InvocationResult, error)

func (f executorFunc) Execute(ctx context.Context, req models.InvocationRequest) (*models.InvocationResult, error) {
	return f(ctx, req)
}

func do(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestInvokeSuccess(t *testing.T) {
	var got models.InvocationRequest
	h := NewInvokeHandler(executorFunc(func(_ context.Context, req models.InvocationRequest) (*models.InvocationResult, error) {
		got = req
		return &models.InvocationResult{
			Completion:     models.Completion{Text: "hi there", Model: "gpt-4o-mini", TotalTokens: 12},
			RequestID:      req.RequestID,
			RequestedModel: "gpt-4o",
			FallbackUsed:   true,
			Attempted:      []string{"gpt-4o", "gpt-4o-mini"},
		}, nil
	}))
	app := fiber.New()
	app.Post("/v1/invoke", h.Invoke)

	req := httptest.NewRequest(http.MethodPost, "/v1/invoke", strings.NewReader(
		`{"capability":"characterReply","tier":"premium","user_id":"u1","prompt":"hello","system":"be kind","max_output_tokens":100}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "req-abc")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "req-abc", resp.Header.Get("X-Request-ID"))

	assert.Equal(t, "req-abc", got.RequestID)
	assert.Equal(t, models.TierPremium, got.Tier)
	assert.Equal(t, "hello", got.Prompt.User)
	assert.Equal(t, "be kind", got.Prompt.System)
	assert.Equal(t, 100, got.Prompt.MaxOutputTokens)

	var result map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "gpt-4o-mini", result["model"])
	assert.Equal(t, "gpt-4o", result["requested_model"])
	assert.Equal(t, true, result["fallback_used"])
}

func TestInvokeErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"rate limited", models.NewInvocationError(models.KindRateLimited, "", "requests per minute exceeded", nil), http.StatusTooManyRequests, "rate_limit"},
		{"too large", models.NewInvocationError(models.KindRequestTooLarge, "", "", nil), http.StatusRequestEntityTooLarge, "validation"},
		{"invalid", models.NewInvocationError(models.KindInvalidInput, "gpt-4o", "bad", nil), http.StatusBadRequest, "validation"},
		{"exhausted", &models.InvocationError{Kind: models.KindTimeout, Attempted: []string{"A", "B"}, Exhausted: true}, http.StatusGatewayTimeout, "timeout"},
		{"unavailable", models.NewInvocationError(models.KindModelUnavailable, "A", "", nil), http.StatusBadGateway, "provider"},
		{"internal", errors.New("secret database password leaked"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewInvokeHandler(executorFunc(func(context.Context, models.InvocationRequest) (*models.InvocationResult, error) {
				return nil, tt.err
			}))
			app := fiber.New()
			app.Post("/v1/invoke", h.Invoke)

			resp, data := do(t, app, http.MethodPost, "/v1/invoke", `{"capability":"diary","tier":"free","user_id":"u1","prompt":"x"}`)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var body response.ErrorResponse
			require.NoError(t, json.Unmarshal(data, &body))
			assert.Equal(t, tt.wantType, body.Error.Type)
			assert.NotEmpty(t, body.RequestID)
			assert.NotContains(t, string(data), "secret")
		})
	}
}

func TestInvokeExhaustedListsAttempts(t *testing.T) {
	h := NewInvokeHandler(executorFunc(func(context.Context, models.InvocationRequest) (*models.InvocationResult, error) {
		return nil, &models.InvocationError{Kind: models.KindTimeout, Attempted: []string{"A", "B"}, Exhausted: true}
	}))
	app := fiber.New()
	app.Post("/v1/invoke", h.Invoke)

	_, data := do(t, app, http.MethodPost, "/v1/invoke", `{"capability":"diary","tier":"free","user_id":"u1","prompt":"x"}`)
	var body response.ErrorResponse
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, []string{"A", "B"}, body.Error.Attempted)
	assert.True(t, body.Error.Retryable)
}

func TestInvokeRateLimitedSetsRetryAfter(t *testing.T) {
	h := NewInvokeHandler(executorFunc(func(context.Context, models.InvocationRequest) (*models.InvocationResult, error) {
		return nil, models.NewInvocationError(models.KindRateLimited, "", "daily_chat_limit", nil)
	}))
	app := fiber.New()
	app.Post("/v1/invoke", h.Invoke)

	resp, _ := do(t, app, http.MethodPost, "/v1/invoke", `{"capability":"diary","tier":"free","user_id":"u1","prompt":"x"}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
}

func TestInvokeBadBody(t *testing.T) {
	called := false
	h := NewInvokeHandler(executorFunc(func(context.Context, models.InvocationRequest) (*models.InvocationResult, error) {
		called = true
		return nil, nil
	}))
	app := fiber.New()
	app.Post("/v1/invoke", h.Invoke)

	resp, _ := do(t, app, http.MethodPost, "/v1/invoke", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, app, http.MethodPost, "/v1/invoke", `{"prompt":"x","estimated_tokens":-5}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, called)
}

func newUsageApp(t *testing.T) (*fiber.App, usage.Ledger) {
	t.Helper()
	clock := usage.NewClockFunc(time.UTC, func() time.Time {
		return time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	})
	ledger := usage.NewMemoryLedger(clock)
	app := fiber.New()
	NewUsageHandler(ledger, clock).RegisterRoutes(app, "/v1/usage")
	return app, ledger
}

func TestGetDailyUsage(t *testing.T) {
	app, ledger := newUsageApp(t)
	ctx := context.Background()
	_, err := ledger.Increment(ctx, "u1", "2025-03-14", models.UsageDelta{Chats: 2, Tokens: 300, CostMicros: 50})
	require.NoError(t, err)
	_, err = ledger.Increment(ctx, "u1", "2025-03-10", models.UsageDelta{Chats: 1, Tokens: 10})
	require.NoError(t, err)

	resp, data := do(t, app, http.MethodGet, "/v1/usage/u1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var record models.UsageRecord
	require.NoError(t, json.Unmarshal(data, &record))
	assert.Equal(t, int64(2), record.ChatCount)
	assert.Equal(t, int64(300), record.TokenCount)

	_, data = do(t, app, http.MethodGet, "/v1/usage/u1?day=2025-03-10", "")
	require.NoError(t, json.Unmarshal(data, &record))
	assert.Equal(t, int64(1), record.ChatCount)

	_, data = do(t, app, http.MethodGet, "/v1/usage/nobody", "")
	require.NoError(t, json.Unmarshal(data, &record))
	assert.Zero(t, record.ChatCount)

	resp, _ = do(t, app, http.MethodGet, "/v1/usage/u1?day=14-03-2025", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetHistory(t *testing.T) {
	app, ledger := newUsageApp(t)
	ctx := context.Background()
	for _, day := range []models.Day{"2025-03-01", "2025-03-10", "2025-03-14"} {
		_, err := ledger.Increment(ctx, "u1", day, models.UsageDelta{Chats: 1, Tokens: 100, CostMicros: 10})
		require.NoError(t, err)
	}

	resp, data := do(t, app, http.MethodGet, "/v1/usage/u1/history", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history UsageHistory
	require.NoError(t, json.Unmarshal(data, &history))
	assert.Equal(t, models.Day("2025-03-08"), history.From)
	assert.Equal(t, models.Day("2025-03-14"), history.To)
	assert.Len(t, history.Records, 2)
	assert.Equal(t, int64(2), history.Totals.Chats)
	assert.Equal(t, int64(200), history.Totals.Tokens)

	_, data = do(t, app, http.MethodGet, "/v1/usage/u1/history?from=2025-03-01&to=2025-03-31", "")
	require.NoError(t, json.Unmarshal(data, &history))
	assert.Len(t, history.Records, 3)
	assert.Equal(t, int64(30), history.Totals.CostMicros)

	resp, _ = do(t, app, http.MethodGet, "/v1/usage/u1/history?from=2025-03-20&to=2025-03-01", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

type brokenLedger struct{ usage.Ledger }

func (brokenLedger) Get(context.Context, string, models.Day) (*models.UsageRecord, error) {
	return nil, errors.New("dial tcp 10.0.0.5:6379: connection refused")
}

func (brokenLedger) History(context.Context, string, models.Day, models.Day) ([]models.UsageRecord, error) {
	return nil, errors.New("dial tcp 10.0.0.5:6379: connection refused")
}

func TestUsageLedgerFailures(t *testing.T) {
	clock := usage.NewClockFunc(time.UTC, func() time.Time {
		return time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	})
	app := fiber.New()
	NewUsageHandler(brokenLedger{}, clock).RegisterRoutes(app, "/v1/usage")

	for _, path := range []string{"/v1/usage/u1", "/v1/usage/u1/history"} {
		resp, data := do(t, app, http.MethodGet, path, "")
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode, path)

		var body response.ErrorResponse
		require.NoError(t, json.Unmarshal(data, &body))
		assert.Equal(t, string(models.ErrorTypeInternal), body.Error.Type)
		assert.Equal(t, "usage ledger unavailable", body.Error.Message)
		assert.NotContains(t, string(data), "10.0.0.5")
	}

	// Validation failures from the ledger stay caller errors.
	app, _ = newUsageApp(t)
	resp, _ := do(t, app, http.MethodGet, "/v1/usage/u1/history?from=2024-01-01&to=2025-03-14", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTiers(t *testing.T) {
	cfg := config.Default()
	cat, err := catalog.New(cfg.Tiers, cfg.Pricing, catalog.RequiredCapabilities)
	require.NoError(t, err)

	app := fiber.New()
	NewTiersHandler(cat).RegisterRoutes(app, "/v1/tiers")

	resp, data := do(t, app, http.MethodGet, "/v1/tiers", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Tiers []TierView `json:"tiers"`
	}
	require.NoError(t, json.Unmarshal(data, &list))
	require.Len(t, list.Tiers, 2)
	assert.Equal(t, models.TierFree, list.Tiers[0].Name)
	assert.Equal(t, "gpt-3.5-turbo", list.Tiers[0].Models[models.CapabilityCharacterReply])

	resp, data = do(t, app, http.MethodGet, "/v1/tiers/premium/features", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var features struct {
		Features models.FeatureFlags `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &features))
	assert.True(t, features.Features.Enabled(models.FeatureModelOverride))

	resp, _ = do(t, app, http.MethodGet, "/v1/tiers/enterprise/features", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthCheck(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	healthyDB := pingerFunc(func(context.Context) error { return nil })

	app := fiber.New()
	app.Get("/health", NewHealthHandler(client, healthyDB).HealthCheck)
	resp, data := do(t, app, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `"status":"healthy"`)

	bare := fiber.New()
	bare.Get("/health", NewHealthHandler(nil, nil).HealthCheck)
	resp, data = do(t, bare, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `"redis":"disabled"`)

	brokenDB := pingerFunc(func(context.Context) error { return errors.New("down") })
	degraded := fiber.New()
	degraded.Get("/health", NewHealthHandler(client, brokenDB).HealthCheck)
	resp, data = do(t, degraded, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(data), `"database":"unhealthy"`)
}
