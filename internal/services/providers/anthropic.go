package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Egham-7/adaptive-tiers/internal/models"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Anthropic requires max_tokens on every request.
const defaultAnthropicMaxTokens = 1024

// Anthropic calls the messages API.
type Anthropic struct {
	client anthropic.Client
}

func NewAnthropic(cfg models.ProviderConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, models.NewConfigurationError("anthropic API key not configured")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	for key, value := range cfg.Headers {
		opts = append(opts, option.WithHeader(key, value))
	}

	return &Anthropic{client: anthropic.NewClient(opts...)}, nil
}

func (p *Anthropic) Complete(ctx context.Context, model string, prompt models.Prompt) (*models.Completion, error) {
	maxTokens := int64(prompt.MaxOutputTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt.User)),
		},
	}
	if prompt.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: prompt.System}}
	}
	if prompt.Temperature != nil {
		params.Temperature = anthropic.Float(*prompt.Temperature)
	}

	start := time.Now()
	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, translateAnthropicError(err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &models.Completion{
		Text:         text.String(),
		Model:        model,
		InputTokens:  message.Usage.InputTokens,
		OutputTokens: message.Usage.OutputTokens,
		TotalTokens:  message.Usage.InputTokens + message.Usage.OutputTokens,
		Latency:      time.Since(start),
	}, nil
}

// anthropicErrorBody is the error envelope the messages API returns.
type anthropicErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func translateAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	providerErr := &models.ProviderError{
		Provider:   string(models.ProviderAnthropic),
		StatusCode: apiErr.StatusCode,
		Message:    http.StatusText(apiErr.StatusCode),
		Err:        err,
	}

	var body anthropicErrorBody
	if raw := apiErr.RawJSON(); raw != "" && json.Unmarshal([]byte(raw), &body) == nil {
		providerErr.Type = body.Error.Type
		providerErr.Code = body.Error.Type
		if body.Error.Message != "" {
			providerErr.Message = body.Error.Message
		}
	}
	return providerErr
}
