package providers

import (
	"context"
	"errors"
	"time"

	"github.com/Egham-7/adaptive-tiers/internal/models"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAI calls the chat completions API.
type OpenAI struct {
	client openai.Client
}

func NewOpenAI(cfg models.ProviderConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, models.NewConfigurationError("openai API key not configured")
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

	return &OpenAI{client: openai.NewClient(opts...)}, nil
}

func (p *OpenAI) Complete(ctx context.Context, model string, prompt models.Prompt) (*models.Completion, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if prompt.System != "" {
		messages = append(messages, openai.SystemMessage(prompt.System))
	}
	messages = append(messages, openai.UserMessage(prompt.User))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}
	if prompt.MaxOutputTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(prompt.MaxOutputTokens))
	}
	if prompt.Temperature != nil {
		params.Temperature = openai.Float(*prompt.Temperature)
	}

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, translateOpenAIError(err)
	}

	var text string
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}

	return &models.Completion{
		Text:         text,
		Model:        model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		TotalTokens:  resp.Usage.TotalTokens,
		Latency:      time.Since(start),
	}, nil
}

func translateOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &models.ProviderError{
			Provider:   string(models.ProviderOpenAI),
			StatusCode: apiErr.StatusCode,
			Code:       apiErr.Code,
			Type:       apiErr.Type,
			Message:    apiErr.Message,
			Err:        err,
		}
	}
	return err
}
