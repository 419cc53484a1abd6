package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Egham-7/adaptive-tiers/internal/models"

	"google.golang.org/genai"
)

// Gemini calls the Gemini API generateContent endpoint.
type Gemini struct {
	client *genai.Client
}

func NewGemini(cfg models.ProviderConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, models.NewConfigurationError("gemini API key not configured")
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" || len(cfg.Headers) > 0 {
		headers := http.Header{}
		for key, value := range cfg.Headers {
			headers.Set(key, value)
		}
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL, Headers: headers}
	}

	client, err := genai.NewClient(context.Background(), clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Gemini{client: client}, nil
}

func (p *Gemini) Complete(ctx context.Context, model string, prompt models.Prompt) (*models.Completion, error) {
	config := &genai.GenerateContentConfig{}
	if prompt.System != "" {
		config.SystemInstruction = genai.NewContentFromText(prompt.System, genai.RoleUser)
	}
	if prompt.MaxOutputTokens > 0 {
		config.MaxOutputTokens = int32(prompt.MaxOutputTokens)
	}
	if prompt.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*prompt.Temperature))
	}

	start := time.Now()
	resp, err := p.client.Models.GenerateContent(ctx, model, genai.Text(prompt.User), config)
	if err != nil {
		return nil, translateGeminiError(err)
	}

	completion := &models.Completion{
		Text:    resp.Text(),
		Model:   model,
		Latency: time.Since(start),
	}
	if usage := resp.UsageMetadata; usage != nil {
		completion.InputTokens = int64(usage.PromptTokenCount)
		completion.OutputTokens = int64(usage.CandidatesTokenCount)
		completion.TotalTokens = int64(usage.TotalTokenCount)
	}
	return completion, nil
}

func translateGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return geminiProviderError(apiErr, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return geminiProviderError(*apiErrPtr, err)
	}
	return err
}

func geminiProviderError(apiErr genai.APIError, err error) *models.ProviderError {
	return &models.ProviderError{
		Provider:   string(models.ProviderGemini),
		StatusCode: apiErr.Code,
		Code:       apiErr.Status,
		Type:       apiErr.Status,
		Message:    apiErr.Message,
		Err:        err,
	}
}
