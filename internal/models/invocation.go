package models

import "time"

// Prompt is the provider-neutral request payload.
type Prompt struct {
	System          string   `json:"system,omitzero"`
	User            string   `json:"user"`
	MaxOutputTokens int      `json:"max_output_tokens,omitzero"`
	Temperature     *float64 `json:"temperature,omitzero"`
}

// Text returns all prompt text, used for token estimation.
func (p Prompt) Text() string {
	if p.System == "" {
		return p.User
	}
	return p.System + "\n" + p.User
}

// InvocationRequest is one caller request to the orchestrator.
type InvocationRequest struct {
	RequestID       string `json:"request_id,omitzero"`
	Capability      string `json:"capability"`
	Tier            Tier   `json:"tier"`
	UserID          string `json:"user_id"`
	Prompt          Prompt `json:"prompt"`
	ModelOverride   string `json:"model_override,omitzero"`
	EstimatedTokens int    `json:"estimated_tokens,omitzero"`
}

// Completion is a provider's successful answer.
type Completion struct {
	Text         string        `json:"text"`
	Model        string        `json:"model"`
	InputTokens  int64         `json:"input_tokens"`
	OutputTokens int64         `json:"output_tokens"`
	TotalTokens  int64         `json:"total_tokens"`
	Latency      time.Duration `json:"latency_ns"`
}

// Tokens returns the provider-reported total, summing parts when the total is
// missing.
func (c *Completion) Tokens() int64 {
	if c.TotalTokens > 0 {
		return c.TotalTokens
	}
	return c.InputTokens + c.OutputTokens
}

// InvocationResult is the orchestrator's success outcome. Model is the model
// that actually answered and may differ from RequestedModel.
type InvocationResult struct {
	Completion
	RequestID      string       `json:"request_id"`
	RequestedModel string       `json:"requested_model"`
	FallbackUsed   bool         `json:"fallback_used"`
	Attempted      []string     `json:"attempted"`
	CostMicros     int64        `json:"cost_micros"`
	Usage          *UsageRecord `json:"usage,omitzero"`
}

// InvocationEvent is the telemetry record for one gateway call.
type InvocationEvent struct {
	ID           uint          `gorm:"primaryKey" json:"-"`
	RequestID    string        `gorm:"size:64;index" json:"request_id"`
	UserID       string        `gorm:"size:128;index" json:"user_id"`
	Tier         Tier          `gorm:"size:32" json:"tier"`
	Capability   string        `gorm:"size:64" json:"capability"`
	Model        string        `gorm:"size:128;index" json:"model"`
	Success      bool          `json:"success"`
	Kind         FailureKind   `gorm:"size:32" json:"kind,omitzero"`
	Message      string        `gorm:"size:1024" json:"message,omitzero"`
	InputTokens  int64         `json:"input_tokens"`
	OutputTokens int64         `json:"output_tokens"`
	TotalTokens  int64         `json:"total_tokens"`
	Latency      time.Duration `json:"latency_ns"`
	CreatedAt    time.Time     `json:"created_at"`
}

// TableName pins the table name across drivers.
func (InvocationEvent) TableName() string {
	return "invocation_events"
}

// InvocationMeta travels with a gateway call so telemetry can attribute it.
type InvocationMeta struct {
	RequestID  string
	UserID     string
	Tier       Tier
	Capability string
}
