package api

import (
	"context"

	"github.com/Egham-7/adaptive-tiers/internal/models"
	"github.com/Egham-7/adaptive-tiers/internal/services/request"
	"github.com/Egham-7/adaptive-tiers/internal/services/response"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

// Executor runs one tiered invocation.
type Executor interface {
	Execute(ctx context.Context, req models.InvocationRequest) (*models.InvocationResult, error)
}

// InvokeRequest is the POST /v1/invoke body.
type InvokeRequest struct {
	Capability      string      `json:"capability"`
	Tier            models.Tier `json:"tier"`
	UserID          string      `json:"user_id"`
	Prompt          string      `json:"prompt"`
	System          string      `json:"system,omitzero"`
	ModelOverride   string      `json:"model_override,omitzero"`
	EstimatedTokens int         `json:"estimated_tokens,omitzero"`
	MaxOutputTokens int         `json:"max_output_tokens,omitzero"`
	Temperature     *float64    `json:"temperature,omitzero"`
}

// InvokeHandler exposes the orchestrator over HTTP.
type InvokeHandler struct {
	orchestrator Executor
	reqSvc       *request.BaseService
	respSvc      *response.BaseService
}

func NewInvokeHandler(orchestrator Executor) *InvokeHandler {
	return &InvokeHandler{
		orchestrator: orchestrator,
		reqSvc:       request.NewBaseService(),
		respSvc:      response.NewBaseService(),
	}
}

// Invoke handles POST /v1/invoke.
func (h *InvokeHandler) Invoke(c *fiber.Ctx) error {
	reqID := h.reqSvc.GetRequestID(c)

	var body InvokeRequest
	if err := c.BodyParser(&body); err != nil {
		return h.respSvc.BadRequest(c, "invalid request body", reqID)
	}
	if body.EstimatedTokens < 0 || body.MaxOutputTokens < 0 {
		return h.respSvc.BadRequest(c, "token counts must be non-negative", reqID)
	}

	fiberlog.Infof("[%s] invoke capability=%s tier=%s user=%s", reqID, body.Capability, body.Tier, body.UserID)

	result, err := h.orchestrator.Execute(c.UserContext(), models.InvocationRequest{
		RequestID:  reqID,
		Capability: body.Capability,
		Tier:       body.Tier,
		UserID:     body.UserID,
		Prompt: models.Prompt{
			System:          body.System,
			User:            body.Prompt,
			MaxOutputTokens: body.MaxOutputTokens,
			Temperature:     body.Temperature,
		},
		ModelOverride:   body.ModelOverride,
		EstimatedTokens: body.EstimatedTokens,
	})
	if err != nil {
		return h.respSvc.FromError(c, err, reqID)
	}

	return h.respSvc.Success(c, result)
}
