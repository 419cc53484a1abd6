package api

import (
	"errors"

	"github.com/Egham-7/adaptive-tiers/internal/models"
	"github.com/Egham-7/adaptive-tiers/internal/services/request"
	"github.com/Egham-7/adaptive-tiers/internal/services/response"
	"github.com/Egham-7/adaptive-tiers/internal/services/usage"

	"github.com/gofiber/fiber/v2"
)

const defaultHistoryDays = 7

type UsageHandler struct {
	ledger  usage.Ledger
	clock   *usage.Clock
	reqSvc  *request.BaseService
	respSvc *response.BaseService
}

func NewUsageHandler(ledger usage.Ledger, clock *usage.Clock) *UsageHandler {
	return &UsageHandler{
		ledger:  ledger,
		clock:   clock,
		reqSvc:  request.NewBaseService(),
		respSvc: response.NewBaseService(),
	}
}

func (h *UsageHandler) RegisterRoutes(router fiber.Router, basePath string) {
	group := router.Group(basePath)
	group.Get("/:userId", h.GetDailyUsage)
	group.Get("/:userId/history", h.GetHistory)
}

// GetDailyUsage returns one day's counters, today by default.
func (h *UsageHandler) GetDailyUsage(c *fiber.Ctx) error {
	reqID := h.reqSvc.GetRequestID(c)

	day := h.clock.Today()
	if raw := c.Query("day"); raw != "" {
		parsed, err := models.ParseDay(raw)
		if err != nil {
			return h.respSvc.BadRequest(c, err.Error(), reqID)
		}
		day = parsed
	}

	record, err := h.ledger.Get(c.UserContext(), c.Params("userId"), day)
	if err != nil {
		return h.respSvc.FromError(c, ledgerError(err), reqID)
	}
	return h.respSvc.Success(c, record)
}

// UsageHistory is the GET /v1/usage/:userId/history response.
type UsageHistory struct {
	UserID  string               `json:"user_id"`
	From    models.Day           `json:"from"`
	To      models.Day           `json:"to"`
	Records []models.UsageRecord `json:"records"`
	Totals  UsageTotals          `json:"totals"`
}

type UsageTotals struct {
	Chats      int64 `json:"chats"`
	Tokens     int64 `json:"tokens"`
	CostMicros int64 `json:"cost_micros"`
}

// GetHistory returns days with recorded usage in [from, to]. Defaults to the
// last seven days ending today.
func (h *UsageHandler) GetHistory(c *fiber.Ctx) error {
	reqID := h.reqSvc.GetRequestID(c)

	to := h.clock.Today()
	if raw := c.Query("to"); raw != "" {
		parsed, err := models.ParseDay(raw)
		if err != nil {
			return h.respSvc.BadRequest(c, err.Error(), reqID)
		}
		to = parsed
	}

	from := models.Day(to.Time().AddDate(0, 0, -(defaultHistoryDays - 1)).Format(models.DayLayout))
	if raw := c.Query("from"); raw != "" {
		parsed, err := models.ParseDay(raw)
		if err != nil {
			return h.respSvc.BadRequest(c, err.Error(), reqID)
		}
		from = parsed
	}

	userID := c.Params("userId")
	records, err := h.ledger.History(c.UserContext(), userID, from, to)
	if err != nil {
		return h.respSvc.FromError(c, ledgerError(err), reqID)
	}

	history := UsageHistory{
		UserID:  userID,
		From:    from,
		To:      to,
		Records: records,
	}
	if history.Records == nil {
		history.Records = []models.UsageRecord{}
	}
	for _, record := range records {
		history.Totals.Chats += record.ChatCount
		history.Totals.Tokens += record.TokenCount
		history.Totals.CostMicros += record.CostMicros
	}
	return h.respSvc.Success(c, history)
}

// ledgerError keeps validation failures as caller errors and reports store
// failures as internal ones.
func ledgerError(err error) error {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return models.NewInternalError("usage ledger unavailable", err)
}
