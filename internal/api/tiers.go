package api

import (
	"github.com/Egham-7/adaptive-tiers/internal/models"
	"github.com/Egham-7/adaptive-tiers/internal/services/catalog"
	"github.com/Egham-7/adaptive-tiers/internal/services/request"
	"github.com/Egham-7/adaptive-tiers/internal/services/response"

	"github.com/gofiber/fiber/v2"
)

// TiersHandler serves the read-only tier catalog.
type TiersHandler struct {
	catalog *catalog.Catalog
	reqSvc  *request.BaseService
	respSvc *response.BaseService
}

func NewTiersHandler(c *catalog.Catalog) *TiersHandler {
	return &TiersHandler{
		catalog: c,
		reqSvc:  request.NewBaseService(),
		respSvc: response.NewBaseService(),
	}
}

func (h *TiersHandler) RegisterRoutes(router fiber.Router, basePath string) {
	group := router.Group(basePath)
	group.Get("/", h.ListTiers)
	group.Get("/:tier/features", h.GetFeatures)
}

// TierView is one tier as listed by GET /v1/tiers.
type TierView struct {
	Name models.Tier `json:"name"`
	models.TierConfig
}

func (h *TiersHandler) ListTiers(c *fiber.Ctx) error {
	reqID := h.reqSvc.GetRequestID(c)

	tiers := h.catalog.Tiers()
	views := make([]TierView, 0, len(tiers))
	for _, tier := range tiers {
		cfg, err := h.catalog.Describe(tier)
		if err != nil {
			return h.respSvc.FromError(c, err, reqID)
		}
		views = append(views, TierView{Name: tier, TierConfig: cfg})
	}
	return h.respSvc.Success(c, fiber.Map{"tiers": views})
}

func (h *TiersHandler) GetFeatures(c *fiber.Ctx) error {
	reqID := h.reqSvc.GetRequestID(c)

	tier := models.Tier(c.Params("tier"))
	features, err := h.catalog.FeaturesFor(tier)
	if err != nil {
		return h.respSvc.FromError(c, models.NewNotFoundError("unknown tier "+string(tier)), reqID)
	}
	return h.respSvc.Success(c, fiber.Map{"tier": tier, "features": features})
}
