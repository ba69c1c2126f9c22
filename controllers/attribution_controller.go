package controller

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"databender/utils"
)

type AttributionController struct {
	DB     *gorm.DB
	Logger *log.Logger
	Engine *utils.AttributionEngine
}

func NewAttributionController(db *gorm.DB, logger *log.Logger, engine *utils.AttributionEngine) *AttributionController {
	return &AttributionController{DB: db, Logger: logger, Engine: engine}
}

// GetVisitorAttribution computes the credit assignment for one visitor.
// An optional as_of query param bounds the touchpoint window; it defaults
// to now.
func (ac *AttributionController) GetVisitorAttribution(c *fiber.Ctx) error {
	visitorID := c.Params("visitorId")
	if visitorID == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Visitor ID is required", nil)
	}

	asOf := time.Now()
	if raw := c.Query("as_of"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid as_of timestamp", nil)
		}
		asOf = parsed
	}

	result, err := ac.Engine.CalculateAttribution(visitorID, asOf)
	if err != nil {
		ac.Logger.Printf("attribution failed for %s: %v", visitorID, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to compute attribution", nil)
	}
	if result == nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "No touchpoints for visitor", nil)
	}

	return utils.SuccessResponse(c, fiber.StatusOK, fiber.Map{
		"attribution": result,
		"model": utils.CreditModel{
			FullShape:      "30/30/30/10",
			PreOpportunity: "40/40/20",
		},
	})
}

// GetChannelSummary aggregates attribution per channel over a date range.
func (ac *AttributionController) GetChannelSummary(c *fiber.Ctx) error {
	startDate, endDate, err := parseDateRange(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	summary, err := ac.Engine.GetChannelAttribution(startDate, endDate)
	if err != nil {
		ac.Logger.Printf("channel summary failed: %v", err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to compute summary", nil)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, summary)
}

type MarkOpportunityRequest struct {
	VisitorID string  `json:"visitorId" validate:"required,max=100"`
	Timestamp string  `json:"timestamp" validate:"omitempty"`
	DealValue float64 `json:"dealValue" validate:"omitempty,gte=0"`
}

// MarkOpportunity records the opportunity anchor for a visitor. Re-marking
// overwrites the previous timestamp and value.
func (ac *AttributionController) MarkOpportunity(c *fiber.Ctx) error {
	var req MarkOpportunityRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", nil)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err.Error())
	}

	timestamp := time.Now()
	if req.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid timestamp", nil)
		}
		timestamp = parsed
	}

	if err := ac.Engine.MarkOpportunityCreated(req.VisitorID, timestamp, req.DealValue); err != nil {
		ac.Logger.Printf("opportunity marking failed for %s: %v", req.VisitorID, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to mark opportunity", nil)
	}
	return utils.SuccessResponse(c, fiber.StatusCreated, fiber.Map{"marked": true})
}
