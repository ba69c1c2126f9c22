package controller

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"databender/models"
	"databender/utils"
	"databender/worker"
)

type EventController struct {
	DB          *gorm.DB
	Logger      *log.Logger
	Attribution *utils.AttributionEngine
	Sessions    *utils.SessionTracker
	Tasks       *worker.TaskQueue
}

func NewEventController(db *gorm.DB, logger *log.Logger, attribution *utils.AttributionEngine, sessions *utils.SessionTracker, tasks *worker.TaskQueue) *EventController {
	return &EventController{
		DB:          db,
		Logger:      logger,
		Attribution: attribution,
		Sessions:    sessions,
		Tasks:       tasks,
	}
}

type TrackEventRequest struct {
	VisitorID string `json:"visitorId" validate:"required,max=100"`
	SessionID string `json:"sessionId" validate:"required,max=100"`
	EventType string `json:"eventType" validate:"required,max=50"`
	Page      string `json:"page" validate:"required,max=500"`
	Referrer  string `json:"referrer" validate:"omitempty,max=2000"`

	UTMSource   string `json:"utmSource" validate:"omitempty,max=200"`
	UTMMedium   string `json:"utmMedium" validate:"omitempty,max=200"`
	UTMCampaign string `json:"utmCampaign" validate:"omitempty,max=200"`
	GCLID       string `json:"gclid" validate:"omitempty,max=200"`

	CompanyName   string `json:"companyName" validate:"omitempty,max=200"`
	CompanyDomain string `json:"companyDomain" validate:"omitempty,max=200"`
}

// TrackEvent ingests one analytics event from the site: it extends the
// visitor's session and appends a touchpoint to the attribution log. The
// response returns as soon as the payload is validated; the writes happen
// on the task queue.
func (ec *EventController) TrackEvent(c *fiber.Ctx) error {
	var req TrackEventRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", nil)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err.Error())
	}

	source, medium := req.UTMSource, req.UTMMedium
	if source == "" {
		ref := utils.ParseReferrerSource(req.Referrer)
		source, medium = ref.Source, ref.Medium
	}
	channel := utils.ChannelLabel(source, medium, req.GCLID)

	userAgent := c.Get("User-Agent")
	now := time.Now()

	ec.Tasks.Submit(func() {
		if req.EventType == models.TouchpointPageview {
			err := ec.Sessions.RecordPageView(utils.PageViewInput{
				VisitorID:     req.VisitorID,
				SessionID:     req.SessionID,
				Page:          req.Page,
				Referrer:      req.Referrer,
				UTMCampaign:   req.UTMCampaign,
				UserAgent:     userAgent,
				CompanyName:   req.CompanyName,
				CompanyDomain: req.CompanyDomain,
				Timestamp:     now,
			})
			if err != nil {
				ec.Logger.Printf("session update failed for %s: %v", req.SessionID, err)
			}
		}

		err := ec.Attribution.StoreTouchpoint(&models.Touchpoint{
			VisitorID: req.VisitorID,
			SessionID: req.SessionID,
			Timestamp: now,
			Type:      req.EventType,
			Page:      req.Page,
			Source:    channel,
			Medium:    medium,
			Campaign:  req.UTMCampaign,
			Referrer:  req.Referrer,
			GCLID:     req.GCLID,
		})
		if err != nil {
			ec.Logger.Printf("touchpoint store failed for %s: %v", req.VisitorID, err)
			return
		}
		utils.TouchpointsRecorded.WithLabelValues(req.EventType).Inc()

		if models.IsConversionTouchpoint(req.EventType) {
			if err := ec.Sessions.RecordConversion(req.SessionID, req.EventType); err != nil {
				ec.Logger.Printf("conversion flag failed for %s: %v", req.SessionID, err)
			}
		}
	})

	return utils.SuccessResponse(c, fiber.StatusAccepted, fiber.Map{"recorded": true})
}

type SelfReportedRequest struct {
	VisitorID string `json:"visitorId" validate:"required,max=100"`
	Response  string `json:"response" validate:"required,max=500"`
}

// TrackSelfReportedSource records a "how did you hear about us" answer.
func (ec *EventController) TrackSelfReportedSource(c *fiber.Ctx) error {
	var req SelfReportedRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", nil)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err.Error())
	}

	if err := ec.Attribution.RecordSelfReportedSource(req.VisitorID, req.Response); err != nil {
		ec.Logger.Printf("self-reported source failed for %s: %v", req.VisitorID, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to record response", nil)
	}

	return utils.SuccessResponse(c, fiber.StatusCreated, fiber.Map{"recorded": true})
}
