package controller

import (
	"errors"
	"log"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"

	"databender/utils"
)

type SequenceController struct {
	DB        *gorm.DB
	Logger    *log.Logger
	Leads     *utils.LeadService
	Processor *utils.SequenceProcessor

	mu          sync.Mutex
	subscribers map[*websocket.Conn]struct{}
	lastResult  *utils.ProcessResult
}

func NewSequenceController(db *gorm.DB, logger *log.Logger, leads *utils.LeadService, processor *utils.SequenceProcessor) *SequenceController {
	return &SequenceController{
		DB:          db,
		Logger:      logger,
		Leads:       leads,
		Processor:   processor,
		subscribers: map[*websocket.Conn]struct{}{},
	}
}

type EnrollRequest struct {
	LeadID       uint   `json:"leadId" validate:"required"`
	SequenceType string `json:"sequenceType" validate:"required,max=100"`
	SendFirst    bool   `json:"sendFirst"`
}

// Enroll puts a lead on a sequence from the admin surface.
func (sc *SequenceController) Enroll(c *fiber.Ctx) error {
	var req EnrollRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", nil)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err.Error())
	}

	lead, err := sc.Leads.GetLead(req.LeadID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
	}

	if req.SendFirst {
		err = sc.Processor.EnrollAndSendFirstStep(lead, req.SequenceType)
	} else {
		err = sc.Processor.EnrollInSequence(lead, req.SequenceType)
	}
	if err != nil {
		switch {
		case errors.Is(err, utils.ErrNotFound):
			return utils.ErrorResponse(c, fiber.StatusNotFound, err.Error(), nil)
		case errors.Is(err, utils.ErrValidation):
			return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
		default:
			sc.Logger.Printf("enrollment failed for lead %d: %v", req.LeadID, err)
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to enroll lead", nil)
		}
	}
	return utils.SuccessResponse(c, fiber.StatusCreated, fiber.Map{"enrolled": true})
}

// Pause suspends a lead's sequence.
func (sc *SequenceController) Pause(c *fiber.Ctx) error {
	leadID, err := parseLeadID(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid lead ID", nil)
	}
	lead, err := sc.Leads.GetLead(leadID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
	}

	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.BodyParser(&req)

	if err := sc.Processor.PauseSequence(lead, req.Reason); err != nil {
		if errors.Is(err, utils.ErrValidation) {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to pause sequence", nil)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, fiber.Map{"paused": true})
}

// Resume reactivates a paused sequence.
func (sc *SequenceController) Resume(c *fiber.Ctx) error {
	leadID, err := parseLeadID(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid lead ID", nil)
	}
	lead, err := sc.Leads.GetLead(leadID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
	}

	if err := sc.Processor.ResumeSequence(lead); err != nil {
		if errors.Is(err, utils.ErrValidation) {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to resume sequence", nil)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, fiber.Map{"resumed": true})
}

// ProcessSequences runs one batch on demand. The daily worker calls the
// same processor; this endpoint exists for external cron triggers and
// operator use.
func (sc *SequenceController) ProcessSequences(c *fiber.Ctx) error {
	result := sc.Processor.ProcessSequenceEmails()
	sc.publishResult(result)
	return utils.SuccessResponse(c, fiber.StatusOK, result)
}

// PublishResult pushes a batch result to progress subscribers. The daily
// worker calls this after its scheduled run.
func (sc *SequenceController) PublishResult(result utils.ProcessResult) {
	sc.publishResult(result)
}

func (sc *SequenceController) publishResult(result utils.ProcessResult) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.lastResult = &result
	for conn := range sc.subscribers {
		if err := conn.WriteJSON(result); err != nil {
			delete(sc.subscribers, conn)
			conn.Close()
		}
	}
}

// HandleProgressWS streams batch results to the admin dashboard. On
// connect the subscriber gets the most recent result, then every later
// batch as it completes.
func (sc *SequenceController) HandleProgressWS(c *websocket.Conn) {
	sc.mu.Lock()
	sc.subscribers[c] = struct{}{}
	last := sc.lastResult
	sc.mu.Unlock()

	if last != nil {
		if err := c.WriteJSON(*last); err != nil {
			sc.removeSubscriber(c)
			return
		}
	}

	// Reads only detect disconnect; clients send nothing meaningful
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
	}
	sc.removeSubscriber(c)
}

func (sc *SequenceController) removeSubscriber(c *websocket.Conn) {
	sc.mu.Lock()
	if _, ok := sc.subscribers[c]; ok {
		delete(sc.subscribers, c)
		c.Close()
	}
	sc.mu.Unlock()
}

// Unsubscribe handles the public unsubscribe link from sequence emails.
func (sc *SequenceController) Unsubscribe(c *fiber.Ctx) error {
	token := c.Params("token")

	lead, err := sc.Processor.Unsubscribe(token)
	if err != nil {
		if errors.Is(err, utils.ErrValidation) || errors.Is(err, utils.ErrNotFound) {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid unsubscribe link", nil)
		}
		sc.Logger.Printf("unsubscribe failed: %v", err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to unsubscribe", nil)
	}

	return utils.SuccessResponse(c, fiber.StatusOK, fiber.Map{
		"unsubscribed": true,
		"email":        lead.Email,
	})
}

type EmailEventRequest struct {
	EventType  string `json:"eventType" validate:"required,oneof=bounce complaint delivery"`
	Email      string `json:"email" validate:"required,email"`
	BounceType string `json:"bounceType" validate:"omitempty,oneof=hard soft undetermined"`
}

// HandleEmailEvents ingests bounce and complaint notifications from the
// mail provider's webhook. Unknown recipients are acknowledged without
// error so the provider does not retry forever.
func (sc *SequenceController) HandleEmailEvents(c *fiber.Ctx) error {
	var req EmailEventRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", nil)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err.Error())
	}

	var err error
	switch req.EventType {
	case "bounce":
		bounceType := req.BounceType
		if bounceType == "" {
			bounceType = "undetermined"
		}
		err = sc.Processor.HandleBounce(req.Email, bounceType)
	case "complaint":
		err = sc.Processor.HandleComplaint(req.Email)
	case "delivery":
		// Nothing to record; delivery is the assumed outcome
	}

	if err != nil && !errors.Is(err, utils.ErrNotFound) {
		sc.Logger.Printf("email event %s for %s failed: %v", req.EventType, req.Email, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to process event", nil)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, fiber.Map{"processed": true})
}
