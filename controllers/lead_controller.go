package controller

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"databender/models"
	"databender/utils"
	"databender/worker"
)

// Form types that enroll the new lead into a nurture sequence.
var sequenceForFormType = map[string]string{
	"assessment": "assessment",
	"guide":      "guide-general",
}

type LeadController struct {
	DB        *gorm.DB
	Logger    *log.Logger
	Leads     *utils.LeadService
	Processor *utils.SequenceProcessor
	Companies *utils.CompanyLookup
	Tasks     *worker.TaskQueue
}

func NewLeadController(db *gorm.DB, logger *log.Logger, leads *utils.LeadService, processor *utils.SequenceProcessor, companies *utils.CompanyLookup, tasks *worker.TaskQueue) *LeadController {
	return &LeadController{
		DB:        db,
		Logger:    logger,
		Leads:     leads,
		Processor: processor,
		Companies: companies,
		Tasks:     tasks,
	}
}

// CaptureLead is the public intake for every capture surface: contact form,
// guide download, assessment, chat. Creation and dedup happen inline;
// company enrichment and the first sequence email go to the task queue.
func (lc *LeadController) CaptureLead(c *fiber.Ctx) error {
	var input utils.CreateLeadInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", nil)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err.Error())
	}

	lead, created, err := lc.Leads.CreateLead(input)
	if err != nil {
		if errors.Is(err, utils.ErrValidation) {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
		}
		lc.Logger.Printf("lead capture failed for %s: %v", input.Email, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to save lead", nil)
	}

	if created {
		utils.LeadsCreated.WithLabelValues(input.FormType).Inc()

		leadID := lead.ID
		lc.Tasks.Submit(func() { lc.enrichCompany(leadID) })

		if sequenceType, ok := sequenceForFormType[input.FormType]; ok {
			lc.Tasks.Submit(func() { lc.enrollLead(leadID, sequenceType) })
		}
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return utils.SuccessResponse(c, status, fiber.Map{
		"leadId":  lead.ID,
		"created": created,
	})
}

func (lc *LeadController) enrichCompany(leadID uint) {
	lead, err := lc.Leads.GetLead(leadID)
	if err != nil || lead.IdentifiedDomain != "" {
		return
	}
	name, domain := lc.Companies.IdentifyCompany(lead.Email)
	if domain == "" {
		return
	}
	err = lc.DB.Model(&models.Lead{}).Where("id = ?", leadID).Updates(map[string]interface{}{
		"identified_company": name,
		"identified_domain":  domain,
	}).Error
	if err != nil {
		lc.Logger.Printf("company enrichment write failed for lead %d: %v", leadID, err)
	}
}

func (lc *LeadController) enrollLead(leadID uint, sequenceType string) {
	lead, err := lc.Leads.GetLead(leadID)
	if err != nil {
		lc.Logger.Printf("enrollment lookup failed for lead %d: %v", leadID, err)
		return
	}
	if err := lc.Processor.EnrollAndSendFirstStep(lead, sequenceType); err != nil {
		lc.Logger.Printf("enrollment failed for lead %d: %v", leadID, err)
	}
}

// GetLeads lists leads for the admin dashboard with filters and pagination.
func (lc *LeadController) GetLeads(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "50"))

	filter := utils.LeadFilter{
		Status:         c.Query("status"),
		Tier:           c.Query("tier"),
		FormType:       c.Query("form_type"),
		SequenceStatus: c.Query("sequence_status"),
		Search:         c.Query("search"),
		Page:           page,
		Limit:          limit,
	}

	leads, total, err := lc.Leads.GetLeads(filter)
	if err != nil {
		lc.Logger.Printf("lead listing failed: %v", err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch leads", nil)
	}
	return utils.PaginatedResponse(c, fiber.StatusOK, leads, total, page, limit)
}

// GetLead returns a single lead.
func (lc *LeadController) GetLead(c *fiber.Ctx) error {
	leadID, err := parseLeadID(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid lead ID", nil)
	}

	lead, err := lc.Leads.GetLead(leadID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch lead", nil)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, lead)
}

// UpdateLead applies CRM-state changes (status, tier, industry, tags).
func (lc *LeadController) UpdateLead(c *fiber.Ctx) error {
	leadID, err := parseLeadID(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid lead ID", nil)
	}

	var input utils.UpdateLeadInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", nil)
	}

	if err := lc.Leads.UpdateLeadStatus(leadID, input); err != nil {
		switch {
		case errors.Is(err, utils.ErrNotFound):
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
		case errors.Is(err, utils.ErrValidation):
			return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
		default:
			lc.Logger.Printf("lead update failed for %d: %v", leadID, err)
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update lead", nil)
		}
	}
	return utils.SuccessResponse(c, fiber.StatusOK, fiber.Map{"updated": true})
}

type AddNoteRequest struct {
	Content string `json:"content" validate:"required"`
	Author  string `json:"author" validate:"omitempty,max=100"`
}

// AddNote appends a note to a lead.
func (lc *LeadController) AddNote(c *fiber.Ctx) error {
	leadID, err := parseLeadID(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid lead ID", nil)
	}

	var req AddNoteRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", nil)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err.Error())
	}

	note, err := lc.Leads.AddNoteToLead(leadID, req.Content, req.Author)
	if err != nil {
		switch {
		case errors.Is(err, utils.ErrNotFound):
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
		case errors.Is(err, utils.ErrValidation):
			return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
		default:
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to add note", nil)
		}
	}
	return utils.SuccessResponse(c, fiber.StatusCreated, note)
}

type RecordContactRequest struct {
	Channel  string `json:"channel" validate:"required"`
	Campaign string `json:"campaign" validate:"omitempty,max=200"`
	Notes    string `json:"notes" validate:"omitempty,max=5000"`
}

// RecordContact logs an outreach touch against a lead.
func (lc *LeadController) RecordContact(c *fiber.Ctx) error {
	leadID, err := parseLeadID(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid lead ID", nil)
	}

	var req RecordContactRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", nil)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err.Error())
	}

	record, err := lc.Leads.RecordContact(leadID, req.Channel, req.Campaign, req.Notes)
	if err != nil {
		switch {
		case errors.Is(err, utils.ErrNotFound):
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
		case errors.Is(err, utils.ErrValidation):
			return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
		default:
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to record contact", nil)
		}
	}
	return utils.SuccessResponse(c, fiber.StatusCreated, record)
}

// GetLeadStats aggregates leads created in a date range.
func (lc *LeadController) GetLeadStats(c *fiber.Ctx) error {
	startDate, endDate, err := parseDateRange(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	stats, err := lc.Leads.GetLeadStats(startDate, endDate)
	if err != nil {
		lc.Logger.Printf("lead stats failed: %v", err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to compute stats", nil)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, stats)
}

// ExportLeads streams the filtered lead list as CSV.
func (lc *LeadController) ExportLeads(c *fiber.Ctx) error {
	filter := utils.LeadFilter{
		Status:   c.Query("status"),
		Tier:     c.Query("tier"),
		FormType: c.Query("form_type"),
		Page:     1,
		Limit:    200,
	}

	c.Set("Content-Type", "text/csv")
	c.Set("Content-Disposition", `attachment; filename="leads.csv"`)

	writer := csv.NewWriter(c.Response().BodyWriter())
	header := []string{
		"id", "email", "first_name", "last_name", "company", "phone",
		"status", "tier", "form_type", "source_page", "first_touch_source",
		"sequence_status", "total_opens", "total_clicks", "created_at",
	}
	if err := writer.Write(header); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to write CSV", nil)
	}

	for {
		leads, _, err := lc.Leads.GetLeads(filter)
		if err != nil {
			lc.Logger.Printf("lead export failed: %v", err)
			break
		}
		for _, lead := range leads {
			row := []string{
				strconv.FormatUint(uint64(lead.ID), 10),
				lead.Email,
				lead.FirstName,
				lead.LastName,
				lead.Company,
				lead.Phone,
				lead.Status,
				lead.Tier,
				lead.FormType,
				lead.SourcePage,
				lead.FirstTouchSource,
				lead.SequenceStatus,
				strconv.Itoa(lead.TotalOpens),
				strconv.Itoa(lead.TotalClicks),
				lead.CreatedAt.Format(time.RFC3339),
			}
			if err := writer.Write(row); err != nil {
				lc.Logger.Printf("lead export write failed: %v", err)
				break
			}
		}
		if len(leads) < filter.Limit {
			break
		}
		filter.Page++
	}

	writer.Flush()
	return nil
}

func parseLeadID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid lead id")
	}
	return uint(id), nil
}

// parseDateRange reads start/end query params, defaulting to the last 30
// days.
func parseDateRange(c *fiber.Ctx) (time.Time, time.Time, error) {
	endDate := time.Now()
	startDate := endDate.AddDate(0, 0, -30)

	if raw := c.Query("start"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start date %q", raw)
		}
		startDate = parsed
	}
	if raw := c.Query("end"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end date %q", raw)
		}
		// Inclusive through end of day
		endDate = parsed.Add(24*time.Hour - time.Second)
	}
	if endDate.Before(startDate) {
		return time.Time{}, time.Time{}, fmt.Errorf("end date precedes start date")
	}
	return startDate, endDate, nil
}
