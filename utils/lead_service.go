package utils

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/badoux/checkmail"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"databender/models"
)

// Sentinel errors surfaced to the API boundary. Handlers map ErrNotFound to
// 404 and ErrValidation to 400.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
)

const maxFreeTextLength = 5000

// CreateLeadInput is the payload for lead creation from any capture surface
// (contact form, guide download, assessment, chat).
type CreateLeadInput struct {
	Email         string `json:"email" validate:"required,email"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	Company       string `json:"company"`
	Phone         string `json:"phone"`
	Message       string `json:"message"`
	FormType      string `json:"formType"`
	ResourceSlug  string `json:"resourceSlug"`
	ResourceTitle string `json:"resourceTitle"`
	SourcePage    string `json:"sourcePage"`
	Industry      string `json:"industry"`
	VisitorID     string `json:"visitorId"`
	SessionID     string `json:"sessionId"`
	UTMSource     string `json:"utmSource"`
	UTMMedium     string `json:"utmMedium"`
	UTMCampaign   string `json:"utmCampaign"`
}

// LeadAnalytics holds the derived fields merged into a lead at creation.
type LeadAnalytics struct {
	SourcePage            string
	UTMCampaign           string
	ReferrerSource        string
	FirstTouchSource      string
	FirstTouchLandingPage string
	IdentifiedCompany     string
	IdentifiedDomain      string
}

// UpdateLeadInput carries partial CRM-state updates. Nil fields are left
// untouched.
type UpdateLeadInput struct {
	Status   *string `json:"status"`
	Tier     *string `json:"tier"`
	Industry *string `json:"industry"`
	Tags     *[]string `json:"tags"`
}

// LeadFilter narrows admin lead listings.
type LeadFilter struct {
	Status         string
	Tier           string
	FormType       string
	SequenceStatus string
	Search         string
	Page           int
	Limit          int
}

// LeadStats is a pure aggregation over leads created in a date range.
type LeadStats struct {
	Total      int64            `json:"total"`
	ByStatus   map[string]int64 `json:"byStatus"`
	ByTier     map[string]int64 `json:"byTier"`
	ByFormType map[string]int64 `json:"byFormType"`
	Replied    int64            `json:"replied"`
}

// LeadService owns the Lead entity: creation, deduplication by email,
// status transitions, scoring, notes and contact history.
type LeadService struct {
	DB     *gorm.DB
	Logger *logrus.Logger
}

func NewLeadService(db *gorm.DB, logger *logrus.Logger) *LeadService {
	return &LeadService{DB: db, Logger: logger}
}

// CreateLead creates a lead or merges into the existing one keyed by email
// (case-insensitive). Merging only fills previously-empty fields, except
// lastActivityAt which always advances. The returned bool is true when a
// new lead was created.
func (s *LeadService) CreateLead(input CreateLeadInput) (*models.Lead, bool, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, false, fmt.Errorf("%w: email is required", ErrValidation)
	}
	if err := checkmail.ValidateFormat(email); err != nil {
		return nil, false, fmt.Errorf("%w: malformed email", ErrValidation)
	}
	if len(input.Message) > maxFreeTextLength {
		return nil, false, fmt.Errorf("%w: message exceeds %d characters", ErrValidation, maxFreeTextLength)
	}

	now := time.Now()

	var existing models.Lead
	err := s.DB.Where("LOWER(email) = ?", email).First(&existing).Error
	if err == nil {
		s.mergeLead(&existing, input, now)
		if err := s.DB.Save(&existing).Error; err != nil {
			return nil, false, fmt.Errorf("merging lead: %w", err)
		}
		return &existing, false, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, false, fmt.Errorf("looking up lead by email: %w", err)
	}

	analytics := s.EnrichLeadWithAnalytics(input.VisitorID, input.SessionID)

	score := EventScore(models.TouchpointFormSubmit, input.SourcePage, input.FormType)
	lead := models.Lead{
		Email:           email,
		FirstName:       strings.TrimSpace(input.FirstName),
		LastName:        strings.TrimSpace(input.LastName),
		Company:         strings.TrimSpace(input.Company),
		Phone:           strings.TrimSpace(input.Phone),
		Message:         input.Message,
		FormType:        input.FormType,
		ResourceSlug:    input.ResourceSlug,
		ResourceTitle:   input.ResourceTitle,
		SourcePage:      firstNonEmpty(input.SourcePage, analytics.SourcePage),
		Industry:        input.Industry,
		VisitorID:       input.VisitorID,
		SessionID:       input.SessionID,
		Status:          "new",
		Tier:            TierForScore(score),
		EngagementScore: score,
		LeadSource:      "website",

		UTMSource:             input.UTMSource,
		UTMMedium:             input.UTMMedium,
		UTMCampaign:           firstNonEmpty(input.UTMCampaign, analytics.UTMCampaign),
		ReferrerSource:        analytics.ReferrerSource,
		FirstTouchSource:      analytics.FirstTouchSource,
		FirstTouchLandingPage: analytics.FirstTouchLandingPage,
		IdentifiedCompany:     analytics.IdentifiedCompany,
		IdentifiedDomain:      analytics.IdentifiedDomain,

		LastActivityAt: &now,
	}
	if err := s.DB.Create(&lead).Error; err != nil {
		return nil, false, fmt.Errorf("creating lead: %w", err)
	}
	return &lead, true, nil
}

// mergeLead fills previously-empty fields from a re-submission and appends
// a synthetic contact record marking it.
func (s *LeadService) mergeLead(lead *models.Lead, input CreateLeadInput, now time.Time) {
	fillString(&lead.FirstName, input.FirstName)
	fillString(&lead.LastName, input.LastName)
	fillString(&lead.Company, input.Company)
	fillString(&lead.Phone, input.Phone)
	fillString(&lead.Message, input.Message)
	fillString(&lead.Industry, input.Industry)
	fillString(&lead.VisitorID, input.VisitorID)
	fillString(&lead.SessionID, input.SessionID)
	fillString(&lead.UTMSource, input.UTMSource)
	fillString(&lead.UTMMedium, input.UTMMedium)
	fillString(&lead.UTMCampaign, input.UTMCampaign)
	fillString(&lead.SourcePage, input.SourcePage)

	lead.ContactHistory = append(lead.ContactHistory, models.ContactRecord{
		ID:          uuid.NewString(),
		Channel:     "other",
		Campaign:    input.FormType,
		Notes:       fmt.Sprintf("Re-submission via %s form", firstNonEmpty(input.FormType, "unknown")),
		ContactedAt: now,
	})
	lead.LastActivityAt = &now
}

// EnrichLeadWithAnalytics derives attribution fields from the visitor's
// tracking history. It never fails the creation flow: on any lookup error
// it returns an empty result.
func (s *LeadService) EnrichLeadWithAnalytics(visitorID, sessionID string) LeadAnalytics {
	var out LeadAnalytics
	if visitorID == "" && sessionID == "" {
		return out
	}

	if visitorID != "" {
		var first models.Touchpoint
		err := s.DB.
			Where("visitor_id = ?", visitorID).
			Order("timestamp ASC, id ASC").
			First(&first).Error
		if err == nil {
			out.FirstTouchSource = NormalizeToChannel(first.Source, first.Medium)
			out.FirstTouchLandingPage = first.Page
		} else if err != gorm.ErrRecordNotFound && s.Logger != nil {
			s.Logger.WithField("visitor_id", visitorID).Debug("first-touch lookup failed")
		}
	}

	if sessionID != "" {
		var session models.Session
		err := s.DB.Where("session_id = ?", sessionID).First(&session).Error
		if err == nil {
			out.SourcePage = session.EntryPage
			out.UTMCampaign = session.UTMCampaign
			out.ReferrerSource = session.ReferrerSource
			out.IdentifiedCompany = session.CompanyName
			out.IdentifiedDomain = session.CompanyDomain
		} else if err != gorm.ErrRecordNotFound && s.Logger != nil {
			s.Logger.WithField("session_id", sessionID).Debug("session lookup failed")
		}
	}

	return out
}

// GetLead loads a lead by id.
func (s *LeadService) GetLead(leadID uint) (*models.Lead, error) {
	var lead models.Lead
	err := s.DB.First(&lead, leadID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("%w: lead %d", ErrNotFound, leadID)
	}
	if err != nil {
		return nil, err
	}
	return &lead, nil
}

// GetLeadByEmail loads a lead by its identity key, case-insensitive.
func (s *LeadService) GetLeadByEmail(email string) (*models.Lead, error) {
	var lead models.Lead
	err := s.DB.Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).First(&lead).Error
	if err == gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("%w: lead %s", ErrNotFound, email)
	}
	if err != nil {
		return nil, err
	}
	return &lead, nil
}

// UpdateLeadStatus applies CRM-state updates. Enum values are re-checked
// here regardless of what the API layer validated.
func (s *LeadService) UpdateLeadStatus(leadID uint, updates UpdateLeadInput) error {
	if updates.Status != nil && !models.IsValidLeadStatus(*updates.Status) {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, *updates.Status)
	}
	if updates.Tier != nil && !models.IsValidLeadTier(*updates.Tier) {
		return fmt.Errorf("%w: invalid tier %q", ErrValidation, *updates.Tier)
	}

	lead, err := s.GetLead(leadID)
	if err != nil {
		return err
	}

	if updates.Status != nil {
		lead.Status = *updates.Status
	}
	if updates.Tier != nil {
		lead.Tier = *updates.Tier
	}
	if updates.Industry != nil {
		lead.Industry = *updates.Industry
	}
	if updates.Tags != nil {
		lead.Tags = *updates.Tags
	}
	now := time.Now()
	lead.LastActivityAt = &now

	return s.DB.Save(lead).Error
}

// RecordContact appends one outreach touch to the lead's contact history.
func (s *LeadService) RecordContact(leadID uint, channel, campaign, notes string) (*models.ContactRecord, error) {
	if !models.IsValidContactChannel(channel) {
		return nil, fmt.Errorf("%w: invalid contact channel %q", ErrValidation, channel)
	}
	if len(notes) > maxFreeTextLength {
		return nil, fmt.Errorf("%w: notes exceed %d characters", ErrValidation, maxFreeTextLength)
	}

	lead, err := s.GetLead(leadID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	record := models.ContactRecord{
		ID:          uuid.NewString(),
		Channel:     channel,
		Campaign:    campaign,
		Notes:       notes,
		ContactedAt: now,
	}
	lead.ContactHistory = append(lead.ContactHistory, record)
	lead.LastActivityAt = &now
	if lead.Status == "new" {
		lead.Status = "contacted"
	}

	if err := s.DB.Save(lead).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// AddNoteToLead appends a free-text note. Content must be non-empty after
// trimming.
func (s *LeadService) AddNoteToLead(leadID uint, content, author string) (*models.LeadNote, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: note content is empty", ErrValidation)
	}
	if len(content) > maxFreeTextLength {
		return nil, fmt.Errorf("%w: note exceeds %d characters", ErrValidation, maxFreeTextLength)
	}

	lead, err := s.GetLead(leadID)
	if err != nil {
		return nil, err
	}

	note := models.LeadNote{
		ID:        uuid.NewString(),
		Content:   content,
		Author:    author,
		CreatedAt: time.Now(),
	}
	lead.Notes = append(lead.Notes, note)

	if err := s.DB.Save(lead).Error; err != nil {
		return nil, err
	}
	return &note, nil
}

// GetLeads lists leads for the admin surface, newest first.
func (s *LeadService) GetLeads(filter LeadFilter) ([]models.Lead, int64, error) {
	query := s.DB.Model(&models.Lead{})

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Tier != "" {
		query = query.Where("tier = ?", filter.Tier)
	}
	if filter.FormType != "" {
		query = query.Where("form_type = ?", filter.FormType)
	}
	if filter.SequenceStatus != "" {
		query = query.Where("sequence_status = ?", filter.SequenceStatus)
	}
	if filter.Search != "" {
		like := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where(
			"LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(company) LIKE ?",
			like, like, like, like,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 || limit > 200 {
		limit = 50
	}

	var leads []models.Lead
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&leads).Error
	if err != nil {
		return nil, 0, err
	}
	return leads, total, nil
}

// GetLeadStats aggregates leads created in the date range. Pure read, no
// side effects.
func (s *LeadService) GetLeadStats(startDate, endDate time.Time) (*LeadStats, error) {
	var leads []models.Lead
	err := s.DB.
		Where("created_at >= ? AND created_at <= ?", startDate, endDate).
		Find(&leads).Error
	if err != nil {
		return nil, err
	}

	stats := &LeadStats{
		ByStatus:   map[string]int64{},
		ByTier:     map[string]int64{},
		ByFormType: map[string]int64{},
	}
	for _, lead := range leads {
		stats.Total++
		stats.ByStatus[lead.Status]++
		stats.ByTier[lead.Tier]++
		if lead.FormType != "" {
			stats.ByFormType[lead.FormType]++
		}
		if lead.HasReplied {
			stats.Replied++
		}
	}
	return stats, nil
}

// RegisterOpen records a tracking-pixel hit against the lead and bumps its
// engagement score.
func (s *LeadService) RegisterOpen(data *TrackingData, userAgent, ip string) error {
	lead, err := s.GetLead(data.LeadID)
	if err != nil {
		return err
	}

	now := time.Now()
	lead.Opens = append(lead.Opens, models.OpenEvent{
		Timestamp:    now,
		EmailDay:     data.EmailDay,
		SequenceType: data.SequenceType,
		EmailID:      data.EmailID,
		UserAgent:    userAgent,
		IP:           ip,
	})
	lead.TotalOpens++
	lead.EngagementScore += ScoreEmailOpen
	lead.Tier = TierForScore(lead.EngagementScore)
	lead.LastActivityAt = &now

	return s.DB.Save(lead).Error
}

// RegisterClick records a click-redirect hit against the lead.
func (s *LeadService) RegisterClick(data *TrackingData, userAgent, ip string) error {
	lead, err := s.GetLead(data.LeadID)
	if err != nil {
		return err
	}

	now := time.Now()
	lead.Clicks = append(lead.Clicks, models.ClickEvent{
		Timestamp:    now,
		EmailDay:     data.EmailDay,
		URL:          data.DestinationURL,
		SequenceType: data.SequenceType,
		EmailID:      data.EmailID,
		UserAgent:    userAgent,
		IP:           ip,
	})
	lead.TotalClicks++
	lead.EngagementScore += ScoreEmailClick
	lead.Tier = TierForScore(lead.EngagementScore)
	lead.LastActivityAt = &now

	return s.DB.Save(lead).Error
}

func fillString(dst *string, src string) {
	if *dst == "" && src != "" {
		*dst = strings.TrimSpace(src)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
