package utils

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"databender/config"
	"databender/models"
)

// Sequence statuses carried on the embedded EmailSequence document and
// mirrored into the lead's denormalized sequence_status column.
const (
	SequenceActive       = "active"
	SequenceCompleted    = "completed"
	SequencePaused       = "paused"
	SequenceUnsubscribed = "unsubscribed"
	SequenceBounced      = "bounced"
)

// A soft-bouncing address gets this many retries before the sequence is
// paused.
const maxSoftBounces = 3

// ProcessError is one per-lead failure collected during a batch run.
type ProcessError struct {
	LeadID  uint   `json:"leadId"`
	Email   string `json:"email"`
	StepKey string `json:"stepKey,omitempty"`
	Message string `json:"message"`
}

// ProcessResult summarizes one processor run.
type ProcessResult struct {
	TotalProcessed     int            `json:"totalProcessed"`
	EmailsSent         int            `json:"emailsSent"`
	CompletedSequences int            `json:"completedSequences"`
	Errors             []ProcessError `json:"errors"`
}

// SequenceProcessor drives the day-offset email cadence for enrolled leads.
// It is schedule-agnostic: the sequence definition rows supply the ordered
// {dayOffset, template} steps.
type SequenceProcessor struct {
	DB     *gorm.DB
	Logger *logrus.Logger
	Mailer Mailer
}

func NewSequenceProcessor(db *gorm.DB, logger *logrus.Logger, mailer Mailer) *SequenceProcessor {
	return &SequenceProcessor{DB: db, Logger: logger, Mailer: mailer}
}

// ProcessSequenceEmails runs one batch over every lead with an active
// enrollment. A failure for one lead never aborts the batch: it is recorded
// in the result and processing moves to the next lead.
func (p *SequenceProcessor) ProcessSequenceEmails() ProcessResult {
	result := ProcessResult{Errors: []ProcessError{}}

	var leads []models.Lead
	if err := p.DB.Where("sequence_status = ?", SequenceActive).Find(&leads).Error; err != nil {
		p.Logger.WithField("error", err.Error()).Error("failed to load active enrollments")
		sentry.CaptureException(err)
		result.Errors = append(result.Errors, ProcessError{Message: fmt.Sprintf("loading enrollments: %v", err)})
		return result
	}

	now := time.Now()
	for i := range leads {
		lead := &leads[i]
		result.TotalProcessed++

		seq := lead.EmailSequence
		if seq == nil || seq.Status != SequenceActive {
			continue
		}
		// Replied, bounced, and complained leads get no further sends,
		// checked before any step computation
		if lead.HasReplied || seq.RepliedAt != nil || seq.ComplainedAt != nil || seq.Status == SequenceBounced {
			continue
		}

		sent, completed, leadErrs := p.processLead(lead, now)
		result.EmailsSent += sent
		if completed {
			result.CompletedSequences++
		}
		result.Errors = append(result.Errors, leadErrs...)
	}

	p.Logger.WithFields(logrus.Fields{
		"processed": result.TotalProcessed,
		"sent":      result.EmailsSent,
		"completed": result.CompletedSequences,
		"errors":    len(result.Errors),
	}).Info("sequence batch finished")

	return result
}

// processLead sends every due, not-yet-sent step for one lead in day-offset
// order. A send failure stops this lead's remaining steps for the run; the
// earlier step will have been recorded, the failed one retried next run.
func (p *SequenceProcessor) processLead(lead *models.Lead, now time.Time) (int, bool, []ProcessError) {
	seq := lead.EmailSequence

	definition, err := p.loadSequenceDefinition(seq.SequenceType)
	if err != nil {
		sentry.CaptureException(err)
		return 0, false, []ProcessError{{
			LeadID: lead.ID, Email: lead.Email,
			Message: fmt.Sprintf("loading sequence %q: %v", seq.SequenceType, err),
		}}
	}

	elapsedDays := int(now.Sub(seq.EnrolledAt).Hours() / 24)
	if seq.EmailsSent == nil {
		seq.EmailsSent = map[string]models.EmailSentRecord{}
	}

	sent := 0
	var errs []ProcessError

	// Due steps are always recomputed from the full schedule; a later step
	// is never sent before an earlier unsent one
	for _, step := range definition.Steps {
		stepKey := fmt.Sprintf("day%d", step.DayOffset)
		if elapsedDays < step.DayOffset {
			break
		}
		if _, alreadySent := seq.EmailsSent[stepKey]; alreadySent {
			continue
		}

		claimed, err := p.claimStep(lead.ID, stepKey, seq.SequenceType)
		if err != nil {
			errs = append(errs, ProcessError{
				LeadID: lead.ID, Email: lead.Email, StepKey: stepKey,
				Message: fmt.Sprintf("claiming step: %v", err),
			})
			break
		}
		if !claimed {
			// Another invocation holds this step
			continue
		}

		messageID, err := p.sendStep(lead, seq, step)
		if err != nil {
			p.releaseStep(lead.ID, stepKey)
			p.Logger.WithFields(logrus.Fields{
				"lead_id": lead.ID,
				"step":    stepKey,
				"error":   err.Error(),
			}).Warn("sequence send failed")
			sentry.CaptureException(err)
			SequenceSendFailures.WithLabelValues(seq.SequenceType).Inc()
			errs = append(errs, ProcessError{
				LeadID: lead.ID, Email: lead.Email, StepKey: stepKey,
				Message: err.Error(),
			})
			break
		}

		sentAt := time.Now()
		seq.EmailsSent[stepKey] = models.EmailSentRecord{SentAt: sentAt, MessageID: messageID}
		p.DB.Model(&models.SequenceSend{}).
			Where("lead_id = ? AND step_key = ?", lead.ID, stepKey).
			Updates(map[string]interface{}{"sent_at": sentAt, "message_id": messageID})

		lead.LastActivityAt = &sentAt
		if err := p.DB.Save(lead).Error; err != nil {
			errs = append(errs, ProcessError{
				LeadID: lead.ID, Email: lead.Email, StepKey: stepKey,
				Message: fmt.Sprintf("recording send: %v", err),
			})
			break
		}
		sent++
		SequenceEmailsSent.WithLabelValues(seq.SequenceType).Inc()
	}

	completed := false
	if len(errs) == 0 && len(definition.Steps) > 0 && len(seq.EmailsSent) >= len(definition.Steps) {
		completedAt := time.Now()
		seq.Status = SequenceCompleted
		seq.CompletedAt = &completedAt
		lead.SequenceStatus = SequenceCompleted
		if err := p.DB.Save(lead).Error; err == nil {
			completed = true
		} else {
			errs = append(errs, ProcessError{
				LeadID: lead.ID, Email: lead.Email,
				Message: fmt.Sprintf("marking completed: %v", err),
			})
		}
	}

	return sent, completed, errs
}

// claimStep inserts the (lead, step) claim row. The unique index makes the
// insert the conditional write: when two processor invocations overlap, the
// loser sees zero rows affected and skips the step.
func (p *SequenceProcessor) claimStep(leadID uint, stepKey, sequenceType string) (bool, error) {
	claim := models.SequenceSend{
		LeadID:       leadID,
		StepKey:      stepKey,
		SequenceType: sequenceType,
	}
	res := p.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&claim)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (p *SequenceProcessor) releaseStep(leadID uint, stepKey string) {
	if err := p.DB.Unscoped().
		Where("lead_id = ? AND step_key = ? AND sent_at IS NULL", leadID, stepKey).
		Delete(&models.SequenceSend{}).Error; err != nil {
		p.Logger.WithFields(logrus.Fields{
			"lead_id": leadID,
			"step":    stepKey,
			"error":   err.Error(),
		}).Error("failed to release step claim")
	}
}

// sendStep renders one step's template and hands it to the transport with
// open/click tracking applied.
func (p *SequenceProcessor) sendStep(lead *models.Lead, seq *models.EmailSequence, step models.SequenceStep) (string, error) {
	tmpl := step.Template
	data := p.renderData(lead)

	subject, err := RenderTemplate(tmpl.Name+"-subject", tmpl.Subject, data)
	if err != nil {
		return "", err
	}
	body, err := RenderTemplate(tmpl.Name, tmpl.HTMLContent, data)
	if err != nil {
		return "", err
	}

	emailID := fmt.Sprintf("%s-day%d", seq.SequenceType, step.DayOffset)
	body = ApplyEmailTracking(body, lead.ID, step.DayOffset, seq.SequenceType, emailID)

	return p.Mailer.Send(lead.Email, subject, body)
}

func (p *SequenceProcessor) renderData(lead *models.Lead) SequenceEmailData {
	site := config.AppConfig.SiteURL
	data := SequenceEmailData{
		FirstName:      firstNonEmpty(lead.FirstName, "there"),
		Company:        lead.Company,
		AssessmentName: lead.ResourceTitle,
		GuideTitle:     lead.ResourceTitle,
		CalendarURL:    config.AppConfig.CalendarURL,
		UnsubscribeURL: fmt.Sprintf("%s/unsubscribe/%s", site, EncodeUnsubscribeToken(lead.ID, lead.Email)),
	}
	if lead.ResourceSlug != "" {
		data.DownloadURL = fmt.Sprintf("%s/resources/guides/%s", site, lead.ResourceSlug)
		data.ContentURL = fmt.Sprintf("%s/resources/guides/%s/content", site, lead.ResourceSlug)
	}
	return data
}

// loadSequenceDefinition fetches a sequence with its steps in day-offset
// order and their templates attached.
func (p *SequenceProcessor) loadSequenceDefinition(sequenceType string) (*models.Sequence, error) {
	var seq models.Sequence
	err := p.DB.
		Preload("Steps.Template").
		Where("sequence_type = ?", sequenceType).
		First(&seq).Error
	if err != nil {
		return nil, err
	}
	sort.Slice(seq.Steps, func(i, j int) bool {
		return seq.Steps[i].DayOffset < seq.Steps[j].DayOffset
	})
	return &seq, nil
}

// EnrollInSequence starts a lead on a sequence. Leads that previously
// unsubscribed or complained are never re-enrolled; an existing active
// enrollment is left alone.
func (p *SequenceProcessor) EnrollInSequence(lead *models.Lead, sequenceType string) error {
	if _, err := p.loadSequenceDefinition(sequenceType); err != nil {
		return fmt.Errorf("%w: unknown sequence %q", ErrNotFound, sequenceType)
	}

	if seq := lead.EmailSequence; seq != nil {
		switch seq.Status {
		case SequenceActive:
			return nil
		case SequenceUnsubscribed:
			return fmt.Errorf("%w: lead has unsubscribed", ErrValidation)
		}
		if seq.ComplainedAt != nil {
			return fmt.Errorf("%w: lead has complained", ErrValidation)
		}
	}

	lead.EmailSequence = &models.EmailSequence{
		SequenceType: sequenceType,
		EnrolledAt:   time.Now(),
		Status:       SequenceActive,
		EmailsSent:   map[string]models.EmailSentRecord{},
	}
	lead.SequenceStatus = SequenceActive
	return p.DB.Save(lead).Error
}

// EnrollAndSendFirstStep enrolls the lead and immediately processes its due
// steps, so the day-0 email goes out at signup rather than at the next
// scheduled batch.
func (p *SequenceProcessor) EnrollAndSendFirstStep(lead *models.Lead, sequenceType string) error {
	if err := p.EnrollInSequence(lead, sequenceType); err != nil {
		return err
	}
	_, _, errs := p.processLead(lead, time.Now())
	if len(errs) > 0 {
		return fmt.Errorf("sending first step: %s", errs[0].Message)
	}
	return nil
}

// PauseSequence suspends sends for a lead, keeping the enrollment so it can
// be resumed.
func (p *SequenceProcessor) PauseSequence(lead *models.Lead, reason string) error {
	seq := lead.EmailSequence
	if seq == nil {
		return fmt.Errorf("%w: lead is not enrolled", ErrValidation)
	}
	seq.Status = SequencePaused
	seq.PauseReason = reason
	lead.SequenceStatus = SequencePaused
	return p.DB.Save(lead).Error
}

// ResumeSequence reactivates a paused enrollment.
func (p *SequenceProcessor) ResumeSequence(lead *models.Lead) error {
	seq := lead.EmailSequence
	if seq == nil || seq.Status != SequencePaused {
		return fmt.Errorf("%w: sequence is not paused", ErrValidation)
	}
	seq.Status = SequenceActive
	seq.PauseReason = ""
	lead.SequenceStatus = SequenceActive
	return p.DB.Save(lead).Error
}

// MarkReplied stops the cadence when the lead answers a sequence email.
func (p *SequenceProcessor) MarkReplied(lead *models.Lead) error {
	now := time.Now()
	lead.HasReplied = true
	lead.EngagementScore += ScoreReply
	lead.Tier = TierForScore(lead.EngagementScore)
	lead.LastActivityAt = &now
	if seq := lead.EmailSequence; seq != nil {
		seq.RepliedAt = &now
		if seq.Status == SequenceActive {
			seq.Status = SequencePaused
			seq.PauseReason = "replied"
			lead.SequenceStatus = SequencePaused
		}
	}
	return p.DB.Save(lead).Error
}

// HandleBounce processes a delivery bounce from the email-events webhook.
// Hard bounces stop the sequence immediately; soft bounces are tolerated a
// few times before pausing.
func (p *SequenceProcessor) HandleBounce(email, bounceType string) error {
	lead, err := p.leadService().GetLeadByEmail(email)
	if err != nil {
		return err
	}
	seq := lead.EmailSequence
	if seq == nil {
		return nil
	}

	now := time.Now()
	seq.BounceType = bounceType
	seq.BounceCount++
	seq.LastBounceAt = &now

	switch {
	case bounceType == "hard":
		seq.Status = SequenceBounced
		lead.SequenceStatus = SequenceBounced
	case seq.BounceCount >= maxSoftBounces:
		seq.Status = SequencePaused
		seq.PauseReason = "repeated soft bounces"
		lead.SequenceStatus = SequencePaused
	}

	p.Logger.WithFields(logrus.Fields{
		"lead_id":     lead.ID,
		"bounce_type": bounceType,
		"count":       seq.BounceCount,
	}).Info("bounce recorded")

	return p.DB.Save(lead).Error
}

// HandleComplaint processes a spam complaint: the sequence stops and the
// lead is never re-enrolled.
func (p *SequenceProcessor) HandleComplaint(email string) error {
	lead, err := p.leadService().GetLeadByEmail(email)
	if err != nil {
		return err
	}

	now := time.Now()
	if lead.EmailSequence == nil {
		lead.EmailSequence = &models.EmailSequence{EmailsSent: map[string]models.EmailSentRecord{}}
	}
	lead.EmailSequence.ComplainedAt = &now
	lead.EmailSequence.Status = SequenceUnsubscribed
	lead.SequenceStatus = SequenceUnsubscribed

	p.Logger.WithField("lead_id", lead.ID).Warn("spam complaint received")

	return p.DB.Save(lead).Error
}

// Unsubscribe processes an unsubscribe link click.
func (p *SequenceProcessor) Unsubscribe(token string) (*models.Lead, error) {
	leadID, email, ok := DecodeUnsubscribeToken(token)
	if !ok {
		return nil, fmt.Errorf("%w: invalid unsubscribe token", ErrValidation)
	}

	lead, err := p.leadService().GetLead(leadID)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(lead.Email, email) {
		return nil, fmt.Errorf("%w: token does not match lead", ErrValidation)
	}

	now := time.Now()
	if lead.EmailSequence == nil {
		lead.EmailSequence = &models.EmailSequence{EmailsSent: map[string]models.EmailSentRecord{}}
	}
	lead.EmailSequence.Status = SequenceUnsubscribed
	lead.EmailSequence.UnsubscribedAt = &now
	lead.SequenceStatus = SequenceUnsubscribed

	if err := p.DB.Save(lead).Error; err != nil {
		return nil, err
	}
	return lead, nil
}

func (p *SequenceProcessor) leadService() *LeadService {
	return &LeadService{DB: p.DB, Logger: p.Logger}
}

// unsubscribePayload is the unsubscribe token body. Like tracking tokens it
// is base64url JSON; the email acts as a weak integrity check against
// guessed lead ids.
type unsubscribePayload struct {
	LeadID uint   `json:"leadId"`
	Email  string `json:"email"`
}

func EncodeUnsubscribeToken(leadID uint, email string) string {
	raw, _ := json.Marshal(unsubscribePayload{LeadID: leadID, Email: email})
	return base64.RawURLEncoding.EncodeToString(raw)
}

func DecodeUnsubscribeToken(token string) (uint, string, bool) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, "", false
	}
	var payload unsubscribePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return 0, "", false
	}
	if payload.LeadID == 0 || payload.Email == "" {
		return 0, "", false
	}
	return payload.LeadID, payload.Email, true
}
