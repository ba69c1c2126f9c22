package models

import (
	"time"

	"gorm.io/gorm"
)

// Lead statuses, behavior tiers and contact channels. These are validated
// inside the lead service as well as at the API boundary.
var (
	LeadStatuses    = []string{"new", "contacted", "qualified", "opportunity", "customer", "lost"}
	LeadTiers       = []string{"A", "B", "C"}
	ContactChannels = []string{"linkedin", "email", "phone", "other"}
)

// IsValidLeadStatus reports whether s is an allowed lead status.
func IsValidLeadStatus(s string) bool {
	for _, v := range LeadStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsValidLeadTier reports whether t is an allowed behavior tier.
func IsValidLeadTier(t string) bool {
	for _, v := range LeadTiers {
		if v == t {
			return true
		}
	}
	return false
}

// IsValidContactChannel reports whether c is an allowed contact channel.
func IsValidContactChannel(c string) bool {
	for _, v := range ContactChannels {
		if v == c {
			return true
		}
	}
	return false
}

// Lead represents a single contact in the CRM. Email is the identity key:
// creation is idempotent by email and re-submissions merge into the
// existing record.
type Lead struct {
	gorm.Model

	Email     string `gorm:"not null;uniqueIndex" json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	Phone     string `json:"phone"`
	Message   string `gorm:"type:text" json:"message"`

	// Form context
	FormType      string `json:"form_type"` // contact, guide, audit, assessment, chat, newsletter
	ResourceSlug  string `json:"resource_slug"`
	ResourceTitle string `json:"resource_title"`
	SourcePage    string `json:"source_page"`

	// Link back to the anonymous tracking identity
	VisitorID string `gorm:"index" json:"visitor_id"`
	SessionID string `json:"session_id"`

	// CRM state
	Status          string `gorm:"default:'new';index" json:"status"`
	Tier            string `gorm:"default:'C'" json:"tier"`
	Industry        string `json:"industry"`
	LeadSource      string `gorm:"default:'website'" json:"lead_source"`
	EngagementScore int    `gorm:"default:0" json:"engagement_score"`

	// Attribution data captured at creation time
	UTMSource             string `json:"utm_source"`
	UTMMedium             string `json:"utm_medium"`
	UTMCampaign           string `json:"utm_campaign"`
	ReferrerSource        string `json:"referrer_source"`
	FirstTouchSource      string `json:"first_touch_source"`
	FirstTouchLandingPage string `json:"first_touch_landing_page"`

	// Company identification from enrichment
	IdentifiedCompany string `json:"identified_company"`
	IdentifiedDomain  string `json:"identified_domain"`

	// Email sequence state, embedded as a document
	EmailSequence *EmailSequence `gorm:"type:jsonb;serializer:json" json:"email_sequence,omitempty"`

	// Denormalized copy of EmailSequence.Status so the processor can query
	// active enrollments without unpacking jsonb. Empty when not enrolled.
	SequenceStatus string `gorm:"index" json:"sequence_status"`

	// Engagement events, appended by the tracking endpoints
	Opens  []OpenEvent  `gorm:"type:jsonb;serializer:json" json:"opens,omitempty"`
	Clicks []ClickEvent `gorm:"type:jsonb;serializer:json" json:"clicks,omitempty"`

	TotalOpens  int  `gorm:"default:0" json:"total_opens"`
	TotalClicks int  `gorm:"default:0" json:"total_clicks"`
	HasReplied  bool `gorm:"default:false" json:"has_replied"`

	ContactHistory []ContactRecord `gorm:"type:jsonb;serializer:json" json:"contact_history,omitempty"`
	Notes          []LeadNote      `gorm:"type:jsonb;serializer:json" json:"notes,omitempty"`
	Tags           []string        `gorm:"type:jsonb;serializer:json" json:"tags,omitempty"`

	LastActivityAt *time.Time `json:"last_activity_at"`
}

// EmailSequence tracks a lead's enrollment in a nurture sequence.
// Stored as a jsonb sub-document on the Lead row.
type EmailSequence struct {
	SequenceType string    `json:"sequence_type"`
	EnrolledAt   time.Time `json:"enrolled_at"`
	Status       string    `json:"status"` // active, completed, paused, unsubscribed, bounced
	PauseReason  string    `json:"pause_reason,omitempty"`

	// Step key ("day0", "day2", ...) -> send record. A step key present
	// here is never sent again.
	EmailsSent map[string]EmailSentRecord `json:"emails_sent"`

	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	UnsubscribedAt *time.Time `json:"unsubscribed_at,omitempty"`
	RepliedAt      *time.Time `json:"replied_at,omitempty"`
	ComplainedAt   *time.Time `json:"complained_at,omitempty"`

	BounceType   string     `json:"bounce_type,omitempty"` // hard, soft, undetermined
	BounceCount  int        `json:"bounce_count,omitempty"`
	LastBounceAt *time.Time `json:"last_bounce_at,omitempty"`
}

// EmailSentRecord marks one sequence step as delivered.
type EmailSentRecord struct {
	SentAt    time.Time `json:"sent_at"`
	MessageID string    `json:"message_id,omitempty"`
}

// OpenEvent records a tracking-pixel hit for a sequence email.
type OpenEvent struct {
	Timestamp    time.Time `json:"timestamp"`
	EmailDay     int       `json:"email_day"`
	SequenceType string    `json:"sequence_type"`
	EmailID      string    `json:"email_id,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	IP           string    `json:"ip,omitempty"`
}

// ClickEvent records a click-redirect hit for a sequence email.
type ClickEvent struct {
	Timestamp    time.Time `json:"timestamp"`
	EmailDay     int       `json:"email_day"`
	URL          string    `json:"url"`
	SequenceType string    `json:"sequence_type"`
	EmailID      string    `json:"email_id,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	IP           string    `json:"ip,omitempty"`
}

// ContactRecord is one outreach touch (manual or synthetic).
type ContactRecord struct {
	ID          string    `json:"id"`
	Channel     string    `json:"channel"` // linkedin, email, phone, other
	Campaign    string    `json:"campaign,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	ContactedAt time.Time `json:"contacted_at"`
}

// LeadNote is a free-text note attached to a lead.
type LeadNote struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Author    string    `json:"author,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SequenceSend is the per-step send claim and audit row. The unique index
// on (lead_id, step_key) is the conditional write that prevents duplicate
// sends when two processor invocations overlap: the loser of the insert
// race skips the step. SentAt stays nil until the transport confirms the
// send; a failed send deletes the claim so the next run can retry.
type SequenceSend struct {
	gorm.Model
	LeadID       uint   `gorm:"not null;uniqueIndex:idx_lead_step" json:"lead_id"`
	StepKey      string `gorm:"not null;uniqueIndex:idx_lead_step" json:"step_key"`
	SequenceType string `gorm:"not null" json:"sequence_type"`

	MessageID string     `json:"message_id"`
	SentAt    *time.Time `json:"sent_at"`

	Lead Lead `json:"-"`
}
