package models

import (
	"time"

	"gorm.io/gorm"
)

// Touchpoint event types. Form submissions, chat leads, assessment
// completions, and guide downloads count as conversion events.
const (
	TouchpointPageview           = "pageview"
	TouchpointFormSubmit         = "form_submit"
	TouchpointChatLead           = "chat_lead"
	TouchpointAssessmentComplete = "assessment_complete"
	TouchpointGuideDownload      = "guide_download"
	TouchpointSelfReported       = "self_reported"
)

// IsConversionTouchpoint reports whether t is a lead-creating event type.
func IsConversionTouchpoint(t string) bool {
	switch t {
	case TouchpointFormSubmit, TouchpointChatLead, TouchpointAssessmentComplete, TouchpointGuideDownload:
		return true
	}
	return false
}

// Touchpoint is one recorded visitor interaction with an attributable
// channel. The log is append-only per visitor; ordering is by
// (timestamp, id) so same-timestamp touches keep insertion order.
type Touchpoint struct {
	gorm.Model
	VisitorID string    `gorm:"not null;index" json:"visitor_id"`
	SessionID string    `gorm:"index" json:"session_id"`
	Timestamp time.Time `gorm:"not null;index" json:"timestamp"`

	Type   string `gorm:"not null" json:"type"`
	Page   string `json:"page"`
	Source string `gorm:"not null" json:"source"` // channel label: organic, paid, referral, direct, email, self-reported, ...
	Medium string `json:"medium"`

	Campaign string `json:"campaign"`
	Referrer string `json:"referrer"`
	GCLID    string `json:"gclid"`
}

// Opportunity is the third attribution anchor, marked by a human in the
// CRM. One row per visitor; re-marking overwrites (last write wins).
type Opportunity struct {
	gorm.Model
	VisitorID string    `gorm:"not null;uniqueIndex" json:"visitor_id"`
	Timestamp time.Time `gorm:"not null" json:"timestamp"`
	DealValue float64   `json:"deal_value"`

	// Attribution computed at marking time, serialized JSON. Kept for
	// audit; reporting always recomputes from touchpoints.
	AttributionSnapshot string `gorm:"type:text" json:"attribution_snapshot,omitempty"`
}

// SelfReportedSource is a "how did you hear about us?" answer. It is a
// distinct evidentiary class (asserted, not observed) and stays in its own
// channel bucket.
type SelfReportedSource struct {
	gorm.Model
	VisitorID         string    `gorm:"not null;index" json:"visitor_id"`
	Timestamp         time.Time `gorm:"not null" json:"timestamp"`
	Response          string    `gorm:"type:text;not null" json:"response"`
	NormalizedChannel string    `json:"normalized_channel"`
}
