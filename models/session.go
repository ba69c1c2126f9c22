package models

import (
	"time"

	"gorm.io/gorm"
)

// Session groups page views for one visit window. A session is open while
// the visitor keeps navigating and is finalized by the session worker once
// it has been idle past the inactivity timeout.
type Session struct {
	gorm.Model
	SessionID string `gorm:"not null;uniqueIndex" json:"session_id"`
	VisitorID string `gorm:"not null;index" json:"visitor_id"`

	StartedAt  time.Time  `gorm:"not null" json:"started_at"`
	LastSeenAt time.Time  `gorm:"not null;index" json:"last_seen_at"`
	EndedAt    *time.Time `json:"ended_at"`
	Duration   int        `gorm:"default:0" json:"duration"` // seconds

	PagesVisited []string `gorm:"type:jsonb;serializer:json" json:"pages_visited"`
	EntryPage    string   `json:"entry_page"`
	ExitPage     string   `json:"exit_page"`

	IsConverted    bool   `gorm:"default:false" json:"is_converted"`
	ConversionType string `json:"conversion_type"`

	ReferrerSource string `json:"referrer_source"`
	ReferrerMedium string `json:"referrer_medium"`
	UTMCampaign    string `json:"utm_campaign"`

	// Company identification from enrichment (best effort)
	CompanyName   string `json:"company_name"`
	CompanyDomain string `json:"company_domain"`

	UserAgent string `json:"user_agent"`
}
