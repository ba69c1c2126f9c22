package utils

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"databender/models"
)

// PageViewInput carries one page view into the session aggregator.
type PageViewInput struct {
	VisitorID     string
	SessionID     string
	Page          string
	Referrer      string
	UTMCampaign   string
	UserAgent     string
	CompanyName   string
	CompanyDomain string
	Timestamp     time.Time
}

// SessionTracker groups raw page views into sessions with entry/exit pages,
// duration, and a conversion flag.
type SessionTracker struct {
	DB          *gorm.DB
	Logger      *logrus.Logger
	IdleTimeout time.Duration
}

func NewSessionTracker(db *gorm.DB, logger *logrus.Logger, idleTimeout time.Duration) *SessionTracker {
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}
	return &SessionTracker{DB: db, Logger: logger, IdleTimeout: idleTimeout}
}

// RecordPageView creates the session on its first page view and extends it
// on every later one.
func (t *SessionTracker) RecordPageView(in PageViewInput) error {
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now()
	}

	var session models.Session
	err := t.DB.Where("session_id = ?", in.SessionID).First(&session).Error
	if err == gorm.ErrRecordNotFound {
		ref := ParseReferrerSource(in.Referrer)
		session = models.Session{
			SessionID:      in.SessionID,
			VisitorID:      in.VisitorID,
			StartedAt:      in.Timestamp,
			LastSeenAt:     in.Timestamp,
			PagesVisited:   []string{in.Page},
			EntryPage:      in.Page,
			ExitPage:       in.Page,
			ReferrerSource: ref.Source,
			ReferrerMedium: ref.Medium,
			UTMCampaign:    in.UTMCampaign,
			CompanyName:    in.CompanyName,
			CompanyDomain:  in.CompanyDomain,
			UserAgent:      in.UserAgent,
		}
		return t.DB.Create(&session).Error
	}
	if err != nil {
		return fmt.Errorf("loading session %s: %w", in.SessionID, err)
	}

	session.PagesVisited = append(session.PagesVisited, in.Page)
	session.ExitPage = in.Page
	session.LastSeenAt = in.Timestamp
	session.Duration = int(in.Timestamp.Sub(session.StartedAt).Seconds())
	if session.CompanyDomain == "" && in.CompanyDomain != "" {
		session.CompanyName = in.CompanyName
		session.CompanyDomain = in.CompanyDomain
	}
	return t.DB.Save(&session).Error
}

// RecordConversion flags the session as converted. Missing sessions are not
// an error: conversion events can arrive after the session row was pruned or
// from clients with storage disabled.
func (t *SessionTracker) RecordConversion(sessionID, conversionType string) error {
	result := t.DB.Model(&models.Session{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]interface{}{
			"is_converted":    true,
			"conversion_type": conversionType,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 && t.Logger != nil {
		t.Logger.WithField("session_id", sessionID).Debug("conversion for unknown session")
	}
	return nil
}

// FinalizeIdleSessions closes sessions that have been quiet past the idle
// timeout, stamping their end time and final duration. Returns how many
// sessions were closed.
func (t *SessionTracker) FinalizeIdleSessions() (int, error) {
	cutoff := time.Now().Add(-t.IdleTimeout)

	var stale []models.Session
	err := t.DB.
		Where("ended_at IS NULL AND last_seen_at < ?", cutoff).
		Find(&stale).Error
	if err != nil {
		return 0, fmt.Errorf("loading idle sessions: %w", err)
	}

	closed := 0
	for i := range stale {
		s := &stale[i]
		endedAt := s.LastSeenAt
		s.EndedAt = &endedAt
		s.Duration = int(s.LastSeenAt.Sub(s.StartedAt).Seconds())
		if err := t.DB.Save(s).Error; err != nil {
			if t.Logger != nil {
				t.Logger.WithFields(logrus.Fields{
					"session_id": s.SessionID,
					"error":      err.Error(),
				}).Warn("failed to finalize session")
			}
			continue
		}
		closed++
	}
	return closed, nil
}
