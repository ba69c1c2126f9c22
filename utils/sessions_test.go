package utils

import (
	"testing"
	"time"

	"gorm.io/gorm"

	"databender/models"
)

func getSession(t *testing.T, db *gorm.DB, sessionID string) *models.Session {
	t.Helper()
	var session models.Session
	if err := db.Where("session_id = ?", sessionID).First(&session).Error; err != nil {
		t.Fatalf("load session %s: %v", sessionID, err)
	}
	return &session
}

func TestRecordPageViewCreatesAndExtends(t *testing.T) {
	db := newTestDB(t)
	tracker := NewSessionTracker(db, newTestLogger(), 30*time.Minute)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	err := tracker.RecordPageView(PageViewInput{
		VisitorID: "v-1",
		SessionID: "s-1",
		Page:      "/services",
		Referrer:  "https://www.google.com/search",
		Timestamp: base,
	})
	if err != nil {
		t.Fatalf("first RecordPageView error: %v", err)
	}

	session := getSession(t, db, "s-1")
	if session.EntryPage != "/services" || session.ExitPage != "/services" {
		t.Errorf("entry/exit = %q/%q", session.EntryPage, session.ExitPage)
	}
	if session.ReferrerSource != "google" || session.ReferrerMedium != "organic" {
		t.Errorf("referrer = %q/%q, want google/organic", session.ReferrerSource, session.ReferrerMedium)
	}

	err = tracker.RecordPageView(PageViewInput{
		VisitorID: "v-1",
		SessionID: "s-1",
		Page:      "/contact",
		Timestamp: base.Add(90 * time.Second),
	})
	if err != nil {
		t.Fatalf("second RecordPageView error: %v", err)
	}

	session = getSession(t, db, "s-1")
	if session.EntryPage != "/services" {
		t.Errorf("entry page changed to %q", session.EntryPage)
	}
	if session.ExitPage != "/contact" {
		t.Errorf("exit page = %q, want /contact", session.ExitPage)
	}
	if len(session.PagesVisited) != 2 {
		t.Errorf("pages visited = %v", session.PagesVisited)
	}
	if session.Duration != 90 {
		t.Errorf("duration = %d, want 90", session.Duration)
	}
	// The referrer from the first view sticks
	if session.ReferrerSource != "google" {
		t.Errorf("referrer source changed to %q", session.ReferrerSource)
	}
}

func TestRecordConversion(t *testing.T) {
	db := newTestDB(t)
	tracker := NewSessionTracker(db, newTestLogger(), 30*time.Minute)

	if err := tracker.RecordPageView(PageViewInput{VisitorID: "v-2", SessionID: "s-2", Page: "/"}); err != nil {
		t.Fatalf("RecordPageView error: %v", err)
	}
	if err := tracker.RecordConversion("s-2", "form_submit"); err != nil {
		t.Fatalf("RecordConversion error: %v", err)
	}

	session := getSession(t, db, "s-2")
	if !session.IsConverted || session.ConversionType != "form_submit" {
		t.Errorf("conversion state: converted=%v type=%q", session.IsConverted, session.ConversionType)
	}

	// Unknown sessions are logged, not errors
	if err := tracker.RecordConversion("s-ghost", "form_submit"); err != nil {
		t.Errorf("unknown session error = %v, want nil", err)
	}
}

func TestFinalizeIdleSessions(t *testing.T) {
	db := newTestDB(t)
	tracker := NewSessionTracker(db, newTestLogger(), 30*time.Minute)

	stale := time.Now().Add(-2 * time.Hour)
	if err := tracker.RecordPageView(PageViewInput{VisitorID: "v-3", SessionID: "s-stale", Page: "/", Timestamp: stale}); err != nil {
		t.Fatalf("RecordPageView error: %v", err)
	}
	if err := tracker.RecordPageView(PageViewInput{VisitorID: "v-4", SessionID: "s-live", Page: "/"}); err != nil {
		t.Fatalf("RecordPageView error: %v", err)
	}

	closed, err := tracker.FinalizeIdleSessions()
	if err != nil {
		t.Fatalf("FinalizeIdleSessions error: %v", err)
	}
	if closed != 1 {
		t.Fatalf("closed = %d, want 1", closed)
	}

	staleSession := getSession(t, db, "s-stale")
	if staleSession.EndedAt == nil {
		t.Error("stale session not ended")
	} else if !staleSession.EndedAt.Equal(staleSession.LastSeenAt) {
		t.Errorf("endedAt = %v, want lastSeenAt %v", staleSession.EndedAt, staleSession.LastSeenAt)
	}

	liveSession := getSession(t, db, "s-live")
	if liveSession.EndedAt != nil {
		t.Error("live session was ended")
	}

	// Idempotent: the already-closed session is not reprocessed
	closed, err = tracker.FinalizeIdleSessions()
	if err != nil {
		t.Fatalf("second FinalizeIdleSessions error: %v", err)
	}
	if closed != 0 {
		t.Errorf("second run closed %d, want 0", closed)
	}
}
