package utils

import (
	"errors"
	"testing"
	"time"

	"databender/models"
)

func TestCreateLeadNew(t *testing.T) {
	svc := NewLeadService(newTestDB(t), newTestLogger())

	lead, created, err := svc.CreateLead(CreateLeadInput{
		Email:     "Jordan@Example.com",
		FirstName: "Jordan",
		Company:   "Acme Analytics",
		FormType:  "contact",
	})
	if err != nil {
		t.Fatalf("CreateLead error: %v", err)
	}
	if !created {
		t.Fatal("expected created=true for new lead")
	}
	if lead.Email != "jordan@example.com" {
		t.Errorf("email not lowercased: %q", lead.Email)
	}
	if lead.Status != "new" {
		t.Errorf("status = %q, want new", lead.Status)
	}
	if lead.EngagementScore != ScoreFormSubmit {
		t.Errorf("score = %d, want %d", lead.EngagementScore, ScoreFormSubmit)
	}
	if lead.Tier != "A" {
		t.Errorf("tier = %q, want A for score %d", lead.Tier, lead.EngagementScore)
	}
}

func TestCreateLeadInvalidEmail(t *testing.T) {
	svc := NewLeadService(newTestDB(t), newTestLogger())

	for _, email := range []string{"", "   ", "not-an-email", "two@@example.com"} {
		_, _, err := svc.CreateLead(CreateLeadInput{Email: email})
		if !errors.Is(err, ErrValidation) {
			t.Errorf("CreateLead(%q) error = %v, want ErrValidation", email, err)
		}
	}
}

func TestCreateLeadDedupeFillsEmptyFields(t *testing.T) {
	svc := NewLeadService(newTestDB(t), newTestLogger())

	first, _, err := svc.CreateLead(CreateLeadInput{
		Email:     "dupe@example.com",
		FirstName: "Sam",
		FormType:  "guide",
	})
	if err != nil {
		t.Fatalf("first CreateLead error: %v", err)
	}

	// Re-submission with the same email, different casing, adds the phone
	// but must not overwrite the existing first name.
	second, created, err := svc.CreateLead(CreateLeadInput{
		Email:     "DUPE@example.com",
		FirstName: "Samuel",
		Phone:     "+1 555 0100",
		FormType:  "contact",
	})
	if err != nil {
		t.Fatalf("second CreateLead error: %v", err)
	}
	if created {
		t.Fatal("expected created=false on re-submission")
	}
	if second.ID != first.ID {
		t.Fatalf("re-submission produced a different lead: %d vs %d", second.ID, first.ID)
	}
	if second.FirstName != "Sam" {
		t.Errorf("existing first name was overwritten: %q", second.FirstName)
	}
	if second.Phone != "+1 555 0100" {
		t.Errorf("empty phone was not filled: %q", second.Phone)
	}
	if len(second.ContactHistory) != 1 {
		t.Fatalf("contact history entries = %d, want 1 re-submission record", len(second.ContactHistory))
	}
	if second.ContactHistory[0].Campaign != "contact" {
		t.Errorf("re-submission record campaign = %q", second.ContactHistory[0].Campaign)
	}
}

func TestUpdateLeadStatusValidation(t *testing.T) {
	svc := NewLeadService(newTestDB(t), newTestLogger())

	lead, _, err := svc.CreateLead(CreateLeadInput{Email: "status@example.com"})
	if err != nil {
		t.Fatalf("CreateLead error: %v", err)
	}

	bogus := "bogus"
	err = svc.UpdateLeadStatus(lead.ID, UpdateLeadInput{Status: &bogus})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("UpdateLeadStatus error = %v, want ErrValidation", err)
	}

	// Stored status untouched after the rejected update
	reloaded, err := svc.GetLead(lead.ID)
	if err != nil {
		t.Fatalf("GetLead error: %v", err)
	}
	if reloaded.Status != "new" {
		t.Errorf("status after rejected update = %q, want new", reloaded.Status)
	}

	qualified := "qualified"
	if err := svc.UpdateLeadStatus(lead.ID, UpdateLeadInput{Status: &qualified}); err != nil {
		t.Fatalf("valid UpdateLeadStatus error: %v", err)
	}
	reloaded, _ = svc.GetLead(lead.ID)
	if reloaded.Status != "qualified" {
		t.Errorf("status = %q, want qualified", reloaded.Status)
	}
}

func TestRecordContactTransitionsNewLead(t *testing.T) {
	svc := NewLeadService(newTestDB(t), newTestLogger())

	lead, _, err := svc.CreateLead(CreateLeadInput{Email: "contact@example.com"})
	if err != nil {
		t.Fatalf("CreateLead error: %v", err)
	}

	if _, err := svc.RecordContact(lead.ID, "carrier-pigeon", "", ""); !errors.Is(err, ErrValidation) {
		t.Errorf("invalid channel error = %v, want ErrValidation", err)
	}

	record, err := svc.RecordContact(lead.ID, "email", "intro", "sent intro note")
	if err != nil {
		t.Fatalf("RecordContact error: %v", err)
	}
	if record.ID == "" {
		t.Error("contact record has no id")
	}

	reloaded, _ := svc.GetLead(lead.ID)
	if reloaded.Status != "contacted" {
		t.Errorf("status = %q, want contacted after first outreach", reloaded.Status)
	}
	if len(reloaded.ContactHistory) != 1 {
		t.Errorf("contact history entries = %d, want 1", len(reloaded.ContactHistory))
	}
}

func TestAddNoteToLead(t *testing.T) {
	svc := NewLeadService(newTestDB(t), newTestLogger())

	lead, _, err := svc.CreateLead(CreateLeadInput{Email: "notes@example.com"})
	if err != nil {
		t.Fatalf("CreateLead error: %v", err)
	}

	if _, err := svc.AddNoteToLead(lead.ID, "   ", "admin"); !errors.Is(err, ErrValidation) {
		t.Errorf("blank note error = %v, want ErrValidation", err)
	}

	note, err := svc.AddNoteToLead(lead.ID, "  interested in data platform audit  ", "admin")
	if err != nil {
		t.Fatalf("AddNoteToLead error: %v", err)
	}
	if note.Content != "interested in data platform audit" {
		t.Errorf("note content not trimmed: %q", note.Content)
	}

	if _, err := svc.AddNoteToLead(99999, "orphan", "admin"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing lead error = %v, want ErrNotFound", err)
	}
}

func TestGetLeadsFilterAndSearch(t *testing.T) {
	svc := NewLeadService(newTestDB(t), newTestLogger())

	seed := []CreateLeadInput{
		{Email: "a@acme.com", Company: "Acme", FormType: "contact"},
		{Email: "b@globex.com", Company: "Globex", FormType: "guide"},
		{Email: "c@acme.com", Company: "Acme", FormType: "assessment"},
	}
	for _, input := range seed {
		if _, _, err := svc.CreateLead(input); err != nil {
			t.Fatalf("seed CreateLead error: %v", err)
		}
	}

	leads, total, err := svc.GetLeads(LeadFilter{Search: "acme"})
	if err != nil {
		t.Fatalf("GetLeads error: %v", err)
	}
	if total != 2 || len(leads) != 2 {
		t.Errorf("search acme: total=%d len=%d, want 2/2", total, len(leads))
	}

	leads, total, err = svc.GetLeads(LeadFilter{FormType: "guide"})
	if err != nil {
		t.Fatalf("GetLeads error: %v", err)
	}
	if total != 1 || leads[0].Email != "b@globex.com" {
		t.Errorf("form type filter: total=%d first=%v", total, leads)
	}
}

func TestRegisterOpenAndClick(t *testing.T) {
	svc := NewLeadService(newTestDB(t), newTestLogger())

	lead, _, err := svc.CreateLead(CreateLeadInput{Email: "engage@example.com"})
	if err != nil {
		t.Fatalf("CreateLead error: %v", err)
	}
	baseScore := lead.EngagementScore

	data := &TrackingData{LeadID: lead.ID, EmailDay: 2, SequenceType: "assessment"}
	if err := svc.RegisterOpen(data, "test-agent", "203.0.113.9"); err != nil {
		t.Fatalf("RegisterOpen error: %v", err)
	}
	data.DestinationURL = "https://databender.co/book"
	if err := svc.RegisterClick(data, "test-agent", "203.0.113.9"); err != nil {
		t.Fatalf("RegisterClick error: %v", err)
	}

	reloaded, _ := svc.GetLead(lead.ID)
	if reloaded.TotalOpens != 1 || reloaded.TotalClicks != 1 {
		t.Errorf("counters = %d opens / %d clicks, want 1/1", reloaded.TotalOpens, reloaded.TotalClicks)
	}
	want := baseScore + ScoreEmailOpen + ScoreEmailClick
	if reloaded.EngagementScore != want {
		t.Errorf("score = %d, want %d", reloaded.EngagementScore, want)
	}
	if len(reloaded.Clicks) != 1 || reloaded.Clicks[0].URL != "https://databender.co/book" {
		t.Errorf("click event not recorded: %+v", reloaded.Clicks)
	}
}

func TestGetLeadStats(t *testing.T) {
	svc := NewLeadService(newTestDB(t), newTestLogger())

	for _, input := range []CreateLeadInput{
		{Email: "s1@example.com", FormType: "contact"},
		{Email: "s2@example.com", FormType: "guide"},
		{Email: "s3@example.com", FormType: "guide"},
	} {
		if _, _, err := svc.CreateLead(input); err != nil {
			t.Fatalf("seed CreateLead error: %v", err)
		}
	}

	stats, err := svc.GetLeadStats(time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("GetLeadStats error: %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("total = %d, want 3", stats.Total)
	}
	if stats.ByFormType["guide"] != 2 {
		t.Errorf("guide count = %d, want 2", stats.ByFormType["guide"])
	}
	if stats.ByStatus["new"] != 3 {
		t.Errorf("new count = %d, want 3", stats.ByStatus["new"])
	}
}

func TestEnrichLeadWithAnalytics(t *testing.T) {
	db := newTestDB(t)
	svc := NewLeadService(db, newTestLogger())

	tp := models.Touchpoint{
		VisitorID: "v-enrich",
		Timestamp: time.Now().Add(-48 * time.Hour),
		Type:      models.TouchpointPageview,
		Page:      "/guides/data-mesh",
		Source:    "google",
		Medium:    "organic",
	}
	if err := db.Create(&tp).Error; err != nil {
		t.Fatalf("seed touchpoint error: %v", err)
	}

	lead, _, err := svc.CreateLead(CreateLeadInput{
		Email:     "enrich@example.com",
		VisitorID: "v-enrich",
	})
	if err != nil {
		t.Fatalf("CreateLead error: %v", err)
	}
	if lead.FirstTouchSource != "organic_search" {
		t.Errorf("first touch source = %q, want organic_search", lead.FirstTouchSource)
	}
	if lead.FirstTouchLandingPage != "/guides/data-mesh" {
		t.Errorf("landing page = %q", lead.FirstTouchLandingPage)
	}
}
