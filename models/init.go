package models

import "gorm.io/gorm"

// CreateDefaultSequences seeds the nurture sequences and their templates
// on first boot. Existing rows are left untouched so template edits made
// through the admin surface survive restarts.
func CreateDefaultSequences(db *gorm.DB) error {
	type seedStep struct {
		dayOffset int
		name      string
		subject   string
		html      string
	}

	seeds := []struct {
		sequenceType string
		name         string
		description  string
		steps        []seedStep
	}{
		{
			sequenceType: "assessment",
			name:         "Assessment follow-up",
			description:  "Nurture sequence for completed readiness assessments",
			steps: []seedStep{
				{0, "assessment-day0", "Your {{.AssessmentName}} results",
					"<html><body><p>Hi {{.FirstName}},</p><p>Thanks for completing the {{.AssessmentName}}. Your overall score was {{.OverallScore}}. The area with the most room to grow is {{.LowestCategory}}.</p><p><a href=\"{{.CalendarURL}}\">Book a working session</a> if you want to walk through the results together.</p><p><a href=\"{{.UnsubscribeURL}}\">Unsubscribe</a></p></body></html>"},
				{2, "assessment-day2", "One thing most firms get wrong about {{.LowestCategory}}",
					"<html><body><p>Hi {{.FirstName}},</p><p>A quick follow-up on your assessment: teams that score where you did on {{.LowestCategory}} usually have the same root cause.</p><p><a href=\"{{.ContentURL}}\">Here is how we think about fixing it.</a></p><p><a href=\"{{.UnsubscribeURL}}\">Unsubscribe</a></p></body></html>"},
				{7, "assessment-day7", "A case study you might recognize",
					"<html><body><p>Hi {{.FirstName}},</p><p>We worked with a firm whose assessment profile looked a lot like {{.Company}}'s. <a href=\"{{.ContentURL}}\">Here's what changed in ninety days.</a></p><p><a href=\"{{.UnsubscribeURL}}\">Unsubscribe</a></p></body></html>"},
				{14, "assessment-day14", "Is this still a priority?",
					"<html><body><p>Hi {{.FirstName}},</p><p>Checking in. If improving {{.LowestCategory}} is still on your roadmap, <a href=\"{{.CalendarURL}}\">grab twenty minutes here</a>.</p><p><a href=\"{{.UnsubscribeURL}}\">Unsubscribe</a></p></body></html>"},
				{21, "assessment-day21", "Closing the loop",
					"<html><body><p>Hi {{.FirstName}},</p><p>I'll stop here. If timing changes, the door is open: <a href=\"{{.CalendarURL}}\">{{.CalendarURL}}</a>.</p><p><a href=\"{{.UnsubscribeURL}}\">Unsubscribe</a></p></body></html>"},
			},
		},
		{
			sequenceType: "guide-general",
			name:         "Guide download follow-up",
			description:  "Nurture sequence for gated guide downloads",
			steps: []seedStep{
				{0, "guide-day0", "Your copy of {{.GuideTitle}}",
					"<html><body><p>Hi {{.FirstName}},</p><p>Here is your copy of {{.GuideTitle}}: <a href=\"{{.DownloadURL}}\">download</a>.</p><p><a href=\"{{.UnsubscribeURL}}\">Unsubscribe</a></p></body></html>"},
				{2, "guide-day2", "The part of {{.GuideTitle}} people skip",
					"<html><body><p>Hi {{.FirstName}},</p><p>Most readers skim past the section that matters most. <a href=\"{{.ContentURL}}\">Here's the short version.</a></p><p><a href=\"{{.UnsubscribeURL}}\">Unsubscribe</a></p></body></html>"},
				{7, "guide-day7", "How {{.Company}} could apply this",
					"<html><body><p>Hi {{.FirstName}},</p><p>If you want a second pair of eyes on applying the guide, <a href=\"{{.CalendarURL}}\">book a call</a>.</p><p><a href=\"{{.UnsubscribeURL}}\">Unsubscribe</a></p></body></html>"},
				{14, "guide-day14", "A worked example",
					"<html><body><p>Hi {{.FirstName}},</p><p><a href=\"{{.ContentURL}}\">A case study</a> showing the guide's approach end to end.</p><p><a href=\"{{.UnsubscribeURL}}\">Unsubscribe</a></p></body></html>"},
				{21, "guide-day21", "Last note from me",
					"<html><body><p>Hi {{.FirstName}},</p><p>I'll leave you to it. If anything comes up, you know where to find us: <a href=\"{{.CalendarURL}}\">{{.CalendarURL}}</a>.</p><p><a href=\"{{.UnsubscribeURL}}\">Unsubscribe</a></p></body></html>"},
			},
		},
	}

	for _, seq := range seeds {
		var existing Sequence
		err := db.Where("sequence_type = ?", seq.sequenceType).First(&existing).Error
		if err == nil {
			continue
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}

		record := Sequence{
			SequenceType: seq.sequenceType,
			Name:         seq.name,
			Description:  seq.description,
			Status:       "active",
		}
		if err := db.Create(&record).Error; err != nil {
			return err
		}

		for i, step := range seq.steps {
			tmpl := Template{
				Name:        step.name,
				Subject:     step.subject,
				HTMLContent: step.html,
				Category:    seq.sequenceType,
			}
			if err := db.FirstOrCreate(&tmpl, "name = ?", tmpl.Name).Error; err != nil {
				return err
			}
			if err := db.Create(&SequenceStep{
				SequenceID: record.ID,
				TemplateID: tmpl.ID,
				StepNumber: i + 1,
				DayOffset:  step.dayOffset,
			}).Error; err != nil {
				return err
			}
		}
	}

	return nil
}
