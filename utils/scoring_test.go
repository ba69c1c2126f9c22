package utils

import (
	"testing"

	"databender/models"
)

func TestPageScore(t *testing.T) {
	cases := []struct {
		page string
		want int
	}{
		{"/contact", 30},
		{"/assessment", 25},
		{"/case-studies", 20},
		{"/case-studies/retail-forecasting", 20}, // prefix match
		{"/services/data-platform", 15},
		{"/", 5},
		{"/privacy", ScoreDefaultPage},
	}
	for _, tc := range cases {
		if got := PageScore(tc.page); got != tc.want {
			t.Errorf("PageScore(%q) = %d, want %d", tc.page, got, tc.want)
		}
	}
}

func TestEventScore(t *testing.T) {
	cases := []struct {
		eventType string
		page      string
		formType  string
		want      int
	}{
		{models.TouchpointPageview, "/contact", "", 30},
		{models.TouchpointFormSubmit, "", "contact", ScoreFormSubmit},
		{models.TouchpointFormSubmit, "", "assessment", ScoreAssessmentComplete},
		{models.TouchpointAssessmentComplete, "", "", ScoreAssessmentComplete},
		{models.TouchpointGuideDownload, "", "", ScoreGuideDownload},
		{models.TouchpointChatLead, "", "", ScoreChatLead},
		{models.TouchpointSelfReported, "", "", ScoreSelfReportedAnswer},
		{"mystery", "", "", 0},
	}
	for _, tc := range cases {
		if got := EventScore(tc.eventType, tc.page, tc.formType); got != tc.want {
			t.Errorf("EventScore(%q, %q, %q) = %d, want %d", tc.eventType, tc.page, tc.formType, got, tc.want)
		}
	}
}

func TestTierForScore(t *testing.T) {
	cases := []struct {
		score int
		want  string
	}{
		{0, "C"},
		{19, "C"},
		{20, "B"},
		{49, "B"},
		{50, "A"},
		{500, "A"},
	}
	for _, tc := range cases {
		if got := TierForScore(tc.score); got != tc.want {
			t.Errorf("TierForScore(%d) = %q, want %q", tc.score, got, tc.want)
		}
	}
}
